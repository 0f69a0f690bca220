package mdp

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// Broker is a single Majordomo broker instance: a service registry,
// round-robin worker dispatcher, and MMI responder bound to one ROUTER
// endpoint shared by clients and workers.
type Broker struct {
	Socket      *czmq.Sock
	endpoint    string
	services    map[string]*Service
	workers     map[string]*brokerWorker
	Waiting     []*brokerWorker
	HeartbeatAt time.Time
	isBound     bool
	startTime   time.Time

	blacklist map[string]map[string]bool

	mmi *MMIHandler

	ErrorChannel chan error
	EventChannel chan Event

	requestManager *RequestManager
	cleanupTicker  *time.Ticker
}

// Service is a single named service: the backlog of queued client
// requests and the FIFO of workers currently idle for this service.
type Service struct {
	broker   *Broker
	name     string
	requests [][]string
	waiting  []*brokerWorker
}

// brokerWorker is a single worker connection, idle or currently
// processing a request.
type brokerWorker struct {
	broker        *Broker
	idString      string
	identity      string
	service       *Service
	expiry        time.Time
	totalRequests int64
}

// WorkerInfo summarizes one connected worker for introspection.
type WorkerInfo struct {
	ID            string `json:"id"`
	Identity      string `json:"identity"`
	ServiceName   string `json:"service_name"`
	TotalRequests int64  `json:"total_requests"`
}

// NewBroker creates a broker that will bind to endpoint on Bind, using an
// in-memory request store. Call Broker.UsePersistence to swap in a
// durable store before Bind.
func NewBroker(endpoint string) (broker *Broker, err error) {
	requestManager := NewRequestManager(NewMemoryPersistenceStore())

	broker = &Broker{
		endpoint:       endpoint,
		services:       make(map[string]*Service),
		workers:        make(map[string]*brokerWorker),
		Waiting:        make([]*brokerWorker, 0),
		HeartbeatAt:    time.Now().Add(HeartbeatInterval),
		startTime:      time.Now(),
		blacklist:      make(map[string]map[string]bool),
		ErrorChannel:   make(chan error, 1),
		EventChannel:   make(chan Event, 16),
		requestManager: requestManager,
		cleanupTicker:  time.NewTicker(1 * time.Minute),
	}
	broker.mmi = NewMMIHandler(broker)

	go broker.cleanupExpiredRequests()

	return
}

// UsePersistence swaps the broker's request persistence store. Must be
// called before Bind. Pass a *BoltPersistenceStore for durability across
// restarts (cmd/qmq-broker does this when qconfig.BrokerConfig.SnapshotStore
// is set).
func (b *Broker) UsePersistence(store PersistenceStore) {
	if b.requestManager != nil {
		_ = b.requestManager.Close()
	}
	b.requestManager = NewRequestManager(store)
}

// BlacklistCommand blocks requests to service whose first body frame is
// command; the broker answers them with NAK instead of dispatching.
func (b *Broker) BlacklistCommand(service, command string) {
	if b.blacklist[service] == nil {
		b.blacklist[service] = make(map[string]bool)
	}
	b.blacklist[service][command] = true
}

// AllowCommand removes a previously blacklisted command for service.
func (b *Broker) AllowCommand(service, command string) {
	if commands, ok := b.blacklist[service]; ok {
		delete(commands, command)
	}
}

func (b *Broker) isCommandBlocked(service string, msg []string) bool {
	commands, ok := b.blacklist[service]
	if !ok || len(msg) == 0 {
		return false
	}
	return commands[msg[0]]
}

// GetWorkerInfo returns summary information for all connected workers.
func (b *Broker) GetWorkerInfo() []WorkerInfo {
	info := make([]WorkerInfo, 0, len(b.workers))
	for _, worker := range b.workers {
		name := ""
		if worker.service != nil {
			name = worker.service.name
		}
		info = append(info, WorkerInfo{
			ID:            worker.idString,
			Identity:      worker.identity,
			ServiceName:   name,
			TotalRequests: worker.totalRequests,
		})
	}
	return info
}

// Close unbinds the broker's socket and releases its resources.
func (b *Broker) Close() (err error) {
	if b.cleanupTicker != nil {
		b.cleanupTicker.Stop()
	}
	if b.requestManager != nil {
		_ = b.requestManager.Close()
	}

	if b.isBound && b.Socket != nil {
		err = b.Socket.Unbind(b.endpoint)
		b.Socket.Destroy()
		b.Socket = nil
		b.isBound = false
	}

	return
}

func (b *Broker) cleanupExpiredRequests() {
	for range b.cleanupTicker.C {
		if store, ok := b.requestManager.store.(*MemoryPersistenceStore); ok {
			if removed := store.CleanupExpiredRequests(); removed > 0 {
				log.WithField("expired_requests", removed).Debug("cleaned up expired requests")
			}
		}
	}
}

// Bind binds the broker's ROUTER socket to its endpoint. A single socket
// serves both clients and workers.
func (b *Broker) Bind() (err error) {
	b.Socket, err = czmq.NewRouter(b.endpoint)
	if err != nil {
		b.ErrorChannel <- err
		log.WithFields(log.Fields{"endpoint": b.endpoint}).Error("broker failed to bind")
		return err
	}

	b.Socket.SetOption(czmq.SockSetRcvhwm(500000))
	runtime.SetFinalizer(b, (*Broker).Close)

	b.isBound = true

	go func() {
		b.EventChannel <- NewBrokerEvent(fmt.Sprintf("broker bound to endpoint %s", b.endpoint))
	}()

	log.WithFields(log.Fields{"endpoint": b.endpoint}).Info("broker active")
	return nil
}

// Run drives the broker's request/reply and heartbeat loop until the
// socket is closed or a poll error occurs. done is signalled on exit.
func (b *Broker) Run(done chan bool) {
	poller, _ := czmq.NewPoller(b.Socket)
	defer poller.Destroy()

	log.Debug("starting broker")
	for {
		socket, err := poller.Wait(int(HeartbeatInterval / time.Millisecond))
		if err != nil {
			break
		}

		if socket != nil {
			recv, _ := socket.RecvMessage()
			msg := byte2DToStringArray(recv)

			if len(msg) > 0 {
				var sender string
				sender, msg = popStr(msg)
				_, msg = popStr(msg) // empty delimiter

				header := ""
				if len(msg) > 0 {
					header = msg[0]
				}

				switch header {
				case MdpClient:
					if err := validateClientMessage(msg); err != nil {
						log.WithFields(log.Fields{"sender": sender, "error": err}).Warn("dropping malformed client message")
						continue
					}
					_, body := popStr(msg)
					b.ClientMsg(sender, body)
				case MdpWorker:
					if err := validateWorkerMessage(msg); err != nil {
						log.WithFields(log.Fields{"sender": sender, "error": err}).Warn("dropping malformed worker message")
						continue
					}
					_, body := popStr(msg)
					b.WorkerMsg(sender, body)
				default:
					log.WithFields(log.Fields{"header": header, "sender": sender}).Warn("invalid message header")
				}
			}
		}

		if time.Now().After(b.HeartbeatAt) {
			b.Purge()
			for _, worker := range b.Waiting {
				if err := worker.Send(MdpwHeartbeat, "", nil); err != nil {
					b.ErrorChannel <- err
					log.WithError(err).Error("failed to send heartbeat")
				}
			}
			b.HeartbeatAt = time.Now().Add(HeartbeatInterval)
		}
	}

	done <- true
}

// WorkerMsg processes one READY, REPORT, HEARTBEAT or DISCONNECT message
// sent by a worker.
func (b *Broker) WorkerMsg(sender string, msg []string) {
	if len(msg) == 0 {
		log.Error("zero length worker message")
		return
	}

	var command string
	command, msg = popStr(msg)

	idString := fmt.Sprintf("%q", sender)
	_, workerKnown := b.workers[idString]
	worker := b.workerRequire(sender)
	worker.totalRequests++

	switch command {
	case MdpwReady:
		switch {
		case workerKnown:
			worker.Delete(true)
		case len(msg) == 0 || IsMMIService(msg[0]):
			worker.Delete(true)
		default:
			worker.service = b.ServiceRequire(msg[0])
			worker.Waiting()
		}
	case MdpwReport:
		if !workerKnown {
			worker.Delete(true)
			return
		}
		client, body := unwrap(msg)
		reply := append([]string{client, "", MdpClient, MdpcReport, worker.service.name}, body...)
		if err := b.Socket.SendMessage(stringArrayToByte2D(reply)); err != nil {
			b.ErrorChannel <- err
			log.WithError(err).Error("failed to send report to client")
			return
		}
		worker.Waiting()
	case MdpwHeartbeat:
		if workerKnown {
			b.moveWaitingToTail(worker)
			worker.expiry = time.Now().Add(HeartbeatExpiry)
		} else {
			worker.Delete(true)
		}
	case MdpwDisconnect:
		worker.Delete(false)
	default:
		err := errors.New("invalid worker command " + command)
		b.ErrorChannel <- err
		log.Error(err)
	}
}

// ClientMsg processes a request from a client: mmi.* services are
// answered internally, everything else is queued for dispatch.
func (b *Broker) ClientMsg(sender string, msg []string) {
	if len(msg) < 1 {
		err := errors.New("client message missing service frame")
		b.ErrorChannel <- err
		log.Error(err)
		return
	}

	var serviceName string
	serviceName, msg = popStr(msg)

	if IsMMIService(serviceName) {
		response, _ := b.mmi.HandleRequest(serviceName, msg)
		reply := append([]string{sender, "", MdpClient, MdpcReport, serviceName}, response...)
		if err := b.Socket.SendMessage(stringArrayToByte2D(reply)); err != nil {
			b.ErrorChannel <- err
			log.WithError(err).Error("failed to send MMI reply")
		}
		return
	}

	if b.isCommandBlocked(serviceName, msg) {
		reply := []string{sender, "", MdpClient, MdpcNak, serviceName}
		if err := b.Socket.SendMessage(stringArrayToByte2D(reply)); err != nil {
			b.ErrorChannel <- err
			log.WithError(err).Error("failed to send NAK to client")
		}
		return
	}

	service := b.ServiceRequire(serviceName)

	request, err := b.requestManager.CreateRequest(sender, serviceName, msg)
	if err != nil {
		b.ErrorChannel <- err
		log.WithError(err).Error("failed to persist request")
	} else if err := b.requestManager.MarkRequestProcessing(request.ID); err != nil {
		log.WithError(err).Warn("failed to mark request processing")
	}

	envelope := wrap(sender, msg)
	service.Dispatch(envelope)
}

// Purge deletes any idle workers that haven't sent a heartbeat in a
// while. Workers are held oldest-first so scanning can stop at the first
// live worker.
func (b *Broker) Purge() {
	now := time.Now()
	for len(b.Waiting) > 0 {
		if b.Waiting[0].expiry.After(now) {
			break
		}
		log.WithField("worker", b.Waiting[0].idString).Debug("purging expired worker")
		b.Waiting[0].Delete(false)
	}
}

// ServiceRequire returns the named service, creating it if this is the
// first time it has been seen.
func (b *Broker) ServiceRequire(name string) (service *Service) {
	service, ok := b.services[name]
	if !ok {
		service = &Service{broker: b, name: name}
		b.services[name] = service
		log.WithField("service", name).Debug("registered new service")
	}
	return
}

// Dispatch queues msg (if non-nil) and sends as many queued requests as
// possible to idle workers, round-robin over the waiting FIFO.
func (s *Service) Dispatch(msg []string) {
	if msg != nil {
		s.requests = append(s.requests, msg)
	}

	s.broker.Purge()
	for len(s.waiting) > 0 && len(s.requests) > 0 {
		var worker *brokerWorker
		worker, s.waiting = popWorker(s.waiting)
		s.broker.Waiting = delWorker(s.broker.Waiting, worker)

		var next []string
		next, s.requests = popMsg(s.requests)
		if err := worker.Send(MdpwRequest, "", next); err != nil {
			s.broker.ErrorChannel <- err
			log.WithError(err).Error("failed to dispatch request to worker")
		}
	}
}

func (b *Broker) workerRequire(identity string) (worker *brokerWorker) {
	idString := fmt.Sprintf("%q", identity)
	worker, ok := b.workers[idString]
	if !ok {
		worker = &brokerWorker{broker: b, idString: idString, identity: identity}
		b.workers[idString] = worker
		log.WithField("id", idString).Debug("registering new worker")
	}
	return
}

// Delete removes the worker from all broker bookkeeping. If disconnect
// is set, a DISCONNECT command is sent first.
func (w *brokerWorker) Delete(disconnect bool) {
	if disconnect {
		if err := w.Send(MdpwDisconnect, "", nil); err != nil {
			w.broker.ErrorChannel <- err
			log.WithError(err).Error("failed to send disconnect to worker")
		}
	}

	if w.service != nil {
		w.service.waiting = delWorker(w.service.waiting, w)
	}
	w.broker.Waiting = delWorker(w.broker.Waiting, w)
	delete(w.broker.workers, w.idString)
}

// Send formats and sends a command to a worker. Frame layout: identity,
// empty delimiter, QMDPW0X, command, [option], body...
func (w *brokerWorker) Send(command, option string, msg []string) error {
	m := []string{w.identity, "", MdpWorker, command}
	if option != "" {
		m = append(m, option)
	}
	m = append(m, msg...)

	log.WithFields(log.Fields{"command": command, "worker": w.idString}).Trace("sending to worker")
	return w.broker.Socket.SendMessage(stringArrayToByte2D(m))
}

// Waiting marks the worker idle, queues it onto both the service and
// broker waiting lists, and attempts an immediate dispatch.
func (w *brokerWorker) Waiting() {
	w.broker.moveWaitingToTail(w)
	w.service.waiting = append(w.service.waiting, w)
	w.expiry = time.Now().Add(HeartbeatExpiry)
	w.service.Dispatch(nil)
}

// moveWaitingToTail removes w from the broker's global waiting list if
// present and appends it at the tail, mirroring mdp.cpp's
// ls_waitings.removeOne(worker); ls_waitings.append(worker). Called both
// on the idle transition (Waiting) and on every HEARTBEAT, so Purge's
// head-first scan never stops on a worker that is actually still alive.
func (b *Broker) moveWaitingToTail(w *brokerWorker) {
	for i, cur := range b.Waiting {
		if cur == w {
			b.Waiting = append(b.Waiting[:i], b.Waiting[i+1:]...)
			break
		}
	}
	b.Waiting = append(b.Waiting, w)
}
