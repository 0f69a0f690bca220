package hub

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

type client struct {
	id      string
	address string
	name    string
}

type worker struct {
	id      string
	address string
	name    string
	expiry  time.Time
	// liveness counts down on each missed heartbeat and is restored on
	// every pong; the worker is purged once it runs out.
	liveness int
}

// Hub pairs clients and workers by registration: a registrar (ROUTER)
// handles registration and state commands, ping (PUB) / pong (ROUTER)
// track worker liveness, and notifier (PUB) announces registry changes.
// monitor (SUB) is exposed for an operator to aggregate events from
// multiple hubs but carries no hub-internal traffic.
type Hub struct {
	registrar *czmq.Sock
	ping      *czmq.Sock
	pong      *czmq.Sock
	monitor   *czmq.Sock
	notifier  *czmq.Sock

	hubID string

	registrarPort, pingPort, pongPort, monitorPort, notifierPort int

	heartbeat   time.Duration
	liveness    int
	heartbeatAt time.Time

	clients map[string]*client
	workers map[string]*worker

	terminated bool
}

// New creates a Hub and binds its five sockets to consecutive ephemeral
// ports starting at or above basePort.
func New(basePort int) (h *Hub, err error) {
	h = &Hub{
		heartbeat: DefaultHeartbeat,
		liveness:  DefaultLiveness,
		clients:   make(map[string]*client),
		workers:   make(map[string]*worker),
	}

	if h.registrar, h.registrarPort, err = bindSequential(czmq.NewRouter, basePort); err != nil {
		return nil, fmt.Errorf("hub: registrar bind: %w", err)
	}
	if h.ping, h.pingPort, err = bindSequential(czmq.NewPub, h.registrarPort+1); err != nil {
		return nil, fmt.Errorf("hub: ping bind: %w", err)
	}
	if h.pong, h.pongPort, err = bindSequential(czmq.NewRouter, h.pingPort+1); err != nil {
		return nil, fmt.Errorf("hub: pong bind: %w", err)
	}
	bindSub := func(endpoint string) (*czmq.Sock, error) { return czmq.NewSub("@"+endpoint, "") }
	if h.monitor, h.monitorPort, err = bindSequential(bindSub, h.pongPort+1); err != nil {
		return nil, fmt.Errorf("hub: monitor bind: %w", err)
	}
	if h.notifier, h.notifierPort, err = bindSequential(czmq.NewPub, h.monitorPort+1); err != nil {
		return nil, fmt.Errorf("hub: notifier bind: %w", err)
	}

	h.hubID = fmt.Sprintf("hub1:%d", h.registrarPort)
	h.heartbeatAt = time.Now().Add(h.heartbeat)

	runtime.SetFinalizer(h, (*Hub).Close)

	log.WithFields(log.Fields{
		"hub_id":    h.hubID,
		"registrar": h.registrarPort,
		"ping":      h.pingPort,
		"pong":      h.pongPort,
		"notifier":  h.notifierPort,
	}).Info("hub bound")

	return h, nil
}

// bindSequential tries consecutive ports starting at base until create
// succeeds, returning the bound socket and the port used.
func bindSequential(create func(string) (*czmq.Sock, error), base int) (*czmq.Sock, int, error) {
	for port := base; port < base+100; port++ {
		sock, err := create(fmt.Sprintf("tcp://*:%d", port))
		if err == nil {
			return sock, port, nil
		}
	}
	return nil, 0, fmt.Errorf("hub: no free port from %d", base)
}

// HubID returns the hub's identity string, carried on every ping frame.
func (h *Hub) HubID() string { return h.hubID }

// RegistrarPort, PingPort, PongPort, MonitorPort, NotifierPort expose the
// bound port numbers so clients and workers can be configured to connect.
func (h *Hub) RegistrarPort() int { return h.registrarPort }
func (h *Hub) PingPort() int      { return h.pingPort }
func (h *Hub) PongPort() int      { return h.pongPort }
func (h *Hub) MonitorPort() int   { return h.monitorPort }
func (h *Hub) NotifierPort() int  { return h.notifierPort }

// SetHeartbeat overrides the ping interval and worker expiry window.
func (h *Hub) SetHeartbeat(d time.Duration) { h.heartbeat = d }

// SetLiveness overrides the number of missed heartbeats a worker
// tolerates before being purged.
func (h *Hub) SetLiveness(liveness int) { h.liveness = liveness }

// NumberOfClients returns the count of registered clients.
func (h *Hub) NumberOfClients() int { return len(h.clients) }

// NumberOfWorkers returns the count of registered workers.
func (h *Hub) NumberOfWorkers() int { return len(h.workers) }

// Stats summarizes the hub's registry for operational introspection.
type Stats struct {
	HubID   string `json:"hub_id"`
	Clients int    `json:"clients"`
	Workers int    `json:"workers"`
}

// Stats returns a snapshot of the hub's registry counts.
func (h *Hub) Stats() Stats {
	return Stats{HubID: h.hubID, Clients: len(h.clients), Workers: len(h.workers)}
}

// Close stops the hub and destroys its sockets.
func (h *Hub) Close() error {
	h.terminated = true

	for _, sock := range []*czmq.Sock{h.registrar, h.ping, h.pong, h.monitor, h.notifier} {
		if sock != nil {
			sock.Destroy()
		}
	}
	return nil
}

// Run drives the hub's registrar/pong poll loop and heartbeat ticker
// until Stop is called or a poll error occurs. done is signalled on exit.
func (h *Hub) Run(done chan bool) {
	poller, err := czmq.NewPoller(h.registrar, h.pong)
	if err != nil {
		log.WithError(err).Error("hub: failed to create poller")
		done <- true
		return
	}
	defer poller.Destroy()

	log.WithField("hub_id", h.hubID).Debug("starting hub")

	for !h.terminated {
		socket, perr := poller.Wait(int(h.heartbeat / time.Millisecond))
		if perr != nil {
			break
		}

		switch socket {
		case h.registrar:
			h.handleRegistrar()
		case h.pong:
			h.handlePong()
		}

		if time.Now().After(h.heartbeatAt) {
			h.purge()
			h.pubPing()
			h.heartbeatAt = time.Now().Add(h.heartbeat)
		}
	}

	done <- true
}

// Stop requests the Run loop exit after its next poll tick.
func (h *Hub) Stop() { h.terminated = true }

func (h *Hub) handleRegistrar() {
	recv, err := h.registrar.RecvMessage()
	if err != nil {
		return
	}
	msg := byte2DToStringArray(recv)
	if len(msg) < 5 {
		log.WithField("frames", len(msg)).Warn("hub: short registrar message")
		return
	}

	sender, msg := msg[0], msg[1:]
	empty, msg := msg[0], msg[1:]
	if empty != "" {
		log.Warn("hub: registrar message missing empty delimiter")
		return
	}
	header, msg := msg[0], msg[1:]
	senderInfo, msg := msg[0], msg[1:]
	command := msg[0]

	switch header {
	case HeaderClient:
		h.clientQuery(sender, senderInfo, command)
	case HeaderWorker:
		h.workerRequest(sender, senderInfo, command)
	default:
		log.WithField("header", header).Warn("hub: invalid registrar header")
	}
}

// clientQuery handles one SRCL010 registrar message: CMD_REQ registers a
// new client and replies with the notifier port, CMD_STATE Disconnected
// removes it, CMD_WORKER_CMD is forwarded to the named worker, and anything
// else is ignored.
func (h *Hub) clientQuery(sender, senderInfo, command string) {
	info := strings.SplitN(senderInfo, "%", 2)
	if len(info) < 2 {
		log.WithField("sender_info", senderInfo).Warn("hub: invalid client sender info")
		return
	}
	address, name := info[0], info[1]

	code, value, err := splitCommand(command)
	if err != nil {
		log.WithError(err).Warn("hub: invalid client command")
		return
	}

	if _, known := h.clients[sender]; !known && code == CmdRequest {
		reply := []string{sender, "", HeaderClient, strconv.Itoa(CmdRequest), strconv.Itoa(h.notifierPort)}
		if err := h.registrar.SendMessage(stringArrayToByte2D(reply)); err != nil {
			log.WithError(err).Error("hub: failed to reply to client registration")
			return
		}
		h.clients[sender] = &client{id: sender, address: address, name: name}
		return
	}

	if code == CmdState && value == StateDisconnected {
		delete(h.clients, sender)
		return
	}

	if code == CmdWorkerCmd {
		h.forwardToWorker(value)
		return
	}
}

// forwardToWorker routes a CMD_WORKER_CMD payload ("<workerID>|<command>|
// <value>") to the named worker over the pong ROUTER socket, the channel
// a worker already holds an identity-bound connection on. Unlike the
// reference (whose hub-side handler never actually forwards this
// command), this is a supplemented feature: SendToWorker's contract
// promises delivery to a specific worker, not a broadcast.
func (h *Hub) forwardToWorker(payload string) {
	parts := strings.SplitN(payload, "|", 3)
	if len(parts) != 3 {
		log.WithField("payload", payload).Warn("hub: malformed worker command payload")
		return
	}
	workerID, command, value := parts[0], parts[1], parts[2]

	if _, known := h.workers[workerID]; !known {
		log.WithField("worker_id", workerID).Warn("hub: worker command target not registered")
		return
	}

	msg := []string{workerID, "", workerCommandFrame, command, value}
	if err := h.pong.SendMessage(stringArrayToByte2D(msg)); err != nil {
		log.WithError(err).Error("hub: failed to forward command to worker")
	}
}

// workerRequest handles one SRWO010 registrar message: CMD_REG registers
// a new worker, replying with the pong/ping ports, hub id, and worker id,
// then notifies clients that a worker became available.
func (h *Hub) workerRequest(sender, senderInfo, command string) {
	info := strings.SplitN(senderInfo, "%", 2)
	if len(info) < 2 {
		log.WithField("sender_info", senderInfo).Warn("hub: invalid worker sender info")
		return
	}
	address, name := info[0], info[1]

	code, _, err := splitCommand(command)
	if err != nil {
		log.WithError(err).Warn("hub: invalid worker command")
		return
	}

	if code == CmdRegister {
		reply := []string{
			sender, "", HeaderWorker, strconv.Itoa(CmdRegister),
			strconv.Itoa(h.pongPort), strconv.Itoa(h.pingPort), h.hubID, sender,
		}
		if err := h.registrar.SendMessage(stringArrayToByte2D(reply)); err != nil {
			log.WithError(err).Error("hub: failed to reply to worker registration")
			return
		}
		h.notifyClients(fmt.Sprintf("Connected Worker: %s | Worker State: avail", name))
	}

	if len(h.workers) == 0 {
		h.heartbeatAt = time.Now().Add(h.heartbeat)
	}

	if _, known := h.workers[sender]; !known {
		h.workers[sender] = &worker{
			id:       sender,
			address:  address,
			name:     name,
			expiry:   time.Now().Add(h.heartbeat),
			liveness: h.liveness,
		}
	}
}

func (h *Hub) handlePong() {
	recv, err := h.pong.RecvMessage()
	if err != nil {
		return
	}
	msg := byte2DToStringArray(recv)
	if len(msg) < 3 {
		return
	}

	sender, empty, hubID := msg[0], msg[1], msg[2]
	if empty != "" || hubID != h.hubID {
		return
	}
	if len(msg) < 4 || msg[3] != pingLiteral {
		return
	}

	if w, ok := h.workers[sender]; ok {
		w.expiry = time.Now().Add(h.heartbeat)
		w.liveness = h.liveness
	}
}

// pubPing broadcasts a liveness ping carrying the hub id, per spec.md's
// two-frame ping shape (hub id, literal "Ping").
func (h *Hub) pubPing() {
	_ = h.ping.SendFrame([]byte(h.hubID), czmq.FlagMore)
	_ = h.ping.SendFrame([]byte(pingLiteral), 0)
}

// purge decrements liveness on every expired worker and removes those
// that run out, notifying clients of the loss.
func (h *Hub) purge() {
	now := time.Now()
	for id, w := range h.workers {
		if w.expiry.Before(now) {
			w.liveness--
			if w.liveness <= 0 {
				delete(h.workers, id)
				h.notifyClients(fmt.Sprintf("disconnected Worker: %s | Worker State: lost", w.name))
			}
		}
	}
}

func (h *Hub) notifyClients(message string) {
	_ = h.notifier.SendFrame([]byte(message), czmq.FlagMore)
	_ = h.notifier.SendFrame([]byte(h.hubID), 0)
}

func splitCommand(command string) (code int, value string, err error) {
	parts := strings.SplitN(command, "-", 2)
	if len(parts) < 2 {
		return 0, "", fmt.Errorf("hub: malformed command %q", command)
	}
	code, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", fmt.Errorf("hub: non-numeric command code %q: %w", parts[0], err)
	}
	return code, parts[1], nil
}

func stringArrayToByte2D(in []string) (out [][]byte) {
	for _, str := range in {
		out = append(out, []byte(str))
	}
	return
}

func byte2DToStringArray(in [][]byte) (out []string) {
	for _, b := range in {
		out = append(out, string(b))
	}
	return
}
