package hub

import (
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// Worker registers with a Hub's registrar and answers its liveness pings
// on the pong socket. Unlike the reference implementation's ActorSocket
// forwarder, the heartbeat exchange here runs inline in StartHeartbeat's
// goroutine against a czmq poller rather than a separate reactor actor:
// a worker only ever does two things (wait for a ping, answer it), which
// does not need the reactor's multi-socket dispatch machinery.
type Worker struct {
	address string
	name    string

	registrar *czmq.Sock
	ping      *czmq.Sock
	pong      *czmq.Sock

	hubID    string
	workerID string

	// Commands receives CMD_WORKER_CMD payloads a client forwarded to
	// this worker via Client.SendToWorker. Buffered so StartHeartbeat's
	// goroutine never blocks delivering one.
	Commands chan Command

	stop chan struct{}
	done chan struct{}
}

// Command is a command forwarded to a worker from a client via the hub.
type Command struct {
	Name  string
	Value string
}

// NewWorker creates a Worker identified by address and name.
func NewWorker(address, name string) *Worker {
	return &Worker{address: address, name: name, Commands: make(chan Command, 8)}
}

// RegisterToHub dials the hub's registrar at endpoint, registers the
// worker (CMD_REG), and connects to the returned ping/pong ports.
func (w *Worker) RegisterToHub(endpoint string, timeout time.Duration) error {
	var err error
	w.registrar, err = czmq.NewDealer(endpoint)
	if err != nil {
		return fmt.Errorf("hub worker: dealer connect: %w", err)
	}

	if err := w.requestToHub(CmdRegister, ""); err != nil {
		return err
	}

	recv, err := recvWithTimeout(w.registrar, timeout)
	if err != nil {
		return fmt.Errorf("hub worker: registration reply: %w", err)
	}
	msg := byte2DToStringArray(recv)
	if len(msg) > 0 && msg[0] == "" {
		msg = msg[1:] // empty delimiter echoed back by the registrar ROUTER
	}
	if len(msg) < 6 || msg[0] != HeaderWorker || msg[1] != strconv.Itoa(CmdRegister) {
		return fmt.Errorf("hub worker: malformed registration reply %v", msg)
	}

	pongPort, err := strconv.Atoi(msg[2])
	if err != nil {
		return fmt.Errorf("hub worker: invalid pong port %q: %w", msg[2], err)
	}
	pingPort, err := strconv.Atoi(msg[3])
	if err != nil {
		return fmt.Errorf("hub worker: invalid ping port %q: %w", msg[3], err)
	}
	w.hubID = msg[4]
	w.workerID = msg[5]

	if w.pong, err = czmq.NewDealer(endpointWithPort(endpoint, pongPort)); err != nil {
		return fmt.Errorf("hub worker: pong connect: %w", err)
	}
	if err := w.pong.SetOption(czmq.SockSetIdentity(w.workerID)); err != nil {
		return fmt.Errorf("hub worker: pong set identity: %w", err)
	}
	if w.ping, err = czmq.NewSub(endpointWithPort(endpoint, pingPort), w.hubID); err != nil {
		return fmt.Errorf("hub worker: ping connect: %w", err)
	}

	return nil
}

// HubID and WorkerID report the identifiers assigned during registration.
func (w *Worker) HubID() string    { return w.hubID }
func (w *Worker) WorkerID() string { return w.workerID }

// StartHeartbeat launches the ping/pong answering loop in a goroutine.
// StopHeartbeat ends the loop.
func (w *Worker) StartHeartbeat() {
	w.stop = make(chan struct{})
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)

		poller, err := czmq.NewPoller(w.ping, w.pong)
		if err != nil {
			log.WithError(err).Error("hub worker: failed to create heartbeat poller")
			return
		}
		defer poller.Destroy()

		for {
			select {
			case <-w.stop:
				return
			default:
			}

			socket, err := poller.Wait(int(DefaultHeartbeat / time.Millisecond))
			if err != nil {
				return
			}

			switch socket {
			case w.ping:
				w.handlePing()
			case w.pong:
				w.handlePongMessage()
			}
		}
	}()
}

func (w *Worker) handlePing() {
	recv, err := w.ping.RecvMessage()
	if err != nil {
		return
	}
	msg := byte2DToStringArray(recv)
	if len(msg) != 2 || msg[0] != w.hubID || msg[1] != pingLiteral {
		return
	}

	reply := []string{"", w.hubID, pingLiteral}
	if err := w.pong.SendMessage(stringArrayToByte2D(reply)); err != nil {
		log.WithError(err).Warn("hub worker: failed to answer ping")
	}
}

// handlePongMessage receives either an echoed ping or a forwarded
// CMD_WORKER_CMD on the pong DEALER, dispatching the latter to Commands.
func (w *Worker) handlePongMessage() {
	recv, err := w.pong.RecvMessage()
	if err != nil {
		return
	}
	msg := byte2DToStringArray(recv)
	if len(msg) < 2 || msg[0] != "" {
		return
	}
	msg = msg[1:]

	if len(msg) == 2 && msg[0] == w.hubID && msg[1] == pingLiteral {
		return // our own pong reply, not a forwarded command
	}

	if len(msg) == 3 && msg[0] == workerCommandFrame {
		select {
		case w.Commands <- Command{Name: msg[1], Value: msg[2]}:
		default:
			log.Warn("hub worker: command channel full, dropping forwarded command")
		}
	}
}

// StopHeartbeat ends the heartbeat goroutine and waits for it to exit.
func (w *Worker) StopHeartbeat() {
	if w.stop == nil {
		return
	}
	close(w.stop)
	<-w.done
}

// Close destroys the worker's sockets.
func (w *Worker) Close() error {
	w.StopHeartbeat()
	for _, sock := range []*czmq.Sock{w.registrar, w.ping, w.pong} {
		if sock != nil {
			sock.Destroy()
		}
	}
	return nil
}

func (w *Worker) requestToHub(command int, value string) error {
	cmd := fmt.Sprintf("%d-%s", command, value)
	senderInfo := fmt.Sprintf("%s%%%s", w.address, w.name)
	msg := []string{"", HeaderWorker, senderInfo, cmd}
	if err := w.registrar.SendMessage(stringArrayToByte2D(msg)); err != nil {
		return fmt.Errorf("hub worker: send: %w", err)
	}
	return nil
}
