package mdp

import (
	"fmt"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// Worker is a single MDP worker instance, bound to one service name.
type Worker struct {
	broker  string
	service string
	worker  *czmq.Sock
	poller  *czmq.Poller

	heartbeatAt time.Time
	liveness    int
	heartbeat   time.Duration
	reconnect   time.Duration

	replyTo  string
	verbose  bool
	shutdown bool
}

// NewWorker creates a new worker bound to service and connects it to
// broker.
func NewWorker(broker, service string) (w *Worker, err error) {
	w = &Worker{
		broker:    broker,
		service:   service,
		heartbeat: HeartbeatInterval,
		reconnect: HeartbeatInterval,
	}

	err = w.ConnectToBroker()
	runtime.SetFinalizer(w, (*Worker).Close)

	return
}

// SetVerbose enables trace logging of every frame sent and received.
func (w *Worker) SetVerbose(v bool) { w.verbose = v }

// SetHeartbeat sets the heartbeat send interval.
func (w *Worker) SetHeartbeat(d time.Duration) { w.heartbeat = d }

// SetReconnect sets the delay before reconnecting after the broker goes
// quiet.
func (w *Worker) SetReconnect(d time.Duration) { w.reconnect = d }

// Terminated reports whether Shutdown has been called.
func (w *Worker) Terminated() bool { return w.shutdown }

// Shutdown requests the worker's Recv loop exit after its next poll tick.
func (w *Worker) Shutdown() {
	w.shutdown = true
}

// Close releases the worker's socket.
func (w *Worker) Close() {
	if w.worker != nil {
		w.worker.Destroy()
		w.worker = nil
	}
	if w.poller != nil {
		w.poller.Destroy()
		w.poller = nil
	}
}

// ConnectToBroker connects or reconnects to the broker and sends READY.
func (w *Worker) ConnectToBroker() (err error) {
	w.Close()

	if w.worker, err = czmq.NewDealer(w.broker); err != nil {
		err = NewConnectionFailedError(w.broker, err)
		log.WithFields(log.Fields{"error": err}).Error("failed to create dealer")
		return
	}
	if w.poller, err = czmq.NewPoller(w.worker); err != nil {
		err = NewMDPError(ErrCodeSocketError, "failed to create poller", err)
		log.WithFields(log.Fields{"error": err}).Error("failed to create poller")
		return
	}

	if err = w.SendToBroker(MdpwReady, w.service, nil); err != nil {
		err = NewMDPError(ErrCodeConnectionFailed, "failed to send READY to broker", err)
		log.WithFields(log.Fields{"error": err}).Error("failed to send READY to broker")
		return
	}

	w.liveness = HeartbeatLiveness
	w.heartbeatAt = time.Now().Add(w.heartbeat)

	log.WithFields(log.Fields{"broker": w.broker, "service": w.service}).Info("worker connected to broker")
	return
}

// SendToBroker sends a command to the broker. option, if non-empty, is
// inserted between the command frame and the body (used only by READY,
// to carry the service name). Frame layout: empty delimiter, QMDPW0X,
// command, [option], body...
func (w *Worker) SendToBroker(command, option string, body []string) error {
	m := []string{"", MdpWorker, command}
	if option != "" {
		m = append(m, option)
	}
	m = append(m, body...)

	if w.verbose {
		log.WithFields(log.Fields{"command": command, "option": option}).Trace("sending to broker")
	}
	return w.worker.SendMessage(stringArrayToByte2D(m))
}

// Reply sends a REPORT back through the broker to the last client this
// worker received a REQUEST from.
func (w *Worker) Reply(body []string) error {
	if w.replyTo == "" {
		return fmt.Errorf("mdp: worker has no client to reply to")
	}
	m := wrap(w.replyTo, body)
	return w.SendToBroker(MdpwReport, "", m)
}

// Recv sends reply (if non-nil) as the REPORT for the previous request,
// then blocks until the next REQUEST arrives, handling HEARTBEAT and
// DISCONNECT transparently. It returns nil when Shutdown has been called.
func (w *Worker) Recv(reply []string) (msg []string, err error) { //nolint:cyclop
	if reply != nil {
		if err := w.Reply(reply); err != nil {
			return nil, err
		}
	}

	for {
		if w.shutdown {
			return nil, nil
		}

		socket, perr := w.poller.Wait(int(w.heartbeat / time.Millisecond))
		if perr != nil {
			return nil, fmt.Errorf("mdp: worker poll: %w", perr)
		}

		if socket == nil {
			w.liveness--
			if w.liveness <= 0 {
				log.Warn("worker disconnected from broker, retrying")
				time.Sleep(w.reconnect)
				if cerr := w.ConnectToBroker(); cerr != nil {
					if IsRetryableError(cerr) {
						log.WithError(cerr).Warn("broker reconnect failed, will retry")
						w.liveness = HeartbeatLiveness
						continue
					}
					return nil, cerr
				}
			}
		} else {
			recv, _ := socket.RecvMessage()
			frames := byte2DToStringArray(recv)

			if len(frames) > 0 {
				w.liveness = HeartbeatLiveness

				_, frames = popStr(frames) // empty delimiter
				if verr := validateWorkerMessage(frames); verr != nil {
					log.WithError(verr).Warn("received invalid worker message")
					continue
				}
				_, frames = popStr(frames) // header, already validated
				command, frames := popStr(frames)

				switch command {
				case MdpwRequest:
					w.replyTo, frames = unwrap(frames)
					return frames, nil
				case MdpwHeartbeat:
					log.Trace("worker received heartbeat")
				case MdpwDisconnect:
					if err = w.ConnectToBroker(); err != nil {
						return nil, err
					}
				default:
					log.WithField("command", command).Warn("worker received unknown command")
				}
			}
		}

		if time.Now().After(w.heartbeatAt) {
			if err = w.SendToBroker(MdpwHeartbeat, "", nil); err != nil {
				log.WithError(err).Error("failed to send heartbeat")
			}
			w.heartbeatAt = time.Now().Add(w.heartbeat)
		}
	}
}
