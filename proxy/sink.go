// Sink is a SUB-side consumer of a Bus: it connects to an endpoint,
// subscribes to a topic filter, and hands each received payload to a
// pluggable SinkCallback.
//
// No implementation of the reference project's core/bus package survived
// retrieval, only sink_test.go; this file reconstructs Sink's observable
// shape (NewSink, SetHandler, Running/Stop, defaultFields, Run(ctx, wg))
// from that test and wires it onto this module's socket/qcontext
// packages rather than leaving it a stub.
package proxy

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/nowrozi/qmq/qconfig"
	"github.com/nowrozi/qmq/qcontext"
	"github.com/nowrozi/qmq/socket"
)

// SinkCallback receives each message payload a Sink reads off the bus.
type SinkCallback interface {
	Handle(data []byte) error
}

// SinkHandler wraps a SinkCallback; a struct rather than a bare function
// value so Sink's zero value has an unambiguous "no handler" state.
type SinkHandler struct {
	Callback SinkCallback
}

// Sink subscribes to one bus endpoint/filter pair.
type Sink struct {
	endpoint string
	filter   string
	handler  *SinkHandler
	running  bool
}

// NewSink returns an unstarted Sink.
func NewSink(endpoint, filter string) *Sink {
	return &Sink{endpoint: endpoint, filter: filter}
}

// SetHandler installs the callback invoked for each received message.
func (s *Sink) SetHandler(h *SinkHandler) { s.handler = h }

// Running reports whether Run's loop is currently active.
func (s *Sink) Running() bool { return s.running }

// Stop marks the Sink as no longer running; Run's loop observes this on
// its next iteration and exits.
func (s *Sink) Stop() { s.running = false }

func (s *Sink) defaultFields(err error) log.Fields {
	f := log.Fields{"endpoint": s.endpoint, "filter": s.filter}
	if err != nil {
		f["err"] = err
	}
	return f
}

// Run connects a SUB socket to endpoint, subscribes to filter, and
// delivers every received message to the handler until ctx is cancelled
// or Stop is called. wg.Done is called exactly once on return.
func (s *Sink) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	c := qcontext.New(qconfig.DefaultContextConfig())
	defer c.Close()

	sock, err := socket.New(c, socket.Sub)
	if err != nil {
		log.WithFields(s.defaultFields(err)).Error("sink: failed to create socket")
		return
	}
	if err := sock.Connect(s.endpoint); err != nil {
		log.WithFields(s.defaultFields(err)).Error("sink: failed to connect")
		return
	}
	sock.SetSubscribe(s.filter)
	sock.SetRcvTimeout(200)

	s.running = true
	log.WithFields(s.defaultFields(nil)).Info("sink: started")

	for s.running {
		select {
		case <-ctx.Done():
			s.running = false
			return
		default:
		}

		data, _, err := sock.RecvFrame()
		if err != nil {
			continue
		}
		if s.handler != nil && s.handler.Callback != nil {
			if err := s.handler.Callback.Handle(data); err != nil {
				log.WithFields(s.defaultFields(err)).Warn("sink: handler returned error")
			}
		}
	}
}
