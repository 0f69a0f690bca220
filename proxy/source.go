// Source is the PUB-side producer half of a Bus: it binds an endpoint and
// publishes every queued message, each prefixed by an envelope topic.
//
// No implementation of the reference project's core/bus package survived
// retrieval, only source_test.go; this file reconstructs Source's
// observable shape (NewSource, Running/Stop, QueueMessage, Shutdown,
// the shutdownCommand sentinel, Run(ctx, wg)) from that test and wires
// it onto this module's socket/qcontext packages.
package proxy

import (
	"bytes"
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/nowrozi/qmq/qconfig"
	"github.com/nowrozi/qmq/qcontext"
	"github.com/nowrozi/qmq/socket"
)

// shutdownCommand is the sentinel payload Shutdown puts on
// the internal queue to ask Run's loop to stop.
var shutdownCommand = []byte{0x0D, 0x0E, 0x0A, 0x0D}

// Source publishes queued messages under one envelope topic.
type Source struct {
	endpoint string
	envelope string
	queue    chan []byte
	running  bool
}

// NewSource returns an unstarted Source.
func NewSource(endpoint, envelope string) *Source {
	return &Source{
		endpoint: endpoint,
		envelope: envelope,
		queue:    make(chan []byte, 64),
	}
}

// Running reports whether Run's loop is currently active.
func (s *Source) Running() bool { return s.running }

// Stop marks the Source as no longer running, without touching the queue.
func (s *Source) Stop() { s.running = false }

func (s *Source) defaultFields(err error) log.Fields {
	f := log.Fields{"endpoint": s.endpoint, "envelope": s.envelope}
	if err != nil {
		f["err"] = err
	}
	return f
}

// QueueMessage enqueues a payload for publication. It panics if the
// Source is not running, matching the reference's "cannot queue onto a
// stopped source" invariant.
func (s *Source) QueueMessage(data []byte) {
	if !s.running {
		panic("proxy: QueueMessage called on a stopped Source")
	}
	s.queue <- data
}

// Shutdown requests the Run loop stop, but only if it is currently
// running; it is a no-op otherwise.
func (s *Source) Shutdown() {
	if !s.running {
		return
	}
	s.queue <- shutdownCommand
}

// Run binds a PUB socket to endpoint and publishes every queued message,
// each as two frames: the envelope topic, then the payload. It stops on
// ctx cancellation or a shutdownCommand queue entry. wg.Done is called
// exactly once on return.
func (s *Source) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	c := qcontext.New(qconfig.DefaultContextConfig())
	defer c.Close()

	sock, err := socket.New(c, socket.Pub)
	if err != nil {
		log.WithFields(s.defaultFields(err)).Error("source: failed to create socket")
		return
	}
	if _, err := sock.Bind(s.endpoint); err != nil {
		log.WithFields(s.defaultFields(err)).Error("source: failed to bind")
		return
	}

	s.running = true
	log.WithFields(s.defaultFields(nil)).Info("source: started")

	for {
		select {
		case <-ctx.Done():
			s.running = false
			return
		case msg := <-s.queue:
			if bytes.Equal(msg, shutdownCommand) {
				s.running = false
				return
			}
			_ = sock.SendFrame([]byte(s.envelope), 1) // More
			_ = sock.SendFrame(msg, 0)
		}
	}
}
