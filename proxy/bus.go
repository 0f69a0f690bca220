// Bus is a context-cancellable wrapper around a Forwarder, configured
// declaratively (frontend/backend/capture endpoints) rather than through
// the low-level command pipe.
//
// No implementation of the reference project's core/bus package survived
// retrieval, only its test file; this file reconstructs the package's
// observable shape (Config fields, NewBus, Start(ctx, *sync.WaitGroup)
// error, a deprecated Run(done chan bool)) from that test and wires it
// onto this module's actual Forwarder rather than leaving it a stub.
package proxy

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/nowrozi/qmq/qcontext"
)

// Config names a Bus instance and its three endpoints.
type Config struct {
	Name     string
	Unit     string
	Backend  string
	Frontend string
	Capture  string
}

// Bus is a named SUB/PUB-style forwarder: frontend is where publishers
// connect, backend is where subscribers connect, capture (if set) taps
// every forwarded message.
type Bus struct {
	name     string
	unit     string
	backend  string
	frontend string
	capture  string

	ctx *qcontext.Context
	fwd *Forwarder
}

// NewBus builds an unstarted Bus from config.
func NewBus(config Config) *Bus {
	return &Bus{
		name:     config.Name,
		unit:     config.Unit,
		backend:  config.Backend,
		frontend: config.Frontend,
		capture:  config.Capture,
	}
}

// Start launches the underlying Forwarder, configures its XSUB/XPUB
// endpoints, and blocks until ctx is cancelled, at which point it tears
// the forwarder down and returns nil. wg.Done is called exactly once on
// return.
func (b *Bus) Start(ctx context.Context, wg *sync.WaitGroup) error {
	defer wg.Done()

	b.ctx = qcontext.Default("QMQ_BUS_" + b.name)
	fwd, err := NewForwarder(b.ctx)
	if err != nil {
		return err
	}
	b.fwd = fwd

	if b.frontend != "" {
		if err := fwd.Frontend("XSUB", b.frontend); err != nil {
			return err
		}
	}
	if b.backend != "" {
		if err := fwd.Backend("XPUB", b.backend); err != nil {
			return err
		}
	}
	if b.capture != "" {
		if err := fwd.Capture(b.capture); err != nil {
			return err
		}
	}

	log.WithField("bus", b.name).Info("bus: started")
	<-ctx.Done()

	if err := fwd.Close(); err != nil {
		log.WithField("bus", b.name).WithError(err).Warn("bus: error during shutdown")
	}
	b.ctx.Close()
	return nil
}

// Run is a deprecated entry point predating context-based cancellation:
// it runs until done receives a value, then signals done again to
// acknowledge shutdown.
func (b *Bus) Run(done chan bool) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		_ = b.Start(ctx, &wg)
	}()

	<-done
	cancel()
	wg.Wait()
	done <- true
}
