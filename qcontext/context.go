// Package qcontext implements the process-wide or shadowed messaging
// context: socket registry, default high-water marks, and orderly teardown.
//
// Grounded on spec.md §4.A and original_source's srnet/QMNet singleton
// pattern, recast per the Design Notes as an explicit value passed by
// reference rather than an implicit global.
package qcontext

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/nowrozi/qmq/qconfig"
)

// closer is implemented by every socket a Context tracks.
type closer interface {
	Close() error
	Endpoint() string
}

// Context owns a list of live sockets and the default options applied to
// every socket created through it. Every live socket is present in exactly
// one Context's registry; Context.Close tears down every remaining socket
// with the configured linger.
type Context struct {
	mu      sync.Mutex
	sockets map[closer]struct{}

	cfg qconfig.ContextConfig

	ioThreadsConfigured bool
}

// New builds a Context from cfg. IOThreads may only be reconfigured before
// any socket has been created through this Context; attempting to do so
// afterward is a programmer error and panics, per spec.md §7's fatal
// classification of misuse of configuration invariants.
func New(cfg qconfig.ContextConfig) *Context {
	return &Context{
		sockets: make(map[closer]struct{}),
		cfg:     cfg,
	}
}

// Default builds a Context from environment-variable overrides under the
// given prefix. This is the explicit analogue of the reference singleton
// context: constructed once by a command's main(), not implicitly.
func Default(prefix string) *Context {
	return New(qconfig.LoadContextConfigFromEnv(prefix))
}

// Options returns the default socket options new sockets should apply.
func (c *Context) Options() qconfig.ContextConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ioThreadsConfigured = true
	return c.cfg
}

// SetIOThreads reconfigures the IO-thread count. It panics if any socket has
// already been registered or Options() already observed, matching spec.md
// §4.A's "fails fatal only on a reconfiguration of IO-threads after sockets
// have been created."
func (c *Context) SetIOThreads(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sockets) > 0 || c.ioThreadsConfigured {
		panic(fmt.Sprintf("qcontext: cannot reconfigure IO threads to %d after sockets exist", n))
	}
	c.cfg.IOThreads = n
}

// Register adds a socket to the Context's live-socket list. Called by
// socket.New once a socket is constructed.
func (c *Context) Register(s closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sockets[s] = struct{}{}
}

// Deregister removes a socket from the registry without closing it. Called
// by a socket's own Close once it has torn itself down.
func (c *Context) Deregister(s closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sockets, s)
}

// Close tears down every socket still registered, applying the configured
// linger, then clears the registry.
func (c *Context) Close() {
	c.mu.Lock()
	sockets := make([]closer, 0, len(c.sockets))
	for s := range c.sockets {
		sockets = append(sockets, s)
	}
	c.sockets = make(map[closer]struct{})
	c.mu.Unlock()

	for _, s := range sockets {
		if err := s.Close(); err != nil {
			log.WithField("endpoint", s.Endpoint()).WithError(err).
				Warn("qcontext: error closing socket during teardown")
		}
	}
}

// SocketCount returns the number of currently registered sockets.
func (c *Context) SocketCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sockets)
}
