// Package proxy implements an actor-driven bidirectional message switch
// between a frontend and backend socket, with an optional capture tap and
// pause/resume control.
//
// Grounded on original_source/qmq/proxy.cpp's ProxyHandler/qproxy.
package proxy

import (
	"fmt"

	"github.com/nowrozi/qmq/actor"
	"github.com/nowrozi/qmq/poller"
	"github.com/nowrozi/qmq/qcontext"
	"github.com/nowrozi/qmq/socket"
)

// handlerState is the mutable state shared by the Proxy and Forwarder
// actor handlers; the two differ only in configure() and sSwitch's
// DEALER-delimiter behaviour.
type handlerState struct {
	ctx      *qcontext.Context
	pipe     *socket.Socket
	poll     *poller.Poller
	frontend *socket.Socket
	backend  *socket.Socket
	capture  *socket.Socket
	verbose  bool
}

func newHandlerState(ctx *qcontext.Context, pipe *socket.Socket) *handlerState {
	return &handlerState{ctx: ctx, pipe: pipe, poll: poller.New(pipe)}
}

func (h *handlerState) createSocket(typeName, endpoint string) (*socket.Socket, error) {
	t, err := socket.ParseType(typeName)
	if err != nil {
		return nil, err
	}
	s, err := socket.New(h.ctx, t)
	if err != nil {
		return nil, err
	}
	if endpoint != "" {
		if err := s.Attach(endpoint, true); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// sSwitch drains every immediately-available part from in and forwards it
// to out, preserving the more-bit chain and duplicating to capture (if
// set) before the real send. dealerDelimiter, when true, sends a single
// empty leading frame to out before the drain loop (Forwarder's rule for a
// DEALER-typed destination).
func (h *handlerState) sSwitch(in, out *socket.Socket, dealerDelimiter bool) {
	if dealerDelimiter {
		_ = out.SendFrame(nil, 1) // More
	}
	for {
		data, more, err := in.RecvFrameNoWait()
		if err != nil {
			return
		}
		sendFlags := 0
		if more {
			sendFlags = 1 // More
		}
		if h.capture != nil {
			_ = h.capture.SendFrame(append([]byte(nil), data...), sendFlags)
		}
		if err := out.SendFrame(data, sendFlags); err != nil {
			return
		}
		if !more {
			return
		}
	}
}

// Proxy is a running frontend<->backend switch controlled through its
// actor pipe's FRONTEND/BACKEND/CAPTURE/PAUSE/RESUME/VERBOSE/$TERM
// commands.
type Proxy struct {
	a *actor.Actor
}

// New starts a Proxy actor. The caller configures it via the returned
// Proxy's command helpers before traffic will flow.
func New(ctx *qcontext.Context) (*Proxy, error) {
	a, err := actor.New(ctx, proxyHandler, ctx)
	if err != nil {
		return nil, err
	}
	return &Proxy{a: a}, nil
}

func proxyHandler(pipe *socket.Socket, args interface{}) {
	ctx := args.(*qcontext.Context)
	h := newHandlerState(ctx, pipe)
	_ = pipe.Signal(0)

	terminated := false
	for !terminated {
		ready := h.poll.Wait(-1)
		if h.poll.Terminated() && ready == nil {
			break
		}
		switch ready {
		case pipe:
			terminated = h.handlePipe(false)
		case h.frontend:
			h.sSwitch(h.frontend, h.backend, false)
		case h.backend:
			h.sSwitch(h.backend, h.frontend, false)
		}
	}
}

// handlePipe processes one command from the actor pipe. forwarderRules
// selects Forwarder-specific FRONTEND/BACKEND semantics (SUBSCRIBER/SETID
// sub-commands, DEALER delimiter). It returns true once "$TERM" is seen.
func (h *handlerState) handlePipe(forwarderRules bool) bool {
	parts, err := h.pipe.RecvMessage()
	if err != nil || len(parts) == 0 {
		return true
	}
	cmd := string(parts[0])
	rest := parts[1:]

	switch cmd {
	case "FRONTEND":
		h.configure(&h.frontend, rest, forwarderRules)
		_ = h.pipe.Signal(0)
	case "BACKEND":
		h.configure(&h.backend, rest, forwarderRules)
		_ = h.pipe.Signal(0)
	case "CAPTURE":
		cap, err := h.createSocket("PUSH", "")
		if err == nil && len(rest) > 0 {
			_ = cap.Connect(string(rest[0]))
		}
		h.capture = cap
		_ = h.pipe.Signal(0)
	case "PAUSE":
		h.poll = poller.New(h.pipe)
		_ = h.pipe.Signal(0)
	case "RESUME":
		items := []*socket.Socket{h.pipe}
		if h.frontend != nil {
			items = append(items, h.frontend)
		}
		if h.backend != nil {
			items = append(items, h.backend)
		}
		h.poll = poller.New(items...)
		_ = h.pipe.Signal(0)
	case "VERBOSE":
		h.verbose = true
		_ = h.pipe.Signal(0)
	case "$TERM":
		return true
	default:
		panic(fmt.Sprintf("proxy: invalid command: %s", cmd))
	}
	return false
}

// configure handles a FRONTEND/BACKEND command for the non-Forwarder
// (plain Proxy) case: type, endpoint.
func (h *handlerState) configure(slot **socket.Socket, rest [][]byte, forwarderRules bool) {
	if !forwarderRules {
		if len(rest) < 2 {
			panic("proxy: configure requires type and endpoint")
		}
		typeName := string(rest[0])
		endpoint := string(rest[1])
		s, err := h.createSocket(typeName, endpoint)
		if err != nil {
			panic(fmt.Sprintf("proxy: invalid endpoints %q: %v", endpoint, err))
		}
		*slot = s
		h.poll.Append(s)
		return
	}
	h.configureForwarder(slot, rest)
}

// Close sends "$TERM" and waits for the actor to finish.
func (p *Proxy) Close() error { return p.a.Close() }

// Frontend configures the proxy's frontend socket (type, endpoint) and
// blocks for acknowledgement.
func (p *Proxy) Frontend(typeName, endpoint string) error {
	return p.sendConfig("FRONTEND", typeName, endpoint)
}

// Backend configures the proxy's backend socket (type, endpoint) and
// blocks for acknowledgement.
func (p *Proxy) Backend(typeName, endpoint string) error {
	return p.sendConfig("BACKEND", typeName, endpoint)
}

// Capture attaches a PUSH capture tap connected to endpoint.
func (p *Proxy) Capture(endpoint string) error {
	if err := p.a.Pipe().SendMessage([][]byte{[]byte("CAPTURE"), []byte(endpoint)}); err != nil {
		return err
	}
	p.a.Pipe().Wait()
	return nil
}

// Pause stops forwarding traffic, leaving only the control pipe polled.
func (p *Proxy) Pause() error { return p.sendSimple("PAUSE") }

// Resume restores frontend/backend polling.
func (p *Proxy) Resume() error { return p.sendSimple("RESUME") }

// Verbose enables trace logging in the actor handler.
func (p *Proxy) Verbose() error { return p.sendSimple("VERBOSE") }

func (p *Proxy) sendConfig(cmd, typeName, endpoint string) error {
	if err := p.a.Pipe().SendMessage([][]byte{[]byte(cmd), []byte(typeName), []byte(endpoint)}); err != nil {
		return err
	}
	p.a.Pipe().Wait()
	return nil
}

func (p *Proxy) sendSimple(cmd string) error {
	if err := p.a.Pipe().SendFrame([]byte(cmd), 0); err != nil {
		return err
	}
	p.a.Pipe().Wait()
	return nil
}
