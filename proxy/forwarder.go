// Forwarder variant of the proxy actor: FRONTEND/BACKEND take an extra
// SUBSCRIBER/SETID sub-command form, and traffic switched onto a
// DEALER-typed destination (backend or frontend) is preceded by a single
// empty delimiter frame per switch call.
//
// Grounded on original_source/qmq/forwarder.cpp's ForwarderHandler/qforwarder.
package proxy

import (
	"fmt"

	"github.com/nowrozi/qmq/actor"
	"github.com/nowrozi/qmq/poller"
	"github.com/nowrozi/qmq/qcontext"
	"github.com/nowrozi/qmq/socket"
)

// Forwarder is a running frontend<->backend switch with subscription/
// identity configuration support, for SUB/DEALER-style topologies.
type Forwarder struct {
	a *actor.Actor
}

// NewForwarder starts a Forwarder actor.
func NewForwarder(ctx *qcontext.Context) (*Forwarder, error) {
	a, err := actor.New(ctx, forwarderHandler, ctx)
	if err != nil {
		return nil, err
	}
	return &Forwarder{a: a}, nil
}

func forwarderHandler(pipe *socket.Socket, args interface{}) {
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
			terminated = h.handlePipe(true)
		case h.frontend:
			h.sSwitch(h.frontend, h.backend, h.backend != nil && h.backend.Type() == socket.Dealer)
		case h.backend:
			h.sSwitch(h.backend, h.frontend, h.frontend != nil && h.frontend.Type() == socket.Dealer)
		}
	}
}

// configureForwarder implements the FRONTEND/BACKEND command body specific
// to the Forwarder: "type endpoint1 [endpoint2]", where endpoint1 of
// "SUBSCRIBER" or "SETID" is a sub-command applied to the socket's topic
// filter or identity rather than an attach target.
func (h *handlerState) configureForwarder(slot **socket.Socket, rest [][]byte) {
	if len(rest) < 1 {
		panic("proxy: forwarder configure requires at least a type")
	}
	typeName := string(rest[0])
	endpoint1 := ""
	endpoint2 := ""
	if len(rest) > 1 {
		endpoint1 = string(rest[1])
	}
	if len(rest) > 2 {
		endpoint2 = string(rest[2])
	}
	if endpoint2 == "" {
		endpoint2 = endpoint1
	}

	if *slot == nil {
		s, err := h.createSocket(typeName, "")
		if err != nil {
			panic(fmt.Sprintf("forwarder: invalid socket type %q", typeName))
		}
		*slot = s
		h.poll.Append(s)
	}

	switch endpoint1 {
	case "SUBSCRIBER":
		(*slot).SetSubscribe(endpoint2)
		return
	case "SETID":
		(*slot).SetIdentity(endpoint2)
		return
	default:
		if err := (*slot).Attach(endpoint2, true); err != nil {
			h.poll.Remove(*slot)
		}
	}
}

// Close sends "$TERM" and waits for the actor to finish.
func (f *Forwarder) Close() error { return f.a.Close() }

// Frontend configures the forwarder's frontend: type, then either an
// attach endpoint or a "SUBSCRIBER"/"SETID" sub-command plus its value.
func (f *Forwarder) Frontend(typeName string, rest ...string) error {
	return f.sendConfig("FRONTEND", typeName, rest)
}

// Backend configures the forwarder's backend, same grammar as Frontend.
func (f *Forwarder) Backend(typeName string, rest ...string) error {
	return f.sendConfig("BACKEND", typeName, rest)
}

// Capture attaches a PUSH capture tap connected to endpoint.
func (f *Forwarder) Capture(endpoint string) error {
	if err := f.a.Pipe().SendMessage([][]byte{[]byte("CAPTURE"), []byte(endpoint)}); err != nil {
		return err
	}
	f.a.Pipe().Wait()
	return nil
}

func (f *Forwarder) sendConfig(cmd, typeName string, rest []string) error {
	parts := [][]byte{[]byte(cmd), []byte(typeName)}
	for _, r := range rest {
		parts = append(parts, []byte(r))
	}
	if err := f.a.Pipe().SendMessage(parts); err != nil {
		return err
	}
	f.a.Pipe().Wait()
	return nil
}
