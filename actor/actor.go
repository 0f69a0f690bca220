// Package actor implements a worker goroutine paired with a bidirectional
// inproc control pipe: an init handshake, application messages relayed
// through the pipe, and a cooperative `$TERM` shutdown.
//
// Grounded on original_source/qmq/actor.cpp's Shim/ActorSocket pair.
package actor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nowrozi/qmq/qcontext"
	"github.com/nowrozi/qmq/socket"
)

// Handler is run on its own goroutine with the worker side of the pipe. It
// must send an init signal (pipe.Signal(0)) before doing any blocking work,
// and must exit when it reads a "$TERM" command from the pipe.
type Handler func(pipe *socket.Socket, args interface{})

var pipeSeq int64

// Actor pairs a Handler goroutine with a caller-owned control socket.
type Actor struct {
	caller *socket.Socket
	done   chan struct{}
	once   sync.Once
}

// New spawns handler on its own goroutine, connected to the caller side by
// an inproc PAIR pipe, and blocks until the handler signals successful
// initialization.
func New(ctx *qcontext.Context, handler Handler, args interface{}) (*Actor, error) {
	endpoint := fmt.Sprintf("inproc://qmq-actor-%d", atomic.AddInt64(&pipeSeq, 1))

	workerSide, err := socket.New(ctx, socket.Pair)
	if err != nil {
		return nil, err
	}
	if _, err := workerSide.Bind(endpoint); err != nil {
		return nil, err
	}

	callerSide, err := socket.New(ctx, socket.Pair)
	if err != nil {
		return nil, err
	}
	if err := callerSide.Connect(endpoint); err != nil {
		return nil, err
	}

	a := &Actor{caller: callerSide, done: make(chan struct{})}

	go func() {
		handler(workerSide, args)
		// Do not block if the caller side has already gone away.
		workerSide.SetSndTimeout(0)
		_ = workerSide.Signal(0)
		close(a.done)
	}()

	// Block until the handler's own init signal arrives.
	callerSide.Wait()

	return a, nil
}

// Pipe returns the caller-side control socket, for sending commands and
// receiving replies.
func (a *Actor) Pipe() *socket.Socket { return a.caller }

// Endpoint satisfies qcontext.closer.
func (a *Actor) Endpoint() string { return a.caller.Endpoint() }

// Close sends "$TERM" with a zero send-timeout, waits for the handler's
// destruct signal, and releases the caller-side socket. Safe to call more
// than once.
func (a *Actor) Close() error {
	var closeErr error
	a.once.Do(func() {
		a.caller.SetSndTimeout(0)
		if err := a.caller.SendFrame([]byte("$TERM"), 0); err == nil {
			a.caller.Wait()
		}
		<-a.done
		closeErr = a.caller.Close()
	})
	return closeErr
}

// echoHandler is a minimal reference Handler used by this package's own
// tests, mirroring the reference echo_actor selftest: it expects the
// string "Hello, World" as args, replies to "ECHO" by echoing the message
// back unchanged, and terminates on "$TERM".
func echoHandler(pipe *socket.Socket, args interface{}) {
	if s, _ := args.(string); s != "Hello, World" {
		panic("actor: echoHandler given unexpected args")
	}
	_ = pipe.Signal(0)

	for {
		parts, err := pipe.RecvMessage()
		if err != nil || len(parts) == 0 {
			return
		}
		switch string(parts[0]) {
		case "$TERM":
			return
		case "ECHO":
			_ = pipe.SendMessage(parts[1:])
		default:
			panic("actor: invalid message to actor")
		}
	}
}
