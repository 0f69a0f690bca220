// Package monitor implements an actor that translates transport-level
// socket events (connect, bind, accept, disconnect, ...) into a structured
// three-frame event stream: name, value, address.
//
// Grounded on original_source/qmq/actor.cpp's MonitorHandler/qmonitor,
// wired onto goczmq's native Monitor type rather than a raw
// zmq_socket_monitor reimplementation, since the transport dependency
// already exposes this capability directly.
package monitor

import (
	"fmt"
	"strconv"

	czmq "github.com/zeromq/goczmq/v4"

	"github.com/nowrozi/qmq/actor"
	"github.com/nowrozi/qmq/poller"
	"github.com/nowrozi/qmq/qcontext"
	"github.com/nowrozi/qmq/socket"
)

// Monitor wraps a running monitor actor observing one socket's lifecycle
// events.
type Monitor struct {
	a *actor.Actor
}

type monitorArgs struct {
	ctx     *qcontext.Context
	monitor *socket.Socket
}

// New starts a Monitor actor observing target. Callers must Listen for the
// event names they care about and then Start before any events are
// delivered, mirroring the reference API.
func New(ctx *qcontext.Context, target *socket.Socket) (*Monitor, error) {
	a, err := actor.New(ctx, monitorHandler, &monitorArgs{ctx: ctx, monitor: target})
	if err != nil {
		return nil, err
	}
	return &Monitor{a: a}, nil
}

// Close sends "$TERM" and waits for the actor to finish.
func (m *Monitor) Close() error { return m.a.Close() }

// Listen requests delivery of the named events (e.g. "LISTENING",
// "ACCEPTED", "CONNECTED", "DISCONNECTED", or "ALL"). Must be called
// before Start.
func (m *Monitor) Listen(events ...string) error {
	parts := [][]byte{[]byte("LISTEN")}
	for _, e := range events {
		parts = append(parts, []byte(e))
	}
	return m.a.Pipe().SendMessage(parts)
}

// Verbose enables trace logging in the actor handler.
func (m *Monitor) Verbose() error {
	if err := m.a.Pipe().SendFrame([]byte("VERBOSE"), 0); err != nil {
		return err
	}
	return nil
}

// Start begins monitoring; blocks until the actor acknowledges.
func (m *Monitor) Start() error {
	if err := m.a.Pipe().SendFrame([]byte("START"), 0); err != nil {
		return err
	}
	m.a.Pipe().Wait()
	return nil
}

// NextEvent blocks for the next delivered event: name, a decimal value,
// and an address.
func (m *Monitor) NextEvent() (name string, value int, address string, err error) {
	parts, err := m.a.Pipe().RecvMessage()
	if err != nil {
		return "", 0, "", err
	}
	if len(parts) != 3 {
		return "", 0, "", fmt.Errorf("monitor: expected 3 event frames, got %d", len(parts))
	}
	v, _ := strconv.Atoi(string(parts[1]))
	return string(parts[0]), v, string(parts[2]), nil
}

func monitorHandler(pipe *socket.Socket, rawArgs interface{}) {
	args := rawArgs.(*monitorArgs)

	h := &handler{
		pipe:    pipe,
		target:  args.monitor,
		ctx:     args.ctx,
		poll:    poller.New(pipe),
		events:  make(map[string]struct{}),
	}
	_ = pipe.Signal(0)

	for !h.terminated {
		ready := h.poll.Wait(-1)
		if h.poll.Terminated() && ready == nil {
			break
		}
		switch {
		case ready == pipe:
			h.handlePipe()
		case h.sink != nil && ready == h.sink:
			h.handleSink()
		}
	}

	if h.raw != nil {
		h.raw.Destroy()
	}
}

type handler struct {
	pipe       *socket.Socket
	target     *socket.Socket
	ctx        *qcontext.Context
	poll       *poller.Poller
	sink       *socket.Socket // wraps the native Monitor's event-delivery socket
	raw        *czmq.Monitor
	events     map[string]struct{}
	verbose    bool
	terminated bool
}

func (h *handler) handlePipe() {
	parts, err := h.pipe.RecvMessage()
	if err != nil || len(parts) == 0 {
		h.terminated = true
		return
	}

	switch cmd := string(parts[0]); cmd {
	case "LISTEN":
		for _, e := range parts[1:] {
			h.events[string(e)] = struct{}{}
		}
	case "START":
		h.start()
		_ = h.pipe.Signal(0)
	case "VERBOSE":
		h.verbose = true
	case "$TERM":
		h.terminated = true
	default:
		panic(fmt.Sprintf("monitor: invalid command: %s", cmd))
	}
}

// start creates the native goczmq Monitor on the watched socket and adds
// its event sink to the poll set.
func (h *handler) start() {
	raw, err := czmq.NewMonitor(h.target.Resolve())
	if err != nil {
		panic(fmt.Sprintf("monitor: failed to attach monitor: %v", err))
	}
	if h.verbose {
		raw.Verbose()
	}
	for name := range h.events {
		raw.Listen(name)
	}
	raw.Start()
	h.raw = raw

	// goczmq's Monitor owns and destroys this socket itself; wrap it only
	// so Poller can track it, without taking ownership.
	h.sink = socket.Wrap(raw.Socket(), socket.Pair)
	h.poll.Append(h.sink)
}

func (h *handler) handleSink() {
	if h.sink == nil {
		return
	}
	parts, err := h.sink.RecvMessage()
	if err != nil || len(parts) < 2 {
		return
	}
	event := int(parts[0][0]) | int(parts[0][1])<<8
	value := 0
	if len(parts[0]) >= 6 {
		value = int(parts[0][2]) | int(parts[0][3])<<8 | int(parts[0][4])<<16 | int(parts[0][5])<<24
	}
	address := string(parts[1])

	_ = h.pipe.SendFrame([]byte(eventName(event)), 1)
	_ = h.pipe.SendFrame([]byte(strconv.Itoa(value)), 1)
	_ = h.pipe.SendFrame([]byte(address), 0)
}

func eventName(code int) string {
	if name, ok := eventNames[code]; ok {
		return name
	}
	return "UNKNOWN"
}

var eventNames = map[int]string{
	0x0001: "CONNECTED",
	0x0002: "CONNECT_DELAYED",
	0x0004: "CONNECT_RETRIED",
	0x0008: "LISTENING",
	0x0010: "BIND_FAILED",
	0x0020: "ACCEPTED",
	0x0040: "ACCEPT_FAILED",
	0x0080: "CLOSED",
	0x0100: "CLOSE_FAILED",
	0x0200: "DISCONNECTED",
	0x0400: "MONITOR_STOPPED",
}
