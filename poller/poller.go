// Package poller implements a readiness multiplexer over a dynamic set of
// sockets: rebuild-on-change, and the expired/terminated post-condition
// distinction.
//
// Grounded on original_source/qmq/poller.h's Poller class, wired onto the
// underlying transport's native multi-socket wait the same way the
// reference broker's Go code drives czmq.Poller directly.
package poller

import (
	czmq "github.com/zeromq/goczmq/v4"

	"github.com/nowrozi/qmq/socket"
)

// Poller maintains an ordered list of sockets and multiplexes a wait across
// them, rebuilding its underlying poll set whenever the tracked list
// changes.
type Poller struct {
	items       []*socket.Socket
	byRaw       map[*czmq.Sock]*socket.Socket
	raw         *czmq.Poller
	needRebuild bool
	expired     bool
	terminated  bool
}

// New returns a Poller over the given initial sockets.
func New(items ...*socket.Socket) *Poller {
	p := &Poller{byRaw: make(map[*czmq.Sock]*socket.Socket)}
	for _, s := range items {
		p.items = append(p.items, s)
	}
	p.needRebuild = true
	return p
}

// Append adds a socket to the poll set and marks a rebuild pending.
func (p *Poller) Append(s *socket.Socket) {
	p.items = append(p.items, s)
	p.needRebuild = true
}

// Remove deletes a socket from the poll set and marks a rebuild pending.
func (p *Poller) Remove(s *socket.Socket) {
	for i, item := range p.items {
		if item == s {
			p.items = append(p.items[:i], p.items[i+1:]...)
			p.needRebuild = true
			return
		}
	}
}

// Clear removes every tracked socket; the next Wait is both expired and
// terminated.
func (p *Poller) Clear() {
	p.items = nil
	p.raw = nil
	p.byRaw = make(map[*czmq.Sock]*socket.Socket)
	p.needRebuild = true
}

// Expired reports whether the most recent Wait returned because the
// timeout elapsed with nothing ready.
func (p *Poller) Expired() bool { return p.expired }

// Terminated reports whether the most recent Wait returned because the
// underlying context/transport shut down, or because the poll set is empty.
func (p *Poller) Terminated() bool { return p.terminated }

// Wait rebuilds the poll set if it has changed since the last call, polls
// for up to msec milliseconds, and returns the first ready socket (or nil
// if none became ready before the timeout or termination).
func (p *Poller) Wait(msec int) *socket.Socket {
	p.expired = false
	p.terminated = false

	if len(p.items) == 0 {
		p.expired = true
		p.terminated = true
		return nil
	}

	if p.needRebuild {
		if err := p.rebuild(); err != nil {
			p.terminated = true
			return nil
		}
	}

	raw, err := p.raw.Wait(msec)
	if err != nil {
		p.terminated = true
		return nil
	}
	if raw == nil {
		p.expired = true
		return nil
	}
	s, ok := p.byRaw[raw]
	if !ok {
		p.expired = true
		return nil
	}
	return s
}

// rebuild tears down and recreates the underlying multi-socket poller from
// the current item list.
func (p *Poller) rebuild() error {
	raws := make([]*czmq.Sock, 0, len(p.items))
	byRaw := make(map[*czmq.Sock]*socket.Socket, len(p.items))
	for _, s := range p.items {
		r := s.Resolve()
		raws = append(raws, r)
		byRaw[r] = s
	}

	newRaw, err := czmq.NewPoller(raws...)
	if err != nil {
		return err
	}
	p.raw = newRaw
	p.byRaw = byRaw
	p.needRebuild = false
	return nil
}
