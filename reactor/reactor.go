// Package reactor implements a cooperative single-loop dispatcher:
// readers, pollers, one-shot/repeated timers, and sliding-deadline
// tickets, with tickless waiting and error-tolerant handler dispatch.
//
// Grounded on original_source/qmq/sevent.cpp's SockEvent class.
package reactor

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nowrozi/qmq/poller"
	"github.com/nowrozi/qmq/socket"
)

// ErrStop is the sentinel a handler of any kind returns to stop the loop
// outright, the Go equivalent of the reference's handler returning -1.
// Run/RunOnce check for it with errors.Is, so it may be wrapped.
var ErrStop = errors.New("reactor: stop")

// ReaderHandler is invoked when a tracked socket becomes readable. A
// non-nil, non-tolerant error counts against the socket's error-tolerance
// budget. Returning ErrStop stops the loop immediately.
type ReaderHandler func(s *socket.Socket) error

// PollerHandler is invoked for a generic (socket, interest) item. Returning
// ErrStop stops the loop immediately.
type PollerHandler func(s *socket.Socket) error

// TimerHandler is invoked when a timer fires. Returning a non-nil error
// does not remove the timer; only explicit RemoveTimer or repeat exhaustion
// does. Returning ErrStop stops the loop immediately.
type TimerHandler func(id int) error

// TicketHandler is invoked when a ticket's sliding deadline lapses without
// a ResetTicket call in the interim. Returning ErrStop stops the loop
// immediately.
type TicketHandler func(handle int) error

type readerEntry struct {
	sock      *socket.Socket
	handler   ReaderHandler
	tolerant  bool
	errStreak int
}

type pollerEntry struct {
	sock      *socket.Socket
	handler   PollerHandler
	tolerant  bool
	errStreak int
}

type timerEntry struct {
	id       int
	delay    time.Duration
	repeat   int // -1 means infinite
	when     time.Time
	handler  TimerHandler
	cancelled bool
}

type ticketEntry struct {
	handle  int
	when    time.Time
	handler TicketHandler
}

// Reactor is a single-threaded event loop driven by repeated calls to Run
// (or RunOnce from a caller-owned loop).
type Reactor struct {
	mu sync.Mutex

	readers []*readerEntry
	pollers []*pollerEntry
	timers  map[int]*timerEntry
	tickets []*ticketEntry

	needRebuild bool
	verbose     bool
	terminated  bool

	zombies []int

	ticketDelay time.Duration
	maxTimers   int
	nextTimerID int
	nextTicket  int

	poll *poller.Poller

	interrupt chan struct{}
}

// New returns a Reactor. maxTimers bounds the number of concurrently live
// timers; exceeding it is a programmer error (spec.md §7) and panics.
func New(ticketDelay time.Duration, maxTimers int) *Reactor {
	return &Reactor{
		timers:      make(map[int]*timerEntry),
		needRebuild: true,
		ticketDelay: ticketDelay,
		maxTimers:   maxTimers,
		interrupt:   make(chan struct{}, 1),
	}
}

// SetVerbose toggles trace logging of dispatch decisions.
func (r *Reactor) SetVerbose(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verbose = v
}

// AppendReader tracks s for readability, invoking handler whenever it has
// data. May be called from any thread.
func (r *Reactor) AppendReader(s *socket.Socket, handler ReaderHandler, tolerant bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readers = append(r.readers, &readerEntry{sock: s, handler: handler, tolerant: tolerant})
	r.needRebuild = true
}

// RemoveReader untracks s.
func (r *Reactor) RemoveReader(s *socket.Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.readers {
		if e.sock == s {
			r.readers = append(r.readers[:i], r.readers[i+1:]...)
			r.needRebuild = true
			return
		}
	}
}

// AppendPoller tracks a generic (socket, handler) item alongside readers.
func (r *Reactor) AppendPoller(s *socket.Socket, handler PollerHandler, tolerant bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pollers = append(r.pollers, &pollerEntry{sock: s, handler: handler, tolerant: tolerant})
	r.needRebuild = true
}

// RemovePoller untracks s from the poller list.
func (r *Reactor) RemovePoller(s *socket.Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.pollers {
		if e.sock == s {
			r.pollers = append(r.pollers[:i], r.pollers[i+1:]...)
			r.needRebuild = true
			return
		}
	}
}

// AppendTimer schedules handler to fire after delay, repeating repeat more
// times (-1 for forever, 0 for one-shot). Exceeding maxTimers live timers
// is a programmer error and panics.
func (r *Reactor) AppendTimer(delay time.Duration, repeat int, handler TimerHandler) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxTimers > 0 && len(r.timers) >= r.maxTimers {
		panic(fmt.Sprintf("reactor: timer limit of %d exceeded", r.maxTimers))
	}

	r.nextTimerID++
	id := r.nextTimerID
	r.timers[id] = &timerEntry{
		id:      id,
		delay:   delay,
		repeat:  repeat,
		when:    timeNow().Add(delay),
		handler: handler,
	}
	r.needRebuild = true
	return id
}

// RemoveTimer cancels a timer. If called while the loop is mid-iteration,
// the removal is deferred onto the zombie list and applied at the end of
// that iteration, so a timer cannot be both fired and reaped in the same
// pass.
func (r *Reactor) RemoveTimer(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[id]; ok {
		t.cancelled = true
		r.zombies = append(r.zombies, id)
	}
}

// AppendTicket inserts a new sliding-deadline ticket at the tail, sharing
// the Reactor's single ticketDelay, and returns its handle.
func (r *Reactor) AppendTicket(handler TicketHandler) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextTicket++
	handle := r.nextTicket
	r.tickets = append(r.tickets, &ticketEntry{
		handle:  handle,
		when:    timeNow().Add(r.ticketDelay),
		handler: handler,
	})
	r.needRebuild = true
	return handle
}

// ResetTicket moves the named ticket back to the tail with a fresh
// deadline, per spec.md's literal wording (not the off-by-one splice some
// implementations of this pattern use).
func (r *Reactor) ResetTicket(handle int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, tk := range r.tickets {
		if tk.handle == handle {
			r.tickets = append(r.tickets[:i], r.tickets[i+1:]...)
			tk.when = timeNow().Add(r.ticketDelay)
			r.tickets = append(r.tickets, tk)
			return
		}
	}
}

// RemoveTicket deletes a ticket outright.
func (r *Reactor) RemoveTicket(handle int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, tk := range r.tickets {
		if tk.handle == handle {
			r.tickets = append(r.tickets[:i], r.tickets[i+1:]...)
			return
		}
	}
}

// Abort sets the terminated flag; the loop exits at the top of its next
// iteration.
func (r *Reactor) Abort() {
	r.mu.Lock()
	r.terminated = true
	r.mu.Unlock()
}

// Terminate aborts and additionally wakes any in-flight wait.
func (r *Reactor) Terminate() {
	r.Abort()
	select {
	case r.interrupt <- struct{}{}:
	default:
	}
}

func (r *Reactor) isTerminated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminated
}

// Run drives the loop until Abort/Terminate is called or the underlying
// transport shuts down.
func (r *Reactor) Run() {
	for !r.isTerminated() {
		if !r.RunOnce() {
			return
		}
	}
}

// RunOnce executes a single tickless-wait iteration: it computes the
// timeout from the nearest timer or ticket deadline (capped to a one-hour
// ceiling when none exist), polls, and dispatches in order: ready poll
// slots (readers then pollers, tolerating one error per slot before
// removing it silently on a second consecutive failure), due timers in
// when-order, then due tickets in when-order. It returns false if the
// underlying transport reports termination, or if any handler returns
// ErrStop, in which case the loop is aborted immediately and the
// remaining steps of that iteration are skipped.
func (r *Reactor) RunOnce() bool {
	r.mu.Lock()
	readers := append([]*readerEntry(nil), r.readers...)
	pollers := append([]*pollerEntry(nil), r.pollers...)
	needRebuild := r.needRebuild
	r.needRebuild = false
	r.mu.Unlock()

	timeout := r.computeTimeout()

	if needRebuild || r.poll == nil {
		all := make([]*socket.Socket, 0, len(readers)+len(pollers))
		for _, e := range readers {
			all = append(all, e.sock)
		}
		for _, e := range pollers {
			all = append(all, e.sock)
		}
		r.poll = poller.New(all...)
	}

	if len(readers)+len(pollers) > 0 {
		ready := r.poll.Wait(timeout)
		if r.poll.Terminated() && ready == nil {
			_ = r.fireDueTimers()
			_ = r.fireDueTickets()
			r.drainZombies()
			return false
		}
		if ready != nil {
			for _, e := range readers {
				if e.sock == ready {
					if r.dispatchReader(e) {
						r.Abort()
						return false
					}
				}
			}
			for _, e := range pollers {
				if e.sock == ready {
					if r.dispatchPoller(e) {
						r.Abort()
						return false
					}
				}
			}
		}
	} else if timeout > 0 {
		time.Sleep(time.Duration(timeout) * time.Millisecond)
	}

	if r.fireDueTimers() {
		r.Abort()
		return false
	}
	if r.fireDueTickets() {
		r.Abort()
		return false
	}
	r.drainZombies()

	return true
}

// computeTimeout returns the tickless wait budget in milliseconds: the
// time until the nearest timer or ticket deadline, or one hour if neither
// exists.
func (r *Reactor) computeTimeout() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := timeNow()
	ceiling := time.Hour
	soonest := ceiling

	for _, t := range r.timers {
		if t.cancelled {
			continue
		}
		if d := t.when.Sub(now); d < soonest {
			soonest = d
		}
	}
	if len(r.tickets) > 0 {
		if d := r.tickets[0].when.Sub(now); d < soonest {
			soonest = d
		}
	}
	if soonest < 0 {
		soonest = 0
	}
	return int(soonest / time.Millisecond)
}

// dispatchReader invokes e's handler and reports whether it returned
// ErrStop.
func (r *Reactor) dispatchReader(e *readerEntry) bool {
	err := e.handler(e.sock)
	if err == nil {
		e.errStreak = 0
		return false
	}
	if errors.Is(err, ErrStop) {
		return true
	}
	if e.tolerant {
		return false
	}
	e.errStreak++
	if e.errStreak >= 2 {
		r.RemoveReader(e.sock)
	}
	return false
}

// dispatchPoller invokes e's handler and reports whether it returned
// ErrStop.
func (r *Reactor) dispatchPoller(e *pollerEntry) bool {
	err := e.handler(e.sock)
	if err == nil {
		e.errStreak = 0
		return false
	}
	if errors.Is(err, ErrStop) {
		return true
	}
	if e.tolerant {
		return false
	}
	e.errStreak++
	if e.errStreak >= 2 {
		r.RemovePoller(e.sock)
	}
	return false
}

// fireDueTimers fires every timer whose deadline has passed, in when-order,
// and reports whether any handler returned ErrStop (in which case firing
// stops at that timer, skipping the rest).
func (r *Reactor) fireDueTimers() bool {
	now := timeNow()

	r.mu.Lock()
	var due []*timerEntry
	for _, t := range r.timers {
		if t.cancelled {
			continue
		}
		if !t.when.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].when.Before(due[j].when) })
	r.mu.Unlock()

	for _, t := range due {
		if t.cancelled {
			continue
		}
		err := t.handler(t.id)
		if errors.Is(err, ErrStop) {
			return true
		}

		r.mu.Lock()
		if cur, ok := r.timers[t.id]; ok && !cur.cancelled {
			if cur.repeat == 0 {
				cur.cancelled = true
				r.zombies = append(r.zombies, cur.id)
			} else {
				if cur.repeat > 0 {
					cur.repeat--
				}
				cur.when = timeNow().Add(cur.delay)
			}
		}
		r.mu.Unlock()
	}
	return false
}

// fireDueTickets fires every ticket whose deadline has lapsed, in
// when-order, and reports whether any handler returned ErrStop (in which
// case firing stops at that ticket, skipping the rest).
func (r *Reactor) fireDueTickets() bool {
	now := timeNow()

	r.mu.Lock()
	var due []*ticketEntry
	for len(r.tickets) > 0 && !r.tickets[0].when.After(now) {
		due = append(due, r.tickets[0])
		r.tickets = r.tickets[1:]
	}
	r.mu.Unlock()

	for _, tk := range due {
		if err := tk.handler(tk.handle); errors.Is(err, ErrStop) {
			return true
		}
	}
	return false
}

func (r *Reactor) drainZombies() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.zombies {
		delete(r.timers, id)
	}
	r.zombies = nil
}

// timeNow is a seam so tests can't accidentally rely on wall-clock
// granularity; it is intentionally the only place reactor calls the clock.
func timeNow() time.Time { return time.Now() }
