// Package socket implements a messaging endpoint with typed operations:
// bind/connect/attach, picture send/recv, binary bsend/brecv, signal/wait,
// and the ephemeral-port bind grammar.
//
// Grounded on original_source/qmq/socket.h (the authoritative doc comments
// for the bind grammar and every picture code) and on the reference
// core/mdp package's direct goczmq usage for idiom.
package socket

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	czmq "github.com/zeromq/goczmq/v4"

	"github.com/nowrozi/qmq/qcontext"
)

// Type is one of the closed set of socket types this toolkit supports.
type Type int

// The closed socket-type set, in the order the original source's
// s_sockname table enumerates them.
const (
	Pair Type = iota
	Pub
	Sub
	Req
	Rep
	Dealer
	Router
	Pull
	Push
	XPub
	XSub
	Stream
)

var typeNames = [...]string{
	"PAIR", "PUB", "SUB", "REQ", "REP",
	"DEALER", "ROUTER", "PULL", "PUSH",
	"XPUB", "XSUB", "STREAM",
}

// String renders the type's canonical name.
func (t Type) String() string {
	if int(t) < 0 || int(t) >= len(typeNames) {
		return "UNKNOWN"
	}
	return typeNames[t]
}

// ParseType resolves a type name (as used in Proxy/Forwarder FRONTEND and
// BACKEND commands) to a Type. It returns an error for any name outside the
// closed set, matching the original's fatal "invalid socket type".
func ParseType(name string) (Type, error) {
	for i, n := range typeNames {
		if n == name {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("socket: invalid socket type %q", name)
}

const (
	signalMagic      uint64 = 0x7766554433221100
	signalMagicMask  uint64 = 0xFFFFFFFFFFFFFF00
	dynFrom          int    = 0xC000
	dynTo            int    = 0xFFFF
	maxPictureString        = 1 << 20 // 1 MiB hard upper bound for brecv strings/byte arrays
)

// Socket wraps a goczmq.Sock with the picture/binary/signal codecs and the
// bind-port grammar described by spec.md §4.D.
type Socket struct {
	sock     *czmq.Sock
	sockType Type
	endpoint string
	ctx      *qcontext.Context
	// owned is false for sockets built via Wrap: Close then detaches from
	// the poll set it may be tracked in but does not destroy the
	// underlying raw socket, since some other owner (e.g. goczmq's native
	// Monitor) is responsible for its lifetime.
	owned bool

	// scratch is the per-socket string cache used to materialise short
	// strings during Brecv without a fresh allocation each time.
	scratch []byte
}

// New creates a Socket of the given type, registers it with ctx, and
// returns it unconnected and unbound.
func New(ctx *qcontext.Context, t Type) (*Socket, error) {
	raw, err := newRawSocket(t)
	if err != nil {
		return nil, err
	}
	s := &Socket{sock: raw, sockType: t, ctx: ctx, owned: true}
	ctx.Register(s)
	return s, nil
}

func newRawSocket(t Type) (*czmq.Sock, error) {
	switch t {
	case Pair:
		return czmq.NewPair("")
	case Pub:
		return czmq.NewPub("")
	case Sub:
		return czmq.NewSub("", "")
	case Req:
		return czmq.NewReq("")
	case Rep:
		return czmq.NewRep("")
	case Dealer:
		return czmq.NewDealer("")
	case Router:
		return czmq.NewRouter("")
	case Pull:
		return czmq.NewPull("")
	case Push:
		return czmq.NewPush("")
	case XPub:
		return czmq.NewXPub("")
	case XSub:
		return czmq.NewXSub("")
	case Stream:
		return czmq.NewStream("")
	default:
		return nil, fmt.Errorf("socket: unknown type %d", t)
	}
}

// Wrap adapts a raw goczmq socket not owned by any Context (for example,
// the event-delivery socket returned by goczmq's native Monitor) into a
// Socket so it can be tracked by Poller/Reactor. The wrapper does not
// register with a Context and Close on it does not destroy raw; the
// owner of raw remains responsible for its lifetime.
func Wrap(raw *czmq.Sock, t Type) *Socket {
	return &Socket{sock: raw, sockType: t}
}

// Type returns the socket's type.
func (s *Socket) Type() Type { return s.sockType }

// Endpoint returns the last bound or attached endpoint string.
func (s *Socket) Endpoint() string { return s.endpoint }

// Resolve returns the underlying transport handle, for Poller/Reactor use.
func (s *Socket) Resolve() *czmq.Sock { return s.sock }

// Close unbinds, deregisters from the owning Context, and destroys the
// underlying socket. For a socket built via Wrap, it only deregisters;
// the underlying raw socket is owned and destroyed elsewhere.
func (s *Socket) Close() error {
	if s.ctx != nil {
		s.ctx.Deregister(s)
	}
	if s.owned {
		s.sock.Destroy()
	}
	return nil
}

var bindPortPattern = regexp.MustCompile(`^(.*:)(\*|!)(?:\[(\d*)-(\d*)\])?$`)

// Bind binds the socket to a formatted endpoint, honouring the "*"/"!"
// ephemeral-port grammar for tcp:// endpoints: "*" scans sequentially from
// first to last, first free port wins; "!" starts at a random offset
// within the range then scans sequentially, wrapping once. Returns the
// bound port for tcp:// endpoints, 0 for any other transport, and -1 if no
// port in the range is free.
func (s *Socket) Bind(endpoint string) (int, error) {
	m := bindPortPattern.FindStringSubmatch(endpoint)
	if m == nil || !strings.HasPrefix(endpoint, "tcp://") {
		if err := s.sock.Bind(endpoint); err != nil {
			return 0, err
		}
		s.endpoint = endpoint
		if strings.HasPrefix(endpoint, "tcp://") {
			if port, err := strconv.Atoi(endpoint[strings.LastIndex(endpoint, ":")+1:]); err == nil {
				return port, nil
			}
		}
		return 0, nil
	}

	prefix, mode, firstStr, lastStr := m[1], m[2], m[3], m[4]
	first, last := dynFrom, dynTo
	if firstStr != "" {
		first, _ = strconv.Atoi(firstStr)
	}
	if lastStr != "" {
		last, _ = strconv.Atoi(lastStr)
	}

	start := first
	if mode == "!" {
		start = first + rand.Intn(last-first+1)
	}

	try := func(port int) bool {
		ep := fmt.Sprintf("%s%d", prefix, port)
		if err := s.sock.Bind(ep); err != nil {
			return false
		}
		s.endpoint = ep
		return true
	}

	for port := start; port <= last; port++ {
		if try(port) {
			return port, nil
		}
	}
	if mode == "!" {
		for port := first; port < start; port++ {
			if try(port) {
				return port, nil
			}
		}
	}
	return -1, errors.New("socket: no free port in range")
}

// Connect connects the socket to a formatted endpoint.
func (s *Socket) Connect(endpoint string) error {
	if err := s.sock.Connect(endpoint); err != nil {
		return err
	}
	s.endpoint = endpoint
	return nil
}

// Attach parses a comma-separated list of endpoints, each optionally
// prefixed '@' (force bind) or '>' (force connect); an unprefixed element
// obeys serverish. It returns an error on the first element that fails
// syntactically or operationally.
func (s *Socket) Attach(endpoints string, serverish bool) error {
	if endpoints == "" {
		return nil
	}
	for _, raw := range strings.Split(endpoints, ",") {
		ep := strings.TrimSpace(raw)
		if ep == "" {
			continue
		}
		bind := serverish
		switch {
		case strings.HasPrefix(ep, "@"):
			bind = true
			ep = ep[1:]
		case strings.HasPrefix(ep, ">"):
			bind = false
			ep = ep[1:]
		}
		var err error
		if bind {
			_, err = s.Bind(ep)
		} else {
			err = s.Connect(ep)
		}
		if err != nil {
			return fmt.Errorf("socket: attach %q: %w", ep, err)
		}
	}
	return nil
}

// --- Option setters (mechanical passthroughs; kept minimal per spec.md §1's
// exclusion of the option-bag wrappers as a mechanical concern) ---

func (s *Socket) SetSndHWM(n int)       { _ = s.sock.SetOption(czmq.SockSetSndhwm(n)) }
func (s *Socket) SetRcvHWM(n int)       { _ = s.sock.SetOption(czmq.SockSetRcvhwm(n)) }
func (s *Socket) SetLinger(n int)       { _ = s.sock.SetOption(czmq.SockSetLinger(n)) }
func (s *Socket) SetSndTimeout(ms int)  { _ = s.sock.SetOption(czmq.SockSetSndtimeo(ms)) }
func (s *Socket) SetRcvTimeout(ms int)  { _ = s.sock.SetOption(czmq.SockSetRcvtimeo(ms)) }
func (s *Socket) SetIdentity(id string) { _ = s.sock.SetOption(czmq.SockSetIdentity(id)) }
func (s *Socket) SetSubscribe(topic string) {
	_ = s.sock.SetOption(czmq.SockSetSubscribe(topic))
}
func (s *Socket) SetUnsubscribe(topic string) {
	_ = s.sock.SetOption(czmq.SockSetUnsubscribe(topic))
}

// --- Frame-level primitives consumed by package frame/message ---

const (
	flagMore     = czmq.FlagMore
	flagDontWait = czmq.FlagDontWait
)

// SendFrame sends one message part. flags is frame.More|frame.DontWait.
func (s *Socket) SendFrame(data []byte, flags int) error {
	zflags := 0
	if flags&1 != 0 { // frame.More
		zflags |= flagMore
	}
	if flags&2 != 0 { // frame.DontWait
		zflags |= flagDontWait
	}
	return s.sock.SendFrame(data, zflags)
}

// RecvFrame blocks for one message part.
func (s *Socket) RecvFrame() ([]byte, bool, error) {
	data, flag, err := s.sock.RecvFrame()
	if err != nil {
		return nil, false, err
	}
	return data, flag&flagMore != 0, nil
}

// RecvFrameNoWait receives one message part without blocking.
func (s *Socket) RecvFrameNoWait() ([]byte, bool, error) {
	data, flag, err := s.sock.RecvFrame(czmq.FlagDontWait)
	if err != nil {
		return nil, false, err
	}
	return data, flag&flagMore != 0, nil
}

// ReceiveMore reports whether the last receive left more parts pending.
func (s *Socket) ReceiveMore() bool {
	return s.sock.RcvMore()
}

// SendMessage sends a complete list of parts in one call.
func (s *Socket) SendMessage(parts [][]byte) error {
	return s.sock.SendMessage(parts)
}

// RecvMessage receives a complete multi-part message in one call.
func (s *Socket) RecvMessage() ([][]byte, error) {
	return s.sock.RecvMessage()
}

// Flush discards one pending partial message, if any.
func (s *Socket) Flush() {
	if !s.sock.RcvMore() {
		return
	}
	for {
		_, flag, err := s.sock.RecvFrame()
		if err != nil {
			return
		}
		if flag&flagMore == 0 {
			return
		}
	}
}

// Signal sends a single 8-byte frame carrying the 56-bit magic prefix and
// status in its low byte.
func (s *Socket) Signal(status byte) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], signalMagic|uint64(status))
	return s.sock.SendFrame(buf[:], 0)
}

// Wait blocks receiving messages, discarding any that are not a single
// 8-byte frame matching the magic prefix, and returns the status byte.
// Interruption returns -1.
func (s *Socket) Wait() int {
	for {
		data, flag, err := s.sock.RecvFrame()
		if err != nil {
			return -1
		}
		if flag&flagMore != 0 || len(data) != 8 {
			continue
		}
		v := binary.BigEndian.Uint64(data)
		if v&signalMagicMask != signalMagic&signalMagicMask {
			continue
		}
		return int(v & 0xFF)
	}
}

// --- Picture send/recv (spec.md §4.D) ---

// Send transmits a 'picture' message: picture is a sequence of
// `i u s b c f p m z` characters, each consuming the matching variadic
// argument(s). See spec.md §4.D for the full semantics table.
func (s *Socket) Send(picture string, args ...interface{}) error {
	parts := make([][]byte, 0, len(picture))
	ai := 0
	next := func() interface{} {
		if ai >= len(args) {
			return nil
		}
		v := args[ai]
		ai++
		return v
	}

	for _, ch := range picture {
		switch ch {
		case 'i':
			v, _ := next().(int)
			parts = append(parts, []byte(strconv.Itoa(v)))
		case 'u':
			v, _ := next().(uint)
			parts = append(parts, []byte(strconv.FormatUint(uint64(v), 10)))
		case 's':
			v, _ := next().(string)
			parts = append(parts, []byte(v))
		case 'b':
			data, _ := next().([]byte)
			_ = next() // size argument: len(data) already carries it in Go
			parts = append(parts, append([]byte(nil), data...))
		case 'c':
			data, _ := next().([]byte)
			parts = append(parts, append([]byte(nil), data...))
		case 'f':
			fr, _ := next().(interface{ ConstData() []byte })
			if fr != nil {
				parts = append(parts, append([]byte(nil), fr.ConstData()...))
			} else {
				parts = append(parts, nil)
			}
		case 'p':
			v := next()
			parts = append(parts, []byte(fmt.Sprintf("%p", v)))
		case 'm':
			msgFrames, _ := next().([][]byte)
			parts = append(parts, msgFrames...)
		case 'z':
			parts = append(parts, nil)
		default:
			panic(fmt.Sprintf("socket: invalid picture character %q", ch))
		}
	}
	return s.SendMessage(parts)
}

// Recv parses an incoming message per the picture string into the supplied
// destination pointers. A nil destination pointer skips that element. A
// short message zero-fills remaining destinations and still returns nil; a
// mismatched 'z' element returns an error.
func (s *Socket) Recv(picture string, dests ...interface{}) error {
	parts, err := s.RecvMessage()
	if err != nil {
		return err
	}

	pi := 0
	nextPart := func() []byte {
		if pi >= len(parts) {
			return nil
		}
		p := parts[pi]
		pi++
		return p
	}

	di := 0
	nextDest := func() interface{} {
		if di >= len(dests) {
			return nil
		}
		d := dests[di]
		di++
		return d
	}

	for _, ch := range picture {
		part := nextPart()
		dest := nextDest()

		switch ch {
		case 'i':
			if p, ok := dest.(*int); ok && p != nil {
				n, _ := strconv.Atoi(string(part))
				*p = n
			}
		case 'u':
			if p, ok := dest.(*uint); ok && p != nil {
				n, _ := strconv.ParseUint(string(part), 10, 64)
				*p = uint(n)
			}
		case 's':
			if p, ok := dest.(*string); ok && p != nil {
				*p = string(part)
			}
		case 'b', 'c':
			if p, ok := dest.(*[]byte); ok && p != nil {
				*p = append([]byte(nil), part...)
			}
		case 'z':
			if len(part) != 0 {
				return fmt.Errorf("socket: expected empty frame for 'z', got %d bytes", len(part))
			}
		case 'm':
			if p, ok := dest.(*[][]byte); ok && p != nil {
				rest := append([][]byte(nil), parts[pi:]...)
				*p = rest
				pi = len(parts)
			}
		}
	}
	return nil
}

// --- Binary bsend/brecv codec (spec.md §4.D) ---

// Bsend sends a zero-alloc-biased binary-encoded picture over a single data
// frame, with Frame/Message arguments appended as separate trailing frames.
func (s *Socket) Bsend(picture string, args ...interface{}) error {
	var buf bytes.Buffer
	trailing := make([][]byte, 0)

	ai := 0
	next := func() interface{} {
		if ai >= len(args) {
			return nil
		}
		v := args[ai]
		ai++
		return v
	}

	for i, ch := range picture {
		switch ch {
		case '1':
			v, _ := next().(uint8)
			buf.WriteByte(v)
		case '2':
			v, _ := next().(uint16)
			var b [2]byte
			binary.BigEndian.PutUint16(b[:], v)
			buf.Write(b[:])
		case '4':
			v, _ := next().(uint32)
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], v)
			buf.Write(b[:])
		case '8':
			v, _ := next().(uint64)
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], v)
			buf.Write(b[:])
		case 's':
			v, _ := next().(string)
			if len(v) > 255 {
				return fmt.Errorf("socket: bsend short string exceeds 255 bytes")
			}
			buf.WriteByte(byte(len(v)))
			buf.WriteString(v)
		case 'S':
			v, _ := next().(string)
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], uint32(len(v)))
			buf.Write(b[:])
			buf.WriteString(v)
		case 'c':
			v, _ := next().([]byte)
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], uint32(len(v)))
			buf.Write(b[:])
			buf.Write(v)
		case 'p':
			v := next()
			fmt.Fprintf(&buf, "%p", v)
		case 'f':
			fr, _ := next().(interface{ ConstData() []byte })
			if fr != nil {
				trailing = append(trailing, append([]byte(nil), fr.ConstData()...))
			}
		case 'm':
			if i != len(picture)-1 {
				return fmt.Errorf("socket: bsend 'm' must be the last picture character")
			}
			msgFrames, _ := next().([][]byte)
			trailing = append(trailing, msgFrames...)
		default:
			panic(fmt.Sprintf("socket: invalid binary picture character %q", ch))
		}
	}

	parts := append([][]byte{buf.Bytes()}, trailing...)
	return s.SendMessage(parts)
}

// Brecv parses the binary encoding produced by Bsend. Strings larger than
// 255 (short) or byte arrays/long strings larger than 1 MiB are rejected.
func (s *Socket) Brecv(picture string, dests ...interface{}) error {
	parts, err := s.RecvMessage()
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return errors.New("socket: brecv received empty message")
	}

	data := parts[0]
	pos := 0
	trailingIdx := 1

	di := 0
	nextDest := func() interface{} {
		if di >= len(dests) {
			return nil
		}
		d := dests[di]
		di++
		return d
	}

	readN := func(n int) ([]byte, error) {
		if pos+n > len(data) {
			return nil, errors.New("socket: brecv truncated data")
		}
		b := data[pos : pos+n]
		pos += n
		return b, nil
	}

	for i, ch := range picture {
		dest := nextDest()
		switch ch {
		case '1':
			b, err := readN(1)
			if err != nil {
				return err
			}
			if p, ok := dest.(*uint8); ok && p != nil {
				*p = b[0]
			}
		case '2':
			b, err := readN(2)
			if err != nil {
				return err
			}
			if p, ok := dest.(*uint16); ok && p != nil {
				*p = binary.BigEndian.Uint16(b)
			}
		case '4':
			b, err := readN(4)
			if err != nil {
				return err
			}
			if p, ok := dest.(*uint32); ok && p != nil {
				*p = binary.BigEndian.Uint32(b)
			}
		case '8':
			b, err := readN(8)
			if err != nil {
				return err
			}
			if p, ok := dest.(*uint64); ok && p != nil {
				*p = binary.BigEndian.Uint64(b)
			}
		case 's':
			lb, err := readN(1)
			if err != nil {
				return err
			}
			strBytes, err := readN(int(lb[0]))
			if err != nil {
				return err
			}
			if p, ok := dest.(*string); ok && p != nil {
				*p = s.cacheString(strBytes)
			}
		case 'S', 'c':
			lb, err := readN(4)
			if err != nil {
				return err
			}
			n := binary.BigEndian.Uint32(lb)
			if n > maxPictureString {
				return fmt.Errorf("socket: brecv item exceeds 1 MiB limit")
			}
			strBytes, err := readN(int(n))
			if err != nil {
				return err
			}
			switch p := dest.(type) {
			case *string:
				*p = string(strBytes)
			case *[]byte:
				*p = append([]byte(nil), strBytes...)
			}
		case 'f':
			if trailingIdx < len(parts) {
				if p, ok := dest.(*[]byte); ok && p != nil {
					*p = append([]byte(nil), parts[trailingIdx]...)
				}
				trailingIdx++
			}
		case 'm':
			if i != len(picture)-1 {
				return fmt.Errorf("socket: brecv 'm' must be the last picture character")
			}
			if p, ok := dest.(*[][]byte); ok && p != nil {
				*p = append([][]byte(nil), parts[trailingIdx:]...)
			}
			trailingIdx = len(parts)
		}
	}
	return nil
}

// cacheString copies data into the socket's scratch buffer, doubling its
// capacity as needed rather than reallocating for every brecv call, and
// returns the string materialised from that buffer.
func (s *Socket) cacheString(data []byte) string {
	if cap(s.scratch) < len(data) {
		s.scratch = make([]byte, 0, len(data)*2)
	}
	s.scratch = append(s.scratch[:0], data...)
	return string(s.scratch)
}
