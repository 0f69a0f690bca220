// Package gossip implements the tuple-propagation wire frame used to flood
// key/value/ttl facts between cooperating nodes: HELLO, PUBLISH, PING,
// PONG and INVALID, each carrying a 1-byte protocol version.
//
// Grounded on original_source/test/qmq/gossip.cpp's GossipFrame codec.
package gossip

import (
	"encoding/binary"
	"fmt"

	czmq "github.com/zeromq/goczmq/v4"

	"github.com/nowrozi/qmq/socket"
)

// Message ID space, per gossip.cpp.
const (
	MsgHello   = 1
	MsgPublish = 2
	MsgPing    = 3
	MsgPong    = 4
	MsgInvalid = 5
)

// signature is the 2-byte protocol tag every frame opens with; its low
// nibble is reserved for a future protocol revision and is always 0 here.
const signature = 0xAAA0

// version is the only payload version this codec understands. Any other
// value makes a frame malformed.
const version = 1

// maxKeyLen mirrors the reference's fixed 256-byte key buffer (255 usable
// bytes plus a NUL the wire format does not carry).
const maxKeyLen = 255

// Frame is one gossip protocol message: an id plus whatever payload that
// id carries. Only PUBLISH carries a key, value and ttl; the other kinds
// are bare version announcements.
type Frame struct {
	id        int
	key       string
	value     string
	ttl       uint32
	routingID []byte
}

// New returns an empty Frame with no id set.
func New() *Frame { return &Frame{} }

// ID returns the message kind (MsgHello, MsgPublish, ...).
func (f *Frame) ID() int { return f.id }

// SetID sets the message kind.
func (f *Frame) SetID(id int) { f.id = id }

// Key returns the PUBLISH tuple key.
func (f *Frame) Key() string { return f.key }

// SetKey sets the PUBLISH tuple key, truncated to maxKeyLen bytes to match
// the reference's fixed-size key buffer.
func (f *Frame) SetKey(key string) {
	if len(key) > maxKeyLen {
		key = key[:maxKeyLen]
	}
	f.key = key
}

// Value returns the PUBLISH tuple value.
func (f *Frame) Value() string { return f.value }

// SetValue sets the PUBLISH tuple value.
func (f *Frame) SetValue(value string) { f.value = value }

// TimeToLive returns the PUBLISH tuple's remaining lifetime in msecs.
func (f *Frame) TimeToLive() uint32 { return f.ttl }

// SetTimeToLive sets the PUBLISH tuple's remaining lifetime in msecs.
func (f *Frame) SetTimeToLive(ttl uint32) { f.ttl = ttl }

// RoutingID returns the ROUTER envelope captured by the last Recv, if any.
func (f *Frame) RoutingID() []byte { return f.routingID }

// SetRoutingID sets the envelope to prefix future Sends through a ROUTER
// socket with.
func (f *Frame) SetRoutingID(id []byte) { f.routingID = id }

// Command renders the message kind as its protocol name, for logging.
func (f *Frame) Command() string {
	switch f.id {
	case MsgHello:
		return "HELLO"
	case MsgPublish:
		return "PUBLISH"
	case MsgPing:
		return "PING"
	case MsgPong:
		return "PONG"
	case MsgInvalid:
		return "INVALID"
	default:
		return "?"
	}
}

// Send encodes and writes the frame to output. Through a ROUTER socket it
// first re-sends the captured routing envelope. The data frame itself is
// always the last frame of the message, matching the reference codec.
func (f *Frame) Send(output *socket.Socket) error {
	if output.Type() == socket.Router {
		if err := output.SendFrame(f.routingID, czmq.FlagMore); err != nil {
			return err
		}
	}

	size := 2 + 1 // signature + id
	switch f.id {
	case MsgHello, MsgPing, MsgPong, MsgInvalid:
		size += 1 // version
	case MsgPublish:
		size += 1               // version
		size += 1 + len(f.key)  // key length byte + key
		size += 4 + len(f.value) // value length word + value
		size += 4               // ttl
	default:
		return fmt.Errorf("gossip: cannot send unknown message id %d", f.id)
	}

	buf := make([]byte, size)
	pos := 0
	binary.BigEndian.PutUint16(buf[pos:], signature)
	pos += 2
	buf[pos] = byte(f.id)
	pos++

	switch f.id {
	case MsgHello, MsgPing, MsgPong, MsgInvalid:
		buf[pos] = version
		pos++
	case MsgPublish:
		buf[pos] = version
		pos++
		buf[pos] = byte(len(f.key))
		pos++
		pos += copy(buf[pos:], f.key)
		binary.BigEndian.PutUint32(buf[pos:], uint32(len(f.value)))
		pos += 4
		pos += copy(buf[pos:], f.value)
		binary.BigEndian.PutUint32(buf[pos:], f.ttl)
		pos += 4
	}

	return output.SendFrame(buf, 0)
}

// Recv reads and decodes one frame from input. Through a ROUTER socket it
// first captures the routing envelope. It returns an error for a
// malformed or unrecognised frame, mirroring the reference's
// goto-malformed behaviour.
func (f *Frame) Recv(input *socket.Socket) error {
	if input.Type() == socket.Router {
		id, more, err := input.RecvFrame()
		if err != nil {
			return fmt.Errorf("gossip: recv routing id: %w", err)
		}
		if !more {
			return fmt.Errorf("gossip: no routing id")
		}
		f.routingID = append([]byte(nil), id...)
	}

	data, _, err := input.RecvFrame()
	if err != nil {
		return fmt.Errorf("gossip: interrupted: %w", err)
	}

	pos := 0
	need := func(n int) error {
		if pos+n > len(data) {
			return fmt.Errorf("gossip: malformed message, truncated")
		}
		return nil
	}

	if err := need(2); err != nil {
		return err
	}
	sig := binary.BigEndian.Uint16(data[pos:])
	pos += 2
	if sig != signature {
		return fmt.Errorf("gossip: invalid signature %#04x", sig)
	}

	if err := need(1); err != nil {
		return err
	}
	f.id = int(data[pos])
	pos++

	readVersion := func() error {
		if err := need(1); err != nil {
			return err
		}
		v := data[pos]
		pos++
		if v != version {
			return fmt.Errorf("gossip: version %d is invalid", v)
		}
		return nil
	}

	switch f.id {
	case MsgHello, MsgPing, MsgPong, MsgInvalid:
		if err := readVersion(); err != nil {
			return err
		}
	case MsgPublish:
		if err := readVersion(); err != nil {
			return err
		}
		if err := need(1); err != nil {
			return err
		}
		klen := int(data[pos])
		pos++
		if err := need(klen); err != nil {
			return err
		}
		f.key = string(data[pos : pos+klen])
		pos += klen

		if err := need(4); err != nil {
			return err
		}
		vlen := int(binary.BigEndian.Uint32(data[pos:]))
		pos += 4
		if err := need(vlen); err != nil {
			return err
		}
		f.value = string(data[pos : pos+vlen])
		pos += vlen

		if err := need(4); err != nil {
			return err
		}
		f.ttl = binary.BigEndian.Uint32(data[pos:])
		pos += 4
	default:
		return fmt.Errorf("gossip: bad message id %d", f.id)
	}

	return nil
}
