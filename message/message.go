// Package message implements an ordered sequence of Frames delivered and
// accepted as a group, its length-prefixed wire encoding, and its flat file
// persistence format.
//
// Grounded on original_source/qmq/message.cpp's Messages class.
package message

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/nowrozi/qmq/frame"
)

// transport is the minimal capability Message needs to drain or fill a
// socket; it is structurally satisfied by socket.Socket.
type transport interface {
	SendFrame(data []byte, flags int) error
	RecvFrame() (data []byte, more bool, err error)
	RecvFrameNoWait() (data []byte, more bool, err error)
}

// Message is an ordered, mutable sequence of Frames.
type Message struct {
	frames []*frame.Frame
}

// New returns an empty Message.
func New() *Message { return &Message{} }

// Size returns the number of frames.
func (m *Message) Size() int { return len(m.frames) }

// ContentSize returns the sum of every frame's byte size.
func (m *Message) ContentSize() int {
	total := 0
	for _, f := range m.frames {
		total += f.Size()
	}
	return total
}

// Clear empties the Message.
func (m *Message) Clear() { m.frames = nil }

// Clone returns a deep copy, cloning each frame independently.
func (m *Message) Clone() *Message {
	cp := &Message{frames: make([]*frame.Frame, len(m.frames))}
	for i, f := range m.frames {
		cp.frames[i] = f.Clone()
	}
	return cp
}

// Append adds f to the back of the Message, taking ownership of it.
func (m *Message) Append(f *frame.Frame) { m.frames = append(m.frames, f) }

// AppendMem appends a new Frame built from a copy of data.
func (m *Message) AppendMem(data []byte) { m.Append(frame.New(data)) }

// AppendString appends a new Frame holding s.
func (m *Message) AppendString(s string) { m.Append(frame.NewString(s)) }

// Prepend adds f to the front of the Message.
func (m *Message) Prepend(f *frame.Frame) {
	m.frames = append([]*frame.Frame{f}, m.frames...)
}

// Push is an alias for Prepend, matching the reference API's naming.
func (m *Message) Push(f *frame.Frame) { m.Prepend(f) }

// Pop removes and returns the front Frame, or nil if the Message is empty.
func (m *Message) Pop() *frame.Frame {
	if len(m.frames) == 0 {
		return nil
	}
	f := m.frames[0]
	m.frames = m.frames[1:]
	return f
}

// PopStr pops the front Frame and decodes it as a string; it returns "" when
// the Message is empty.
func (m *Message) PopStr() string {
	f := m.Pop()
	if f == nil {
		return ""
	}
	return f.String()
}

// PopMsg pops one Frame and decodes its bytes as an embedded Message. It
// returns nil when the popped frame does not decode to a non-empty Message
// (i.e. it was not produced by Append(*Message)).
func (m *Message) PopMsg() *Message {
	f := m.Pop()
	if f == nil {
		return nil
	}
	sub := Decode(f.ConstData())
	if sub.Size() == 0 {
		return nil
	}
	return sub
}

// AppendMessage encodes sub as a single Frame and appends it, but only if
// sub is non-empty; an empty sub-message is not appended at all.
func (m *Message) AppendMessage(sub *Message) {
	if sub == nil || sub.Size() == 0 {
		return
	}
	m.Append(frame.New(sub.Encode()))
}

// Wrap prepends an empty delimiter Frame, then prepends f: after Wrap, the
// Message begins [f, "", ...].
func (m *Message) Wrap(f *frame.Frame) {
	m.Prepend(frame.New(nil))
	m.Prepend(f)
}

// Unwrap pops the first Frame (the routing identity) and, if the new front
// is an empty delimiter, silently discards that too. It returns the
// originally popped identity Frame, or nil if the Message was empty.
func (m *Message) Unwrap() *frame.Frame {
	id := m.Pop()
	if id == nil {
		return nil
	}
	if len(m.frames) > 0 && m.frames[0].IsEmpty() {
		m.Pop()
	}
	return id
}

// First returns the front Frame without removing it, or nil if empty.
func (m *Message) First() *frame.Frame {
	if len(m.frames) == 0 {
		return nil
	}
	return m.frames[0]
}

// Last returns the back Frame without removing it, or nil if empty.
func (m *Message) Last() *frame.Frame {
	if len(m.frames) == 0 {
		return nil
	}
	return m.frames[len(m.frames)-1]
}

// At returns the Frame at index i, or nil if out of range.
func (m *Message) At(i int) *frame.Frame {
	if i < 0 || i >= len(m.frames) {
		return nil
	}
	return m.frames[i]
}

// Next returns the Frame following before, or the first Frame if before is
// nil; it returns nil at the end of the sequence.
func (m *Message) Next(before *frame.Frame) *frame.Frame {
	if before == nil {
		return m.First()
	}
	for i, f := range m.frames {
		if f == before {
			if i+1 < len(m.frames) {
				return m.frames[i+1]
			}
			return nil
		}
	}
	return nil
}

// FirstStr decodes the front Frame as a string, or "" if empty.
func (m *Message) FirstStr() string {
	if f := m.First(); f != nil {
		return f.String()
	}
	return ""
}

// LastStr decodes the back Frame as a string, or "" if empty.
func (m *Message) LastStr() string {
	if f := m.Last(); f != nil {
		return f.String()
	}
	return ""
}

// ToStringList decodes every frame as a string, in order.
func (m *Message) ToStringList() []string {
	out := make([]string, len(m.frames))
	for i, f := range m.frames {
		out[i] = f.String()
	}
	return out
}

// Remove deletes the frame at index i.
func (m *Message) Remove(i int) {
	if i < 0 || i >= len(m.frames) {
		return
	}
	m.frames = append(m.frames[:i], m.frames[i+1:]...)
}

// RemoveAll deletes every frame equal in content to f.
func (m *Message) RemoveAll(f *frame.Frame) {
	kept := m.frames[:0]
	for _, cur := range m.frames {
		if !cur.Equal(f) {
			kept = append(kept, cur)
		}
	}
	m.frames = kept
}

// Send drains the Message's frames onto sock, sending each with the MORE
// flag while more frames remain. The Message is empty afterwards on
// success. Sending an empty Message is a no-op that succeeds.
func (m *Message) Send(sock transport) error {
	for len(m.frames) > 0 {
		f := m.frames[0]
		m.frames = m.frames[1:]
		var flags frame.SendFlag
		if len(m.frames) > 0 {
			flags = frame.More
		}
		if err := f.Send(sock, flags); err != nil {
			return err
		}
	}
	return nil
}

// Recv clears the Message then reads frames from sock until one arrives
// without the "more" bit set.
func (m *Message) Recv(sock transport) error {
	m.frames = nil
	for {
		var f frame.Frame
		if !f.Recv(sock) {
			break
		}
		m.frames = append(m.frames, &f)
		if !f.HasMore() {
			break
		}
	}
	return nil
}

// Encode serialises the Message to its self-delimiting wire form: per
// frame, a 1-byte length if < 255, else 0xFF followed by a 4-byte
// big-endian length, then the raw bytes.
func (m *Message) Encode() []byte {
	size := 0
	for _, f := range m.frames {
		size++
		if f.Size() >= 255 {
			size += 4
		}
		size += f.Size()
	}

	buf := make([]byte, 0, size)
	for _, f := range m.frames {
		fsize := f.Size()
		if fsize < 255 {
			buf = append(buf, byte(fsize))
		} else {
			buf = append(buf, 0xFF)
			var lenBytes [4]byte
			binary.BigEndian.PutUint32(lenBytes[:], uint32(fsize))
			buf = append(buf, lenBytes[:]...)
		}
		buf = append(buf, f.ConstData()...)
	}
	return buf
}

// Decode parses the self-delimiting wire form produced by Encode. Truncated
// or invalid data stops decoding and leaves the Message holding only the
// frames parsed so far.
func Decode(data []byte) *Message {
	m := New()
	i := 0
	for i < len(data) {
		size := int(data[i])
		i++
		if size == 0xFF {
			if i+4 > len(data) {
				break
			}
			size = int(binary.BigEndian.Uint32(data[i : i+4]))
			i += 4
		}
		if i+size > len(data) {
			break
		}
		m.Append(frame.New(data[i : i+size]))
		i += size
	}
	return m
}

// Save writes the Message as a flat stream of (4-byte big-endian size,
// bytes) records. This is deliberately not the variable-length Encode
// scheme: the on-disk record format is a fixed 4-byte length prefix per
// frame, independent of frame size.
func (m *Message) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, f := range m.frames {
		var lenBytes [4]byte
		binary.BigEndian.PutUint32(lenBytes[:], uint32(f.Size()))
		if _, err := bw.Write(lenBytes[:]); err != nil {
			return err
		}
		if _, err := bw.Write(f.ConstData()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Load reads the record format written by Save. Loading from an empty
// stream yields an empty Message.
func Load(r io.Reader) (*Message, error) {
	m := New()
	br := bufio.NewReader(r)
	for {
		var lenBytes [4]byte
		_, err := io.ReadFull(br, lenBytes[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		size := binary.BigEndian.Uint32(lenBytes[:])
		data := make([]byte, size)
		if _, err := io.ReadFull(br, data); err != nil {
			return nil, err
		}
		m.Append(frame.New(data))
	}
	return m, nil
}
