// Package frame implements the single atomic transport payload: a byte
// buffer plus a "more" bit set by the transport on receipt.
//
// Grounded on original_source/qmq/message.cpp's Frame class.
package frame

import (
	"bytes"
)

// SendFlag controls Frame.Send behaviour.
type SendFlag int

const (
	// More indicates additional frames follow in the same message.
	More SendFlag = 1 << iota
	// Reuse sends a copy of the buffer, leaving the Frame's own data intact.
	// Without it, Send logically consumes the Frame's payload.
	Reuse
	// DontWait makes Send non-blocking.
	DontWait
)

const hexDigits = "0123456789ABCDEF"

// sender is the minimal transport capability Frame needs to send/receive a
// single part. socket.Socket implements it.
type sender interface {
	SendFrame(data []byte, flags int) error
	RecvFrame() (data []byte, more bool, err error)
	RecvFrameNoWait() (data []byte, more bool, err error)
}

// Frame is a single message part: an owned byte buffer plus a "more" bit.
type Frame struct {
	data []byte
	more bool
}

// New creates a Frame copying data.
func New(data []byte) *Frame {
	f := &Frame{}
	f.Reset(data)
	return f
}

// NewString creates a Frame from a string, encoded as raw bytes.
func NewString(s string) *Frame {
	return New([]byte(s))
}

// Reset replaces the Frame's buffer with a copy of data and clears more.
func (f *Frame) Reset(data []byte) {
	f.data = append([]byte(nil), data...)
	f.more = false
}

// Size returns the number of bytes held by the Frame.
func (f *Frame) Size() int { return len(f.data) }

// IsEmpty reports whether the Frame carries zero bytes.
func (f *Frame) IsEmpty() bool { return len(f.data) == 0 }

// Data returns a copy of the Frame's bytes.
func (f *Frame) Data() []byte { return append([]byte(nil), f.data...) }

// ConstData returns the Frame's backing slice without copying; callers must
// not mutate it.
func (f *Frame) ConstData() []byte { return f.data }

// String decodes the Frame's bytes using the local (UTF-8) encoding.
func (f *Frame) String() string { return string(f.data) }

// HexString renders the Frame's bytes as uppercase hex, two characters per
// byte, with no separators.
func (f *Frame) HexString() string {
	buf := make([]byte, 0, len(f.data)*2)
	for _, b := range f.data {
		buf = append(buf, hexDigits[b>>4], hexDigits[b&0x0f])
	}
	return string(buf)
}

// HasMore reports the "more" bit captured at the last receive.
func (f *Frame) HasMore() bool { return f.more }

// SetMore sets the "more" bit explicitly (used when constructing a Frame to
// send as a non-final part of a Message).
func (f *Frame) SetMore(more bool) { f.more = more }

// Equal compares two Frames by content only.
func (f *Frame) Equal(other *Frame) bool {
	if other == nil {
		return false
	}
	return bytes.Equal(f.data, other.data)
}

// Clone returns a deep copy of f, including its more bit.
func (f *Frame) Clone() *Frame {
	return &Frame{data: append([]byte(nil), f.data...), more: f.more}
}

// Send writes the Frame to sock. Without Reuse, the Frame's payload is
// considered consumed by the transport; callers should not reuse it.
func (f *Frame) Send(sock sender, flags SendFlag) error {
	sendFlags := 0
	if flags&More != 0 {
		sendFlags |= sendFlagMore
	}
	if flags&DontWait != 0 {
		sendFlags |= sendFlagDontWait
	}

	if flags&Reuse != 0 {
		cp := append([]byte(nil), f.data...)
		return sock.SendFrame(cp, sendFlags)
	}

	err := sock.SendFrame(f.data, sendFlags)
	f.data = nil
	return err
}

// Recv blocks for one part, capturing the transport's "more" bit.
func (f *Frame) Recv(sock sender) bool {
	data, more, err := sock.RecvFrame()
	if err != nil {
		f.data = nil
		f.more = false
		return false
	}
	f.data = data
	f.more = more
	return true
}

// RecvNoWait performs a non-blocking receive of one part. It returns the
// "more" bit as a signed value: -1 on failure, 0 or 1 otherwise.
func (f *Frame) RecvNoWait(sock sender) int {
	data, more, err := sock.RecvFrameNoWait()
	if err != nil {
		f.data = nil
		f.more = false
		return -1
	}
	f.data = data
	f.more = more
	if more {
		return 1
	}
	return 0
}

// these mirror the zmq send-flag bit values used by the socket package; kept
// here so frame has no import-time dependency on socket (which depends on
// goczmq). socket.Socket's SendFrame/RecvFrame implementations translate
// these to the real ZMQ_SNDMORE/ZMQ_DONTWAIT constants.
const (
	sendFlagMore     = 1
	sendFlagDontWait = 2
)
