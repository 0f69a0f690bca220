package message

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nowrozi/qmq/frame"
)

type fakeFrame struct {
	data []byte
	more bool
}

type fakeSocket struct {
	queue []fakeFrame
}

func (s *fakeSocket) SendFrame(data []byte, flags int) error {
	cp := append([]byte(nil), data...)
	s.queue = append(s.queue, fakeFrame{data: cp, more: flags&int(frame.More) != 0})
	return nil
}

func (s *fakeSocket) RecvFrame() ([]byte, bool, error) { return s.RecvFrameNoWait() }

func (s *fakeSocket) RecvFrameNoWait() ([]byte, bool, error) {
	if len(s.queue) == 0 {
		return nil, false, errEmpty{}
	}
	f := s.queue[0]
	s.queue = s.queue[1:]
	return f.data, f.more, nil
}

type errEmpty struct{}

func (errEmpty) Error() string { return "empty" }

func TestSendEmptiesMessage(t *testing.T) {
	sock := &fakeSocket{}
	m := New()
	m.AppendString("one")
	m.AppendString("two")

	require.NoError(t, m.Send(sock))
	assert.Equal(t, 0, m.Size())
	assert.Len(t, sock.queue, 2)
}

func TestSendEmptyMessageIsNoop(t *testing.T) {
	sock := &fakeSocket{}
	m := New()
	require.NoError(t, m.Send(sock))
	assert.Len(t, sock.queue, 0)
}

func TestMultiFrameRoundTrip(t *testing.T) {
	sock := &fakeSocket{}
	m := New()
	for i := 0; i < 10; i++ {
		m.AppendString("Frame")
	}
	cp := m.Clone()

	require.NoError(t, cp.Send(sock))

	out := New()
	require.NoError(t, out.Recv(sock))
	assert.Equal(t, 10, out.Size())
	assert.Equal(t, 50, out.ContentSize())

	// sending the original separately must still work: Send on the clone
	// did not invalidate it.
	sock2 := &fakeSocket{}
	require.NoError(t, m.Send(sock2))
	assert.Len(t, sock2.queue, 10)
}

func TestFileRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	empty := New()
	require.NoError(t, empty.Save(&buf))
	loaded, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Size())

	buf.Reset()
	m := New()
	for i := 0; i < 10; i++ {
		m.AppendString("Frame")
	}
	require.NoError(t, m.Save(&buf))

	loaded, err = Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, m.Size(), loaded.Size())
	assert.Equal(t, m.ContentSize(), loaded.ContentSize())
}

func TestFrameManipulation(t *testing.T) {
	m := New()
	for i := 0; i < 10; i++ {
		m.AppendString(stringFrame(i))
	}

	for m.Size() > 2 {
		m.Remove(1)
	}
	assert.Equal(t, 2, m.Size())
	assert.Equal(t, "Frame0", m.FirstStr())
	assert.Equal(t, "Frame9", m.LastStr())

	m.Prepend(frame.NewString("Address"))
	m.AppendString("Body")

	assert.Equal(t, "Address", m.PopStr())
	assert.Equal(t, "Frame0", m.PopStr())
}

func stringFrame(i int) string {
	return "Frame" + string(rune('0'+i))
}

func TestEncodeDecodeEdgeCaseSizes(t *testing.T) {
	sizes := []int{0, 1, 253, 254, 255, 256, 65535, 65536, 65537}

	m := New()
	for _, sz := range sizes {
		m.AppendMem(make([]byte, sz))
	}
	assert.Equal(t, len(sizes), m.Size())

	buf := m.Encode()
	decoded := Decode(buf)
	assert.Equal(t, len(sizes), decoded.Size())
	for i, sz := range sizes {
		assert.Equal(t, sz, decoded.At(i).Size())
	}
}

func TestAppendSubmessage(t *testing.T) {
	m := New()
	m.AppendString("matr")

	sub := New()
	sub.AppendString("joska")
	m.AppendMessage(sub)

	// "matr" is not valid encoded Message bytes, so the first PopMsg
	// discards it and returns nil.
	assert.Nil(t, m.PopMsg())

	got := m.PopMsg()
	require.NotNil(t, got)
	assert.Equal(t, "joska", got.FirstStr())
}

func TestEmptyMessageBehaviour(t *testing.T) {
	m := New()
	assert.Nil(t, m.Unwrap())
	assert.Nil(t, m.First())
	assert.Nil(t, m.Last())
	assert.Nil(t, m.Next(nil))
	assert.Nil(t, m.Pop())

	sock := &fakeSocket{}
	require.NoError(t, m.Send(sock))
	assert.Len(t, sock.queue, 0)
}

func TestWrapUnwrapEnvelopeIdentity(t *testing.T) {
	id := frame.NewString("ID")

	cases := []*Message{New(), func() *Message {
		m := New()
		m.AppendString("body")
		return m
	}()}

	for _, body := range cases {
		before := body.ToStringList()
		body.Wrap(id.Clone())

		got := body.Unwrap()
		require.NotNil(t, got)
		assert.True(t, got.Equal(id))
		assert.Equal(t, before, body.ToStringList())
	}
}
