package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSocket is a minimal in-memory sender used to test Frame without a real
// transport; it models a single-peer loopback FIFO of frames.
type fakeSocket struct {
	queue []fakeFrame
}

type fakeFrame struct {
	data []byte
	more bool
}

func (s *fakeSocket) SendFrame(data []byte, flags int) error {
	cp := append([]byte(nil), data...)
	s.queue = append(s.queue, fakeFrame{data: cp, more: flags&sendFlagMore != 0})
	return nil
}

func (s *fakeSocket) RecvFrame() ([]byte, bool, error) {
	return s.RecvFrameNoWait()
}

func (s *fakeSocket) RecvFrameNoWait() ([]byte, bool, error) {
	if len(s.queue) == 0 {
		return nil, false, errEmpty
	}
	f := s.queue[0]
	s.queue = s.queue[1:]
	return f.data, f.more, nil
}

type sentinelError struct{}

func (sentinelError) Error() string { return "no frame available" }

var errEmpty error = sentinelError{}

func TestHexString(t *testing.T) {
	f := NewString("END")
	assert.Equal(t, "454E44", f.HexString())
}

func TestSendRecvRoundTrip(t *testing.T) {
	sock := &fakeSocket{}

	for i := 0; i < 10; i++ {
		f := NewString("Frame")
		flags := More
		if i == 9 {
			flags = 0
		}
		require.NoError(t, f.Send(sock, flags))
	}

	count := 0
	for {
		var f Frame
		if !f.Recv(sock) {
			break
		}
		count++
		if !f.HasMore() {
			break
		}
	}
	assert.Equal(t, 10, count)
}

func TestSendReuseKeepsOriginal(t *testing.T) {
	sock := &fakeSocket{}
	f := NewString("Hello")

	for i := 0; i < 5; i++ {
		require.NoError(t, f.Send(sock, Reuse))
		assert.Equal(t, "Hello", f.String(), "Reuse must not consume the original buffer")
	}
	assert.Len(t, sock.queue, 5)
}

func TestSendWithoutReuseConsumesBuffer(t *testing.T) {
	sock := &fakeSocket{}
	f := NewString("Hello")
	require.NoError(t, f.Send(sock, 0))
	assert.Equal(t, 0, f.Size())
}

func TestEquality(t *testing.T) {
	a := NewString("same")
	b := NewString("same")
	c := NewString("different")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestRecvNoWaitSetsMore(t *testing.T) {
	sock := &fakeSocket{}
	require.NoError(t, (NewString("a")).Send(sock, More))

	var f Frame
	rc := f.RecvNoWait(sock)
	assert.Equal(t, 1, rc)
	assert.True(t, f.HasMore())
}
