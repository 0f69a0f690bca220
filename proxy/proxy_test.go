package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nowrozi/qmq/qconfig"
	"github.com/nowrozi/qmq/qcontext"
	"github.com/nowrozi/qmq/socket"
)

func TestProxyFrontendBackendCapturePauseResume(t *testing.T) {
	ctx := qcontext.New(qconfig.DefaultContextConfig())
	defer ctx.Close()

	p, err := New(ctx)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Frontend("PULL", "inproc://proxy-test-frontend"))
	require.NoError(t, p.Backend("PUSH", "inproc://proxy-test-backend"))

	faucet, err := socket.New(ctx, socket.Push)
	require.NoError(t, err)
	require.NoError(t, faucet.Connect("inproc://proxy-test-frontend"))

	sink, err := socket.New(ctx, socket.Pull)
	require.NoError(t, err)
	require.NoError(t, sink.Connect("inproc://proxy-test-backend"))

	require.NoError(t, faucet.SendFrame([]byte("Hello"), 1))
	require.NoError(t, faucet.SendFrame([]byte("World"), 0))

	waitForFrame(t, sink, "Hello")
	waitForFrame(t, sink, "World")

	require.NoError(t, p.Pause())
	require.NoError(t, faucet.SendFrame([]byte("Hello"), 1))
	require.NoError(t, faucet.SendFrame([]byte("World"), 0))
	sink.SetRcvTimeout(100)
	_, _, err = sink.RecvFrame()
	assert.Error(t, err, "no traffic should arrive while paused")

	require.NoError(t, p.Resume())
	waitForFrame(t, sink, "Hello")
	waitForFrame(t, sink, "World")

	capture, err := socket.New(ctx, socket.Pull)
	require.NoError(t, err)
	_, err = capture.Bind("inproc://proxy-test-capture")
	require.NoError(t, err)

	require.NoError(t, p.Capture("inproc://proxy-test-capture"))
	require.NoError(t, faucet.SendFrame([]byte("Hello"), 1))
	require.NoError(t, faucet.SendFrame([]byte("World"), 0))

	waitForFrame(t, sink, "Hello")
	waitForFrame(t, sink, "World")
	waitForFrame(t, capture, "Hello")
	waitForFrame(t, capture, "World")
}

func waitForFrame(t *testing.T, s *socket.Socket, want string) {
	t.Helper()
	s.SetRcvTimeout(2000)
	data, _, err := s.RecvFrame()
	require.NoError(t, err)
	assert.Equal(t, want, string(data))
}

func TestParseTypeRejectsUnknownName(t *testing.T) {
	_, err := socket.ParseType("BOGUS")
	assert.Error(t, err)
}
