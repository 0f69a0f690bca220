package actor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nowrozi/qmq/qconfig"
	"github.com/nowrozi/qmq/qcontext"
)

func TestEchoActorRoundTrip(t *testing.T) {
	ctx := qcontext.New(qconfig.DefaultContextConfig())
	defer ctx.Close()

	a, err := New(ctx, echoHandler, "Hello, World")
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Pipe().SendMessage([][]byte{[]byte("ECHO"), []byte("This is a string")}))

	parts, err := a.Pipe().RecvMessage()
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "This is a string", string(parts[0]))
}

func TestActorTermShutsDownCleanly(t *testing.T) {
	ctx := qcontext.New(qconfig.DefaultContextConfig())
	defer ctx.Close()

	a, err := New(ctx, echoHandler, "Hello, World")
	require.NoError(t, err)

	assert.NoError(t, a.Close())
	// Close is idempotent.
	assert.NoError(t, a.Close())
}

func TestEchoActorRejectsWrongArgs(t *testing.T) {
	ctx := qcontext.New(qconfig.DefaultContextConfig())
	defer ctx.Close()

	assert.Panics(t, func() {
		echoHandler(nil, "wrong args")
	})
}
