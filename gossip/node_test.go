package gossip

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nowrozi/qmq/qconfig"
	"github.com/nowrozi/qmq/qcontext"
	"github.com/nowrozi/qmq/socket"
)

func TestNodePublishRoundTrip(t *testing.T) {
	ctx := qcontext.New(qconfig.DefaultContextConfig())
	defer ctx.Close()

	remote, err := socket.New(ctx, socket.Pair)
	require.NoError(t, err)
	port, err := remote.Bind("tcp://127.0.0.1:*")
	require.NoError(t, err)

	peer, err := socket.New(ctx, socket.Pair)
	require.NoError(t, err)
	require.NoError(t, peer.Connect("tcp://127.0.0.1:"+strconv.Itoa(port)))

	node := NewNode(1000, 10)
	node.AddRemote(peer)

	require.NoError(t, node.Publish(context.Background(), "site", "here", 60000))

	f := New()
	require.NoError(t, f.Recv(remote))
	assert.Equal(t, MsgPublish, f.ID())
	assert.Equal(t, "site", f.Key())
	assert.Equal(t, "here", f.Value())

	v, ok := node.Tuple("site")
	assert.True(t, ok)
	assert.Equal(t, "here", v)
}

func TestNodePublishRespectsRateLimit(t *testing.T) {
	ctx := qcontext.New(qconfig.DefaultContextConfig())
	defer ctx.Close()

	remote, err := socket.New(ctx, socket.Pair)
	require.NoError(t, err)
	port, err := remote.Bind("tcp://127.0.0.1:*")
	require.NoError(t, err)

	peer, err := socket.New(ctx, socket.Pair)
	require.NoError(t, err)
	require.NoError(t, peer.Connect("tcp://127.0.0.1:"+strconv.Itoa(port)))

	node := NewNode(1, 1)
	node.AddRemote(peer)

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.NoError(t, node.Publish(context.Background(), "a", "1", 0))
	err = node.Publish(cctx, "a", "2", 0)
	assert.Error(t, err)
}

func TestNodeHelloBroadcast(t *testing.T) {
	ctx := qcontext.New(qconfig.DefaultContextConfig())
	defer ctx.Close()

	remote, err := socket.New(ctx, socket.Pair)
	require.NoError(t, err)
	port, err := remote.Bind("tcp://127.0.0.1:*")
	require.NoError(t, err)

	peer, err := socket.New(ctx, socket.Pair)
	require.NoError(t, err)
	require.NoError(t, peer.Connect("tcp://127.0.0.1:"+strconv.Itoa(port)))

	node := NewNode(1000, 10)
	node.AddRemote(peer)

	require.NoError(t, node.Hello())

	f := New()
	require.NoError(t, f.Recv(remote))
	assert.Equal(t, MsgHello, f.ID())
}

