package mdp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientConnects(t *testing.T) {
	router, endpoint, err := bindEphemeralRouter()
	require.NoError(t, err)
	defer router.Destroy()

	client, err := NewClient(endpoint)
	require.NoError(t, err)
	require.NotNil(t, client)
	defer func() { _ = client.Close() }()

	assert.Equal(t, endpoint, client.broker)
	assert.Equal(t, 2500*time.Millisecond, client.timeout)
}

func TestClientSetTimeout(t *testing.T) {
	router, endpoint, err := bindEphemeralRouter()
	require.NoError(t, err)
	defer router.Destroy()

	client, err := NewClient(endpoint)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	client.SetTimeout(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, client.timeout)
}

func TestClientRecvTimesOutWithNoReply(t *testing.T) {
	router, endpoint, err := bindEphemeralRouter()
	require.NoError(t, err)
	defer router.Destroy()

	client, err := NewClient(endpoint)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	client.SetTimeout(100 * time.Millisecond)

	require.NoError(t, client.Send("echo", "ping"))

	_, err = client.Recv()
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClientSendFrameLayout(t *testing.T) {
	router, endpoint, err := bindEphemeralRouter()
	require.NoError(t, err)
	defer router.Destroy()

	client, err := NewClient(endpoint)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	require.NoError(t, client.Send("echo", "Hello world!"))

	recv, err := router.RecvMessage()
	require.NoError(t, err)
	frames := byte2DToStringArray(recv)

	// identity, empty delimiter, header, service, body...
	require.Len(t, frames, 5)
	assert.Equal(t, "", frames[1])
	assert.Equal(t, MdpClient, frames[2])
	assert.Equal(t, "echo", frames[3])
	assert.Equal(t, "Hello world!", frames[4])
}

func TestClientRecvReportParsesReply(t *testing.T) {
	router, endpoint, err := bindEphemeralRouter()
	require.NoError(t, err)
	defer router.Destroy()

	client, err := NewClient(endpoint)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	client.SetTimeout(2 * time.Second)

	require.NoError(t, client.Send("echo", "ping"))

	recv, err := router.RecvMessage()
	require.NoError(t, err)
	identity := recv[0]

	reply := [][]byte{identity, []byte(""), []byte(MdpClient), []byte(MdpcReport), []byte("echo"), []byte("pong")}
	require.NoError(t, router.SendMessage(reply))

	command, msg, err := client.RecvReport()
	require.NoError(t, err)
	assert.Equal(t, MdpcReport, command)
	require.Len(t, msg, 1)
	assert.Equal(t, "pong", msg[0])
}
