package hub

import (
	"fmt"
	"strings"
	"time"

	czmq "github.com/zeromq/goczmq/v4"
)

// recvWithTimeout waits up to timeout for a message on sock, using a
// one-shot poller the way the mdp client does for its request/reply
// round trip.
func recvWithTimeout(sock *czmq.Sock, timeout time.Duration) ([][]byte, error) {
	poller, err := czmq.NewPoller(sock)
	if err != nil {
		return nil, err
	}
	defer poller.Destroy()

	ready, err := poller.Wait(int(timeout / time.Millisecond))
	if err != nil {
		return nil, err
	}
	if ready == nil {
		return nil, fmt.Errorf("hub: timed out waiting for reply")
	}
	return sock.RecvMessage()
}

// endpointWithPort rewrites the port of a "tcp://host:port" endpoint,
// used to derive a hub's secondary socket endpoints from its registrar
// endpoint plus the port numbers exchanged during registration.
func endpointWithPort(endpoint string, port int) string {
	scheme := "tcp://"
	rest := strings.TrimPrefix(endpoint, scheme)
	host := rest
	if idx := strings.LastIndex(rest, ":"); idx >= 0 {
		host = rest[:idx]
	}
	return fmt.Sprintf("%s%s:%d", scheme, host, port)
}
