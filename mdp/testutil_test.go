package mdp

import (
	"fmt"

	czmq "github.com/zeromq/goczmq/v4"
)

// bindEphemeralBroker scans a small range of local ports and returns a
// Broker already bound to the first free one, along with its endpoint.
func bindEphemeralBroker() (*Broker, string, error) {
	for port := 17000; port < 17100; port++ {
		endpoint := fmt.Sprintf("tcp://127.0.0.1:%d", port)
		broker, err := NewBroker(endpoint)
		if err != nil {
			continue
		}
		if err := broker.Bind(); err != nil {
			continue
		}
		return broker, endpoint, nil
	}
	return nil, "", fmt.Errorf("mdp: no free port found for test broker")
}

// bindEphemeralRouter is the same port scan for a bare ROUTER socket, used
// by tests that play the broker side by hand.
func bindEphemeralRouter() (*czmq.Sock, string, error) {
	for port := 17100; port < 17200; port++ {
		endpoint := fmt.Sprintf("tcp://127.0.0.1:%d", port)
		sock, err := czmq.NewRouter(endpoint)
		if err != nil {
			continue
		}
		return sock, endpoint, nil
	}
	return nil, "", fmt.Errorf("mdp: no free port found for test router")
}
