package hub

import (
	"fmt"
	"strconv"
	"time"

	czmq "github.com/zeromq/goczmq/v4"
)

// Client registers with a Hub's registrar and listens on the hub's
// notifier for registry change announcements.
type Client struct {
	address     string
	name        string
	hubEndpoint string

	registrar *czmq.Sock
	notifier  *czmq.Sock

	notifyPort int
}

// NewClient creates a Client identified by address and name; address is
// typically a host:port the client is reachable at for worker replies,
// name is a human-readable label carried in hub notifications.
func NewClient(address, name string) *Client {
	return &Client{address: address, name: name}
}

// ConnectToHub dials the hub's registrar at endpoint, registers the
// client (CMD_REQ), and connects to the returned notifier port.
func (c *Client) ConnectToHub(endpoint string, timeout time.Duration) error {
	var err error
	c.registrar, err = czmq.NewDealer(endpoint)
	if err != nil {
		return fmt.Errorf("hub client: dealer connect: %w", err)
	}
	c.hubEndpoint = endpoint

	if err := c.queryToHub(CmdRequest, ""); err != nil {
		return err
	}

	recv, err := recvWithTimeout(c.registrar, timeout)
	if err != nil {
		return fmt.Errorf("hub client: registration reply: %w", err)
	}
	msg := byte2DToStringArray(recv)
	if len(msg) > 0 && msg[0] == "" {
		msg = msg[1:] // empty delimiter echoed back by the registrar ROUTER
	}
	if len(msg) < 3 || msg[0] != HeaderClient || msg[1] != strconv.Itoa(CmdRequest) {
		return fmt.Errorf("hub client: malformed registration reply %v", msg)
	}

	port, err := strconv.Atoi(msg[2])
	if err != nil {
		return fmt.Errorf("hub client: invalid notify port %q: %w", msg[2], err)
	}
	c.notifyPort = port

	notifierEndpoint := endpointWithPort(endpoint, port)
	c.notifier, err = czmq.NewSub(notifierEndpoint, "")
	if err != nil {
		return fmt.Errorf("hub client: notifier connect: %w", err)
	}

	return nil
}

// NotifyPort returns the port the client is subscribed to for
// registry-change announcements.
func (c *Client) NotifyPort() int { return c.notifyPort }

// Disconnect tells the hub this client is going away.
func (c *Client) Disconnect() error {
	return c.queryToHub(CmdState, StateDisconnected)
}

// SendToWorker forwards command/value to the worker identified by
// workerID, via the hub's CMD_WORKER_CMD registrar path. workerID is the
// id returned to that worker by Worker.RegisterToHub.
func (c *Client) SendToWorker(workerID string, command int, value string) error {
	return c.queryToHub(CmdWorkerCmd, fmt.Sprintf("%s|%d|%s", workerID, command, value))
}

// RecvNotification blocks for the next registry-change announcement,
// returning its message and originating hub id.
func (c *Client) RecvNotification() (message, hubID string, err error) {
	recv, err := c.notifier.RecvMessage()
	if err != nil {
		return "", "", err
	}
	msg := byte2DToStringArray(recv)
	if len(msg) < 2 {
		return "", "", fmt.Errorf("hub client: malformed notification %v", msg)
	}
	return msg[0], msg[1], nil
}

// Close destroys the client's sockets.
func (c *Client) Close() error {
	if c.registrar != nil {
		c.registrar.Destroy()
	}
	if c.notifier != nil {
		c.notifier.Destroy()
	}
	return nil
}

func (c *Client) queryToHub(command int, value string) error {
	cmd := fmt.Sprintf("%d-%s", command, value)
	senderInfo := fmt.Sprintf("%s%%%s", c.address, c.name)
	msg := []string{"", HeaderClient, senderInfo, cmd}
	if err := c.registrar.SendMessage(stringArrayToByte2D(msg)); err != nil {
		return fmt.Errorf("hub client: send: %w", err)
	}
	return nil
}
