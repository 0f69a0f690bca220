package mdp

import (
	"fmt"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// Client is a single MDP client instance. It uses a DEALER socket rather
// than REQ so a caller can pipeline any number of requests without
// waiting for each reply in turn.
type Client struct {
	broker  string
	client  *czmq.Sock
	timeout time.Duration
	poller  *czmq.Poller
	verbose bool
}

// NewClient creates and connects an MDP client to broker.
func NewClient(broker string) (c *Client, err error) {
	c = &Client{
		broker:  broker,
		timeout: 2500 * time.Millisecond,
	}

	err = c.ConnectToBroker()
	runtime.SetFinalizer(c, (*Client).Close)

	return
}

// Close releases the client's socket and poller.
func (c *Client) Close() (err error) {
	if c.poller != nil {
		c.poller.Destroy()
		c.poller = nil
	}
	if c.client != nil {
		c.client.Destroy()
		c.client = nil
	}
	return
}

// SetVerbose enables trace logging of every frame sent and received.
func (c *Client) SetVerbose(v bool) { c.verbose = v }

// SetTimeout sets how long Recv waits for a reply before giving up.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// ConnectToBroker connects or reconnects to the broker.
func (c *Client) ConnectToBroker() (err error) {
	_ = c.Close()

	if c.client, err = czmq.NewDealer(c.broker); err != nil {
		err = NewConnectionFailedError(c.broker, err)
		log.WithFields(log.Fields{"broker": c.broker, "error": err}).Error("failed to create dealer socket")
		return
	}
	if c.poller, err = czmq.NewPoller(c.client); err != nil {
		err = NewMDPError(ErrCodeSocketError, "failed to create poller", err)
		log.WithFields(log.Fields{"broker": c.broker, "error": err}).Error("failed to create poller")
		_ = c.Close()
		return
	}

	log.WithFields(log.Fields{"broker": c.broker}).Info("client connected to broker")
	return
}

// Send dispatches a request to service. Frame layout: empty delimiter,
// QMDPC01, service name, request body.
func (c *Client) Send(service string, request ...string) error {
	m := make([]string, 3, 3+len(request))
	m[0] = ""
	m[1] = MdpClient
	m[2] = service
	m = append(m, request...)

	if c.verbose {
		log.WithFields(log.Fields{"service": service, "request": request}).Trace("sending request")
	}
	return c.client.SendMessage(stringArrayToByte2D(m))
}

// Recv waits up to the configured timeout for one reply and returns its
// body. The REPORT/NAK command and the service name that answered are
// discarded; RecvReport returns the command but not the service name.
func (c *Client) Recv() (msg []string, err error) {
	_, msg, err = c.RecvReport()
	return
}

// RecvReport waits for one reply and returns its command (REPORT or NAK)
// along with the body.
func (c *Client) RecvReport() (command string, msg []string, err error) {
	socket, perr := c.poller.Wait(int(c.timeout / time.Millisecond))
	if perr != nil {
		return "", nil, NewMDPError(ErrCodeSocketError, "client poll failed", perr)
	}
	if socket == nil {
		return "", nil, NewTimeoutError("client timed out waiting for reply", ErrTimeout).WithContext("broker", c.broker)
	}

	recv, rerr := socket.RecvMessage()
	if rerr != nil {
		return "", nil, NewMDPError(ErrCodeSocketError, "client recv failed", rerr)
	}
	frames := byte2DToStringArray(recv)

	// Frame layout: empty delimiter, QMDPC01, REPORT|NAK, service, body...
	_, frames = popStr(frames)
	if err := validateBrokerToClientMessage(frames); err != nil {
		return "", nil, fmt.Errorf("mdp: invalid reply: %w", err)
	}

	_, frames = popStr(frames) // header, already validated
	command, frames = popStr(frames)
	_, frames = popStr(frames) // service name, unused by caller
	return command, frames, nil
}
