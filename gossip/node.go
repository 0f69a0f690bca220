// Node is a convenience broadcaster sitting above the Frame codec: it holds
// a set of remote PUSH-style sockets (one per gossip peer) and a rate
// limiter bounding how fast PUBLISH fan-out can leave the node, so one
// node's tuple storm can't saturate a mesh of peers.
//
// Grounded on original_source/test/qmq/gossip.cpp's Server_t (remotes list,
// tuples map, cur_tuple/message fields); the rate limit itself has no
// reference counterpart and is this module's own bound on fan-out.
package gossip

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/nowrozi/qmq/socket"
)

// Node tracks the tuples this process has published and fans each PUBLISH
// out to every connected remote, rate-limited to avoid flooding a mesh.
type Node struct {
	mu      sync.Mutex
	remotes []*socket.Socket
	tuples  map[string]string
	limiter *rate.Limiter
}

// NewNode returns a Node whose Publish calls are capped at ratePerSec
// PUBLISH frames per second, counted across all remotes together, with a
// burst of burst frames.
func NewNode(ratePerSec float64, burst int) *Node {
	return &Node{
		tuples:  make(map[string]string),
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

// AddRemote registers a PUSH (or DEALER) socket already connected to a
// peer's gossip listener as a fan-out destination.
func (n *Node) AddRemote(remote *socket.Socket) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.remotes = append(n.remotes, remote)
}

// Tuple returns the last known value for key and whether it is present.
func (n *Node) Tuple(key string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.tuples[key]
	return v, ok
}

// Publish records key=value locally and broadcasts a PUBLISH frame to
// every remote, blocking on the rate limiter so a burst of local updates
// degrades to a steady trickle on the wire rather than a flood. ctx
// cancellation aborts an in-progress wait early.
func (n *Node) Publish(ctx context.Context, key, value string, ttlMsecs uint32) error {
	n.mu.Lock()
	n.tuples[key] = value
	remotes := append([]*socket.Socket(nil), n.remotes...)
	n.mu.Unlock()

	for _, remote := range remotes {
		if err := n.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("gossip: publish rate limiter: %w", err)
		}
		f := New()
		f.SetID(MsgPublish)
		f.SetKey(key)
		f.SetValue(value)
		f.SetTimeToLive(ttlMsecs)
		if err := f.Send(remote); err != nil {
			return fmt.Errorf("gossip: publish to remote: %w", err)
		}
	}
	return nil
}

// Hello sends a bare HELLO announcement to every remote, used on join to
// let peers learn of this node without waiting for its first publish.
func (n *Node) Hello() error {
	n.mu.Lock()
	remotes := append([]*socket.Socket(nil), n.remotes...)
	n.mu.Unlock()

	for _, remote := range remotes {
		f := New()
		f.SetID(MsgHello)
		if err := f.Send(remote); err != nil {
			return fmt.Errorf("gossip: hello to remote: %w", err)
		}
	}
	return nil
}
