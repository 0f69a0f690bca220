// Package beacon is a thin UDP discovery helper: it broadcasts an
// application-defined payload at an interval and reports any payload
// received back that matches an optional filter, suppressing its own
// broadcasts.
//
// Grounded on original_source/qmq/beacon.cpp's BeaconHandler/qbeacon
// actor, kept to the extent spec.md §1 calls for (the UDP beacon is
// explicitly out of algorithmic scope): one UDP port, a configured
// transmit payload, filter-matched forwarding, self-echo suppression,
// two-value announcement delivery. The reference's platform-specific
// bind-address-vs-send-address special-casing (Windows binds to
// INADDR_ANY, Linux binds to the broadcast address itself "because it
// doesn't work on CentOS Qt 4.7") is not reproduced: this package binds
// its listening socket to the broadcast address on all platforms and
// sends to that same address, per SPEC_FULL.md's Open Question
// resolution.
package beacon

import (
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Announcement is one beacon payload accepted past the active filter,
// paired with the address it arrived from.
type Announcement struct {
	PeerAddress string
	Payload     []byte
}

// Beacon broadcasts and listens for UDP discovery payloads on one port.
type Beacon struct {
	conn      *net.UDPConn
	port      int
	broadcast *net.UDPAddr

	mu        sync.Mutex
	transmit  []byte
	interval  time.Duration
	filter    []byte
	filterSet bool
	verbose   bool

	announcements chan Announcement

	stop chan struct{}
	done chan struct{}
}

// New binds a Beacon to port on the interface's broadcast address.
// iface selects a specific network interface by name; an empty string
// or "*" selects the first broadcast-capable interface found, and only
// that one is used.
func New(iface string, port int) (*Beacon, error) {
	broadcastIP, err := broadcastAddress(iface)
	if err != nil {
		return nil, fmt.Errorf("beacon: %w", err)
	}

	addr := &net.UDPAddr{IP: broadcastIP, Port: port}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("beacon: listen on %s: %w", addr, err)
	}

	b := &Beacon{
		conn:          conn,
		port:          port,
		broadcast:     addr,
		announcements: make(chan Announcement, 16),
	}

	log.WithFields(log.Fields{"port": port, "broadcast": broadcastIP.String()}).Info("beacon configured")

	return b, nil
}

// SetVerbose toggles debug-level logging of every beacon API command,
// mirroring the reference's VERBOSE pipe command.
func (b *Beacon) SetVerbose(v bool) {
	b.mu.Lock()
	b.verbose = v
	b.mu.Unlock()
}

// Publish sets the payload to broadcast every interval, starting
// immediately. Calling Publish again replaces the payload and resets
// the broadcast timer.
func (b *Beacon) Publish(payload []byte, interval time.Duration) error {
	if len(payload) > 255 {
		return fmt.Errorf("beacon: payload exceeds 255 bytes (%d)", len(payload))
	}
	b.mu.Lock()
	b.transmit = append([]byte(nil), payload...)
	b.interval = interval
	b.mu.Unlock()
	return nil
}

// Silence stops broadcasting, per the reference's SILENCE command.
func (b *Beacon) Silence() {
	b.mu.Lock()
	b.transmit = nil
	b.mu.Unlock()
}

// Subscribe sets a prefix filter: only received payloads starting with
// filter are delivered on Announcements. An empty, non-nil filter
// accepts everything.
func (b *Beacon) Subscribe(filter []byte) error {
	if len(filter) > 255 {
		return fmt.Errorf("beacon: filter exceeds 255 bytes (%d)", len(filter))
	}
	b.mu.Lock()
	b.filter = append([]byte(nil), filter...)
	b.filterSet = true
	b.mu.Unlock()
	return nil
}

// Unsubscribe clears the active filter; no incoming payloads are
// delivered until Subscribe is called again.
func (b *Beacon) Unsubscribe() {
	b.mu.Lock()
	b.filter = nil
	b.filterSet = false
	b.mu.Unlock()
}

// Announcements returns the channel filter-matched peer payloads arrive
// on.
func (b *Beacon) Announcements() <-chan Announcement {
	return b.announcements
}

// Start launches the broadcast and receive loops. Stop ends them.
func (b *Beacon) Start() {
	b.stop = make(chan struct{})
	b.done = make(chan struct{})

	go b.run()
}

func (b *Beacon) run() {
	defer close(b.done)

	readBuf := make([]byte, 1024)
	nextPing := time.Now()

	for {
		select {
		case <-b.stop:
			return
		default:
		}

		b.mu.Lock()
		transmit := b.transmit
		interval := b.interval
		b.mu.Unlock()

		if transmit != nil && !time.Now().Before(nextPing) {
			if _, err := b.conn.WriteToUDP(transmit, b.broadcast); err != nil {
				log.WithError(err).Warn("beacon: failed to send broadcast")
			}
			nextPing = time.Now().Add(interval)
		}

		readDeadline := 250 * time.Millisecond
		if transmit != nil {
			if wait := time.Until(nextPing); wait > 0 && wait < readDeadline {
				readDeadline = wait
			}
		}

		_ = b.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, peer, err := b.conn.ReadFromUDP(readBuf)
		if err != nil {
			continue // timeout or transient read error, loop back to the publish check
		}

		b.handleDatagram(readBuf[:n], peer)
	}
}

func (b *Beacon) handleDatagram(payload []byte, peer *net.UDPAddr) {
	b.mu.Lock()
	transmit := b.transmit
	filter := b.filter
	filterSet := b.filterSet
	b.mu.Unlock()

	if !filterSet {
		return
	}
	if len(payload) < len(filter) || string(payload[:len(filter)]) != string(filter) {
		return
	}

	// discard our own broadcasts, which a broadcast address echoes back
	if transmit != nil && string(payload) == string(transmit) {
		return
	}

	announcement := Announcement{PeerAddress: peer.IP.String(), Payload: append([]byte(nil), payload...)}
	select {
	case b.announcements <- announcement:
	default:
		log.Warn("beacon: announcement channel full, dropping")
	}
}

// Stop ends the broadcast and receive loops and waits for them to exit.
func (b *Beacon) Stop() {
	if b.stop == nil {
		return
	}
	close(b.stop)
	<-b.done
}

// Close stops the beacon and closes its UDP socket.
func (b *Beacon) Close() error {
	b.Stop()
	return b.conn.Close()
}

func broadcastAddress(iface string) (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	for _, nf := range ifaces {
		if iface != "" && iface != "*" && nf.Name != iface {
			continue
		}
		if nf.Flags&net.FlagBroadcast == 0 || nf.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := nf.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			broadcast := make(net.IP, len(ipnet.IP.To4()))
			ip := ipnet.IP.To4()
			mask := ipnet.Mask
			for i := range ip {
				broadcast[i] = ip[i] | ^mask[i]
			}
			return broadcast, nil
		}
	}

	return nil, fmt.Errorf("no broadcast-capable interface found (iface=%q)", iface)
}
