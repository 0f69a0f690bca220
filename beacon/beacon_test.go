package beacon

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBeacon(t *testing.T) *Beacon {
	t.Helper()

	b, err := New("*", 0)
	if err != nil {
		t.Skipf("no broadcast-capable interface available: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestPublishRejectsOversizedPayload(t *testing.T) {
	b := newTestBeacon(t)
	err := b.Publish(make([]byte, 256), 100*time.Millisecond)
	assert.Error(t, err)
}

func TestPublishThenSilenceClearsTransmit(t *testing.T) {
	b := newTestBeacon(t)
	require.NoError(t, b.Publish([]byte("hello"), 100*time.Millisecond))

	b.mu.Lock()
	transmit := b.transmit
	b.mu.Unlock()
	assert.Equal(t, []byte("hello"), transmit)

	b.Silence()

	b.mu.Lock()
	transmit = b.transmit
	b.mu.Unlock()
	assert.Nil(t, transmit)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := newTestBeacon(t)
	require.NoError(t, b.Subscribe([]byte("NODE")))

	b.mu.Lock()
	filterSet := b.filterSet
	b.mu.Unlock()
	assert.True(t, filterSet)

	b.Unsubscribe()

	b.mu.Lock()
	filterSet = b.filterSet
	b.mu.Unlock()
	assert.False(t, filterSet)
}

func TestHandleDatagramDropsWithoutSubscription(t *testing.T) {
	b := newTestBeacon(t)
	b.handleDatagram([]byte("NODE/1"), &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})

	select {
	case a := <-b.announcements:
		t.Fatalf("unexpected announcement without an active subscription: %+v", a)
	default:
	}
}

func TestHandleDatagramMatchesFilter(t *testing.T) {
	b := newTestBeacon(t)
	require.NoError(t, b.Subscribe([]byte("NODE")))

	b.handleDatagram([]byte("NODE/1"), &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	b.handleDatagram([]byte("RANDOM"), &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})

	select {
	case a := <-b.announcements:
		assert.Equal(t, "NODE/1", string(a.Payload))
		assert.Equal(t, "127.0.0.1", a.PeerAddress)
	case <-time.After(time.Second):
		t.Fatal("expected one matching announcement")
	}

	select {
	case a := <-b.announcements:
		t.Fatalf("unexpected second announcement: %+v", a)
	default:
	}
}

func TestHandleDatagramSuppressesOwnBroadcast(t *testing.T) {
	b := newTestBeacon(t)
	require.NoError(t, b.Subscribe(nil))
	require.NoError(t, b.Publish([]byte("\xCA\xFE"), time.Second))

	b.handleDatagram([]byte("\xCA\xFE"), &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})

	select {
	case a := <-b.announcements:
		t.Fatalf("self-broadcast should have been suppressed: %+v", a)
	default:
	}
}

func TestBroadcastAddressUnknownInterface(t *testing.T) {
	_, err := broadcastAddress("definitely-not-a-real-interface")
	assert.Error(t, err)
}

func TestStartStopDoesNotBlock(t *testing.T) {
	b := newTestBeacon(t)
	b.Start()
	time.Sleep(50 * time.Millisecond)
	b.Stop()
}
