package proxy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewSourceFields(t *testing.T) {
	source := NewSource("inproc://test-source", "test-envelope")

	assert.NotNil(t, source)
	assert.Equal(t, "inproc://test-source", source.endpoint)
	assert.Equal(t, "test-envelope", source.envelope)
	assert.False(t, source.running)
	assert.NotNil(t, source.queue)
}

func TestSourceDefaultFields(t *testing.T) {
	source := NewSource("inproc://test", "envelope")

	fields := source.defaultFields(nil)
	assert.Equal(t, "inproc://test", fields["endpoint"])
	assert.Equal(t, "envelope", fields["envelope"])
	assert.NotContains(t, fields, "err")

	withErr := source.defaultFields(assert.AnError)
	assert.Equal(t, assert.AnError, withErr["err"])
}

func TestSourceRunningAndStop(t *testing.T) {
	source := NewSource("inproc://test", "envelope")
	assert.False(t, source.Running())
	source.running = true
	assert.True(t, source.Running())
	source.Stop()
	assert.False(t, source.Running())
}

func TestSourceQueueMessagePanicsWhenStopped(t *testing.T) {
	source := NewSource("inproc://test", "envelope")
	assert.Panics(t, func() {
		source.QueueMessage([]byte("test"))
	})
}

func TestSourceQueueMessageDelivers(t *testing.T) {
	source := NewSource("inproc://test", "envelope")
	source.running = true
	message := []byte("test message")

	go source.QueueMessage(message)

	select {
	case received := <-source.queue:
		assert.Equal(t, message, received)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSourceShutdownOnlyWhenRunning(t *testing.T) {
	source := NewSource("inproc://test", "envelope")
	source.running = true

	go source.Shutdown()
	select {
	case received := <-source.queue:
		assert.Equal(t, shutdownCommand, received)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for shutdown command")
	}

	source2 := NewSource("inproc://test2", "envelope")
	source2.running = false
	go source2.Shutdown()
	select {
	case <-source2.queue:
		t.Fatal("should not receive shutdown command when not running")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestShutdownCommandBytes(t *testing.T) {
	assert.Equal(t, []byte{0x0D, 0x0E, 0x0A, 0x0D}, shutdownCommand)
}

func TestSourceRunStopsOnShutdown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	source := NewSource("inproc://source-test-pub", "topic")

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go source.Run(ctx, &wg)

	time.Sleep(100 * time.Millisecond)
	assert.True(t, source.Running())

	source.Shutdown()
	wg.Wait()
	assert.False(t, source.Running())
}
