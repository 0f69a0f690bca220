package proxy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockSinkCallback struct {
	mock.Mock
}

func (m *mockSinkCallback) Handle(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func TestNewSinkFields(t *testing.T) {
	sink := NewSink("inproc://test-sink", "test-filter")

	assert.NotNil(t, sink)
	assert.Equal(t, "inproc://test-sink", sink.endpoint)
	assert.Equal(t, "test-filter", sink.filter)
	assert.False(t, sink.running)
	assert.Nil(t, sink.handler)
}

func TestSinkDefaultFields(t *testing.T) {
	sink := NewSink("inproc://test", "filter")

	fields := sink.defaultFields(nil)
	assert.Equal(t, "inproc://test", fields["endpoint"])
	assert.Equal(t, "filter", fields["filter"])
	assert.NotContains(t, fields, "err")

	withErr := sink.defaultFields(assert.AnError)
	assert.Equal(t, assert.AnError, withErr["err"])
}

func TestSinkSetHandler(t *testing.T) {
	sink := NewSink("inproc://test", "filter")
	callback := &mockSinkCallback{}
	handler := &SinkHandler{Callback: callback}

	assert.Nil(t, sink.handler)
	sink.SetHandler(handler)
	assert.Equal(t, handler, sink.handler)
	assert.Equal(t, callback, sink.handler.Callback)
}

func TestSinkRunningAndStop(t *testing.T) {
	sink := NewSink("inproc://test", "filter")
	assert.False(t, sink.Running())
	sink.running = true
	assert.True(t, sink.Running())
	sink.Stop()
	assert.False(t, sink.Running())
}

func TestSinkCallbackInterface(t *testing.T) {
	var callback SinkCallback = &mockSinkCallback{}
	mockCallback := callback.(*mockSinkCallback)
	testData := []byte("test data")
	mockCallback.On("Handle", testData).Return(nil)

	assert.NoError(t, mockCallback.Handle(testData))
	mockCallback.AssertExpectations(t)
}

func TestSinkRunStopsOnContextCancel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	sink := NewSink("inproc://sink-test-pub", "")
	callback := &mockSinkCallback{}
	received := make(chan []byte, 1)
	callback.On("Handle", mock.Anything).Run(func(args mock.Arguments) {
		received <- args.Get(0).([]byte)
	}).Return(nil)
	sink.SetHandler(&SinkHandler{Callback: callback})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go sink.Run(ctx, &wg)

	time.Sleep(150 * time.Millisecond)
	cancel()
	wg.Wait()
	assert.False(t, sink.Running())
}
