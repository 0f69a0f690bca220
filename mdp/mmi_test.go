package mdp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBrokerNoBind(t *testing.T) *Broker {
	t.Helper()
	broker, err := NewBroker("inproc://unused")
	require.NoError(t, err)
	return broker
}

func TestIsMMIService(t *testing.T) {
	assert.True(t, IsMMIService("mmi.service"))
	assert.True(t, IsMMIService("mmi.anything"))
	assert.False(t, IsMMIService("echo"))
}

func TestMMIServiceQueryUnknownService(t *testing.T) {
	broker := newTestBrokerNoBind(t)
	handler := NewMMIHandler(broker)

	resp, err := handler.HandleRequest(MMIService, []string{"nope"})
	require.NoError(t, err)
	assert.Equal(t, []string{MMICodeNotFound}, resp)
}

func TestMMIServiceQueryKnownService(t *testing.T) {
	broker := newTestBrokerNoBind(t)
	handler := NewMMIHandler(broker)

	svc := broker.ServiceRequire("echo")
	svc.waiting = append(svc.waiting, &brokerWorker{})

	resp, err := handler.HandleRequest(MMIService, []string{"echo"})
	require.NoError(t, err)
	assert.Equal(t, []string{MMICodeOK}, resp)
}

func TestMMIWorkersQuery(t *testing.T) {
	broker := newTestBrokerNoBind(t)
	handler := NewMMIHandler(broker)

	svc := broker.ServiceRequire("echo")
	svc.waiting = append(svc.waiting, &brokerWorker{}, &brokerWorker{})

	resp, err := handler.HandleRequest(MMIWorkers, []string{"echo"})
	require.NoError(t, err)
	require.Len(t, resp, 2)
	assert.Equal(t, MMICodeOK, resp[0])
	assert.Equal(t, "2", resp[1])
}

func TestMMIFilterToggle(t *testing.T) {
	broker := newTestBrokerNoBind(t)
	handler := NewMMIHandler(broker)

	resp, err := handler.HandleRequest(MMIFilter, []string{MMIFilterEnable, "echo", "danger"})
	require.NoError(t, err)
	assert.Equal(t, []string{MMICodeOK}, resp)
	assert.True(t, broker.isCommandBlocked("echo", []string{"danger"}))

	resp, err = handler.HandleRequest(MMIFilter, []string{MMIFilterDisable, "echo", "danger"})
	require.NoError(t, err)
	assert.Equal(t, []string{MMICodeOK}, resp)
	assert.False(t, broker.isCommandBlocked("echo", []string{"danger"}))
}

func TestMMIFilterToggleBadRequest(t *testing.T) {
	broker := newTestBrokerNoBind(t)
	handler := NewMMIHandler(broker)

	resp, err := handler.HandleRequest(MMIFilter, []string{"enable", "echo"})
	require.NoError(t, err)
	assert.Equal(t, []string{MMICodeBadRequest}, resp)
}

func TestMMIUnknownServiceNotImplemented(t *testing.T) {
	broker := newTestBrokerNoBind(t)
	handler := NewMMIHandler(broker)

	resp, err := handler.HandleRequest("mmi.bogus", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{MMICodeNotImplemented}, resp)
}

func TestValidateMMIRequest(t *testing.T) {
	assert.NoError(t, ValidateMMIRequest(MMIService, []string{"echo"}))
	assert.Error(t, ValidateMMIRequest(MMIService, nil))
	assert.Error(t, ValidateMMIRequest("echo", []string{"echo"}))
	assert.Error(t, ValidateMMIRequest(MMIFilter, []string{"enable"}))
}
