package mdp

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// MMIHandler answers Majordomo Management Interface requests on behalf of
// a broker.
type MMIHandler struct {
	broker *Broker
}

// NewMMIHandler creates a new MMI handler for the given broker.
func NewMMIHandler(broker *Broker) *MMIHandler {
	return &MMIHandler{broker: broker}
}

// HandleRequest dispatches an MMI request to the handler for its service
// name and returns the response body frames.
func (m *MMIHandler) HandleRequest(service string, request []string) ([]string, error) {
	log.WithFields(log.Fields{"service": service, "request": request}).Debug("handling MMI request")

	switch service {
	case MMIService:
		return m.handleServiceQuery(request)
	case MMIWorkers:
		return m.handleWorkersQuery(request)
	case MMIHeartbeat:
		return m.handleHeartbeatQuery(request)
	case MMIBroker:
		return m.handleBrokerQuery(request)
	case MMIFilter:
		return m.handleFilterToggle(request)
	default:
		log.WithField("service", service).Warn("unknown MMI service requested")
		return []string{MMICodeNotImplemented}, nil
	}
}

// IsMMIService reports whether a service name carries the reserved mmi.
// prefix.
func IsMMIService(serviceName string) bool {
	return strings.HasPrefix(serviceName, MMINamespace)
}

// handleServiceQuery implements mmi.service: 200 if the named service has
// at least one waiting worker, else 404; 400 when no name is given.
func (m *MMIHandler) handleServiceQuery(request []string) ([]string, error) {
	if len(request) < 1 || request[0] == "" {
		return []string{MMICodeBadRequest}, nil
	}

	name := request[0]
	if IsMMIService(name) {
		if _, exists := MMIServices[name]; exists {
			return []string{MMICodeOK}, nil
		}
		return []string{MMICodeNotFound}, nil
	}

	if service, exists := m.broker.services[name]; exists && len(service.waiting) > 0 {
		return []string{MMICodeOK}, nil
	}
	return []string{MMICodeNotFound}, nil
}

// handleWorkersQuery implements mmi.workers: returns the number of idle
// workers currently bound to a service.
func (m *MMIHandler) handleWorkersQuery(request []string) ([]string, error) {
	if len(request) < 1 || request[0] == "" {
		return []string{MMICodeBadRequest}, nil
	}

	name := request[0]
	service, exists := m.broker.services[name]
	if !exists {
		return []string{MMICodeNotFound, "0"}, nil
	}
	return []string{MMICodeOK, fmt.Sprintf("%d", len(service.waiting))}, nil
}

// handleHeartbeatQuery implements mmi.heartbeat: an echo used to verify
// the broker's control channel is alive.
func (m *MMIHandler) handleHeartbeatQuery(request []string) ([]string, error) {
	response := []string{MMICodeOK, fmt.Sprintf("heartbeat-echo-%d", time.Now().Unix())}
	return append(response, request...), nil
}

// handleBrokerQuery implements mmi.broker: broker identity and runtime
// information.
func (m *MMIHandler) handleBrokerQuery(_ []string) ([]string, error) {
	response := []string{MMICodeOK}

	info := []string{
		fmt.Sprintf("version=%s/%s", MdpClient, MdpWorker),
		fmt.Sprintf("uptime_seconds=%d", int(time.Since(m.broker.startTime).Seconds())),
		fmt.Sprintf("go_version=%s", runtime.Version()),
		fmt.Sprintf("services=%d", len(m.broker.services)),
	}

	totalWorkers := 0
	for _, service := range m.broker.services {
		totalWorkers += len(service.waiting)
	}
	info = append(info, fmt.Sprintf("workers=%d", totalWorkers))

	return append(response, info...), nil
}

// handleFilterToggle implements mmi.filter (enable|disable) <service>
// <command>: toggles a per-service command blacklist. Requests whose
// first body frame names a blacklisted command are rejected with NAK
// instead of being dispatched to a worker.
func (m *MMIHandler) handleFilterToggle(request []string) ([]string, error) {
	if len(request) < 3 {
		return []string{MMICodeBadRequest}, nil
	}

	op, service, command := request[0], request[1], request[2]
	if service == "" || command == "" {
		return []string{MMICodeBadRequest}, nil
	}

	switch op {
	case MMIFilterEnable:
		m.broker.BlacklistCommand(service, command)
	case MMIFilterDisable:
		m.broker.AllowCommand(service, command)
	default:
		return []string{MMICodeBadRequest}, nil
	}

	return []string{MMICodeOK}, nil
}

// GetSupportedServices returns the names of all MMI services this handler
// answers.
func (m *MMIHandler) GetSupportedServices() []string {
	services := make([]string, 0, len(MMIServices))
	for service := range MMIServices {
		services = append(services, service)
	}
	return services
}

// ValidateMMIRequest checks an MMI request's shape before dispatch.
func ValidateMMIRequest(service string, request []string) error {
	if !IsMMIService(service) {
		return NewInvalidServiceError(fmt.Sprintf("'%s' is not an MMI service", service), nil)
	}
	if _, exists := MMIServices[service]; !exists {
		return NewServiceNotFoundError(service, nil)
	}

	switch service {
	case MMIService, MMIWorkers:
		if len(request) < 1 || request[0] == "" {
			return NewInvalidMessageError("service name required for "+service, nil)
		}
	case MMIFilter:
		if len(request) < 3 {
			return NewInvalidMessageError("mmi.filter requires op, service, command", nil)
		}
	}

	return nil
}
