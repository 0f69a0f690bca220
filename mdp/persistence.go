package mdp

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// PersistenceStore defines the interface for request persistence.
type PersistenceStore interface {
	StoreRequest(id string, request *Request) error
	RetrieveRequest(id string) (*Request, error)
	DeleteRequest(id string) error
	ListPendingRequests() ([]string, error)
	Close() error
}

// Request represents a persisted client request with retry metadata.
type Request struct {
	ID         string        `json:"id"`
	Client     string        `json:"client"`
	Service    string        `json:"service"`
	Data       []string      `json:"data"`
	Timestamp  time.Time     `json:"timestamp"`
	Retries    int           `json:"retries"`
	MaxRetries int           `json:"max_retries"`
	TTL        time.Duration `json:"ttl"`
	Status     string        `json:"status"` // pending, processing, completed, failed
}

// MemoryPersistenceStore implements in-memory persistence. It is the
// broker's default store; BoltPersistenceStore is the opt-in durable
// alternative.
type MemoryPersistenceStore struct {
	mu       sync.RWMutex
	requests map[string]*Request
}

// NewMemoryPersistenceStore creates a new in-memory persistence store.
func NewMemoryPersistenceStore() PersistenceStore {
	return &MemoryPersistenceStore{
		requests: make(map[string]*Request),
	}
}

// StoreRequest stores a request in memory.
func (m *MemoryPersistenceStore) StoreRequest(id string, request *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if request == nil {
		return fmt.Errorf("request cannot be nil")
	}

	if request.ID == "" {
		request.ID = id
	}
	if request.Timestamp.IsZero() {
		request.Timestamp = time.Now()
	}
	if request.Status == "" {
		request.Status = "pending"
	}
	if request.MaxRetries == 0 {
		request.MaxRetries = 3
	}
	if request.TTL == 0 {
		request.TTL = 5 * time.Minute
	}

	if time.Since(request.Timestamp) > request.TTL {
		return fmt.Errorf("request %s has expired", id)
	}

	m.requests[id] = request

	log.WithFields(log.Fields{
		"request_id": id,
		"client":     request.Client,
		"service":    request.Service,
		"status":     request.Status,
	}).Debug("stored request in memory")

	return nil
}

// RetrieveRequest retrieves a request from memory.
func (m *MemoryPersistenceStore) RetrieveRequest(id string) (*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	request, exists := m.requests[id]
	if !exists {
		return nil, fmt.Errorf("request %s not found", id)
	}
	if time.Since(request.Timestamp) > request.TTL {
		return nil, fmt.Errorf("request %s has expired", id)
	}
	return request, nil
}

// DeleteRequest removes a request from memory.
func (m *MemoryPersistenceStore) DeleteRequest(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.requests[id]; !exists {
		return fmt.Errorf("request %s not found", id)
	}
	delete(m.requests, id)

	log.WithFields(log.Fields{"request_id": id}).Debug("deleted request from memory")
	return nil
}

// ListPendingRequests returns all pending or processing request IDs.
func (m *MemoryPersistenceStore) ListPendingRequests() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pendingIDs []string
	now := time.Now()

	for id, request := range m.requests {
		if now.Sub(request.Timestamp) > request.TTL {
			continue
		}
		if request.Status == "pending" || request.Status == "processing" {
			pendingIDs = append(pendingIDs, id)
		}
	}

	return pendingIDs, nil
}

// Close clears the in-memory store.
func (m *MemoryPersistenceStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = make(map[string]*Request)
	return nil
}

// CleanupExpiredRequests removes expired requests and returns the count removed.
func (m *MemoryPersistenceStore) CleanupExpiredRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0

	for id, request := range m.requests {
		if now.Sub(request.Timestamp) > request.TTL {
			delete(m.requests, id)
			removed++
		}
	}

	if removed > 0 {
		log.WithFields(log.Fields{"removed_count": removed}).Info("cleaned up expired requests")
	}

	return removed
}

// GetStats returns summary statistics about the store's contents.
func (m *MemoryPersistenceStore) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statusCounts := make(map[string]int)
	for _, request := range m.requests {
		statusCounts[request.Status]++
	}

	return map[string]interface{}{
		"total_requests":   len(m.requests),
		"status_breakdown": statusCounts,
		"store_type":       "memory",
	}
}

// RequestManager handles request lifecycle and retry bookkeeping on top of
// a PersistenceStore.
type RequestManager struct {
	store PersistenceStore
	mu    sync.RWMutex
}

// NewRequestManager creates a new request manager backed by store.
func NewRequestManager(store PersistenceStore) *RequestManager {
	return &RequestManager{store: store}
}

// CreateRequest creates and stores a new request, returning it with an
// assigned ID.
func (rm *RequestManager) CreateRequest(client, service string, data []string) (*Request, error) {
	id := generateRequestID()

	request := &Request{
		ID:         id,
		Client:     client,
		Service:    service,
		Data:       data,
		Timestamp:  time.Now(),
		MaxRetries: 3,
		TTL:        5 * time.Minute,
		Status:     "pending",
	}

	if err := rm.store.StoreRequest(id, request); err != nil {
		return nil, fmt.Errorf("failed to store request: %w", err)
	}

	log.WithFields(log.Fields{
		"request_id": id,
		"client":     client,
		"service":    service,
	}).Debug("created new request")

	return request, nil
}

// MarkRequestProcessing marks a request as being handed to a worker.
func (rm *RequestManager) MarkRequestProcessing(id string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	request, err := rm.store.RetrieveRequest(id)
	if err != nil {
		return fmt.Errorf("failed to retrieve request: %w", err)
	}
	request.Status = "processing"
	return rm.store.StoreRequest(id, request)
}

// MarkRequestCompleted marks a request completed and removes it from storage.
func (rm *RequestManager) MarkRequestCompleted(id string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	request, err := rm.store.RetrieveRequest(id)
	if err != nil {
		return fmt.Errorf("failed to retrieve request: %w", err)
	}
	request.Status = "completed"

	if err := rm.store.DeleteRequest(id); err != nil {
		log.WithFields(log.Fields{"request_id": id, "error": err}).Warn("failed to delete completed request")
	}

	return nil
}

// RetryRequest increments the retry count, failing the request permanently
// once Retries reaches MaxRetries.
func (rm *RequestManager) RetryRequest(id string) (*Request, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	request, err := rm.store.RetrieveRequest(id)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve request: %w", err)
	}

	request.Retries++

	if request.Retries >= request.MaxRetries {
		request.Status = "failed"
		log.WithFields(log.Fields{
			"request_id":  id,
			"retries":     request.Retries,
			"max_retries": request.MaxRetries,
		}).Error("request failed after maximum retries")
		err = rm.store.StoreRequest(id, request)
		return request, err
	}

	request.Status = "pending"
	if err := rm.store.StoreRequest(id, request); err != nil {
		return nil, fmt.Errorf("failed to update request: %w", err)
	}

	return request, nil
}

// GetPendingRequests returns all pending or processing requests.
func (rm *RequestManager) GetPendingRequests() ([]*Request, error) {
	pendingIDs, err := rm.store.ListPendingRequests()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}

	var requests []*Request
	for _, id := range pendingIDs {
		request, err := rm.store.RetrieveRequest(id)
		if err != nil {
			continue
		}
		requests = append(requests, request)
	}

	return requests, nil
}

// Close closes the request manager's underlying store.
func (rm *RequestManager) Close() error {
	return rm.store.Close()
}

var requestSeq uint64

func generateRequestID() string {
	seq := atomic.AddUint64(&requestSeq, 1)
	return fmt.Sprintf("req_%d_%d", time.Now().UnixNano(), seq)
}
