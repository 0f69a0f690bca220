package mdp

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var requestsBucket = []byte("requests")

// BoltPersistenceStore is the durable, opt-in PersistenceStore backend.
// It is grounded on the same interface as MemoryPersistenceStore but
// survives broker restarts by writing requests to a bbolt file. Installed
// with Broker.UsePersistence; cmd/qmq-broker does so when
// qconfig.BrokerConfig.SnapshotStore is set.
type BoltPersistenceStore struct {
	db *bolt.DB
}

// NewBoltPersistenceStore opens (creating if necessary) a bbolt database
// at path and prepares the requests bucket.
func NewBoltPersistenceStore(path string) (*BoltPersistenceStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt persistence store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(requestsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize bolt bucket: %w", err)
	}

	return &BoltPersistenceStore{db: db}, nil
}

// StoreRequest stores a request, marshaled as JSON, under id.
func (s *BoltPersistenceStore) StoreRequest(id string, request *Request) error {
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

	data, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request %s: %w", id, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(requestsBucket).Put([]byte(id), data)
	})
}

// RetrieveRequest fetches and unmarshals a request by id.
func (s *BoltPersistenceStore) RetrieveRequest(id string) (request *Request, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(requestsBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("request %s not found", id)
		}
		request = &Request{}
		return json.Unmarshal(data, request)
	})
	if err != nil {
		return nil, err
	}

	if time.Since(request.Timestamp) > request.TTL {
		return nil, fmt.Errorf("request %s has expired", id)
	}
	return request, nil
}

// DeleteRequest removes a request by id.
func (s *BoltPersistenceStore) DeleteRequest(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(requestsBucket)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("request %s not found", id)
		}
		return b.Delete([]byte(id))
	})
}

// ListPendingRequests returns the IDs of all non-expired pending or
// processing requests.
func (s *BoltPersistenceStore) ListPendingRequests() ([]string, error) {
	var pendingIDs []string
	now := time.Now()

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(requestsBucket).ForEach(func(key, data []byte) error {
			var request Request
			if err := json.Unmarshal(data, &request); err != nil {
				return nil // skip corrupt entries rather than fail the whole scan
			}
			if now.Sub(request.Timestamp) > request.TTL {
				return nil
			}
			if request.Status == "pending" || request.Status == "processing" {
				pendingIDs = append(pendingIDs, string(key))
			}
			return nil
		})
	})

	return pendingIDs, err
}

// Close closes the underlying bbolt database.
func (s *BoltPersistenceStore) Close() error {
	return s.db.Close()
}
