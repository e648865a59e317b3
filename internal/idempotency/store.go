package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// DefaultTTL is how long a successful outcome stays replayable.
const DefaultTTL = 24 * time.Hour

// Record is the cached outcome of one operation. Records are keyed by the
// client key; the fingerprint tells a replay from a key reused with different
// parameters or for a different operation. Failure is set instead of Result
// when the operation failed after balances had already moved.
type Record struct {
	Fingerprint string          `json:"fingerprint"`
	Key         string          `json:"key"`
	Kind        string          `json:"kind"`
	Params      json.RawMessage `json:"params"`
	Result      json.RawMessage `json:"result,omitempty"`
	Failure     *Failure        `json:"failure,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// Failure is a replayable ledger error.
type Failure struct {
	Code    ledger.Code    `json:"code"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Err rebuilds the ledger error returned on replay.
func (f *Failure) Err() error {
	meta := make(map[string]any, len(f.Meta))
	for k, v := range f.Meta {
		meta[k] = v
	}
	return ledger.NewError(f.Code, f.Message, meta)
}

// Expired reports whether the record is past its TTL at now.
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store persists idempotency records. Get must treat expired records as absent.
type Store interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	// Put stores rec unless a live record already exists for rec.Key.
	Put(ctx context.Context, rec Record) error
}

// Sweeper is implemented by stores that need periodic eviction.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	records map[string]Record
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:     time.Now,
		records: make(map[string]Record),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return Record{}, false, nil
	}
	if rec.Expired(s.now()) {
		delete(s.records, key)
		return Record{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.Key]; ok && !existing.Expired(s.now()) {
		return nil
	}
	s.records[rec.Key] = cloneRecord(rec)
	return nil
}

// Sweep evicts every expired record and returns how many were removed.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for key, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored records, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func cloneRecord(rec Record) Record {
	rec.Params = append(json.RawMessage(nil), rec.Params...)
	rec.Result = append(json.RawMessage(nil), rec.Result...)
	if rec.Failure != nil {
		failure := *rec.Failure
		rec.Failure = &failure
	}
	return rec
}
