package session

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"
)

// MemoryStorage is an in-process Storage useful for tests and for clients
// that opt out of persistence. Values are kept serialized so load paths see
// the same corruption semantics as a durable store.
type MemoryStorage struct {
	mu          sync.Mutex
	entries     map[string][]byte
	recordKey   string
	activityKey string
	logger      Logger
}

var _ Storage = (*MemoryStorage)(nil)

type MemoryStorageOption func(*MemoryStorage)

// WithMemoryStorageKeys overrides the entry keys.
func WithMemoryStorageKeys(recordKey, activityKey string) MemoryStorageOption {
	return func(s *MemoryStorage) {
		if recordKey != "" {
			s.recordKey = recordKey
		}
		if activityKey != "" {
			s.activityKey = activityKey
		}
	}
}

// WithMemoryStorageLogger overrides the logger used for soft failures.
func WithMemoryStorageLogger(logger Logger) MemoryStorageOption {
	return func(s *MemoryStorage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	s := &MemoryStorage{
		entries:     map[string][]byte{},
		recordKey:   DefaultRecordKey,
		activityKey: DefaultActivityKey,
		logger:      defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStorage) SaveRecord(ctx context.Context, record *SessionRecord) error {
	if record == nil {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[s.recordKey] = data
	return nil
}

func (s *MemoryStorage) LoadRecord(ctx context.Context) (*SessionRecord, error) {
	s.mu.Lock()
	data, ok := s.entries[s.recordKey]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	record := &SessionRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		s.logger.Debug("discarding unparsable stored session: %v", err)
		return nil, nil
	}
	return record, nil
}

func (s *MemoryStorage) SaveLastActivity(ctx context.Context, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[s.activityKey] = []byte(strconv.FormatInt(ts.UnixMilli(), 10))
	return nil
}

func (s *MemoryStorage) LoadLastActivity(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	data, ok := s.entries[s.activityKey]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, nil
	}

	millis, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		s.logger.Debug("discarding unparsable activity timestamp: %v", err)
		return time.Time{}, nil
	}
	return time.UnixMilli(millis), nil
}

func (s *MemoryStorage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, s.recordKey)
	delete(s.entries, s.activityKey)
	return nil
}

// Seed writes a raw entry, bypassing serialization. Test helper for
// corruption scenarios.
func (s *MemoryStorage) Seed(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
}
