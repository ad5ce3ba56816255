package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/uptrace/bun"
)

type sessionState struct {
	bun.BaseModel `bun:"table:session_state,alias:ss"`
	Key           string    `bun:"key,pk"`
	Value         []byte    `bun:"value"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

// BunStorage persists session state in a key/value table through bun. One
// row holds the serialized record, a second row the raw last-activity
// timestamp.
type BunStorage struct {
	db          *bun.DB
	recordKey   string
	activityKey string
	logger      Logger
	now         func() time.Time
}

var _ Storage = (*BunStorage)(nil)

type BunStorageOption func(*BunStorage)

// WithBunStorageKeys overrides the row keys.
func WithBunStorageKeys(recordKey, activityKey string) BunStorageOption {
	return func(s *BunStorage) {
		if recordKey != "" {
			s.recordKey = recordKey
		}
		if activityKey != "" {
			s.activityKey = activityKey
		}
	}
}

// WithBunStorageLogger overrides the logger used for soft failures.
func WithBunStorageLogger(logger Logger) BunStorageOption {
	return func(s *BunStorage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBunStorageClock injects a custom clock (useful for tests).
func WithBunStorageClock(clock func() time.Time) BunStorageOption {
	return func(s *BunStorage) {
		if clock != nil {
			s.now = clock
		}
	}
}

func NewBunStorage(db *bun.DB, opts ...BunStorageOption) *BunStorage {
	s := &BunStorage{
		db:          db,
		recordKey:   DefaultRecordKey,
		activityKey: DefaultActivityKey,
		logger:      defLogger{},
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Install creates the backing table when missing.
func (s *BunStorage) Install(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*sessionState)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (s *BunStorage) SaveRecord(ctx context.Context, record *SessionRecord) error {
	if record == nil {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.put(ctx, s.recordKey, data)
}

func (s *BunStorage) LoadRecord(ctx context.Context) (*SessionRecord, error) {
	data, ok := s.get(ctx, s.recordKey)
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

func (s *BunStorage) SaveLastActivity(ctx context.Context, ts time.Time) error {
	return s.put(ctx, s.activityKey, []byte(strconv.FormatInt(ts.UnixMilli(), 10)))
}

func (s *BunStorage) LoadLastActivity(ctx context.Context) (time.Time, error) {
	data, ok := s.get(ctx, s.activityKey)
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

func (s *BunStorage) Clear(ctx context.Context) error {
	_, err := s.db.NewDelete().
		Model((*sessionState)(nil)).
		Where("?TableAlias.key IN (?)", bun.In([]string{s.recordKey, s.activityKey})).
		Exec(ctx)
	return err
}

func (s *BunStorage) put(ctx context.Context, key string, value []byte) error {
	row := &sessionState{
		Key:       key,
		Value:     value,
		UpdatedAt: s.now(),
	}

	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// get fails soft: missing rows and read errors both report "no data" so a
// corrupt local store forces a clean unauthenticated start instead of a
// crash.
func (s *BunStorage) get(ctx context.Context, key string) ([]byte, bool) {
	row := &sessionState{}
	err := s.db.NewSelect().
		Model(row).
		Where("?TableAlias.key = ?", key).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug("session state read failed for %q: %v", key, err)
		}
		return nil, false
	}
	return row.Value, true
}
