package activitylog

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"trustescrow/core"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// ErrChainBroken is returned by Verify when a stored entry does not match the
// hash chain.
var ErrChainBroken = errors.New("activitylog: hash chain broken")

// Open connects to the configured driver. sqlite DSNs are file paths or
// sqlite URIs; postgres DSNs are passed to pgx unchanged.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("activitylog: unsupported driver %q", driver)
	}
}

// Store persists committed settlement activity and fans it out to live
// subscribers. It implements core.ActivitySink.
type Store struct {
	db     *gorm.DB
	hub    *Hub
	logger *slog.Logger

	// mu serialises appends so sequence numbers and hash links stay gapless.
	mu sync.Mutex
}

// New migrates db and returns a store over it.
func New(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("activitylog: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("activitylog: migrate: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, hub: NewHub(), logger: logger.With(slog.String("component", "activitylog"))}, nil
}

// Hub exposes the live subscriber hub.
func (s *Store) Hub() *Hub { return s.hub }

var _ core.ActivitySink = (*Store)(nil)

// Publish appends entries to the chain in one database transaction and
// broadcasts them once stored.
func (s *Store) Publish(ctx context.Context, entries []core.Activity) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]Entry, 0, len(entries))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, prev, err := head(tx)
		if err != nil {
			return err
		}
		for _, act := range entries {
			attrs, err := json.Marshal(nonNil(act.Attributes))
			if err != nil {
				return err
			}
			seq++
			entry := Entry{
				Sequence:   seq,
				Operation:  act.Operation,
				Type:       act.Type,
				Module:     moduleOf(act.Type),
				Subject:    subjectOf(act.Attributes),
				Attributes: string(attrs),
				At:         act.At,
				PrevHash:   prev,
			}
			entry.Hash = chainHash(entry)
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			prev = entry.Hash
			stored = append(stored, entry)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("activitylog: append: %w", err)
	}
	for _, entry := range stored {
		s.hub.Broadcast(entry)
	}
	s.logger.Debug("activity appended", slog.Int("count", len(stored)), slog.Int64("head", stored[len(stored)-1].Sequence))
	return nil
}

func head(tx *gorm.DB) (int64, string, error) {
	var last Entry
	err := tx.Order("sequence DESC").Limit(1).Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", err
	}
	return last.Sequence, last.Hash, nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Module  string
	Type    string
	Subject string
	After   int64
	Limit   int
}

// List returns entries in sequence order.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	q := s.db.WithContext(ctx).Model(&Entry{}).Where("sequence > ?", f.After)
	if f.Module != "" {
		q = q.Where("module = ?", f.Module)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Subject != "" {
		q = q.Where("subject = ?", strings.ToLower(f.Subject))
	}
	var out []Entry
	if err := q.Order("sequence ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Verify walks the whole chain and reports the first entry whose link or
// content hash does not match.
func (s *Store) Verify(ctx context.Context) error {
	var (
		prev    string
		want    int64 = 1
		current int64
	)
	for {
		var batch []Entry
		err := s.db.WithContext(ctx).Where("sequence > ?", current).Order("sequence ASC").Limit(500).Find(&batch).Error
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for _, entry := range batch {
			switch {
			case entry.Sequence != want:
				return fmt.Errorf("%w: expected sequence %d, found %d", ErrChainBroken, want, entry.Sequence)
			case entry.PrevHash != prev:
				return fmt.Errorf("%w: sequence %d links to %s", ErrChainBroken, entry.Sequence, entry.PrevHash)
			case chainHash(entry) != entry.Hash:
				return fmt.Errorf("%w: sequence %d content altered", ErrChainBroken, entry.Sequence)
			}
			prev = entry.Hash
			current = entry.Sequence
			want++
		}
	}
}

func chainHash(e Entry) string {
	h := blake3.New(32, nil)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], uint64(e.Sequence))
	var at [8]byte
	binary.BigEndian.PutUint64(at[:], uint64(e.At))
	_, _ = h.Write([]byte(e.PrevHash))
	_, _ = h.Write(seq[:])
	for _, field := range []string{e.Operation, e.Type, e.Subject, e.Attributes} {
		_, _ = h.Write([]byte(field))
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write(at[:])
	return hex.EncodeToString(h.Sum(nil))
}

func moduleOf(eventType string) string {
	if idx := strings.IndexByte(eventType, '.'); idx > 0 {
		return eventType[:idx]
	}
	return eventType
}

// subjectOf picks the record the event is about.
func subjectOf(attrs map[string]string) string {
	for _, key := range []string{"id", "escrowId", "childId", "rootId", "address"} {
		if v := attrs[key]; v != "" {
			return strings.ToLower(v)
		}
	}
	return ""
}

func nonNil(attrs map[string]string) map[string]string {
	if attrs == nil {
		return map[string]string{}
	}
	return attrs
}
