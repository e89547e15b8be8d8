// Package journal keeps an append-only record of committed ledger events in
// SQLite.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"credo/core/events"
	"credo/core/types"
)

// Entry is one journaled event.
type Entry struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement" json:"seq"`
	EventID    string    `gorm:"index" json:"eventId,omitempty"`
	Type       string    `gorm:"index;not null" json:"type"`
	User       string    `gorm:"index" json:"user,omitempty"`
	Asset      string    `gorm:"index" json:"asset,omitempty"`
	Attributes string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Event decodes the stored attributes back into the wire form.
func (e Entry) Event() (*types.Event, error) {
	attrs := map[string]string{}
	if e.Attributes != "" {
		if err := json.Unmarshal([]byte(e.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("journal: decode entry %d: %w", e.Seq, err)
		}
	}
	return &types.Event{Type: e.Type, Attributes: attrs}, nil
}

// Journal persists events and serves recent history.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (or creates) the SQLite database at dsn and migrates the schema.
func Open(dsn string, log *slog.Logger) (*Journal, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", dsn, err)
	}
	return New(db, log)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, log *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db, logger: log, now: time.Now}, nil
}

// Append stores a flattened event and returns the stored entry.
func (j *Journal) Append(ctx context.Context, evt *types.Event) (Entry, error) {
	if evt == nil {
		return Entry{}, errors.New("journal: nil event")
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: encode attributes: %w", err)
	}
	user := evt.Attributes["user"]
	if user == "" {
		user = evt.Attributes["receiver"]
	}
	entry := Entry{
		EventID:    evt.Attributes["id"],
		Type:       evt.Type,
		User:       user,
		Asset:      evt.Attributes["asset"],
		Attributes: string(attrs),
		CreatedAt:  j.now().UTC(),
	}
	if err := j.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return Entry{}, fmt.Errorf("journal: append: %w", err)
	}
	return entry, nil
}

// Emit implements events.Emitter. Write failures are logged; the ledger
// commit has already happened.
func (j *Journal) Emit(evt events.Event) {
	if _, err := j.Append(context.Background(), events.Flatten(evt)); err != nil {
		j.logger.Error("journal append failed", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Query filters journal reads. Zero values match everything.
type Query struct {
	Type     string
	User     string
	AfterSeq uint64
	Limit    int
}

const maxLimit = 500

// List returns matching entries in ascending sequence order.
func (j *Journal) List(ctx context.Context, q Query) ([]Entry, error) {
	limit := q.Limit
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}
	tx := j.db.WithContext(ctx).Model(&Entry{}).Where("seq > ?", q.AfterSeq)
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	if q.User != "" {
		tx = tx.Where("user = ?", q.User)
	}
	var out []Entry
	if err := tx.Order("seq asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return out, nil
}

// Recent returns the newest limit entries, oldest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}
	var out []Entry
	if err := j.db.WithContext(ctx).Order("seq desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
