// Package gormstore implements eventlog.Store on top of GORM, the
// teacher's database driver library (contrib/database/gorm), so the
// reference deployment of the event log persists to any GORM dialect
// (SQLite by default) instead of an in-memory slice.
package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/flux-framework/flux-core/pkg/eventlog"
)

// eventRow is the durable row shape. Context is stored as a JSON text blob
// since an event's context keys/values vary by event name (idset strings,
// hostlist strings, ...).
type eventRow struct {
	ID        uint `gorm:"primaryKey"`
	Path      string `gorm:"index"`
	Name      string
	Context   string
	Timestamp time.Time `gorm:"index"`
}

func (eventRow) TableName() string { return "resource_events" }

// Store durably appends event-log entries to a GORM-backed table.
type Store struct {
	db *gorm.DB
}

// New wraps db, running AutoMigrate for the event row model.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&eventRow{}); err != nil {
		return nil, fmt.Errorf("gormstore: automigrate: %w", err)
	}
	return &Store{db: db}, nil
}

// AppendBatch writes entries inside a single transaction, so a batch
// commits or fails as a unit the same way eventlog.Appender expects.
func (s *Store) AppendBatch(ctx context.Context, entries []eventlog.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]eventRow, len(entries))
	for i, e := range entries {
		ctxJSON, err := json.Marshal(e.Context)
		if err != nil {
			return fmt.Errorf("gormstore: marshal context for %s/%s: %w", e.Path, e.Name, err)
		}
		rows[i] = eventRow{
			Path:      e.Path,
			Name:      e.Name,
			Context:   string(ctxJSON),
			Timestamp: e.Timestamp,
		}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
}

// ReadPath returns every entry recorded for path, oldest first.
func (s *Store) ReadPath(ctx context.Context, path string) ([]eventlog.Entry, error) {
	var rows []eventRow
	if err := s.db.WithContext(ctx).
		Where("path = ?", path).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gormstore: read path %s: %w", path, err)
	}

	entries := make([]eventlog.Entry, len(rows))
	for i, r := range rows {
		var ctxMap map[string]string
		if r.Context != "" {
			if err := json.Unmarshal([]byte(r.Context), &ctxMap); err != nil {
				return nil, fmt.Errorf("gormstore: unmarshal context for row %d: %w", r.ID, err)
			}
		}
		entries[i] = eventlog.Entry{
			Timestamp: r.Timestamp,
			Path:      r.Path,
			Name:      r.Name,
			Context:   ctxMap,
		}
	}
	return entries, nil
}

var _ eventlog.Store = (*Store)(nil)
