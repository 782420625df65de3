package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/PhilHem/go-pattern-auth/backend/models"

	"gorm.io/gorm"
)

// DBHandler writes every record as JSON to stdout and stores it as a
// LogEntry. The "source" and "user_id" attrs become columns.
type DBHandler struct {
	db          *gorm.DB
	jsonHandler slog.Handler
	attrs       []slog.Attr
	level       slog.Leveler
}

func NewDBHandler(db *gorm.DB) *DBHandler {
	return NewDBHandlerWithOutput(db, os.Stdout, slog.LevelInfo)
}

func NewDBHandlerWithOutput(db *gorm.DB, w io.Writer, level slog.Leveler) *DBHandler {
	return &DBHandler{
		db:          db,
		jsonHandler: slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}),
		attrs:       []slog.Attr{},
		level:       level,
	}
}

func extractUserID(v slog.Value) *string {
	var id string
	switch v.Kind() {
	case slog.KindString:
		id = v.String()
	case slog.KindInt64:
		id = fmt.Sprint(v.Int64())
	case slog.KindUint64:
		id = fmt.Sprint(v.Uint64())
	}
	if id == "" {
		return nil
	}
	return &id
}

func (h *DBHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *DBHandler) Handle(ctx context.Context, r slog.Record) error {
	// Write to stdout
	_ = h.jsonHandler.Handle(ctx, r)

	attrs := make(map[string]any)
	var source string
	var userID *string

	collect := func(a slog.Attr) {
		switch a.Key {
		case "source":
			source = a.Value.String()
		case "user_id":
			if id := extractUserID(a.Value.Resolve()); id != nil {
				userID = id
			}
		default:
			attrs[a.Key] = a.Value.Resolve().Any()
		}
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})

	var data string
	if len(attrs) > 0 {
		b, _ := json.Marshal(attrs)
		data = string(b)
	}

	entry := models.LogEntry{
		CreatedAt: r.Time,
		Level:     r.Level.String(),
		Message:   r.Message,
		Source:    source,
		UserID:    userID,
		Data:      data,
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	return h.db.WithContext(context.WithoutCancel(ctx)).Create(&entry).Error
}

func (h *DBHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)
	return &DBHandler{
		db:          h.db,
		jsonHandler: h.jsonHandler.WithAttrs(attrs),
		attrs:       newAttrs,
		level:       h.level,
	}
}

func (h *DBHandler) WithGroup(name string) slog.Handler {
	return h
}

// DeleteOlderThan removes log entries created before now minus maxAge.
func DeleteOlderThan(ctx context.Context, db *gorm.DB, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	res := db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.LogEntry{})
	return res.RowsAffected, res.Error
}

// CleanupOldLogs prunes logs older than maxAge every hour until ctx is done.
func CleanupOldLogs(ctx context.Context, db *gorm.DB, maxAge time.Duration) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := DeleteOlderThan(ctx, db, maxAge); err != nil && ctx.Err() == nil {
				slog.Error("log cleanup failed", "source", "main", "error", err.Error())
			}
		}
	}
}
