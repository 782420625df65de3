package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/PhilHem/go-pattern-auth/backend/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.LogEntry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestDBHandler_PersistsEntry(t *testing.T) {
	db := setupTestDB(t)
	var out bytes.Buffer
	log := slog.New(NewDBHandlerWithOutput(db, &out, slog.LevelInfo))

	log.With("source", "auth").Warn("login failed: invalid password", "user_id", "u-1", "failed_attempts", 2)

	var entries []models.LogEntry
	db.Find(&entries)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Source != "auth" || e.Level != "WARN" || e.Message != "login failed: invalid password" {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.UserID == nil || *e.UserID != "u-1" {
		t.Errorf("expected user_id u-1, got %v", e.UserID)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(e.Data), &data); err != nil {
		t.Fatalf("data is not JSON: %v", err)
	}
	if data["failed_attempts"] != float64(2) {
		t.Errorf("expected failed_attempts in data, got %v", data)
	}
	if _, ok := data["source"]; ok {
		t.Error("source belongs in its own column, not in data")
	}

	var line map[string]any
	if err := json.Unmarshal(out.Bytes(), &line); err != nil {
		t.Fatalf("stdout line is not JSON: %v", err)
	}
	if line["source"] != "auth" {
		t.Errorf("expected handler attrs on stdout, got %v", line)
	}
}

func TestDBHandler_LevelFilter(t *testing.T) {
	db := setupTestDB(t)
	log := slog.New(NewDBHandlerWithOutput(db, &bytes.Buffer{}, slog.LevelInfo))

	log.Debug("noise", "source", "http")
	log.Info("kept", "source", "http")

	var count int64
	db.Model(&models.LogEntry{}).Count(&count)
	if count != 1 {
		t.Errorf("expected debug record to be dropped, got %d entries", count)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	db := setupTestDB(t)
	db.Create(&models.LogEntry{CreatedAt: time.Now().Add(-72 * time.Hour), Level: "INFO", Message: "old"})
	db.Create(&models.LogEntry{CreatedAt: time.Now(), Level: "INFO", Message: "new"})

	n, err := DeleteOlderThan(context.Background(), db, 48*time.Hour)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}

	var left []models.LogEntry
	db.Find(&left)
	if len(left) != 1 || left[0].Message != "new" {
		t.Errorf("expected only the new entry left, got %+v", left)
	}
}

func TestCleanupOldLogs_StopsWithContext(t *testing.T) {
	db := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		CleanupOldLogs(ctx, db, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}
