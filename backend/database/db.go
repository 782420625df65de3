package database

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/PhilHem/go-pattern-auth/backend/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to Postgres when url is a postgres DSN and to the sqlite file
// at path otherwise, then migrates the schema.
func Open(url, path string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		dialector = postgres.Open(url)
	} else {
		dialector = sqlite.Open(path)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger(),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, err
	}
	return db, nil
}

// gormLogger routes slow queries and errors to stdout as JSON. It must not use
// the DB log handler, which would write back through gorm.
func gormLogger() logger.Interface {
	h := slog.NewJSONHandler(os.Stdout, nil).WithAttrs([]slog.Attr{slog.String("source", "gorm")})
	return logger.New(
		slog.NewLogLogger(h, slog.LevelWarn),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}
