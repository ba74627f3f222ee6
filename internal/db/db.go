// Package db holds the daemon's job and history store.
package db

import (
	"fmt"
	"mirrorsync/internal/model"
	"net/url"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Running jobs write history from their own goroutines while the API reads,
// so writers wait on the lock instead of failing with SQLITE_BUSY.
var pragmas = []string{"busy_timeout(5000)", "journal_mode(WAL)"}

func dsn(dbPath string) string {
	q := url.Values{"_pragma": pragmas}
	return dbPath + "?" + q.Encode()
}

// Init opens the store at dbPath, creating its directory and migrating the
// schema. A store opened by an earlier Init is closed first.
func Init(dbPath string) error {
	if err := Close(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create db dir: %w", err)
	}

	conn, err := gorm.Open(sqlite.Open(dsn(dbPath)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open db %s: %w", dbPath, err)
	}

	if err := conn.AutoMigrate(&model.History{}, &model.Job{}); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	DB = conn
	return nil
}

func Close() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	DB = nil

	return sqlDB.Close()
}
