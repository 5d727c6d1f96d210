package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	appdb "github.com/yungbote/brandpulse-backend/internal/data/db"
	types "github.com/yungbote/brandpulse-backend/internal/domain"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	return logger.Nop()
}

// DB opens a migrated database for one test. TEST_POSTGRES_DSN selects
// postgres; otherwise each test gets its own in-memory sqlite database.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	} else {
		name := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
		db, err = gorm.Open(sqlite.Open(name), cfg)
		if err == nil {
			sqlDB, dbErr := db.DB()
			if dbErr != nil {
				tb.Fatalf("sqlite pool: %v", dbErr)
			}
			sqlDB.SetMaxOpenConns(1)
			tb.Cleanup(func() { _ = sqlDB.Close() })
		}
	}
	if err != nil {
		tb.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(types.Models()...); err != nil {
		tb.Fatalf("failed to migrate test db: %v", err)
	}
	if err := appdb.EnsureBatchIndexes(db); err != nil {
		tb.Fatalf("failed to index test db: %v", err)
	}
	return db
}

func SeedProject(tb testing.TB, db *gorm.DB, name string, competitors ...string) *types.Project {
	tb.Helper()
	p := &types.Project{
		Name:        name,
		Industry:    "running shoes",
		Market:      "Germany",
		Competitors: competitors,
		Attributes:  []string{"sustainable", "lightweight"},
	}
	if err := db.WithContext(context.Background()).Create(p).Error; err != nil {
		tb.Fatalf("seed project: %v", err)
	}
	return p
}
