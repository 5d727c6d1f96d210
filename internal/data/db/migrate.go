package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/brandpulse-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(types.Models()...)
}

// EnsureBatchIndexes adds partial indexes that gorm tags cannot express.
// The statements are valid on both postgres and sqlite.
func EnsureBatchIndexes(db *gorm.DB) error {
	// One active execution per project.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_batch_execution_project_active
		ON batch_execution (project_id)
		WHERE status IN ('pending', 'running');
	`).Error; err != nil {
		return fmt.Errorf("create idx_batch_execution_project_active: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_batch_execution_project_created
		ON batch_execution (project_id, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_batch_execution_project_created: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_job_run_claim
		ON job_run (status, created_at)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_job_run_claim: %w", err)
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureBatchIndexes(s.db); err != nil {
		s.log.Error("Batch index migration failed", "error", err)
		return err
	}
	return nil
}
