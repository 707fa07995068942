// Package registry persists backup configs and the artifact registry in SQLite.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/semmidev/dbwarden/internal/domain"
)

// Store implements domain.ConfigStore and domain.ArtifactStore.
type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create registry directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get registry handle: %w", err)
	}
	// SQLite allows one writer; a single connection avoids "database is locked".
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&configRecord{}, &artifactRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate registry: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) CreateConfig(ctx context.Context, cfg *domain.BackupConfig) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUnique(tx, cfg.Database, 0); err != nil {
			return err
		}

		rec := toConfigRecord(cfg)
		rec.ID = 0
		if err := tx.Create(rec).Error; err != nil {
			return domain.NewError(domain.ErrIO, "failed to create config", err)
		}
		cfg.ID = rec.ID
		return nil
	})
}

func (s *Store) UpdateConfig(ctx context.Context, cfg *domain.BackupConfig) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUnique(tx, cfg.Database, cfg.ID); err != nil {
			return err
		}

		var existing configRecord
		if err := tx.First(&existing, cfg.ID).Error; err != nil {
			return lookupError("config", err)
		}

		rec := toConfigRecord(cfg)
		rec.CreatedAt = existing.CreatedAt
		if err := tx.Save(rec).Error; err != nil {
			return domain.NewError(domain.ErrIO, "failed to update config", err)
		}
		return nil
	})
}

func ensureUnique(tx *gorm.DB, database string, exceptID uint) error {
	var count int64
	q := tx.Model(&configRecord{}).Where("database_name = ?", database)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return domain.NewError(domain.ErrIO, "failed to check config uniqueness", err)
	}
	if count > 0 {
		return domain.NewError(domain.ErrConfig,
			fmt.Sprintf("a backup configuration already exists for database %q", database), nil)
	}
	return nil
}

func (s *Store) GetConfig(ctx context.Context, id uint) (*domain.BackupConfig, error) {
	var rec configRecord
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, lookupError("config", err)
	}
	return rec.toDomain(), nil
}

func (s *Store) GetConfigByDatabase(ctx context.Context, database string) (*domain.BackupConfig, error) {
	var rec configRecord
	if err := s.db.WithContext(ctx).Where("database_name = ?", database).First(&rec).Error; err != nil {
		return nil, lookupError("config", err)
	}
	return rec.toDomain(), nil
}

func (s *Store) ListConfigs(ctx context.Context) ([]*domain.BackupConfig, error) {
	var recs []configRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, domain.NewError(domain.ErrIO, "failed to list configs", err)
	}

	configs := make([]*domain.BackupConfig, 0, len(recs))
	for i := range recs {
		configs = append(configs, recs[i].toDomain())
	}
	return configs, nil
}

func (s *Store) DeleteConfig(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&configRecord{}, id)
	if res.Error != nil {
		return domain.NewError(domain.ErrIO, "failed to delete config", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NewError(domain.ErrNotFound, "config not found", nil)
	}
	return nil
}

func (s *Store) InsertArtifact(ctx context.Context, a *domain.Artifact) error {
	if err := s.db.WithContext(ctx).Create(toArtifactRecord(a)).Error; err != nil {
		return domain.NewError(domain.ErrIO, "failed to register artifact", err)
	}
	return nil
}

func (s *Store) GetArtifact(ctx context.Context, id string) (*domain.Artifact, error) {
	var rec artifactRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, lookupError("artifact", err)
	}
	return rec.toDomain(), nil
}

func (s *Store) ListArtifacts(ctx context.Context, configID uint) ([]*domain.Artifact, error) {
	var recs []artifactRecord
	err := s.db.WithContext(ctx).
		Where("config_id = ?", configID).
		Order("created_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, domain.NewError(domain.ErrIO, "failed to list artifacts", err)
	}
	return artifactsToDomain(recs), nil
}

func (s *Store) ListArtifactsBefore(ctx context.Context, cutoff time.Time) ([]*domain.Artifact, error) {
	var recs []artifactRecord
	err := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff.UTC()).
		Order("created_at").
		Find(&recs).Error
	if err != nil {
		return nil, domain.NewError(domain.ErrIO, "failed to list old artifacts", err)
	}
	return artifactsToDomain(recs), nil
}

func (s *Store) DeleteArtifact(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&artifactRecord{})
	if res.Error != nil {
		return domain.NewError(domain.ErrIO, "failed to delete artifact", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NewError(domain.ErrNotFound, "artifact not found", nil)
	}
	return nil
}

func artifactsToDomain(recs []artifactRecord) []*domain.Artifact {
	artifacts := make([]*domain.Artifact, 0, len(recs))
	for i := range recs {
		artifacts = append(artifacts, recs[i].toDomain())
	}
	return artifacts
}

func lookupError(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewError(domain.ErrNotFound, what+" not found", nil)
	}
	return domain.NewError(domain.ErrIO, "failed to load "+what, err)
}
