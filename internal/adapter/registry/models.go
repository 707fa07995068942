package registry

import (
	"time"

	"github.com/semmidev/dbwarden/internal/domain"
)

type configRecord struct {
	ID              uint   `gorm:"primaryKey"`
	Database        string `gorm:"column:database_name;size:255;not null;uniqueIndex"`
	Directory       string `gorm:"size:1024;not null"`
	Format          string `gorm:"size:16;not null"`
	Password        string `gorm:"size:255;not null"`
	TimesPerDay     int    `gorm:"not null"`
	AutoRemove      bool   `gorm:"not null"`
	ExecutionsToday int    `gorm:"not null;default:0"`
	LastExecution   time.Time
	LastRunAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (configRecord) TableName() string {
	return "backup_configs"
}

type artifactRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	ConfigID  uint      `gorm:"index;not null"`
	Name      string    `gorm:"size:255;not null"`
	Path      string    `gorm:"size:2048;not null"`
	CreatedAt time.Time `gorm:"index;not null"`
}

func (artifactRecord) TableName() string {
	return "backup_artifacts"
}

func toConfigRecord(c *domain.BackupConfig) *configRecord {
	return &configRecord{
		ID:              c.ID,
		Database:        c.Database,
		Directory:       c.Directory,
		Format:          string(c.Format),
		Password:        c.Password,
		TimesPerDay:     c.TimesPerDay,
		AutoRemove:      c.AutoRemove,
		ExecutionsToday: c.ExecutionsToday,
		LastExecution:   c.LastExecution.UTC(),
		LastRunAt:       c.LastRunAt.UTC(),
	}
}

func (r *configRecord) toDomain() *domain.BackupConfig {
	return &domain.BackupConfig{
		ID:              r.ID,
		Database:        r.Database,
		Directory:       r.Directory,
		Format:          domain.Format(r.Format),
		Password:        r.Password,
		TimesPerDay:     r.TimesPerDay,
		AutoRemove:      r.AutoRemove,
		ExecutionsToday: r.ExecutionsToday,
		LastExecution:   r.LastExecution,
		LastRunAt:       r.LastRunAt,
	}
}

func toArtifactRecord(a *domain.Artifact) *artifactRecord {
	return &artifactRecord{
		ID:        a.ID,
		ConfigID:  a.ConfigID,
		Name:      a.Name,
		Path:      a.Path,
		CreatedAt: a.CreatedAt.UTC(),
	}
}

func (r *artifactRecord) toDomain() *domain.Artifact {
	return &domain.Artifact{
		ID:        r.ID,
		ConfigID:  r.ConfigID,
		Name:      r.Name,
		Path:      r.Path,
		CreatedAt: r.CreatedAt,
	}
}
