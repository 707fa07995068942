package domain

import (
	"context"
	"time"
)

// ConfigStore persists backup configs.
type ConfigStore interface {
	CreateConfig(ctx context.Context, cfg *BackupConfig) error
	UpdateConfig(ctx context.Context, cfg *BackupConfig) error
	GetConfig(ctx context.Context, id uint) (*BackupConfig, error)
	GetConfigByDatabase(ctx context.Context, database string) (*BackupConfig, error)
	ListConfigs(ctx context.Context) ([]*BackupConfig, error)
	DeleteConfig(ctx context.Context, id uint) error
}

// ArtifactStore is the registry of produced backup files.
type ArtifactStore interface {
	InsertArtifact(ctx context.Context, a *Artifact) error
	GetArtifact(ctx context.Context, id string) (*Artifact, error)
	ListArtifacts(ctx context.Context, configID uint) ([]*Artifact, error)
	ListArtifactsBefore(ctx context.Context, cutoff time.Time) ([]*Artifact, error)
	DeleteArtifact(ctx context.Context, id string) error
}
