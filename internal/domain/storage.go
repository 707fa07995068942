package domain

import (
	"context"
	"time"
)

// Storage is a replication target for finished artifacts. Remote names are
// "<database>/<artifact name>".
type Storage interface {
	Upload(ctx context.Context, localPath string, remoteName string) error
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, remoteName string) error
	GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error)
}

// Notifier receives human readable run reports.
type Notifier interface {
	SendNotification(message string) error
}
