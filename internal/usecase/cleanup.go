package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"go.uber.org/multierr"

	"github.com/semmidev/dbwarden/internal/domain"
	"github.com/semmidev/dbwarden/internal/infrastructure/metrics"
)

var timestampPattern = regexp.MustCompile(`(\d{8})_(\d{6})`)

// SweepReport summarizes one retention sweep.
type SweepReport struct {
	// Expired artifacts whose record was deleted.
	Swept int
	// Expired artifacts whose file was already gone.
	Missing int
	// Expired artifacts whose file could not be removed.
	Failed int
	// Files pruned from remote targets.
	RemotePruned int
}

type Cleanup struct {
	artifacts     domain.ArtifactStore
	uploadTargets []UploadTarget
	clock         clock.Clock
	logger        Logger
	retentionDays int
}

func NewCleanup(
	artifacts domain.ArtifactStore,
	uploadTargets []UploadTarget,
	clk clock.Clock,
	logger Logger,
	retentionDays int,
) *Cleanup {
	return &Cleanup{
		artifacts:     artifacts,
		uploadTargets: uploadTargets,
		clock:         clk,
		logger:        logger,
		retentionDays: retentionDays,
	}
}

// Execute is the cron entry point.
func (uc *Cleanup) Execute(ctx context.Context) error {
	uc.logger.Infof("Starting cleanup, retention: %d days", uc.retentionDays)

	report, err := uc.Sweep(ctx, uc.retentionDays, uc.clock.Now())
	if err != nil {
		return err
	}

	uc.logger.Infof("Cleanup completed: %d swept, %d already missing, %d failed, %d remote file(s) pruned",
		report.Swept, report.Missing, report.Failed, report.RemotePruned)
	return nil
}

// Sweep deletes every artifact created strictly before now minus
// thresholdDays. The record is deleted even when the file cannot be.
func (uc *Cleanup) Sweep(ctx context.Context, thresholdDays int, now time.Time) (SweepReport, error) {
	var report SweepReport
	cutoff := now.Add(-time.Duration(thresholdDays) * 24 * time.Hour)

	expired, err := uc.artifacts.ListArtifactsBefore(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("list expired artifacts: %w", err)
	}

	for _, artifact := range expired {
		switch err := os.Remove(artifact.Path); {
		case err == nil:
			uc.logger.Infof("Deleted old backup: %s", artifact.Name)
		case errors.Is(err, fs.ErrNotExist):
			report.Missing++
		default:
			report.Failed++
			uc.logger.Errorf("Failed to delete %s: %v", artifact.Path, err)
		}

		if err := uc.artifacts.DeleteArtifact(ctx, artifact.ID); err != nil && !domain.IsKind(err, domain.ErrNotFound) {
			uc.logger.Errorf("Failed to unregister %s: %v", artifact.Name, err)
			continue
		}
		report.Swept++
	}

	if len(uc.uploadTargets) > 0 {
		report.RemotePruned = uc.cleanupTargets(ctx, cutoff)
	}

	metrics.RecordSweep(report.Swept, report.Failed)
	return report, nil
}

// RemoveImmediate deletes every file of cfg's directory that belongs to its
// database. Registry records are left alone.
func (uc *Cleanup) RemoveImmediate(ctx context.Context, cfg *domain.BackupConfig) error {
	dir := cfg.Dir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return domain.NewError(domain.ErrIO, "failed to read backup directory", err)
	}

	var errs error
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasPrefix(entry.Name(), cfg.Database) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = multierr.Append(errs, err)
		}
	}

	if errs != nil {
		return domain.NewError(domain.ErrIO, "failed to remove backup files", errs)
	}
	return nil
}

// Delete removes artifacts on operator request. An artifact whose file
// cannot be removed keeps its record.
func (uc *Cleanup) Delete(ctx context.Context, artifactIDs ...string) error {
	var errs error
	for _, id := range artifactIDs {
		errs = multierr.Append(errs, uc.deleteOne(ctx, id))
	}
	return errs
}

func (uc *Cleanup) deleteOne(ctx context.Context, id string) error {
	artifact, err := uc.artifacts.GetArtifact(ctx, id)
	if err != nil {
		return err
	}

	if err := os.Remove(artifact.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.NewError(domain.ErrIO, fmt.Sprintf("failed to delete %s", artifact.Name), err)
	}

	if err := uc.artifacts.DeleteArtifact(ctx, id); err != nil {
		return err
	}

	uc.logger.Infof("Deleted backup on request: %s", artifact.Name)
	return nil
}

func (uc *Cleanup) cleanupTargets(ctx context.Context, cutoff time.Time) int {
	var (
		wg     sync.WaitGroup
		pruned atomic.Int64
	)

	for _, target := range uc.uploadTargets {
		wg.Add(1)
		go func(t UploadTarget) {
			defer wg.Done()

			n, err := uc.cleanupTarget(ctx, t, cutoff)
			pruned.Add(int64(n))
			if err != nil {
				uc.logger.Errorf("Cleanup failed for %s: %v", t.Name, err)
			}
		}(target)
	}

	wg.Wait()
	return int(pruned.Load())
}

func (uc *Cleanup) cleanupTarget(ctx context.Context, target UploadTarget, cutoff time.Time) (int, error) {
	files, err := target.Storage.GetOldFiles(ctx, cutoff)
	if err != nil {
		files, err = uc.fallbackListFiles(ctx, target, cutoff)
		if err != nil {
			return 0, err
		}
	}

	deleted := 0
	for _, filename := range files {
		uc.logger.Infof("Deleting old backup from %s: %s", target.Name, filename)

		if err := target.Storage.Delete(ctx, filename); err != nil {
			uc.logger.Errorf("Failed to delete %s from %s: %v", filename, target.Name, err)
		} else {
			deleted++
		}
	}

	uc.logger.Infof("Deleted %d old backup(s) from %s", deleted, target.Name)
	return deleted, nil
}

// fallbackListFiles dates remote files by the timestamp in their name, for
// targets that cannot filter by age themselves.
func (uc *Cleanup) fallbackListFiles(ctx context.Context, target UploadTarget, cutoff time.Time) ([]string, error) {
	files, err := target.Storage.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	var oldFiles []string
	for _, filename := range files {
		timestamp, err := extractTimestamp(filename, cutoff.Location())
		if err != nil {
			uc.logger.Warnf("Could not parse timestamp from %s: %v", filename, err)
			continue
		}

		if timestamp.Before(cutoff) {
			oldFiles = append(oldFiles, filename)
		}
	}

	return oldFiles, nil
}

func extractTimestamp(filename string, loc *time.Location) (time.Time, error) {
	matches := timestampPattern.FindStringSubmatch(path.Base(filename))
	if len(matches) < 3 {
		return time.Time{}, fmt.Errorf("invalid filename format: no timestamp found")
	}

	return time.ParseInLocation("20060102_150405", matches[1]+"_"+matches[2], loc)
}
