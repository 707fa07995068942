package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/im7mortal/kmutex"
	"github.com/juju/clock"

	"github.com/semmidev/dbwarden/internal/domain"
	"github.com/semmidev/dbwarden/internal/infrastructure/metrics"
)

type UploadTarget struct {
	Name    string
	Storage domain.Storage
}

// Backup runs the dump, protect and register pipeline for one config.
type Backup struct {
	dumper    domain.Dumper
	cipher    domain.Cipher
	archiver  domain.Archiver
	configs   domain.ConfigStore
	artifacts domain.ArtifactStore
	cleanup   *Cleanup
	clock     clock.Clock
	logger    Logger

	uploadTargets []UploadTarget
	notifier      domain.Notifier

	locks *kmutex.Kmutex
}

func NewBackup(
	dumper domain.Dumper,
	cipher domain.Cipher,
	archiver domain.Archiver,
	configs domain.ConfigStore,
	artifacts domain.ArtifactStore,
	cleanup *Cleanup,
	clk clock.Clock,
	logger Logger,
) *Backup {
	return &Backup{
		dumper:    dumper,
		cipher:    cipher,
		archiver:  archiver,
		configs:   configs,
		artifacts: artifacts,
		cleanup:   cleanup,
		clock:     clk,
		logger:    logger,
		locks:     kmutex.New(),
	}
}

// SetUploadTargets sets the remote targets every new artifact is copied to.
func (uc *Backup) SetUploadTargets(targets []UploadTarget) {
	uc.uploadTargets = targets
}

func (uc *Backup) SetNotifier(n domain.Notifier) {
	uc.notifier = n
}

// Run produces one artifact for cfg. Runs of the same config never overlap.
// On success the config's execution counter is incremented and persisted,
// and cfg is updated to match.
func (uc *Backup) Run(ctx context.Context, cfg *domain.BackupConfig) (*domain.Artifact, error) {
	uc.locks.Lock(cfg.ID)
	defer uc.locks.Unlock(cfg.ID)

	start := time.Now()
	uc.logger.Infof("[%s] Starting %s backup...", cfg.Database, cfg.Format)

	artifact, err := uc.produce(ctx, cfg)
	metrics.RecordBackup(string(cfg.Format), err, time.Since(start))
	if err != nil {
		uc.logger.Errorf("[%s] Backup failed: %v", cfg.Database, err)
		uc.notify(cfg, fmt.Sprintf("Backup failed\n\nDatabase: %s\nError: %v", cfg.Database, err))
		return nil, err
	}

	if err := uc.countRun(ctx, cfg, artifact.CreatedAt); err != nil {
		uc.logger.Errorf("[%s] Failed to persist execution counter: %v", cfg.Database, err)
	}

	size := "unknown size"
	if info, err := os.Stat(artifact.Path); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	uc.logger.Infof("[%s] Backup completed in %s: %s (%s)",
		cfg.Database, time.Since(start).Round(time.Millisecond), artifact.Name, size)

	if len(uc.uploadTargets) > 0 {
		uc.uploadToTargets(ctx, cfg, artifact)
	}

	uc.notify(cfg, fmt.Sprintf("Backup created\n\nDatabase: %s\nFile: %s\nSize: %s",
		cfg.Database, artifact.Name, size))

	if cfg.AutoRemove && uc.cleanup != nil {
		if err := uc.cleanup.RemoveImmediate(ctx, cfg); err != nil {
			uc.logger.Warnf("[%s] Auto-remove left files behind: %v", cfg.Database, err)
		} else {
			uc.logger.Infof("[%s] Local backup files auto-removed", cfg.Database)
		}
	}

	return artifact, nil
}

func (uc *Backup) produce(ctx context.Context, cfg *domain.BackupConfig) (*domain.Artifact, error) {
	if !cfg.Format.Valid() {
		return nil, domain.NewError(domain.ErrConfig, fmt.Sprintf("unsupported backup format %q", cfg.Format), nil)
	}
	if cfg.Format == domain.FormatEncrypted && cfg.Password == "" {
		return nil, domain.NewError(domain.ErrConfig, "password is required for encrypted backups", nil)
	}

	dir := cfg.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, domain.NewError(domain.ErrIO, "failed to create backup directory", err)
	}

	now := uc.clock.Now()
	base := filepath.Join(dir, cfg.BaseFilename(now))

	// Names have one-second resolution; a second run in the same second
	// must not replace the first run's file.
	if _, err := os.Lstat(base + "." + cfg.Format.Ext()); err == nil {
		return nil, errAlreadyExists(base + "." + cfg.Format.Ext())
	}

	var (
		finalPath string
		err       error
	)
	switch cfg.Format {
	case domain.FormatDump:
		finalPath, err = uc.dumpRaw(ctx, cfg, base)
	case domain.FormatEncrypted:
		finalPath, err = uc.dumpEncrypted(ctx, cfg, base)
	case domain.FormatZip:
		finalPath, err = uc.dumpZip(ctx, cfg, base)
	}
	if err != nil {
		return nil, err
	}

	artifact := &domain.Artifact{
		ID:        uuid.NewString(),
		ConfigID:  cfg.ID,
		Name:      filepath.Base(finalPath),
		Path:      finalPath,
		CreatedAt: now,
	}
	if err := uc.artifacts.InsertArtifact(ctx, artifact); err != nil {
		os.Remove(finalPath)
		return nil, classify(domain.ErrIO, "failed to register artifact", err)
	}

	return artifact, nil
}

func (uc *Backup) dumpRaw(ctx context.Context, cfg *domain.BackupConfig, base string) (string, error) {
	finalPath := base + "." + domain.ExtDump
	err := dumpTo(finalPath, func(w io.Writer) error {
		return uc.dumper.Dump(ctx, cfg.Database, w)
	})
	if err != nil {
		return "", err
	}
	return finalPath, nil
}

func (uc *Backup) dumpEncrypted(ctx context.Context, cfg *domain.BackupConfig, base string) (string, error) {
	tempPath, err := uc.dumpRaw(ctx, cfg, base)
	if err != nil {
		return "", err
	}
	defer os.Remove(tempPath)

	plaintext, err := os.ReadFile(tempPath)
	if err != nil {
		return "", domain.NewError(domain.ErrIO, "failed to read dump", err)
	}

	sealed, err := uc.cipher.Encrypt(cfg.Password, plaintext)
	if err != nil {
		return "", classify(domain.ErrCrypto, "failed to encrypt backup", err)
	}

	finalPath := base + "." + domain.ExtEncrypted
	if err := writeNew(finalPath, sealed); err != nil {
		return "", err
	}
	return finalPath, nil
}

func (uc *Backup) dumpZip(ctx context.Context, cfg *domain.BackupConfig, base string) (string, error) {
	dumpArchive := func(w io.Writer) error {
		return uc.dumper.DumpArchive(ctx, cfg.Database, w)
	}

	finalPath := base + "." + domain.ExtZip
	if cfg.Password == "" {
		// Without a password the native container is the artifact.
		if err := dumpTo(finalPath, dumpArchive); err != nil {
			return "", err
		}
		return finalPath, nil
	}

	tempPath := base + "_raw." + domain.ExtZip
	if err := dumpTo(tempPath, dumpArchive); err != nil {
		return "", err
	}
	defer os.Remove(tempPath)

	if err := uc.archiver.Wrap(tempPath, cfg.Password, finalPath); err != nil {
		return "", classify(domain.ErrCrypto, "failed to protect archive", err)
	}
	return finalPath, nil
}

// countRun reloads the config so concurrent edits survive, then records the
// run against today's quota.
func (uc *Backup) countRun(ctx context.Context, cfg *domain.BackupConfig, at time.Time) error {
	current, err := uc.configs.GetConfig(ctx, cfg.ID)
	if err != nil {
		return err
	}

	current.RollDay(at)
	current.ExecutionsToday++
	current.LastRunAt = at

	cfg.ExecutionsToday = current.ExecutionsToday
	cfg.LastExecution = current.LastExecution
	cfg.LastRunAt = current.LastRunAt

	return uc.configs.UpdateConfig(ctx, current)
}

func (uc *Backup) uploadToTargets(ctx context.Context, cfg *domain.BackupConfig, artifact *domain.Artifact) {
	var wg sync.WaitGroup
	remoteName := path.Join(cfg.Database, artifact.Name)

	for _, target := range uc.uploadTargets {
		wg.Add(1)
		go func(t UploadTarget) {
			defer wg.Done()

			uc.logger.Infof("[%s] Uploading to %s...", cfg.Database, t.Name)
			if err := t.Storage.Upload(ctx, artifact.Path, remoteName); err != nil {
				uc.logger.Errorf("[%s] Failed to upload to %s: %v", cfg.Database, t.Name, err)
			} else {
				uc.logger.Infof("[%s] Successfully uploaded to %s", cfg.Database, t.Name)
			}
		}(target)
	}

	wg.Wait()
}

func (uc *Backup) notify(cfg *domain.BackupConfig, message string) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.SendNotification(message); err != nil {
		uc.logger.Warnf("[%s] Failed to send notification: %v", cfg.Database, err)
	}
}

// dumpTo streams a dump into a new file at path. An existing file is never
// touched; a file created here is removed when anything fails.
func dumpTo(path string, dump func(w io.Writer) error) error {
	file, err := createNew(path)
	if err != nil {
		return err
	}

	if err := dump(file); err != nil {
		file.Close()
		os.Remove(path)
		return classify(domain.ErrDump, "failed to dump database", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(path)
		return domain.NewError(domain.ErrIO, "failed to close backup file", err)
	}
	return nil
}

func writeNew(path string, data []byte) error {
	file, err := createNew(path)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return domain.NewError(domain.ErrIO, "failed to write backup file", err)
	}
	return nil
}

func createNew(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, fs.ErrExist) {
		return nil, errAlreadyExists(path)
	}
	if err != nil {
		return nil, domain.NewError(domain.ErrIO, "failed to create backup file", err)
	}
	return file, nil
}

func errAlreadyExists(path string) error {
	return domain.NewError(domain.ErrIO,
		fmt.Sprintf("backup file %s already exists", filepath.Base(path)), fs.ErrExist)
}

// classify keeps an existing error kind and assigns kind to unclassified
// errors.
func classify(kind domain.ErrorKind, message string, err error) error {
	var classified *domain.Error
	if errors.As(err, &classified) {
		return fmt.Errorf("%s: %w", message, err)
	}
	return domain.NewError(kind, message, err)
}
