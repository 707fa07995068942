package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"github.com/semmidev/dbwarden/internal/adapter/compressor"
	"github.com/semmidev/dbwarden/internal/adapter/database"
	"github.com/semmidev/dbwarden/internal/adapter/encryption"
	"github.com/semmidev/dbwarden/internal/adapter/registry"
	"github.com/semmidev/dbwarden/internal/adapter/storage"
	"github.com/semmidev/dbwarden/internal/api"
	"github.com/semmidev/dbwarden/internal/config"
	"github.com/semmidev/dbwarden/internal/domain"
	"github.com/semmidev/dbwarden/internal/infrastructure/logger"
	"github.com/semmidev/dbwarden/internal/infrastructure/scheduler"
	"github.com/semmidev/dbwarden/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

type App struct {
	config        *config.Config
	logger        *logger.Logger
	scheduler     *scheduler.Scheduler
	registry      *registry.Store
	uploadTargets []usecase.UploadTarget

	configs   *usecase.Configs
	backup    *usecase.Backup
	cleanup   *usecase.Cleanup
	schedule  *usecase.Schedule
	downloads *usecase.Download
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.New(logger.Options{
		Name:       cfg.App.Name,
		Level:      cfg.App.LogLevel,
		File:       cfg.App.LogFile,
		MaxSizeMB:  cfg.App.LogMaxSizeMB,
		MaxBackups: cfg.App.LogMaxBackups,
		MaxAgeDays: cfg.App.LogMaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Infof("Starting %s", cfg.App.Name)

	dumper, err := initializeDumper(&cfg.Server)
	if err != nil {
		log.Close()
		return nil, err
	}
	if err := dumper.Ping(ctx); err != nil {
		log.Warnf("Database server %s:%d is not reachable yet: %v", cfg.Server.Host, cfg.Server.Port, err)
	} else {
		log.Infof("✓ Connected to %s server at %s", dumper.GetType(), cfg.Server.Host)
	}

	store, err := registry.Open(cfg.Registry.Path)
	if err != nil {
		log.Close()
		return nil, err
	}

	uploadTargets, notifier := initializeUploadTargets(ctx, cfg, log)

	clk := clock.WallClock
	cipher := encryption.NewSecretBox()
	archiver := compressor.NewZip()

	configs := usecase.NewConfigs(store, dumper, log)
	if err := configs.Seed(ctx, toPolicies(cfg.Backups)); err != nil {
		store.Close()
		log.Close()
		return nil, fmt.Errorf("failed to seed backup configs: %w", err)
	}
	log.Infof("Found %d backup config(s)", len(cfg.Backups))

	cleanup := usecase.NewCleanup(store, uploadTargets, clk, log, cfg.Schedule.RetentionDays)

	backup := usecase.NewBackup(dumper, cipher, archiver, store, store, cleanup, clk, log)
	backup.SetUploadTargets(uploadTargets)
	if notifier != nil {
		backup.SetNotifier(notifier)
	}

	return &App{
		config:        cfg,
		logger:        log,
		scheduler:     scheduler.New(log.SugaredLogger),
		registry:      store,
		uploadTargets: uploadTargets,
		configs:       configs,
		backup:        backup,
		cleanup:       cleanup,
		schedule:      usecase.NewSchedule(store, backup, clk, log),
		downloads:     usecase.NewDownload(store, store, cipher, archiver, log),
	}, nil
}

func initializeDumper(cfg *config.ServerConfig) (domain.Dumper, error) {
	switch cfg.Type {
	case "mysql":
		return database.NewMySQL(cfg), nil
	case "postgresql":
		return database.NewPostgreSQL(cfg), nil
	case "mongodb":
		return database.NewMongoDB(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// initializeUploadTargets builds every enabled target. A Telegram target
// also becomes the run notifier.
func initializeUploadTargets(ctx context.Context, cfg *config.Config, log *logger.Logger) ([]usecase.UploadTarget, domain.Notifier) {
	var (
		targets  []usecase.UploadTarget
		notifier domain.Notifier
	)

	for _, targetCfg := range cfg.GetEnabledUploadTargets() {
		var stor domain.Storage

		switch targetCfg.Type {
		case "gdrive":
			gdrive, err := storage.NewGDrive(ctx, &targetCfg)
			if err != nil {
				log.Errorf("Failed to initialize Google Drive: %v", err)
				continue
			}
			stor = gdrive
			log.Infof("✓ Google Drive upload enabled")

		case "s3":
			s3, err := storage.NewS3(ctx, &targetCfg)
			if err != nil {
				log.Errorf("Failed to initialize S3: %v", err)
				continue
			}
			stor = s3
			log.Infof("✓ AWS S3 upload enabled (bucket: %s)", targetCfg.Bucket)

		case "telegram":
			telegram, err := storage.NewTelegram(&targetCfg)
			if err != nil {
				log.Errorf("Failed to initialize Telegram: %v", err)
				continue
			}
			stor = telegram
			notifier = telegram
			log.Infof("✓ Telegram upload enabled")

		case "local":
			local, err := storage.NewLocal(targetCfg.Path)
			if err != nil {
				log.Errorf("Failed to initialize local mirror: %v", err)
				continue
			}
			stor = local
			log.Infof("✓ Local mirror enabled (path: %s)", targetCfg.Path)

		default:
			log.Warnf("Unknown upload target type: %s", targetCfg.Type)
			continue
		}

		targets = append(targets, usecase.UploadTarget{
			Name:    targetCfg.Type,
			Storage: stor,
		})
	}

	return targets, notifier
}

func toPolicies(backups []config.BackupConfig) []*domain.BackupConfig {
	policies := make([]*domain.BackupConfig, 0, len(backups))
	for _, b := range backups {
		policies = append(policies, &domain.BackupConfig{
			Database:    b.Database,
			Directory:   b.Directory,
			Format:      domain.Format(b.Format),
			Password:    b.Password,
			TimesPerDay: b.TimesPerDay,
			AutoRemove:  b.AutoRemove,
		})
	}
	return policies
}

// Run schedules the backup and retention jobs and serves the HTTP API until
// ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	sched := a.config.Schedule

	a.logger.Infof("Scheduling backup ticks: %s", sched.BackupCron)
	if err := a.scheduler.AddJob("backup", sched.BackupCron, a.schedule.Execute); err != nil {
		return err
	}

	a.logger.Infof("Scheduling cleanup: %s, retention: %d days", sched.RetentionCron, sched.RetentionDays)
	if err := a.scheduler.AddJob("retention", sched.RetentionCron, a.cleanup.Execute); err != nil {
		return err
	}

	a.scheduler.Start()
	a.logger.Infof("Scheduler started successfully")
	a.logger.Infof("Backup destinations: local + %d remote target(s)", len(a.uploadTargets))

	server := api.NewServer(
		a.downloads,
		a.configs,
		a.registry,
		a.cleanup,
		a.backup,
		a.logger.SugaredLogger,
		api.Options{
			APIToken:                   a.config.HTTP.APIToken,
			DecryptorRequestsPerMinute: a.config.HTTP.DecryptorRequestsPerMinute,
		},
	).NewHTTPServer(a.config.HTTP.Addr)

	if a.config.HTTP.APIToken == "" {
		a.logger.Warnf("http.api_token is empty, download routes are unauthenticated")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Infof("HTTP API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// RunBackup produces one artifact for database right away, outside the
// slot schedule.
func (a *App) RunBackup(ctx context.Context, database string) (*domain.Artifact, error) {
	cfg, err := a.configs.GetByDatabase(ctx, database)
	if err != nil {
		return nil, err
	}
	return a.backup.Run(ctx, cfg)
}

// Sweep applies retention with thresholdDays instead of the configured value.
func (a *App) Sweep(ctx context.Context, thresholdDays int) (usecase.SweepReport, error) {
	return a.cleanup.Sweep(ctx, thresholdDays, clock.WallClock.Now())
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")
	a.scheduler.Stop()
	if err := a.registry.Close(); err != nil {
		a.logger.Warnf("Failed to close registry: %v", err)
	}
	a.logger.Close()
}
