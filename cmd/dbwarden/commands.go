package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/semmidev/dbwarden/internal/adapter/encryption"
	"github.com/semmidev/dbwarden/internal/app"
	"github.com/semmidev/dbwarden/internal/config"
	"github.com/semmidev/dbwarden/internal/usecase"
)

const passwordEnv = "DBWARDEN_PASSWORD"

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "dbwarden",
		Short:         "Scheduled, password-protected database backups",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")

	serve := newServeCmd(&configPath)
	cmd.RunE = serve.RunE

	cmd.AddCommand(serve)
	cmd.AddCommand(newBackupCmd(&configPath))
	cmd.AddCommand(newSweepCmd(&configPath))
	cmd.AddCommand(newDecryptCmd())

	return cmd
}

// withApp loads the config, builds the application and hands it to fn.
func withApp(ctx context.Context, configPath string, fn func(*app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer application.Shutdown()

	return fn(application)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			return withApp(ctx, *configPath, func(a *app.App) error {
				return a.Run(ctx)
			})
		},
	}
}

func newBackupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <database>",
		Short: "Back up one configured database now, ignoring the schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			return withApp(ctx, *configPath, func(a *app.App) error {
				artifact, err := a.RunBackup(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", artifact.ID, artifact.Path)
				return nil
			})
		},
	}
}

func newSweepCmd(configPath *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete backups older than the retention threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cmd.Flags().Changed("days") {
				days = cfg.Schedule.RetentionDays
			}
			if days < 0 {
				return fmt.Errorf("--days must not be negative")
			}

			return withApp(ctx, *configPath, func(a *app.App) error {
				report, err := a.Sweep(ctx, days)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "swept %d, missing %d, failed %d, remote pruned %d\n",
					report.Swept, report.Missing, report.Failed, report.RemotePruned)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention threshold in days (default: schedule.retention_days)")

	return cmd
}

// newDecryptCmd decrypts an .encrypted backup offline. It needs no config.
func newDecryptCmd() *cobra.Command {
	var in, out, password string

	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt an encrypted backup file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(passwordEnv)
			}

			blob, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read %s: %w", in, err)
			}

			downloads := usecase.NewDownload(nil, nil, encryption.NewSecretBox(), nil, zap.NewNop().Sugar())
			release, err := downloads.Decrypt(in, blob, password)
			if err != nil {
				return err
			}
			if out == "" {
				out = release.Name
			}

			body, err := release.Open()
			if err != nil {
				return err
			}
			defer body.Close()

			written, err := writeFile(out, body)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", out, humanize.Bytes(uint64(written)))
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "encrypted backup file")
	cmd.Flags().StringVar(&out, "out", "", "output file (default: the decrypted name in the working directory)")
	cmd.Flags().StringVar(&password, "password", "", "backup password (default: $"+passwordEnv+")")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	return n, nil
}
