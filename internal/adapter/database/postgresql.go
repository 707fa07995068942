package database

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/semmidev/dbwarden/internal/config"
)

type PostgreSQLDatabase struct {
	config *config.ServerConfig
}

func NewPostgreSQL(cfg *config.ServerConfig) *PostgreSQLDatabase {
	return &PostgreSQLDatabase{config: cfg}
}

func (p *PostgreSQLDatabase) Dump(ctx context.Context, database string, w io.Writer) error {
	return runCommand(ctx, p.env(), w, "pg_dump", p.dumpArgs(database, "custom")...)
}

func (p *PostgreSQLDatabase) DumpArchive(ctx context.Context, database string, w io.Writer) error {
	m := manifest{
		Database:  database,
		Engine:    p.GetType(),
		DumpEntry: "dump.sql",
		CreatedAt: time.Now().UTC(),
	}
	return writeArchive(ctx, w, m, func(ctx context.Context, entry io.Writer) error {
		return runCommand(ctx, p.env(), entry, "pg_dump", p.dumpArgs(database, "plain")...)
	})
}

func (p *PostgreSQLDatabase) ListDatabases(ctx context.Context) ([]string, error) {
	args := append(p.connArgs(),
		"--dbname=postgres",
		"--no-align",
		"--tuples-only",
		"-c", "SELECT datname FROM pg_database WHERE NOT datistemplate ORDER BY datname",
	)
	return outputLines(ctx, p.env(), "psql", args...)
}

func (p *PostgreSQLDatabase) GetType() string {
	return "postgresql"
}

func (p *PostgreSQLDatabase) Ping(ctx context.Context) error {
	args := append(p.connArgs(), "--dbname=postgres", "-c", "SELECT 1")
	if err := runCommand(ctx, p.env(), io.Discard, "psql", args...); err != nil {
		return fmt.Errorf("postgresql ping failed: %w", err)
	}
	return nil
}

func (p *PostgreSQLDatabase) dumpArgs(database, format string) []string {
	return append(p.connArgs(),
		fmt.Sprintf("--format=%s", format),
		"--no-owner",
		database,
	)
}

func (p *PostgreSQLDatabase) connArgs() []string {
	return []string{
		fmt.Sprintf("--host=%s", p.config.Host),
		fmt.Sprintf("--port=%d", p.config.Port),
		fmt.Sprintf("--username=%s", p.config.Username),
		"--no-password",
	}
}

func (p *PostgreSQLDatabase) env() []string {
	env := []string{fmt.Sprintf("PGPASSWORD=%s", p.config.Password)}
	if p.config.SSLMode != "" {
		env = append(env, fmt.Sprintf("PGSSLMODE=%s", p.config.SSLMode))
	}
	return env
}
