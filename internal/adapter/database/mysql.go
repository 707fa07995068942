package database

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/semmidev/dbwarden/internal/config"
)

type MySQLDatabase struct {
	config *config.ServerConfig
}

func NewMySQL(cfg *config.ServerConfig) *MySQLDatabase {
	return &MySQLDatabase{config: cfg}
}

func (m *MySQLDatabase) Dump(ctx context.Context, database string, w io.Writer) error {
	return runCommand(ctx, m.env(), w, "mysqldump", m.dumpArgs(database)...)
}

func (m *MySQLDatabase) DumpArchive(ctx context.Context, database string, w io.Writer) error {
	mf := manifest{
		Database:  database,
		Engine:    m.GetType(),
		DumpEntry: "dump.sql",
		CreatedAt: time.Now().UTC(),
	}
	return writeArchive(ctx, w, mf, func(ctx context.Context, entry io.Writer) error {
		return m.Dump(ctx, database, entry)
	})
}

func (m *MySQLDatabase) ListDatabases(ctx context.Context) ([]string, error) {
	args := append(m.connArgs(), "--batch", "--skip-column-names", "-e", "SHOW DATABASES")
	return outputLines(ctx, m.env(), "mysql", args...)
}

func (m *MySQLDatabase) GetType() string {
	return "mysql"
}

func (m *MySQLDatabase) Ping(ctx context.Context) error {
	args := append(m.connArgs(), "-e", "SELECT 1")
	if err := runCommand(ctx, m.env(), io.Discard, "mysql", args...); err != nil {
		return fmt.Errorf("mysql ping failed: %w", err)
	}
	return nil
}

func (m *MySQLDatabase) dumpArgs(database string) []string {
	return append(m.connArgs(),
		"--single-transaction",
		"--quick",
		"--lock-tables=false",
		"--routines",
		"--triggers",
		"--events",
		database,
	)
}

func (m *MySQLDatabase) connArgs() []string {
	return []string{
		fmt.Sprintf("--host=%s", m.config.Host),
		fmt.Sprintf("--port=%d", m.config.Port),
		fmt.Sprintf("--user=%s", m.config.Username),
	}
}

// env passes the password through MYSQL_PWD so it stays out of the process list.
func (m *MySQLDatabase) env() []string {
	return []string{fmt.Sprintf("MYSQL_PWD=%s", m.config.Password)}
}
