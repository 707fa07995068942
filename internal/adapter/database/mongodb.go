package database

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/semmidev/dbwarden/internal/config"
)

type MongoDBDatabase struct {
	config *config.ServerConfig
}

func NewMongoDB(cfg *config.ServerConfig) *MongoDBDatabase {
	return &MongoDBDatabase{config: cfg}
}

func (m *MongoDBDatabase) Dump(ctx context.Context, database string, w io.Writer) error {
	args := []string{
		fmt.Sprintf("--uri=%s", m.uri()),
		fmt.Sprintf("--db=%s", database),
		"--archive",
		"--gzip",
	}
	return runCommand(ctx, nil, w, "mongodump", args...)
}

func (m *MongoDBDatabase) DumpArchive(ctx context.Context, database string, w io.Writer) error {
	mf := manifest{
		Database:  database,
		Engine:    m.GetType(),
		DumpEntry: "dump.archive",
		CreatedAt: time.Now().UTC(),
	}
	return writeArchive(ctx, w, mf, func(ctx context.Context, entry io.Writer) error {
		return m.Dump(ctx, database, entry)
	})
}

func (m *MongoDBDatabase) ListDatabases(ctx context.Context) ([]string, error) {
	return outputLines(ctx, nil, "mongosh", m.uri(), "--quiet", "--eval",
		"db.adminCommand({listDatabases: 1, nameOnly: true}).databases.forEach(d => print(d.name))")
}

func (m *MongoDBDatabase) GetType() string {
	return "mongodb"
}

func (m *MongoDBDatabase) Ping(ctx context.Context) error {
	if err := runCommand(ctx, nil, io.Discard, "mongosh", m.uri(), "--quiet", "--eval", "db.runCommand({ ping: 1 })"); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}
	return nil
}

func (m *MongoDBDatabase) uri() string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   m.config.Host + ":" + strconv.Itoa(m.config.Port),
		Path:   "/",
	}
	if m.config.Username != "" {
		u.User = url.UserPassword(m.config.Username, m.config.Password)
	}
	if m.config.AuthDatabase != "" {
		u.RawQuery = url.Values{"authSource": {m.config.AuthDatabase}}.Encode()
	}
	return u.String()
}
