package domain

import (
	"context"
	"io"
)

// Dumper is the external "dump a database to bytes" primitive.
type Dumper interface {
	// Dump writes the raw dump of database to w.
	Dump(ctx context.Context, database string, w io.Writer) error
	// DumpArchive writes the dump of database to w as a zip container.
	DumpArchive(ctx context.Context, database string, w io.Writer) error
	ListDatabases(ctx context.Context) ([]string, error)
	GetType() string
	Ping(ctx context.Context) error
}
