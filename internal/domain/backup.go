package domain

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Format selects the on-disk shape of a backup artifact.
type Format string

const (
	FormatDump      Format = "dump"
	FormatEncrypted Format = "encrypted"
	FormatZip       Format = "zip"
)

// Artifact file extensions, without the leading dot.
const (
	ExtDump      = "dump"
	ExtEncrypted = "encrypted"
	ExtZip       = "zip"
)

const timestampLayout = "20060102_150405"

func (f Format) Valid() bool {
	switch f {
	case FormatDump, FormatEncrypted, FormatZip:
		return true
	}
	return false
}

// Ext is the file extension of artifacts in format f.
func (f Format) Ext() string {
	switch f {
	case FormatEncrypted:
		return ExtEncrypted
	case FormatZip:
		return ExtZip
	default:
		return ExtDump
	}
}

// BackupConfig is the backup policy of a single database.
type BackupConfig struct {
	ID          uint
	Database    string `validate:"required,ne=.,ne=..,excludesall=/\\"`
	Directory   string `validate:"required"`
	Format      Format `validate:"required,oneof=dump encrypted zip"`
	Password    string `validate:"required"`
	TimesPerDay int    `validate:"min=1,max=12"`
	AutoRemove  bool

	// ExecutionsToday counts runs since LastExecution's calendar day.
	ExecutionsToday int
	LastExecution   time.Time
	LastRunAt       time.Time
}

// Dir is the directory holding every artifact of the config.
func (c *BackupConfig) Dir() string {
	return filepath.Join(c.Directory, c.Database)
}

// RollDay resets the execution counter when now is on a different calendar
// day than the last counted execution. It reports whether a reset happened.
func (c *BackupConfig) RollDay(now time.Time) bool {
	if sameDay(c.LastExecution, now) {
		return false
	}
	c.ExecutionsToday = 0
	c.LastExecution = now
	return true
}

// RanInHour reports whether the last run happened in the same hour of the
// same day as now.
func (c *BackupConfig) RanInHour(now time.Time) bool {
	if c.LastRunAt.IsZero() {
		return false
	}
	last := c.LastRunAt.In(now.Location())
	return sameDay(last, now) && last.Hour() == now.Hour()
}

// BaseFilename returns "<database>_<YYYYMMDD_HHMMSS>".
func (c *BackupConfig) BaseFilename(now time.Time) string {
	return fmt.Sprintf("%s_%s", c.Database, now.Format(timestampLayout))
}

func sameDay(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Artifact is one backup file produced by a single run.
type Artifact struct {
	ID        string
	ConfigID  uint
	Name      string
	Path      string
	CreatedAt time.Time
}

func (a *Artifact) IsEncrypted() bool {
	return strings.HasSuffix(a.Name, "."+ExtEncrypted)
}

func (a *Artifact) IsArchive() bool {
	return strings.HasSuffix(a.Name, "."+ExtZip)
}

// IsProtected reports whether releasing the artifact requires a password.
func (a *Artifact) IsProtected() bool {
	return a.IsEncrypted() || a.IsArchive()
}

// DecryptedName maps "x.encrypted" to "x.dump"; other names are unchanged.
func DecryptedName(name string) string {
	if base, ok := strings.CutSuffix(name, "."+ExtEncrypted); ok {
		return base + "." + ExtDump
	}
	return name
}

// BackupRunner executes a single backup run for a config.
type BackupRunner interface {
	Run(ctx context.Context, cfg *BackupConfig) (*Artifact, error)
}
