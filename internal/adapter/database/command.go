package database

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/yeka/zip"
)

// runCommand runs name with args, streaming stdout to w. Stderr is kept for
// the error message.
func runCommand(ctx context.Context, env []string, w io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = w

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w, output: %s", name, err, strings.TrimSpace(stderr.String()))
	}

	return nil
}

// outputLines runs a command and returns its non-empty stdout lines.
func outputLines(ctx context.Context, env []string, name string, args ...string) ([]string, error) {
	var out bytes.Buffer
	if err := runCommand(ctx, env, &out, name, args...); err != nil {
		return nil, err
	}

	var lines []string
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

type manifest struct {
	Database  string    `json:"database"`
	Engine    string    `json:"engine"`
	DumpEntry string    `json:"dump_entry"`
	CreatedAt time.Time `json:"created_at"`
}

// writeArchive builds the archive-native dump: a zip holding the dump entry
// and a manifest.json describing it.
func writeArchive(ctx context.Context, w io.Writer, m manifest, dump func(ctx context.Context, w io.Writer) error) error {
	zipWriter := zip.NewWriter(w)

	entry, err := zipWriter.Create(m.DumpEntry)
	if err != nil {
		return fmt.Errorf("failed to create dump entry: %w", err)
	}
	if err := dump(ctx, entry); err != nil {
		return err
	}

	manifestEntry, err := zipWriter.Create("manifest.json")
	if err != nil {
		return fmt.Errorf("failed to create manifest entry: %w", err)
	}
	enc := json.NewEncoder(manifestEntry)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}
