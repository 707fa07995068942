package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var errOutsideBase = errors.New("path escapes storage root")

// LocalStorage is a directory tree addressed by slash-separated names. It
// serves both as a local mirror target and as the view of one config's
// backup directory.
type LocalStorage struct {
	basePath string
}

func NewLocal(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (l *LocalStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	destPath, err := l.resolve(remoteName)
	if err != nil {
		return err
	}

	source, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create dest directory: %w", err)
	}

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}

	if _, err := io.Copy(dest, source); err != nil {
		dest.Close()
		os.Remove(destPath)
		return fmt.Errorf("failed to copy: %w", err)
	}

	if err := dest.Close(); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("failed to close dest: %w", err)
	}

	return nil
}

// List returns the names of all regular files, nested ones as "dir/file".
func (l *LocalStorage) List(ctx context.Context) ([]string, error) {
	var files []string
	err := l.walk(func(name string, _ fs.FileInfo) {
		files = append(files, name)
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (l *LocalStorage) Delete(ctx context.Context, remoteName string) error {
	filePath, err := l.resolve(remoteName)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (l *LocalStorage) GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error) {
	var oldFiles []string
	err := l.walk(func(name string, info fs.FileInfo) {
		if info.ModTime().Before(cutoffTime) {
			oldFiles = append(oldFiles, name)
		}
	})
	if err != nil {
		return nil, err
	}
	return oldFiles, nil
}

func (l *LocalStorage) GetPath(filename string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(filename))
}

func (l *LocalStorage) resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", errOutsideBase, name)
	}
	return filepath.Join(l.basePath, clean), nil
}

func (l *LocalStorage) walk(visit func(name string, info fs.FileInfo)) error {
	err := filepath.WalkDir(l.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("failed to get file info for %s: %w", d.Name(), err)
		}
		rel, err := filepath.Rel(l.basePath, path)
		if err != nil {
			return err
		}
		visit(filepath.ToSlash(rel), info)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	return nil
}
