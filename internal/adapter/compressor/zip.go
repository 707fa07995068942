package compressor

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/yeka/zip"

	"github.com/semmidev/dbwarden/internal/domain"
)

var (
	errEmptyArchive = errors.New("archive has no entries")
	errUnprotected  = errors.New("entry is not encrypted")
)

// ZipArchiver writes and checks WinZip AES-256 protected zip containers.
type ZipArchiver struct{}

func NewZip() *ZipArchiver {
	return &ZipArchiver{}
}

// Wrap stores sourcePath as a single deflated, encrypted entry in destPath,
// which must not exist yet.
func (z *ZipArchiver) Wrap(sourcePath, password, destPath string) (err error) {
	if password == "" {
		return domain.NewError(domain.ErrConfig, "archive password is required", nil)
	}

	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return domain.NewError(domain.ErrIO, "failed to open source file", err)
	}
	defer sourceFile.Close()

	destFile, err := os.OpenFile(destPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, fs.ErrExist) {
		return domain.NewError(domain.ErrIO, "dest file already exists", err)
	}
	if err != nil {
		return domain.NewError(domain.ErrIO, "failed to create dest file", err)
	}
	defer func() {
		if cerr := destFile.Close(); cerr != nil && err == nil {
			err = domain.NewError(domain.ErrIO, "failed to close dest file", cerr)
		}
		if err != nil {
			_ = os.Remove(destPath)
		}
	}()

	zipWriter := zip.NewWriter(destFile)

	entry, err := zipWriter.Encrypt(filepath.Base(sourcePath), password, zip.AES256Encryption)
	if err != nil {
		return domain.NewError(domain.ErrCrypto, "failed to create encrypted entry", err)
	}

	if _, err := io.Copy(entry, sourceFile); err != nil {
		return domain.NewError(domain.ErrCrypto, "failed to compress", err)
	}

	if err := zipWriter.Close(); err != nil {
		return domain.NewError(domain.ErrIO, "failed to finish archive", err)
	}

	return nil
}

// Validate reads every entry of containerPath under password. Reading to the
// end checks the password verifier, the authentication code and the CRC.
// An entry stored without encryption fails, whatever the password.
func (z *ZipArchiver) Validate(containerPath, password string) error {
	reader, err := zip.OpenReader(containerPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.NewError(domain.ErrNotFound, "archive not found", err)
		}
		return domain.NewError(domain.ErrCrypto, domain.ErrWrongPasswordOrCorrupt.Message, err)
	}
	defer reader.Close()

	if len(reader.File) == 0 {
		return domain.NewError(domain.ErrCrypto, domain.ErrWrongPasswordOrCorrupt.Message, errEmptyArchive)
	}

	for _, f := range reader.File {
		if err := checkEntry(f, password); err != nil {
			return domain.NewError(domain.ErrCrypto, domain.ErrWrongPasswordOrCorrupt.Message,
				fmt.Errorf("entry %s: %w", f.Name, err))
		}
	}

	return nil
}

func checkEntry(f *zip.File, password string) error {
	if !f.IsEncrypted() {
		return errUnprotected
	}
	f.SetPassword(password)

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = io.Copy(io.Discard, rc)
	return err
}
