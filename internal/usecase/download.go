package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/semmidev/dbwarden/internal/domain"
	"github.com/semmidev/dbwarden/internal/infrastructure/metrics"
)

type ReleaseKind int

const (
	// ReleasePassthrough delivers an unprotected file as stored.
	ReleasePassthrough ReleaseKind = iota
	// ReleaseDecrypted delivers the decrypted dump held in memory.
	ReleaseDecrypted
	// ReleaseArchive delivers a validated protected archive as stored.
	ReleaseArchive
)

func (k ReleaseKind) String() string {
	switch k {
	case ReleasePassthrough:
		return "passthrough"
	case ReleaseDecrypted:
		return "decrypted"
	case ReleaseArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// Release is an authorized download. Only a successful validation produces
// one, so nothing is delivered for a wrong password.
type Release struct {
	Kind ReleaseKind
	// Name is the file name offered to the requester.
	Name string

	path string
	data []byte
}

// Open returns the bytes to deliver.
func (r *Release) Open() (io.ReadCloser, error) {
	if r.Kind == ReleaseDecrypted {
		return io.NopCloser(bytes.NewReader(r.data)), nil
	}

	file, err := os.Open(r.path)
	if err != nil {
		return nil, fileError(err)
	}
	return file, nil
}

// Download validates passwords before any backup content leaves the system.
type Download struct {
	configs   domain.ConfigStore
	artifacts domain.ArtifactStore
	cipher    domain.Cipher
	archiver  domain.Archiver
	logger    Logger
}

func NewDownload(
	configs domain.ConfigStore,
	artifacts domain.ArtifactStore,
	cipher domain.Cipher,
	archiver domain.Archiver,
	logger Logger,
) *Download {
	return &Download{
		configs:   configs,
		artifacts: artifacts,
		cipher:    cipher,
		archiver:  archiver,
		logger:    logger,
	}
}

// Authorize checks password against a protected artifact. Protected
// artifacts require a non-empty password; a wrong one and a damaged file
// produce the same error.
func (uc *Download) Authorize(ctx context.Context, artifact *domain.Artifact, password string) (*Release, error) {
	var (
		release *Release
		err     error
		kind    ReleaseKind
	)

	switch {
	case artifact.IsEncrypted():
		kind = ReleaseDecrypted
		release, err = uc.decryptArtifact(artifact, password)
	case artifact.IsArchive():
		kind = ReleaseArchive
		release, err = uc.validateArchive(artifact, password)
	default:
		kind = ReleasePassthrough
		release = &Release{Kind: ReleasePassthrough, Name: artifact.Name, path: artifact.Path}
	}

	metrics.RecordDownload(kind.String(), err)
	if err != nil {
		uc.logger.Warnf("Download of %s refused: %v", artifact.Name, err)
		return nil, err
	}
	return release, nil
}

func (uc *Download) decryptArtifact(artifact *domain.Artifact, password string) (*Release, error) {
	if password == "" {
		return nil, domain.NewError(domain.ErrForbidden, "password is required", nil)
	}

	sealed, err := os.ReadFile(artifact.Path)
	if err != nil {
		return nil, fileError(err)
	}

	plaintext, err := uc.cipher.Decrypt(password, sealed)
	if err != nil {
		return nil, domain.ErrWrongPasswordOrCorrupt
	}

	return &Release{
		Kind: ReleaseDecrypted,
		Name: domain.DecryptedName(artifact.Name),
		data: plaintext,
	}, nil
}

func (uc *Download) validateArchive(artifact *domain.Artifact, password string) (*Release, error) {
	if password == "" {
		return nil, domain.NewError(domain.ErrForbidden, "password is required", nil)
	}

	if err := uc.archiver.Validate(artifact.Path, password); err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, domain.NewError(domain.ErrNotFound, "backup file not found", nil)
		}
		return nil, domain.ErrWrongPasswordOrCorrupt
	}

	return &Release{Kind: ReleaseArchive, Name: artifact.Name, path: artifact.Path}, nil
}

// Fetch resolves filename among the registered artifacts of a config.
func (uc *Download) Fetch(ctx context.Context, configID uint, filename, password string) (*Release, error) {
	cfg, err := uc.configs.GetConfig(ctx, configID)
	if err != nil {
		return nil, err
	}

	if !isBareName(filename) {
		return nil, domain.NewError(domain.ErrForbidden, "invalid file name", nil)
	}

	artifacts, err := uc.artifacts.ListArtifacts(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}

	var artifact *domain.Artifact
	for _, a := range artifacts {
		if a.Name == filename {
			artifact = a
			break
		}
	}
	if artifact == nil {
		return nil, domain.NewError(domain.ErrForbidden, "file does not belong to this backup", nil)
	}

	return uc.authorizeExisting(ctx, artifact, password)
}

// FetchDirect resolves an artifact by its registry id.
func (uc *Download) FetchDirect(ctx context.Context, artifactID, password string) (*Release, error) {
	artifact, err := uc.artifacts.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	return uc.authorizeExisting(ctx, artifact, password)
}

// Decrypt serves the public decryptor: an uploaded encrypted backup and its
// password, no registry involved.
func (uc *Download) Decrypt(filename string, blob []byte, password string) (*Release, error) {
	if len(blob) == 0 {
		return nil, domain.NewError(domain.ErrConfig, "an encrypted backup file is required", nil)
	}
	if password == "" {
		return nil, domain.NewError(domain.ErrConfig, "password is required", nil)
	}

	plaintext, err := uc.cipher.Decrypt(password, blob)
	metrics.RecordDownload("decryptor", err)
	if err != nil {
		return nil, domain.ErrWrongPasswordOrCorrupt
	}

	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		name = "backup." + domain.ExtEncrypted
	}

	return &Release{
		Kind: ReleaseDecrypted,
		Name: domain.DecryptedName(name),
		data: plaintext,
	}, nil
}

func (uc *Download) authorizeExisting(ctx context.Context, artifact *domain.Artifact, password string) (*Release, error) {
	if _, err := os.Stat(artifact.Path); err != nil {
		return nil, fileError(err)
	}
	return uc.Authorize(ctx, artifact, password)
}

func isBareName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func fileError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NewError(domain.ErrNotFound, "backup file not found", nil)
	}
	return domain.NewError(domain.ErrIO, "failed to read backup file", err)
}
