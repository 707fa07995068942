package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/semmidev/dbwarden/internal/domain"
)

// memStore is an in-memory ConfigStore and ArtifactStore.
type memStore struct {
	mu        sync.Mutex
	nextID    uint
	configs   map[uint]domain.BackupConfig
	artifacts map[string]domain.Artifact

	failInsert  error
	failUpdates error
	failDelete  error
	updates     int
}

func newMemStore() *memStore {
	return &memStore{
		configs:   make(map[uint]domain.BackupConfig),
		artifacts: make(map[string]domain.Artifact),
	}
}

func notFound(what string) error {
	return domain.NewError(domain.ErrNotFound, what+" not found", nil)
}

func (m *memStore) CreateConfig(ctx context.Context, cfg *domain.BackupConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.configs {
		if c.Database == cfg.Database {
			return domain.NewError(domain.ErrConfig, "duplicate database", nil)
		}
	}
	m.nextID++
	cfg.ID = m.nextID
	m.configs[cfg.ID] = *cfg
	return nil
}

func (m *memStore) UpdateConfig(ctx context.Context, cfg *domain.BackupConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdates != nil {
		return m.failUpdates
	}
	if _, ok := m.configs[cfg.ID]; !ok {
		return notFound("config")
	}
	m.updates++
	m.configs[cfg.ID] = *cfg
	return nil
}

func (m *memStore) GetConfig(ctx context.Context, id uint) (*domain.BackupConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[id]
	if !ok {
		return nil, notFound("config")
	}
	return &c, nil
}

func (m *memStore) GetConfigByDatabase(ctx context.Context, database string) (*domain.BackupConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.configs {
		if c.Database == database {
			return &c, nil
		}
	}
	return nil, notFound("config")
}

func (m *memStore) ListConfigs(ctx context.Context) ([]*domain.BackupConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.BackupConfig
	for _, c := range m.configs {
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) DeleteConfig(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[id]; !ok {
		return notFound("config")
	}
	delete(m.configs, id)
	return nil
}

func (m *memStore) InsertArtifact(ctx context.Context, a *domain.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert != nil {
		return m.failInsert
	}
	m.artifacts[a.ID] = *a
	return nil
}

func (m *memStore) GetArtifact(ctx context.Context, id string) (*domain.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[id]
	if !ok {
		return nil, notFound("artifact")
	}
	return &a, nil
}

func (m *memStore) ListArtifacts(ctx context.Context, configID uint) ([]*domain.Artifact, error) {
	return m.filter(func(a domain.Artifact) bool { return a.ConfigID == configID }), nil
}

func (m *memStore) ListArtifactsBefore(ctx context.Context, cutoff time.Time) ([]*domain.Artifact, error) {
	return m.filter(func(a domain.Artifact) bool { return a.CreatedAt.Before(cutoff) }), nil
}

func (m *memStore) DeleteArtifact(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete != nil {
		return m.failDelete
	}
	if _, ok := m.artifacts[id]; !ok {
		return notFound("artifact")
	}
	delete(m.artifacts, id)
	return nil
}

func (m *memStore) filter(keep func(domain.Artifact) bool) []*domain.Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Artifact
	for _, a := range m.artifacts {
		if keep(a) {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memStore) artifactCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.artifacts)
}

// fakeDumper writes a fixed payload, or fails with err.
type fakeDumper struct {
	payload   string
	err       error
	databases []string
	listErr   error
	calls     int
}

func (f *fakeDumper) Dump(ctx context.Context, database string, w io.Writer) error {
	f.calls++
	if f.err != nil {
		io.WriteString(w, "partial")
		return f.err
	}
	_, err := io.WriteString(w, f.payload)
	return err
}

func (f *fakeDumper) DumpArchive(ctx context.Context, database string, w io.Writer) error {
	return f.Dump(ctx, database, w)
}

func (f *fakeDumper) ListDatabases(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.databases, nil
}

func (f *fakeDumper) GetType() string { return "fake" }

func (f *fakeDumper) Ping(ctx context.Context) error { return nil }

// failingCipher fails every operation.
type failingCipher struct{}

func (failingCipher) Encrypt(password string, plaintext []byte) ([]byte, error) {
	return nil, errors.New("cipher unavailable")
}

func (failingCipher) Decrypt(password string, ciphertext []byte) ([]byte, error) {
	return nil, errors.New("cipher unavailable")
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) SendNotification(message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

// memStorage is a remote target keeping names and modification times.
type memStorage struct {
	mu       sync.Mutex
	files    map[string]time.Time
	now      time.Time
	noFilter bool
}

func newMemStorage(now time.Time) *memStorage {
	return &memStorage{files: make(map[string]time.Time), now: now}
}

func (s *memStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[remoteName] = s.now
	return nil
}

func (s *memStorage) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name := range s.files {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (s *memStorage) Delete(ctx context.Context, remoteName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[remoteName]; !ok {
		return fmt.Errorf("file not found: %s", remoteName)
	}
	delete(s.files, remoteName)
	return nil
}

func (s *memStorage) GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error) {
	if s.noFilter {
		return nil, errors.New("age filter not supported")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name, modified := range s.files {
		if modified.Before(cutoffTime) {
			names = append(names, name)
		}
	}
	return names, nil
}

// countingRunner mimics the executor's bookkeeping without producing files.
type countingRunner struct {
	clock clock.Clock
	runs  int
	err   error
}

func (r *countingRunner) Run(ctx context.Context, cfg *domain.BackupConfig) (*domain.Artifact, error) {
	r.runs++
	if r.err != nil {
		return nil, r.err
	}
	now := r.clock.Now()
	cfg.RollDay(now)
	cfg.ExecutionsToday++
	cfg.LastRunAt = now
	return &domain.Artifact{ConfigID: cfg.ID}, nil
}
