package api

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/semmidev/dbwarden/internal/domain"
	"github.com/semmidev/dbwarden/internal/usecase"
)

const (
	passwordHeader = "X-Backup-Password"
	// Largest encrypted backup the public decryptor accepts.
	maxDecryptorUpload = 512 << 20
)

type configView struct {
	ID              uint       `json:"id"`
	Database        string     `json:"database"`
	Directory       string     `json:"directory"`
	Format          string     `json:"format"`
	TimesPerDay     int        `json:"times_per_day"`
	AllowedHours    []int      `json:"allowed_hours"`
	AutoRemove      bool       `json:"auto_remove"`
	ExecutionsToday int        `json:"executions_today"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
}

type artifactView struct {
	ID        string    `json:"id"`
	ConfigID  uint      `json:"config_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Protected bool      `json:"protected"`
	Size      int64     `json:"size"`
	OnDisk    bool      `json:"on_disk"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) fetch(w http.ResponseWriter, r *http.Request) {
	configID, ok := s.configID(w, r)
	if !ok {
		return
	}

	release, err := s.downloads.Fetch(r.Context(), configID, chi.URLParam(r, "filename"), password(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.deliver(w, r, release)
}

func (s *Server) fetchDirect(w http.ResponseWriter, r *http.Request) {
	release, err := s.downloads.FetchDirect(r.Context(), chi.URLParam(r, "fileID"), password(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.deliver(w, r, release)
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	if err := s.remover.Delete(r.Context(), chi.URLParam(r, "fileID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.configs.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	views := make([]configView, 0, len(configs))
	for _, cfg := range configs {
		views = append(views, toConfigView(cfg))
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	configID, ok := s.configID(w, r)
	if !ok {
		return
	}

	if _, err := s.configs.Get(r.Context(), configID); err != nil {
		s.fail(w, r, err)
		return
	}

	artifacts, err := s.artifacts.ListArtifacts(r.Context(), configID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	views := make([]artifactView, 0, len(artifacts))
	for _, a := range artifacts {
		views = append(views, toArtifactView(a))
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) runBackup(w http.ResponseWriter, r *http.Request) {
	configID, ok := s.configID(w, r)
	if !ok {
		return
	}

	cfg, err := s.configs.Get(r.Context(), configID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	// A client disconnect must not abort the dump half way.
	artifact, err := s.runner.Run(context.WithoutCancel(r.Context()), cfg)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toArtifactView(artifact))
}

// decrypt is the public decryptor: a multipart upload with "file" and
// "password" fields.
func (s *Server) decrypt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDecryptorUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "expected a multipart upload with a file")
		return
	}
	defer r.MultipartForm.RemoveAll()

	var (
		blob     []byte
		filename string
	)
	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		filename = header.Filename
		if blob, err = io.ReadAll(file); err != nil {
			respondError(w, http.StatusBadRequest, "failed to read upload")
			return
		}
	}

	release, err := s.downloads.Decrypt(filename, blob, password(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.deliver(w, r, release)
}

func (s *Server) configID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "configID"), 10, 64)
	if err != nil || id == 0 {
		respondError(w, http.StatusNotFound, "config not found")
		return 0, false
	}
	return uint(id), true
}

func password(r *http.Request) string {
	if pw := r.Header.Get(passwordHeader); pw != "" {
		return pw
	}
	return r.FormValue("password")
}

func toConfigView(cfg *domain.BackupConfig) configView {
	v := configView{
		ID:              cfg.ID,
		Database:        cfg.Database,
		Directory:       cfg.Directory,
		Format:          string(cfg.Format),
		TimesPerDay:     cfg.TimesPerDay,
		AllowedHours:    usecase.AllowedHours(cfg.TimesPerDay),
		AutoRemove:      cfg.AutoRemove,
		ExecutionsToday: cfg.ExecutionsToday,
	}
	if !cfg.LastRunAt.IsZero() {
		t := cfg.LastRunAt
		v.LastRunAt = &t
	}
	return v
}

func toArtifactView(a *domain.Artifact) artifactView {
	v := artifactView{
		ID:        a.ID,
		ConfigID:  a.ConfigID,
		Name:      a.Name,
		CreatedAt: a.CreatedAt,
		Protected: a.IsProtected(),
	}
	if info, err := os.Stat(a.Path); err == nil {
		v.Size = info.Size()
		v.OnDisk = true
	}
	return v
}
