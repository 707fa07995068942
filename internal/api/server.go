// Package api is the HTTP boundary: authorized downloads, the public
// decryptor, config listing, manual runs and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/semmidev/dbwarden/internal/domain"
	"github.com/semmidev/dbwarden/internal/usecase"
)

type Downloader interface {
	Fetch(ctx context.Context, configID uint, filename, password string) (*usecase.Release, error)
	FetchDirect(ctx context.Context, artifactID, password string) (*usecase.Release, error)
	Decrypt(filename string, blob []byte, password string) (*usecase.Release, error)
}

type ConfigReader interface {
	Get(ctx context.Context, id uint) (*domain.BackupConfig, error)
	List(ctx context.Context) ([]*domain.BackupConfig, error)
}

type ArtifactLister interface {
	ListArtifacts(ctx context.Context, configID uint) ([]*domain.Artifact, error)
}

type Remover interface {
	Delete(ctx context.Context, artifactIDs ...string) error
}

type Options struct {
	// APIToken guards every route except health, metrics and the decryptor.
	// Empty leaves them open.
	APIToken string
	// DecryptorRequestsPerMinute limits the public decryptor per client IP.
	DecryptorRequestsPerMinute int
}

type Server struct {
	downloads Downloader
	configs   ConfigReader
	artifacts ArtifactLister
	remover   Remover
	runner    domain.BackupRunner
	log       *zap.SugaredLogger
	opts      Options
}

func NewServer(
	downloads Downloader,
	configs ConfigReader,
	artifacts ArtifactLister,
	remover Remover,
	runner domain.BackupRunner,
	log *zap.SugaredLogger,
	opts Options,
) *Server {
	if opts.DecryptorRequestsPerMinute <= 0 {
		opts.DecryptorRequestsPerMinute = 10
	}
	return &Server{
		downloads: downloads,
		configs:   configs,
		artifacts: artifacts,
		remover:   remover,
		runner:    runner,
		log:       log,
		opts:      opts,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.With(httprate.LimitByIP(s.opts.DecryptorRequestsPerMinute, time.Minute)).
		Post("/decryptor", s.decrypt)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)

		r.Get("/backups/{configID}/files/{filename}", s.fetch)
		r.Get("/files/{fileID}", s.fetchDirect)
		r.Delete("/files/{fileID}", s.deleteFile)

		r.Get("/configs", s.listConfigs)
		r.Get("/configs/{configID}/files", s.listFiles)
		r.Post("/configs/{configID}/run", s.runBackup)
	})

	return r
}

// NewHTTPServer wraps the routes with the server timeouts. Writes are not
// bounded since downloads can be large.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
