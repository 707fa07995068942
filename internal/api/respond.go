package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/semmidev/dbwarden/internal/domain"
	"github.com/semmidev/dbwarden/internal/usecase"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// statusFor maps a classified error to a status and a message that is safe
// to show. Causes are never included.
func statusFor(err error) (int, string) {
	message := "internal error"
	var classified *domain.Error
	if errors.As(err, &classified) {
		message = classified.Message
	}

	switch domain.KindOf(err) {
	case domain.ErrNotFound:
		return http.StatusNotFound, message
	case domain.ErrForbidden:
		return http.StatusForbidden, message
	case domain.ErrCrypto:
		return http.StatusForbidden, domain.ErrWrongPasswordOrCorrupt.Message
	case domain.ErrConfig:
		return http.StatusBadRequest, message
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Errorw("Request failed", "path", r.URL.Path, "error", err)
	}
	respondError(w, status, message)
}

// deliver streams an authorized release as an attachment.
func (s *Server) deliver(w http.ResponseWriter, r *http.Request, release *usecase.Release) {
	body, err := release.Open()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": release.Name}))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		s.log.Warnw("Download interrupted", "file", release.Name, "error", err)
	}
}
