// Package api exposes chunk retrieval and deletion over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	zerrors "github.com/zzenonn/zstream/internal/errors"
)

// ChunkFetcher retrieves a chunk's bytes.
type ChunkFetcher interface {
	FetchChunk(ctx context.Context, chunkID string) ([]byte, error)
}

// ChunkDeleter removes a chunk's fragments and layout.
type ChunkDeleter interface {
	DeleteChunk(ctx context.Context, chunkID string) error
}

// ReadinessChecker reports whether the service can serve requests.
type ReadinessChecker interface {
	// CheckReady returns "ok" or "fail" and an optional message.
	CheckReady() (status, message string)
}

// ReadinessFunc adapts a function to ReadinessChecker.
type ReadinessFunc func() (string, string)

func (f ReadinessFunc) CheckReady() (string, string) { return f() }

// Handler serves the chunk and health endpoints.
type Handler struct {
	chunks  ChunkFetcher
	deleter ChunkDeleter
	ready   ReadinessChecker
}

// NewHandler creates a Handler. A nil ready checker always reports ready.
func NewHandler(chunks ChunkFetcher, deleter ChunkDeleter, ready ReadinessChecker) *Handler {
	return &Handler{chunks: chunks, deleter: deleter, ready: ready}
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// GetChunk streams the decoded chunk as an octet stream.
func (h *Handler) GetChunk(w http.ResponseWriter, r *http.Request) {
	chunkID := chi.URLParam(r, "chunkID")

	data, err := h.chunks.FetchChunk(r.Context(), chunkID)
	switch {
	case errors.Is(err, zerrors.ErrChunkNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "chunk not found"})
		return
	case errors.Is(err, zerrors.ErrChunkUnavailable):
		log.WithError(err).WithField("chunk", chunkID).Warn("Chunk unavailable")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "chunk unavailable"})
		return
	case err != nil:
		log.WithError(err).WithField("chunk", chunkID).Error("Failed to fetch chunk")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.WithError(err).WithField("chunk", chunkID).Debug("Client went away")
	}
}

// DeleteChunk removes a chunk and answers 204.
func (h *Handler) DeleteChunk(w http.ResponseWriter, r *http.Request) {
	chunkID := chi.URLParam(r, "chunkID")

	err := h.deleter.DeleteChunk(r.Context(), chunkID)
	switch {
	case errors.Is(err, zerrors.ErrChunkNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "chunk not found"})
		return
	case err != nil:
		log.WithError(err).WithField("chunk", chunkID).Error("Failed to delete chunk")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthLive always answers 200 while the process runs.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthReady answers 200 when ready and 503 otherwise.
func (h *Handler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	status, message := "ok", ""
	if h.ready != nil {
		status, message = h.ready.CheckReady()
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
