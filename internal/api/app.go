// Package api exposes the document-chat service over HTTP: document upload
// and lifecycle, conversation history, and the streaming chat endpoint.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docq-ai/docq/internal/chat"
	"github.com/docq-ai/docq/internal/ingest"
	"github.com/docq-ai/docq/internal/storage"
)

const (
	maxUploadSize      = 16 << 20 // PDFs beyond this are rejected at upload
	maxRequestBodySize = 1 << 20
	defaultListLimit   = 50
)

// VectorDeleter abstracts vector namespace cleanup for document deletion.
type VectorDeleter interface {
	DeleteNamespace(namespace string) error
}

// Deps holds everything the HTTP layer needs. Responder drives the chat
// pipeline; Store owns documents, messages, and the job queue.
type Deps struct {
	Store     *storage.Store
	Responder *chat.Responder
	Vectors   VectorDeleter
	Token     string
	UploadDir string
}

// NewHandler returns the service's HTTP handler. Everything under /v1
// requires the bearer token; /health does not.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/documents", handleUpload(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Get("/documents/{id}", handleGetDocument(deps))
		r.Delete("/documents/{id}", handleDeleteDocument(deps))
		r.Get("/documents/{id}/messages", handleListMessages(deps))
		r.Post("/documents/{id}/chat", handleChat(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// documentResponse is the wire shape for a document.
type documentResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	PageCount int       `json:"page_count,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toDocumentResponse(d storage.Document) documentResponse {
	return documentResponse{
		ID:        d.ID,
		Name:      d.Name,
		Status:    d.Status,
		PageCount: d.PageCount,
		Error:     d.Error,
		CreatedAt: d.CreatedAt,
	}
}

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "multipart field 'file' is required: %v", err)
			return
		}
		defer file.Close()

		if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "only PDF uploads are supported")
			return
		}

		docID := uuid.New().String()
		if err := os.MkdirAll(deps.UploadDir, 0o755); err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "preparing upload directory: %v", err)
			return
		}
		path := filepath.Join(deps.UploadDir, docID+".pdf")

		dst, err := os.Create(path)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "storing upload: %v", err)
			return
		}
		if _, err := io.Copy(dst, file); err != nil {
			dst.Close()
			os.Remove(path)
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
			return
		}
		if err := dst.Close(); err != nil {
			os.Remove(path)
			httpError(w, http.StatusInternalServerError, "server_error", "storing upload: %v", err)
			return
		}

		doc := storage.Document{
			ID:     docID,
			Name:   header.Filename,
			Path:   path,
			Status: storage.DocStatusPending,
		}
		if err := deps.Store.CreateDocument(r.Context(), doc); err != nil {
			os.Remove(path)
			httpError(w, http.StatusInternalServerError, "server_error", "saving document: %v", err)
			return
		}

		payload, err := json.Marshal(ingest.IndexPayload{DocumentID: docID})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "queueing indexing: %v", err)
			return
		}
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        ingest.JobTypeIndexDocument,
			PayloadJSON: string(payload),
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "queueing indexing: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
	}
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryLimit(r, defaultListLimit)
		docs, err := deps.Store.ListDocuments(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "listing documents: %v", err)
			return
		}
		out := make([]documentResponse, len(docs))
		for i, d := range docs {
			out[i] = toDocumentResponse(d)
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": out})
	}
}

func handleGetDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := deps.Store.GetDocument(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "loading document: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toDocumentResponse(doc))
	}
}

func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := deps.Store.GetDocument(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "loading document: %v", err)
			return
		}

		if err := deps.Store.DeleteDocument(r.Context(), id); err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "deleting document: %v", err)
			return
		}
		if deps.Vectors != nil {
			if err := deps.Vectors.DeleteNamespace(id); err != nil {
				slog.Warn("deleting document vectors", "document_id", id, "error", err)
			}
		}
		if doc.Path != "" {
			if err := os.Remove(doc.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				slog.Warn("removing document file", "document_id", id, "error", err)
			}
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// messageResponse is the wire shape for a conversation turn.
type messageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func handleListMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if _, err := deps.Store.GetDocument(r.Context(), id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "document not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "loading document: %v", err)
			return
		}

		limit := queryLimit(r, defaultListLimit)
		msgs, err := deps.Store.RecentMessages(r.Context(), id, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "reading messages: %v", err)
			return
		}
		out := make([]messageResponse, len(msgs))
		for i, m := range msgs {
			out[i] = messageResponse{ID: m.ID, Role: m.Role, Text: m.Text, CreatedAt: m.CreatedAt}
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": out})
	}
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
