package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/docq-ai/docq/internal/chat"
	"github.com/docq-ai/docq/internal/storage"
)

// chatRequest is the body of POST /v1/documents/{id}/chat.
type chatRequest struct {
	Message string `json:"message"`
}

// handleChat runs one question through the chat pipeline. Every failure that
// can be detected before generation (bad request, unknown document, document
// not indexed, retrieval failure) is returned synchronously as JSON; after
// that the response switches to an incrementally flushed text stream of
// answer tokens, terminated by the response closing.
func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		doc, err := deps.Store.GetDocument(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "loading document: %v", err)
			return
		}
		if doc.Status != storage.DocStatusReady {
			httpError(w, http.StatusConflict, "invalid_request_error", "document is not ready for chat (status: %s)", doc.Status)
			return
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		gen, err := deps.Responder.Prepare(r.Context(), doc.ID, req.Message)
		if err != nil {
			var retrievalErr *chat.RetrievalError
			switch {
			case errors.Is(err, chat.ErrEmptyQuestion):
				httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required and must not be empty")
			case errors.As(err, &retrievalErr):
				httpError(w, http.StatusBadGateway, "api_error", "retrieving context: %v", retrievalErr.Err)
			default:
				httpError(w, http.StatusInternalServerError, "server_error", "preparing answer: %v", err)
			}
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "server_error", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sink := &streamSink{w: w, flusher: flusher}
		if err := deps.Responder.Stream(r.Context(), gen, sink); err != nil {
			// The stream is already committed to the client; nothing to send
			// beyond what the responder flushed.
			slog.Warn("chat stream failed", "document_id", doc.ID, "error", err)
		}
	}
}

// streamSink adapts an http.ResponseWriter to the chat.Sink contract: each
// chunk is written and flushed immediately, so the caller sees tokens with
// per-token latency rather than after the full answer.
type streamSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func (s *streamSink) Write(chunk string) error {
	if s.closed {
		return chat.ErrSinkClosed
	}
	if _, err := io.WriteString(s.w, chunk); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close marks the stream finished. The HTTP response itself ends when the
// handler returns; Close only guards against further writes.
func (s *streamSink) Close() error {
	if s.closed {
		return chat.ErrSinkClosed
	}
	s.closed = true
	return nil
}
