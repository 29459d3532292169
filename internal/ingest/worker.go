// Package ingest indexes uploaded PDFs: page extraction, chunking, embedding,
// and vector insertion, driven by the SQLite job queue so uploads return
// immediately and indexing survives restarts.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docq-ai/docq/internal/retrieval"
	"github.com/docq-ai/docq/internal/storage"
)

// JobTypeIndexDocument is the queue entry created for every uploaded PDF.
const JobTypeIndexDocument = "index_document"

// IndexPayload is the job payload for an index_document job.
type IndexPayload struct {
	DocumentID string `json:"document_id"`
}

// JobStore abstracts the job queue and document registry operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetDocument(ctx context.Context, id string) (storage.Document, error)
	SetDocumentStatus(ctx context.Context, id, status, errMsg string) error
	SetDocumentPageCount(ctx context.Context, id string, pages int) error
}

// ContentEmbedder generates embeddings for chunk texts.
type ContentEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorInserter inserts records into a document's vector namespace.
type VectorInserter interface {
	Insert(namespace string, records []retrieval.Record) error
}

// Worker processes index_document jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	embedder ContentEmbedder
	vectors  VectorInserter
	poll     time.Duration
	logger   *slog.Logger

	// extract is ExtractPages, swappable in tests.
	extract func(path string) ([]string, error)
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder ContentEmbedder, vectors VectorInserter, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		poll:     pollInterval,
		logger:   slog.Default(),
		extract:  ExtractPages,
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single index_document job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeIndexDocument})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("indexing job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload IndexPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetDocument(ctx, payload.DocumentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", payload.DocumentID, err)
	}

	if err := w.store.SetDocumentStatus(ctx, doc.ID, storage.DocStatusProcessing, ""); err != nil {
		return fmt.Errorf("marking document processing: %w", err)
	}

	if err := w.index(ctx, doc); err != nil {
		if statusErr := w.store.SetDocumentStatus(ctx, doc.ID, storage.DocStatusFailed, err.Error()); statusErr != nil {
			w.logger.Error("failed to mark document failed", "document_id", doc.ID, "error", statusErr)
		}
		return err
	}

	if err := w.store.SetDocumentStatus(ctx, doc.ID, storage.DocStatusReady, ""); err != nil {
		return fmt.Errorf("marking document ready: %w", err)
	}
	return nil
}

func (w *Worker) index(ctx context.Context, doc storage.Document) error {
	pages, err := w.extract(doc.Path)
	if err != nil {
		return fmt.Errorf("extracting pages: %w", err)
	}

	if err := w.store.SetDocumentPageCount(ctx, doc.ID, len(pages)); err != nil {
		return fmt.Errorf("recording page count: %w", err)
	}

	chunks := ChunkPages(pages)
	if len(chunks) == 0 {
		return fmt.Errorf("document contains no extractable text")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	for i, c := range chunks {
		records[i] = retrieval.Record{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Page:       c.Page,
			TextChunk:  c.Text,
			Embedding:  vectors[i],
			CreatedAt:  now,
		}
	}

	if err := w.vectors.Insert(doc.ID, records); err != nil {
		return fmt.Errorf("inserting vectors: %w", err)
	}
	return nil
}
