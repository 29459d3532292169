package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the migrations are not re-applied.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) == 0 {
		t.Fatal("expected at least one applied migration")
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed between opens: %d vs %d", len(v1), len(v2))
	}
}

func TestDocumentLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := Document{ID: "d1", Name: "paper.pdf", Path: "/tmp/d1.pdf"}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	got, err := s.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Status != DocStatusPending {
		t.Errorf("new document status = %q, want %q", got.Status, DocStatusPending)
	}
	if got.Name != "paper.pdf" {
		t.Errorf("Name = %q, want %q", got.Name, "paper.pdf")
	}

	if err := s.SetDocumentStatus(ctx, "d1", DocStatusFailed, "boom"); err != nil {
		t.Fatalf("SetDocumentStatus: %v", err)
	}
	got, _ = s.GetDocument(ctx, "d1")
	if got.Error != "boom" {
		t.Errorf("failed document error = %q, want %q", got.Error, "boom")
	}

	// Moving out of failed clears the error message.
	if err := s.SetDocumentStatus(ctx, "d1", DocStatusReady, "stale"); err != nil {
		t.Fatalf("SetDocumentStatus: %v", err)
	}
	got, _ = s.GetDocument(ctx, "d1")
	if got.Status != DocStatusReady || got.Error != "" {
		t.Errorf("got status=%q error=%q, want ready with empty error", got.Status, got.Error)
	}

	if err := s.SetDocumentPageCount(ctx, "d1", 12); err != nil {
		t.Fatalf("SetDocumentPageCount: %v", err)
	}
	got, _ = s.GetDocument(ctx, "d1")
	if got.PageCount != 12 {
		t.Errorf("PageCount = %d, want 12", got.PageCount)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetDocument(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument(missing) = %v, want ErrNotFound", err)
	}
	if err := s.SetDocumentStatus(context.Background(), "missing", DocStatusReady, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetDocumentStatus(missing) = %v, want ErrNotFound", err)
	}
}

func TestDeleteDocumentRemovesMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateDocument(ctx, Document{ID: "d1", Name: "a.pdf"}); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if _, err := s.AppendMessage(ctx, "d1", RoleUser, "hello"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	if err := s.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := s.GetDocument(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("document still present after delete: %v", err)
	}
	msgs, err := s.RecentMessages(ctx, "d1", 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages survived document delete: %d", len(msgs))
	}

	if err := s.DeleteDocument(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

// TestRecentMessagesOrder verifies the window keeps the newest turns and
// returns them oldest-first, with insertion order preserved even when
// timestamps collide.
func TestRecentMessagesOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if _, err := s.AppendMessage(ctx, "d1", role, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
	}

	msgs, err := s.RecentMessages(ctx, "d1", 6)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 6 {
		t.Fatalf("got %d messages, want 6", len(msgs))
	}
	for i, m := range msgs {
		want := fmt.Sprintf("turn %d", 4+i)
		if m.Text != want {
			t.Errorf("msgs[%d].Text = %q, want %q", i, m.Text, want)
		}
	}
}

func TestRecentMessagesScopedByDocument(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AppendMessage(ctx, "d1", RoleUser, "about d1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendMessage(ctx, "d2", RoleUser, "about d2"); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.RecentMessages(ctx, "d1", 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "about d1" {
		t.Errorf("got %+v, want only d1's message", msgs)
	}
}

func TestJobQueueClaimAndComplete(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j1", Type: "index_document", PayloadJSON: `{"document_id":"d1"}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	job, err := s.ClaimNextJob([]string{"index_document"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil || job.ID != "j1" {
		t.Fatalf("claimed %+v, want j1", job)
	}
	if job.Status != "running" {
		t.Errorf("claimed job status = %q, want running", job.Status)
	}

	// A claimed job is invisible to other claimers.
	again, err := s.ClaimNextJob([]string{"index_document"})
	if err != nil {
		t.Fatalf("second ClaimNextJob: %v", err)
	}
	if again != nil {
		t.Errorf("claimed already-running job %s", again.ID)
	}

	if err := s.CompleteJob("j1"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	got, err := s.GetJob("j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != "completed" {
		t.Errorf("job status = %q, want completed", got.Status)
	}
}

func TestJobQueueFailureAndBackoff(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j1", Type: "index_document", PayloadJSON: `{}`, MaxAttempts: 2}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"index_document"}); err != nil {
		t.Fatal(err)
	}

	if err := s.FailJob("j1", "transient"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	got, _ := s.GetJob("j1")
	if got.Status != "pending" {
		t.Errorf("after first failure status = %q, want pending (retry)", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", got.Attempts)
	}
	if !got.RunAfter.After(time.Now().UTC().Add(time.Second)) {
		t.Errorf("RunAfter = %v, want a backoff in the future", got.RunAfter)
	}

	// The retry is not claimable until run_after passes.
	job, err := s.ClaimNextJob([]string{"index_document"})
	if err != nil {
		t.Fatal(err)
	}
	if job != nil {
		t.Errorf("claimed job %s before its backoff elapsed", job.ID)
	}

	if err := s.FailJob("j1", "fatal"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	got, _ = s.GetJob("j1")
	if got.Status != "failed" {
		t.Errorf("after max attempts status = %q, want failed", got.Status)
	}
	if got.LastError != "fatal" {
		t.Errorf("LastError = %q, want %q", got.LastError, "fatal")
	}
}

func TestClaimNextJobIgnoresOtherTypes(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j1", Type: "other", PayloadJSON: `{}`}); err != nil {
		t.Fatal(err)
	}
	job, err := s.ClaimNextJob([]string{"index_document"})
	if err != nil {
		t.Fatal(err)
	}
	if job != nil {
		t.Errorf("claimed job of wrong type: %+v", job)
	}
}
