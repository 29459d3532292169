package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document statuses. A document is chat-ready only once its vectors are indexed.
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusReady      = "ready"
	DocStatusFailed     = "failed"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Document is an uploaded PDF. Its ID doubles as the vector namespace and the
// conversation log key, so retrieval and history always align to the same file.
type Document struct {
	ID        string
	Name      string
	Path      string // location of the stored PDF under the data dir
	Status    string
	PageCount int
	Error     string // last indexing error, set when Status is "failed"
	CreatedAt time.Time
}

// Message is one immutable turn in a document's conversation log.
// Turns are never updated or deleted outside of document removal.
type Message struct {
	ID         string
	DocumentID string
	Role       string
	Text       string
	CreatedAt  time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
