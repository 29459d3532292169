// Package chat drives one question through retrieval, prompt assembly, and a
// streaming completion, forwarding tokens to the caller as they arrive and
// committing the finished answer to the conversation log exactly once.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/docq-ai/docq/internal/composer"
	"github.com/docq-ai/docq/internal/llm"
	"github.com/docq-ai/docq/internal/retrieval"
	"github.com/docq-ai/docq/internal/storage"
)

const (
	defaultTopK         = 4
	defaultHistoryLimit = 6
)

// errorNotice is flushed to the caller, best-effort, when generation fails
// after streaming has begun.
const errorNotice = "\n[an error occurred while generating the response]"

// ErrEmptyQuestion rejects blank questions before any side effect.
var ErrEmptyQuestion = errors.New("question must not be empty")

// RetrievalError marks a failure between recording the question and having a
// prompt ready: vector search or history read. No stream has been opened when
// it is returned, so callers can still fail the request synchronously. The
// user's question stays committed.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// History is the conversation log for a document. AppendMessage is the only
// mutator; RecentMessages returns the newest turns oldest-first.
type History interface {
	AppendMessage(ctx context.Context, documentID, role, text string) (storage.Message, error)
	RecentMessages(ctx context.Context, documentID string, limit int) ([]storage.Message, error)
}

// Searcher retrieves the passages of a document most similar to a query.
type Searcher interface {
	Search(ctx context.Context, documentID, query string, topK int) ([]retrieval.Passage, error)
}

// TokenStream yields completion tokens in arrival order; io.EOF signals a
// clean end-of-stream. Close cancels the upstream generation.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// Completer opens a streaming completion for an assembled prompt.
type Completer interface {
	StreamChat(ctx context.Context, prompt string, p llm.GenerationParams) (TokenStream, error)
}

// NewCompleter adapts *llm.Client to the Completer interface.
func NewCompleter(c *llm.Client) Completer {
	return clientCompleter{c}
}

type clientCompleter struct {
	client *llm.Client
}

func (a clientCompleter) StreamChat(ctx context.Context, prompt string, p llm.GenerationParams) (TokenStream, error) {
	return a.client.StreamChat(ctx, prompt, p)
}

// Options tune one Responder. Zero values fall back to defaults.
type Options struct {
	Generation   llm.GenerationParams
	TopK         int // passages retrieved per question
	HistoryLimit int // conversation turns included in the prompt
}

// Responder answers questions about a document. It holds no per-request
// state; everything for one answer lives in a Generation.
type Responder struct {
	history   History
	search    Searcher
	completer Completer
	opts      Options
	logger    *slog.Logger
}

// NewResponder creates a Responder over the given collaborators.
func NewResponder(history History, search Searcher, completer Completer, opts Options) *Responder {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	return &Responder{
		history:   history,
		search:    search,
		completer: completer,
		opts:      opts,
		logger:    slog.Default(),
	}
}

// Generation is one prepared request: the assembled prompt plus the inputs it
// was built from. It exists only for the duration of one answer.
type Generation struct {
	DocumentID string
	Question   string
	Prompt     string
	Passages   []retrieval.Passage
	History    []storage.Message
}

// Prepare validates the question, durably records it as a user turn, then
// issues the vector search and the history read concurrently and assembles
// the prompt once both have returned.
//
// The user turn goes in before any retrieval work, so a concurrent reader of
// the log is guaranteed to see the question, and a retrieval failure leaves
// the question committed (the log then shows a question with no answer, which
// renderers must tolerate). The history read happens after the append, so the
// prompt's history section includes the question being answered.
func (r *Responder) Prepare(ctx context.Context, documentID, question string) (*Generation, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	if _, err := r.history.AppendMessage(ctx, documentID, storage.RoleUser, question); err != nil {
		return nil, fmt.Errorf("recording question: %w", err)
	}

	var passages []retrieval.Passage
	var turns []storage.Message

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		passages, err = r.search.Search(gCtx, documentID, question, r.opts.TopK)
		if err != nil {
			return fmt.Errorf("searching passages: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		turns, err = r.history.RecentMessages(gCtx, documentID, r.opts.HistoryLimit)
		if err != nil {
			return fmt.Errorf("reading history: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, &RetrievalError{Err: err}
	}

	return &Generation{
		DocumentID: documentID,
		Question:   question,
		Prompt:     composer.Assemble(question, passages, turns),
		Passages:   passages,
		History:    turns,
	}, nil
}

// Stream runs the generation: it opens the token stream and forwards every
// token to the sink as it arrives while accumulating the full text. On
// end-of-stream the complete answer is appended to the log as the assistant
// turn — the only path that writes one — and the sink is closed. On any
// generation error a single inline notice is written best-effort, the sink is
// closed, and nothing is persisted. A sink write failure means the caller is
// gone: the upstream stream is cancelled rather than drained, no notice is
// attempted, nothing is persisted.
//
// Stream always closes the sink before returning.
func (r *Responder) Stream(ctx context.Context, gen *Generation, sink Sink) error {
	stream, err := r.completer.StreamChat(ctx, gen.Prompt, r.opts.Generation)
	if err != nil {
		return r.fail(sink, true, fmt.Errorf("opening completion stream: %w", err))
	}
	defer stream.Close()

	var answer strings.Builder
	for {
		token, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return r.fail(sink, true, fmt.Errorf("reading completion stream: %w", err))
		}

		answer.WriteString(token)
		if werr := sink.Write(token); werr != nil {
			return r.fail(sink, false, fmt.Errorf("delivering token: %w", werr))
		}
	}

	if _, err := r.history.AppendMessage(ctx, gen.DocumentID, storage.RoleAssistant, answer.String()); err != nil {
		return r.fail(sink, false, fmt.Errorf("recording answer: %w", err))
	}
	return sink.Close()
}

// Answer runs Prepare and Stream with an in-memory sink and returns the full
// answer text. Used by callers that don't stream (MCP, CLI fallback).
func (r *Responder) Answer(ctx context.Context, documentID, question string) (string, error) {
	gen, err := r.Prepare(ctx, documentID, question)
	if err != nil {
		return "", err
	}
	var buf BufferSink
	if err := r.Stream(ctx, gen, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fail closes the sink after an optional best-effort error notice and returns
// the causing error. Notice delivery is at-most-once, never guaranteed: when
// the channel itself is the failure the write just misses.
func (r *Responder) fail(sink Sink, notice bool, err error) error {
	if notice {
		if werr := sink.Write(errorNotice); werr != nil {
			r.logger.Debug("error notice not delivered", "error", werr)
		}
	}
	if cerr := sink.Close(); cerr != nil && !errors.Is(cerr, ErrSinkClosed) {
		r.logger.Debug("closing answer stream", "error", cerr)
	}
	return err
}
