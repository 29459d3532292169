package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/docq-ai/docq/internal/llm"
	"github.com/docq-ai/docq/internal/retrieval"
	"github.com/docq-ai/docq/internal/storage"
)

type fakeHistory struct {
	appends      []storage.Message
	recent       []storage.Message
	recentErr    error
	assistantErr error // returned when an assistant turn is appended
}

func (f *fakeHistory) AppendMessage(ctx context.Context, documentID, role, text string) (storage.Message, error) {
	if role == storage.RoleAssistant && f.assistantErr != nil {
		return storage.Message{}, f.assistantErr
	}
	m := storage.Message{ID: fmt.Sprintf("m%d", len(f.appends)), DocumentID: documentID, Role: role, Text: text}
	f.appends = append(f.appends, m)
	return m, nil
}

func (f *fakeHistory) RecentMessages(ctx context.Context, documentID string, limit int) ([]storage.Message, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	if len(f.recent) > limit {
		return f.recent[len(f.recent)-limit:], nil
	}
	return f.recent, nil
}

func (f *fakeHistory) assistantTurns() []storage.Message {
	var out []storage.Message
	for _, m := range f.appends {
		if m.Role == storage.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}

type fakeSearcher struct {
	passages []retrieval.Passage
	err      error
}

func (f *fakeSearcher) Search(ctx context.Context, documentID, query string, topK int) ([]retrieval.Passage, error) {
	return f.passages, f.err
}

// fakeStream yields scripted tokens, then err (or io.EOF).
type fakeStream struct {
	tokens []string
	err    error
	pos    int
	closed bool
}

func (f *fakeStream) Recv() (string, error) {
	if f.pos < len(f.tokens) {
		tok := f.tokens[f.pos]
		f.pos++
		return tok, nil
	}
	if f.err != nil {
		return "", f.err
	}
	return "", io.EOF
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

type fakeCompleter struct {
	stream  *fakeStream
	openErr error
	prompt  string
}

func (f *fakeCompleter) StreamChat(ctx context.Context, prompt string, p llm.GenerationParams) (TokenStream, error) {
	f.prompt = prompt
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.stream, nil
}

// failSink accepts failAfter writes, then errors.
type failSink struct {
	failAfter int
	writes    []string
	closed    bool
}

func (s *failSink) Write(chunk string) error {
	if s.closed {
		return ErrSinkClosed
	}
	if len(s.writes) >= s.failAfter {
		return errors.New("client disconnected")
	}
	s.writes = append(s.writes, chunk)
	return nil
}

func (s *failSink) Close() error {
	if s.closed {
		return ErrSinkClosed
	}
	s.closed = true
	return nil
}

func newTestResponder(h History, s *fakeSearcher, c *fakeCompleter) *Responder {
	return NewResponder(h, s, c, Options{})
}

func TestAnswerHappyPath(t *testing.T) {
	history := &fakeHistory{}
	completer := &fakeCompleter{stream: &fakeStream{tokens: []string{"The ", "answer", "."}}}
	r := newTestResponder(history, &fakeSearcher{passages: []retrieval.Passage{{Text: "ctx"}}}, completer)

	gen, err := r.Prepare(context.Background(), "doc1", "  a question  ")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if gen.Question != "a question" {
		t.Errorf("question not trimmed: %q", gen.Question)
	}
	if !strings.Contains(gen.Prompt, "ctx") || !strings.Contains(gen.Prompt, "a question") {
		t.Errorf("prompt missing inputs:\n%s", gen.Prompt)
	}

	var sink BufferSink
	if err := r.Stream(context.Background(), gen, &sink); err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if got := sink.String(); got != "The answer." {
		t.Errorf("delivered %q, want %q", got, "The answer.")
	}
	if !sink.Closed() {
		t.Error("sink not closed after stream")
	}

	turns := history.assistantTurns()
	if len(turns) != 1 {
		t.Fatalf("assistant turns = %d, want exactly 1", len(turns))
	}
	if turns[0].Text != "The answer." {
		t.Errorf("committed %q, want the full concatenation", turns[0].Text)
	}
	if turns[0].DocumentID != "doc1" {
		t.Errorf("assistant turn bound to %q, want doc1", turns[0].DocumentID)
	}
}

func TestPrepareRejectsEmptyQuestion(t *testing.T) {
	history := &fakeHistory{}
	r := newTestResponder(history, &fakeSearcher{}, &fakeCompleter{stream: &fakeStream{}})

	for _, q := range []string{"", "   ", "\n\t"} {
		if _, err := r.Prepare(context.Background(), "doc1", q); !errors.Is(err, ErrEmptyQuestion) {
			t.Errorf("Prepare(%q) = %v, want ErrEmptyQuestion", q, err)
		}
	}
	if len(history.appends) != 0 {
		t.Errorf("empty question was persisted: %+v", history.appends)
	}
}

// The user turn must be durable before retrieval runs, so a retrieval failure
// leaves a question with no answer rather than losing the question.
func TestPrepareRetrievalFailureKeepsUserTurn(t *testing.T) {
	history := &fakeHistory{}
	r := newTestResponder(history, &fakeSearcher{err: errors.New("vector store down")}, &fakeCompleter{})

	_, err := r.Prepare(context.Background(), "doc1", "q")
	var retrievalErr *RetrievalError
	if !errors.As(err, &retrievalErr) {
		t.Fatalf("Prepare = %v, want RetrievalError", err)
	}

	if len(history.appends) != 1 || history.appends[0].Role != storage.RoleUser {
		t.Errorf("appends = %+v, want exactly the user turn", history.appends)
	}
}

func TestPrepareHistoryFailure(t *testing.T) {
	history := &fakeHistory{recentErr: errors.New("db locked")}
	r := newTestResponder(history, &fakeSearcher{}, &fakeCompleter{})

	_, err := r.Prepare(context.Background(), "doc1", "q")
	var retrievalErr *RetrievalError
	if !errors.As(err, &retrievalErr) {
		t.Fatalf("Prepare = %v, want RetrievalError", err)
	}
}

// The history window read during Prepare includes the just-appended question.
func TestPrepareHistoryIncludesQuestion(t *testing.T) {
	// appendAwareHistory reflects appends back through RecentMessages.
	hist := &appendAwareHistory{fakeHistory: &fakeHistory{}}
	r := newTestResponder(hist, &fakeSearcher{}, &fakeCompleter{stream: &fakeStream{}})

	gen, err := r.Prepare(context.Background(), "doc1", "the new question")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	found := false
	for _, m := range gen.History {
		if m.Text == "the new question" {
			found = true
		}
	}
	if !found {
		t.Errorf("history window %+v does not include the question being asked", gen.History)
	}
}

type appendAwareHistory struct {
	*fakeHistory
}

func (h *appendAwareHistory) RecentMessages(ctx context.Context, documentID string, limit int) ([]storage.Message, error) {
	h.fakeHistory.recent = h.fakeHistory.appends
	return h.fakeHistory.RecentMessages(ctx, documentID, limit)
}

func TestStreamOpenFailure(t *testing.T) {
	history := &fakeHistory{}
	completer := &fakeCompleter{openErr: errors.New("connect refused")}
	r := newTestResponder(history, &fakeSearcher{}, completer)

	gen, err := r.Prepare(context.Background(), "doc1", "q")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	sink := &failSink{failAfter: 100}
	if err := r.Stream(context.Background(), gen, sink); err == nil {
		t.Fatal("Stream should fail when the completion cannot be opened")
	}

	if len(sink.writes) != 1 || !strings.Contains(sink.writes[0], "error occurred") {
		t.Errorf("writes = %q, want a single inline error notice", sink.writes)
	}
	if !sink.closed {
		t.Error("sink not closed on failure")
	}
	if got := history.assistantTurns(); len(got) != 0 {
		t.Errorf("assistant turn persisted on failure: %+v", got)
	}
}

func TestStreamMidStreamFailure(t *testing.T) {
	history := &fakeHistory{}
	stream := &fakeStream{tokens: []string{"par", "tial"}, err: errors.New("connection reset")}
	r := newTestResponder(history, &fakeSearcher{}, &fakeCompleter{stream: stream})

	gen, err := r.Prepare(context.Background(), "doc1", "q")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	sink := &failSink{failAfter: 100}
	if err := r.Stream(context.Background(), gen, sink); err == nil {
		t.Fatal("Stream should propagate the mid-stream error")
	}

	// Tokens delivered before the failure stay delivered; the notice follows.
	want := []string{"par", "tial"}
	if len(sink.writes) != 3 {
		t.Fatalf("writes = %q, want two tokens plus the notice", sink.writes)
	}
	for i, w := range want {
		if sink.writes[i] != w {
			t.Errorf("writes[%d] = %q, want %q", i, sink.writes[i], w)
		}
	}
	if !strings.Contains(sink.writes[2], "error occurred") {
		t.Errorf("last write %q is not the error notice", sink.writes[2])
	}

	if got := history.assistantTurns(); len(got) != 0 {
		t.Errorf("partial answer persisted: %+v", got)
	}
	if !stream.closed {
		t.Error("upstream stream not closed")
	}
}

// A sink write failure means the caller is gone: cancel upstream, skip the
// notice, persist nothing.
func TestStreamSinkFailureCancelsUpstream(t *testing.T) {
	history := &fakeHistory{}
	stream := &fakeStream{tokens: []string{"a", "b", "c", "d"}}
	r := newTestResponder(history, &fakeSearcher{}, &fakeCompleter{stream: stream})

	gen, err := r.Prepare(context.Background(), "doc1", "q")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	sink := &failSink{failAfter: 2}
	if err := r.Stream(context.Background(), gen, sink); err == nil {
		t.Fatal("Stream should report the delivery failure")
	}

	if len(sink.writes) != 2 {
		t.Errorf("writes = %q, want the two accepted tokens and no notice", sink.writes)
	}
	if !stream.closed {
		t.Error("upstream stream not cancelled after sink failure")
	}
	if got := history.assistantTurns(); len(got) != 0 {
		t.Errorf("answer persisted after delivery failure: %+v", got)
	}
}

func TestStreamCommitFailure(t *testing.T) {
	history := &fakeHistory{assistantErr: errors.New("disk full")}
	stream := &fakeStream{tokens: []string{"ok"}}
	r := newTestResponder(history, &fakeSearcher{}, &fakeCompleter{stream: stream})

	gen, err := r.Prepare(context.Background(), "doc1", "q")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	sink := &failSink{failAfter: 100}
	if err := r.Stream(context.Background(), gen, sink); err == nil {
		t.Fatal("Stream should surface the commit failure")
	}
	if !sink.closed {
		t.Error("sink not closed after commit failure")
	}
	// The full answer already reached the caller; no notice is appended for a
	// persistence-only failure.
	if len(sink.writes) != 1 || sink.writes[0] != "ok" {
		t.Errorf("writes = %q, want just the answer token", sink.writes)
	}
}

func TestAnswerCollectsFullText(t *testing.T) {
	history := &fakeHistory{}
	stream := &fakeStream{tokens: []string{"full ", "text"}}
	r := newTestResponder(history, &fakeSearcher{}, &fakeCompleter{stream: stream})

	got, err := r.Answer(context.Background(), "doc1", "q")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got != "full text" {
		t.Errorf("Answer = %q, want %q", got, "full text")
	}
	if len(history.appends) != 2 {
		t.Errorf("appends = %d, want user + assistant", len(history.appends))
	}
}

func TestOptionsDefaults(t *testing.T) {
	r := NewResponder(&fakeHistory{}, &fakeSearcher{}, &fakeCompleter{}, Options{})
	if r.opts.TopK != defaultTopK {
		t.Errorf("TopK = %d, want %d", r.opts.TopK, defaultTopK)
	}
	if r.opts.HistoryLimit != defaultHistoryLimit {
		t.Errorf("HistoryLimit = %d, want %d", r.opts.HistoryLimit, defaultHistoryLimit)
	}
}
