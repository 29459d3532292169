package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxLineSize bounds a single SSE line; token chunks are tiny, but a
// provider error payload can carry a full response body.
const maxLineSize = 1 << 20

// ChatStream is one live streaming completion. Recv yields tokens in arrival
// order, normalized to plain text, and returns io.EOF on the explicit
// end-of-stream signal. Close releases the connection and cancels the
// upstream request, so an abandoned stream is not drained to completion.
type ChatStream struct {
	body     io.ReadCloser
	cancel   context.CancelFunc
	scanner  *bufio.Scanner
	finished bool
	closed   bool
}

func newChatStream(body io.ReadCloser, cancel context.CancelFunc) *ChatStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &ChatStream{body: body, cancel: cancel, scanner: scanner}
}

// Recv returns the next non-empty token of the completion. It returns io.EOF
// once the provider signals end-of-stream ([DONE] or a finish reason), and a
// non-nil error on transport failure, provider error events, or truncation.
func (s *ChatStream) Recv() (string, error) {
	if s.closed {
		return "", fmt.Errorf("recv on closed stream")
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue // keepalive or comment
		}
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue // event:/id: fields carry no token content
		}
		payload = strings.TrimSpace(payload)
		if payload == "[DONE]" {
			s.finished = true
			return "", io.EOF
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return "", fmt.Errorf("decoding stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return "", fmt.Errorf("provider error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			s.finished = true
		}
		token := normalizeContent(choice.Delta.Content)
		if token == "" {
			continue
		}
		return token, nil
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stream: %w", err)
	}
	if s.finished {
		// Provider closed after a finish reason without a [DONE] marker.
		return "", io.EOF
	}
	return "", fmt.Errorf("stream ended without completion signal")
}

// Close releases the underlying connection. Safe to call more than once.
func (s *ChatStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.body.Close()
	s.cancel()
	return err
}
