package chat

import (
	"errors"
	"strings"
)

// ErrSinkClosed is returned by a Sink on use after Close.
var ErrSinkClosed = errors.New("sink is closed")

// Sink is the answer delivery channel: an outbound, producer-driven byte
// stream. Write forwards one chunk toward the caller immediately, in order,
// without batching; Close terminates the stream. At most one Close, and no
// Write after it.
type Sink interface {
	Write(chunk string) error
	Close() error
}

// BufferSink accumulates an answer in memory. Used by non-streaming callers
// (MCP tools, tests) that want the full text rather than incremental delivery.
type BufferSink struct {
	sb     strings.Builder
	closed bool
}

func (b *BufferSink) Write(chunk string) error {
	if b.closed {
		return ErrSinkClosed
	}
	b.sb.WriteString(chunk)
	return nil
}

func (b *BufferSink) Close() error {
	if b.closed {
		return ErrSinkClosed
	}
	b.closed = true
	return nil
}

// String returns everything written so far.
func (b *BufferSink) String() string {
	return b.sb.String()
}

// Closed reports whether Close has been called.
func (b *BufferSink) Closed() bool {
	return b.closed
}
