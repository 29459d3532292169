package ingest

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// Chunking bounds: chunks around chunkSize runes, split on whitespace, with
// chunkOverlap runes carried into the next chunk so sentences cut at a
// boundary stay findable.
const (
	chunkSize    = 1200
	chunkOverlap = 200
)

// ExtractPages returns the plain text of each page of the PDF at path, in
// page order. Pages that yield no text come back as empty strings so page
// numbering stays aligned.
func ExtractPages(path string) ([]string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extracting page %d: %w", i, err)
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return pages, nil
}

// Chunk is one indexable piece of a document.
type Chunk struct {
	Page int // 1-based page the chunk starts on
	Text string
}

// ChunkPages splits page texts into overlapping chunks. Empty pages produce
// no chunks.
func ChunkPages(pages []string) []Chunk {
	var chunks []Chunk
	for i, text := range pages {
		for _, piece := range splitText(text, chunkSize, chunkOverlap) {
			chunks = append(chunks, Chunk{Page: i + 1, Text: piece})
		}
	}
	return chunks
}

// splitText cuts text into pieces of at most size runes, breaking at the last
// whitespace before the limit when there is one, and starting each following
// piece overlap runes back from the cut.
func splitText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var pieces []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			pieces = append(pieces, strings.TrimSpace(string(runes[start:])))
			break
		}

		cut := end
		for i := end; i > start+size/2; i-- {
			if unicode.IsSpace(runes[i-1]) {
				cut = i
				break
			}
		}

		piece := strings.TrimSpace(string(runes[start:cut]))
		if piece != "" {
			pieces = append(pieces, piece)
		}

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return pieces
}
