package composer

import (
	"strings"
	"testing"

	"github.com/docq-ai/docq/internal/retrieval"
	"github.com/docq-ai/docq/internal/storage"
)

func TestAssembleSectionOrder(t *testing.T) {
	prompt := Assemble(
		"What is the main finding?",
		[]retrieval.Passage{{Text: "passage one"}, {Text: "passage two"}},
		[]storage.Message{
			{Role: storage.RoleUser, Text: "earlier question"},
			{Role: storage.RoleAssistant, Text: "earlier answer"},
		},
	)

	markers := []string{
		"PREVIOUS CONVERSATION:",
		"user: earlier question",
		"assistant: earlier answer",
		"CONTEXT:",
		"passage one",
		"passage two",
		"USER INPUT: What is the main finding?",
	}
	pos := -1
	for _, m := range markers {
		idx := strings.Index(prompt, m)
		if idx < 0 {
			t.Fatalf("prompt missing %q:\n%s", m, prompt)
		}
		if idx <= pos {
			t.Errorf("%q appears out of order", m)
		}
		pos = idx
	}

	if !strings.HasSuffix(prompt, "USER INPUT: What is the main finding?") {
		t.Errorf("prompt should end with the user question, got tail %q", prompt[len(prompt)-50:])
	}
}

// TestAssemblePreservesInputOrder: the composer never reorders what it is
// given — passage ranking and history chronology are fixed upstream.
func TestAssemblePreservesInputOrder(t *testing.T) {
	passages := []retrieval.Passage{
		{Text: "zebra", Score: 0.2},
		{Text: "apple", Score: 0.9},
		{Text: "mango", Score: 0.5},
	}
	prompt := Assemble("q", passages, nil)

	if strings.Index(prompt, "zebra") > strings.Index(prompt, "apple") {
		t.Error("passages were reordered")
	}
	if strings.Index(prompt, "apple") > strings.Index(prompt, "mango") {
		t.Error("passages were reordered")
	}
}

func TestAssemblePassageSeparator(t *testing.T) {
	prompt := Assemble("q", []retrieval.Passage{{Text: "a"}, {Text: "b"}}, nil)
	if !strings.Contains(prompt, "a\n\nb") {
		t.Errorf("passages not separated by a blank line:\n%s", prompt)
	}
}

func TestAssembleEmptyInputs(t *testing.T) {
	prompt := Assemble("only a question", nil, nil)

	// Empty sections still appear, so the model always sees the same frame.
	for _, m := range []string{"PREVIOUS CONVERSATION:", "CONTEXT:", "USER INPUT: only a question"} {
		if !strings.Contains(prompt, m) {
			t.Errorf("prompt missing %q", m)
		}
	}
}

func TestAssembleDeterministic(t *testing.T) {
	passages := []retrieval.Passage{{Text: "p"}}
	history := []storage.Message{{Role: storage.RoleUser, Text: "h"}}
	if Assemble("q", passages, history) != Assemble("q", passages, history) {
		t.Error("identical inputs produced different prompts")
	}
}
