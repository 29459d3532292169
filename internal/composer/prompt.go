// Package composer assembles the generation prompt for one question. It is
// pure string assembly: all size caps (passage count, history depth) are
// applied by the caller before this step.
package composer

import (
	"strings"

	"github.com/docq-ai/docq/internal/retrieval"
	"github.com/docq-ai/docq/internal/storage"
)

// instructions is the static answering policy placed at the top of every
// prompt: ground the answer in the supplied context, admit ignorance rather
// than fabricate.
const instructions = `Use the following pieces of context (or previous conversation if needed) to answer the user's question in markdown format.
If you don't know the answer, just say that you don't know, don't try to make up an answer.`

const sectionBreak = "\n----------------\n"

// Assemble builds the prompt from fixed sections: the policy block, the
// conversation history as role-tagged lines in chronological order, the
// retrieved passages in the order given (descending score upstream) separated
// by blank lines, and the literal user question. Order in, order out — the
// function never reorders, deduplicates, or truncates its inputs.
func Assemble(question string, passages []retrieval.Passage, history []storage.Message) string {
	var sb strings.Builder

	sb.WriteString(instructions)
	sb.WriteString(sectionBreak)

	sb.WriteString("PREVIOUS CONVERSATION:\n")
	for _, m := range history {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}
	sb.WriteString(sectionBreak)

	sb.WriteString("CONTEXT:\n")
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p.Text)
	}
	sb.WriteString(sectionBreak)

	sb.WriteString("USER INPUT: ")
	sb.WriteString(question)

	return sb.String()
}
