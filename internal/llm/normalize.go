package llm

import (
	"encoding/json"
	"strings"
)

// unrecognizedContentNotice is inlined into the answer when a provider sends
// a content payload in a shape we cannot read. A single malformed chunk must
// not abort the whole generation, so this degrades to text instead of error.
const unrecognizedContentNotice = "[unrecognized content]"

// contentFragment is one element of a structured content payload.
type contentFragment struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// normalizeContent flattens a streamed delta content payload to plain text.
// Providers send either a JSON string or an ordered list of typed fragments;
// fragment text is concatenated in order, non-text fragments contribute
// nothing. An entirely unrecognized shape yields an inline notice.
func normalizeContent(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var fragments []contentFragment
	if err := json.Unmarshal(raw, &fragments); err == nil {
		var sb strings.Builder
		for _, f := range fragments {
			if f.Type == "text" {
				sb.WriteString(f.Text)
			}
		}
		return sb.String()
	}

	return unrecognizedContentNotice
}
