package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
)

type citedResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

type citedOutput struct {
	Results []citedResult `json:"results"`
}

// numberCitations rewrites a search-shaped tool result into a numbered
// reference list, continuing the numbering from offset so citations stay
// unique across repeated searches in one exchange. Content that is not
// search-shaped passes through untouched.
func numberCitations(content string, offset int) (string, int) {
	var out citedOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil || len(out.Results) == 0 {
		return content, offset
	}
	for _, r := range out.Results {
		if r.URL == "" {
			return content, offset
		}
	}

	var b strings.Builder
	for i, r := range out.Results {
		n := offset + i + 1
		fmt.Fprintf(&b, "[%d] %s (%s)\n", n, r.Title, r.URL)
		if r.Snippet != "" {
			b.WriteString(r.Snippet)
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n"), offset + len(out.Results)
}
