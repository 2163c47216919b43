package publisher

import (
	"strings"

	"github.com/rivo/uniseg"
)

// blueskyGraphemeLimit is the hard post length limit enforced by the AT
// Protocol lexicon, counted in grapheme clusters.
const blueskyGraphemeLimit = 300

// truncateGraphemes trims text to at most limit grapheme clusters. An
// ellipsis is appended only when the trimmed result leaves room for it;
// a truncation that lands exactly on the limit goes out without one.
func truncateGraphemes(text string, limit int) string {
	text = strings.TrimSpace(text)
	if uniseg.GraphemeClusterCount(text) <= limit {
		return text
	}

	var b strings.Builder
	g := uniseg.NewGraphemes(text)
	for i := 0; i < limit && g.Next(); i++ {
		b.WriteString(g.Str())
	}

	truncated := strings.TrimRight(b.String(), " \t\n\r")
	if uniseg.GraphemeClusterCount(truncated)+1 <= limit {
		truncated += "…"
	}
	return truncated
}
