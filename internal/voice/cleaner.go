// Package voice turns assistant replies into spoken text and hands it to the
// platform's AI voice capability.
package voice

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/nextlevelbuilder/aivoice/internal/message"
)

// bracketSpan matches the shortest span from any accepted opener to the next
// accepted closer. Openers and closers are not paired by kind, and ］ only
// ever closes.
var bracketSpan = regexp.MustCompile(`[(（\[［{｛【].*?[)）\]］}｝】]`)

// Clean extracts the speakable text from a reply chain.
//
// Only Plain segments contribute. Bracketed annotations (stage directions,
// narration) are removed from each segment, each segment is trimmed, empty
// segments are dropped and the rest are joined with newlines.
func Clean(chain message.Chain) string {
	var b strings.Builder
	for _, seg := range chain {
		p, ok := seg.(message.Plain)
		if !ok {
			continue
		}
		text := strings.TrimSpace(StripAnnotations(p.Text))
		if text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return strings.TrimRightFunc(b.String(), unicode.IsSpace)
}

// StripAnnotations removes every bracketed span from text. Unmatched openers
// are kept.
func StripAnnotations(text string) string {
	return bracketSpan.ReplaceAllString(text, "")
}
