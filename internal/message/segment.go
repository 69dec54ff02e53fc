// Package message models an outgoing reply as an ordered chain of segments.
//
// A segment is either plain text or an opaque platform segment (image, at,
// reply, face...). Code that cares about text switches on the concrete type;
// everything else is carried through untouched.
package message

import "strings"

// Segment is one element of a message chain. The set of implementations is
// closed: Plain and Other.
type Segment interface {
	segment()
}

// Plain is a plain-text segment.
type Plain struct {
	Text string
}

// Other is any non-text segment. Type and Data are passed to the platform as-is.
type Other struct {
	Type string
	Data map[string]any
}

func (Plain) segment() {}
func (Other) segment() {}

// Chain is an ordered list of segments making up one reply.
type Chain []Segment

// Text builds a single-segment chain.
func Text(s string) Chain {
	return Chain{Plain{Text: s}}
}

// PlainTexts returns the raw text of every Plain segment, in order.
func (c Chain) PlainTexts() []string {
	var out []string
	for _, seg := range c {
		switch s := seg.(type) {
		case Plain:
			out = append(out, s.Text)
		case Other:
			// not text
		}
	}
	return out
}

// RawText concatenates the Plain segments without separators.
func (c Chain) RawText() string {
	return strings.Join(c.PlainTexts(), "")
}

// IsEmpty reports whether the chain has no segments at all.
func (c Chain) IsEmpty() bool { return len(c) == 0 }
