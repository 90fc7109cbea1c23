// Package util provides string canonicalization helpers.
package util

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// Matches whitespace runs, including unicode spaces.
	whitespaceRe = regexp.MustCompile(`[\s\p{Zs}]+`)
	// Matches the separators tag names are tokenized on.
	tokenSeparatorRe = regexp.MustCompile(`[_\-:]+`)
)

// NormalizeTagName converts raw tag text to its canonical name, which
// is what tag identity keys on everywhere.
//
// The input is NFC-normalized so visually identical unicode collapses,
// trimmed, lowercased, and interior whitespace runs become a single
// underscore. Non-ASCII characters are kept; tags are frequently
// Japanese.
//
// Examples:
//
//	"Blue Eyes"      → "blue_eyes"
//	"blue   eyes"    → "blue_eyes"
//	"  Holding Hands " → "holding_hands"
//	"artist:Kazuo"   → "artist:kazuo"
func NormalizeTagName(input string) string {
	s := norm.NFC.String(input)
	s = strings.ToLower(strings.TrimSpace(s))
	s = whitespaceRe.ReplaceAllString(s, "_")
	return s
}

// TokenizeTagName rewrites a canonical tag name into space-separated
// tokens for word-level search matching.
//
// Examples:
//
//	"blue_eyes"        → "blue eyes"
//	"artist:john_doe"  → "artist john doe"
//	"sci-fi"           → "sci fi"
func TokenizeTagName(name string) string {
	s := tokenSeparatorRe.ReplaceAllString(name, " ")
	return strings.Join(strings.Fields(s), " ")
}
