package novelai

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pixvaultapp/pixvault-server/internal/domain"
	"github.com/pixvaultapp/pixvault-server/internal/util"
)

// Prompt emphasis syntax: every {} pair multiplies a tag's weight by
// 1.05, every [] pair by 0.95, and W::tag:: pins the weight to W
// directly. Groups distribute their emphasis over comma-separated
// members, so {a, b} means {a}, {b}.

const (
	braceStep   = 1.05
	bracketStep = 0.95
)

// numericJunkRe matches leftovers like "1.2" or "+ 3" that appear when
// emphasis syntax wraps a bare number. They are not tags.
var numericJunkRe = regexp.MustCompile(`^[0-9\s+\-.]+$`)

// wordRe requires at least one letter or digit in a tag name.
var wordRe = regexp.MustCompile(`[\p{L}\p{N}]`)

// ExpandControlSyntax rewrites group emphasis into per-tag emphasis:
//
//	2::a, b::  ->  2::a::, 2::b::
//	{a, b}     ->  {a}, {b}
//	[[a, b]]   ->  [[a]], [[b]]
//
// Nesting depth is preserved, single-member groups are left alone, and
// anything unbalanced passes through untouched.
func ExpandControlSyntax(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '{' || c == '[':
			group, next, ok := scanBracketGroup(s, i)
			if !ok {
				b.WriteByte(c)
				i++
				continue
			}
			b.WriteString(expandBracketGroup(group))
			i = next
		case c == '-' || isDigit(c):
			group, next, ok := scanWeightGroup(s, i)
			if !ok {
				b.WriteByte(c)
				i++
				continue
			}
			b.WriteString(expandWeightGroup(group))
			i = next
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// scanBracketGroup reads a balanced {...} or [...] group starting at i.
func scanBracketGroup(s string, i int) (group string, next int, ok bool) {
	open := s[i]
	var close byte
	if open == '{' {
		close = '}'
	} else {
		close = ']'
	}
	depth := 0
	j := i
	for ; j < len(s); j++ {
		switch s[j] {
		case open:
			depth++
		case close:
			depth--
		}
		if depth == 0 {
			return s[i : j+1], j + 1, true
		}
	}
	return "", 0, false
}

// expandBracketGroup distributes a group's emphasis depth over its
// top-level comma-separated members. The depth carried to each member
// is the group's leading delimiter run, so {{a, b}} becomes
// {{a}}, {{b}}. Members are expanded recursively.
func expandBracketGroup(group string) string {
	open := group[0]
	var close byte
	if open == '{' {
		close = '}'
	} else {
		close = ']'
	}
	depth := 0
	for depth < len(group) && group[depth] == open {
		depth++
	}
	if len(group) < 2*depth {
		return group
	}
	for k := 0; k < depth; k++ {
		if group[len(group)-1-k] != close {
			return group
		}
	}
	opens := group[:depth]
	closes := group[len(group)-depth:]
	inner := group[depth : len(group)-depth]

	parts := SplitSegments(inner)
	if len(parts) < 2 {
		return opens + ExpandControlSyntax(inner) + closes
	}
	expanded := make([]string, 0, len(parts))
	for _, part := range parts {
		wrapped := opens + strings.TrimSpace(part) + closes
		expanded = append(expanded, ExpandControlSyntax(wrapped))
	}
	return strings.Join(expanded, ", ")
}

// scanWeightGroup reads a W::...:: group starting at i. W must contain
// at least one digit; a lone sign or "::" without a number is ordinary
// text.
func scanWeightGroup(s string, i int) (group string, next int, ok bool) {
	j := i
	if j < len(s) && s[j] == '-' {
		j++
	}
	digits := false
	for j < len(s) && (isDigit(s[j]) || s[j] == '.') {
		if isDigit(s[j]) {
			digits = true
		}
		j++
	}
	if !digits || j+2 > len(s) || s[j:j+2] != "::" {
		return "", 0, false
	}
	body := j + 2
	end := strings.Index(s[body:], "::")
	if end < 0 {
		return "", 0, false
	}
	next = body + end + 2
	return s[i:next], next, true
}

// expandWeightGroup distributes the numeric prefix of W::a, b:: over
// its top-level comma-separated members.
func expandWeightGroup(group string) string {
	sep := strings.Index(group, "::")
	prefix := group[:sep]
	inner := group[sep+2 : len(group)-2]

	parts := SplitSegments(inner)
	if len(parts) < 2 {
		return group
	}
	expanded := make([]string, 0, len(parts))
	for _, part := range parts {
		expanded = append(expanded, prefix+"::"+strings.TrimSpace(part)+"::")
	}
	return strings.Join(expanded, ", ")
}

// SplitSegments splits a prompt on commas outside {} and [] groups.
func SplitSegments(s string) []string {
	var segments []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{', '[':
			depth++
		case '}', ']':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				segments = append(segments, s[start:i])
				start = i + 1
			}
		}
	}
	return append(segments, s[start:])
}

// ParseTagWeight decodes one prompt segment into a weighted tag.
// W::tag:: pins the weight to |W| and marks the tag negative when W
// carries a minus sign; otherwise matched {} or [] pairs are stripped
// from the outside in, compounding 1.05 or 0.95 per layer. Segments
// reduced to nothing, bare numbers, or pure punctuation are dropped.
func ParseTagWeight(segment string) (domain.WeightedTag, bool) {
	s := strings.TrimSpace(segment)
	if s == "" {
		return domain.WeightedTag{}, false
	}

	if text, weight, negative, ok := parseExplicitWeight(s); ok {
		return finishTag(text, weight, negative)
	}

	weight := 1.0
	if stripped, layers := stripMatched(s, '{', '}'); layers > 0 {
		weight = math.Pow(braceStep, float64(layers))
		s = stripped
	} else if stripped, layers := stripMatched(s, '[', ']'); layers > 0 {
		weight = math.Pow(bracketStep, float64(layers))
		s = stripped
	}
	return finishTag(s, weight, false)
}

// parseExplicitWeight matches the anchored W::tag:: form. W may be
// signed and may omit digits entirely ("::tag::" keeps weight 1.0,
// "-::tag::" keeps 1.0 but flags the tag negative).
func parseExplicitWeight(s string) (text string, weight float64, negative bool, ok bool) {
	j := 0
	if j < len(s) && s[j] == '-' {
		j++
	}
	for j < len(s) && (isDigit(s[j]) || s[j] == '.') {
		j++
	}
	if j+2 > len(s) || s[j:j+2] != "::" {
		return "", 0, false, false
	}
	if len(s)-2 < j+2 || !strings.HasSuffix(s, "::") {
		return "", 0, false, false
	}
	prefix := s[:j]
	text = s[j+2 : len(s)-2]

	negative = strings.HasPrefix(prefix, "-")
	weight = 1.0
	if strings.ContainsAny(prefix, "0123456789") {
		if v, err := strconv.ParseFloat(prefix, 64); err == nil {
			weight = math.Abs(v)
		}
	}
	return text, weight, negative, true
}

// stripMatched removes matched outer delimiter pairs one layer at a
// time, counting how many were stripped.
func stripMatched(s string, open, close byte) (string, int) {
	layers := 0
	for len(s) >= 2 && s[0] == open && s[len(s)-1] == close {
		s = s[1 : len(s)-1]
		layers++
	}
	return s, layers
}

func finishTag(text string, weight float64, negative bool) (domain.WeightedTag, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || numericJunkRe.MatchString(trimmed) || !wordRe.MatchString(trimmed) {
		return domain.WeightedTag{}, false
	}
	return domain.WeightedTag{
		Name:       util.NormalizeTagName(trimmed),
		Weight:     weight,
		IsNegative: negative,
	}, true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
