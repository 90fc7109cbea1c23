package util

import "testing"

func TestNormalizeTagName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// Case and separators
		{"lowercase", "DRAGON", "dragon"},
		{"spaces to underscores", "blue eyes", "blue_eyes"},
		{"already normalized", "blue_eyes", "blue_eyes"},

		// Whitespace variants
		{"trim whitespace", "  dragon  ", "dragon"},
		{"multiple spaces", "blue   eyes", "blue_eyes"},
		{"tabs and spaces", "blue\t eyes", "blue_eyes"},
		{"ideographic space", "blue　eyes", "blue_eyes"},

		// Unicode is kept
		{"japanese", "東方Project", "東方project"},
		{"accented", "café", "café"},

		// Category prefixes pass through
		{"category prefix", "Artist:Kazuo", "artist:kazuo"},

		// Degenerate input
		{"empty string", "", ""},
		{"only spaces", "   ", ""},
		{"numbers kept", "top10", "top10"},
		{"mixed case with numbers", "1girl Solo", "1girl_solo"},

		// Names seen in real prompt metadata
		{"holding hands", "Holding Hands", "holding_hands"},
		{"long hair", "LONG HAIR", "long_hair"},
		{"masterpiece", "masterpiece", "masterpiece"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeTagName(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeTagName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestTokenizeTagName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"underscores", "blue_eyes", "blue eyes"},
		{"dashes", "sci-fi", "sci fi"},
		{"category colon", "artist:john_doe", "artist john doe"},
		{"mixed separators", "rating:safe-ish", "rating safe ish"},
		{"no separators", "masterpiece", "masterpiece"},
		{"leading separator", "_private", "private"},
		{"separator runs", "a__b--c", "a b c"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TokenizeTagName(tt.input)
			if result != tt.expected {
				t.Errorf("TokenizeTagName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
