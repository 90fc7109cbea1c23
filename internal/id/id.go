// Package id mints the prefixed NanoID identifiers used across the
// vault. The prefix names the entity class, so an ID alone is enough
// to tell an image from a tag in logs and search documents.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Entity prefixes. IDs end up in blob keys and index documents, so the
// prefix set is part of the stored format and must not be repurposed.
const (
	PrefixImage = "img"
	PrefixTag   = "tag"
)

// size is the NanoID length. 21 characters of the URL-safe alphabet
// carry UUID-grade collision resistance in a shorter string.
const size = 21

// Generate mints "<prefix>-<nanoid>". It fails only when the system
// entropy source does.
func Generate(prefix string) (string, error) {
	suffix, err := gonanoid.New(size)
	if err != nil {
		return "", fmt.Errorf("generate %s id: %w", prefix, err)
	}
	return prefix + "-" + suffix, nil
}
