package images

import (
	"fmt"
	"image"

	"github.com/bbrks/go-blurhash"
	"github.com/disintegration/imaging"
)

// blurHashSize bounds the thumbnail fed to the encoder. The hash is a
// handful of DCT terms, so anything past 64px is wasted work.
const blurHashSize = 64

// BlurHash components. 4x3 keeps the string around 30 characters while
// still sketching composition.
const (
	blurHashXComp = 4
	blurHashYComp = 3
)

// ComputeBlurHash returns the BlurHash placeholder string for img.
func ComputeBlurHash(img image.Image) (string, error) {
	thumb := imaging.Fit(img, blurHashSize, blurHashSize, imaging.Lanczos)

	hash, err := blurhash.Encode(blurHashXComp, blurHashYComp, thumb)
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}
