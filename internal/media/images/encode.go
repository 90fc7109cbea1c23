// Package images decodes stored originals and encodes the lossless
// derivatives served to browsers.
package images

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png" // decoder for stored originals

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	_ "golang.org/x/image/webp" // decoder for webp derivatives
)

// Decode parses image bytes, accepting the formats the vault itself
// produces: PNG originals and WebP derivatives. It returns the decoded
// image and the detected format name.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// EncodeLossless encodes img in the given derivative format without
// quality loss. Returns the encoded bytes and their content type.
func EncodeLossless(img image.Image, format string) ([]byte, string, error) {
	var buf bytes.Buffer

	switch format {
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
			return nil, "", fmt.Errorf("failed to encode WebP: %w", err)
		}
		return buf.Bytes(), "image/webp", nil

	case "avif":
		// Quality 100 is lossless; full chroma preserves color accuracy.
		opts := avif.Options{
			Quality:           100,
			QualityAlpha:      100,
			Speed:             6,
			ChromaSubsampling: image.YCbCrSubsampleRatio444,
		}
		if err := avif.Encode(&buf, img, opts); err != nil {
			return nil, "", fmt.Errorf("failed to encode AVIF: %w", err)
		}
		return buf.Bytes(), "image/avif", nil

	case "png":
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, "", fmt.Errorf("failed to encode PNG: %w", err)
		}
		return buf.Bytes(), "image/png", nil

	default:
		return nil, "", fmt.Errorf("unsupported derivative format %q", format)
	}
}
