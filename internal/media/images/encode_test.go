package images

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeTestImage builds a small gradient so encoders have real content
// to work with.
func makeTestImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

func makeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, makeTestImage(w, h)))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	t.Run("decodes PNG", func(t *testing.T) {
		data := makeTestPNG(t, 32, 16)

		img, format, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, "png", format)
		assert.Equal(t, 32, img.Bounds().Dx())
		assert.Equal(t, 16, img.Bounds().Dy())
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, _, err := Decode([]byte("definitely not an image"))
		assert.Error(t, err)
	})
}

func TestEncodeLossless(t *testing.T) {
	src := makeTestImage(32, 16)

	t.Run("png round-trips", func(t *testing.T) {
		data, contentType, err := EncodeLossless(src, "png")
		require.NoError(t, err)
		assert.Equal(t, "image/png", contentType)

		decoded, format, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, "png", format)
		assert.Equal(t, src.Bounds(), decoded.Bounds())
	})

	t.Run("webp round-trips", func(t *testing.T) {
		data, contentType, err := EncodeLossless(src, "webp")
		require.NoError(t, err)
		assert.Equal(t, "image/webp", contentType)

		decoded, format, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, "webp", format)
		assert.Equal(t, src.Bounds().Dx(), decoded.Bounds().Dx())
		assert.Equal(t, src.Bounds().Dy(), decoded.Bounds().Dy())
	})

	t.Run("rejects unknown format", func(t *testing.T) {
		_, _, err := EncodeLossless(src, "gif")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported derivative format")
	})
}
