package png

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixvaultapp/pixvault-server/internal/errors"
)

// chunk assembles a full chunk: length, type, data, CRC over type+data.
func chunk(typ string, data []byte) []byte {
	buf := make([]byte, 0, chunkHeaderSize+len(data)+chunkCRCSize)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	buf = append(buf, typ...)
	buf = append(buf, data...)

	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)
	buf = binary.BigEndian.AppendUint32(buf, crc.Sum32())
	return buf
}

func ihdrChunk(width, height uint32) []byte {
	data := make([]byte, 13)
	binary.BigEndian.PutUint32(data[0:], width)
	binary.BigEndian.PutUint32(data[4:], height)
	data[8] = 8 // bit depth
	data[9] = 6 // color type RGBA
	return chunk(typeIHDR, data)
}

func textChunk(keyword, text string) []byte {
	data := append([]byte(keyword), 0)
	data = append(data, []byte(text)...)
	return chunk(typeTEXt, data)
}

func ztxtChunk(t *testing.T, keyword, text string) []byte {
	t.Helper()
	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	_, err := w.Write([]byte(text))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data := append([]byte(keyword), 0, 0) // keyword, NUL, method 0
	data = append(data, compressed.Bytes()...)
	return chunk(typeZTXt, data)
}

func itxtChunk(t *testing.T, keyword, lang, translated, text string, compressed bool) []byte {
	t.Helper()
	payload := []byte(text)
	flag := byte(0)
	if compressed {
		flag = 1
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		_, err := w.Write(payload)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		payload = buf.Bytes()
	}

	data := append([]byte(keyword), 0, flag, 0)
	data = append(data, []byte(lang)...)
	data = append(data, 0)
	data = append(data, []byte(translated)...)
	data = append(data, 0)
	data = append(data, payload...)
	return chunk(typeITXt, data)
}

// pngFile builds a minimal PNG: signature, IHDR, given chunks, IEND.
func pngFile(chunks ...[]byte) []byte {
	buf := append([]byte{}, pngSignature...)
	buf = append(buf, ihdrChunk(832, 1216)...)
	for _, c := range chunks {
		buf = append(buf, c...)
	}
	buf = append(buf, chunk(typeIEND, nil)...)
	return buf
}

func TestReadComment_TEXt(t *testing.T) {
	file := pngFile(textChunk("Comment", `{"prompt":"1girl"}`))

	text, found, err := ReadComment(file)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"prompt":"1girl"}`, text)
}

func TestReadComment_TEXt_Latin1HighBytes(t *testing.T) {
	// 0xE9 is é in latin-1 and must survive the conversion.
	data := append([]byte("Comment"), 0)
	data = append(data, 'c', 'a', 'f', 0xE9)
	file := pngFile(chunk(typeTEXt, data))

	text, found, err := ReadComment(file)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "café", text)
}

func TestReadComment_ZTXt(t *testing.T) {
	file := pngFile(ztxtChunk(t, "Comment", `{"seed":1234567890}`))

	text, found, err := ReadComment(file)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"seed":1234567890}`, text)
}

func TestReadComment_ZTXt_UnknownMethodSkipped(t *testing.T) {
	data := append([]byte("Comment"), 0, 9) // method 9 does not exist
	data = append(data, 0xde, 0xad)
	file := pngFile(chunk(typeZTXt, data))

	_, found, err := ReadComment(file)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReadComment_ITXt_Uncompressed(t *testing.T) {
	file := pngFile(itxtChunk(t, "Comment", "en", "Kommentar", `{"prompt":"桜"}`, false))

	text, found, err := ReadComment(file)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"prompt":"桜"}`, text)
}

func TestReadComment_ITXt_Compressed(t *testing.T) {
	file := pngFile(itxtChunk(t, "Comment", "", "", `{"steps":28}`, true))

	text, found, err := ReadComment(file)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"steps":28}`, text)
}

func TestReadComment_IgnoresOtherKeywords(t *testing.T) {
	file := pngFile(
		textChunk("Software", "NovelAI"),
		textChunk("Description", "1girl, solo"),
		textChunk("Comment", `{"prompt":"1girl, solo"}`),
	)

	text, found, err := ReadComment(file)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"prompt":"1girl, solo"}`, text)
}

func TestReadComment_FirstMatchWins(t *testing.T) {
	file := pngFile(
		textChunk("Comment", "first"),
		textChunk("Comment", "second"),
	)

	text, found, err := ReadComment(file)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "first", text)
}

func TestReadComment_NoCommentChunk(t *testing.T) {
	file := pngFile(textChunk("Software", "NovelAI"))

	text, found, err := ReadComment(file)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, text)
}

func TestReadComment_NotAPNG(t *testing.T) {
	_, _, err := ReadComment([]byte("GIF89a not a png"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidImage))
}

func TestReadComment_Empty(t *testing.T) {
	_, _, err := ReadComment(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidImage))
}

func TestReadComment_TruncatedChunkStopsWalk(t *testing.T) {
	file := pngFile()
	// Claim a 1 MB chunk but supply only the header.
	truncated := append(file[:len(file)-len(chunk(typeIEND, nil))], 0x00, 0x10, 0x00, 0x00)
	truncated = append(truncated, []byte(typeTEXt)...)

	text, found, err := ReadComment(truncated)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, text)
}

func TestReadText_CustomKeyword(t *testing.T) {
	file := pngFile(textChunk("Software", "NovelAI"))

	text, found, err := ReadText(file, "Software")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "NovelAI", text)
}

func TestReadDimensions(t *testing.T) {
	file := pngFile()

	w, h, err := ReadDimensions(file)
	require.NoError(t, err)
	assert.Equal(t, 832, w)
	assert.Equal(t, 1216, h)
}

func TestReadDimensions_NotAPNG(t *testing.T) {
	_, _, err := ReadDimensions([]byte("nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidImage))
}

func TestReadDimensions_MissingIHDR(t *testing.T) {
	buf := append([]byte{}, pngSignature...)
	buf = append(buf, chunk(typeIEND, nil)...)

	_, _, err := ReadDimensions(buf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidImage))
}

func TestHasSignature(t *testing.T) {
	assert.True(t, HasSignature(pngFile()))
	assert.False(t, HasSignature([]byte{0x89, 'P', 'N'}))
	assert.False(t, HasSignature(nil))
	assert.False(t, HasSignature([]byte("JFIF")))
}
