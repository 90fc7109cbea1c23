// Package png extracts text chunks and header fields from PNG files
// without decoding pixel data.
//
// A PNG is an 8-byte signature followed by chunks of the form
// length (uint32 BE) + type (4 ASCII bytes) + data + CRC32. Generation
// metadata travels in the three text chunk types: tEXt (latin-1),
// zTXt (latin-1, zlib-compressed) and iTXt (UTF-8, optionally
// zlib-compressed).
package png

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"

	"github.com/pixvaultapp/pixvault-server/internal/errors"
)

// pngSignature is the fixed 8-byte file header.
var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

const (
	chunkHeaderSize = 8 // length + type
	chunkCRCSize    = 4

	typeIHDR = "IHDR"
	typeIEND = "IEND"
	typeTEXt = "tEXt"
	typeZTXt = "zTXt"
	typeITXt = "iTXt"

	// commentKeyword is the text-chunk keyword NovelAI stores its
	// generation payload under.
	commentKeyword = "Comment"
)

// HasSignature reports whether buf starts with the PNG signature.
func HasSignature(buf []byte) bool {
	return len(buf) >= len(pngSignature) && bytes.Equal(buf[:len(pngSignature)], pngSignature)
}

// ReadComment returns the text of the first tEXt, zTXt or iTXt chunk
// whose keyword is "Comment". The boolean reports whether such a chunk
// was found; a PNG without one is not an error. A buffer that is not a
// PNG at all yields an invalid image error.
func ReadComment(buf []byte) (string, bool, error) {
	return ReadText(buf, commentKeyword)
}

// ReadText returns the text of the first text chunk carrying the given
// keyword, walking chunks in stream order until IEND.
func ReadText(buf []byte, keyword string) (string, bool, error) {
	if !HasSignature(buf) {
		return "", false, errors.InvalidImage("missing PNG signature")
	}

	offset := len(pngSignature)
	for {
		// A truncated chunk header ends the walk; the file is damaged
		// but whatever chunks preceded it were already inspected.
		if offset+chunkHeaderSize > len(buf) {
			return "", false, nil
		}

		length := int(binary.BigEndian.Uint32(buf[offset:]))
		typ := string(buf[offset+4 : offset+chunkHeaderSize])

		dataStart := offset + chunkHeaderSize
		dataEnd := dataStart + length
		if dataEnd+chunkCRCSize > len(buf) || dataEnd < dataStart {
			return "", false, nil
		}

		switch typ {
		case typeTEXt, typeZTXt, typeITXt:
			key, text, ok := decodeTextChunk(typ, buf[dataStart:dataEnd])
			if ok && key == keyword {
				return text, true, nil
			}
		case typeIEND:
			return "", false, nil
		}

		offset = dataEnd + chunkCRCSize
	}
}

// ReadDimensions returns the pixel width and height from the IHDR
// chunk. The header is authoritative; embedded metadata may disagree.
func ReadDimensions(buf []byte) (width, height int, err error) {
	if !HasSignature(buf) {
		return 0, 0, errors.InvalidImage("missing PNG signature")
	}

	offset := len(pngSignature)
	for {
		if offset+chunkHeaderSize > len(buf) {
			return 0, 0, errors.InvalidImage("no IHDR chunk")
		}

		length := int(binary.BigEndian.Uint32(buf[offset:]))
		typ := string(buf[offset+4 : offset+chunkHeaderSize])

		dataStart := offset + chunkHeaderSize
		dataEnd := dataStart + length
		if dataEnd+chunkCRCSize > len(buf) || dataEnd < dataStart {
			return 0, 0, errors.InvalidImage("truncated IHDR chunk")
		}

		if typ == typeIHDR {
			// IHDR data: width (4), height (4), bit depth, color type, ...
			if length < 8 {
				return 0, 0, errors.InvalidImage("short IHDR chunk")
			}
			width = int(binary.BigEndian.Uint32(buf[dataStart:]))
			height = int(binary.BigEndian.Uint32(buf[dataStart+4:]))
			return width, height, nil
		}
		if typ == typeIEND {
			return 0, 0, errors.InvalidImage("no IHDR chunk")
		}

		offset = dataEnd + chunkCRCSize
	}
}

// decodeTextChunk extracts (keyword, text) from a text chunk body.
// Malformed bodies report ok = false and the walk moves on.
func decodeTextChunk(typ string, data []byte) (keyword, text string, ok bool) {
	switch typ {
	case typeTEXt:
		return decodeTEXt(data)
	case typeZTXt:
		return decodeZTXt(data)
	case typeITXt:
		return decodeITXt(data)
	}
	return "", "", false
}

// decodeTEXt handles: keyword \0 text, both latin-1.
func decodeTEXt(data []byte) (string, string, bool) {
	sep := bytes.IndexByte(data, 0)
	if sep < 0 {
		return "", "", false
	}
	return latin1String(data[:sep]), latin1String(data[sep+1:]), true
}

// decodeZTXt handles: keyword \0 compression-method(1) deflate(text).
func decodeZTXt(data []byte) (string, string, bool) {
	sep := bytes.IndexByte(data, 0)
	if sep < 0 || sep+2 > len(data) {
		return "", "", false
	}
	// 0 is the only compression method the PNG spec defines.
	if data[sep+1] != 0 {
		return "", "", false
	}
	text, err := inflate(data[sep+2:])
	if err != nil {
		return "", "", false
	}
	return latin1String(data[:sep]), latin1String(text), true
}

// decodeITXt handles:
// keyword \0 compression-flag(1) compression-method(1)
// language-tag \0 translated-keyword \0 text (UTF-8).
func decodeITXt(data []byte) (string, string, bool) {
	sep := bytes.IndexByte(data, 0)
	if sep < 0 || sep+3 > len(data) {
		return "", "", false
	}
	keyword := latin1String(data[:sep])
	compressed := data[sep+1]
	rest := data[sep+3:]

	// Skip the null-terminated language tag and translated keyword.
	langEnd := bytes.IndexByte(rest, 0)
	if langEnd < 0 {
		return "", "", false
	}
	rest = rest[langEnd+1:]
	transEnd := bytes.IndexByte(rest, 0)
	if transEnd < 0 {
		return "", "", false
	}
	rest = rest[transEnd+1:]

	switch compressed {
	case 0:
		return keyword, string(rest), true
	case 1:
		text, err := inflate(rest)
		if err != nil {
			return "", "", false
		}
		return keyword, string(text), true
	}
	return "", "", false
}

// latin1String converts latin-1 bytes to a UTF-8 string. Every byte
// value maps directly to the code point of the same value.
func latin1String(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

func inflate(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
