package crawler

import (
	"bytes"
	"unicode/utf16"
	"unicode/utf8"

	"legacylens/internal/model"
)

// binarySniffLen is how many leading bytes are searched for a NUL byte.
const binarySniffLen = 8000

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// isBinary applies the NUL-byte heuristic to the leading bytes.
func isBinary(data []byte) bool {
	if hasUTF16BOM(data) {
		return false
	}
	n := len(data)
	if n > binarySniffLen {
		n = binarySniffLen
	}
	return bytes.IndexByte(data[:n], 0) >= 0
}

func hasUTF16BOM(data []byte) bool {
	return bytes.HasPrefix(data, bomUTF16LE) || bytes.HasPrefix(data, bomUTF16BE)
}

func detectEncoding(data []byte) string {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return "utf-8-bom"
	case bytes.HasPrefix(data, bomUTF16LE):
		return "utf-16le"
	case bytes.HasPrefix(data, bomUTF16BE):
		return "utf-16be"
	case isASCII(data):
		return "ascii"
	case utf8.Valid(data):
		return "utf-8"
	}
	return "unknown"
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// countLines counts newline-terminated lines plus a final unterminated one.
func countLines(data []byte) int {
	if hasUTF16BOM(data) {
		data = []byte(decodeUTF16(data))
	}
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}

func decodeUTF16(data []byte) string {
	bigEndian := bytes.HasPrefix(data, bomUTF16BE)
	data = data[2:]
	units := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		if bigEndian {
			units = append(units, uint16(data[i])<<8|uint16(data[i+1]))
		} else {
			units = append(units, uint16(data[i+1])<<8|uint16(data[i]))
		}
	}
	return string(utf16.Decode(units))
}

func encodingFor(data []byte) (encoding string, binary bool) {
	if isBinary(data) {
		return model.EncodingBinary, true
	}
	return detectEncoding(data), false
}
