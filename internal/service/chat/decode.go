package chat

import (
	"golang.org/x/text/encoding/unicode"
)

// DecodeText converts uploaded bytes to a string. Invalid UTF-8 sequences are
// replaced with U+FFFD, so decoding never fails. No format-specific parsing is
// done: PDF and CSV bytes are read as raw text.
func DecodeText(raw []byte) string {
	decoded, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		// not expected: the UTF-8 decoder substitutes instead of failing
		return string([]rune(string(raw)))
	}
	return string(decoded)
}
