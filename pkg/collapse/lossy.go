package collapse

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// Lossy returns b with every invalid UTF-8 sequence replaced by U+FFFD, and
// whether anything was replaced. Some profilers intermittently emit invalid
// bytes in symbol names; those frames are kept rather than failing the run.
func Lossy(b []byte) ([]byte, bool) {
	if utf8.Valid(b) {
		return b, false
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return []byte(strings.ToValidUTF8(string(b), "\uFFFD")), true
	}
	return out, true
}
