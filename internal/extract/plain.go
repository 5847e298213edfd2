package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain decodes UTF-8, dropping invalid sequences.
func extractPlain(content []byte) (string, error) {
	if !utf8.Valid(content) {
		content = []byte(strings.ToValidUTF8(string(content), ""))
	}
	return string(content), nil
}
