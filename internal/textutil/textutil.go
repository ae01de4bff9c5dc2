// Package textutil normalizes text files before line-oriented comparison.
package textutil

import "bytes"

// NormalizeLF converts CRLF and lone CR line endings to LF and appends a
// final LF when the text does not end with one.
func NormalizeLF(b []byte) []byte {
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	b = bytes.ReplaceAll(b, []byte("\r"), []byte("\n"))
	if len(b) == 0 || b[len(b)-1] == '\n' {
		return b
	}
	return append(b, '\n')
}
