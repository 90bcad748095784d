package service

import (
	"bytes"
	"hash/fnv"
	"html"
	"sort"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// sanitizeText strips markup and surrounding whitespace from user supplied text. The result is
// stored as plain text, so entities produced by the sanitizer are decoded again.
func sanitizeText(value string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(value)))
}

// normalizeTitle produces the duplicate detection key for an activity title.
func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// words splits text into lowercase word tokens.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// shingles hashes every window of size consecutive words with FNV-64a and returns the distinct
// hashes in ascending order.
func shingles(text string, size int) []uint64 {
	if size <= 0 {
		size = 5
	}
	tokens := words(text)
	if len(tokens) < size {
		return nil
	}
	seen := make(map[uint64]struct{}, len(tokens))
	for i := 0; i+size <= len(tokens); i++ {
		h := fnv.New64a()
		_, _ = h.Write([]byte(strings.Join(tokens[i:i+size], " ")))
		seen[h.Sum64()] = struct{}{}
	}
	out := make([]uint64, 0, len(seen))
	for sh := range seen {
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// extractText returns the machine readable text of an evidence file. Plain text is returned as
// is; for PDFs the literal strings of uncompressed content streams are collected. Other formats
// carry no text.
func extractText(mime string, data []byte) string {
	switch {
	case strings.HasPrefix(mime, "text/"):
		return string(data)
	case mime == "application/pdf":
		return pdfLiterals(data)
	default:
		return ""
	}
}

// pdfLiterals collects "(...)" string operands between BT and ET text operators.
func pdfLiterals(data []byte) string {
	var out strings.Builder
	for {
		start := bytes.Index(data, []byte("BT"))
		if start < 0 {
			break
		}
		end := bytes.Index(data[start:], []byte("ET"))
		if end < 0 {
			break
		}
		block := data[start : start+end]
		depth := 0
		var current []byte
		for i := 0; i < len(block); i++ {
			c := block[i]
			switch {
			case c == '\\' && depth > 0 && i+1 < len(block):
				i++
				current = append(current, block[i])
			case c == '(':
				if depth > 0 {
					current = append(current, c)
				}
				depth++
			case c == ')' && depth > 0:
				depth--
				if depth == 0 {
					out.Write(current)
					out.WriteByte(' ')
					current = current[:0]
				} else {
					current = append(current, c)
				}
			case depth > 0:
				current = append(current, c)
			}
		}
		data = data[start+end+2:]
	}
	return strings.TrimSpace(out.String())
}
