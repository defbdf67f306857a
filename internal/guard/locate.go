package guard

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/RoyNativ-AI/pii-guard/internal/privacy"
)

// finding is a sensitive value reported verbatim by a provider.
type finding struct {
	Type  privacy.PIIType
	Value string
}

// locate finds every occurrence of each finding in text, skipping matches that
// sit inside a longer word.
func locate(text string, findings []finding, source string, confidence float64) []privacy.Span {
	var spans []privacy.Span
	seen := make(map[finding]bool, len(findings))
	for _, f := range findings {
		f.Value = strings.TrimSpace(f.Value)
		if f.Value == "" || seen[f] {
			continue
		}
		seen[f] = true

		offset := 0
		for {
			idx := strings.Index(text[offset:], f.Value)
			if idx < 0 {
				break
			}
			start := offset + idx
			end := start + len(f.Value)
			offset = end
			if insideWord(text, start, end) {
				continue
			}
			spans = append(spans, privacy.Span{
				Start:      start,
				End:        end,
				Type:       f.Type,
				Source:     source,
				Confidence: confidence,
			})
		}
	}
	return spans
}

// insideWord reports whether [start,end) continues a letter or digit run on
// either side.
func insideWord(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		first, _ := utf8.DecodeRuneInString(text[start:])
		if isWordRune(r) && isWordRune(first) {
			return true
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		last, _ := utf8.DecodeLastRuneInString(text[:end])
		if isWordRune(r) && isWordRune(last) {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
