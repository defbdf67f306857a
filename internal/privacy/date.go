package privacy

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"
)

var monthNames = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

type tokenKind int

const (
	tokenDigits tokenKind = iota
	tokenLetters
	tokenOther
)

type dateToken struct {
	text string
	kind tokenKind
	role byte // 'Y', 'M', 'D', 'N' for month name, 'S' for ordinal suffix
}

func dateTokenKind(r rune) tokenKind {
	switch {
	case r >= '0' && r <= '9':
		return tokenDigits
	case unicode.IsLetter(r):
		return tokenLetters
	}
	return tokenOther
}

// tokenizeDate splits s into maximal runs of digits, letters and everything else.
func tokenizeDate(s string) []dateToken {
	var tokens []dateToken
	start, prev := 0, tokenOther
	for i, r := range s {
		kind := dateTokenKind(r)
		if i > 0 && kind != prev {
			tokens = append(tokens, dateToken{text: s[start:i], kind: prev})
			start = i
		}
		prev = kind
	}
	if start < len(s) {
		tokens = append(tokens, dateToken{text: s[start:], kind: prev})
	}
	return tokens
}

func monthIndex(word string) int {
	lower := strings.ToLower(word)
	for i, name := range monthNames {
		full := strings.ToLower(name)
		if lower == full || lower == full[:3] || (i == 8 && lower == "sept") {
			return i
		}
	}
	return -1
}

// assignDateRoles labels each token. It reports false when the value does not
// look like a date it can rebuild.
func (g *Generator) assignDateRoles(tokens []dateToken) bool {
	var numeric []int
	named := -1
	for i := range tokens {
		switch tokens[i].kind {
		case tokenDigits:
			numeric = append(numeric, i)
		case tokenLetters:
			if monthIndex(tokens[i].text) >= 0 && named < 0 {
				tokens[i].role = 'N'
				named = i
			} else if i > 0 && tokens[i-1].kind == tokenDigits && isOrdinalSuffix(tokens[i].text) {
				tokens[i].role = 'S'
			}
		}
	}

	if named >= 0 {
		if len(numeric) != 2 {
			return false
		}
		for _, i := range numeric {
			if len(tokens[i].text) == 4 {
				tokens[i].role = 'Y'
			} else {
				tokens[i].role = 'D'
			}
		}
		return tokens[numeric[0]].role != tokens[numeric[1]].role
	}

	if len(numeric) != 3 {
		return false
	}
	order := g.locale.DateOrder
	if len(tokens[numeric[0]].text) == 4 {
		order = "YMD"
	}
	for k, i := range numeric {
		tokens[i].role = order[k]
	}
	return true
}

func isOrdinalSuffix(s string) bool {
	switch strings.ToLower(s) {
	case "st", "nd", "rd", "th":
		return true
	}
	return false
}

func ordinalSuffix(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}

// date keeps token order and separators and redraws a calendar-valid day,
// month and year, mirroring padding, year width and month-name form.
func (g *Generator) date(rng *rand.Rand, original string) string {
	tokens := tokenizeDate(original)
	if !g.assignDateRoles(tokens) {
		return ShapeGenerator(rng, original)
	}

	year := 1940 + rng.IntN(70)
	month := 1 + rng.IntN(12)
	daysInMonth := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	day := 1 + rng.IntN(daysInMonth)

	var b strings.Builder
	for _, tok := range tokens {
		switch tok.role {
		case 'Y':
			if len(tok.text) == 2 {
				fmt.Fprintf(&b, "%02d", year%100)
			} else {
				fmt.Fprintf(&b, "%d", year)
			}
		case 'M':
			b.WriteString(padded(month, len(tok.text)))
		case 'D':
			b.WriteString(padded(day, len(tok.text)))
		case 'N':
			name := monthNames[month-1]
			if len([]rune(tok.text)) <= 4 && !strings.EqualFold(tok.text, "june") && !strings.EqualFold(tok.text, "july") {
				name = name[:3]
			}
			b.WriteString(mirrorCase(tok.text, name))
		case 'S':
			b.WriteString(mirrorCase(tok.text, ordinalSuffix(day)))
		default:
			b.WriteString(tok.text)
		}
	}
	return b.String()
}

func padded(n, width int) string {
	if width >= 2 {
		return fmt.Sprintf("%02d", n)
	}
	return fmt.Sprintf("%d", n)
}
