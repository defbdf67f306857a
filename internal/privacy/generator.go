package privacy

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// GeneratorFunc produces a replacement for original using rng as its only
// source of randomness.
type GeneratorFunc func(rng *rand.Rand, original string) string

// maxRedraws bounds how often a synthesized value is redrawn when it happens to
// equal the original.
const maxRedraws = 8

// Generator produces format-preserving fake values. The locale is fixed at
// construction; custom generators may be registered per type.
type Generator struct {
	locale *Locale

	mu     sync.RWMutex
	custom map[PIIType]GeneratorFunc
}

// NewGenerator returns a generator for locale or a ConfigurationError when the
// locale is not supported.
func NewGenerator(locale string) (*Generator, error) {
	loc, err := LoadLocale(locale)
	if err != nil {
		return nil, err
	}
	return &Generator{locale: loc, custom: make(map[PIIType]GeneratorFunc)}, nil
}

// Locale returns the locale name.
func (g *Generator) Locale() string { return g.locale.Name }

// Register installs fn for t, replacing any built-in behaviour for that type.
func (g *Generator) Register(t PIIType, fn GeneratorFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.custom[t] = fn
}

// Generate returns a replacement for original of type t. Surrounding whitespace
// is kept. Types without a synthesizer or registered generator get a stable
// "[REDACTED-<n>]" placeholder.
func (g *Generator) Generate(rng *rand.Rand, t PIIType, original string) string {
	lead, core, trail := splitSpace(original)

	g.mu.RLock()
	fn, ok := g.custom[t]
	g.mu.RUnlock()
	if ok {
		return lead + fn(rng, core) + trail
	}

	synth := g.synthesizer(t)
	if synth == nil || core == "" {
		return lead + redacted(core) + trail
	}
	for range maxRedraws {
		if out := synth(rng, core); out != core {
			return lead + out + trail
		}
	}
	return lead + redacted(core) + trail
}

func (g *Generator) synthesizer(t PIIType) GeneratorFunc {
	switch t {
	case TypeSSN, TypeCreditCard, TypeBankAccount:
		return digitShape
	case TypePhone:
		return phoneShape
	case TypeIPAddress:
		return ipShape
	case TypeEmail:
		return emailShape
	case TypeDate:
		return g.date
	case TypeName:
		return g.name
	case TypeAddress:
		return g.address
	case TypeDriverLicense, TypePassport:
		return ShapeGenerator
	}
	return nil
}

func redacted(original string) string {
	return fmt.Sprintf("[REDACTED-%d]", xxhash.Sum64String(original)%100000)
}

func splitSpace(s string) (lead, core, trail string) {
	core = strings.TrimLeftFunc(s, unicode.IsSpace)
	lead = s[:len(s)-len(core)]
	trimmed := strings.TrimRightFunc(core, unicode.IsSpace)
	trail = core[len(trimmed):]
	return lead, trimmed, trail
}

const (
	lowerLetters = "abcdefghijklmnopqrstuvwxyz"
	upperLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits       = "0123456789"
)

func pick(rng *rand.Rand, set string) byte { return set[rng.IntN(len(set))] }

func pickString(rng *rand.Rand, set []string) string { return set[rng.IntN(len(set))] }

// ShapeGenerator redraws every ASCII letter and digit within its character
// class and keeps everything else verbatim. Register it for custom tags whose
// values should keep their shape.
func ShapeGenerator(rng *rand.Rand, original string) string {
	b := []byte(original)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z':
			b[i] = pick(rng, lowerLetters)
		case c >= 'A' && c <= 'Z':
			b[i] = pick(rng, upperLetters)
		case c >= '0' && c <= '9':
			b[i] = pick(rng, digits)
		}
	}
	return string(b)
}

// digitShape redraws digits and keeps delimiters. A leading zero stays zero and
// a leading non-zero digit stays non-zero.
func digitShape(rng *rand.Rand, original string) string {
	b := []byte(original)
	first := true
	for i, c := range b {
		if c < '0' || c > '9' {
			continue
		}
		switch {
		case first && c == '0':
		case first:
			b[i] = byte('1' + rng.IntN(9))
		default:
			b[i] = pick(rng, digits)
		}
		first = false
	}
	return string(b)
}

// phoneShape keeps a delimited "+CC" country code and redraws the rest.
func phoneShape(rng *rand.Rand, original string) string {
	if strings.HasPrefix(original, "+") {
		end := 1
		for end < len(original) && original[end] >= '0' && original[end] <= '9' {
			end++
		}
		if end > 1 && end < len(original) {
			return original[:end] + digitShape(rng, original[end:])
		}
	}
	return digitShape(rng, original)
}

func ipShape(rng *rand.Rand, original string) string {
	if !strings.Contains(original, ":") {
		octets := strings.Split(original, ".")
		for i := range octets {
			octets[i] = strconv.Itoa(1 + rng.IntN(254))
		}
		return strings.Join(octets, ".")
	}

	b := []byte(original)
	upper := strings.ToUpper(original) == original && strings.ContainsAny(original, "ABCDEF")
	hex := "0123456789abcdef"
	if upper {
		hex = "0123456789ABCDEF"
	}
	for i, c := range b {
		if isHex(c) {
			b[i] = pick(rng, hex)
		}
	}
	return string(b)
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func emailShape(rng *rand.Rand, original string) string {
	at := strings.LastIndexByte(original, '@')
	if at < 0 {
		return ShapeGenerator(rng, original)
	}
	local := ShapeGenerator(rng, original[:at])

	labels := strings.Split(original[at+1:], ".")
	for i := 0; i < len(labels)-1; i++ {
		b := []byte(labels[i])
		for j, c := range b {
			if c != '-' {
				b[j] = pick(rng, lowerLetters)
			}
		}
		labels[i] = string(b)
	}
	return local + "@" + strings.Join(labels, ".")
}

func (g *Generator) name(rng *rand.Rand, original string) string {
	tokens := strings.Fields(original)
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		var gen string
		switch {
		case i == len(tokens)-1 && i > 0:
			gen = pickString(rng, g.locale.LastNames)
		default:
			gen = pickString(rng, g.locale.FirstNames)
		}
		if isInitial(tok) {
			r, _ := utf8.DecodeRuneInString(gen)
			gen = string(r) + "."
		}
		out[i] = mirrorCase(tok, gen)
	}
	return strings.Join(out, " ")
}

func isInitial(tok string) bool {
	return utf8.RuneCountInString(tok) == 2 && strings.HasSuffix(tok, ".")
}

func (g *Generator) address(rng *rand.Rand, original string) string {
	number := ""
	if start := strings.IndexAny(original, digits); start >= 0 {
		end := start
		for end < len(original) && original[end] >= '0' && original[end] <= '9' {
			end++
		}
		number = digitShape(rng, original[start:end])
	}

	out := g.locale.AddressFormat
	if number == "" {
		out = "{street}"
	}
	out = strings.ReplaceAll(out, "{number}", number)
	out = strings.ReplaceAll(out, "{street}", pickString(rng, g.locale.Streets))
	if strings.Contains(original, ",") {
		out += ", " + pickString(rng, g.locale.Cities)
	}
	return mirrorCase(original, out)
}

// mirrorCase applies the casing pattern of orig to gen: all upper, all lower, or
// gen unchanged.
func mirrorCase(orig, gen string) string {
	hasUpper, hasLower := false, false
	for _, r := range orig {
		if unicode.IsUpper(r) {
			hasUpper = true
		} else if unicode.IsLower(r) {
			hasLower = true
		}
	}
	switch {
	case hasUpper && !hasLower:
		return strings.ToUpper(gen)
	case hasLower && !hasUpper:
		return strings.ToLower(gen)
	}
	return gen
}
