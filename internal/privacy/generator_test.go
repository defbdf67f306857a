package privacy

import (
	"math/rand/v2"
	"net"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T, locale string) *Generator {
	t.Helper()
	g, err := NewGenerator(locale)
	require.NoError(t, err)
	return g
}

func testRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func TestGenerateShapes(t *testing.T) {
	g := newTestGenerator(t, "en_US")

	tests := []struct {
		name     string
		typ      PIIType
		original string
		shape    string
	}{
		{"ssn", TypeSSN, "123-45-6789", `^[1-9]\d{2}-\d{2}-\d{4}$`},
		{"spaced ssn", TypeSSN, "123 45 6789", `^\d{3} \d{2} \d{4}$`},
		{"grouped card", TypeCreditCard, "4111 1111 1111 1111", `^[1-9]\d{3} \d{4} \d{4} \d{4}$`},
		{"contiguous card", TypeCreditCard, "4111111111111111", `^[1-9]\d{15}$`},
		{"nanp phone", TypePhone, "(555) 123-4567", `^\([1-9]\d{2}\) \d{3}-\d{4}$`},
		{"country code kept", TypePhone, "+1 555 123 4567", `^\+1 \d{3} \d{3} \d{4}$`},
		{"trunk zero kept", TypePhone, "054-123-4567", `^0\d{2}-\d{3}-\d{4}$`},
		{"bank account", TypeBankAccount, "12345678", `^[1-9]\d{7}$`},
		{"ipv6 lower", TypeIPAddress, "2001:db8::1", `^[0-9a-f]{4}:[0-9a-f]{3}::[0-9a-f]$`},
		{"ipv6 upper", TypeIPAddress, "FE80::ABCD", `^[0-9A-F]{4}::[0-9A-F]{4}$`},
		{"passport", TypePassport, "X1234567", `^[A-Z]\d{7}$`},
		{"driver license", TypeDriverLicense, "d123-456-78", `^[a-z]\d{3}-\d{3}-\d{2}$`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := regexp.MustCompile(tt.shape)
			for seed := uint64(0); seed < 50; seed++ {
				got := g.Generate(testRNG(seed), tt.typ, tt.original)
				require.Regexp(t, re, got)
				require.NotEqual(t, tt.original, got)
			}
		})
	}
}

func TestGenerateIPv4(t *testing.T) {
	g := newTestGenerator(t, "en_US")
	for seed := uint64(0); seed < 100; seed++ {
		got := g.Generate(testRNG(seed), TypeIPAddress, "192.168.1.100")
		ip := net.ParseIP(got)
		require.NotNil(t, ip, got)
		for _, octet := range ip.To4() {
			require.GreaterOrEqual(t, octet, byte(1))
			require.LessOrEqual(t, octet, byte(254))
		}
	}
}

func TestGenerateEmail(t *testing.T) {
	g := newTestGenerator(t, "en_US")
	original := "John.Doe42@mail.example.com"
	for seed := uint64(0); seed < 50; seed++ {
		got := g.Generate(testRNG(seed), TypeEmail, original)
		require.Regexp(t, `^[A-Z][a-z]{3}\.[A-Z][a-z]{2}\d{2}@[a-z]{4}\.[a-z]{7}\.com$`, got)
		require.NotEqual(t, original, got)
	}
}

func TestGenerateDate(t *testing.T) {
	tests := []struct {
		locale   string
		original string
		layout   string
	}{
		{"en_US", "2021-03-15", "2006-01-02"},
		{"en_US", "03/15/2021", "01/02/2006"},
		{"en_US", "03/15/21", "01/02/06"},
		{"en_GB", "15/03/2021", "02/01/2006"},
		{"de_DE", "15.03.2021", "02.01.2006"},
		{"en_US", "March 3, 2021", "January 2, 2006"},
		{"en_US", "3 Mar 2021", "2 Jan 2006"},
		{"en_US", "MARCH 3, 2021", "January 2, 2006"},
	}

	for _, tt := range tests {
		t.Run(tt.locale+" "+tt.original, func(t *testing.T) {
			g := newTestGenerator(t, tt.locale)
			for seed := uint64(0); seed < 100; seed++ {
				got := g.Generate(testRNG(seed), TypeDate, tt.original)
				require.NotEqual(t, tt.original, got)
				_, err := time.Parse(tt.layout, got)
				require.NoError(t, err, "generated %q", got)
			}
		})
	}

	t.Run("ordinal suffix follows the day", func(t *testing.T) {
		g := newTestGenerator(t, "en_US")
		for seed := uint64(0); seed < 100; seed++ {
			got := g.Generate(testRNG(seed), TypeDate, "March 3rd, 2021")
			m := regexp.MustCompile(`^[A-Z][a-z]+ (\d{1,2})(st|nd|rd|th), \d{4}$`).FindStringSubmatch(got)
			require.NotNil(t, m, got)
			day := 0
			for _, c := range m[1] {
				day = day*10 + int(c-'0')
			}
			assert.Equal(t, ordinalSuffix(day), m[2])
		}
	})
}

func TestGenerateNameAndAddress(t *testing.T) {
	for _, locale := range SupportedLocales() {
		t.Run(locale, func(t *testing.T) {
			g := newTestGenerator(t, locale)
			loc, err := LoadLocale(locale)
			require.NoError(t, err)

			for seed := uint64(0); seed < 30; seed++ {
				name := g.Generate(testRNG(seed), TypeName, "John Smith")
				parts := strings.Fields(name)
				require.Len(t, parts, 2, name)
				assert.Contains(t, loc.FirstNames, parts[0])
				assert.Contains(t, loc.LastNames, parts[1])

				three := g.Generate(testRNG(seed), TypeName, "Mary Ann Jones")
				assert.Len(t, strings.Fields(three), 3, three)

				addr := g.Generate(testRNG(seed), TypeAddress, "742 Evergreen Terrace")
				assert.Regexp(t, `(^|\s)[1-9]\d{2}($|\s)`, addr)
			}
		})
	}

	t.Run("casing is mirrored", func(t *testing.T) {
		g := newTestGenerator(t, "en_US")
		upper := g.Generate(testRNG(1), TypeName, "JOHN SMITH")
		assert.Equal(t, strings.ToUpper(upper), upper)
		lower := g.Generate(testRNG(1), TypeName, "john smith")
		assert.Equal(t, strings.ToLower(lower), lower)
	})

	t.Run("address keeps city segment", func(t *testing.T) {
		g := newTestGenerator(t, "en_US")
		addr := g.Generate(testRNG(3), TypeAddress, "12 Main St, Springfield")
		assert.Regexp(t, `^[1-9]\d [^,]+, [A-Z][a-z]+$`, addr)
	})
}

func TestGenerateUnknownType(t *testing.T) {
	g := newTestGenerator(t, "en_US")
	a := g.Generate(testRNG(1), "employee_id", "EMP-123456")
	b := g.Generate(testRNG(2), "employee_id", "EMP-123456")
	assert.Regexp(t, `^\[REDACTED-\d{1,5}\]$`, a)
	assert.Equal(t, a, b, "placeholder depends only on the value")
	assert.NotEqual(t, a, g.Generate(testRNG(1), "employee_id", "EMP-654321"))

	g.Register("employee_id", func(rng *rand.Rand, original string) string {
		return "EMP-" + ShapeGenerator(rng, original[4:])
	})
	assert.Regexp(t, `^EMP-\d{6}$`, g.Generate(testRNG(1), "employee_id", "EMP-123456"))
}

func TestGenerateKeepsSurroundingWhitespace(t *testing.T) {
	g := newTestGenerator(t, "en_US")
	got := g.Generate(testRNG(1), TypeSSN, " 123-45-6789\n")
	assert.True(t, strings.HasPrefix(got, " "))
	assert.True(t, strings.HasSuffix(got, "\n"))
}

func TestLocales(t *testing.T) {
	assert.Equal(t, []string{"de_DE", "en_GB", "en_US", "fr_FR", "he_IL"}, SupportedLocales())

	_, err := NewGenerator("xx_XX")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}
