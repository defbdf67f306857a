package privacy

// Precedence bounds and defaults. Higher precedence wins an overlap under the
// precedence merge policy.
const (
	MaxPrecedence     = 1000
	DefaultPrecedence = 40
	GuardPrecedence   = 10
)

// RuleSpec describes one of the structured detectors loaded at construction.
// All built-in expressions are RE2 and therefore match in linear time.
type RuleSpec struct {
	Type       PIIType
	Expr       string
	Precedence int
}

// GetDefaultRules returns the built-in structured detectors in declaration order.
func GetDefaultRules() []RuleSpec {
	return []RuleSpec{
		{
			Type:       TypeCreditCard,
			Precedence: 100,
			Expr: `\b(?:\d{4}[ -]){3}\d{4}\b` +
				`|\b\d{4}[ -]\d{6}[ -]\d{5}\b` +
				`|\b\d{13,19}\b`,
		},
		{
			Type:       TypeSSN,
			Precedence: 90,
			Expr:       `\b\d{3}-\d{2}-\d{4}\b|\b\d{3} \d{2} \d{4}\b`,
		},
		{
			Type:       TypeEmail,
			Precedence: 80,
			Expr:       `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}\b`,
		},
		{
			Type:       TypePhone,
			Precedence: 70,
			Expr: `(?:\+1[ .\-]?)?(?:\(\d{3}\) ?|\b\d{3}[ .\-])\d{3}[ .\-]\d{4}\b` +
				`|\+[1-9]\d{0,2}(?:[ .\-]\(?\d{1,4}\)?){2,5}\b` +
				`|\+[1-9]\d{7,14}\b` +
				`|\b0\d{1,4}[ \-/]\d{3,4}[ \-]?\d{3,4}\b`,
		},
		{
			Type:       TypeIPAddress,
			Precedence: 60,
			Expr: `\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b` +
				`|\b(?:[0-9A-Fa-f]{1,4}:){7}[0-9A-Fa-f]{1,4}\b` +
				`|\b(?:[0-9A-Fa-f]{1,4}:){1,6}(?::[0-9A-Fa-f]{1,4}){1,6}\b`,
		},
		{
			Type:       TypeDate,
			Precedence: 50,
			Expr: `\b(?:19|20)\d{2}[-/.](?:0?[1-9]|1[0-2])[-/.](?:0?[1-9]|[12]\d|3[01])\b` +
				`|\b(?:0?[1-9]|[12]\d|3[01])[-/.](?:0?[1-9]|[12]\d|3[01])[-/.](?:\d{4}|\d{2})\b` +
				`|(?i:\b` + monthPattern + `\.? \d{1,2}(?:st|nd|rd|th)?,? \d{4}\b)` +
				`|(?i:\b\d{1,2}(?:st|nd|rd|th)? ` + monthPattern + `\.?,? \d{4}\b)`,
		},
	}
}

const monthPattern = `(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)`
