package privacy

import (
	"sort"
	"time"
)

// PIIType tags the kind of sensitive value a span holds.
type PIIType string

// Built-in PII types. Custom tags registered through AddPattern extend this set.
const (
	TypeEmail         PIIType = "email"
	TypePhone         PIIType = "phone"
	TypeSSN           PIIType = "ssn"
	TypeCreditCard    PIIType = "credit_card"
	TypeIPAddress     PIIType = "ip_address"
	TypeDate          PIIType = "date"
	TypeName          PIIType = "name"
	TypeAddress       PIIType = "address"
	TypeDriverLicense PIIType = "driver_license"
	TypePassport      PIIType = "passport"
	TypeBankAccount   PIIType = "bank_account"
	TypeCustom        PIIType = "custom"
)

// Span is a half-open byte range [Start, End) over the exact input text.
// Candidate spans come from rules and guards; after Merge the survivors are
// ordered by Start and pairwise non-overlapping.
type Span struct {
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Type       PIIType `json:"type"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
	Precedence int     `json:"-"`
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether two spans share at least one byte.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Finding is one replaced value in a Report.
type Finding struct {
	Type        PIIType `json:"type"`
	Original    string  `json:"original,omitempty"`
	Replacement string  `json:"replacement"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Source      string  `json:"source"`
	Confidence  float64 `json:"confidence"`
}

// Report describes a single anonymization pass.
type Report struct {
	Findings     []Finding     `json:"findings"`
	Count        int           `json:"count"`
	Duration     time.Duration `json:"duration"`
	Guard        string        `json:"guard"`
	GuardSkipped bool          `json:"guard_skipped"`
	GuardError   string        `json:"guard_error,omitempty"`
	SkippedRules []string      `json:"skipped_rules,omitempty"`
}

// Summary counts findings per type. It never carries original values, so it is
// what logs, audit rows and dashboard events consume.
func (r *Report) Summary() map[PIIType]int {
	counts := make(map[PIIType]int)
	if r == nil {
		return counts
	}
	for _, f := range r.Findings {
		counts[f.Type]++
	}
	return counts
}

// Types returns the distinct types found, sorted.
func (r *Report) Types() []PIIType {
	summary := r.Summary()
	types := make([]PIIType, 0, len(summary))
	for t := range summary {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// BatchResult is the outcome for one item of ProcessBatch. Items are independent:
// a failed item carries Err and does not affect its neighbours.
type BatchResult struct {
	Index  int     `json:"index"`
	Output string  `json:"output"`
	Report *Report `json:"report,omitempty"`
	Err    error   `json:"-"`
}

// Aggregate merges per-item reports into totals per type.
func Aggregate(reports []*Report) (total int, byType map[PIIType]int, elapsed time.Duration) {
	byType = make(map[PIIType]int)
	for _, r := range reports {
		if r == nil {
			continue
		}
		total += r.Count
		elapsed += r.Duration
		for t, n := range r.Summary() {
			byType[t] += n
		}
	}
	return total, byType, elapsed
}
