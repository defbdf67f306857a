package privacy

import "context"

// Guard detects unstructured PII such as names and addresses that fixed
// patterns cannot express. Implementations must be safe for concurrent Detect
// calls. Detect returns byte-offset spans over text; failures are reported as
// *GuardUnavailableError.
type Guard interface {
	Name() string
	Detect(ctx context.Context, text string) ([]Span, error)
	IsAvailable(ctx context.Context) bool
}

// RegexOnlyGuard is the null guard: always available, never finds anything.
type RegexOnlyGuard struct{}

func (RegexOnlyGuard) Name() string { return "regex" }

func (RegexOnlyGuard) Detect(context.Context, string) ([]Span, error) { return nil, nil }

func (RegexOnlyGuard) IsAvailable(context.Context) bool { return true }
