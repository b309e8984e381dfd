package types

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// NoTimeout marks an attempt that may run forever.
const NoTimeout time.Duration = math.MaxInt64

// NotAvailableCommand is the executable placeholder used when a test has no
// build for the selected configuration.
const NotAvailableCommand = "NOT_AVAILABLE"

// RegexRule pairs a compiled pattern with the text it was configured as.
type RegexRule struct {
	Pattern *regexp.Regexp
	Label   string
}

// NewRegexRule compiles pattern into a rule labelled with the raw pattern.
func NewRegexRule(pattern string) (RegexRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return RegexRule{}, fmt.Errorf("invalid regular expression %q: %w", pattern, err)
	}
	return RegexRule{Pattern: re, Label: pattern}, nil
}

// MustRegexRule is like NewRegexRule but panics on an invalid pattern.
func MustRegexRule(pattern string) RegexRule {
	rule, err := NewRegexRule(pattern)
	if err != nil {
		panic(err)
	}
	return rule
}

// NewRegexRules compiles every pattern, failing on the first invalid one.
func NewRegexRules(patterns []string) ([]RegexRule, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	rules := make([]RegexRule, 0, len(patterns))
	for _, p := range patterns {
		rule, err := NewRegexRule(p)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Matches reports whether the rule matches text.
func (r RegexRule) Matches(text string) bool {
	return r.Pattern != nil && r.Pattern.MatchString(text)
}

// TestConfig is the immutable description of one test as handed to the
// execution unit by the caller.
type TestConfig struct {
	Name        string
	Index       int
	Directory   string
	Command     []string // Command[0] is the logical executable
	Environment []string // KEY=VALUE overrides

	Timeout          time.Duration
	ExplicitTimeout  bool // a zero Timeout means "no timeout" instead of "unset"
	AlternateTimeout time.Duration

	RequiredRegex []RegexRule
	ErrorRegex    []RegexRule
	TimeoutRegex  []RegexRule

	SkipReturnCode int // negative disables
	WillFail       bool
	Disabled       bool
	RequiredFiles  []string

	RepeatCount  int
	RunUntilFail bool

	Cost         float64 // rolling average of completed run times, in seconds
	PreviousRuns int

	FailedDependencies []string

	Labels           []string
	Depends          []string
	FixturesSetup    []string
	FixturesRequired []string
}

// Executable returns the logical executable, or "" when no command is set.
func (t *TestConfig) Executable() string {
	if len(t.Command) == 0 {
		return ""
	}
	return t.Command[0]
}

// Args returns the arguments following the executable.
func (t *TestConfig) Args() []string {
	if len(t.Command) <= 1 {
		return nil
	}
	return t.Command[1:]
}

// Runs returns the number of attempts allowed, never less than one.
func (t *TestConfig) Runs() int {
	if t.RepeatCount < 1 {
		return 1
	}
	return t.RepeatCount
}

// WithFailedDependencies returns a shallow copy carrying the given failed deps.
func (t *TestConfig) WithFailedDependencies(deps []string) *TestConfig {
	cp := *t
	cp.FailedDependencies = append([]string(nil), deps...)
	return &cp
}

// String returns a short description used in logs.
func (t *TestConfig) String() string {
	return fmt.Sprintf("#%d %s [%s]", t.Index, t.Name, strings.Join(t.Command, " "))
}
