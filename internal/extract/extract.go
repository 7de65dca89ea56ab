package extract

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	// ErrBadPattern is returned when a rule's expression does not compile.
	ErrBadPattern = errors.New("invalid pattern expression")

	// ErrRuleGroups is returned when a rule's expression has a capture group
	// count other than one or two.
	ErrRuleGroups = errors.New("pattern must have exactly one or two capture groups")
)

// RuleKind identifies how a rule's capture groups map to a value.
type RuleKind int

const (
	// SingleValue rules have one capture group; the trimmed capture is the value.
	SingleValue RuleKind = iota

	// SplitDecimal rules have two capture groups holding the integer and
	// fractional parts of a decimal value captured separately (e.g. a total
	// like "1,234" and "56"). The parts are reassembled as "1234.56".
	SplitDecimal
)

// Rule is a compiled, validated pattern rule. Rules match case-insensitively
// anywhere within the text.
type Rule struct {
	kind RuleKind
	expr string
	re   *regexp.Regexp
}

// NewRule compiles an expression into a Rule. The expression must contain
// exactly one or two capture groups; anything else is a configuration error
// and is rejected here rather than at extraction time.
func NewRule(expr string) (Rule, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %v", ErrBadPattern, err)
	}
	switch re.NumSubexp() {
	case 1:
		return Rule{kind: SingleValue, expr: expr, re: re}, nil
	case 2:
		return Rule{kind: SplitDecimal, expr: expr, re: re}, nil
	default:
		return Rule{}, fmt.Errorf("%w: %q has %d", ErrRuleGroups, expr, re.NumSubexp())
	}
}

// Kind returns the rule's declared kind.
func (r Rule) Kind() RuleKind { return r.kind }

// Expr returns the expression the rule was compiled from.
func (r Rule) Expr() string { return r.expr }

// apply runs the rule against text and returns the extracted value.
func (r Rule) apply(text string) (string, bool) {
	m := r.re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	if r.kind == SplitDecimal {
		whole := strings.TrimSpace(strings.ReplaceAll(m[1], ",", ""))
		return whole + "." + strings.TrimSpace(m[2]), true
	}
	return strings.TrimSpace(m[1]), true
}

// Schema maps field names to ordered rule lists. Order encodes priority:
// earlier rules are tried first and the first match wins.
//
// Reads take an immutable snapshot of the field map, so ExtractFields may run
// concurrently with AddField. Mutation replaces the whole map (copy-on-write)
// and is serialized behind a mutex; an in-flight extraction observes either
// the pre-mutation or post-mutation rule list for a field, never a mix.
type Schema struct {
	mu     sync.Mutex
	fields atomic.Pointer[map[string][]Rule]
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	s := &Schema{}
	m := make(map[string][]Rule)
	s.fields.Store(&m)
	return s
}

// AddField inserts or replaces the rule list for a field. Every expression is
// validated; if any is rejected the schema is left unchanged.
func (s *Schema) AddField(name string, exprs ...string) error {
	rules := make([]Rule, 0, len(exprs))
	for _, expr := range exprs {
		r, err := NewRule(expr)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		rules = append(rules, r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur := *s.fields.Load()
	next := make(map[string][]Rule, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[name] = rules
	s.fields.Store(&next)
	return nil
}

// ExtractFields resolves every field in the schema against text. The result
// contains exactly the field names present in the schema; a field whose rules
// all fail to match (or whose rule list is empty) maps to nil.
func (s *Schema) ExtractFields(text string) map[string]*string {
	snap := *s.fields.Load()
	out := make(map[string]*string, len(snap))
	for name, rules := range snap {
		out[name] = nil
		for _, r := range rules {
			if v, ok := r.apply(text); ok {
				v := v
				out[name] = &v
				break
			}
		}
	}
	return out
}

// Fields returns the schema's field names in sorted order.
func (s *Schema) Fields() []string {
	snap := *s.fields.Load()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rules returns the rule list for a field.
func (s *Schema) Rules(name string) ([]Rule, bool) {
	snap := *s.fields.Load()
	rules, ok := snap[name]
	return rules, ok
}
