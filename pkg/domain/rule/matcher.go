package rule

import "fmt"

// Matcher evaluates an ordered list of matcher rules. Order is part of the
// contract: the first matching rule wins and reordering changes results.
type Matcher struct {
	rules []*MatcherRule
}

// NewMatcher compiles the rules and preserves their order.
func NewMatcher(rules []*MatcherRule) (*Matcher, error) {
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("duplicate rule id %s", r.ID)
		}
		seen[r.ID] = struct{}{}
		if err := r.Compile(); err != nil {
			return nil, err
		}
	}
	return &Matcher{rules: rules}, nil
}

// Match returns the first rule whose patterns hit the title or description,
// or nil when nothing matches. No match is a normal outcome, not an error.
func (m *Matcher) Match(title, description string) *MatcherRule {
	for _, r := range m.rules {
		if r.Matches(title, description) {
			return r
		}
	}
	return nil
}

// Rules returns the rules in evaluation order.
func (m *Matcher) Rules() []*MatcherRule {
	return m.rules
}

// Len returns the number of rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}
