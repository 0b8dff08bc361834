package rule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgescan/api/pkg/domain/rule"
)

func TestNewMatcher_RejectsDuplicateIDs(t *testing.T) {
	_, err := rule.NewMatcher([]*rule.MatcherRule{
		{ID: "sqli", Matcher: "sql injection"},
		{ID: "sqli", Matcher: "sqli"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate rule id sqli")
}

func TestNewMatcher_RejectsEmptyMatcher(t *testing.T) {
	_, err := rule.NewMatcher([]*rule.MatcherRule{
		{ID: "blank", Matcher: "   "},
	})
	assert.Error(t, err)
}

func TestNewMatcher_RejectsInvalidPattern(t *testing.T) {
	_, err := rule.NewMatcher([]*rule.MatcherRule{
		{ID: "broken", Matcher: "[unterminated"},
	})
	assert.Error(t, err)
}

func TestMatch_FirstRuleWins(t *testing.T) {
	narrow := &rule.MatcherRule{ID: "blind-sqli", Matcher: "blind sql injection"}
	broad := &rule.MatcherRule{ID: "sqli", Matcher: "sql injection"}

	m, err := rule.NewMatcher([]*rule.MatcherRule{narrow, broad})
	require.NoError(t, err)

	got := m.Match("Blind SQL injection in login form", "")
	require.NotNil(t, got)
	assert.Equal(t, "blind-sqli", got.ID)

	// The broad pattern also matches, so reversing the order changes the
	// outcome. Declared order is part of the bundle contract.
	reversed, err := rule.NewMatcher([]*rule.MatcherRule{broad, narrow})
	require.NoError(t, err)
	got = reversed.Match("Blind SQL injection in login form", "")
	require.NotNil(t, got)
	assert.Equal(t, "sqli", got.ID)
}

func TestMatch_CaseInsensitiveAndAlternatives(t *testing.T) {
	m, err := rule.NewMatcher([]*rule.MatcherRule{
		{ID: "xss", Matcher: "cross-site scripting | xss"},
	})
	require.NoError(t, err)

	assert.NotNil(t, m.Match("Reflected XSS on search page", ""))
	assert.NotNil(t, m.Match("", "Stored Cross-Site Scripting via comment body"))
}

func TestMatch_DescriptionFallback(t *testing.T) {
	m, err := rule.NewMatcher([]*rule.MatcherRule{
		{ID: "hardcoded-secret", Matcher: "hardcoded password|hardcoded secret"},
	})
	require.NoError(t, err)

	got := m.Match("Sensitive value in source", "A hardcoded password was found in config.py")
	require.NotNil(t, got)
	assert.Equal(t, "hardcoded-secret", got.ID)
}

func TestMatch_NoMatchReturnsNil(t *testing.T) {
	m, err := rule.NewMatcher([]*rule.MatcherRule{
		{ID: "sqli", Matcher: "sql injection"},
	})
	require.NoError(t, err)

	assert.Nil(t, m.Match("Outdated dependency", "lodash 4.17.20 has a prototype pollution advisory"))
	assert.Equal(t, 1, m.Len())
}
