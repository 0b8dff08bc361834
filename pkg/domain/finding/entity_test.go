package finding_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgescan/api/pkg/domain/finding"
	"github.com/forgescan/api/pkg/domain/shared"
)

func newFinding(t *testing.T, scanner, ruleID, title string) *finding.Finding {
	t.Helper()
	f, err := finding.New(shared.NewID(), scanner, ruleID, title, shared.SeverityHigh)
	require.NoError(t, err)
	return f
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := newFinding(t, "bandit", "B608", "Possible SQL injection")
	a.SetLocation("app.py", 42)
	b := newFinding(t, "bandit", "B608", "Possible SQL injection")
	b.SetLocation("app.py", 42)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint(),
		"identical identity fields must hash identically across instances")
}

func TestFingerprint_KnownValue(t *testing.T) {
	f := newFinding(t, "bandit", "B608", "Possible SQL injection")
	f.SetLocation("app.py", 42)

	sum := sha256.Sum256([]byte("bandit:B608:app.py:42:Possible SQL injection"))
	assert.Equal(t, hex.EncodeToString(sum[:]), f.Fingerprint())
}

func TestFingerprint_MissingLocation(t *testing.T) {
	// An infrastructure-level finding has no file or line. The fingerprint
	// renders them as an empty segment and 0 and must stay stable.
	a := newFinding(t, "web_scanner", "missing_hsts", "Missing HSTS header")
	b := newFinding(t, "web_scanner", "missing_hsts", "Missing HSTS header")

	sum := sha256.Sum256([]byte("web_scanner:missing_hsts::0:Missing HSTS header"))
	assert.Equal(t, hex.EncodeToString(sum[:]), a.Fingerprint())
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprint_FieldSensitivity(t *testing.T) {
	base := newFinding(t, "bandit", "B608", "Possible SQL injection")
	base.SetLocation("app.py", 42)

	otherLine := newFinding(t, "bandit", "B608", "Possible SQL injection")
	otherLine.SetLocation("app.py", 43)
	assert.NotEqual(t, base.Fingerprint(), otherLine.Fingerprint())

	otherRule := newFinding(t, "bandit", "B609", "Possible SQL injection")
	otherRule.SetLocation("app.py", 42)
	assert.NotEqual(t, base.Fingerprint(), otherRule.Fingerprint())
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		tenantID shared.ID
		scanner  string
		ruleID   string
		title    string
		severity shared.Severity
	}{
		{"zero tenant", shared.ID{}, "bandit", "B608", "t", shared.SeverityHigh},
		{"blank scanner", shared.NewID(), " ", "B608", "t", shared.SeverityHigh},
		{"blank rule", shared.NewID(), "bandit", "", "t", shared.SeverityHigh},
		{"blank title", shared.NewID(), "bandit", "B608", "  ", shared.SeverityHigh},
		{"bad severity", shared.NewID(), "bandit", "B608", "t", shared.Severity("urgent")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := finding.New(tt.tenantID, tt.scanner, tt.ruleID, tt.title, tt.severity)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestTransitionStatus(t *testing.T) {
	f := newFinding(t, "bandit", "B608", "Possible SQL injection")
	require.True(t, f.IsOpen())
	require.Nil(t, f.ResolvedAt())

	require.NoError(t, f.TransitionStatus(finding.StatusFixed))
	assert.False(t, f.IsOpen())
	assert.NotNil(t, f.ResolvedAt())

	// Reopening clears the resolution timestamp.
	require.NoError(t, f.TransitionStatus(finding.StatusOpen))
	assert.True(t, f.IsOpen())
	assert.Nil(t, f.ResolvedAt())

	assert.ErrorIs(t, f.TransitionStatus(finding.Status("closed")), shared.ErrValidation)
}

func TestStatusValues(t *testing.T) {
	// open is the only live status; fixed, false_positive and risk_accepted
	// all close the finding. There is no finding-level acknowledgement, that
	// concept belongs to gate decisions.
	for _, s := range []finding.Status{
		finding.StatusOpen, finding.StatusFixed,
		finding.StatusFalsePositive, finding.StatusRiskAccepted,
	} {
		assert.True(t, s.IsValid(), "status %q", s)
	}
	assert.False(t, finding.Status("acknowledged").IsValid())
	assert.False(t, finding.Status("resolved").IsValid())
}

func TestIsOpen(t *testing.T) {
	f := newFinding(t, "bandit", "B608", "Possible SQL injection")
	require.True(t, f.IsOpen())

	for _, s := range []finding.Status{
		finding.StatusFixed, finding.StatusFalsePositive, finding.StatusRiskAccepted,
	} {
		require.NoError(t, f.TransitionStatus(s))
		assert.False(t, f.IsOpen(), "status %q closes the finding", s)
		assert.NotNil(t, f.ResolvedAt(), "status %q records a closure time", s)
	}
}

func TestMarkSeen(t *testing.T) {
	f := newFinding(t, "bandit", "B608", "Possible SQL injection")
	first := f.LastSeenAt()

	f.MarkSeen()
	f.MarkSeen()

	assert.Equal(t, 3, f.Occurrences())
	assert.False(t, f.LastSeenAt().Before(first))
}
