package enforcement_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgescan/api/pkg/domain/enforcement"
	"github.com/forgescan/api/pkg/domain/shared"
)

func TestEvaluate_Bands(t *testing.T) {
	tests := []struct {
		priority float64
		level    enforcement.Level
		outcome  enforcement.Outcome
	}{
		{150, enforcement.LevelHardFail, enforcement.OutcomeBlock},
		{100, enforcement.LevelHardFail, enforcement.OutcomeBlock},
		{99, enforcement.LevelSoftFail, enforcement.OutcomeAllowWithAck},
		{80, enforcement.LevelSoftFail, enforcement.OutcomeAllowWithAck},
		{79, enforcement.LevelWarn, enforcement.OutcomeWarn},
		{60, enforcement.LevelWarn, enforcement.OutcomeWarn},
		{59, enforcement.LevelInfo, enforcement.OutcomeAllow},
		{0, enforcement.LevelInfo, enforcement.OutcomeAllow},
	}
	for _, tt := range tests {
		level, outcome, reason := enforcement.Evaluate(tt.priority)
		assert.Equal(t, tt.level, level, "priority %.0f", tt.priority)
		assert.Equal(t, tt.outcome, outcome, "priority %.0f", tt.priority)
		assert.NotEmpty(t, reason)
	}
}

func TestEvaluate_ReasonCarriesPriority(t *testing.T) {
	_, _, reason := enforcement.Evaluate(112)
	assert.Contains(t, reason, "112")
}

func newDecision(t *testing.T, priority float64) *enforcement.Decision {
	t.Helper()
	level, outcome, reason := enforcement.Evaluate(priority)
	d, err := enforcement.NewDecision(shared.NewID(), "build-42", priority, level, outcome, reason)
	require.NoError(t, err)
	return d
}

func TestAcknowledge(t *testing.T) {
	d := newDecision(t, 85)
	by := shared.NewID()

	require.NoError(t, d.Acknowledge(by))
	assert.True(t, d.IsAcknowledged())
	require.NotNil(t, d.AckedBy())
	assert.Equal(t, by, *d.AckedBy())
	assert.NotNil(t, d.AckedAt())

	// A second acknowledgement is a conflict, not a silent overwrite.
	err := d.Acknowledge(shared.NewID())
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, by, *d.AckedBy())
}

func TestAcknowledge_OnlySoftFail(t *testing.T) {
	tests := []struct {
		name     string
		priority float64
	}{
		{"hard fail", 120},
		{"warn", 70},
		{"info", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDecision(t, tt.priority)
			err := d.Acknowledge(shared.NewID())
			assert.ErrorIs(t, err, shared.ErrValidation)
			assert.False(t, d.IsAcknowledged())
		})
	}
}

func TestAcknowledge_RequiresActor(t *testing.T) {
	d := newDecision(t, 85)
	err := d.Acknowledge(shared.ID{})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestNewDecision_Validation(t *testing.T) {
	level, outcome, reason := enforcement.Evaluate(50)
	_, err := enforcement.NewDecision(shared.ID{}, "build-42", 50, level, outcome, reason)
	assert.ErrorIs(t, err, shared.ErrValidation)
}
