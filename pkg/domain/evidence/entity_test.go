package evidence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgescan/api/pkg/domain/evidence"
	"github.com/forgescan/api/pkg/domain/shared"
)

func TestNewRecord_HashesPayload(t *testing.T) {
	rec, err := evidence.NewRecord(shared.NewID(), evidence.TypeScan, "scan:abc", map[string]any{
		"total":    3,
		"critical": 1,
	})
	require.NoError(t, err)
	assert.Len(t, rec.PayloadHash(), 64)

	ok, err := rec.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRecord_Validation(t *testing.T) {
	tenantID := shared.NewID()

	_, err := evidence.NewRecord(shared.ID{}, evidence.TypeScan, "scan:abc", nil)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = evidence.NewRecord(tenantID, evidence.Type("NOTE"), "scan:abc", nil)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = evidence.NewRecord(tenantID, evidence.TypeScan, "", nil)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestVerify_DetectsTamperedPayload(t *testing.T) {
	rec, err := evidence.NewRecord(shared.NewID(), evidence.TypeEnforcement, "pipeline:build-42", map[string]any{
		"outcome": "BLOCK",
	})
	require.NoError(t, err)

	// Simulate a storage-level edit: same identifiers, altered payload,
	// original hash.
	tampered := evidence.Reconstitute(
		rec.ID(), rec.TenantID(), rec.EvidenceType(), rec.RelatedEntity(),
		map[string]any{"outcome": "ALLOW"},
		rec.PayloadHash(), rec.CreatedAt(),
	)
	ok, err := tampered.Verify()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyAgainst(t *testing.T) {
	payload := map[string]any{"verdict": "ALLOW_WITH_ACK", "max_priority": 85}
	rec, err := evidence.NewRecord(shared.NewID(), evidence.TypeCIDecision, "pipeline:build-42", payload)
	require.NoError(t, err)

	// An auditor verifies the copy they archived from the ledger, which
	// carries the stamped schema version. Key order does not matter.
	ok, err := rec.VerifyAgainst(map[string]any{
		"max_priority":            85,
		evidence.SchemaVersionKey: evidence.SchemaVersion,
		"verdict":                 "ALLOW_WITH_ACK",
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rec.VerifyAgainst(map[string]any{
		"max_priority":            85,
		evidence.SchemaVersionKey: evidence.SchemaVersion,
		"verdict":                 "ALLOW",
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRecord_StampsSchemaVersion(t *testing.T) {
	supplied := map[string]any{"total": 3}
	rec, err := evidence.NewRecord(shared.NewID(), evidence.TypeScan, "scan:abc", supplied)
	require.NoError(t, err)

	assert.Equal(t, evidence.SchemaVersion, rec.Payload()[evidence.SchemaVersionKey])
	assert.NotContains(t, supplied, evidence.SchemaVersionKey, "caller's map stays untouched")

	// The stamp is covered by the hash: stripping it is tampering.
	stripped := rec.Payload()
	delete(stripped, evidence.SchemaVersionKey)
	ok, err := rec.VerifyAgainst(stripped)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPayload_ReturnsCopy(t *testing.T) {
	rec, err := evidence.NewRecord(shared.NewID(), evidence.TypeRemediation, "finding:f-1", map[string]any{
		"action": "patch",
	})
	require.NoError(t, err)

	got := rec.Payload()
	got["action"] = "ignore"

	ok, err := rec.Verify()
	require.NoError(t, err)
	assert.True(t, ok, "mutating the returned map must not reach the record")
	assert.Equal(t, "patch", rec.Payload()["action"])
}

func TestReconstitute_KeepsStoredHash(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := evidence.Reconstitute(
		shared.NewID(), shared.NewID(), evidence.TypeScan, "scan:abc",
		nil, "deadbeef", created,
	)
	assert.Equal(t, "deadbeef", rec.PayloadHash())
	assert.Equal(t, created, rec.CreatedAt())
	assert.NotNil(t, rec.Payload())
}
