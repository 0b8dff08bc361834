package app_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgescan/api/internal/app"
	"github.com/forgescan/api/pkg/domain/evidence"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/logger"
)

func TestEvidenceService_RecordAndVerify(t *testing.T) {
	repo := newFakeEvidenceRepo()
	svc := app.NewEvidenceService(repo, logger.NewNop())
	tenantID := shared.NewID()

	rec, err := svc.Record(context.Background(), tenantID, evidence.TypeRemediation,
		"finding:f-1", map[string]any{"action": "rotate credentials", "ticket": "SEC-42"})
	require.NoError(t, err)
	require.NotEmpty(t, rec.PayloadHash())

	t.Run("untouched record verifies", func(t *testing.T) {
		res, err := svc.Verify(context.Background(), tenantID.String(), rec.ID().String())
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, res.StoredHash, res.ComputedHash)
	})

	t.Run("another tenant cannot see the record", func(t *testing.T) {
		_, err := svc.Verify(context.Background(), shared.NewID().String(), rec.ID().String())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestEvidenceService_Verify_DetectsTampering(t *testing.T) {
	repo := newFakeEvidenceRepo()
	svc := app.NewEvidenceService(repo, logger.NewNop())
	tenantID := shared.NewID()

	// A record whose stored payload no longer matches its hash, as if the
	// row was edited after the append.
	good, err := evidence.NewRecord(tenantID, evidence.TypeEnforcement,
		"decision:d-1", map[string]any{"decision": "BLOCK"})
	require.NoError(t, err)
	tampered := evidence.Reconstitute(
		good.ID(), tenantID, good.EvidenceType(), good.RelatedEntity(),
		map[string]any{"decision": "ALLOW"}, good.PayloadHash(), good.CreatedAt())
	require.NoError(t, repo.Append(context.Background(), tampered))

	res, err := svc.Verify(context.Background(), tenantID.String(), good.ID().String())
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, good.PayloadHash(), res.StoredHash)
	assert.NotEqual(t, res.StoredHash, res.ComputedHash)
}

func TestEvidenceService_Timeline(t *testing.T) {
	repo := newFakeEvidenceRepo()
	svc := app.NewEvidenceService(repo, logger.NewNop())
	tenantID := shared.NewID()

	for _, action := range []string{"detected", "acknowledged", "resolved"} {
		_, err := svc.Record(context.Background(), tenantID, evidence.TypeRemediation,
			"finding:f-9", map[string]any{"action": action})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	_, err := svc.Record(context.Background(), tenantID, evidence.TypeRemediation,
		"finding:other", map[string]any{"action": "detected"})
	require.NoError(t, err)

	timeline, err := svc.Timeline(context.Background(), tenantID.String(), "finding:f-9")
	require.NoError(t, err)
	require.Len(t, timeline, 3)
	assert.Equal(t, "detected", timeline[0].Payload()["action"])
	assert.Equal(t, "resolved", timeline[2].Payload()["action"])
}

func TestEvidenceService_ExportAuditTrail(t *testing.T) {
	repo := newFakeEvidenceRepo()
	svc := app.NewEvidenceService(repo, logger.NewNop())
	tenantID := shared.NewID()

	_, err := svc.Record(context.Background(), tenantID, evidence.TypeScan,
		"scan:s-1", map[string]any{"status": "completed"})
	require.NoError(t, err)
	_, err = svc.Record(context.Background(), tenantID, evidence.TypeEnforcement,
		"decision:d-1", map[string]any{"decision": "BLOCK"})
	require.NoError(t, err)

	t.Run("exports gzip JSON lines with verification flags", func(t *testing.T) {
		var buf bytes.Buffer
		count, err := svc.ExportAuditTrail(context.Background(), &buf, app.ExportInput{
			TenantID: tenantID.String(),
			From:     time.Now().Add(-time.Hour),
			To:       time.Now().Add(time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		gz, err := gzip.NewReader(&buf)
		require.NoError(t, err)
		defer gz.Close()

		var lines []map[string]any
		scanner := bufio.NewScanner(gz)
		for scanner.Scan() {
			var line map[string]any
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
			lines = append(lines, line)
		}
		require.NoError(t, scanner.Err())
		require.Len(t, lines, 2)

		assert.Equal(t, "SCAN", lines[0]["evidence_type"])
		assert.Equal(t, "ENFORCEMENT", lines[1]["evidence_type"])
		for _, line := range lines {
			assert.Equal(t, true, line["hash_valid"])
			assert.NotEmpty(t, line["payload_hash"])
		}
	})

	t.Run("empty range is rejected", func(t *testing.T) {
		var buf bytes.Buffer
		now := time.Now()
		_, err := svc.ExportAuditTrail(context.Background(), &buf, app.ExportInput{
			TenantID: tenantID.String(),
			From:     now,
			To:       now,
		})
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("range excludes records outside it", func(t *testing.T) {
		var buf bytes.Buffer
		count, err := svc.ExportAuditTrail(context.Background(), &buf, app.ExportInput{
			TenantID: tenantID.String(),
			From:     time.Now().Add(time.Hour),
			To:       time.Now().Add(2 * time.Hour),
		})
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}
