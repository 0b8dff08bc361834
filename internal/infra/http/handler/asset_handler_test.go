package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgescan/api/pkg/domain/asset"
	"github.com/forgescan/api/pkg/domain/shared"
)

func TestToAssetResponse(t *testing.T) {
	a, err := asset.New(shared.NewID(), "payments.transactions", asset.TypeRevenue, asset.SensitivityPCI)
	require.NoError(t, err)
	a.SetLocation("payments", "transactions")
	require.NoError(t, a.SetFinancials(5000, 250000))
	a.SetCompliance([]string{"PCI-DSS"}, "payments-team")

	resp := toAssetResponse(a)

	assert.Equal(t, a.ID().String(), resp.ID)
	assert.Equal(t, "REVENUE", resp.AssetType)
	assert.Equal(t, "PCI", resp.Sensitivity)
	assert.True(t, resp.IsRegulated, "regulation status is derived from the sensitivity level")
	assert.Equal(t, float64(5000), resp.DowntimeCostPerHour)
	assert.Equal(t, int64(250000), resp.MaxExposureRecords)
	assert.Equal(t, []string{"PCI-DSS"}, resp.ComplianceFrameworks)
}

func TestToAssetResponse_UnregulatedSensitivity(t *testing.T) {
	a, err := asset.New(shared.NewID(), "marketing.site", asset.TypeOperational, asset.SensitivityPublic)
	require.NoError(t, err)

	resp := toAssetResponse(a)
	assert.False(t, resp.IsRegulated)
}
