// Package asset contains the business context attached to scanned systems.
// Scoring consults this context to weight technically equal findings by what
// they can actually cost the business.
package asset

import (
	"fmt"
	"strings"
	"time"

	"github.com/forgescan/api/pkg/domain/shared"
)

// Type classifies what the asset is for.
type Type string

// Asset types.
const (
	TypeRevenue     Type = "REVENUE"
	TypeCompliance  Type = "COMPLIANCE"
	TypeOperational Type = "OPERATIONAL"
	TypeAnalytics   Type = "ANALYTICS"
	TypeArchive     Type = "ARCHIVE"
)

// IsValid reports whether the type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeRevenue, TypeCompliance, TypeOperational, TypeAnalytics, TypeArchive:
		return true
	}
	return false
}

func (t Type) String() string { return string(t) }

// Sensitivity classifies the most sensitive data the asset holds.
type Sensitivity string

// Data sensitivity levels.
const (
	SensitivityPublic   Sensitivity = "PUBLIC"
	SensitivityInternal Sensitivity = "INTERNAL"
	SensitivityPII      Sensitivity = "PII"
	SensitivityPCI      Sensitivity = "PCI"
	SensitivityPHI      Sensitivity = "PHI"
)

// IsValid reports whether the sensitivity is known.
func (s Sensitivity) IsValid() bool {
	switch s {
	case SensitivityPublic, SensitivityInternal, SensitivityPII, SensitivityPCI, SensitivityPHI:
		return true
	}
	return false
}

func (s Sensitivity) String() string { return string(s) }

// IsRegulated reports whether the sensitivity triggers compliance bonuses
// during rank scoring.
func (s Sensitivity) IsRegulated() bool {
	return s == SensitivityPII || s == SensitivityPCI || s == SensitivityPHI
}

// BusinessAsset ties a scanned system (or a schema.table inside one) to its
// business value and regulatory exposure.
type BusinessAsset struct {
	id                   shared.ID
	tenantID             shared.ID
	name                 string
	schemaName           string
	tableName            string
	assetType            Type
	sensitivity          Sensitivity
	downtimeCostPerHour  float64
	maxExposureRecords   int64
	criticalityScore     int
	complianceFrameworks []string
	dataOwner            string
	description          string
	createdAt            time.Time
	updatedAt            time.Time
}

// New creates a BusinessAsset.
func New(
	tenantID shared.ID,
	name string,
	assetType Type,
	sensitivity Sensitivity,
) (*BusinessAsset, error) {
	if tenantID.IsZero() {
		return nil, fmt.Errorf("%w: tenant ID is required", shared.ErrValidation)
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if !assetType.IsValid() {
		return nil, fmt.Errorf("%w: invalid asset type %q", shared.ErrValidation, assetType)
	}
	if !sensitivity.IsValid() {
		return nil, fmt.Errorf("%w: invalid data sensitivity %q", shared.ErrValidation, sensitivity)
	}

	now := time.Now().UTC()
	return &BusinessAsset{
		id:          shared.NewID(),
		tenantID:    tenantID,
		name:        name,
		assetType:   assetType,
		sensitivity: sensitivity,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// Reconstitute recreates a BusinessAsset from persistence.
func Reconstitute(
	id shared.ID,
	tenantID shared.ID,
	name string,
	schemaName string,
	tableName string,
	assetType Type,
	sensitivity Sensitivity,
	downtimeCostPerHour float64,
	maxExposureRecords int64,
	criticalityScore int,
	complianceFrameworks []string,
	dataOwner string,
	description string,
	createdAt, updatedAt time.Time,
) *BusinessAsset {
	return &BusinessAsset{
		id:                   id,
		tenantID:             tenantID,
		name:                 name,
		schemaName:           schemaName,
		tableName:            tableName,
		assetType:            assetType,
		sensitivity:          sensitivity,
		downtimeCostPerHour:  downtimeCostPerHour,
		maxExposureRecords:   maxExposureRecords,
		criticalityScore:     criticalityScore,
		complianceFrameworks: complianceFrameworks,
		dataOwner:            dataOwner,
		description:          description,
		createdAt:            createdAt,
		updatedAt:            updatedAt,
	}
}

// ID returns the asset ID.
func (a *BusinessAsset) ID() shared.ID { return a.id }

// TenantID returns the owning tenant ID.
func (a *BusinessAsset) TenantID() shared.ID { return a.tenantID }

// Name returns the asset name.
func (a *BusinessAsset) Name() string { return a.name }

// SchemaName returns the database schema, empty when not applicable.
func (a *BusinessAsset) SchemaName() string { return a.schemaName }

// TableName returns the database table, empty when not applicable.
func (a *BusinessAsset) TableName() string { return a.tableName }

// AssetType returns the business classification.
func (a *BusinessAsset) AssetType() Type { return a.assetType }

// Sensitivity returns the data sensitivity level.
func (a *BusinessAsset) Sensitivity() Sensitivity { return a.sensitivity }

// DowntimeCostPerHour returns the estimated hourly outage cost.
func (a *BusinessAsset) DowntimeCostPerHour() float64 { return a.downtimeCostPerHour }

// MaxExposureRecords returns the worst-case record count a breach exposes.
func (a *BusinessAsset) MaxExposureRecords() int64 { return a.maxExposureRecords }

// CriticalityScore returns the operator-assigned criticality (1-10).
func (a *BusinessAsset) CriticalityScore() int { return a.criticalityScore }

// ComplianceFrameworks returns the frameworks that govern the asset.
func (a *BusinessAsset) ComplianceFrameworks() []string { return a.complianceFrameworks }

// DataOwner returns the accountable owner.
func (a *BusinessAsset) DataOwner() string { return a.dataOwner }

// Description returns the description.
func (a *BusinessAsset) Description() string { return a.description }

// CreatedAt returns the creation timestamp.
func (a *BusinessAsset) CreatedAt() time.Time { return a.createdAt }

// UpdatedAt returns the last update timestamp.
func (a *BusinessAsset) UpdatedAt() time.Time { return a.updatedAt }

// SetLocation records the schema and table the asset maps to.
func (a *BusinessAsset) SetLocation(schemaName, tableName string) {
	a.schemaName = schemaName
	a.tableName = tableName
	a.updatedAt = time.Now().UTC()
}

// SetFinancials records outage cost and breach exposure estimates.
func (a *BusinessAsset) SetFinancials(downtimeCostPerHour float64, maxExposureRecords int64) error {
	if downtimeCostPerHour < 0 {
		return fmt.Errorf("%w: downtime cost cannot be negative", shared.ErrValidation)
	}
	if maxExposureRecords < 0 {
		return fmt.Errorf("%w: exposure records cannot be negative", shared.ErrValidation)
	}
	a.downtimeCostPerHour = downtimeCostPerHour
	a.maxExposureRecords = maxExposureRecords
	a.updatedAt = time.Now().UTC()
	return nil
}

// SetCriticality records the operator-assigned criticality score.
func (a *BusinessAsset) SetCriticality(score int) error {
	if score < 1 || score > 10 {
		return fmt.Errorf("%w: criticality score must be between 1 and 10", shared.ErrValidation)
	}
	a.criticalityScore = score
	a.updatedAt = time.Now().UTC()
	return nil
}

// SetCompliance records governing frameworks and the data owner.
func (a *BusinessAsset) SetCompliance(frameworks []string, dataOwner string) {
	a.complianceFrameworks = frameworks
	a.dataOwner = dataOwner
	a.updatedAt = time.Now().UTC()
}

// SetDescription sets the description.
func (a *BusinessAsset) SetDescription(description string) {
	a.description = description
	a.updatedAt = time.Now().UTC()
}

// Reclassify updates the asset type and sensitivity.
func (a *BusinessAsset) Reclassify(assetType Type, sensitivity Sensitivity) error {
	if !assetType.IsValid() {
		return fmt.Errorf("%w: invalid asset type %q", shared.ErrValidation, assetType)
	}
	if !sensitivity.IsValid() {
		return fmt.Errorf("%w: invalid data sensitivity %q", shared.ErrValidation, sensitivity)
	}
	a.assetType = assetType
	a.sensitivity = sensitivity
	a.updatedAt = time.Now().UTC()
	return nil
}

// QualifiedName returns "schema.table" when both are set, otherwise the name.
func (a *BusinessAsset) QualifiedName() string {
	if a.schemaName != "" && a.tableName != "" {
		return a.schemaName + "." + a.tableName
	}
	return a.name
}
