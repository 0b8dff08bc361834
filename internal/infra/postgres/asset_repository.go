package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forgescan/api/pkg/domain/asset"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/pagination"
)

// AssetRepository implements asset.Repository using PostgreSQL.
type AssetRepository struct {
	db *DB
}

// NewAssetRepository creates a new AssetRepository.
func NewAssetRepository(db *DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// Create persists a new business asset.
func (r *AssetRepository) Create(ctx context.Context, a *asset.BusinessAsset) error {
	frameworks, err := toJSONB(a.ComplianceFrameworks())
	if err != nil {
		return fmt.Errorf("failed to marshal compliance frameworks: %w", err)
	}

	query := `
		INSERT INTO business_assets (
			id, tenant_id, name, schema_name, table_name, asset_type,
			data_sensitivity, downtime_cost_per_hour, max_exposure_records,
			criticality_score, compliance_frameworks, data_owner, description,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.db.ExecContext(ctx, query,
		a.ID().String(),
		a.TenantID().String(),
		a.Name(),
		nullString(a.SchemaName()),
		nullString(a.TableName()),
		a.AssetType().String(),
		a.Sensitivity().String(),
		a.DowntimeCostPerHour(),
		a.MaxExposureRecords(),
		a.CriticalityScore(),
		frameworks,
		nullString(a.DataOwner()),
		nullString(a.Description()),
		a.CreatedAt(),
		a.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("ASSET_EXISTS",
				fmt.Sprintf("business asset %q already exists", a.Name()),
				shared.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create business asset: %w", err)
	}
	return nil
}

// GetByID retrieves a business asset by its ID.
func (r *AssetRepository) GetByID(ctx context.Context, id shared.ID) (*asset.BusinessAsset, error) {
	query := r.selectQuery() + " WHERE id = $1"

	row := r.db.QueryRowContext(ctx, query, id.String())
	return r.scanAsset(row)
}

// GetByName retrieves a business asset by name within a tenant.
func (r *AssetRepository) GetByName(ctx context.Context, tenantID shared.ID, name string) (*asset.BusinessAsset, error) {
	query := r.selectQuery() + " WHERE tenant_id = $1 AND name = $2"

	row := r.db.QueryRowContext(ctx, query, tenantID.String(), name)
	return r.scanAsset(row)
}

// Update updates an existing business asset.
func (r *AssetRepository) Update(ctx context.Context, a *asset.BusinessAsset) error {
	frameworks, err := toJSONB(a.ComplianceFrameworks())
	if err != nil {
		return fmt.Errorf("failed to marshal compliance frameworks: %w", err)
	}

	query := `
		UPDATE business_assets SET
			name = $2, schema_name = $3, table_name = $4, asset_type = $5,
			data_sensitivity = $6, downtime_cost_per_hour = $7,
			max_exposure_records = $8, criticality_score = $9,
			compliance_frameworks = $10, data_owner = $11, description = $12,
			updated_at = $13
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		a.ID().String(),
		a.Name(),
		nullString(a.SchemaName()),
		nullString(a.TableName()),
		a.AssetType().String(),
		a.Sensitivity().String(),
		a.DowntimeCostPerHour(),
		a.MaxExposureRecords(),
		a.CriticalityScore(),
		frameworks,
		nullString(a.DataOwner()),
		nullString(a.Description()),
		a.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to update business asset: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return shared.NewDomainError("ASSET_NOT_FOUND",
			fmt.Sprintf("business asset %s not found", a.ID()), shared.ErrNotFound)
	}
	return nil
}

// Delete removes a business asset by its ID.
func (r *AssetRepository) Delete(ctx context.Context, id shared.ID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM business_assets WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete business asset: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return shared.NewDomainError("ASSET_NOT_FOUND",
			fmt.Sprintf("business asset %s not found", id), shared.ErrNotFound)
	}
	return nil
}

// List retrieves business assets with filtering and pagination.
func (r *AssetRepository) List(ctx context.Context, filter asset.Filter, page pagination.Pagination) (pagination.Result[*asset.BusinessAsset], error) {
	baseQuery := r.selectQuery()
	countQuery := `SELECT COUNT(*) FROM business_assets`

	whereClause, args := r.buildWhereClause(filter)
	if whereClause != "" {
		baseQuery += " WHERE " + whereClause
		countQuery += " WHERE " + whereClause
	}

	baseQuery += " ORDER BY name"
	baseQuery += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit(), page.Offset())

	var total int64
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*asset.BusinessAsset]{}, fmt.Errorf("failed to count business assets: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return pagination.Result[*asset.BusinessAsset]{}, fmt.Errorf("failed to query business assets: %w", err)
	}
	defer rows.Close()

	var assets []*asset.BusinessAsset
	for rows.Next() {
		a, err := r.doScan(rows.Scan)
		if err != nil {
			return pagination.Result[*asset.BusinessAsset]{}, fmt.Errorf("failed to scan business asset: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*asset.BusinessAsset]{}, fmt.Errorf("failed to iterate business assets: %w", err)
	}

	return pagination.NewResult(assets, total, page), nil
}

func (r *AssetRepository) selectQuery() string {
	return `
		SELECT id, tenant_id, name, schema_name, table_name, asset_type,
		       data_sensitivity, downtime_cost_per_hour, max_exposure_records,
		       criticality_score, compliance_frameworks, data_owner, description,
		       created_at, updated_at
		FROM business_assets
	`
}

func (r *AssetRepository) scanAsset(row *sql.Row) (*asset.BusinessAsset, error) {
	a, err := r.doScan(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewDomainError("ASSET_NOT_FOUND", "business asset not found", shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan business asset: %w", err)
	}
	return a, nil
}

func (r *AssetRepository) doScan(scan func(dest ...any) error) (*asset.BusinessAsset, error) {
	var (
		idStr               string
		tenantIDStr         string
		name                string
		schemaName          sql.NullString
		tableName           sql.NullString
		assetType           string
		sensitivity         string
		downtimeCostPerHour float64
		maxExposureRecords  int64
		criticalityScore    int
		frameworksRaw       []byte
		dataOwner           sql.NullString
		description         sql.NullString
		createdAt           time.Time
		updatedAt           time.Time
	)

	err := scan(
		&idStr, &tenantIDStr, &name, &schemaName, &tableName, &assetType,
		&sensitivity, &downtimeCostPerHour, &maxExposureRecords,
		&criticalityScore, &frameworksRaw, &dataOwner, &description,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, err := shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse id: %w", err)
	}
	tenantID, err := shared.IDFromString(tenantIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tenant id: %w", err)
	}

	var frameworks []string
	if err := fromJSONB(frameworksRaw, &frameworks); err != nil {
		frameworks = nil
	}

	return asset.Reconstitute(
		parsedID,
		tenantID,
		name,
		nullStringValue(schemaName),
		nullStringValue(tableName),
		asset.Type(assetType),
		asset.Sensitivity(sensitivity),
		downtimeCostPerHour,
		maxExposureRecords,
		criticalityScore,
		frameworks,
		nullStringValue(dataOwner),
		nullStringValue(description),
		createdAt,
		updatedAt,
	), nil
}

func (r *AssetRepository) buildWhereClause(filter asset.Filter) (string, []any) {
	var conditions []string
	var args []any
	argIndex := 1

	if filter.TenantID != nil && *filter.TenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIndex))
		args = append(args, *filter.TenantID)
		argIndex++
	}

	if len(filter.AssetTypes) > 0 {
		placeholders := make([]string, len(filter.AssetTypes))
		for i, t := range filter.AssetTypes {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, t.String())
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("asset_type IN (%s)", strings.Join(placeholders, ", ")))
	}

	if len(filter.Sensitivities) > 0 {
		placeholders := make([]string, len(filter.Sensitivities))
		for i, s := range filter.Sensitivities {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, s.String())
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("data_sensitivity IN (%s)", strings.Join(placeholders, ", ")))
	}

	if filter.Search != nil && *filter.Search != "" {
		searchPattern := wrapLikePattern(*filter.Search)
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", argIndex, argIndex+1))
		args = append(args, searchPattern, searchPattern)
		argIndex += 2
	}

	return strings.Join(conditions, " AND "), args
}
