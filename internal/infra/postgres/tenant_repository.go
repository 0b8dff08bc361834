package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/domain/tenant"
)

// TenantRepository implements tenant.Repository using PostgreSQL.
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new TenantRepository.
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create persists a new tenant.
func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	settings, err := toJSONB(t.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
		INSERT INTO tenants (id, name, plan, settings, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		t.ID.String(), t.Name, t.Plan.String(), settings, t.IsActive, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("TENANT_EXISTS",
				fmt.Sprintf("tenant %q already exists", t.Name), shared.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by its ID.
func (r *TenantRepository) GetByID(ctx context.Context, id shared.ID) (*tenant.Tenant, error) {
	query := r.selectQuery() + " WHERE id = $1"

	t, err := r.doScan(r.db.QueryRowContext(ctx, query, id.String()).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewDomainError("TENANT_NOT_FOUND",
				fmt.Sprintf("tenant %s not found", id), shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}
	return t, nil
}

// GetByIDForUpdate retrieves a tenant inside tx with its row locked.
func (r *TenantRepository) GetByIDForUpdate(ctx context.Context, tx *sql.Tx, id shared.ID) (*tenant.Tenant, error) {
	query := r.selectQuery() + " WHERE id = $1 FOR UPDATE"

	t, err := r.doScan(tx.QueryRowContext(ctx, query, id.String()).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewDomainError("TENANT_NOT_FOUND",
				fmt.Sprintf("tenant %s not found", id), shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan tenant for update: %w", err)
	}
	return t, nil
}

// Update updates an existing tenant.
func (r *TenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	settings, err := toJSONB(t.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
		UPDATE tenants SET name = $2, plan = $3, settings = $4, is_active = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		t.ID.String(), t.Name, t.Plan.String(), settings, t.IsActive, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return shared.NewDomainError("TENANT_NOT_FOUND",
			fmt.Sprintf("tenant %s not found", t.ID), shared.ErrNotFound)
	}
	return nil
}

// List retrieves all active tenants.
func (r *TenantRepository) List(ctx context.Context) ([]*tenant.Tenant, error) {
	query := r.selectQuery() + " WHERE is_active ORDER BY name"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		t, err := r.doScan(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenants: %w", err)
	}
	return tenants, nil
}

func (r *TenantRepository) selectQuery() string {
	return `SELECT id, name, plan, settings, is_active, created_at, updated_at FROM tenants`
}

func (r *TenantRepository) doScan(scan func(dest ...any) error) (*tenant.Tenant, error) {
	var (
		idStr     string
		name      string
		plan      string
		settings  []byte
		isActive  bool
		createdAt time.Time
		updatedAt time.Time
	)

	if err := scan(&idStr, &name, &plan, &settings, &isActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	id, err := shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse id: %w", err)
	}

	var settingsMap map[string]any
	if err := fromJSONB(settings, &settingsMap); err != nil {
		settingsMap = make(map[string]any)
	}

	return &tenant.Tenant{
		ID:        id,
		Name:      name,
		Plan:      tenant.Plan(plan),
		Settings:  settingsMap,
		IsActive:  isActive,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}
