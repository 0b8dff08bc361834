package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forgescan/api/pkg/domain/finding"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/pagination"
)

// FindingRepository implements finding.Repository using PostgreSQL.
type FindingRepository struct {
	db *DB
}

// NewFindingRepository creates a new FindingRepository.
func NewFindingRepository(db *DB) *FindingRepository {
	return &FindingRepository{db: db}
}

const findingInsertQuery = `
	INSERT INTO findings (
		id, tenant_id, scan_id, asset_id, scanner, rule_id,
		title, description, severity, status, file_path, line_number,
		cwe_id, owasp_category, remediation, refs, metadata,
		fingerprint, occurrences, first_seen_at, last_seen_at, resolved_at,
		created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
	        $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
`

func findingInsertArgs(f *finding.Finding) ([]any, error) {
	metadata, err := toJSONB(f.Metadata())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	refs, err := toJSONB(f.References())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal references: %w", err)
	}
	return []any{
		f.ID().String(),
		f.TenantID().String(),
		nullIDPtr(f.ScanID()),
		nullIDPtr(f.AssetID()),
		f.Scanner(),
		f.RuleID(),
		f.Title(),
		nullString(f.Description()),
		f.Severity().String(),
		f.Status().String(),
		nullString(f.FilePath()),
		f.LineNumber(),
		nullString(f.CWE()),
		nullString(f.OWASPCategory()),
		nullString(f.Remediation()),
		refs,
		metadata,
		f.Fingerprint(),
		f.Occurrences(),
		f.FirstSeenAt(),
		f.LastSeenAt(),
		nullTime(f.ResolvedAt()),
		f.CreatedAt(),
		f.UpdatedAt(),
	}, nil
}

// Create persists a new finding.
func (r *FindingRepository) Create(ctx context.Context, f *finding.Finding) error {
	args, err := findingInsertArgs(f)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, findingInsertQuery, args...); err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("FINDING_EXISTS",
				fmt.Sprintf("finding with fingerprint %s already exists", f.Fingerprint()),
				shared.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create finding: %w", err)
	}
	return nil
}

// CreateInTx persists a new finding within an existing transaction.
func (r *FindingRepository) CreateInTx(ctx context.Context, tx *sql.Tx, f *finding.Finding) error {
	args, err := findingInsertArgs(f)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, findingInsertQuery, args...); err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("FINDING_EXISTS",
				fmt.Sprintf("finding with fingerprint %s already exists", f.Fingerprint()),
				shared.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create finding in tx: %w", err)
	}
	return nil
}

// GetByID retrieves a finding by its ID.
func (r *FindingRepository) GetByID(ctx context.Context, id shared.ID) (*finding.Finding, error) {
	query := r.selectQuery() + " WHERE id = $1"

	row := r.db.QueryRowContext(ctx, query, id.String())
	return r.scanFinding(row)
}

// GetOpenByFingerprint retrieves the open finding with the given fingerprint
// within a tenant.
func (r *FindingRepository) GetOpenByFingerprint(ctx context.Context, tenantID shared.ID, fingerprint string) (*finding.Finding, error) {
	query := r.selectQuery() + ` WHERE tenant_id = $1 AND fingerprint = $2 AND status = 'open'`

	row := r.db.QueryRowContext(ctx, query, tenantID.String(), fingerprint)
	return r.scanFinding(row)
}

// Update updates an existing finding.
func (r *FindingRepository) Update(ctx context.Context, f *finding.Finding) error {
	metadata, err := toJSONB(f.Metadata())
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	refs, err := toJSONB(f.References())
	if err != nil {
		return fmt.Errorf("failed to marshal references: %w", err)
	}

	query := `
		UPDATE findings SET
			scan_id = $2, asset_id = $3, description = $4, severity = $5,
			status = $6, file_path = $7, line_number = $8, cwe_id = $9,
			owasp_category = $10, remediation = $11, refs = $12, metadata = $13,
			fingerprint = $14, occurrences = $15, last_seen_at = $16,
			resolved_at = $17, updated_at = $18
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		f.ID().String(),
		nullIDPtr(f.ScanID()),
		nullIDPtr(f.AssetID()),
		nullString(f.Description()),
		f.Severity().String(),
		f.Status().String(),
		nullString(f.FilePath()),
		f.LineNumber(),
		nullString(f.CWE()),
		nullString(f.OWASPCategory()),
		nullString(f.Remediation()),
		refs,
		metadata,
		f.Fingerprint(),
		f.Occurrences(),
		f.LastSeenAt(),
		nullTime(f.ResolvedAt()),
		f.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to update finding: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return shared.NewDomainError("FINDING_NOT_FOUND",
			fmt.Sprintf("finding %s not found", f.ID()), shared.ErrNotFound)
	}
	return nil
}

// List retrieves findings with filtering and pagination, newest first.
func (r *FindingRepository) List(ctx context.Context, filter finding.Filter, page pagination.Pagination) (pagination.Result[*finding.Finding], error) {
	baseQuery := r.selectQuery()
	countQuery := `SELECT COUNT(*) FROM findings`

	whereClause, args := r.buildWhereClause(filter)
	if whereClause != "" {
		baseQuery += " WHERE " + whereClause
		countQuery += " WHERE " + whereClause
	}

	baseQuery += " ORDER BY last_seen_at DESC, id"
	baseQuery += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit(), page.Offset())

	var total int64
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*finding.Finding]{}, fmt.Errorf("failed to count findings: %w", err)
	}

	findings, err := r.queryMany(ctx, baseQuery, args...)
	if err != nil {
		return pagination.Result[*finding.Finding]{}, err
	}
	return pagination.NewResult(findings, total, page), nil
}

// ListByScan retrieves all findings observed by a scan.
func (r *FindingRepository) ListByScan(ctx context.Context, scanID shared.ID) ([]*finding.Finding, error) {
	query := r.selectQuery() + " WHERE scan_id = $1 ORDER BY severity, last_seen_at DESC"
	return r.queryMany(ctx, query, scanID.String())
}

// ListOpenByTenant retrieves every open finding for a tenant.
func (r *FindingRepository) ListOpenByTenant(ctx context.Context, tenantID shared.ID) ([]*finding.Finding, error) {
	query := r.selectQuery() + ` WHERE tenant_id = $1 AND status = 'open' ORDER BY first_seen_at, id`
	return r.queryMany(ctx, query, tenantID.String())
}

// CountBySeverity returns open finding counts grouped by severity.
func (r *FindingRepository) CountBySeverity(ctx context.Context, tenantID shared.ID) (map[shared.Severity]int64, error) {
	query := `
		SELECT severity, COUNT(*)
		FROM findings
		WHERE tenant_id = $1 AND status = 'open'
		GROUP BY severity
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to count findings by severity: %w", err)
	}
	defer rows.Close()

	counts := make(map[shared.Severity]int64)
	for rows.Next() {
		var severity string
		var count int64
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan severity count: %w", err)
		}
		parsed, err := shared.ParseSeverity(severity)
		if err != nil {
			continue
		}
		counts[parsed] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate severity counts: %w", err)
	}
	return counts, nil
}

func (r *FindingRepository) queryMany(ctx context.Context, query string, args ...any) ([]*finding.Finding, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var findings []*finding.Finding
	for rows.Next() {
		f, err := r.doScan(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate findings: %w", err)
	}
	return findings, nil
}

func (r *FindingRepository) selectQuery() string {
	return `
		SELECT id, tenant_id, scan_id, asset_id, scanner, rule_id,
		       title, description, severity, status, file_path, line_number,
		       cwe_id, owasp_category, remediation, refs, metadata,
		       fingerprint, occurrences, first_seen_at, last_seen_at, resolved_at,
		       created_at, updated_at
		FROM findings
	`
}

func (r *FindingRepository) scanFinding(row *sql.Row) (*finding.Finding, error) {
	f, err := r.doScan(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewDomainError("FINDING_NOT_FOUND", "finding not found", shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan finding: %w", err)
	}
	return f, nil
}

func (r *FindingRepository) doScan(scan func(dest ...any) error) (*finding.Finding, error) {
	var (
		idStr       string
		tenantIDStr string
		scanIDStr   sql.NullString
		assetIDStr  sql.NullString
		scanner     string
		ruleID      string
		title       string
		description sql.NullString
		severity    string
		status      string
		filePath    sql.NullString
		lineNumber  int
		cwe         sql.NullString
		owasp       sql.NullString
		remediation sql.NullString
		refs        []byte
		metadata    []byte
		fingerprint string
		occurrences int
		firstSeenAt time.Time
		lastSeenAt  time.Time
		resolvedAt  sql.NullTime
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := scan(
		&idStr, &tenantIDStr, &scanIDStr, &assetIDStr, &scanner, &ruleID,
		&title, &description, &severity, &status, &filePath, &lineNumber,
		&cwe, &owasp, &remediation, &refs, &metadata,
		&fingerprint, &occurrences, &firstSeenAt, &lastSeenAt, &resolvedAt,
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

	parsedSeverity, _ := shared.ParseSeverity(severity)

	var references []string
	if err := fromJSONB(refs, &references); err != nil {
		references = nil
	}
	var metadataMap map[string]any
	if err := fromJSONB(metadata, &metadataMap); err != nil {
		metadataMap = make(map[string]any)
	}

	return finding.Reconstitute(
		parsedID,
		tenantID,
		parseNullID(scanIDStr),
		parseNullID(assetIDStr),
		scanner,
		ruleID,
		title,
		nullStringValue(description),
		parsedSeverity,
		finding.Status(status),
		nullStringValue(filePath),
		lineNumber,
		nullStringValue(cwe),
		nullStringValue(owasp),
		nullStringValue(remediation),
		references,
		metadataMap,
		fingerprint,
		occurrences,
		firstSeenAt,
		lastSeenAt,
		nullTimeValue(resolvedAt),
		createdAt,
		updatedAt,
	), nil
}

func (r *FindingRepository) buildWhereClause(filter finding.Filter) (string, []any) {
	var conditions []string
	var args []any
	argIndex := 1

	if filter.TenantID != nil && *filter.TenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIndex))
		args = append(args, *filter.TenantID)
		argIndex++
	}

	if filter.ScanID != nil && *filter.ScanID != "" {
		conditions = append(conditions, fmt.Sprintf("scan_id = $%d", argIndex))
		args = append(args, *filter.ScanID)
		argIndex++
	}

	if filter.AssetID != nil && *filter.AssetID != "" {
		conditions = append(conditions, fmt.Sprintf("asset_id = $%d", argIndex))
		args = append(args, *filter.AssetID)
		argIndex++
	}

	if len(filter.Scanners) > 0 {
		placeholders := make([]string, len(filter.Scanners))
		for i, s := range filter.Scanners {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, s)
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("scanner IN (%s)", strings.Join(placeholders, ", ")))
	}

	if len(filter.Severities) > 0 {
		placeholders := make([]string, len(filter.Severities))
		for i, s := range filter.Severities {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, s.String())
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("severity IN (%s)", strings.Join(placeholders, ", ")))
	}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, s.String())
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	if filter.Search != nil && *filter.Search != "" {
		searchPattern := wrapLikePattern(*filter.Search)
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", argIndex, argIndex+1))
		args = append(args, searchPattern, searchPattern)
		argIndex += 2
	}

	return strings.Join(conditions, " AND "), args
}
