package app_test

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/forgescan/api/pkg/domain/asset"
	"github.com/forgescan/api/pkg/domain/enforcement"
	"github.com/forgescan/api/pkg/domain/evidence"
	"github.com/forgescan/api/pkg/domain/finding"
	"github.com/forgescan/api/pkg/domain/scan"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/domain/tenant"
	"github.com/forgescan/api/pkg/pagination"
)

// fakeTransactor satisfies the service transaction boundary without a
// database; the fake repositories ignore their tx argument.
type fakeTransactor struct{}

func (fakeTransactor) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

type fakeFindingRepo struct {
	mu    sync.Mutex
	items map[string]*finding.Finding
}

func newFakeFindingRepo() *fakeFindingRepo {
	return &fakeFindingRepo{items: make(map[string]*finding.Finding)}
}

func (r *fakeFindingRepo) Create(_ context.Context, f *finding.Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[f.ID().String()] = f
	return nil
}

func (r *fakeFindingRepo) CreateInTx(ctx context.Context, _ *sql.Tx, f *finding.Finding) error {
	return r.Create(ctx, f)
}

func (r *fakeFindingRepo) GetByID(_ context.Context, id shared.ID) (*finding.Finding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.items[id.String()]; ok {
		return f, nil
	}
	return nil, shared.NewDomainError("FINDING_NOT_FOUND", "finding not found", shared.ErrNotFound)
}

func (r *fakeFindingRepo) GetOpenByFingerprint(_ context.Context, tenantID shared.ID, fingerprint string) (*finding.Finding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.items {
		if f.TenantID().Equals(tenantID) && f.Fingerprint() == fingerprint && f.IsOpen() {
			return f, nil
		}
	}
	return nil, shared.NewDomainError("FINDING_NOT_FOUND", "finding not found", shared.ErrNotFound)
}

func (r *fakeFindingRepo) Update(_ context.Context, f *finding.Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[f.ID().String()]; !ok {
		return shared.NewDomainError("FINDING_NOT_FOUND", "finding not found", shared.ErrNotFound)
	}
	r.items[f.ID().String()] = f
	return nil
}

func (r *fakeFindingRepo) List(_ context.Context, filter finding.Filter, page pagination.Pagination) (pagination.Result[*finding.Finding], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*finding.Finding
	for _, f := range r.items {
		if filter.TenantID != nil && f.TenantID().String() != *filter.TenantID {
			continue
		}
		out = append(out, f)
	}
	return pagination.NewResult(out, int64(len(out)), page), nil
}

func (r *fakeFindingRepo) ListByScan(_ context.Context, scanID shared.ID) ([]*finding.Finding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*finding.Finding
	for _, f := range r.items {
		if f.ScanID() != nil && f.ScanID().Equals(scanID) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeFindingRepo) ListOpenByTenant(_ context.Context, tenantID shared.ID) ([]*finding.Finding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*finding.Finding
	for _, f := range r.items {
		if f.TenantID().Equals(tenantID) && f.IsOpen() {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FirstSeenAt().Before(out[j].FirstSeenAt())
	})
	return out, nil
}

func (r *fakeFindingRepo) CountBySeverity(_ context.Context, tenantID shared.ID) (map[shared.Severity]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[shared.Severity]int64)
	for _, f := range r.items {
		if f.TenantID().Equals(tenantID) && f.IsOpen() {
			out[f.Severity()]++
		}
	}
	return out, nil
}

func (r *fakeFindingRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

type fakeAssetRepo struct {
	mu    sync.Mutex
	items map[string]*asset.BusinessAsset
}

func newFakeAssetRepo() *fakeAssetRepo {
	return &fakeAssetRepo{items: make(map[string]*asset.BusinessAsset)}
}

func (r *fakeAssetRepo) Create(_ context.Context, a *asset.BusinessAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[a.ID().String()] = a
	return nil
}

func (r *fakeAssetRepo) GetByID(_ context.Context, id shared.ID) (*asset.BusinessAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.items[id.String()]; ok {
		return a, nil
	}
	return nil, shared.NewDomainError("ASSET_NOT_FOUND", "asset not found", shared.ErrNotFound)
}

func (r *fakeAssetRepo) GetByName(_ context.Context, tenantID shared.ID, name string) (*asset.BusinessAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.items {
		if a.TenantID().Equals(tenantID) && a.Name() == name {
			return a, nil
		}
	}
	return nil, shared.NewDomainError("ASSET_NOT_FOUND", "asset not found", shared.ErrNotFound)
}

func (r *fakeAssetRepo) Update(_ context.Context, a *asset.BusinessAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[a.ID().String()]; !ok {
		return shared.NewDomainError("ASSET_NOT_FOUND", "asset not found", shared.ErrNotFound)
	}
	r.items[a.ID().String()] = a
	return nil
}

func (r *fakeAssetRepo) Delete(_ context.Context, id shared.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id.String()]; !ok {
		return shared.NewDomainError("ASSET_NOT_FOUND", "asset not found", shared.ErrNotFound)
	}
	delete(r.items, id.String())
	return nil
}

func (r *fakeAssetRepo) List(_ context.Context, filter asset.Filter, page pagination.Pagination) (pagination.Result[*asset.BusinessAsset], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*asset.BusinessAsset
	for _, a := range r.items {
		if filter.TenantID != nil && a.TenantID().String() != *filter.TenantID {
			continue
		}
		out = append(out, a)
	}
	return pagination.NewResult(out, int64(len(out)), page), nil
}

type fakeTenantRepo struct {
	mu    sync.Mutex
	items map[string]*tenant.Tenant
}

func newFakeTenantRepo() *fakeTenantRepo {
	return &fakeTenantRepo{items: make(map[string]*tenant.Tenant)}
}

func (r *fakeTenantRepo) Create(_ context.Context, t *tenant.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[t.ID.String()] = t
	return nil
}

func (r *fakeTenantRepo) GetByID(_ context.Context, id shared.ID) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.items[id.String()]; ok {
		return t, nil
	}
	return nil, shared.NewDomainError("TENANT_NOT_FOUND", "tenant not found", shared.ErrNotFound)
}

func (r *fakeTenantRepo) GetByIDForUpdate(ctx context.Context, _ *sql.Tx, id shared.ID) (*tenant.Tenant, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeTenantRepo) Update(_ context.Context, t *tenant.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[t.ID.String()] = t
	return nil
}

func (r *fakeTenantRepo) List(_ context.Context) ([]*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*tenant.Tenant
	for _, t := range r.items {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeDecisionRepo struct {
	mu    sync.Mutex
	items []*enforcement.Decision
}

func newFakeDecisionRepo() *fakeDecisionRepo { return &fakeDecisionRepo{} }

func (r *fakeDecisionRepo) Create(_ context.Context, d *enforcement.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, d)
	return nil
}

func (r *fakeDecisionRepo) CreateInTx(ctx context.Context, _ *sql.Tx, d *enforcement.Decision) error {
	return r.Create(ctx, d)
}

func (r *fakeDecisionRepo) GetByID(_ context.Context, id shared.ID) (*enforcement.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.items {
		if d.ID().Equals(id) {
			return d, nil
		}
	}
	return nil, shared.NewDomainError("DECISION_NOT_FOUND", "decision not found", shared.ErrNotFound)
}

func (r *fakeDecisionRepo) Update(_ context.Context, d *enforcement.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.items {
		if existing.ID().Equals(d.ID()) {
			r.items[i] = d
			return nil
		}
	}
	return shared.NewDomainError("DECISION_NOT_FOUND", "decision not found", shared.ErrNotFound)
}

func (r *fakeDecisionRepo) ListByTenant(_ context.Context, tenantID shared.ID, limit int) ([]*enforcement.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*enforcement.Decision
	for i := len(r.items) - 1; i >= 0 && len(out) < limit; i-- {
		if r.items[i].TenantID().Equals(tenantID) {
			out = append(out, r.items[i])
		}
	}
	return out, nil
}

func (r *fakeDecisionRepo) CountHardFailsInMonth(_ context.Context, _ *sql.Tx, tenantID shared.ID, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	monthStart := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)
	count := 0
	for _, d := range r.items {
		if !d.TenantID().Equals(tenantID) || d.Level() != enforcement.LevelHardFail {
			continue
		}
		if !d.DecidedAt().Before(monthStart) && d.DecidedAt().Before(monthEnd) {
			count++
		}
	}
	return count, nil
}

type fakeEvidenceRepo struct {
	mu    sync.Mutex
	items []*evidence.Record
}

func newFakeEvidenceRepo() *fakeEvidenceRepo { return &fakeEvidenceRepo{} }

func (r *fakeEvidenceRepo) Append(_ context.Context, rec *evidence.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, rec)
	return nil
}

func (r *fakeEvidenceRepo) AppendInTx(ctx context.Context, _ *sql.Tx, rec *evidence.Record) error {
	return r.Append(ctx, rec)
}

func (r *fakeEvidenceRepo) GetByID(_ context.Context, id shared.ID) (*evidence.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.items {
		if rec.ID().Equals(id) {
			return rec, nil
		}
	}
	return nil, shared.NewDomainError("EVIDENCE_NOT_FOUND", "evidence record not found", shared.ErrNotFound)
}

func (r *fakeEvidenceRepo) List(_ context.Context, filter evidence.Filter, page pagination.Pagination) (pagination.Result[*evidence.Record], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*evidence.Record
	for i := len(r.items) - 1; i >= 0; i-- {
		rec := r.items[i]
		if filter.TenantID != nil && rec.TenantID().String() != *filter.TenantID {
			continue
		}
		if filter.EvidenceType != nil && rec.EvidenceType() != *filter.EvidenceType {
			continue
		}
		out = append(out, rec)
	}
	return pagination.NewResult(out, int64(len(out)), page), nil
}

func (r *fakeEvidenceRepo) Timeline(_ context.Context, tenantID shared.ID, relatedEntity string) ([]*evidence.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*evidence.Record
	for _, rec := range r.items {
		if rec.TenantID().Equals(tenantID) && rec.RelatedEntity() == relatedEntity {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out, nil
}

func (r *fakeEvidenceRepo) ListByDateRange(_ context.Context, tenantID shared.ID, from, to time.Time) ([]*evidence.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*evidence.Record
	for _, rec := range r.items {
		if !rec.TenantID().Equals(tenantID) {
			continue
		}
		if rec.CreatedAt().Before(from) || !rec.CreatedAt().Before(to) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out, nil
}

func (r *fakeEvidenceRepo) byType(t evidence.Type) []*evidence.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*evidence.Record
	for _, rec := range r.items {
		if rec.EvidenceType() == t {
			out = append(out, rec)
		}
	}
	return out
}

type fakeScanRepo struct {
	mu    sync.Mutex
	items map[string]*scan.Scan
}

func newFakeScanRepo() *fakeScanRepo {
	return &fakeScanRepo{items: make(map[string]*scan.Scan)}
}

func (r *fakeScanRepo) Create(_ context.Context, s *scan.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[s.ID.String()] = s
	return nil
}

func (r *fakeScanRepo) GetByID(_ context.Context, id shared.ID) (*scan.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.items[id.String()]; ok {
		return s, nil
	}
	return nil, shared.NewDomainError("SCAN_NOT_FOUND", "scan not found", shared.ErrNotFound)
}

func (r *fakeScanRepo) Update(_ context.Context, s *scan.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[s.ID.String()]; !ok {
		return shared.NewDomainError("SCAN_NOT_FOUND", "scan not found", shared.ErrNotFound)
	}
	r.items[s.ID.String()] = s
	return nil
}

func (r *fakeScanRepo) List(_ context.Context, filter scan.Filter, page pagination.Pagination) (pagination.Result[*scan.Scan], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*scan.Scan
	for _, s := range r.items {
		if filter.TenantID != nil && s.TenantID.String() != *filter.TenantID {
			continue
		}
		out = append(out, s)
	}
	return pagination.NewResult(out, int64(len(out)), page), nil
}

func (r *fakeScanRepo) ListDue(_ context.Context, now time.Time, limit int) ([]*scan.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*scan.Scan
	for _, s := range r.items {
		if s.IsDue(now) && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeScanRepo) CountActiveByTenant(_ context.Context, tenantID shared.ID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, s := range r.items {
		if s.TenantID.Equals(tenantID) && (s.Status == scan.StatusPending || s.Status == scan.StatusRunning) {
			count++
		}
	}
	return count, nil
}

// fakeAdmission tracks slots in memory with the same grant semantics as the
// redis limiter.
type fakeAdmission struct {
	mu    sync.Mutex
	slots map[string]map[string]bool // tenant -> scan set
}

func newFakeAdmission() *fakeAdmission {
	return &fakeAdmission{slots: make(map[string]map[string]bool)}
}

func (a *fakeAdmission) Acquire(_ context.Context, tenantID, scanID shared.ID, limit int) (bool, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	held := a.slots[tenantID.String()]
	if held == nil {
		held = make(map[string]bool)
		a.slots[tenantID.String()] = held
	}
	if len(held) >= limit {
		return false, 0, nil
	}
	held[scanID.String()] = true
	return true, limit - len(held), nil
}

func (a *fakeAdmission) Release(_ context.Context, tenantID, scanID shared.ID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.slots[tenantID.String()], scanID.String())
	return nil
}

func (a *fakeAdmission) active(tenantID shared.ID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots[tenantID.String()])
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	enqueued []shared.ID
	fail     bool
}

func (e *fakeEnqueuer) EnqueueScan(_ context.Context, scanID, _ shared.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return shared.ErrInternal
	}
	e.enqueued = append(e.enqueued, scanID)
	return nil
}

func (e *fakeEnqueuer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.enqueued)
}
