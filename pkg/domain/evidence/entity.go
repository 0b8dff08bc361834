// Package evidence contains the append-only evidence ledger. Records are
// never updated or deleted; each carries a hash of its canonical payload so
// auditors can prove tampering.
package evidence

import (
	"fmt"
	"time"

	"github.com/forgescan/api/pkg/canonjson"
	"github.com/forgescan/api/pkg/domain/shared"
)

// Type classifies what a ledger record proves.
type Type string

// Evidence types.
const (
	TypeScan        Type = "SCAN"
	TypeEnforcement Type = "ENFORCEMENT"
	TypeRemediation Type = "REMEDIATION"
	TypeCIDecision  Type = "CI_DECISION"
)

// IsValid reports whether the type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeScan, TypeEnforcement, TypeRemediation, TypeCIDecision:
		return true
	}
	return false
}

// SchemaVersion is the current payload schema version. Every appended
// payload is stamped with it under SchemaVersionKey before hashing, so the
// version is covered by the integrity hash and consumers can migrate old
// records by version.
const SchemaVersion = 1

// SchemaVersionKey is the payload key that carries the schema version.
const SchemaVersionKey = "schema_version"

func (t Type) String() string { return string(t) }

// Record is a single immutable ledger entry.
type Record struct {
	id            shared.ID
	tenantID      shared.ID
	evidenceType  Type
	relatedEntity string
	payload       map[string]any
	payloadHash   string
	createdAt     time.Time
}

// NewRecord creates a ledger entry, stamps the payload schema version and
// hashes the result. The caller's map is not modified.
func NewRecord(
	tenantID shared.ID,
	evidenceType Type,
	relatedEntity string,
	payload map[string]any,
) (*Record, error) {
	if tenantID.IsZero() {
		return nil, fmt.Errorf("%w: tenant ID is required", shared.ErrValidation)
	}
	if !evidenceType.IsValid() {
		return nil, fmt.Errorf("%w: invalid evidence type %q", shared.ErrValidation, evidenceType)
	}
	if relatedEntity == "" {
		return nil, fmt.Errorf("%w: related entity is required", shared.ErrValidation)
	}
	stamped := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		stamped[k] = v
	}
	stamped[SchemaVersionKey] = SchemaVersion
	payload = stamped
	hash, err := canonjson.Hash(payload)
	if err != nil {
		return nil, fmt.Errorf("hash evidence payload: %w", err)
	}
	return &Record{
		id:            shared.NewID(),
		tenantID:      tenantID,
		evidenceType:  evidenceType,
		relatedEntity: relatedEntity,
		payload:       payload,
		payloadHash:   hash,
		createdAt:     time.Now().UTC(),
	}, nil
}

// Reconstitute recreates a Record from persistence. The stored hash is kept
// as-is; Verify recomputes it on demand.
func Reconstitute(
	id shared.ID,
	tenantID shared.ID,
	evidenceType Type,
	relatedEntity string,
	payload map[string]any,
	payloadHash string,
	createdAt time.Time,
) *Record {
	if payload == nil {
		payload = make(map[string]any)
	}
	return &Record{
		id:            id,
		tenantID:      tenantID,
		evidenceType:  evidenceType,
		relatedEntity: relatedEntity,
		payload:       payload,
		payloadHash:   payloadHash,
		createdAt:     createdAt,
	}
}

// ID returns the record ID.
func (r *Record) ID() shared.ID { return r.id }

// TenantID returns the owning tenant ID.
func (r *Record) TenantID() shared.ID { return r.tenantID }

// EvidenceType returns the record type.
func (r *Record) EvidenceType() Type { return r.evidenceType }

// RelatedEntity returns the reference identifier, e.g. "scan:<id>".
func (r *Record) RelatedEntity() string { return r.relatedEntity }

// Payload returns a copy of the payload.
func (r *Record) Payload() map[string]any {
	out := make(map[string]any, len(r.payload))
	for k, v := range r.payload {
		out[k] = v
	}
	return out
}

// PayloadHash returns the hash stored at append time.
func (r *Record) PayloadHash() string { return r.payloadHash }

// CreatedAt returns the append timestamp.
func (r *Record) CreatedAt() time.Time { return r.createdAt }

// Verify recomputes the payload hash and compares it to the stored one.
// A mismatch means the stored payload no longer matches what was appended.
func (r *Record) Verify() (bool, error) {
	hash, err := canonjson.Hash(r.payload)
	if err != nil {
		return false, fmt.Errorf("hash evidence payload: %w", err)
	}
	return hash == r.payloadHash, nil
}

// VerifyAgainst checks an externally supplied payload against the stored
// hash. Used when an auditor presents their own copy of the payload.
func (r *Record) VerifyAgainst(payload map[string]any) (bool, error) {
	hash, err := canonjson.Hash(payload)
	if err != nil {
		return false, fmt.Errorf("hash evidence payload: %w", err)
	}
	return hash == r.payloadHash, nil
}
