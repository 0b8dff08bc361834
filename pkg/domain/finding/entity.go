// Package finding contains the normalized vulnerability finding model shared
// by all scanners.
package finding

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/forgescan/api/pkg/domain/shared"
)

// Status represents the lifecycle state of a finding.
type Status string

// Finding statuses. Only "open" counts toward deduplication and gate
// evaluation; the other three close the finding for different reasons.
const (
	StatusOpen          Status = "open"
	StatusFixed         Status = "fixed"
	StatusFalsePositive Status = "false_positive"
	StatusRiskAccepted  Status = "risk_accepted"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusFixed, StatusFalsePositive, StatusRiskAccepted:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Finding is a scanner-agnostic vulnerability observation. Two observations
// with the same fingerprint are the same finding regardless of which scan
// produced them.
type Finding struct {
	id          shared.ID
	tenantID    shared.ID
	scanID      *shared.ID
	assetID     *shared.ID
	scanner     string
	ruleID      string
	title       string
	description string
	severity    shared.Severity
	status      Status
	filePath    string
	lineNumber  int
	cwe         string
	owasp       string
	remediation string
	references  []string
	metadata    map[string]any
	fingerprint string
	occurrences int
	firstSeenAt time.Time
	lastSeenAt  time.Time
	resolvedAt  *time.Time
	createdAt   time.Time
	updatedAt   time.Time
}

// New creates a finding and derives its fingerprint.
func New(
	tenantID shared.ID,
	scanner string,
	ruleID string,
	title string,
	severity shared.Severity,
) (*Finding, error) {
	if tenantID.IsZero() {
		return nil, fmt.Errorf("%w: tenant ID is required", shared.ErrValidation)
	}
	if strings.TrimSpace(scanner) == "" {
		return nil, fmt.Errorf("%w: scanner is required", shared.ErrValidation)
	}
	if strings.TrimSpace(ruleID) == "" {
		return nil, fmt.Errorf("%w: rule ID is required", shared.ErrValidation)
	}
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: title is required", shared.ErrValidation)
	}
	if !severity.IsValid() {
		return nil, fmt.Errorf("%w: invalid severity", shared.ErrValidation)
	}

	now := time.Now().UTC()
	f := &Finding{
		id:          shared.NewID(),
		tenantID:    tenantID,
		scanner:     scanner,
		ruleID:      ruleID,
		title:       title,
		severity:    severity,
		status:      StatusOpen,
		metadata:    make(map[string]any),
		occurrences: 1,
		firstSeenAt: now,
		lastSeenAt:  now,
		createdAt:   now,
		updatedAt:   now,
	}
	f.fingerprint = f.computeFingerprint()
	return f, nil
}

// Reconstitute recreates a Finding from persistence.
func Reconstitute(
	id shared.ID,
	tenantID shared.ID,
	scanID *shared.ID,
	assetID *shared.ID,
	scanner string,
	ruleID string,
	title string,
	description string,
	severity shared.Severity,
	status Status,
	filePath string,
	lineNumber int,
	cwe string,
	owasp string,
	remediation string,
	references []string,
	metadata map[string]any,
	fingerprint string,
	occurrences int,
	firstSeenAt, lastSeenAt time.Time,
	resolvedAt *time.Time,
	createdAt, updatedAt time.Time,
) *Finding {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &Finding{
		id:          id,
		tenantID:    tenantID,
		scanID:      scanID,
		assetID:     assetID,
		scanner:     scanner,
		ruleID:      ruleID,
		title:       title,
		description: description,
		severity:    severity,
		status:      status,
		filePath:    filePath,
		lineNumber:  lineNumber,
		cwe:         cwe,
		owasp:       owasp,
		remediation: remediation,
		references:  references,
		metadata:    metadata,
		fingerprint: fingerprint,
		occurrences: occurrences,
		firstSeenAt: firstSeenAt,
		lastSeenAt:  lastSeenAt,
		resolvedAt:  resolvedAt,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// computeFingerprint derives the deduplication key from the identity fields.
// The input is "scanner:rule:file:line:title" with a missing file rendered as
// an empty segment and a missing line as 0, so the same observation always
// hashes to the same value.
func (f *Finding) computeFingerprint() string {
	raw := strings.Join([]string{
		f.scanner,
		f.ruleID,
		f.filePath,
		strconv.Itoa(f.lineNumber),
		f.title,
	}, ":")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ID returns the finding ID.
func (f *Finding) ID() shared.ID { return f.id }

// TenantID returns the owning tenant ID.
func (f *Finding) TenantID() shared.ID { return f.tenantID }

// ScanID returns the scan that last observed the finding, if any.
func (f *Finding) ScanID() *shared.ID { return f.scanID }

// AssetID returns the linked business asset, if any.
func (f *Finding) AssetID() *shared.ID { return f.assetID }

// Scanner returns the producing scanner name.
func (f *Finding) Scanner() string { return f.scanner }

// RuleID returns the scanner rule identifier.
func (f *Finding) RuleID() string { return f.ruleID }

// Title returns the title.
func (f *Finding) Title() string { return f.title }

// Description returns the description.
func (f *Finding) Description() string { return f.description }

// Severity returns the normalized severity.
func (f *Finding) Severity() shared.Severity { return f.severity }

// Status returns the lifecycle status.
func (f *Finding) Status() Status { return f.status }

// FilePath returns the affected file path, empty when not applicable.
func (f *Finding) FilePath() string { return f.filePath }

// LineNumber returns the affected line, zero when not applicable.
func (f *Finding) LineNumber() int { return f.lineNumber }

// CWE returns the CWE identifier.
func (f *Finding) CWE() string { return f.cwe }

// OWASPCategory returns the OWASP category label.
func (f *Finding) OWASPCategory() string { return f.owasp }

// Remediation returns the remediation guidance.
func (f *Finding) Remediation() string { return f.remediation }

// References returns reference URLs.
func (f *Finding) References() []string { return f.references }

// Metadata returns a copy of the scanner-specific metadata.
func (f *Finding) Metadata() map[string]any {
	out := make(map[string]any, len(f.metadata))
	for k, v := range f.metadata {
		out[k] = v
	}
	return out
}

// Fingerprint returns the deduplication fingerprint.
func (f *Finding) Fingerprint() string { return f.fingerprint }

// Occurrences returns how many times the finding has been observed.
func (f *Finding) Occurrences() int { return f.occurrences }

// FirstSeenAt returns when the finding was first observed.
func (f *Finding) FirstSeenAt() time.Time { return f.firstSeenAt }

// LastSeenAt returns when the finding was last observed.
func (f *Finding) LastSeenAt() time.Time { return f.lastSeenAt }

// ResolvedAt returns when the finding was closed, if it was.
func (f *Finding) ResolvedAt() *time.Time { return f.resolvedAt }

// CreatedAt returns the creation timestamp.
func (f *Finding) CreatedAt() time.Time { return f.createdAt }

// UpdatedAt returns the last update timestamp.
func (f *Finding) UpdatedAt() time.Time { return f.updatedAt }

// SetLocation records the affected file and line. The fingerprint depends on
// the location, so it is recomputed.
func (f *Finding) SetLocation(filePath string, lineNumber int) {
	f.filePath = filePath
	if lineNumber < 0 {
		lineNumber = 0
	}
	f.lineNumber = lineNumber
	f.fingerprint = f.computeFingerprint()
	f.updatedAt = time.Now().UTC()
}

// SetDescription sets the description.
func (f *Finding) SetDescription(description string) {
	f.description = description
	f.updatedAt = time.Now().UTC()
}

// SetClassification records CWE and OWASP labels.
func (f *Finding) SetClassification(cwe, owasp string) {
	f.cwe = cwe
	f.owasp = owasp
	f.updatedAt = time.Now().UTC()
}

// SetRemediation sets remediation guidance and references.
func (f *Finding) SetRemediation(remediation string, references []string) {
	f.remediation = remediation
	f.references = references
	f.updatedAt = time.Now().UTC()
}

// SetMetadata stores a scanner-specific metadata value.
func (f *Finding) SetMetadata(key string, value any) {
	if key == "" {
		return
	}
	f.metadata[key] = value
	f.updatedAt = time.Now().UTC()
}

// AttachScan links the finding to the scan that observed it.
func (f *Finding) AttachScan(scanID shared.ID) {
	f.scanID = &scanID
	f.updatedAt = time.Now().UTC()
}

// AttachAsset links the finding to a business asset.
func (f *Finding) AttachAsset(assetID shared.ID) {
	f.assetID = &assetID
	f.updatedAt = time.Now().UTC()
}

// MarkSeen records a re-detection of the same finding.
func (f *Finding) MarkSeen() {
	f.occurrences++
	f.lastSeenAt = time.Now().UTC()
	f.updatedAt = f.lastSeenAt
}

// TransitionStatus moves the finding to a new lifecycle status.
func (f *Finding) TransitionStatus(status Status) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", shared.ErrValidation, status)
	}
	now := time.Now().UTC()
	switch status {
	case StatusFixed, StatusFalsePositive, StatusRiskAccepted:
		f.resolvedAt = &now
	case StatusOpen:
		f.resolvedAt = nil
	}
	f.status = status
	f.updatedAt = now
	return nil
}

// IsOpen reports whether the finding still needs attention.
func (f *Finding) IsOpen() bool {
	return f.status == StatusOpen
}
