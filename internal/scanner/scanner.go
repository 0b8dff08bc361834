// Package scanner contains the scanner plugin contract, the built-in
// scanners and the registry that dispatches scans to them.
package scanner

import (
	"context"

	"github.com/forgescan/api/pkg/domain/shared"
)

// Request carries everything a plugin needs for one scan run.
type Request struct {
	ScanID   shared.ID
	TenantID shared.ID
	Target   string
	Options  map[string]any
}

// BoolOption reads a boolean option with a default.
func (r Request) BoolOption(key string, def bool) bool {
	if v, ok := r.Options[key].(bool); ok {
		return v
	}
	return def
}

// Finding is a raw scanner observation before normalization. RuleID is
// stable per check so re-detections deduplicate.
type Finding struct {
	Scanner     string          `json:"scanner"`
	RuleID      string          `json:"rule_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Severity    shared.Severity `json:"severity"`
	URL         string          `json:"url,omitempty"`
	File        string          `json:"file,omitempty"`
	Line        int             `json:"line,omitempty"`
	Parameter   string          `json:"parameter,omitempty"`
	Evidence    string          `json:"evidence,omitempty"`
	OWASP       string          `json:"owasp_category,omitempty"`
	CWE         string          `json:"cwe_id,omitempty"`
	Remediation string          `json:"remediation,omitempty"`
	References  []string        `json:"references,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// Result is the outcome of one plugin run. Findings gathered before a
// failure are preserved; partial results are results.
type Result struct {
	Findings []Finding
	Metadata map[string]any
}

// Plugin is the contract every scanner implements. Scan must honor context
// cancellation and return whatever findings it gathered so far alongside the
// error. Cleanup is idempotent and runs on every path.
type Plugin interface {
	// Name returns the unique scanner name.
	Name() string

	// Initialize prepares the plugin for scanning.
	Initialize(ctx context.Context) error

	// ValidateTarget reports whether the plugin can scan the target.
	ValidateTarget(target string) bool

	// Scan executes the scan against the target.
	Scan(ctx context.Context, req Request) (*Result, error)

	// Cleanup releases plugin resources.
	Cleanup() error
}
