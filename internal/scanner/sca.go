package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/logger"
)

// SCAScannerName is the registered name of the dependency scanner.
const SCAScannerName = "sca_scanner"

// skipDirs are directory names never descended into while looking for
// manifests. Vendored trees declare their own dependencies.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	".git":         true,
	".venv":        true,
	"dist":         true,
	"build":        true,
}

// fixedVersionPatterns extract an upgrade target from advisory prose.
var fixedVersionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[Ff]ixed in (?:version )?([0-9.]+)`),
	regexp.MustCompile(`[Uu]pgrade to ([0-9.]+)`),
	regexp.MustCompile(`[Pp]atched in ([0-9.]+)`),
}

// SCAScanner discovers dependency manifests under a source tree and
// reports known vulnerabilities in the declared packages.
type SCAScanner struct {
	intel VulnIntel
	log   *logger.Logger
}

// NewSCAScanner creates a dependency scanner backed by the given
// intelligence source.
func NewSCAScanner(intel VulnIntel, log *logger.Logger) *SCAScanner {
	return &SCAScanner{intel: intel, log: log}
}

// Name implements Plugin.
func (s *SCAScanner) Name() string { return SCAScannerName }

// Initialize implements Plugin.
func (s *SCAScanner) Initialize(_ context.Context) error { return nil }

// Cleanup implements Plugin.
func (s *SCAScanner) Cleanup() error { return nil }

// ValidateTarget implements Plugin. SCA targets are local directories
// holding a checked-out source tree.
func (s *SCAScanner) ValidateTarget(target string) bool {
	info, err := os.Stat(target)
	return err == nil && info.IsDir()
}

// Scan implements Plugin.
func (s *SCAScanner) Scan(ctx context.Context, req Request) (*Result, error) {
	log := s.log.With("scanner", s.Name(), "scan_id", req.ScanID.String(), "target", req.Target)
	log.Info("starting dependency scan")

	deps, manifests, err := s.collectDependencies(req.Target)
	if err != nil {
		return nil, fmt.Errorf("collect dependencies: %w", err)
	}
	log.Info("manifests parsed", "manifests", len(manifests), "dependencies", len(deps))

	metadata := map[string]any{
		"target":       req.Target,
		"manifests":    manifests,
		"dependencies": len(deps),
	}
	if len(deps) == 0 {
		return &Result{Metadata: metadata}, nil
	}

	advisories, err := s.intel.Lookup(ctx, deps)
	if err != nil {
		return &Result{Metadata: metadata}, fmt.Errorf("vulnerability lookup: %w", err)
	}

	var findings []Finding
	for _, dep := range deps {
		for _, adv := range advisories[dep.PURL()] {
			findings = append(findings, s.toFinding(dep, adv))
		}
	}

	log.Info("dependency scan finished", "findings", len(findings))
	return &Result{Findings: findings, Metadata: metadata}, nil
}

func (s *SCAScanner) collectDependencies(root string) ([]Dependency, []string, error) {
	var deps []Dependency
	var manifests []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		parse, ok := manifestParsers[d.Name()]
		if !ok {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		parsed, err := parse(rel, data)
		if err != nil {
			// A malformed manifest should not abort the scan.
			s.log.WithError(err).Warn("skipping unparseable manifest", "manifest", rel)
			return nil
		}
		manifests = append(manifests, rel)
		deps = append(deps, parsed...)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return deps, manifests, nil
}

func (s *SCAScanner) toFinding(dep Dependency, adv Advisory) Finding {
	description := adv.Description
	if description == "" {
		description = adv.Title
	}
	remediation := fmt.Sprintf("Update %s to a patched version", dep.Name)
	if fixed := extractFixedVersion(adv.Title + " " + adv.Description); fixed != "" {
		remediation = fmt.Sprintf("Upgrade %s to version %s or later", dep.Name, fixed)
	}

	return Finding{
		Scanner:     s.Name(),
		RuleID:      adv.ID,
		Title:       fmt.Sprintf("%s: %s@%s", adv.ID, dep.Name, dep.Version),
		Description: description,
		Severity:    shared.SeverityFromCVSS(adv.CVSSScore),
		File:        dep.Manifest,
		OWASP:       "A06:2021-Vulnerable and Outdated Components",
		CWE:         "CWE-1395",
		Remediation: remediation,
		References:  adv.References,
		Metadata: map[string]any{
			"purl":       dep.PURL(),
			"ecosystem":  dep.Ecosystem,
			"cvss_score": adv.CVSSScore,
			"dev":        dep.Dev,
		},
	}
}

// extractFixedVersion pulls the first upgrade target mentioned in
// advisory text, or "" when none is stated.
func extractFixedVersion(text string) string {
	for _, pattern := range fixedVersionPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return strings.TrimSuffix(m[1], ".")
		}
	}
	return ""
}
