package scanner_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgescan/api/internal/scanner"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/logger"
)

type fakeIntel struct {
	advisories map[string][]scanner.Advisory
	lastBatch  []scanner.Dependency
}

func (f *fakeIntel) Lookup(_ context.Context, deps []scanner.Dependency) (map[string][]scanner.Advisory, error) {
	f.lastBatch = deps
	out := make(map[string][]scanner.Advisory)
	for _, dep := range deps {
		if advs, ok := f.advisories[dep.PURL()]; ok {
			out[dep.PURL()] = advs
		}
	}
	return out, nil
}

func writeProjectFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSCAScanner_ValidateTarget(t *testing.T) {
	s := scanner.NewSCAScanner(&fakeIntel{}, logger.NewNop())

	assert.True(t, s.ValidateTarget(t.TempDir()))
	assert.False(t, s.ValidateTarget("/nonexistent/path"))
}

func TestSCAScanner_Scan(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "package.json", `{
		"dependencies": {"lodash": "4.17.20"}
	}`)
	writeProjectFile(t, root, "backend/requirements.txt", "flask==0.12.2\n")
	// Vendored manifests must not be picked up.
	writeProjectFile(t, root, "node_modules/left-pad/package.json", `{
		"dependencies": {"evil": "1.0.0"}
	}`)

	intel := &fakeIntel{advisories: map[string][]scanner.Advisory{
		"pkg:npm/lodash@4.17.20": {{
			ID:          "CVE-2021-23337",
			Title:       "Command injection in lodash",
			Description: "Command injection via template. Fixed in version 4.17.21.",
			CVSSScore:   7.2,
		}},
		"pkg:pypi/flask@0.12.2": {{
			ID:        "CVE-2018-1000656",
			Title:     "Denial of service in flask",
			CVSSScore: 5.0,
		}},
	}}

	s := scanner.NewSCAScanner(intel, logger.NewNop())
	result, err := s.Scan(context.Background(), scanner.Request{
		ScanID:   shared.NewID(),
		TenantID: shared.NewID(),
		Target:   root,
	})
	require.NoError(t, err)
	require.Len(t, result.Findings, 2)
	require.Len(t, intel.lastBatch, 2, "vendored dependencies are excluded")

	lodash := findingsByRule(result.Findings, "CVE-2021-23337")
	require.Len(t, lodash, 1)
	assert.Equal(t, "CVE-2021-23337: lodash@4.17.20", lodash[0].Title)
	assert.Equal(t, shared.SeverityHigh, lodash[0].Severity, "CVSS 7.2 maps to high")
	assert.Equal(t, "package.json", lodash[0].File)
	assert.Equal(t, "A06:2021-Vulnerable and Outdated Components", lodash[0].OWASP)
	assert.Contains(t, lodash[0].Remediation, "4.17.21")

	flask := findingsByRule(result.Findings, "CVE-2018-1000656")
	require.Len(t, flask, 1)
	assert.Equal(t, shared.SeverityMedium, flask[0].Severity, "CVSS 5.0 maps to medium")
	assert.Equal(t, filepath.Join("backend", "requirements.txt"), flask[0].File)
}

func TestSCAScanner_NoManifests(t *testing.T) {
	s := scanner.NewSCAScanner(&fakeIntel{}, logger.NewNop())
	result, err := s.Scan(context.Background(), scanner.Request{
		ScanID:   shared.NewID(),
		TenantID: shared.NewID(),
		Target:   t.TempDir(),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
	assert.Equal(t, 0, result.Metadata["dependencies"])
}

func TestHTTPIntelClient_Lookup(t *testing.T) {
	var received [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/component-report", r.URL.Path)
		var req struct {
			Coordinates []string `json:"coordinates"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		received = append(received, req.Coordinates)

		type report struct {
			Coordinates     string             `json:"coordinates"`
			Vulnerabilities []scanner.Advisory `json:"vulnerabilities"`
		}
		out := make([]report, len(req.Coordinates))
		for i, c := range req.Coordinates {
			out[i] = report{Coordinates: c}
		}
		// Only the first coordinate overall is vulnerable.
		if len(received) == 1 {
			out[0].Vulnerabilities = []scanner.Advisory{{ID: "CVE-2024-0001", CVSSScore: 9.8}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(out))
	}))
	defer srv.Close()

	deps := make([]scanner.Dependency, 150)
	for i := range deps {
		deps[i] = scanner.Dependency{
			Ecosystem: "npm",
			Name:      "pkg-" + strconv.Itoa(i),
			Version:   "1.0.0",
			Manifest:  "package.json",
		}
	}

	client := scanner.NewHTTPIntelClient(srv.Client(), srv.URL, logger.NewNop())
	results, err := client.Lookup(context.Background(), deps)
	require.NoError(t, err)

	require.Len(t, received, 2, "coordinates are batched")
	assert.Len(t, received[0], 100)
	assert.Len(t, received[1], 50)

	require.Len(t, results, 1, "only vulnerable coordinates are returned")
	assert.Equal(t, "CVE-2024-0001", results[deps[0].PURL()][0].ID)
}

func TestHTTPIntelClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := scanner.NewHTTPIntelClient(srv.Client(), srv.URL, logger.NewNop())
	_, err := client.Lookup(context.Background(), []scanner.Dependency{
		{Ecosystem: "npm", Name: "lodash", Version: "4.17.20"},
	})
	assert.Error(t, err)
}
