package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/forgescan/api/pkg/logger"
)

// intelBatchSize caps how many package coordinates go into a single
// intelligence request.
const intelBatchSize = 100

// Advisory is one known vulnerability affecting a package version.
type Advisory struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	CVSSScore   float64  `json:"cvssScore"`
	References  []string `json:"references,omitempty"`
}

// VulnIntel resolves package coordinates to known advisories. The result
// is keyed by package URL; packages with no advisories are absent.
type VulnIntel interface {
	Lookup(ctx context.Context, deps []Dependency) (map[string][]Advisory, error)
}

// HTTPIntelClient queries an OSS Index style component-report endpoint.
type HTTPIntelClient struct {
	client  *http.Client
	baseURL string
	log     *logger.Logger
}

// NewHTTPIntelClient creates an intelligence client against baseURL.
func NewHTTPIntelClient(client *http.Client, baseURL string, log *logger.Logger) *HTTPIntelClient {
	return &HTTPIntelClient{client: client, baseURL: baseURL, log: log}
}

type componentReportRequest struct {
	Coordinates []string `json:"coordinates"`
}

type componentReport struct {
	Coordinates     string     `json:"coordinates"`
	Vulnerabilities []Advisory `json:"vulnerabilities"`
}

// Lookup implements VulnIntel. Coordinates are sent in batches; a failed
// batch fails the whole lookup so a scan never silently under-reports.
func (c *HTTPIntelClient) Lookup(ctx context.Context, deps []Dependency) (map[string][]Advisory, error) {
	results := make(map[string][]Advisory)
	for start := 0; start < len(deps); start += intelBatchSize {
		end := min(start+intelBatchSize, len(deps))
		if err := c.lookupBatch(ctx, deps[start:end], results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (c *HTTPIntelClient) lookupBatch(ctx context.Context, deps []Dependency, results map[string][]Advisory) error {
	coordinates := make([]string, len(deps))
	for i, dep := range deps {
		coordinates[i] = dep.PURL()
	}

	payload, err := json.Marshal(componentReportRequest{Coordinates: coordinates})
	if err != nil {
		return fmt.Errorf("encode intel request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v3/component-report", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build intel request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("query vulnerability intel: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("vulnerability intel returned %d: %s", resp.StatusCode, string(body))
	}

	var reports []componentReport
	if err := json.NewDecoder(resp.Body).Decode(&reports); err != nil {
		return fmt.Errorf("decode intel response: %w", err)
	}

	for _, report := range reports {
		if len(report.Vulnerabilities) > 0 {
			results[report.Coordinates] = report.Vulnerabilities
		}
	}
	c.log.Debug("intel batch resolved", "coordinates", len(coordinates), "vulnerable", len(results))
	return nil
}
