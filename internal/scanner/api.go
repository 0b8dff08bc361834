package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/logger"
)

// APIScannerName is the registered name of the API scanner.
const APIScannerName = "api_scanner"

var (
	weakTokens = []string{"test", "admin", "123456", "token"}

	idorSuffixes = []string{"1", "2", "999", "admin"}

	apiVersionPrefixes = []string{"/v1/", "/v2/", "/api/v1/", "/api/v2/"}

	injectionProbes = []struct {
		name    string
		payload string
	}{
		{"xss", `<script>alert(1)</script>`},
		{"sqli", `' OR '1'='1`},
		{"xxe", `<?xml version="1.0"?><!DOCTYPE foo [<!ENTITY xxe SYSTEM "file:///etc/passwd">]>`},
		{"overflow", strings.Repeat("A", 10000)},
	}

	verboseErrorMarkers = []string{
		"stacktrace", "traceback", "exception", "file path",
		"database", "sql", "connection string",
	}

	sensitiveJSONKeys = []string{
		"password", "secret", "token", "api_key",
		"ssn", "credit_card", "private_key",
	}
)

// APIConfig bounds the API scanner's probing behavior.
type APIConfig struct {
	// BurstSize is the number of concurrent requests sent by the rate
	// limit check.
	BurstSize int
	// SaturationThreshold is the success ratio at or above which the
	// target is judged to have no effective rate limiting.
	SaturationThreshold float64
}

// DefaultAPIConfig returns the production defaults.
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		BurstSize:           100,
		SaturationThreshold: 0.95,
	}
}

// APIScanner probes a REST endpoint for authentication, authorization and
// input handling weaknesses, mapped to the OWASP API Security Top 10.
type APIScanner struct {
	client *http.Client
	cfg    APIConfig
	log    *logger.Logger
}

// NewAPIScanner creates an API scanner. The client's timeout bounds each
// probe.
func NewAPIScanner(client *http.Client, cfg APIConfig, log *logger.Logger) *APIScanner {
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = DefaultAPIConfig().BurstSize
	}
	if cfg.SaturationThreshold <= 0 || cfg.SaturationThreshold > 1 {
		cfg.SaturationThreshold = DefaultAPIConfig().SaturationThreshold
	}
	return &APIScanner{client: client, cfg: cfg, log: log}
}

// Name implements Plugin.
func (a *APIScanner) Name() string { return APIScannerName }

// Initialize implements Plugin.
func (a *APIScanner) Initialize(_ context.Context) error { return nil }

// Cleanup implements Plugin.
func (a *APIScanner) Cleanup() error {
	a.client.CloseIdleConnections()
	return nil
}

// ValidateTarget implements Plugin.
func (a *APIScanner) ValidateTarget(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Scan implements Plugin.
func (a *APIScanner) Scan(ctx context.Context, req Request) (*Result, error) {
	log := a.log.With("scanner", a.Name(), "scan_id", req.ScanID.String(), "target", req.Target)
	log.Info("starting api scan")

	var findings []Finding
	checks := []func(context.Context, string) []Finding{
		a.checkAuthentication,
		a.checkWeakTokens,
		a.checkObjectReferences,
		a.checkRateLimiting,
		a.checkInputValidation,
		a.checkDangerousMethods,
		a.checkVersionDisclosure,
		a.checkVerboseErrors,
		a.checkDataExposure,
	}
	for _, check := range checks {
		if err := ctx.Err(); err != nil {
			return &Result{Findings: findings, Metadata: a.metadata(req)}, err
		}
		findings = append(findings, check(ctx, req.Target)...)
	}

	log.Info("api scan finished", "findings", len(findings))
	return &Result{Findings: findings, Metadata: a.metadata(req)}, ctx.Err()
}

func (a *APIScanner) metadata(req Request) map[string]any {
	return map[string]any{"target": req.Target}
}

func (a *APIScanner) do(ctx context.Context, method, rawURL string, hdr http.Header, body io.Reader) (int, http.Header, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return 0, nil, "", err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return 0, nil, "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, resp.Header, "", err
	}
	return resp.StatusCode, resp.Header, string(raw), nil
}

func (a *APIScanner) checkAuthentication(ctx context.Context, target string) []Finding {
	status, _, _, err := a.do(ctx, http.MethodGet, target, nil, nil)
	if err != nil {
		a.log.WithError(err).Debug("authentication probe failed", "url", target)
		return nil
	}
	if status != http.StatusOK {
		return nil
	}
	return []Finding{{
		Scanner:     a.Name(),
		RuleID:      "api.missing-auth",
		Title:       "Missing Authentication",
		Description: "API endpoint accessible without authentication",
		Severity:    shared.SeverityHigh,
		URL:         target,
		OWASP:       "API2:2023 Broken Authentication",
		CWE:         "CWE-306",
		Remediation: "Require authentication for all API endpoints",
		References:  []string{"https://owasp.org/API-Security/editions/2023/en/0xa2-broken-authentication/"},
	}}
}

func (a *APIScanner) checkWeakTokens(ctx context.Context, target string) []Finding {
	var findings []Finding
	for _, token := range weakTokens {
		hdr := http.Header{"Authorization": []string{"Bearer " + token}}
		status, _, _, err := a.do(ctx, http.MethodGet, target, hdr, nil)
		if err != nil {
			a.log.WithError(err).Debug("weak token probe failed", "url", target)
			continue
		}
		if status == http.StatusOK {
			findings = append(findings, Finding{
				Scanner:     a.Name(),
				RuleID:      "api.weak-token",
				Title:       "Weak Bearer Token Accepted",
				Description: fmt.Sprintf("API accepts trivially guessable bearer token %q", token),
				Severity:    shared.SeverityCritical,
				URL:         target,
				Evidence:    "Token: " + token,
				OWASP:       "API2:2023 Broken Authentication",
				CWE:         "CWE-521",
				Remediation: "Use cryptographically strong, randomly generated tokens",
				References:  []string{"https://owasp.org/API-Security/editions/2023/en/0xa2-broken-authentication/"},
			})
		}
	}
	return findings
}

func (a *APIScanner) checkObjectReferences(ctx context.Context, target string) []Finding {
	var findings []Finding
	base := strings.TrimSuffix(target, "/")
	for _, suffix := range idorSuffixes {
		testURL := base + "/" + suffix
		status, _, _, err := a.do(ctx, http.MethodGet, testURL, nil, nil)
		if err != nil {
			a.log.WithError(err).Debug("idor probe failed", "url", testURL)
			continue
		}
		if status == http.StatusOK {
			findings = append(findings, Finding{
				Scanner:     a.Name(),
				RuleID:      "api.idor",
				Title:       "Potential Insecure Direct Object Reference",
				Description: fmt.Sprintf("Object accessible by direct identifier %q without authorization check", suffix),
				Severity:    shared.SeverityHigh,
				URL:         testURL,
				OWASP:       "API1:2023 Broken Object Level Authorization",
				CWE:         "CWE-639",
				Remediation: "Enforce object-level authorization on every access",
				References:  []string{"https://owasp.org/API-Security/editions/2023/en/0xa1-broken-object-level-authorization/"},
			})
		}
	}
	return findings
}

// checkRateLimiting fires the whole burst concurrently. If nearly all of
// the requests succeed the endpoint has no effective throttling; trickling
// them out would let a leaky-bucket limiter absorb the probe unnoticed.
func (a *APIScanner) checkRateLimiting(ctx context.Context, target string) []Finding {
	var successes atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < a.cfg.BurstSize; i++ {
		g.Go(func() error {
			status, _, _, err := a.do(gctx, http.MethodGet, target, nil, nil)
			if err == nil && status == http.StatusOK {
				successes.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.log.WithError(err).Debug("rate limit burst failed", "url", target)
		return nil
	}

	ratio := float64(successes.Load()) / float64(a.cfg.BurstSize)
	if ratio < a.cfg.SaturationThreshold {
		return nil
	}
	return []Finding{{
		Scanner:     a.Name(),
		RuleID:      "api.no-rate-limit",
		Title:       "No Rate Limiting Detected",
		Description: fmt.Sprintf("%d of %d burst requests succeeded, no throttling observed", successes.Load(), a.cfg.BurstSize),
		Severity:    shared.SeverityMedium,
		URL:         target,
		Evidence:    fmt.Sprintf("Success ratio: %.2f", ratio),
		OWASP:       "API4:2023 Unrestricted Resource Consumption",
		CWE:         "CWE-770",
		Remediation: "Implement rate limiting on API endpoints",
		References:  []string{"https://owasp.org/API-Security/editions/2023/en/0xa4-unrestricted-resource-consumption/"},
	}}
}

func (a *APIScanner) checkInputValidation(ctx context.Context, target string) []Finding {
	var findings []Finding
	for _, probe := range injectionProbes {
		testURL := fmt.Sprintf("%s?input=%s", target, url.QueryEscape(probe.payload))
		_, _, body, err := a.do(ctx, http.MethodGet, testURL, nil, nil)
		if err != nil {
			a.log.WithError(err).Debug("input validation probe failed", "url", target, "probe", probe.name)
			continue
		}
		if strings.Contains(body, probe.payload) {
			findings = append(findings, Finding{
				Scanner:     a.Name(),
				RuleID:      "api.input-validation." + probe.name,
				Title:       "Insufficient Input Validation",
				Description: fmt.Sprintf("Unsanitized %s payload reflected in API response", probe.name),
				Severity:    shared.SeverityHigh,
				URL:         target,
				Parameter:   "input",
				Evidence:    "Probe: " + probe.name,
				OWASP:       "API8:2023 Security Misconfiguration",
				CWE:         "CWE-20",
				Remediation: "Validate and sanitize all input before processing",
				References:  []string{"https://owasp.org/API-Security/editions/2023/en/0xa8-security-misconfiguration/"},
			})
		}
	}
	return findings
}

func (a *APIScanner) checkDangerousMethods(ctx context.Context, target string) []Finding {
	var findings []Finding
	for _, method := range []string{"TRACE", "TRACK"} {
		status, _, _, err := a.do(ctx, method, target, nil, nil)
		if err != nil {
			a.log.WithError(err).Debug("method probe failed", "url", target, "method", method)
			continue
		}
		if status == http.StatusOK {
			findings = append(findings, Finding{
				Scanner:     a.Name(),
				RuleID:      "api.dangerous-method." + strings.ToLower(method),
				Title:       fmt.Sprintf("Dangerous HTTP Method Enabled: %s", method),
				Description: fmt.Sprintf("HTTP %s method is enabled and may leak request details", method),
				Severity:    shared.SeverityMedium,
				URL:         target,
				OWASP:       "API8:2023 Security Misconfiguration",
				CWE:         "CWE-16",
				Remediation: fmt.Sprintf("Disable the %s method on the server", method),
				References:  []string{"https://owasp.org/API-Security/editions/2023/en/0xa8-security-misconfiguration/"},
			})
		}
	}
	return findings
}

func (a *APIScanner) checkVersionDisclosure(ctx context.Context, target string) []Finding {
	u, err := url.Parse(target)
	if err != nil {
		return nil
	}
	origin := u.Scheme + "://" + u.Host

	var findings []Finding
	for _, prefix := range apiVersionPrefixes {
		testURL := origin + prefix
		status, _, _, err := a.do(ctx, http.MethodGet, testURL, nil, nil)
		if err != nil {
			a.log.WithError(err).Debug("version probe failed", "url", testURL)
			continue
		}
		if status == http.StatusOK {
			findings = append(findings, Finding{
				Scanner:     a.Name(),
				RuleID:      "api.version-disclosure" + strings.TrimSuffix(prefix, "/"),
				Title:       "API Version Endpoint Exposed",
				Description: fmt.Sprintf("Versioned API path %s is reachable; old versions may lack current protections", prefix),
				Severity:    shared.SeverityMedium,
				URL:         testURL,
				OWASP:       "API9:2023 Improper Inventory Management",
				CWE:         "CWE-1059",
				Remediation: "Retire or restrict access to old API versions",
				References:  []string{"https://owasp.org/API-Security/editions/2023/en/0xa9-improper-inventory-management/"},
			})
		}
	}
	return findings
}

func (a *APIScanner) checkVerboseErrors(ctx context.Context, target string) []Finding {
	hdr := http.Header{"Content-Type": []string{"application/json"}}
	_, _, body, err := a.do(ctx, http.MethodPost, target, hdr, strings.NewReader(`{"malformed": `))
	if err != nil {
		a.log.WithError(err).Debug("verbose error probe failed", "url", target)
		return nil
	}

	lower := strings.ToLower(body)
	for _, marker := range verboseErrorMarkers {
		if strings.Contains(lower, marker) {
			return []Finding{{
				Scanner:     a.Name(),
				RuleID:      "api.verbose-errors",
				Title:       "Verbose Error Messages",
				Description: "Error response leaks internal details",
				Severity:    shared.SeverityMedium,
				URL:         target,
				Evidence:    "Marker: " + marker,
				OWASP:       "API8:2023 Security Misconfiguration",
				CWE:         "CWE-209",
				Remediation: "Return generic error messages and log details server-side",
				References:  []string{"https://owasp.org/API-Security/editions/2023/en/0xa8-security-misconfiguration/"},
			}}
		}
	}
	return nil
}

// checkDataExposure walks the response JSON for keys that suggest
// sensitive data is returned to unauthenticated callers.
func (a *APIScanner) checkDataExposure(ctx context.Context, target string) []Finding {
	_, _, body, err := a.do(ctx, http.MethodGet, target, nil, nil)
	if err != nil {
		a.log.WithError(err).Debug("data exposure probe failed", "url", target)
		return nil
	}

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil
	}

	var findings []Finding
	for _, key := range collectSensitiveKeys(doc) {
		findings = append(findings, Finding{
			Scanner:     a.Name(),
			RuleID:      "api.data-exposure." + key,
			Title:       "Sensitive Data in API Response",
			Description: fmt.Sprintf("Response contains field %q which suggests sensitive data exposure", key),
			Severity:    shared.SeverityHigh,
			URL:         target,
			Evidence:    "Field: " + key,
			OWASP:       "API3:2023 Broken Object Property Level Authorization",
			CWE:         "CWE-359",
			Remediation: "Filter sensitive fields from API responses",
			References:  []string{"https://owasp.org/API-Security/editions/2023/en/0xa3-broken-object-property-level-authorization/"},
		})
	}
	return findings
}

// collectSensitiveKeys recursively scans decoded JSON for sensitive key
// names. Each key name is reported once regardless of nesting.
func collectSensitiveKeys(doc any) []string {
	seen := map[string]bool{}
	var walk func(any)
	walk = func(node any) {
		switch v := node.(type) {
		case map[string]any:
			for k, child := range v {
				lower := strings.ToLower(k)
				for _, sensitive := range sensitiveJSONKeys {
					if strings.Contains(lower, sensitive) {
						seen[sensitive] = true
					}
				}
				walk(child)
			}
		case []any:
			for _, child := range v {
				walk(child)
			}
		}
	}
	walk(doc)

	keys := make([]string, 0, len(seen))
	for _, k := range sensitiveJSONKeys {
		if seen[k] {
			keys = append(keys, k)
		}
	}
	return keys
}
