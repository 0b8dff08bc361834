package scanner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/logger"
)

// WebScannerName is the registered name of the web scanner.
const WebScannerName = "web_scanner"

// Probe payload and wordlist tables. These mirror the checks the scanner
// runs; changing an entry changes fingerprints of the findings it produces.
var (
	xssPayloads = []string{
		`<script>alert('XSS')</script>`,
		`<img src=x onerror=alert('XSS')>`,
		`javascript:alert('XSS')`,
	}
	xssParams = []string{"q", "search", "query", "id", "page"}

	sqlPayloads = []string{
		`' OR '1'='1`,
		`1' OR '1'='1`,
		`admin'--`,
		`1 UNION SELECT NULL--`,
	}
	sqlParams = []string{"id", "user", "page", "search"}

	sqlErrorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)SQL syntax.*MySQL`),
		regexp.MustCompile(`(?i)Warning.*mysql_.*`),
		regexp.MustCompile(`(?i)valid MySQL result`),
		regexp.MustCompile(`(?i)MySqlClient\.`),
		regexp.MustCompile(`(?i)PostgreSQL.*ERROR`),
		regexp.MustCompile(`(?i)Warning.*pg_.*`),
		regexp.MustCompile(`(?i)valid PostgreSQL result`),
		regexp.MustCompile(`(?i)Npgsql\.`),
		regexp.MustCompile(`(?i)Driver.*SQL Server`),
		regexp.MustCompile(`(?i)OLE DB.*SQL Server`),
		regexp.MustCompile(`(?i)SQLServer JDBC Driver`),
		regexp.MustCompile(`(?i)Microsoft SQL Native Client error`),
	}

	commonDirs        = []string{"/admin", "/backup", "/config", "/uploads", "/images", "/css", "/js"}
	listingIndicators = []string{"index of", "parent directory", "[dir]"}

	sensitiveFiles = []string{
		"/.git/config",
		"/.env",
		"/backup.sql",
		"/database.sql",
		"/config.php.bak",
		"/web.config",
		"/.htaccess",
		"/phpinfo.php",
		"/robots.txt", // informative, not sensitive
	}
)

// securityHeaders lists the response headers the scanner expects, with the
// finding title and severity when absent.
var securityHeaders = []struct {
	header   string
	title    string
	severity shared.Severity
}{
	{"X-Frame-Options", "Clickjacking Protection Missing", shared.SeverityMedium},
	{"X-Content-Type-Options", "MIME Type Sniffing Prevention Missing", shared.SeverityMedium},
	{"Strict-Transport-Security", "HSTS Header Missing", shared.SeverityMedium},
	{"Content-Security-Policy", "Content Security Policy Missing", shared.SeverityMedium},
	{"X-XSS-Protection", "XSS Protection Header Missing", shared.SeverityLow},
}

// WebConfig bounds the web scanner's probing behavior.
type WebConfig struct {
	RequestsPerSecond float64
	CrawlMaxDepth     int
	CrawlMaxPages     int
}

// DefaultWebConfig returns the production defaults.
func DefaultWebConfig() WebConfig {
	return WebConfig{
		RequestsPerSecond: 10,
		CrawlMaxDepth:     2,
		CrawlMaxPages:     50,
	}
}

// WebScanner probes a website for OWASP-style weaknesses: transport
// security, response headers, reflected injection, exposed paths and CORS.
type WebScanner struct {
	client  *http.Client
	limiter *rate.Limiter
	cfg     WebConfig
	log     *logger.Logger
}

// NewWebScanner creates a web scanner. The client's timeout bounds each
// probe; the limiter paces probes so a scan cannot hammer the target.
// Redirects are never followed, so reflected payloads and exposed files
// are judged at the probed URL itself.
func NewWebScanner(client *http.Client, cfg WebConfig, log *logger.Logger) *WebScanner {
	probeClient := *client
	probeClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultWebConfig().RequestsPerSecond
	}
	if cfg.CrawlMaxDepth <= 0 {
		cfg.CrawlMaxDepth = DefaultWebConfig().CrawlMaxDepth
	}
	if cfg.CrawlMaxPages <= 0 {
		cfg.CrawlMaxPages = DefaultWebConfig().CrawlMaxPages
	}
	return &WebScanner{
		client:  &probeClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)),
		cfg:     cfg,
		log:     log,
	}
}

// Name implements Plugin.
func (w *WebScanner) Name() string { return WebScannerName }

// Initialize implements Plugin.
func (w *WebScanner) Initialize(_ context.Context) error { return nil }

// Cleanup implements Plugin. Idle connections are released; calling it
// twice is harmless.
func (w *WebScanner) Cleanup() error {
	w.client.CloseIdleConnections()
	return nil
}

// ValidateTarget implements Plugin. Web targets are absolute http(s) URLs.
func (w *WebScanner) ValidateTarget(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Scan implements Plugin.
func (w *WebScanner) Scan(ctx context.Context, req Request) (*Result, error) {
	log := w.log.With("scanner", w.Name(), "scan_id", req.ScanID.String(), "target", req.Target)
	log.Info("starting web scan")

	var findings []Finding
	pages := []string{req.Target}

	if req.BoolOption("deep_crawl", false) {
		crawled, err := w.crawl(ctx, req.Target)
		if err != nil {
			// A failed crawl degrades coverage, not the scan.
			log.WithError(err).Warn("crawl aborted")
		}
		pages = append(pages, crawled...)
	}

	findings = append(findings, w.checkTransportSecurity(req.Target)...)

	checks := []func(context.Context, string) []Finding{
		w.checkSecurityHeaders,
		w.checkXSS,
		w.checkSQLInjection,
	}
	for _, page := range pages {
		for _, check := range checks {
			if err := ctx.Err(); err != nil {
				return &Result{Findings: findings, Metadata: w.metadata(req, pages)}, err
			}
			findings = append(findings, check(ctx, page)...)
		}
	}

	findings = append(findings, w.checkDirectoryListing(ctx, req.Target)...)
	findings = append(findings, w.checkSensitiveFiles(ctx, req.Target)...)
	findings = append(findings, w.checkCORS(ctx, req.Target)...)

	log.Info("web scan finished", "findings", len(findings))
	return &Result{Findings: findings, Metadata: w.metadata(req, pages)}, ctx.Err()
}

func (w *WebScanner) metadata(req Request, pages []string) map[string]any {
	return map[string]any{
		"target":        req.Target,
		"pages_scanned": len(pages),
	}
}

// get performs one paced probe and returns status, headers and a bounded
// body. Redirect following is disabled so reflected payloads are read from
// the probed URL itself.
func (w *WebScanner) get(ctx context.Context, rawURL string, hdr http.Header) (int, http.Header, string, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return 0, nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, "", err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return 0, nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, resp.Header, "", err
	}
	return resp.StatusCode, resp.Header, string(body), nil
}

func (w *WebScanner) checkTransportSecurity(target string) []Finding {
	if strings.HasPrefix(target, "https://") {
		return nil
	}
	return []Finding{{
		Scanner:     w.Name(),
		RuleID:      "web.missing-https",
		Title:       "Missing HTTPS",
		Description: "Website is not using HTTPS encryption",
		Severity:    shared.SeverityHigh,
		URL:         target,
		OWASP:       "A02:2021-Cryptographic Failures",
		CWE:         "CWE-319",
		Remediation: "Implement HTTPS with a valid SSL/TLS certificate",
		References:  []string{"https://owasp.org/www-project-web-security-testing-guide/"},
	}}
}

func (w *WebScanner) checkSecurityHeaders(ctx context.Context, target string) []Finding {
	_, headers, _, err := w.get(ctx, target, nil)
	if err != nil {
		w.log.WithError(err).Debug("security header check failed", "url", target)
		return nil
	}

	var findings []Finding
	for _, h := range securityHeaders {
		if headers.Get(h.header) != "" {
			continue
		}
		findings = append(findings, Finding{
			Scanner:     w.Name(),
			RuleID:      "web.header." + strings.ToLower(h.header),
			Title:       h.title,
			Description: fmt.Sprintf("Missing security header: %s", h.header),
			Severity:    h.severity,
			URL:         target,
			OWASP:       "A05:2021-Security Misconfiguration",
			CWE:         "CWE-16",
			Remediation: fmt.Sprintf("Add %s header to HTTP responses", h.header),
			References:  []string{"https://owasp.org/www-project-secure-headers/"},
		})
	}
	return findings
}

func (w *WebScanner) checkXSS(ctx context.Context, target string) []Finding {
	var findings []Finding
	for _, param := range xssParams {
		for _, payload := range xssPayloads {
			testURL := fmt.Sprintf("%s?%s=%s", target, param, url.QueryEscape(payload))
			_, _, body, err := w.get(ctx, testURL, nil)
			if err != nil {
				w.log.WithError(err).Debug("xss probe failed", "url", testURL)
				continue
			}
			if strings.Contains(body, payload) {
				findings = append(findings, Finding{
					Scanner:     w.Name(),
					RuleID:      "web.xss.reflected",
					Title:       "Potential Cross-Site Scripting (XSS)",
					Description: "XSS payload reflected in response without proper encoding",
					Severity:    shared.SeverityHigh,
					URL:         testURL,
					Parameter:   param,
					Evidence:    "Payload: " + payload,
					OWASP:       "A03:2021-Injection",
					CWE:         "CWE-79",
					Remediation: "Implement proper input validation and output encoding",
					References:  []string{"https://owasp.org/www-community/attacks/xss/"},
				})
				break // found on this parameter, try the next one
			}
		}
	}
	return findings
}

func (w *WebScanner) checkSQLInjection(ctx context.Context, target string) []Finding {
	var findings []Finding
	for _, param := range sqlParams {
	payloads:
		for _, payload := range sqlPayloads {
			testURL := fmt.Sprintf("%s?%s=%s", target, param, url.QueryEscape(payload))
			_, _, body, err := w.get(ctx, testURL, nil)
			if err != nil {
				w.log.WithError(err).Debug("sqli probe failed", "url", testURL)
				continue
			}
			for _, pattern := range sqlErrorPatterns {
				if pattern.MatchString(body) {
					findings = append(findings, Finding{
						Scanner:     w.Name(),
						RuleID:      "web.sqli.error-based",
						Title:       "Potential SQL Injection",
						Description: "SQL error message detected, indicating possible SQL injection vulnerability",
						Severity:    shared.SeverityCritical,
						URL:         testURL,
						Parameter:   param,
						Evidence:    "Payload: " + payload,
						OWASP:       "A03:2021-Injection",
						CWE:         "CWE-89",
						Remediation: "Use parameterized queries or prepared statements",
						References:  []string{"https://owasp.org/www-community/attacks/SQL_Injection"},
					})
					break payloads
				}
			}
		}
	}
	return findings
}

func (w *WebScanner) checkDirectoryListing(ctx context.Context, target string) []Finding {
	var findings []Finding
	for _, dir := range commonDirs {
		testURL := joinPath(target, dir)
		_, _, body, err := w.get(ctx, testURL, nil)
		if err != nil {
			w.log.WithError(err).Debug("directory listing probe failed", "url", testURL)
			continue
		}
		lower := strings.ToLower(body)
		for _, indicator := range listingIndicators {
			if strings.Contains(lower, indicator) {
				findings = append(findings, Finding{
					Scanner:     w.Name(),
					RuleID:      "web.dir-listing" + dir,
					Title:       "Directory Listing Enabled",
					Description: fmt.Sprintf("Directory listing is enabled for %s", dir),
					Severity:    shared.SeverityMedium,
					URL:         testURL,
					OWASP:       "A05:2021-Security Misconfiguration",
					CWE:         "CWE-548",
					Remediation: "Disable directory listing in web server configuration",
					References:  []string{"https://owasp.org/www-community/vulnerabilities/Directory_Listing"},
				})
				break
			}
		}
	}
	return findings
}

func (w *WebScanner) checkSensitiveFiles(ctx context.Context, target string) []Finding {
	var findings []Finding
	for _, filePath := range sensitiveFiles {
		testURL := joinPath(target, filePath)
		status, _, _, err := w.get(ctx, testURL, nil)
		if err != nil {
			w.log.WithError(err).Debug("sensitive file probe failed", "url", testURL)
			continue
		}
		if status != http.StatusOK {
			continue
		}
		severity := shared.SeverityCritical
		if filePath == "/robots.txt" {
			severity = shared.SeverityInfo
		}
		findings = append(findings, Finding{
			Scanner:     w.Name(),
			RuleID:      "web.sensitive-file" + filePath,
			Title:       fmt.Sprintf("Sensitive File Exposed: %s", filePath),
			Description: "Sensitive file is publicly accessible",
			Severity:    severity,
			URL:         testURL,
			OWASP:       "A05:2021-Security Misconfiguration",
			CWE:         "CWE-538",
			Remediation: "Remove or restrict access to sensitive files",
			References:  []string{"https://owasp.org/www-project-web-security-testing-guide/"},
		})
	}
	return findings
}

func (w *WebScanner) checkCORS(ctx context.Context, target string) []Finding {
	const probeOrigin = "https://evil.com"
	hdr := http.Header{"Origin": []string{probeOrigin}}
	_, headers, _, err := w.get(ctx, target, hdr)
	if err != nil {
		w.log.WithError(err).Debug("cors probe failed", "url", target)
		return nil
	}

	allowOrigin := headers.Get("Access-Control-Allow-Origin")
	switch allowOrigin {
	case "*":
		return []Finding{{
			Scanner:     w.Name(),
			RuleID:      "web.cors.wildcard",
			Title:       "Overly Permissive CORS Policy",
			Description: "CORS policy allows any origin (*)",
			Severity:    shared.SeverityMedium,
			URL:         target,
			Evidence:    "Access-Control-Allow-Origin: " + allowOrigin,
			OWASP:       "A05:2021-Security Misconfiguration",
			CWE:         "CWE-942",
			Remediation: "Restrict CORS to specific trusted origins",
			References:  []string{"https://owasp.org/www-community/attacks/CORS_OriginHeaderScrutiny"},
		}}
	case probeOrigin:
		return []Finding{{
			Scanner:     w.Name(),
			RuleID:      "web.cors.reflected-origin",
			Title:       "CORS Reflects Arbitrary Origins",
			Description: "CORS policy reflects the Origin header without validation",
			Severity:    shared.SeverityHigh,
			URL:         target,
			Evidence:    "Access-Control-Allow-Origin: " + allowOrigin,
			OWASP:       "A05:2021-Security Misconfiguration",
			CWE:         "CWE-942",
			Remediation: "Implement proper origin validation for CORS",
			References:  []string{"https://owasp.org/www-community/attacks/CORS_OriginHeaderScrutiny"},
		}}
	}
	return nil
}

// crawl walks same-origin links breadth-first, bounded by depth and page
// count, and returns the discovered URLs (excluding the start page).
func (w *WebScanner) crawl(ctx context.Context, target string) ([]string, error) {
	base, err := url.Parse(target)
	if err != nil {
		return nil, err
	}

	type queued struct {
		url   string
		depth int
	}
	visited := map[string]bool{}
	var discovered []string
	queue := []queued{{target, 0}}

	for len(queue) > 0 && len(visited) < w.cfg.CrawlMaxPages {
		if err := ctx.Err(); err != nil {
			return discovered, err
		}
		current := queue[0]
		queue = queue[1:]
		if visited[current.url] || current.depth > w.cfg.CrawlMaxDepth {
			continue
		}
		visited[current.url] = true
		if current.url != target {
			discovered = append(discovered, current.url)
		}

		status, _, body, err := w.get(ctx, current.url, nil)
		if err != nil || status != http.StatusOK {
			continue
		}
		// Relative links resolve against the page they appear on, not the
		// crawl root.
		page, err := url.Parse(current.url)
		if err != nil {
			continue
		}
		for _, link := range extractLinks(body) {
			ref, err := url.Parse(link)
			if err != nil {
				continue
			}
			abs := page.ResolveReference(ref)
			if abs.Host != base.Host {
				continue
			}
			abs.Fragment = ""
			queue = append(queue, queued{abs.String(), current.depth + 1})
		}
	}
	return discovered, nil
}

// extractLinks pulls anchor hrefs out of an HTML document. Parse errors
// yield whatever was tokenized before the error.
func extractLinks(body string) []string {
	var links []string
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return links
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && attr.Val != "" {
					links = append(links, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

// joinPath appends a path to the target origin.
func joinPath(target, p string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target + p
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + p
	u.RawQuery = ""
	return u.String()
}
