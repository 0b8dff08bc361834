package scanner_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgescan/api/internal/scanner"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/logger"
)

func newWebScanner(t *testing.T) *scanner.WebScanner {
	t.Helper()
	cfg := scanner.DefaultWebConfig()
	cfg.RequestsPerSecond = 1000 // no pacing in tests
	return scanner.NewWebScanner(&http.Client{}, cfg, logger.NewNop())
}

func webRequest(target string, opts map[string]any) scanner.Request {
	return scanner.Request{
		ScanID:   shared.NewID(),
		TenantID: shared.NewID(),
		Target:   target,
		Options:  opts,
	}
}

func findingsByRule(findings []scanner.Finding, ruleID string) []scanner.Finding {
	var out []scanner.Finding
	for _, f := range findings {
		if f.RuleID == ruleID {
			out = append(out, f)
		}
	}
	return out
}

func TestWebScanner_ValidateTarget(t *testing.T) {
	ws := newWebScanner(t)

	assert.True(t, ws.ValidateTarget("http://example.com"))
	assert.True(t, ws.ValidateTarget("https://example.com/app"))
	assert.False(t, ws.ValidateTarget("ftp://example.com"))
	assert.False(t, ws.ValidateTarget("example.com"))
	assert.False(t, ws.ValidateTarget(""))
}

func TestWebScanner_TransportSecurity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ws := newWebScanner(t)
	result, err := ws.Scan(context.Background(), webRequest(srv.URL, nil))
	require.NoError(t, err)

	missing := findingsByRule(result.Findings, "web.missing-https")
	require.Len(t, missing, 1)
	assert.Equal(t, shared.SeverityHigh, missing[0].Severity)
	assert.Equal(t, "CWE-319", missing[0].CWE)
}

func TestWebScanner_SecurityHeaders(t *testing.T) {
	t.Run("all headers missing", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		ws := newWebScanner(t)
		result, err := ws.Scan(context.Background(), webRequest(srv.URL, nil))
		require.NoError(t, err)

		assert.Len(t, findingsByRule(result.Findings, "web.header.x-frame-options"), 1)
		assert.Len(t, findingsByRule(result.Findings, "web.header.x-content-type-options"), 1)
		assert.Len(t, findingsByRule(result.Findings, "web.header.strict-transport-security"), 1)
		assert.Len(t, findingsByRule(result.Findings, "web.header.content-security-policy"), 1)

		xss := findingsByRule(result.Findings, "web.header.x-xss-protection")
		require.Len(t, xss, 1)
		assert.Equal(t, shared.SeverityLow, xss[0].Severity)
		assert.Equal(t, "XSS Protection Header Missing", xss[0].Title)
	})

	t.Run("all headers present", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Strict-Transport-Security", "max-age=31536000")
			h.Set("Content-Security-Policy", "default-src 'self'")
			h.Set("X-XSS-Protection", "1; mode=block")
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		ws := newWebScanner(t)
		result, err := ws.Scan(context.Background(), webRequest(srv.URL, nil))
		require.NoError(t, err)

		for _, f := range result.Findings {
			assert.NotContains(t, f.RuleID, "web.header.", "unexpected header finding: %s", f.Title)
		}
	})
}

func TestWebScanner_ReflectedXSS(t *testing.T) {
	// Echoes the q parameter verbatim, the classic reflection bug.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><body>You searched for: %s</body></html>", r.URL.Query().Get("q"))
	}))
	defer srv.Close()

	ws := newWebScanner(t)
	result, err := ws.Scan(context.Background(), webRequest(srv.URL, nil))
	require.NoError(t, err)

	xss := findingsByRule(result.Findings, "web.xss.reflected")
	require.Len(t, xss, 1, "one finding per vulnerable parameter")
	assert.Equal(t, "q", xss[0].Parameter)
	assert.Equal(t, shared.SeverityHigh, xss[0].Severity)
	assert.Equal(t, "CWE-79", xss[0].CWE)
	assert.Equal(t, "A03:2021-Injection", xss[0].OWASP)
}

func TestWebScanner_SQLInjection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "" {
			fmt.Fprint(w, "You have an error in your SQL syntax; check the manual for your MySQL server version")
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	ws := newWebScanner(t)
	result, err := ws.Scan(context.Background(), webRequest(srv.URL, nil))
	require.NoError(t, err)

	sqli := findingsByRule(result.Findings, "web.sqli.error-based")
	require.Len(t, sqli, 1, "one finding per vulnerable parameter")
	assert.Equal(t, "id", sqli[0].Parameter)
	assert.Equal(t, shared.SeverityCritical, sqli[0].Severity)
	assert.Equal(t, "CWE-89", sqli[0].CWE)
}

func TestWebScanner_SensitiveFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.env":
			fmt.Fprint(w, "DB_PASSWORD=hunter2")
		case "/robots.txt":
			fmt.Fprint(w, "User-agent: *")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ws := newWebScanner(t)
	result, err := ws.Scan(context.Background(), webRequest(srv.URL, nil))
	require.NoError(t, err)

	env := findingsByRule(result.Findings, "web.sensitive-file/.env")
	require.Len(t, env, 1)
	assert.Equal(t, shared.SeverityCritical, env[0].Severity)

	robots := findingsByRule(result.Findings, "web.sensitive-file/robots.txt")
	require.Len(t, robots, 1)
	assert.Equal(t, shared.SeverityInfo, robots[0].Severity, "robots.txt is informational")

	assert.Empty(t, findingsByRule(result.Findings, "web.sensitive-file/.git/config"))
}

func TestWebScanner_DirectoryListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/backup" {
			fmt.Fprint(w, "<html><title>Index of /backup</title><a href=\"../\">Parent Directory</a></html>")
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ws := newWebScanner(t)
	result, err := ws.Scan(context.Background(), webRequest(srv.URL, nil))
	require.NoError(t, err)

	listing := findingsByRule(result.Findings, "web.dir-listing/backup")
	require.Len(t, listing, 1, "indicator match reported once per directory")
	assert.Equal(t, shared.SeverityMedium, listing[0].Severity)
	assert.Equal(t, "CWE-548", listing[0].CWE)
}

func TestWebScanner_CORS(t *testing.T) {
	t.Run("wildcard origin", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		ws := newWebScanner(t)
		result, err := ws.Scan(context.Background(), webRequest(srv.URL, nil))
		require.NoError(t, err)

		cors := findingsByRule(result.Findings, "web.cors.wildcard")
		require.Len(t, cors, 1)
		assert.Equal(t, shared.SeverityMedium, cors[0].Severity)
	})

	t.Run("reflected origin", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		ws := newWebScanner(t)
		result, err := ws.Scan(context.Background(), webRequest(srv.URL, nil))
		require.NoError(t, err)

		cors := findingsByRule(result.Findings, "web.cors.reflected-origin")
		require.Len(t, cors, 1)
		assert.Equal(t, shared.SeverityHigh, cors[0].Severity)
		assert.Equal(t, "CWE-942", cors[0].CWE)
	})
}

func TestWebScanner_DeepCrawl(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><a href="/page1">one</a><a href="https://elsewhere.invalid/x">external</a></html>`)
	})
	mux.HandleFunc("/page1", func(w http.ResponseWriter, r *http.Request) {
		// Reflection only reachable through the crawl.
		fmt.Fprintf(w, "<html>%s</html>", r.URL.Query().Get("q"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ws := newWebScanner(t)

	t.Run("crawl disabled by default", func(t *testing.T) {
		result, err := ws.Scan(context.Background(), webRequest(srv.URL, nil))
		require.NoError(t, err)
		assert.Empty(t, findingsByRule(result.Findings, "web.xss.reflected"))
		assert.Equal(t, 1, result.Metadata["pages_scanned"])
	})

	t.Run("crawl discovers same-origin pages", func(t *testing.T) {
		result, err := ws.Scan(context.Background(), webRequest(srv.URL, map[string]any{"deep_crawl": true}))
		require.NoError(t, err)

		xss := findingsByRule(result.Findings, "web.xss.reflected")
		require.Len(t, xss, 1)
		assert.Contains(t, xss[0].URL, "/page1")
		assert.GreaterOrEqual(t, result.Metadata["pages_scanned"].(int), 2)
	})
}

func TestWebScanner_CrawlResolvesRelativeToPage(t *testing.T) {
	// A relative href on /docs/guide must resolve to /docs/next, not to
	// /next off the crawl root.
	var docsNext, rootNext atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><a href="/docs/guide">docs</a></html>`)
	})
	mux.HandleFunc("/docs/guide", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><a href="next">next chapter</a></html>`)
	})
	mux.HandleFunc("/docs/next", func(w http.ResponseWriter, r *http.Request) {
		docsNext.Add(1)
		fmt.Fprint(w, `<html>chapter two</html>`)
	})
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) {
		rootNext.Add(1)
		fmt.Fprint(w, `<html>wrong page</html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ws := newWebScanner(t)
	_, err := ws.Scan(context.Background(), webRequest(srv.URL, map[string]any{"deep_crawl": true}))
	require.NoError(t, err)

	assert.Positive(t, docsNext.Load())
	assert.Zero(t, rootNext.Load())
}
