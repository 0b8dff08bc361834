package scanner_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgescan/api/internal/scanner"
	"github.com/forgescan/api/pkg/domain/shared"
	"github.com/forgescan/api/pkg/logger"
)

func newAPIScanner(t *testing.T) *scanner.APIScanner {
	t.Helper()
	return scanner.NewAPIScanner(&http.Client{}, scanner.DefaultAPIConfig(), logger.NewNop())
}

func apiRequest(target string) scanner.Request {
	return scanner.Request{
		ScanID:   shared.NewID(),
		TenantID: shared.NewID(),
		Target:   target,
	}
}

func TestAPIScanner_ValidateTarget(t *testing.T) {
	as := newAPIScanner(t)

	assert.True(t, as.ValidateTarget("https://api.example.com/users"))
	assert.False(t, as.ValidateTarget("api.example.com"))
	assert.False(t, as.ValidateTarget(""))
}

func TestAPIScanner_MissingAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/users" {
			fmt.Fprint(w, `[]`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	as := newAPIScanner(t)
	result, err := as.Scan(context.Background(), apiRequest(srv.URL+"/users"))
	require.NoError(t, err)

	auth := findingsByRule(result.Findings, "api.missing-auth")
	require.Len(t, auth, 1)
	assert.Equal(t, shared.SeverityHigh, auth[0].Severity)
	assert.Equal(t, "CWE-306", auth[0].CWE)
}

func TestAPIScanner_WeakTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "Bearer admin" || auth == "Bearer 123456" {
			fmt.Fprint(w, `{"ok":true}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	as := newAPIScanner(t)
	result, err := as.Scan(context.Background(), apiRequest(srv.URL))
	require.NoError(t, err)

	weak := findingsByRule(result.Findings, "api.weak-token")
	require.Len(t, weak, 2)
	for _, f := range weak {
		assert.Equal(t, shared.SeverityCritical, f.Severity)
		assert.Equal(t, "CWE-521", f.CWE)
	}
	// Properly rejected tokens mean no unauthenticated access finding.
	assert.Empty(t, findingsByRule(result.Findings, "api.missing-auth"))
}

func TestAPIScanner_ObjectReferences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users/999" {
			fmt.Fprint(w, `{"id":999}`)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	as := newAPIScanner(t)
	result, err := as.Scan(context.Background(), apiRequest(srv.URL+"/users"))
	require.NoError(t, err)

	idor := findingsByRule(result.Findings, "api.idor")
	require.Len(t, idor, 1)
	assert.Contains(t, idor[0].URL, "/users/999")
	assert.Equal(t, "CWE-639", idor[0].CWE)
}

func TestAPIScanner_RateLimiting(t *testing.T) {
	// Pre-burst probes: 1 auth + 4 tokens + 4 object references.
	const preBurst = 9

	run := func(t *testing.T, allowDuringBurst int64) []scanner.Finding {
		t.Helper()
		var served atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if served.Add(1) > preBurst+allowDuringBurst {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			fmt.Fprint(w, "ok")
		}))
		defer srv.Close()

		as := newAPIScanner(t)
		result, err := as.Scan(context.Background(), apiRequest(srv.URL))
		require.NoError(t, err)
		return result.Findings
	}

	t.Run("96 of 100 succeeding means no effective limit", func(t *testing.T) {
		findings := run(t, 96)
		limit := findingsByRule(findings, "api.no-rate-limit")
		require.Len(t, limit, 1)
		assert.Equal(t, shared.SeverityMedium, limit[0].Severity)
		assert.Equal(t, "CWE-770", limit[0].CWE)
	})

	t.Run("80 of 100 succeeding means limiting works", func(t *testing.T) {
		findings := run(t, 80)
		assert.Empty(t, findingsByRule(findings, "api.no-rate-limit"))
	})
}

func TestAPIScanner_RateLimitBurstIsConcurrent(t *testing.T) {
	// Pre-burst probes: 1 auth + 4 tokens + 4 object references.
	const preBurst = 9
	const burst = 32

	// Burst requests park until the entire burst is in flight, so this only
	// succeeds when all BurstSize requests are issued concurrently. Any
	// internal cap below the burst size would strand the barrier.
	var served, inBurst atomic.Int64
	allInFlight := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if served.Add(1) <= preBurst {
			fmt.Fprint(w, "ok")
			return
		}
		if inBurst.Add(1) == burst {
			close(allInFlight)
		}
		select {
		case <-allInFlight:
			fmt.Fprint(w, "ok")
		case <-time.After(5 * time.Second):
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	cfg := scanner.DefaultAPIConfig()
	cfg.BurstSize = burst
	as := scanner.NewAPIScanner(&http.Client{}, cfg, logger.NewNop())

	result, err := as.Scan(context.Background(), apiRequest(srv.URL))
	require.NoError(t, err)
	require.Len(t, findingsByRule(result.Findings, "api.no-rate-limit"), 1)
}

func TestAPIScanner_InputValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Echoes the input parameter without sanitization.
		fmt.Fprintf(w, `{"echo":%q}`, r.URL.Query().Get("input"))
	}))
	defer srv.Close()

	as := newAPIScanner(t)
	result, err := as.Scan(context.Background(), apiRequest(srv.URL))
	require.NoError(t, err)

	// The overflow payload survives JSON quoting verbatim.
	overflow := findingsByRule(result.Findings, "api.input-validation.overflow")
	require.Len(t, overflow, 1)
	assert.Equal(t, shared.SeverityHigh, overflow[0].Severity)
	assert.Equal(t, "CWE-20", overflow[0].CWE)
}

func TestAPIScanner_DangerousMethods(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "TRACE" {
			fmt.Fprint(w, "TRACE / HTTP/1.1")
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	as := newAPIScanner(t)
	result, err := as.Scan(context.Background(), apiRequest(srv.URL))
	require.NoError(t, err)

	require.Len(t, findingsByRule(result.Findings, "api.dangerous-method.trace"), 1)
	assert.Empty(t, findingsByRule(result.Findings, "api.dangerous-method.track"))
}

func TestAPIScanner_VersionDisclosure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"version":"1"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	as := newAPIScanner(t)
	result, err := as.Scan(context.Background(), apiRequest(srv.URL+"/missing"))
	require.NoError(t, err)

	versions := findingsByRule(result.Findings, "api.version-disclosure/api/v1")
	require.Len(t, versions, 1)
	assert.Equal(t, "CWE-1059", versions[0].CWE)
	assert.Empty(t, findingsByRule(result.Findings, "api.version-disclosure/v2"))
}

func TestAPIScanner_VerboseErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, "Traceback (most recent call last):\n  File \"app.py\", line 12")
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	as := newAPIScanner(t)
	result, err := as.Scan(context.Background(), apiRequest(srv.URL))
	require.NoError(t, err)

	verbose := findingsByRule(result.Findings, "api.verbose-errors")
	require.Len(t, verbose, 1)
	assert.Equal(t, "CWE-209", verbose[0].CWE)
}

func TestAPIScanner_DataExposure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"users":[{"name":"a","password":"hunter2","profile":{"api_key":"k-123"}}]}`)
	}))
	defer srv.Close()

	as := newAPIScanner(t)
	result, err := as.Scan(context.Background(), apiRequest(srv.URL))
	require.NoError(t, err)

	password := findingsByRule(result.Findings, "api.data-exposure.password")
	require.Len(t, password, 1, "nested keys reported once per key name")
	assert.Equal(t, shared.SeverityHigh, password[0].Severity)
	assert.Equal(t, "CWE-359", password[0].CWE)

	require.Len(t, findingsByRule(result.Findings, "api.data-exposure.api_key"), 1)
	assert.Empty(t, findingsByRule(result.Findings, "api.data-exposure.ssn"))
}

func TestAPIScanner_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	as := newAPIScanner(t)
	result, err := as.Scan(ctx, apiRequest(srv.URL))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result, "partial results survive cancellation")
	assert.True(t, strings.HasPrefix(srv.URL, "http://"))
}
