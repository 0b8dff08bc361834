// Package metrics defines the Prometheus metrics exposed by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan metrics
var (
	// ScansStartedTotal tracks scans started by type
	ScansStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scans_started_total",
			Help: "Total number of scans started by type",
		},
		[]string{"tenant_id", "scan_type"},
	)

	// ScansCompletedTotal tracks finished scans by terminal status
	ScansCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scans_completed_total",
			Help: "Total number of scans finished by terminal status",
		},
		[]string{"tenant_id", "scan_type", "status"},
	)

	// ScanDuration tracks scan execution duration
	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_duration_seconds",
			Help:    "Scan execution duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"tenant_id", "scan_type"},
	)

	// ScanAdmissionRejectedTotal tracks scans refused by the concurrency limiter
	ScanAdmissionRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_admission_rejected_total",
			Help: "Total number of scans refused by the per-tenant concurrency limit",
		},
		[]string{"tenant_id"},
	)
)

// Finding metrics
var (
	// FindingsDetectedTotal tracks findings observed by severity
	FindingsDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "findings_detected_total",
			Help: "Total number of findings observed by scanner and severity",
		},
		[]string{"tenant_id", "scanner", "severity"},
	)

	// FindingsDedupedTotal tracks observations folded into existing findings
	FindingsDedupedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "findings_deduped_total",
			Help: "Total number of observations folded into an existing open finding",
		},
		[]string{"tenant_id", "scanner"},
	)
)

// Enforcement metrics
var (
	// GateDecisionsTotal tracks gate evaluations by outcome
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_decisions_total",
			Help: "Total number of release gate decisions by outcome",
		},
		[]string{"tenant_id", "outcome"},
	)

	// GateQuotaRefusalsTotal tracks gate runs refused by plan quotas
	GateQuotaRefusalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_quota_refusals_total",
			Help: "Total number of gate runs refused because the plan quota was exhausted",
		},
		[]string{"tenant_id"},
	)
)

// Evidence metrics
var (
	// EvidenceAppendsTotal tracks ledger appends by evidence type
	EvidenceAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evidence_appends_total",
			Help: "Total number of evidence ledger appends by type",
		},
		[]string{"tenant_id", "evidence_type"},
	)

	// EvidenceVerificationsTotal tracks hash verifications by result
	EvidenceVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evidence_verifications_total",
			Help: "Total number of evidence hash verifications by result",
		},
		[]string{"tenant_id", "result"},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal tracks HTTP requests by method, path and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)
