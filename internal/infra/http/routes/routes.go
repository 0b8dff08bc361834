// Package routes registers all HTTP routes for the API.
// Routes are organized by domain for maintainability.
package routes

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	infrahttp "github.com/forgescan/api/internal/infra/http"
	"github.com/forgescan/api/internal/infra/http/handler"
)

// Middleware is an alias to the http package's Middleware type.
type Middleware = infrahttp.Middleware

// Router is an alias to the http package's Router interface.
type Router = infrahttp.Router

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health      *handler.HealthHandler
	Scan        *handler.ScanHandler
	Finding     *handler.FindingHandler
	Asset       *handler.AssetHandler
	Remediation *handler.RemediationHandler
	Enforcement *handler.EnforcementHandler
	Evidence    *handler.EvidenceHandler
}

// RegisterAll registers every route on the router. Handlers left nil are
// skipped so partial wiring in tests stays possible.
func RegisterAll(router Router, h *Handlers) {
	if h.Health != nil {
		registerHealthRoutes(router, h.Health)
	}
	if h.Scan != nil {
		registerScanRoutes(router, h.Scan)
	}
	if h.Finding != nil {
		registerFindingRoutes(router, h.Finding)
	}
	if h.Asset != nil {
		registerAssetRoutes(router, h.Asset)
	}
	if h.Remediation != nil {
		registerRemediationRoutes(router, h.Remediation)
	}
	if h.Enforcement != nil {
		registerEnforcementRoutes(router, h.Enforcement)
	}
	if h.Evidence != nil {
		registerEvidenceRoutes(router, h.Evidence)
	}
}

// registerHealthRoutes registers health check and metrics endpoints.
func registerHealthRoutes(router Router, h *handler.HealthHandler) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})
}

// registerScanRoutes registers scan run endpoints.
func registerScanRoutes(router Router, h *handler.ScanHandler) {
	router.Group("/api/v1/scans", func(r Router) {
		r.POST("/", h.CreateScan)
		r.GET("/", h.ListScans)
		r.GET("/{id}", h.GetScan)
		r.POST("/{id}/cancel", h.CancelScan)
	})
}

// registerFindingRoutes registers finding endpoints.
func registerFindingRoutes(router Router, h *handler.FindingHandler) {
	router.Group("/api/v1/findings", func(r Router) {
		r.GET("/", h.ListFindings)
		r.GET("/{id}", h.GetFinding)
		r.PATCH("/{id}/status", h.UpdateStatus)
	})
}

// registerAssetRoutes registers business asset endpoints.
func registerAssetRoutes(router Router, h *handler.AssetHandler) {
	router.Group("/api/v1/assets", func(r Router) {
		r.POST("/", h.CreateAsset)
		r.GET("/", h.ListAssets)
		r.GET("/{id}", h.GetAsset)
		r.PUT("/{id}", h.UpdateAsset)
		r.DELETE("/{id}", h.DeleteAsset)
	})
}

// registerRemediationRoutes registers prioritized remediation endpoints.
func registerRemediationRoutes(router Router, h *handler.RemediationHandler) {
	router.Group("/api/v1/remediation", func(r Router) {
		r.GET("/plan", h.Plan)
		r.GET("/summary", h.Summary)
		r.POST("/estimate-fine", h.EstimateFine)
	})
}

// registerEnforcementRoutes registers release gate endpoints.
func registerEnforcementRoutes(router Router, h *handler.EnforcementHandler) {
	router.Group("/api/v1/enforcement", func(r Router) {
		r.GET("/gate", h.Gate)
		r.GET("/history", h.History)
		r.POST("/acknowledge", h.Acknowledge)
		r.GET("/quota", h.Quota)
	})
}

// registerEvidenceRoutes registers audit evidence ledger endpoints.
// Export and entity timeline routes precede the {id} routes so chi does
// not treat "export" or "entity" as a record ID.
func registerEvidenceRoutes(router Router, h *handler.EvidenceHandler) {
	router.Group("/api/v1/evidence", func(r Router) {
		r.POST("/", h.AppendEvidence)
		r.GET("/", h.ListEvidence)
		r.GET("/export/audit-trail", h.ExportAuditTrail)
		r.GET("/entity/{entity_id}", h.Timeline)
		r.GET("/{id}", h.GetEvidence)
		r.POST("/{id}/verify", h.VerifyEvidence)
	})
}
