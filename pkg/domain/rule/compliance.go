package rule

import "strings"

// FrameworkFine holds the statutory fine model of one compliance framework.
type FrameworkFine struct {
	Framework    string
	MaxFineUSD   float64
	PerRecordUSD float64
}

// frameworkFines is the built-in registry of statutory maximums. GDPR is the
// 20M EUR ceiling in USD; HIPAA uses the annual per-category cap.
var frameworkFines = map[string]FrameworkFine{
	"GDPR":    {Framework: "GDPR", MaxFineUSD: 25_000_000, PerRecordUSD: 5},
	"PCI-DSS": {Framework: "PCI-DSS", MaxFineUSD: 600_000, PerRecordUSD: 1},
	"HIPAA":   {Framework: "HIPAA", MaxFineUSD: 1_900_000, PerRecordUSD: 2},
	"CCPA":    {Framework: "CCPA", MaxFineUSD: 7_500_000, PerRecordUSD: 7.5},
}

// FineEstimate is the projected regulatory exposure under one framework.
type FineEstimate struct {
	Framework        string  `json:"framework"`
	MaxFineUSD       float64 `json:"max_fine_usd"`
	EstimatedFineUSD float64 `json:"estimated_fine_usd"`
}

// EstimateFine projects the fine for a breach of the given record count
// under one framework: records x per-record rate, capped at the statutory
// maximum. Unknown frameworks report a zero estimate rather than an error,
// so a tenant's custom framework tag does not break the summary.
func EstimateFine(framework string, records int64) FineEstimate {
	f, ok := frameworkFines[strings.ToUpper(framework)]
	if !ok {
		return FineEstimate{Framework: framework}
	}
	est := float64(records) * f.PerRecordUSD
	if est > f.MaxFineUSD {
		est = f.MaxFineUSD
	}
	return FineEstimate{
		Framework:        f.Framework,
		MaxFineUSD:       f.MaxFineUSD,
		EstimatedFineUSD: est,
	}
}

// EstimateFines projects fines across several frameworks for one breach.
func EstimateFines(frameworks []string, records int64) []FineEstimate {
	out := make([]FineEstimate, 0, len(frameworks))
	for _, fw := range frameworks {
		out = append(out, EstimateFine(fw, records))
	}
	return out
}
