package models

import "time"

// Risk types emitted by the detector rules.
const (
	RiskTraceability  = "traceability"
	RiskGeolocation   = "geolocation"
	RiskDeforestation = "deforestation"
	RiskLabor         = "labor"
	RiskEnvironmental = "environmental"
	RiskCertification = "certification"
)

// Risk severities, ordered low < medium < high < critical.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// SeverityRank maps a severity to its position in the total order, so risks
// can be sorted. Unknown severities rank below low.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// ComplianceRisk is one detected rule violation tied to an event. Resolution
// happens outside the pipeline, via the resolve endpoint.
type ComplianceRisk struct {
	ID                string     `json:"id"`
	OwnerID           string     `json:"owner_id"`
	EventID           string     `json:"event_id"`
	NodeID            *string    `json:"node_id,omitempty"`
	RiskType          string     `json:"risk_type"`
	Severity          string     `json:"severity"`
	Description       string     `json:"description"`
	RecommendedAction string     `json:"recommended_action"`
	IsResolved        bool       `json:"is_resolved"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// AnalyticsSnapshot is the per-owner materialized view recomputed after each
// batch. One row per (owner_id, metric_date), upserted.
type AnalyticsSnapshot struct {
	OwnerID                  string    `json:"owner_id"`
	MetricDate               time.Time `json:"metric_date"`
	TotalEvents              int       `json:"total_events"`
	TotalNodes               int       `json:"total_nodes"`
	TotalEdges               int       `json:"total_edges"`
	HighRiskNodes            int       `json:"high_risk_nodes"`
	AverageTraceabilityScore float64   `json:"average_traceability_score"`
	ComplianceScore          float64   `json:"compliance_score"`
	LastUpdated              time.Time `json:"last_updated"`
}
