package risk

import (
	"time"

	"epcis-ingestion/internal/epcis"
	"epcis-ingestion/internal/models"
)

// DefaultStaleWindow is how old an event may be before it counts as delayed
// reporting.
const DefaultStaleWindow = 30 * 24 * time.Hour

// Detector evaluates the fixed compliance rules against single events. It is
// pure: risks are returned, never stored.
type Detector struct {
	staleWindow time.Duration
	now         func() time.Time
}

func New(staleWindow time.Duration) *Detector {
	if staleWindow <= 0 {
		staleWindow = DefaultStaleWindow
	}
	return &Detector{staleWindow: staleWindow, now: time.Now}
}

// Detect runs all rules in fixed order and returns every match. The rules
// are independent; any subset may fire for one event. Owner, event id and
// storage are the caller's concern.
func (d *Detector) Detect(ev epcis.Event) []models.ComplianceRisk {
	var risks []models.ComplianceRisk

	if len(ev.EPCList) == 0 {
		risks = append(risks, models.ComplianceRisk{
			RiskType:          models.RiskTraceability,
			Severity:          models.SeverityHigh,
			Description:       "no EPC list — incomplete product traceability",
			RecommendedAction: "ensure each event carries the EPCs of the traced products",
		})
	}

	if ev.ReadPoint == "" && ev.BizLocation == "" {
		risks = append(risks, models.ComplianceRisk{
			RiskType:          models.RiskGeolocation,
			Severity:          models.SeverityMedium,
			Description:       "event lacks location information",
			RecommendedAction: "record a read point or business location for due-diligence geolocation",
		})
	}

	if d.now().Sub(ev.EventTime) > d.staleWindow {
		risks = append(risks, models.ComplianceRisk{
			RiskType:          models.RiskTraceability,
			Severity:          models.SeverityLow,
			Description:       "event is more than 30 days old — potential delayed reporting",
			RecommendedAction: "submit supply chain events closer to their occurrence",
		})
	}

	return risks
}
