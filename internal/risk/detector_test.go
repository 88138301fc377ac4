package risk

import (
	"testing"
	"time"

	"epcis-ingestion/internal/epcis"
	"epcis-ingestion/internal/models"
)

var detectorNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func newTestDetector() *Detector {
	d := New(0)
	d.now = func() time.Time { return detectorNow }
	return d
}

func TestDetectCleanEvent(t *testing.T) {
	d := newTestDetector()
	risks := d.Detect(epcis.Event{
		EventTime: detectorNow.Add(-time.Hour),
		EPCList:   []string{"urn:epc:id:sgtin:1"},
		ReadPoint: "urn:gln:loc1",
	})
	if len(risks) != 0 {
		t.Fatalf("expected no risks, got %v", risks)
	}
}

func TestDetectMissingEPCAndLocation(t *testing.T) {
	d := newTestDetector()
	risks := d.Detect(epcis.Event{EventTime: detectorNow.Add(-time.Hour)})
	if len(risks) != 2 {
		t.Fatalf("expected 2 risks, got %d", len(risks))
	}
	// Rules fire in fixed order.
	if risks[0].RiskType != models.RiskTraceability || risks[0].Severity != models.SeverityHigh {
		t.Errorf("first risk = %s/%s", risks[0].RiskType, risks[0].Severity)
	}
	if risks[1].RiskType != models.RiskGeolocation || risks[1].Severity != models.SeverityMedium {
		t.Errorf("second risk = %s/%s", risks[1].RiskType, risks[1].Severity)
	}
}

func TestDetectStaleEvent(t *testing.T) {
	d := newTestDetector()
	risks := d.Detect(epcis.Event{
		EventTime: detectorNow.Add(-45 * 24 * time.Hour),
		EPCList:   []string{"urn:epc:id:sgtin:1"},
		ReadPoint: "urn:gln:loc1",
	})
	if len(risks) != 1 {
		t.Fatalf("expected 1 risk, got %d", len(risks))
	}
	if risks[0].RiskType != models.RiskTraceability || risks[0].Severity != models.SeverityLow {
		t.Errorf("risk = %s/%s", risks[0].RiskType, risks[0].Severity)
	}
}

func TestDetectEventAtWindowBoundary(t *testing.T) {
	d := newTestDetector()
	// Exactly 30 days is not "more than 30 days".
	risks := d.Detect(epcis.Event{
		EventTime: detectorNow.Add(-DefaultStaleWindow),
		EPCList:   []string{"urn:epc:id:sgtin:1"},
		ReadPoint: "urn:gln:loc1",
	})
	if len(risks) != 0 {
		t.Fatalf("expected no risks at boundary, got %v", risks)
	}
}

func TestDetectBizLocationSatisfiesGeolocation(t *testing.T) {
	d := newTestDetector()
	risks := d.Detect(epcis.Event{
		EventTime:   detectorNow.Add(-time.Hour),
		EPCList:     []string{"urn:epc:id:sgtin:1"},
		BizLocation: "urn:gln:factory",
	})
	if len(risks) != 0 {
		t.Fatalf("expected no risks, got %v", risks)
	}
}

func TestSeverityRankTotalOrder(t *testing.T) {
	ordered := []string{models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical}
	for i := 1; i < len(ordered); i++ {
		if models.SeverityRank(ordered[i-1]) >= models.SeverityRank(ordered[i]) {
			t.Errorf("rank(%s) should be < rank(%s)", ordered[i-1], ordered[i])
		}
	}
	if models.SeverityRank("bogus") >= models.SeverityRank(models.SeverityLow) {
		t.Error("unknown severity should rank below low")
	}
}
