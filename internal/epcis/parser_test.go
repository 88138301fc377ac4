package epcis

import (
	"errors"
	"testing"
	"time"

	"epcis-ingestion/internal/models"
)

func TestParseJSONDocument(t *testing.T) {
	raw := `{
		"type": "EPCISDocument",
		"epcisBody": {
			"eventList": [
				{
					"type": "ObjectEvent",
					"eventTime": "2026-08-01T10:00:00Z",
					"action": "ADD",
					"bizStep": "shipping",
					"disposition": "in_transit",
					"readPoint": {"id": "urn:epc:id:sgln:1234"},
					"bizLocation": "urn:epc:id:sgln:5678",
					"epcList": ["urn:epc:id:sgtin:1", "urn:epc:id:sgtin:2"],
					"sourceList": [{"type": "owning_party", "source": "urn:gln:src"}],
					"destinationList": [{"type": "owning_party", "destination": "urn:gln:dst"}],
					"quantityList": [{"epcClass": "urn:epc:class:lgtin:x", "quantity": 200, "uom": "KGM"}]
				},
				{
					"type": "AggregationEvent",
					"eventTime": "2026-08-02T11:30:00Z"
				}
			]
		}
	}`

	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(doc.Events))
	}

	ev := doc.Events[0]
	if ev.Type != models.EventTypeObject {
		t.Errorf("type = %q", ev.Type)
	}
	want := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	if !ev.EventTime.Equal(want) {
		t.Errorf("eventTime = %v, want %v", ev.EventTime, want)
	}
	if ev.Action != "ADD" || ev.BizStep != "shipping" || ev.Disposition != "in_transit" {
		t.Errorf("action/bizStep/disposition = %q/%q/%q", ev.Action, ev.BizStep, ev.Disposition)
	}
	// readPoint object form and bizLocation string form must both decode.
	if ev.ReadPoint != "urn:epc:id:sgln:1234" {
		t.Errorf("readPoint = %q", ev.ReadPoint)
	}
	if ev.BizLocation != "urn:epc:id:sgln:5678" {
		t.Errorf("bizLocation = %q", ev.BizLocation)
	}
	if len(ev.EPCList) != 2 {
		t.Errorf("epcList = %v", ev.EPCList)
	}
	if len(ev.SourceList) != 1 || ev.SourceList[0].Value != "urn:gln:src" {
		t.Errorf("sourceList = %v", ev.SourceList)
	}
	if len(ev.DestinationList) != 1 || ev.DestinationList[0].Value != "urn:gln:dst" {
		t.Errorf("destinationList = %v", ev.DestinationList)
	}
	if len(ev.QuantityList) != 1 || ev.QuantityList[0].Quantity != 200 {
		t.Errorf("quantityList = %v", ev.QuantityList)
	}
	if len(ev.Raw) == 0 {
		t.Error("raw event not preserved")
	}

	if doc.Events[1].Type != models.EventTypeAggregation {
		t.Errorf("second event type = %q", doc.Events[1].Type)
	}
	if doc.Events[1].EPCList != nil {
		t.Errorf("second event epcList = %v, want nil", doc.Events[1].EPCList)
	}
}

func TestParseJSONBareArray(t *testing.T) {
	doc, err := Parse(`[{"type":"ObjectEvent","eventTime":"2026-08-01T00:00:00Z"}]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(doc.Events))
	}
}

func TestParseJSONMalformedFields(t *testing.T) {
	// Odd field shapes are dropped, never fatal.
	doc, err := Parse(`{"epcisBody":{"eventList":[{"type":"ObjectEvent","epcList":"not-a-list","readPoint":42,"eventTime":"garbage"}]}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ev := doc.Events[0]
	if ev.EPCList != nil {
		t.Errorf("epcList = %v, want nil", ev.EPCList)
	}
	if ev.ReadPoint != "" {
		t.Errorf("readPoint = %q, want empty", ev.ReadPoint)
	}
	if ev.EventTime.IsZero() {
		t.Error("eventTime should default to now")
	}
}

func TestParseXMLObjectEvents(t *testing.T) {
	raw := `<EPCISDocument>
		<ObjectEvent>
			<eventTime>2026-08-01T10:00:00Z</eventTime>
			<action>OBSERVE</action>
			<bizStep>receiving</bizStep>
		</ObjectEvent>
		<ObjectEvent>
			<action>ADD</action>
		</ObjectEvent>
		<AggregationEvent>
			<eventTime>2026-08-01T10:00:00Z</eventTime>
		</AggregationEvent>
	</EPCISDocument>`

	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// Only ObjectEvent blocks are extracted from XML.
	if len(doc.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(doc.Events))
	}
	if doc.Events[0].Action != "OBSERVE" || doc.Events[0].BizStep != "receiving" {
		t.Errorf("first event = %+v", doc.Events[0])
	}
	want := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	if !doc.Events[0].EventTime.Equal(want) {
		t.Errorf("eventTime = %v", doc.Events[0].EventTime)
	}
	// Missing eventTime defaults to now.
	if doc.Events[1].EventTime.IsZero() {
		t.Error("second event has zero eventTime")
	}
	if doc.Events[1].Action != "ADD" {
		t.Errorf("second event action = %q", doc.Events[1].Action)
	}
}

func TestParseRejectsUnrecognizedInput(t *testing.T) {
	for _, raw := range []string{"not json or xml", "", "   "} {
		_, err := Parse(raw)
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("Parse(%q) error = %v, want *ParseError", raw, err)
		}
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse(`{"epcisBody": {`)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
}
