package epcis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"epcis-ingestion/internal/models"
)

// ParseError indicates a structurally unrecognizable document. Individual
// malformed fields inside an otherwise well-formed document do not raise it.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse epcis document: %s", e.Reason)
}

// Event is one canonical in-memory event produced by Parse, before it is
// assigned an owner and persisted.
type Event struct {
	Type              string
	EventTime         time.Time
	Action            string
	BizStep           string
	Disposition       string
	ReadPoint         string
	BizLocation       string
	EPCList           []string
	QuantityList      []models.QuantityElement
	SourceList        []models.SourceDest
	DestinationList   []models.SourceDest
	SensorElementList json.RawMessage
	ILMD              json.RawMessage
	Raw               json.RawMessage
}

// Document is the canonical result of parsing one submitted document.
type Document struct {
	Type   string
	Events []Event
}

// Parse turns a raw EPCIS 2.0 document into a canonical event list. JSON
// documents ({type, epcisBody:{eventList:[...]}} or a bare event array) are
// decoded field-by-field; XML input gets a best-effort <ObjectEvent>
// extraction. Anything else is a *ParseError. Parse has no side effects.
func Parse(raw string) (Document, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Document{}, &ParseError{Reason: "empty document"}
	}
	switch trimmed[0] {
	case '{', '[':
		return parseJSON(trimmed)
	case '<':
		return parseXML(trimmed)
	default:
		return Document{}, &ParseError{Reason: "document is neither JSON nor XML"}
	}
}

type jsonDocument struct {
	Type      string `json:"type"`
	EPCISBody struct {
		EventList []json.RawMessage `json:"eventList"`
	} `json:"epcisBody"`
}

func parseJSON(raw string) (Document, error) {
	var events []json.RawMessage
	doc := Document{Type: "EPCISDocument"}

	if raw[0] == '[' {
		if err := json.Unmarshal([]byte(raw), &events); err != nil {
			return Document{}, &ParseError{Reason: fmt.Sprintf("malformed JSON event array: %v", err)}
		}
	} else {
		var jd jsonDocument
		if err := json.Unmarshal([]byte(raw), &jd); err != nil {
			return Document{}, &ParseError{Reason: fmt.Sprintf("malformed JSON document: %v", err)}
		}
		if jd.Type != "" {
			doc.Type = jd.Type
		}
		events = jd.EPCISBody.EventList
	}

	doc.Events = make([]Event, 0, len(events))
	for _, rawEvent := range events {
		doc.Events = append(doc.Events, decodeEvent(rawEvent))
	}
	return doc, nil
}

// decodeEvent pulls known fields out of a loosely shaped event object. Any
// field with an unexpected shape is dropped, never fatal.
func decodeEvent(raw json.RawMessage) Event {
	ev := Event{
		Type:      models.EventTypeObject,
		EventTime: time.Now().UTC(),
		Raw:       raw,
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ev
	}

	if t := stringField(fields["type"]); t != "" {
		ev.Type = t
	}
	if ts := stringField(fields["eventTime"]); ts != "" {
		if parsed, ok := parseEventTime(ts); ok {
			ev.EventTime = parsed
		}
	}
	ev.Action = stringField(fields["action"])
	ev.BizStep = stringField(fields["bizStep"])
	ev.Disposition = stringField(fields["disposition"])
	ev.ReadPoint = locationField(fields["readPoint"])
	ev.BizLocation = locationField(fields["bizLocation"])
	ev.EPCList = stringListField(fields["epcList"])
	ev.QuantityList = quantityListField(fields["quantityList"])
	ev.SourceList = sourceDestField(fields["sourceList"], "source")
	ev.DestinationList = sourceDestField(fields["destinationList"], "destination")
	ev.SensorElementList = fields["sensorElementList"]
	ev.ILMD = fields["ilmd"]
	return ev
}

func stringField(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// locationField accepts both the EPCIS object form {"id": "urn:..."} and a
// bare string, which some producers emit.
func locationField(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	if s := stringField(raw); s != "" {
		return s
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	return obj.ID
}

func stringListField(raw json.RawMessage) []string {
	if raw == nil {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if s := stringField(e); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func quantityListField(raw json.RawMessage) []models.QuantityElement {
	if raw == nil {
		return nil
	}
	var entries []struct {
		EPCClass string   `json:"epcClass"`
		Quantity *float64 `json:"quantity"`
		UOM      string   `json:"uom"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	out := make([]models.QuantityElement, 0, len(entries))
	for _, e := range entries {
		qe := models.QuantityElement{EPCClass: e.EPCClass, UOM: e.UOM}
		if e.Quantity != nil {
			qe.Quantity = *e.Quantity
		}
		out = append(out, qe)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// sourceDestField decodes sourceList/destinationList entries; valueKey is
// "source" or "destination" per the EPCIS field naming.
func sourceDestField(raw json.RawMessage, valueKey string) []models.SourceDest {
	if raw == nil {
		return nil
	}
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	out := make([]models.SourceDest, 0, len(entries))
	for _, e := range entries {
		value := stringField(e[valueKey])
		if value == "" {
			continue
		}
		out = append(out, models.SourceDest{
			Type:  stringField(e["type"]),
			Value: value,
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

var eventTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseEventTime(value string) (time.Time, bool) {
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Only <ObjectEvent> blocks are extracted from XML input; other event types
// in XML form are a documented limitation of the reduced dialect.
var (
	objectEventRE = regexp.MustCompile(`(?s)<ObjectEvent>(.*?)</ObjectEvent>`)
	xmlTagRE      = map[string]*regexp.Regexp{
		"eventTime": regexp.MustCompile(`(?s)<eventTime>\s*(.*?)\s*</eventTime>`),
		"action":    regexp.MustCompile(`(?s)<action>\s*(.*?)\s*</action>`),
		"bizStep":   regexp.MustCompile(`(?s)<bizStep>\s*(.*?)\s*</bizStep>`),
	}
)

func parseXML(raw string) (Document, error) {
	blocks := objectEventRE.FindAllStringSubmatch(raw, -1)
	doc := Document{Type: "EPCISDocument", Events: make([]Event, 0, len(blocks))}
	for _, block := range blocks {
		body := block[1]
		ev := Event{
			Type:      models.EventTypeObject,
			EventTime: time.Now().UTC(),
			Action:    xmlTag(body, "action"),
			BizStep:   xmlTag(body, "bizStep"),
		}
		if ts := xmlTag(body, "eventTime"); ts != "" {
			if parsed, ok := parseEventTime(ts); ok {
				ev.EventTime = parsed
			}
		}
		// The raw column is JSONB, so the XML block is stored as a JSON string.
		if encoded, err := json.Marshal(block[0]); err == nil {
			ev.Raw = encoded
		}
		doc.Events = append(doc.Events, ev)
	}
	return doc, nil
}

func xmlTag(body, tag string) string {
	m := xmlTagRE[tag].FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return m[1]
}
