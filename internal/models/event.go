package models

import (
	"encoding/json"
	"time"
)

// EPCIS event types recognised by the pipeline.
const (
	EventTypeObject         = "ObjectEvent"
	EventTypeAggregation    = "AggregationEvent"
	EventTypeTransaction    = "TransactionEvent"
	EventTypeTransformation = "TransformationEvent"
	EventTypeAssociation    = "AssociationEvent"
)

// QuantityElement is one entry of an EPCIS quantityList.
type QuantityElement struct {
	EPCClass string  `json:"epcClass"`
	Quantity float64 `json:"quantity"`
	UOM      string  `json:"uom,omitempty"`
}

// SourceDest is one entry of an EPCIS sourceList or destinationList.
// Value carries the source or destination identifier.
type SourceDest struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// CanonicalEvent is a persisted EPCIS event row. Rows are append-only;
// nothing in the pipeline mutates an event after insert.
type CanonicalEvent struct {
	ID                string            `json:"id"`
	OwnerID           string            `json:"owner_id"`
	JobID             *string           `json:"job_id,omitempty"`
	Type              string            `json:"type"`
	EventTime         time.Time         `json:"event_time"`
	Action            string            `json:"action,omitempty"`
	BizStep           string            `json:"biz_step,omitempty"`
	Disposition       string            `json:"disposition,omitempty"`
	ReadPoint         string            `json:"read_point,omitempty"`
	BizLocation       string            `json:"biz_location,omitempty"`
	EPCList           []string          `json:"epc_list,omitempty"`
	QuantityList      []QuantityElement `json:"quantity_list,omitempty"`
	SourceList        []SourceDest      `json:"source_list,omitempty"`
	DestinationList   []SourceDest      `json:"destination_list,omitempty"`
	SensorElementList json.RawMessage   `json:"sensor_element_list,omitempty"`
	ILMD              json.RawMessage   `json:"ilmd,omitempty"`
	RawEvent          json.RawMessage   `json:"raw_event,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}
