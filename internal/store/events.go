package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"epcis-ingestion/internal/models"
)

// InsertEvent appends one canonical event row. Events are immutable once
// stored; there is no update path.
func (s *Store) InsertEvent(ctx context.Context, ev models.CanonicalEvent) (models.CanonicalEvent, error) {
	ev.ID = uuid.New().String()
	ev.CreatedAt = time.Now().UTC()

	epcList, err := marshalNullable(ev.EPCList)
	if err != nil {
		return models.CanonicalEvent{}, fmt.Errorf("marshal epc list: %w", err)
	}
	quantityList, err := marshalNullable(ev.QuantityList)
	if err != nil {
		return models.CanonicalEvent{}, fmt.Errorf("marshal quantity list: %w", err)
	}
	sourceList, err := marshalNullable(ev.SourceList)
	if err != nil {
		return models.CanonicalEvent{}, fmt.Errorf("marshal source list: %w", err)
	}
	destinationList, err := marshalNullable(ev.DestinationList)
	if err != nil {
		return models.CanonicalEvent{}, fmt.Errorf("marshal destination list: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO epcis_events (id, owner_id, job_id, event_type, event_time, action, biz_step, disposition,
			read_point, biz_location, epc_list, quantity_list, source_list, destination_list,
			sensor_element_list, ilmd, raw_event, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, ev.ID, ev.OwnerID, ev.JobID, ev.Type, ev.EventTime, ev.Action, ev.BizStep, ev.Disposition,
		ev.ReadPoint, ev.BizLocation, epcList, quantityList, sourceList, destinationList,
		rawOrNil(ev.SensorElementList), rawOrNil(ev.ILMD), rawOrNil(ev.RawEvent), ev.CreatedAt)
	if err != nil {
		return models.CanonicalEvent{}, fmt.Errorf("insert event: %w", err)
	}
	return ev, nil
}

// CountEvents returns the owner's total stored event count.
func (s *Store) CountEvents(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM epcis_events WHERE owner_id = $1
	`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// CountTracedEvents counts events carrying a non-empty EPC list.
func (s *Store) CountTracedEvents(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM epcis_events
		WHERE owner_id = $1 AND epc_list IS NOT NULL AND jsonb_array_length(epc_list) > 0
	`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count traced events: %w", err)
	}
	return n, nil
}

func marshalNullable[T any](v []T) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

func rawOrNil(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
