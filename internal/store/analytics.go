package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"epcis-ingestion/internal/models"
)

// UpsertSnapshot replaces the owner's snapshot for the given metric date.
// Last write wins; concurrent recomputes are idempotent so that is safe.
func (s *Store) UpsertSnapshot(ctx context.Context, snap models.AnalyticsSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO analytics_snapshots (owner_id, metric_date, total_events, total_nodes, total_edges, high_risk_nodes, average_traceability_score, compliance_score, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (owner_id, metric_date) DO UPDATE SET
			total_events = EXCLUDED.total_events,
			total_nodes = EXCLUDED.total_nodes,
			total_edges = EXCLUDED.total_edges,
			high_risk_nodes = EXCLUDED.high_risk_nodes,
			average_traceability_score = EXCLUDED.average_traceability_score,
			compliance_score = EXCLUDED.compliance_score,
			last_updated = EXCLUDED.last_updated
	`, snap.OwnerID, snap.MetricDate, snap.TotalEvents, snap.TotalNodes, snap.TotalEdges,
		snap.HighRiskNodes, snap.AverageTraceabilityScore, snap.ComplianceScore, snap.LastUpdated)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the owner's most recent snapshot. The boolean is false
// when no snapshot has been computed yet.
func (s *Store) GetSnapshot(ctx context.Context, ownerID string) (models.AnalyticsSnapshot, bool, error) {
	var snap models.AnalyticsSnapshot
	err := s.pool.QueryRow(ctx, `
		SELECT owner_id, metric_date, total_events, total_nodes, total_edges, high_risk_nodes, average_traceability_score, compliance_score, last_updated
		FROM analytics_snapshots
		WHERE owner_id = $1
		ORDER BY metric_date DESC
		LIMIT 1
	`, ownerID).Scan(&snap.OwnerID, &snap.MetricDate, &snap.TotalEvents, &snap.TotalNodes, &snap.TotalEdges,
		&snap.HighRiskNodes, &snap.AverageTraceabilityScore, &snap.ComplianceScore, &snap.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AnalyticsSnapshot{}, false, nil
	}
	if err != nil {
		return models.AnalyticsSnapshot{}, false, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, true, nil
}
