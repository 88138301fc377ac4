package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"epcis-ingestion/internal/models"
)

// InsertRisk stores one detected compliance risk.
func (s *Store) InsertRisk(ctx context.Context, risk models.ComplianceRisk) (models.ComplianceRisk, error) {
	risk.ID = uuid.New().String()
	risk.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO compliance_risks (id, owner_id, event_id, node_id, risk_type, severity, description, recommended_action, is_resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9)
	`, risk.ID, risk.OwnerID, risk.EventID, risk.NodeID, risk.RiskType, risk.Severity, risk.Description, risk.RecommendedAction, risk.CreatedAt)
	if err != nil {
		return models.ComplianceRisk{}, fmt.Errorf("insert risk: %w", err)
	}
	return risk, nil
}

// ListOpenRisks returns the owner's unresolved risks, most severe first and
// newest first within a severity. Ordering happens before the limit so an
// old critical risk is never pushed out by newer low-severity ones.
func (s *Store) ListOpenRisks(ctx context.Context, ownerID string, limit int) ([]models.ComplianceRisk, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, event_id, node_id, risk_type, severity, description, recommended_action, is_resolved, resolved_at, created_at
		FROM compliance_risks
		WHERE owner_id = $1 AND NOT is_resolved
		ORDER BY CASE severity
			WHEN 'critical' THEN 4
			WHEN 'high' THEN 3
			WHEN 'medium' THEN 2
			WHEN 'low' THEN 1
			ELSE 0
		END DESC, created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list open risks: %w", err)
	}
	defer rows.Close()

	var risks []models.ComplianceRisk
	for rows.Next() {
		var r models.ComplianceRisk
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.EventID, &r.NodeID, &r.RiskType, &r.Severity,
			&r.Description, &r.RecommendedAction, &r.IsResolved, &r.ResolvedAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan risk: %w", err)
		}
		risks = append(risks, r)
	}
	return risks, rows.Err()
}

// ResolveRisk marks a risk resolved on behalf of the external compliance
// collaborator. Returns ErrNotFound when the owner has no such open risk.
func (s *Store) ResolveRisk(ctx context.Context, ownerID, riskID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE compliance_risks
		SET is_resolved = TRUE, resolved_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND NOT is_resolved
	`, riskID, ownerID)
	if err != nil {
		return fmt.Errorf("resolve risk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUnresolvedRisks feeds the compliance score penalty.
func (s *Store) CountUnresolvedRisks(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM compliance_risks WHERE owner_id = $1 AND NOT is_resolved
	`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unresolved risks: %w", err)
	}
	return n, nil
}
