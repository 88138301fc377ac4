package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"epcis-ingestion/internal/models"
)

// UpsertNode inserts a node if no row exists for (owner_id, identifier).
// A pre-existing node is returned untouched; the boolean reports whether a
// new row was created. ON CONFLICT DO NOTHING makes the call idempotent
// without relying on swallowed errors.
func (s *Store) UpsertNode(ctx context.Context, node models.SupplyChainNode) (models.SupplyChainNode, bool, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	var insertedID string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO supply_chain_nodes (id, owner_id, identifier, node_type, name, risk_level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_id, identifier) DO NOTHING
		RETURNING id
	`, id, node.OwnerID, node.Identifier, node.NodeType, node.Name, node.RiskLevel, now).Scan(&insertedID)

	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := s.getNodeByIdentifier(ctx, node.OwnerID, node.Identifier)
		if err != nil {
			return models.SupplyChainNode{}, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return models.SupplyChainNode{}, false, fmt.Errorf("upsert node: %w", err)
	}

	node.ID = insertedID
	node.CreatedAt = now
	return node, true, nil
}

func (s *Store) getNodeByIdentifier(ctx context.Context, ownerID, identifier string) (models.SupplyChainNode, error) {
	var node models.SupplyChainNode
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, identifier, node_type, name, risk_level, created_at
		FROM supply_chain_nodes WHERE owner_id = $1 AND identifier = $2
	`, ownerID, identifier).Scan(&node.ID, &node.OwnerID, &node.Identifier, &node.NodeType, &node.Name, &node.RiskLevel, &node.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.SupplyChainNode{}, ErrNotFound
	}
	if err != nil {
		return models.SupplyChainNode{}, fmt.Errorf("get node: %w", err)
	}
	return node, nil
}

// ListNodes returns all of an owner's nodes.
func (s *Store) ListNodes(ctx context.Context, ownerID string) ([]models.SupplyChainNode, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, identifier, node_type, name, risk_level, created_at
		FROM supply_chain_nodes WHERE owner_id = $1 ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []models.SupplyChainNode
	for rows.Next() {
		var n models.SupplyChainNode
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Identifier, &n.NodeType, &n.Name, &n.RiskLevel, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// CountNodes returns the owner's node count.
func (s *Store) CountNodes(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM supply_chain_nodes WHERE owner_id = $1
	`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return n, nil
}

// CountHighRiskNodes counts nodes flagged high risk.
func (s *Store) CountHighRiskNodes(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM supply_chain_nodes WHERE owner_id = $1 AND risk_level = $2
	`, ownerID, models.RiskLevelHigh).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count high risk nodes: %w", err)
	}
	return n, nil
}

// CreateEdge inserts an edge between two existing nodes.
func (s *Store) CreateEdge(ctx context.Context, edge models.SupplyChainEdge) (models.SupplyChainEdge, error) {
	edge.ID = uuid.New().String()
	edge.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO supply_chain_edges (id, owner_id, from_node_id, to_node_id, relationship_type, product_identifier, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, edge.ID, edge.OwnerID, edge.FromNodeID, edge.ToNodeID, edge.RelationshipType, edge.ProductIdentifier, edge.CreatedAt)
	if err != nil {
		return models.SupplyChainEdge{}, fmt.Errorf("insert edge: %w", err)
	}
	return edge, nil
}

// CountEdges returns the owner's edge count.
func (s *Store) CountEdges(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM supply_chain_edges WHERE owner_id = $1
	`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count edges: %w", err)
	}
	return n, nil
}
