package graph

import (
	"context"
	"fmt"

	"epcis-ingestion/internal/epcis"
	"epcis-ingestion/internal/models"
)

// NodeStore is the storage surface the builder needs. Implemented by
// *store.Store.
type NodeStore interface {
	UpsertNode(ctx context.Context, node models.SupplyChainNode) (models.SupplyChainNode, bool, error)
}

// Builder discovers supply-chain nodes from event location and party fields.
// Edge derivation is intentionally not part of the event path; edges are
// created explicitly through the graph API.
type Builder struct {
	store NodeStore
}

func New(store NodeStore) *Builder {
	return &Builder{store: store}
}

// candidate pairs an identifier with the node type implied by the field it
// was harvested from.
type candidate struct {
	identifier string
	nodeType   string
}

// ExtractAndUpsert harvests node identifiers from one event and upserts each
// once. Within an event, duplicate identifiers collapse to a single
// candidate; when the same identifier appears under two roles, the
// last-harvested classification wins while the first-seen position is kept.
// Pre-existing nodes are never overwritten.
func (b *Builder) ExtractAndUpsert(ctx context.Context, ownerID string, ev epcis.Event) ([]models.SupplyChainNode, error) {
	candidates := harvest(ev)

	nodes := make([]models.SupplyChainNode, 0, len(candidates))
	for _, c := range candidates {
		node, _, err := b.store.UpsertNode(ctx, models.SupplyChainNode{
			OwnerID:    ownerID,
			Identifier: c.identifier,
			NodeType:   c.nodeType,
			Name:       c.identifier,
			RiskLevel:  models.RiskLevelLow,
		})
		if err != nil {
			return nodes, fmt.Errorf("upsert node %s: %w", c.identifier, err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// harvest walks the four identifier-bearing fields in fixed order: readPoint,
// bizLocation, sourceList, destinationList.
func harvest(ev epcis.Event) []candidate {
	var order []string
	types := make(map[string]string)

	add := func(identifier, nodeType string) {
		if identifier == "" {
			return
		}
		if _, seen := types[identifier]; !seen {
			order = append(order, identifier)
		}
		types[identifier] = nodeType
	}

	add(ev.ReadPoint, models.NodeTypeDistributor)
	add(ev.BizLocation, models.NodeTypeManufacturer)
	for _, src := range ev.SourceList {
		add(src.Value, models.NodeTypeSupplier)
	}
	for _, dst := range ev.DestinationList {
		add(dst.Value, models.NodeTypeRetailer)
	}

	out := make([]candidate, 0, len(order))
	for _, id := range order {
		out = append(out, candidate{identifier: id, nodeType: types[id]})
	}
	return out
}
