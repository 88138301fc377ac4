package models

import "time"

// Node types assigned by the graph builder based on which event field an
// identifier was harvested from.
const (
	NodeTypeSupplier     = "supplier"
	NodeTypeManufacturer = "manufacturer"
	NodeTypeDistributor  = "distributor"
	NodeTypeRetailer     = "retailer"
	NodeTypeRecycler     = "recycler"
)

// Node risk levels.
const (
	RiskLevelLow    = "low"
	RiskLevelMedium = "medium"
	RiskLevelHigh   = "high"
)

// SupplyChainNode is a deduplicated location or party discovered from event
// data. At most one row exists per (owner_id, identifier).
type SupplyChainNode struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Identifier string    `json:"identifier"`
	NodeType   string    `json:"node_type"`
	Name       string    `json:"name"`
	RiskLevel  string    `json:"risk_level"`
	CreatedAt  time.Time `json:"created_at"`
}

// Edge relationship types.
const (
	RelSupplies     = "supplies"
	RelManufactures = "manufactures"
	RelDistributes  = "distributes"
	RelRetails      = "retails"
)

// SupplyChainEdge links two nodes. Edges are created explicitly through the
// graph endpoint, never derived by the event path.
type SupplyChainEdge struct {
	ID                string    `json:"id"`
	OwnerID           string    `json:"owner_id"`
	FromNodeID        string    `json:"from_node_id"`
	ToNodeID          string    `json:"to_node_id"`
	RelationshipType  string    `json:"relationship_type"`
	ProductIdentifier *string   `json:"product_identifier,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
