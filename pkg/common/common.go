package common

import "strings"

// EntityType is the coarse class of a canonical entity.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
)

// EntityTypes lists every valid EntityType in a fixed order.
var EntityTypes = []EntityType{EntityPerson, EntityOrganization, EntityLocation}

// ParseEntityType parses a (case-insensitive) type name. Common short
// forms such as "org", "place" and "per" are accepted.
func ParseEntityType(s string) (EntityType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "person", "per", "people", "individual":
		return EntityPerson, true
	case "organization", "organisation", "org", "company", "agency":
		return EntityOrganization, true
	case "location", "loc", "place", "gpe":
		return EntityLocation, true
	}
	return "", false
}

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityPerson, EntityOrganization, EntityLocation:
		return true
	}
	return false
}

// ConfidenceFlag marks how sure the engine is about an entity's type.
type ConfidenceFlag string

const (
	ConfidenceHigh ConfidenceFlag = "high"
	ConfidenceLow  ConfidenceFlag = "low"
)

// Provenance of an alias mapping entry.
type Provenance string

const (
	ProvenanceCurated      Provenance = "curated"
	ProvenanceOCRDetected  Provenance = "ocr-detected"
	ProvenanceAbbreviation Provenance = "abbreviation"
)

// MentionContext carries optional structured context for a mention, e.g.
// the flight it was listed on.
type MentionContext struct {
	EventID     string `json:"event_id,omitempty"`
	Date        string `json:"date,omitempty"`
	Route       string `json:"route,omitempty"`
	Role        string `json:"role,omitempty"`
	Description string `json:"description,omitempty"`
	TypeHint    string `json:"type_hint,omitempty"`
}

// RawMention is one surface-text occurrence of an entity in a source
// document, as produced by ingestion.
type RawMention struct {
	SurfaceText      string          `json:"surface_text" validate:"required"`
	SourceDocumentID string          `json:"source_document_id" validate:"required"`
	Context          *MentionContext `json:"context,omitempty"`
}

// EventKey returns the co-occurrence event the mention belongs to. An
// explicit context event id wins over the source document id.
func (m RawMention) EventKey() string {
	if m.Context != nil && strings.TrimSpace(m.Context.EventID) != "" {
		return strings.TrimSpace(m.Context.EventID)
	}
	return strings.TrimSpace(m.SourceDocumentID)
}

// AliasMapping maps one normalized variant to its canonical name. Mappings
// are single hop: Canonical is never itself a variant of another entry.
type AliasMapping struct {
	Variant    string     `json:"variant" yaml:"variant" validate:"required"`
	Canonical  string     `json:"canonical" yaml:"canonical" validate:"required"`
	Provenance Provenance `json:"provenance" yaml:"provenance"`
	EntityType EntityType `json:"entity_type,omitempty" yaml:"entity_type,omitempty"`
	Timestamp  string     `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// CanonicalEntity is the single authoritative record for one real-world
// person, organization or location.
type CanonicalEntity struct {
	ID              string            `json:"id"`
	GUID            string            `json:"guid"`
	CanonicalName   string            `json:"canonical_name"`
	EntityType      EntityType        `json:"entity_type"`
	Aliases         []string          `json:"aliases"`
	Sources         []string          `json:"sources"`
	FlightCount     int               `json:"flight_count"`
	ConnectionCount int               `json:"connection_count"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ConfidenceFlag  ConfidenceFlag    `json:"confidence_flag"`
}

// Connection is one entry of a node's strongest-connections list.
type Connection struct {
	ID            string `json:"id"`
	CanonicalName string `json:"canonical_name"`
	Weight        int    `json:"weight"`
}

// GraphNode is a canonical entity plus its computed analytics.
type GraphNode struct {
	CanonicalEntity
	DegreeCentrality      float64      `json:"degree_centrality"`
	BetweennessCentrality float64      `json:"betweenness_centrality"`
	ComponentID           int          `json:"component_id"`
	ComponentSize         int          `json:"component_size"`
	TopConnections        []Connection `json:"top_connections"`
}

// EdgeProvenance records why an edge exists.
type EdgeProvenance struct {
	Kind     string   `json:"kind"`
	EventIDs []string `json:"event_ids"`
}

// GraphEdge is an undirected weighted edge. SourceID sorts before TargetID.
type GraphEdge struct {
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Weight     int            `json:"weight"`
	Provenance EdgeProvenance `json:"provenance"`
}

// GraphSummary holds aggregate statistics of a graph.
type GraphSummary struct {
	NodeCount            int            `json:"node_count"`
	EdgeCount            int            `json:"edge_count"`
	TotalWeight          int            `json:"total_weight"`
	Density              float64        `json:"density"`
	ComponentCount       int            `json:"component_count"`
	LargestComponentSize int            `json:"largest_component_size"`
	MeanDegree           float64        `json:"mean_degree"`
	MaxDegree            int            `json:"max_degree"`
	TypeCounts           map[string]int `json:"type_counts"`
	// TopK is the length limit of every node's TopConnections.
	TopK int `json:"top_k,omitempty"`
}

// Graph is the relationship graph artifact.
type Graph struct {
	Nodes   []GraphNode  `json:"nodes"`
	Edges   []GraphEdge  `json:"edges"`
	Summary GraphSummary `json:"summary_stats"`
}

// Event is one co-occurrence event (e.g. a flight) listing canonical
// entity ids observed together.
type Event struct {
	ID           string   `json:"id" validate:"required"`
	Date         string   `json:"date,omitempty"`
	Route        string   `json:"route,omitempty"`
	Participants []string `json:"participants"`
}
