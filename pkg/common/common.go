package common

import (
	"strings"
	"time"
)

// Document represents one uploaded file for a tenant. Uniqueness is
// enforced on (TenantID, ContentHash) so re-uploading identical bytes
// resolves to the existing record instead of creating a new one.
//
// A document moves through the ingestion state machine (see status.go);
// Status and ErrorMessage together are the only failure-reporting channel
// exposed to callers.
type Document struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenant_id"`
	Filename     string         `json:"filename"`
	ContentHash  string         `json:"content_hash"`
	ContentType  string         `json:"content_type"`
	StoragePath  string         `json:"storage_path"`
	Status       DocumentStatus `json:"status"`
	Domain       string         `json:"domain"`
	SourceType   string         `json:"source_type"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Chunk is a contiguous segment of a document's text, ordered by Index.
// Chunks are created during processing and destroyed with their document.
type Chunk struct {
	ID              string `json:"id"`
	DocumentID      string `json:"document_id"`
	Index           int    `json:"index"`
	Content         string `json:"content"`
	TokenCount      int    `json:"token_count"`
	EmbeddingStatus string `json:"embedding_status"`
}

// Entity represents a node in the knowledge graph. Identity within a
// tenant is the normalized name, so extraction variants like "neo4j " and
// "Neo4j" merge into one node.
type Entity struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Importance  float64 `json:"importance"`
}

// NewEntity builds an Entity with its name normalized to the canonical
// form used as the graph merge key: trimmed and upper-cased.
func NewEntity(name, entityType, description string, importance float64) Entity {
	return Entity{
		Name:        NormalizeEntityName(name),
		Type:        strings.ToUpper(strings.TrimSpace(entityType)),
		Description: strings.TrimSpace(description),
		Importance:  importance,
	}
}

// NormalizeEntityName returns the canonical merge key for an entity name.
func NormalizeEntityName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Relationship is a directed edge between two entities, referenced by
// their normalized names. Repeated extraction of the same
// (source, target, type) strengthens the edge rather than duplicating it.
type Relationship struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

// NewRelationship builds a Relationship with endpoint names normalized
// like entity names and the type normalized to UPPER_SNAKE_CASE.
func NewRelationship(source, target, relType, description string, weight float64) Relationship {
	return Relationship{
		Source:      NormalizeEntityName(source),
		Target:      NormalizeEntityName(target),
		Type:        NormalizeRelationType(relType),
		Description: strings.TrimSpace(description),
		Weight:      weight,
	}
}

// NormalizeRelationType upper-cases a relationship type and replaces
// spaces and hyphens with underscores.
func NormalizeRelationType(relType string) string {
	t := strings.ToUpper(strings.TrimSpace(relType))
	t = strings.ReplaceAll(t, " ", "_")
	t = strings.ReplaceAll(t, "-", "_")
	return t
}

// ExtractionResult holds the entities and relationships extracted from a
// single chunk of text. Results from multiple gleaning passes are merged
// by concatenation; deduplication happens at write time.
type ExtractionResult struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// Empty reports whether the result carries no entities and no relationships.
func (r ExtractionResult) Empty() bool {
	return len(r.Entities) == 0 && len(r.Relationships) == 0
}

// Merge appends another result's items onto this one.
func (r *ExtractionResult) Merge(other ExtractionResult) {
	r.Entities = append(r.Entities, other.Entities...)
	r.Relationships = append(r.Relationships, other.Relationships...)
}
