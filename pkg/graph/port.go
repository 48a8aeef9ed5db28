// Package graph builds and maintains the knowledge graph: entity and
// relationship extraction, idempotent writes, derived-edge enrichment,
// and community lifecycle.
package graph

import "context"

// Port is the graph store access point. This package owns the query text;
// implementations own transport and transaction scoping.
type Port interface {
	ExecuteRead(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
	ExecuteWrite(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
}
