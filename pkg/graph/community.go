package graph

import (
	"context"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// CommunityManager tracks community staleness and keeps every live
// entity attached to at least one community. Summarization itself is an
// external concern; this only maintains the membership and stale flags.
type CommunityManager struct {
	port Port
}

// NewCommunityManager builds a CommunityManager on the given graph port.
func NewCommunityManager(port Port) *CommunityManager {
	return &CommunityManager{port: port}
}

// MarkStaleByEntities flags every community containing any of the given
// entities as stale. Returns the number of communities marked.
func (m *CommunityManager) MarkStaleByEntities(ctx context.Context, entityIDs []string) (int, error) {
	if len(entityIDs) == 0 {
		return 0, nil
	}

	rows, err := m.port.ExecuteWrite(ctx, QueryMarkCommunitiesStale, map[string]any{
		"entity_ids": entityIDs,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to mark communities stale: %w", err)
	}

	if len(rows) == 1 {
		if marked, ok := rows[0]["marked"].(int64); ok {
			return int(marked), nil
		}
	}
	return 0, nil
}

// CleanupOrphans assigns every entity without a community to the
// tenant's catch-all community, so each live entity belongs to at least
// one community. Returns the number of entities reattached.
func (m *CommunityManager) CleanupOrphans(ctx context.Context, tenantID string) (int, error) {
	rows, err := m.port.ExecuteRead(ctx, QueryOrphanEntities, map[string]any{
		"tenant_id": tenantID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to find orphan entities: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	orphanIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["id"].(string); ok {
			orphanIDs = append(orphanIDs, id)
		}
	}

	communityID, err := gonanoid.New()
	if err != nil {
		return 0, fmt.Errorf("failed to generate community id: %w", err)
	}
	_, err = m.port.ExecuteWrite(ctx, QueryEnsureCatchAllCommunity, map[string]any{
		"tenant_id":    tenantID,
		"community_id": communityID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to ensure catch-all community: %w", err)
	}

	_, err = m.port.ExecuteWrite(ctx, QueryAssignOrphans, map[string]any{
		"tenant_id":  tenantID,
		"entity_ids": orphanIDs,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to assign orphan entities: %w", err)
	}
	return len(orphanIDs), nil
}
