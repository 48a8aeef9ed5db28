package graph

// Cypher statements owned by this package. Node labels: Document, Chunk,
// Entity, Community. Edge types: HAS_CHUNK, MENTIONS, RELATED_TO,
// SIMILAR_TO, CO_OCCURS, IN_COMMUNITY.
//
// Entities merge on (tenant_id, name) and relationships on
// (source, target, type), so re-running a write never duplicates nodes
// or edges.

// QueryMergeDocumentGraph mirrors a document and its chunks into the
// graph as merge anchors for provenance edges.
const QueryMergeDocumentGraph = `
MERGE (d:Document {id: $document_id, tenant_id: $tenant_id})
SET d.filename = $filename
WITH d
UNWIND $chunks AS chunk
MERGE (c:Chunk {id: chunk.id})
SET c.index = chunk.index, c.tenant_id = $tenant_id
MERGE (d)-[:HAS_CHUNK]->(c)
`

// QueryMergeEntities upserts extracted entities and their provenance
// edges from the mentioning chunk. The stored id is assigned on first
// creation and stable across re-extraction.
const QueryMergeEntities = `
MATCH (c:Chunk {id: $chunk_id})
UNWIND $entities AS entity
MERGE (e:Entity {tenant_id: $tenant_id, name: entity.name})
ON CREATE SET
  e.id = entity.id,
  e.type = entity.type,
  e.description = entity.description,
  e.importance = entity.importance
ON MATCH SET
  e.description = CASE
    WHEN entity.description = '' OR e.description CONTAINS entity.description
    THEN e.description
    ELSE e.description + '\n' + entity.description
  END,
  e.importance = CASE
    WHEN entity.importance > e.importance THEN entity.importance
    ELSE e.importance
  END
MERGE (c)-[:MENTIONS]->(e)
RETURN DISTINCT e.id AS id
`

// QueryMergeRelationships upserts directed entity relationships. Repeated
// extraction of the same (source, target, type) accumulates weight.
const QueryMergeRelationships = `
UNWIND $relationships AS rel
MATCH (s:Entity {tenant_id: $tenant_id, name: rel.source})
MATCH (t:Entity {tenant_id: $tenant_id, name: rel.target})
MERGE (s)-[r:RELATED_TO {type: rel.type}]->(t)
ON CREATE SET r.weight = rel.weight, r.description = rel.description
ON MATCH SET r.weight = r.weight + rel.weight
`

// QueryDeleteDocumentGraph removes a document, its chunks, and every
// entity left without a MENTIONS edge from any remaining chunk. Entities
// still mentioned by other documents survive.
const QueryDeleteDocumentGraph = `
MATCH (d:Document {id: $document_id, tenant_id: $tenant_id})
OPTIONAL MATCH (d)-[:HAS_CHUNK]->(c:Chunk)
OPTIONAL MATCH (c)-[:MENTIONS]->(e:Entity)
WITH d, collect(DISTINCT c) AS chunks, collect(DISTINCT e) AS candidates
FOREACH (chunk IN chunks | DETACH DELETE chunk)
DETACH DELETE d
WITH candidates
UNWIND candidates AS e
WITH e
WHERE NOT ()-[:MENTIONS]->(e)
DETACH DELETE e
`

// QueryMergeSimilarityEdges creates directed SIMILAR_TO edges between
// chunks, updating the score when the edge already exists.
const QueryMergeSimilarityEdges = `
UNWIND $edges AS edge
MATCH (a:Chunk {id: edge.source})
MATCH (b:Chunk {id: edge.target})
MERGE (a)-[r:SIMILAR_TO]->(b)
SET r.score = edge.score
`

// QueryMentionPairs reads every (chunk, entity) mention pair for a
// tenant; co-occurrence counting happens on the caller's side.
const QueryMentionPairs = `
MATCH (c:Chunk {tenant_id: $tenant_id})-[:MENTIONS]->(e:Entity {tenant_id: $tenant_id})
RETURN c.id AS chunk_id, e.id AS entity_id
`

// QueryMergeCoOccurrence writes one CO_OCCURS edge per canonically
// ordered entity pair, overwriting the weight with the latest count.
const QueryMergeCoOccurrence = `
UNWIND $pairs AS pair
MATCH (a:Entity {id: pair.source})
MATCH (b:Entity {id: pair.target})
MERGE (a)-[r:CO_OCCURS]->(b)
SET r.weight = pair.weight
`

// QueryMarkCommunitiesStale flags every community containing one of the
// given entities so the external summarizer regenerates it.
const QueryMarkCommunitiesStale = `
MATCH (e:Entity)-[:IN_COMMUNITY]->(com:Community)
WHERE e.id IN $entity_ids
SET com.stale = true
RETURN count(DISTINCT com) AS marked
`

// QueryOrphanEntities finds entities not assigned to any community.
const QueryOrphanEntities = `
MATCH (e:Entity {tenant_id: $tenant_id})
WHERE NOT (e)-[:IN_COMMUNITY]->(:Community)
RETURN e.id AS id
`

// QueryEnsureCatchAllCommunity creates the tenant's catch-all community
// if it does not exist yet and returns its id.
const QueryEnsureCatchAllCommunity = `
MERGE (com:Community {tenant_id: $tenant_id, key: 'catch_all'})
ON CREATE SET com.id = $community_id, com.level = 0, com.stale = true
RETURN com.id AS id
`

// QueryAssignOrphans attaches the given entities to the catch-all
// community and marks it stale.
const QueryAssignOrphans = `
MATCH (com:Community {tenant_id: $tenant_id, key: 'catch_all'})
UNWIND $entity_ids AS entityId
MATCH (e:Entity {id: entityId})
MERGE (e)-[:IN_COMMUNITY]->(com)
SET com.stale = true
`
