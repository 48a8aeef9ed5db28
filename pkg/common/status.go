package common

// DocumentStatus is the state of a document in the ingestion pipeline.
type DocumentStatus string

const (
	StatusIngested     DocumentStatus = "INGESTED"
	StatusClassifying  DocumentStatus = "CLASSIFYING"
	StatusExtracting   DocumentStatus = "EXTRACTING"
	StatusChunking     DocumentStatus = "CHUNKING"
	StatusEmbedding    DocumentStatus = "EMBEDDING"
	StatusGraphSyncing DocumentStatus = "GRAPH_SYNCING"
	StatusEnriching    DocumentStatus = "ENRICHING"
	StatusReady        DocumentStatus = "READY"
	StatusFailed       DocumentStatus = "FAILED"
)

// pipeline is the ordered list of non-terminal processing states. Each
// successful stage advances exactly one position; READY ends the run.
var pipeline = []DocumentStatus{
	StatusIngested,
	StatusClassifying,
	StatusExtracting,
	StatusChunking,
	StatusEmbedding,
	StatusGraphSyncing,
	StatusEnriching,
	StatusReady,
}

// Terminal reports whether no further transitions are allowed from s.
func (s DocumentStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Valid reports whether s is a known status value.
func (s DocumentStatus) Valid() bool {
	if s == StatusFailed {
		return true
	}
	for _, p := range pipeline {
		if s == p {
			return true
		}
	}
	return false
}

// Next returns the status one step further along the pipeline. It returns
// false when s is terminal or unknown.
func (s DocumentStatus) Next() (DocumentStatus, bool) {
	for i, p := range pipeline[:len(pipeline)-1] {
		if s == p {
			return pipeline[i+1], true
		}
	}
	return s, false
}

// CanTransitionTo reports whether moving from s to target is a legal
// transition: one pipeline step forward, or FAILED from any non-terminal
// state.
func (s DocumentStatus) CanTransitionTo(target DocumentStatus) bool {
	if s.Terminal() {
		return false
	}
	if target == StatusFailed {
		return true
	}
	next, ok := s.Next()
	return ok && next == target
}
