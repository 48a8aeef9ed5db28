package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/loomhq/loom/pkg/ai"
	"github.com/loomhq/loom/pkg/common"
	"github.com/loomhq/loom/pkg/logger"
)

// DefaultEntityTypes is used when no custom entity types are configured.
var DefaultEntityTypes = []string{
	"ORGANIZATION", "PERSON", "LOCATION", "CONCEPT",
	"TECHNOLOGY", "DATE", "PRODUCT", "EVENT",
}

// ParseStatus tags how a model response was turned into an extraction
// result.
type ParseStatus int

const (
	// ParseOK means the response decoded into at least one item.
	ParseOK ParseStatus = iota
	// ParseEmpty means the response decoded but contained no items.
	ParseEmpty
	// ParseFailed means the response could not be decoded; the result is
	// empty by design so one malformed response never aborts a chunk.
	ParseFailed
)

// Outcome is the tagged result of parsing one model response.
type Outcome struct {
	Status ParseStatus
	Reason string
	Result common.ExtractionResult
}

type extractEntity struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Importance  float64 `json:"importance"`
}

type extractRelationship struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

type extractResponse struct {
	Entities      []extractEntity       `json:"entities"`
	Relationships []extractRelationship `json:"relationships"`
}

// ParseExtraction decodes a raw model response into an extraction result.
// It strips Markdown code fences, then decodes with repair fallbacks.
// Decode failure yields an empty ParseFailed outcome, never an error.
func ParseExtraction(raw string) Outcome {
	cleaned := ai.StripCodeFences(raw)
	if cleaned == "" {
		return Outcome{Status: ParseEmpty}
	}

	var res extractResponse
	if err := ai.UnmarshalFlexible(cleaned, &res); err != nil {
		return Outcome{Status: ParseFailed, Reason: err.Error()}
	}

	result := common.ExtractionResult{}
	for _, e := range res.Entities {
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		result.Entities = append(result.Entities, common.NewEntity(e.Name, e.Type, e.Description, e.Importance))
	}
	for _, r := range res.Relationships {
		if strings.TrimSpace(r.Source) == "" || strings.TrimSpace(r.Target) == "" {
			continue
		}
		result.Relationships = append(result.Relationships, common.NewRelationship(r.Source, r.Target, r.Type, r.Description, r.Weight))
	}

	if result.Empty() {
		return Outcome{Status: ParseEmpty}
	}
	return Outcome{Status: ParseOK, Result: result}
}

// Extractor calls the language model to pull entities and relationships
// out of one text unit, with optional gleaning passes for recall.
type Extractor struct {
	client         ai.GraphAIClient
	entityTypes    []string
	gleaningPasses int
}

// NewExtractor builds an Extractor. gleaningPasses is the maximum number
// of additional recall passes after the base pass; zero disables gleaning.
func NewExtractor(client ai.GraphAIClient, entityTypes []string, gleaningPasses int) *Extractor {
	if len(entityTypes) == 0 {
		entityTypes = DefaultEntityTypes
	}
	if gleaningPasses < 0 {
		gleaningPasses = 0
	}
	return &Extractor{
		client:         client,
		entityTypes:    entityTypes,
		gleaningPasses: gleaningPasses,
	}
}

// Extract runs the base extraction pass at temperature 0 and up to the
// configured number of gleaning passes at temperature 0.2. Gleaning stops
// early once a pass yields no new entities. Items are merged by
// concatenation; the writer deduplicates.
//
// Relationships referencing entity names absent from the accumulated
// entity set are dropped. Parse failures are absorbed as empty passes;
// only provider errors are returned.
func (x *Extractor) Extract(ctx context.Context, text string) (common.ExtractionResult, error) {
	types := strings.Join(x.entityTypes, ",")

	raw, err := x.client.GenerateCompletion(
		ctx,
		text,
		ai.WithSystemPrompts(fmt.Sprintf(ai.ExtractPrompt, types)),
		ai.WithTemperature(0),
	)
	if err != nil {
		return common.ExtractionResult{}, fmt.Errorf("extraction call failed: %w", err)
	}

	outcome := ParseExtraction(raw)
	if outcome.Status == ParseFailed {
		logger.Warn("[Extract] unparseable model response, continuing with empty result", "reason", outcome.Reason)
	}

	merged := outcome.Result
	known := entityNameSet(merged.Entities)

	for pass := 0; pass < x.gleaningPasses; pass++ {
		prompt := fmt.Sprintf(ai.GleanPrompt, types, strings.Join(sortedNames(known), ","))
		raw, err := x.client.GenerateCompletion(
			ctx,
			text,
			ai.WithSystemPrompts(prompt),
			ai.WithTemperature(0.2),
		)
		if err != nil {
			return common.ExtractionResult{}, fmt.Errorf("gleaning pass %d failed: %w", pass+1, err)
		}

		gleaned := ParseExtraction(raw)
		if gleaned.Status == ParseFailed {
			logger.Warn("[Extract] unparseable gleaning response", "pass", pass+1, "reason", gleaned.Reason)
			break
		}

		newEntities := 0
		for _, e := range gleaned.Result.Entities {
			if _, ok := known[e.Name]; !ok {
				known[e.Name] = struct{}{}
				newEntities++
			}
		}
		if newEntities == 0 {
			break
		}
		merged.Merge(gleaned.Result)
	}

	merged.Relationships = filterDangling(merged.Relationships, known)
	return merged, nil
}

func entityNameSet(entities []common.Entity) map[string]struct{} {
	set := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		set[e.Name] = struct{}{}
	}
	return set
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func filterDangling(rels []common.Relationship, known map[string]struct{}) []common.Relationship {
	kept := rels[:0]
	for _, r := range rels {
		if _, ok := known[r.Source]; !ok {
			continue
		}
		if _, ok := known[r.Target]; !ok {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}
