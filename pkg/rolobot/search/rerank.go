// Package search – rerank.go asks the model which retrieved candidates are
// genuinely relevant to the query. An LLM outage must never make search
// worse, so every failure path returns the unfiltered candidates.
package search

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rolobot-ai/rolobot/pkg/rolobot/store"
)

// rerankCandidate is the compact view of a result sent to the model.
type rerankCandidate struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Summary string `json:"summary,omitempty"`
	Org     string `json:"org,omitempty"`
}

// rerankRequest is the user message for the relevance judgment.
type rerankRequest struct {
	Query      string            `json:"query"`
	Candidates []rerankCandidate `json:"candidates"`
}

// rerankVerdict is the JSON shape the rerank prompt produces.
type rerankVerdict struct {
	RelevantIDs []string `json:"relevant_ids"`
}

// rerank filters candidates through the model's relevance judgment,
// preserving the merged retrieval order. Fails open on any error.
func (s *Searcher) rerank(ctx context.Context, query string, candidates []store.SearchResult, orgName string) []store.SearchResult {
	req := rerankRequest{Query: query}
	for _, c := range candidates {
		req.Candidates = append(req.Candidates, rerankCandidate{
			ID:      c.ID,
			Name:    c.Name,
			Summary: c.Summary,
			Org:     orgName,
		})
	}

	payload, err := json.Marshal(req)
	if err != nil {
		s.logger.Warn("rerank request marshal failed", "error", err)
		return candidates
	}

	raw, err := s.llm.CompleteJSON(ctx, s.opts.RerankPrompt, string(payload))
	if err != nil {
		s.logger.Warn("rerank call failed, keeping unfiltered results", "error", err)
		return candidates
	}

	var verdict rerankVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		s.logger.Warn("rerank output unparsable, keeping unfiltered results", "error", err)
		return candidates
	}

	keep := make(map[string]bool, len(verdict.RelevantIDs))
	for _, id := range verdict.RelevantIDs {
		keep[strings.TrimSpace(id)] = true
	}

	// Ids the model invented don't resurrect anything; ids it dropped are
	// filtered. A verdict that names nothing we retrieved is treated as
	// unusable output, not an empty judgment.
	filtered := candidates[:0:0]
	for _, c := range candidates {
		if keep[c.ID] {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 && len(verdict.RelevantIDs) > 0 {
		s.logger.Warn("rerank verdict matched no candidates, keeping unfiltered results")
		return candidates
	}

	s.logger.Debug("rerank applied", "in", len(candidates), "out", len(filtered))
	return filtered
}
