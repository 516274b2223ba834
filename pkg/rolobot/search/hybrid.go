// Package search implements hybrid contact retrieval: an exact keyword pass
// merged with a vector similarity pass, filtered through an LLM relevance
// judgment. Keyword precision wins ties over vector recall; the rerank step
// fails open.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rolobot-ai/rolobot/pkg/rolobot/store"
)

// LLM is the slice of the model client the searcher needs.
type LLM interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}

// Options tunes the hybrid pipeline.
type Options struct {
	// Limit is the default result cap when the caller passes 0.
	Limit int

	// VectorThreshold is the minimum similarity for a vector hit.
	VectorThreshold float32

	// MinRerankQueryLen skips the rerank pass for shorter queries — too
	// ambiguous for a relevance judgment.
	MinRerankQueryLen int

	// OrgFreeSearchLimit is the pending-member search quota per org.
	OrgFreeSearchLimit int

	// RerankPrompt is the system prompt for the relevance judgment.
	RerankPrompt string
}

// allRecordsForms are query spellings that mean "show me everyone".
var allRecordsForms = map[string]bool{
	"*":            true,
	"все":          true,
	"все контакты": true,
	"all":          true,
	"all contacts": true,
	"everyone":     true,
}

// Searcher runs the hybrid retrieval pipeline.
type Searcher struct {
	contacts store.ContactStore
	users    store.UserStore
	vectors  store.VectorIndex
	llm      LLM
	opts     Options
	logger   *slog.Logger
}

// New creates a searcher.
func New(contacts store.ContactStore, users store.UserStore, vectors store.VectorIndex, llm LLM, opts Options, logger *slog.Logger) *Searcher {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	return &Searcher{
		contacts: contacts,
		users:    users,
		vectors:  vectors,
		llm:      llm,
		opts:     opts,
		logger:   logger.With("component", "search"),
	}
}

// Search returns an ordered, deduplicated, relevance-filtered result list.
// Org-scoped queries from pending members consume the free-search quota and
// fail closed with store.ErrQuotaExceeded once it is spent.
func (s *Searcher) Search(ctx context.Context, query string, userID int64, limit int) ([]store.SearchResult, error) {
	if limit <= 0 {
		limit = s.opts.Limit
	}
	query = strings.TrimSpace(query)

	// "Show me everyone" bypasses ranking entirely.
	if allRecordsForms[strings.ToLower(query)] {
		return s.contacts.Recent(ctx, store.Scope{UserID: userID}, limit)
	}

	scope := store.Scope{UserID: userID}
	var orgName string

	member, rest, err := s.resolveOrgScope(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	if member != nil {
		scope.OrgID = member.OrgID
		orgName = member.OrgName
		query = rest

		if member.Status != store.MemberApproved {
			if member.FreeSearchesUsed >= s.opts.OrgFreeSearchLimit {
				return nil, fmt.Errorf("org %q: %w", member.OrgName, store.ErrQuotaExceeded)
			}
		}
	}

	merged, err := s.retrieve(ctx, scope, query, limit)
	if err != nil {
		return nil, err
	}

	// The quota counts successful searches, so increment only after
	// retrieval went through.
	if member != nil && member.Status != store.MemberApproved {
		if _, err := s.users.IncrementFreeSearches(ctx, userID, member.OrgID); err != nil {
			s.logger.Warn("quota increment failed", "user_id", userID, "org_id", member.OrgID, "error", err)
		}
	}

	for i := range merged {
		merged[i].OrgName = orgName
	}

	if len(merged) == 0 || len([]rune(query)) < s.opts.MinRerankQueryLen {
		return merged, nil
	}
	return s.rerank(ctx, query, merged, orgName), nil
}

// retrieve runs the keyword and vector passes and merges them, keyword hits
// first, vector hits appended for ids not already present.
func (s *Searcher) retrieve(ctx context.Context, scope store.Scope, query string, limit int) ([]store.SearchResult, error) {
	keyword, err := s.contacts.KeywordSearch(ctx, scope, query, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword pass: %w", err)
	}

	merged := make([]store.SearchResult, 0, limit)
	seen := make(map[string]bool, limit)
	for _, r := range keyword {
		if !seen[r.ID] {
			seen[r.ID] = true
			merged = append(merged, r)
		}
	}

	vector, err := s.vectorPass(ctx, scope, query, limit)
	if err != nil {
		// The keyword pass already produced trustworthy hits; a vector
		// outage narrows recall, it doesn't fail the search.
		s.logger.Warn("vector pass failed", "error", err)
		vector = nil
	}
	for _, r := range vector {
		if !seen[r.ID] {
			seen[r.ID] = true
			merged = append(merged, r)
		}
	}

	if len(merged) > limit {
		merged = merged[:limit]
	}

	s.logger.Debug("hybrid retrieval",
		"keyword", len(keyword), "vector", len(vector), "merged", len(merged))
	return merged, nil
}

// vectorPass embeds the query and resolves ANN hits to full results.
func (s *Searcher) vectorPass(ctx context.Context, scope store.Scope, query string, limit int) ([]store.SearchResult, error) {
	embedding, err := s.llm.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	hits, err := s.vectors.Query(ctx, scope, embedding, s.opts.VectorThreshold, limit)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	results := make([]store.SearchResult, 0, len(hits))
	for _, h := range hits {
		// Resolve through the scope filter rather than per-requester
		// visibility: the scope was authorized (and quota-charged) before
		// retrieval, and a pending member's org hits must resolve the same
		// way the keyword pass does.
		c, err := s.contacts.GetScoped(ctx, scope, h.ID)
		if err != nil {
			// Index and rows can drift (deleted contact, revoked org
			// membership). Skip rather than fail.
			s.logger.Debug("vector hit not resolvable", "id", h.ID, "error", err)
			continue
		}
		if c.Archived {
			continue
		}
		results = append(results, store.SearchResult{
			ID:      c.ID,
			Name:    c.Name,
			Summary: c.Summary,
			Meta:    c.Meta,
			Score:   h.Score,
		})
	}
	return results, nil
}

// resolveOrgScope recognizes org-scoped query forms: an explicit
// "org:<name>" prefix, or a query containing the name of an org the user
// belongs to. Only the user's own memberships are consulted. Returns the
// matched membership and the query with the org name removed.
func (s *Searcher) resolveOrgScope(ctx context.Context, query string, userID int64) (*store.Membership, string, error) {
	var explicit string
	if strings.HasPrefix(strings.ToLower(query), "org:") {
		rest := query[len("org:"):]
		parts := strings.SplitN(rest, " ", 2)
		explicit = strings.TrimSpace(parts[0])
		if len(parts) == 2 {
			query = strings.TrimSpace(parts[1])
		} else {
			query = ""
		}
	}

	memberships, err := s.users.Memberships(ctx, userID)
	if err != nil {
		return nil, query, fmt.Errorf("memberships: %w", err)
	}

	lower := strings.ToLower(query)
	for i := range memberships {
		m := &memberships[i]
		name := strings.ToLower(m.OrgName)
		if explicit != "" {
			if strings.Contains(name, strings.ToLower(explicit)) {
				return m, query, nil
			}
			continue
		}
		if name != "" && strings.Contains(lower, name) {
			trimmed := strings.TrimSpace(strings.ReplaceAll(lower, name, ""))
			return m, trimmed, nil
		}
	}

	if explicit != "" {
		// org: prefix named something the user doesn't belong to.
		return nil, query, fmt.Errorf("organization %q: %w", explicit, store.ErrAccessDenied)
	}
	return nil, query, nil
}
