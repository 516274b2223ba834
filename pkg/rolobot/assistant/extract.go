// Package assistant – extract.go turns free text into a structured contact
// card and merges new information into an existing card. Both run the model
// in JSON mode and parse the single returned object.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rolobot-ai/rolobot/pkg/rolobot/store"
)

// nameFallbackWords is how many leading words of the raw text become the
// title when the extractor returns an empty name (e.g. a note with no person
// in it).
const nameFallbackWords = 4

// Extractor converts free text to contact cards.
type Extractor struct {
	llm     *LLMClient
	prompts *Prompts
	logger  *slog.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(llm *LLMClient, prompts *Prompts, logger *slog.Logger) *Extractor {
	return &Extractor{
		llm:     llm,
		prompts: prompts,
		logger:  logger.With("component", "extractor"),
	}
}

// extractedCard is the JSON shape the extraction prompts produce.
type extractedCard struct {
	Name    string            `json:"name"`
	Summary string            `json:"summary"`
	Meta    store.ContactMeta `json:"meta"`
}

// Extract pulls a contact card out of free text.
func (e *Extractor) Extract(ctx context.Context, userID int64, text string) (*store.ContactDraft, error) {
	raw, err := e.llm.CompleteJSON(ctx, e.prompts.Get(PromptExtractor), text)
	if err != nil {
		return nil, fmt.Errorf("extract contact: %w", err)
	}

	var card extractedCard
	if err := json.Unmarshal([]byte(raw), &card); err != nil {
		return nil, fmt.Errorf("extract contact: bad model output: %w", err)
	}

	if strings.TrimSpace(card.Name) == "" {
		card.Name = titleFromText(text)
		e.logger.Debug("empty extracted name, synthesized title", "name", card.Name)
	}

	return &store.ContactDraft{
		UserID:  userID,
		Name:    card.Name,
		Summary: card.Summary,
		Meta:    card.Meta,
		RawText: text,
	}, nil
}

// Refine merges new text into an existing card rather than concatenating.
func (e *Extractor) Refine(ctx context.Context, existing *store.Contact, text string) (*store.ContactUpdate, error) {
	current, err := json.Marshal(extractedCard{
		Name:    existing.Name,
		Summary: existing.Summary,
		Meta:    existing.Meta,
	})
	if err != nil {
		return nil, fmt.Errorf("refine contact: %w", err)
	}

	user := fmt.Sprintf("Existing card:\n%s\n\nNew information:\n%s", current, text)
	raw, err := e.llm.CompleteJSON(ctx, e.prompts.Get(PromptRefiner), user)
	if err != nil {
		return nil, fmt.Errorf("refine contact: %w", err)
	}

	var card extractedCard
	if err := json.Unmarshal([]byte(raw), &card); err != nil {
		return nil, fmt.Errorf("refine contact: bad model output: %w", err)
	}

	upd := &store.ContactUpdate{
		Name:    card.Name,
		Summary: card.Summary,
		Meta:    card.Meta,
		RawText: text,
	}
	if upd.Name == "" {
		upd.Name = existing.Name
	}
	return upd, nil
}

// titleFromText synthesizes a record title from the first words of raw text.
func titleFromText(text string) string {
	words := strings.Fields(text)
	if len(words) > nameFallbackWords {
		words = words[:nameFallbackWords]
	}
	title := strings.Join(words, " ")
	if title == "" {
		title = "Note"
	}
	return title
}
