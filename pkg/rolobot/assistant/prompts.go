// Package assistant – prompts.go loads the prompt texts that steer the model.
// A prompts.yaml file may override any key; missing keys fall back to the
// compiled-in defaults so the service starts without the file.
package assistant

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompt keys.
const (
	PromptRouter    = "router"
	PromptExtractor = "extractor"
	PromptRefiner   = "refiner"
	PromptRerank    = "rerank"
	PromptRecall    = "recall"
	PromptFallback  = "fallback"
)

// defaultPrompts are the compiled-in prompt texts.
var defaultPrompts = map[string]string{
	PromptRouter: `You are a personal networking assistant. The user describes people they
meet and notes about them; you store, find, update and delete these records
for them using the available tools.

Rules:
- To look something up, call search_contacts with a query cleaned of filler
  words. Pass query "*" when the user asks to see everyone.
- To save a new person or note, call add_contact with the user's full text.
  Set force_new only when the user explicitly insists on a separate record.
- To change an existing record, first find its id (search results include
  ids), then call update_contact with the new information.
- To remove a record, call delete_contact with its id.
- When the user is answering a pending question with agreement ("yes", "do
  it", "давай") call confirm_action; with refusal ("no", "nevermind",
  "отмена") call cancel_action.
- Answer in the user's language. Keep answers short and concrete. Never
  invent contacts that were not returned by a tool.`,

	PromptExtractor: `Extract a contact card from the user's text. Respond with a single JSON
object and nothing else:
{"name": string, "summary": string, "meta": {"role": string, "company":
string, "interests": [string], "hobbies": [string], "phones": [string],
"emails": [string], "social": [string], "needs": [string]}}

"name" is the person's name or a short title for a note. "summary" is 1-3
sentences capturing who they are and why they matter. Omit meta fields you
cannot fill. Use the text's original language.`,

	PromptRefiner: `You maintain a contact card. Merge the new information into the existing
card: keep everything still true, replace what changed, add what is new.
Respond with a single JSON object in the same shape as the existing card:
{"name": string, "summary": string, "meta": {...}}. Use the card's language.`,

	PromptRerank: `You judge search relevance. Given a query and a numbered candidate list,
respond with a single JSON object: {"relevant_ids": [string]} containing the
ids of candidates that genuinely match the query's intent. Consider names,
summaries and metadata. A candidate from a shared organization may lack a
company field — do not exclude it for that reason alone. When nothing
matches, return an empty list.`,

	PromptRecall: `Write a short, informal nudge reminding the user about the person below.
1-2 sentences. Use a concrete detail from the description to suggest a
conversation topic or a reason to reconnect. No greetings, no preamble, no
surrounding quotes. Wrap names in <b></b>. Use the description's language.`,

	PromptFallback: `You could not finish the task within the allowed number of steps.
Apologize briefly and ask one clarifying question that would let you help.`,
}

// Prompts resolves prompt texts with optional file overrides.
type Prompts struct {
	overrides map[string]string
}

// LoadPrompts reads overrides from a prompts.yaml file. A missing file is
// fine; every key has a compiled-in default.
func LoadPrompts(path string, logger *slog.Logger) (*Prompts, error) {
	p := &Prompts{overrides: map[string]string{}}
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("prompts file not found, using defaults", "path", path)
			return p, nil
		}
		return nil, fmt.Errorf("read prompts %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p.overrides); err != nil {
		return nil, fmt.Errorf("parse prompts %q: %w", path, err)
	}

	logger.Info("prompt overrides loaded", "path", path, "keys", len(p.overrides))
	return p, nil
}

// Get returns the prompt text for a key.
func (p *Prompts) Get(key string) string {
	if p != nil {
		if v, ok := p.overrides[key]; ok && v != "" {
			return v
		}
	}
	return defaultPrompts[key]
}
