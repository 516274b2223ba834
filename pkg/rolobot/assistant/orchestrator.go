// Package assistant – orchestrator.go runs the conversation loop: the model
// plans with tool calls, the orchestrator executes them against storage and
// feeds results back, until the model answers in plain text or a risky action
// stops the turn at the confirmation gate. The loop is bounded; a model that
// never stops calling tools gets cut off and asked to wrap up.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rolobot-ai/rolobot/pkg/rolobot/store"
)

// ChatModel is the slice of the model client the orchestrator drives.
type ChatModel interface {
	ChatWithTools(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (*openai.ChatCompletionMessage, error)
	Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CardExtractor turns free text into contact cards.
type CardExtractor interface {
	Extract(ctx context.Context, userID int64, text string) (*store.ContactDraft, error)
	Refine(ctx context.Context, existing *store.Contact, text string) (*store.ContactUpdate, error)
}

// ContactSearcher runs the retrieval pipeline.
type ContactSearcher interface {
	Search(ctx context.Context, query string, userID int64, limit int) ([]store.SearchResult, error)
}

// Orchestrator owns one user turn end to end.
type Orchestrator struct {
	llm       ChatModel
	extractor CardExtractor
	searcher  ContactSearcher
	contacts  store.ContactStore
	history   store.HistoryStore
	users     store.UserStore
	vectors   store.VectorIndex
	gate      *ConfirmStore
	prompts   *Prompts
	cfg       AgentConfig
	logger    *slog.Logger
}

// NewOrchestrator wires the conversation loop.
func NewOrchestrator(
	llm ChatModel,
	extractor CardExtractor,
	searcher ContactSearcher,
	contacts store.ContactStore,
	history store.HistoryStore,
	users store.UserStore,
	vectors store.VectorIndex,
	gate *ConfirmStore,
	prompts *Prompts,
	cfg AgentConfig,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		llm:       llm,
		extractor: extractor,
		searcher:  searcher,
		contacts:  contacts,
		history:   history,
		users:     users,
		vectors:   vectors,
		gate:      gate,
		prompts:   prompts,
		cfg:       cfg,
		logger:    logger.With("component", "orchestrator"),
	}
}

// turnState carries loop-local data across dispatch calls.
type turnState struct {
	user        *store.User
	lastResults []store.SearchResult
}

// Run processes one user utterance and returns the terminal outcome.
func (o *Orchestrator) Run(ctx context.Context, userID int64, text string) (Outcome, error) {
	user, err := o.loadUser(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}
	state := &turnState{user: user}

	depth := o.cfg.HistoryDepthFree
	if user.Premium {
		depth = o.cfg.HistoryDepthPremium
	}
	tail, err := o.history.Tail(ctx, userID, depth)
	if err != nil {
		o.logger.Warn("history load failed, starting fresh", "user_id", userID, "error", err)
		tail = nil
	}

	if err := o.history.Append(ctx, store.Turn{
		UserID:    userID,
		Role:      openai.ChatMessageRoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	}); err != nil {
		o.logger.Warn("history append failed", "user_id", userID, "error", err)
	}

	messages := o.buildMessages(tail, text)
	tools := toolVocabulary()

	for step := 0; step < o.cfg.MaxSteps; step++ {
		msg, err := o.llm.ChatWithTools(ctx, messages, tools)
		if err != nil {
			return Outcome{}, fmt.Errorf("model call (step %d): %w", step+1, err)
		}

		if len(msg.ToolCalls) == 0 {
			return o.finishText(ctx, userID, state, msg.Content), nil
		}

		// One call per step. Extra parallel calls are dropped, and the
		// assistant message is trimmed to match so the transcript stays
		// consistent with the tool results we actually return.
		call := msg.ToolCalls[0]
		msg.ToolCalls = msg.ToolCalls[:1]
		messages = append(messages, *msg)

		o.logger.Debug("tool call",
			"user_id", userID, "step", step+1,
			"tool", call.Function.Name)

		outcome, result, done, err := o.dispatch(ctx, userID, state, call)
		if err != nil {
			return Outcome{}, err
		}
		if done {
			o.recordOutcome(ctx, userID, outcome)
			return outcome, nil
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			ToolCallID: call.ID,
			Content:    result,
		})
	}

	// Step budget spent. Force a plain answer: no tools offered.
	o.logger.Warn("step budget exhausted", "user_id", userID, "max_steps", o.cfg.MaxSteps)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: o.prompts.Get(PromptFallback),
	})
	reply, err := o.llm.Complete(ctx, messages)
	if err != nil {
		return Outcome{}, fmt.Errorf("fallback completion: %w", err)
	}
	return o.finishText(ctx, userID, state, reply), nil
}

// Confirm commits the staged action matching requestID. A stale token is a
// normal conversational event, not an error: the user learns the control
// expired and nothing is touched.
func (o *Orchestrator) Confirm(ctx context.Context, userID int64, requestID string) (Outcome, error) {
	entry, err := o.gate.Resolve(userID, requestID)
	if errors.Is(err, ErrStaleRequest) {
		return textOutcome("That confirmation has expired. Tell me again what you'd like to do."), nil
	}
	if err != nil {
		return Outcome{}, err
	}

	outcome, err := o.commitPending(ctx, userID, entry)
	if err != nil {
		return Outcome{}, err
	}
	o.recordOutcome(ctx, userID, outcome)
	return outcome, nil
}

// Cancel discards the staged action matching requestID.
func (o *Orchestrator) Cancel(ctx context.Context, userID int64, requestID string) (Outcome, error) {
	entry, err := o.gate.Resolve(userID, requestID)
	if errors.Is(err, ErrStaleRequest) {
		return textOutcome("That confirmation has expired. Nothing was changed."), nil
	}
	if err != nil {
		return Outcome{}, err
	}

	o.logger.Debug("action cancelled", "user_id", userID, "kind", entry.Kind)
	outcome := Outcome{Kind: OutcomeCancelled, Text: "Okay, cancelled."}
	o.recordOutcome(ctx, userID, outcome)
	return outcome, nil
}

// loadUser fetches the user's preferences, defaulting to the cautious persona
// for an unknown id.
func (o *Orchestrator) loadUser(ctx context.Context, userID int64) (*store.User, error) {
	user, err := o.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &store.User{ID: userID, ConfirmCreate: true, ConfirmMutate: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	return user, nil
}

// buildMessages assembles the router prompt, the recent history tail and the
// current utterance.
func (o *Orchestrator) buildMessages(tail []store.Turn, text string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(tail)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: o.prompts.Get(PromptRouter),
	})
	for _, t := range tail {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    t.Role,
			Content: t.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
	return messages
}

// dispatch executes one tool call. It returns either a terminal outcome
// (done=true) or a textual tool result to feed back into the loop.
func (o *Orchestrator) dispatch(ctx context.Context, userID int64, state *turnState, call openai.ToolCall) (Outcome, string, bool, error) {
	switch call.Function.Name {
	case toolSearchContacts:
		return o.runSearch(ctx, userID, state, call.Function.Arguments)
	case toolAddContact:
		return o.runAdd(ctx, userID, state, call.Function.Arguments)
	case toolDeleteContact:
		return o.runDelete(ctx, userID, state, call.Function.Arguments)
	case toolUpdateContact:
		return o.runUpdate(ctx, userID, state, call.Function.Arguments)
	case toolConfirmAction:
		return o.runConfirm(ctx, userID)
	case toolCancelAction:
		return o.runCancel(userID)
	case toolCheckSubscription:
		return o.runCheckSubscription(ctx, userID, state)
	default:
		o.logger.Warn("unknown tool requested", "tool", call.Function.Name)
		return Outcome{}, fmt.Sprintf("error: unknown tool %q", call.Function.Name), false, nil
	}
}

func (o *Orchestrator) runSearch(ctx context.Context, userID int64, state *turnState, raw string) (Outcome, string, bool, error) {
	var args searchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return Outcome{}, "error: " + err.Error(), false, nil
	}
	if err := requireString("query", args.Query); err != nil {
		return Outcome{}, "error: " + err.Error(), false, nil
	}

	results, err := o.searcher.Search(ctx, args.Query, userID, 0)
	switch {
	case errors.Is(err, store.ErrQuotaExceeded):
		return textOutcome("You've used up the free searches for this organization. Upgrade to keep searching its contacts."), "", true, nil
	case errors.Is(err, store.ErrAccessDenied):
		return textOutcome("You don't have access to that organization's contacts."), "", true, nil
	case err != nil:
		o.logger.Warn("search failed", "user_id", userID, "error", err)
		return Outcome{}, "error: search is temporarily unavailable", false, nil
	}

	state.lastResults = results
	if len(results) == 0 {
		return Outcome{}, "No matching contacts found.", false, nil
	}

	// The result listing doubles as the id reference for follow-up
	// update/delete calls.
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d contact(s):\n", len(results))
	for _, r := range results {
		fmt.Fprintf(&b, "- id=%s | %s | %s\n", r.ID, r.Name, r.Summary)
	}
	listing := b.String()

	// Persist the listing as a system turn: the history replay lets the next
	// utterance ("delete the second one") resolve a name to an id without
	// searching again.
	if err := o.history.Append(ctx, store.Turn{
		UserID:    userID,
		Role:      openai.ChatMessageRoleSystem,
		Content:   listing,
		CreatedAt: time.Now(),
	}); err != nil {
		o.logger.Warn("history append failed", "user_id", userID, "error", err)
	}
	return Outcome{}, listing, false, nil
}

func (o *Orchestrator) runAdd(ctx context.Context, userID int64, state *turnState, raw string) (Outcome, string, bool, error) {
	var args addArgs
	if err := decodeArgs(raw, &args); err != nil {
		return Outcome{}, "error: " + err.Error(), false, nil
	}
	if err := requireString("text", args.Text); err != nil {
		return Outcome{}, "error: " + err.Error(), false, nil
	}

	if !state.user.Premium {
		n, err := o.contacts.Count(ctx, userID)
		if err != nil {
			o.logger.Warn("contact count failed", "user_id", userID, "error", err)
			return Outcome{}, "error: storage is temporarily unavailable", false, nil
		}
		if n >= o.cfg.FreeContactLimit {
			return textOutcome(fmt.Sprintf(
				"You've reached the free plan limit of %d contacts. Upgrade to add more.",
				o.cfg.FreeContactLimit)), "", true, nil
		}
	}

	draft, err := o.extractor.Extract(ctx, userID, args.Text)
	if err != nil {
		o.logger.Warn("extraction failed", "user_id", userID, "error", err)
		return Outcome{}, "error: could not understand the contact details", false, nil
	}

	if !args.ForceNew {
		similar, err := o.contacts.FindByNameLike(ctx, store.Scope{UserID: userID}, draft.Name)
		if err != nil {
			o.logger.Warn("duplicate check failed", "user_id", userID, "error", err)
			return Outcome{}, "error: storage is temporarily unavailable", false, nil
		}
		if len(similar) > 0 {
			var b strings.Builder
			fmt.Fprintf(&b, "A similar contact already exists:\n")
			for _, c := range similar {
				fmt.Fprintf(&b, "- id=%s | %s | %s\n", c.ID, c.Name, c.Summary)
			}
			b.WriteString("Ask the user whether to update the existing record (update_contact) or save a separate one (add_contact with force_new=true).")
			return Outcome{}, b.String(), false, nil
		}
	}

	if state.user.ConfirmCreate {
		requestID := o.gate.Stage(userID, PendingAction{Kind: ActionCreate, Draft: draft})
		return Outcome{
			Kind:      OutcomeDraftPending,
			Draft:     draft,
			RequestID: requestID,
		}, "", true, nil
	}

	contact, err := o.commitCreate(ctx, draft)
	if err != nil {
		o.logger.Warn("create commit failed", "user_id", userID, "error", err)
		return Outcome{}, "error: saving the contact failed", false, nil
	}
	return Outcome{Kind: OutcomeRecordSaved, Contact: contact, Text: fmt.Sprintf("Saved %s.", contact.Name)}, "", true, nil
}

func (o *Orchestrator) runDelete(ctx context.Context, userID int64, state *turnState, raw string) (Outcome, string, bool, error) {
	var args deleteArgs
	if err := decodeArgs(raw, &args); err != nil {
		return Outcome{}, "error: " + err.Error(), false, nil
	}
	if err := requireString("contact_id", args.ContactID); err != nil {
		return Outcome{}, "error: " + err.Error(), false, nil
	}

	contact, out, result, done := o.fetchTarget(ctx, userID, args.ContactID)
	if contact == nil {
		return out, result, done, nil
	}

	if state.user.ConfirmMutate {
		requestID := o.gate.Stage(userID, PendingAction{
			Kind:     ActionDelete,
			TargetID: contact.ID,
			Target:   contact,
		})
		return Outcome{
			Kind:      OutcomeDeletePending,
			Contact:   contact,
			RequestID: requestID,
		}, "", true, nil
	}

	if err := o.commitDelete(ctx, userID, contact.ID); err != nil {
		o.logger.Warn("delete commit failed", "user_id", userID, "error", err)
		return Outcome{}, "error: deleting the contact failed", false, nil
	}
	return textOutcome(fmt.Sprintf("Deleted %s.", contact.Name)), "", true, nil
}

func (o *Orchestrator) runUpdate(ctx context.Context, userID int64, state *turnState, raw string) (Outcome, string, bool, error) {
	var args updateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return Outcome{}, "error: " + err.Error(), false, nil
	}
	if err := requireString("contact_id", args.ContactID); err != nil {
		return Outcome{}, "error: " + err.Error(), false, nil
	}
	if err := requireString("text", args.Text); err != nil {
		return Outcome{}, "error: " + err.Error(), false, nil
	}

	contact, out, result, done := o.fetchTarget(ctx, userID, args.ContactID)
	if contact == nil {
		return out, result, done, nil
	}

	upd, err := o.extractor.Refine(ctx, contact, args.Text)
	if err != nil {
		o.logger.Warn("refinement failed", "user_id", userID, "error", err)
		return Outcome{}, "error: could not merge the new information", false, nil
	}

	if state.user.ConfirmMutate {
		requestID := o.gate.Stage(userID, PendingAction{
			Kind:     ActionUpdate,
			TargetID: contact.ID,
			Target:   contact,
			Update:   upd,
		})
		return Outcome{
			Kind:       OutcomeUpdatePending,
			Contact:    contact,
			RequestID:  requestID,
			OldSummary: contact.Summary,
			NewSummary: upd.Summary,
		}, "", true, nil
	}

	updated, err := o.commitUpdate(ctx, userID, contact.ID, upd)
	if err != nil {
		o.logger.Warn("update commit failed", "user_id", userID, "error", err)
		return Outcome{}, "error: updating the contact failed", false, nil
	}
	return Outcome{Kind: OutcomeRecordSaved, Contact: updated, Text: fmt.Sprintf("Updated %s.", updated.Name)}, "", true, nil
}

func (o *Orchestrator) runConfirm(ctx context.Context, userID int64) (Outcome, string, bool, error) {
	entry := o.gate.Take(userID)
	if entry == nil {
		return Outcome{}, "There is no pending action to confirm.", false, nil
	}
	outcome, err := o.commitPending(ctx, userID, entry)
	if err != nil {
		o.logger.Warn("confirmed commit failed", "user_id", userID, "kind", entry.Kind, "error", err)
		return Outcome{}, "error: applying the confirmed action failed", false, nil
	}
	return outcome, "", true, nil
}

func (o *Orchestrator) runCancel(userID int64) (Outcome, string, bool, error) {
	if o.gate.Peek(userID) == nil {
		return Outcome{}, "There is no pending action to cancel.", false, nil
	}
	o.gate.Discard(userID)
	return Outcome{Kind: OutcomeCancelled, Text: "Okay, cancelled."}, "", true, nil
}

func (o *Orchestrator) runCheckSubscription(ctx context.Context, userID int64, state *turnState) (Outcome, string, bool, error) {
	n, err := o.contacts.Count(ctx, userID)
	if err != nil {
		o.logger.Warn("contact count failed", "user_id", userID, "error", err)
		return Outcome{}, "error: storage is temporarily unavailable", false, nil
	}

	if state.user.Premium {
		return Outcome{}, fmt.Sprintf("Plan: premium. Contacts stored: %d (unlimited).", n), false, nil
	}
	return Outcome{}, fmt.Sprintf(
		"Plan: free. Contacts stored: %d of %d.", n, o.cfg.FreeContactLimit), false, nil
}

// fetchTarget loads a contact for delete/update. NotFound and store outages
// feed back into the loop so the model can recover; AccessDenied is always
// surfaced to the user as a terminal answer, never swallowed.
func (o *Orchestrator) fetchTarget(ctx context.Context, userID int64, id string) (*store.Contact, Outcome, string, bool) {
	contact, err := o.contacts.Get(ctx, id, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, Outcome{}, fmt.Sprintf("error: no contact with id %q, search first to get valid ids", id), false
	case errors.Is(err, store.ErrAccessDenied):
		return nil, textOutcome("You don't have permission to change that record."), "", true
	case err != nil:
		o.logger.Warn("contact load failed", "contact_id", id, "error", err)
		return nil, Outcome{}, "error: storage is temporarily unavailable", false
	}
	return contact, Outcome{}, "", false
}

// commitPending applies a previously staged action.
func (o *Orchestrator) commitPending(ctx context.Context, userID int64, entry *PendingAction) (Outcome, error) {
	switch entry.Kind {
	case ActionCreate:
		contact, err := o.commitCreate(ctx, entry.Draft)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeConfirmed, Contact: contact, Text: fmt.Sprintf("Saved %s.", contact.Name)}, nil

	case ActionDelete:
		if err := o.commitDelete(ctx, userID, entry.TargetID); err != nil {
			return Outcome{}, err
		}
		name := entry.TargetID
		if entry.Target != nil {
			name = entry.Target.Name
		}
		return Outcome{Kind: OutcomeConfirmed, Contact: entry.Target, Text: fmt.Sprintf("Deleted %s.", name)}, nil

	case ActionUpdate:
		contact, err := o.commitUpdate(ctx, userID, entry.TargetID, entry.Update)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeConfirmed, Contact: contact, Text: fmt.Sprintf("Updated %s.", contact.Name)}, nil

	default:
		return Outcome{}, fmt.Errorf("unknown pending action kind %q", entry.Kind)
	}
}

func (o *Orchestrator) commitCreate(ctx context.Context, draft *store.ContactDraft) (*store.Contact, error) {
	contact, err := o.contacts.Create(ctx, *draft)
	if err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	o.indexContact(ctx, contact)
	return contact, nil
}

func (o *Orchestrator) commitDelete(ctx context.Context, userID int64, id string) error {
	if err := o.contacts.Delete(ctx, id, userID); err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if err := o.vectors.Delete(ctx, id); err != nil {
		o.logger.Warn("vector delete failed", "contact_id", id, "error", err)
	}
	return nil
}

func (o *Orchestrator) commitUpdate(ctx context.Context, userID int64, id string, upd *store.ContactUpdate) (*store.Contact, error) {
	contact, err := o.contacts.Update(ctx, id, userID, *upd)
	if err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}
	// New information about someone counts as an interaction, so the update
	// also rotates them out of the recall pool.
	if err := o.contacts.Touch(ctx, id, userID, time.Now()); err != nil {
		o.logger.Warn("interaction touch failed", "contact_id", id, "error", err)
	}
	o.indexContact(ctx, contact)
	return contact, nil
}

// indexContact (re)embeds a contact into the vector index. Indexing is
// best-effort: the relational row is the source of truth and keyword search
// still finds an unindexed contact.
func (o *Orchestrator) indexContact(ctx context.Context, c *store.Contact) {
	vector, err := o.llm.Embed(ctx, embedText(c))
	if err != nil {
		o.logger.Warn("contact embedding failed", "contact_id", c.ID, "error", err)
		return
	}
	if err := o.vectors.Upsert(ctx, c, vector); err != nil {
		o.logger.Warn("vector upsert failed", "contact_id", c.ID, "error", err)
	}
}

// embedText builds the text embedded for a contact.
func embedText(c *store.Contact) string {
	parts := []string{c.Name, c.Summary}
	if c.Meta.Role != "" {
		parts = append(parts, c.Meta.Role)
	}
	if c.Meta.Company != "" {
		parts = append(parts, c.Meta.Company)
	}
	parts = append(parts, c.Meta.Interests...)
	parts = append(parts, c.Meta.Hobbies...)
	parts = append(parts, c.Meta.Needs...)
	if c.RawText != "" {
		parts = append(parts, c.RawText)
	}
	return strings.Join(parts, "\n")
}

// finishText closes the turn with a plain answer. When the last tool step was
// a search and the model's reply is short, the structured result list is a
// better rendition than a compressed sentence, so it rides along.
func (o *Orchestrator) finishText(ctx context.Context, userID int64, state *turnState, reply string) Outcome {
	reply = sanitizeReply(reply)
	if reply == "" {
		reply = "Sorry, I lost my train of thought. Could you rephrase that?"
	}

	outcome := textOutcome(reply)
	if len(state.lastResults) > 0 && len([]rune(reply)) < o.cfg.ShortTextThreshold {
		outcome = Outcome{
			Kind:    OutcomeSearchResults,
			Text:    reply,
			Results: state.lastResults,
		}
	}
	o.recordOutcome(ctx, userID, outcome)
	return outcome
}

// recordOutcome appends the assistant side of the turn to history.
func (o *Orchestrator) recordOutcome(ctx context.Context, userID int64, outcome Outcome) {
	content := outcome.Text
	switch outcome.Kind {
	case OutcomeDraftPending:
		content = fmt.Sprintf("Proposed saving %q, awaiting confirmation.", outcome.Draft.Name)
	case OutcomeDeletePending:
		content = fmt.Sprintf("Proposed deleting %q, awaiting confirmation.", outcome.Contact.Name)
	case OutcomeUpdatePending:
		content = fmt.Sprintf("Proposed updating %q, awaiting confirmation.", outcome.Contact.Name)
	}
	if content == "" {
		return
	}
	if err := o.history.Append(ctx, store.Turn{
		UserID:    userID,
		Role:      openai.ChatMessageRoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	}); err != nil {
		o.logger.Warn("history append failed", "user_id", userID, "error", err)
	}
}

// sanitizeReply strips markup the model occasionally leaks around a final
// answer.
func sanitizeReply(reply string) string {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")
	return strings.TrimSpace(reply)
}
