package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rolobot-ai/rolobot/pkg/rolobot/store"
)

// ---------- Fakes ----------

// fakeModel returns scripted assistant messages in order.
type fakeModel struct {
	script    []openai.ChatCompletionMessage
	calls     int
	completes int
}

func (m *fakeModel) ChatWithTools(_ context.Context, _ []openai.ChatCompletionMessage, _ []openai.Tool) (*openai.ChatCompletionMessage, error) {
	if m.calls >= len(m.script) {
		return nil, fmt.Errorf("fake model script exhausted after %d calls", m.calls)
	}
	msg := m.script[m.calls]
	m.calls++
	return &msg, nil
}

func (m *fakeModel) Complete(_ context.Context, _ []openai.ChatCompletionMessage) (string, error) {
	m.completes++
	return "Sorry, I couldn't finish that. What exactly should I do?", nil
}

func (m *fakeModel) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type fakeExtractor struct {
	draft  *store.ContactDraft
	update *store.ContactUpdate
	err    error
}

func (e *fakeExtractor) Extract(_ context.Context, userID int64, text string) (*store.ContactDraft, error) {
	if e.err != nil {
		return nil, e.err
	}
	d := *e.draft
	d.UserID = userID
	d.RawText = text
	return &d, nil
}

func (e *fakeExtractor) Refine(_ context.Context, _ *store.Contact, text string) (*store.ContactUpdate, error) {
	if e.err != nil {
		return nil, e.err
	}
	u := *e.update
	u.RawText = text
	return &u, nil
}

type fakeSearcher struct {
	results []store.SearchResult
	err     error
	queries []string
}

func (s *fakeSearcher) Search(_ context.Context, query string, _ int64, _ int) ([]store.SearchResult, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

// fakeStore implements ContactStore, HistoryStore, UserStore and VectorIndex
// over in-memory maps.
type fakeStore struct {
	contacts map[string]*store.Contact
	users    map[int64]*store.User
	turns    []store.Turn
	vectors  map[string][]float32
	touched  []string
	nextID   int
	similar  []store.Contact // returned by FindByNameLike
	countErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contacts: map[string]*store.Contact{},
		users:    map[int64]*store.User{},
		vectors:  map[string][]float32{},
	}
}

func (f *fakeStore) Create(_ context.Context, draft store.ContactDraft) (*store.Contact, error) {
	f.nextID++
	c := &store.Contact{
		ID:        fmt.Sprintf("c%d", f.nextID),
		UserID:    draft.UserID,
		OrgID:     draft.OrgID,
		Name:      draft.Name,
		Summary:   draft.Summary,
		Meta:      draft.Meta,
		RawText:   draft.RawText,
		CreatedAt: time.Now(),
	}
	f.contacts[c.ID] = c
	return c, nil
}

func (f *fakeStore) Get(_ context.Context, id string, userID int64) (*store.Contact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return nil, fmt.Errorf("contact %s: %w", id, store.ErrNotFound)
	}
	if c.UserID != userID {
		return nil, fmt.Errorf("contact %s: %w", id, store.ErrAccessDenied)
	}
	return c, nil
}

func (f *fakeStore) Update(ctx context.Context, id string, userID int64, upd store.ContactUpdate) (*store.Contact, error) {
	c, err := f.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if upd.Name != "" {
		c.Name = upd.Name
	}
	c.Summary = upd.Summary
	c.Meta = upd.Meta
	return c, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string, userID int64) error {
	if _, err := f.Get(ctx, id, userID); err != nil {
		return err
	}
	delete(f.contacts, id)
	return nil
}

func (f *fakeStore) GetScoped(_ context.Context, scope store.Scope, id string) (*store.Contact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return nil, fmt.Errorf("contact %s: %w", id, store.ErrNotFound)
	}
	if scope.OrgID != "" {
		if c.OrgID != scope.OrgID {
			return nil, fmt.Errorf("contact %s: %w", id, store.ErrNotFound)
		}
		return c, nil
	}
	if c.UserID != scope.UserID || c.OrgID != "" {
		return nil, fmt.Errorf("contact %s: %w", id, store.ErrNotFound)
	}
	return c, nil
}

func (f *fakeStore) Touch(_ context.Context, id string, _ int64, _ time.Time) error {
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeStore) Count(_ context.Context, userID int64) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	n := 0
	for _, c := range f.contacts {
		if c.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) FindByNameLike(_ context.Context, _ store.Scope, _ string) ([]store.Contact, error) {
	return f.similar, nil
}

func (f *fakeStore) KeywordSearch(_ context.Context, _ store.Scope, _ string, _ int) ([]store.SearchResult, error) {
	return nil, nil
}

func (f *fakeStore) Recent(_ context.Context, _ store.Scope, _ int) ([]store.SearchResult, error) {
	return nil, nil
}

func (f *fakeStore) Overdue(_ context.Context, _ int64, _ int) ([]store.Contact, error) {
	return nil, nil
}

func (f *fakeStore) Append(_ context.Context, turn store.Turn) error {
	f.turns = append(f.turns, turn)
	return nil
}

func (f *fakeStore) Tail(_ context.Context, _ int64, _ int) ([]store.Turn, error) { return nil, nil }

func (f *fakeStore) GetUser(_ context.Context, id int64) (*store.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return u, nil
}

func (f *fakeStore) UpsertUser(_ context.Context, u store.User) error {
	f.users[u.ID] = &u
	return nil
}

func (f *fakeStore) Memberships(_ context.Context, _ int64) ([]store.Membership, error) {
	return nil, nil
}

func (f *fakeStore) IncrementFreeSearches(_ context.Context, _ int64, _ string) (int, error) {
	return 0, nil
}

func (f *fakeStore) RecallSettings(_ context.Context, _ int64) (*store.RecallSettings, error) {
	return nil, nil
}

func (f *fakeStore) SaveRecallSettings(_ context.Context, _ store.RecallSettings) error { return nil }

func (f *fakeStore) RecallCandidates(_ context.Context) ([]int64, error) { return nil, nil }

func (f *fakeStore) Upsert(_ context.Context, c *store.Contact, vector []float32) error {
	f.vectors[c.ID] = vector
	return nil
}

func (f *fakeStore) Query(_ context.Context, _ store.Scope, _ []float32, _ float32, _ int) ([]store.VectorHit, error) {
	return nil, nil
}

// fakeVectors separates the VectorIndex Delete from the ContactStore Delete.
type fakeVectors struct {
	inner   *fakeStore
	deleted []string
}

func (v *fakeVectors) Upsert(ctx context.Context, c *store.Contact, vector []float32) error {
	return v.inner.Upsert(ctx, c, vector)
}

func (v *fakeVectors) Delete(_ context.Context, id string) error {
	v.deleted = append(v.deleted, id)
	return nil
}

func (v *fakeVectors) Query(ctx context.Context, scope store.Scope, vector []float32, threshold float32, limit int) ([]store.VectorHit, error) {
	return v.inner.Query(ctx, scope, vector, threshold, limit)
}

// ---------- Helpers ----------

func toolCallMsg(name, args string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:       "call-1",
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: name, Arguments: args},
		}},
	}
}

func textMsg(text string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text}
}

type testRig struct {
	orch     *Orchestrator
	model    *fakeModel
	searcher *fakeSearcher
	db       *fakeStore
	vectors  *fakeVectors
	gate     *ConfirmStore
}

func newTestRig(t *testing.T, model *fakeModel, ex *fakeExtractor, searcher *fakeSearcher) *testRig {
	t.Helper()
	db := newFakeStore()
	vectors := &fakeVectors{inner: db}
	gate := NewConfirmStore(slog.Default())
	prompts, err := LoadPrompts("", slog.Default())
	if err != nil {
		t.Fatalf("load prompts: %v", err)
	}

	cfg := DefaultConfig().Agent
	orch := NewOrchestrator(model, ex, searcher, db, db, db, vectors, gate, prompts, cfg, slog.Default())
	return &testRig{orch: orch, model: model, searcher: searcher, db: db, vectors: vectors, gate: gate}
}

// ---------- Tests ----------

func TestRunPlainAnswer(t *testing.T) {
	model := &fakeModel{script: []openai.ChatCompletionMessage{
		textMsg("Hi! Tell me about someone you met."),
	}}
	rig := newTestRig(t, model, &fakeExtractor{}, &fakeSearcher{})

	out, err := rig.orch.Run(context.Background(), 1, "hello")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Kind != OutcomeText {
		t.Fatalf("expected OutcomeText, got %v", out.Kind)
	}
	if out.Text != "Hi! Tell me about someone you met." {
		t.Fatalf("wrong text: %q", out.Text)
	}

	// Both sides of the turn are logged.
	if len(rig.db.turns) != 2 {
		t.Fatalf("expected 2 history turns, got %d", len(rig.db.turns))
	}
}

func TestRunSearchFlow(t *testing.T) {
	results := []store.SearchResult{
		{ID: "c1", Name: "Anna", Summary: "ML at Stripe"},
		{ID: "c2", Name: "Boris", Summary: "VC"},
	}

	t.Run("short reply carries the structured results", func(t *testing.T) {
		model := &fakeModel{script: []openai.ChatCompletionMessage{
			toolCallMsg(toolSearchContacts, `{"query":"fintech"}`),
			textMsg("Found 2 people."),
		}}
		rig := newTestRig(t, model, &fakeExtractor{}, &fakeSearcher{results: results})

		out, err := rig.orch.Run(context.Background(), 1, "who do I know in fintech?")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.Kind != OutcomeSearchResults {
			t.Fatalf("expected OutcomeSearchResults, got %v", out.Kind)
		}
		if len(out.Results) != 2 || out.Results[0].ID != "c1" {
			t.Fatalf("wrong results: %+v", out.Results)
		}
	})

	t.Run("long reply stays textual", func(t *testing.T) {
		long := strings.Repeat("Anna works on fraud models at Stripe. ", 5)
		model := &fakeModel{script: []openai.ChatCompletionMessage{
			toolCallMsg(toolSearchContacts, `{"query":"fintech"}`),
			textMsg(long),
		}}
		rig := newTestRig(t, model, &fakeExtractor{}, &fakeSearcher{results: results})

		out, err := rig.orch.Run(context.Background(), 1, "who do I know in fintech?")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.Kind != OutcomeText {
			t.Fatalf("expected OutcomeText, got %v", out.Kind)
		}
	})

	t.Run("results persist as a system turn", func(t *testing.T) {
		model := &fakeModel{script: []openai.ChatCompletionMessage{
			toolCallMsg(toolSearchContacts, `{"query":"fintech"}`),
			textMsg("Found 2 people."),
		}}
		rig := newTestRig(t, model, &fakeExtractor{}, &fakeSearcher{results: results})

		if _, err := rig.orch.Run(context.Background(), 1, "who do I know in fintech?"); err != nil {
			t.Fatalf("run: %v", err)
		}

		// The listing must survive into history so the next utterance can
		// name a result without searching again.
		var sys *store.Turn
		for i := range rig.db.turns {
			if rig.db.turns[i].Role == openai.ChatMessageRoleSystem {
				sys = &rig.db.turns[i]
			}
		}
		if sys == nil {
			t.Fatalf("no system turn persisted, got %+v", rig.db.turns)
		}
		if !strings.Contains(sys.Content, "id=c1") || !strings.Contains(sys.Content, "Anna") {
			t.Fatalf("system turn must carry ids and names: %q", sys.Content)
		}
	})

	t.Run("quota exhaustion is a terminal answer", func(t *testing.T) {
		model := &fakeModel{script: []openai.ChatCompletionMessage{
			toolCallMsg(toolSearchContacts, `{"query":"acme designers"}`),
		}}
		rig := newTestRig(t, model, &fakeExtractor{}, &fakeSearcher{err: store.ErrQuotaExceeded})

		out, err := rig.orch.Run(context.Background(), 1, "find designers in acme")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.Kind != OutcomeText || !strings.Contains(out.Text, "free searches") {
			t.Fatalf("expected quota message, got %+v", out)
		}
	})
}

func TestRunAddContact(t *testing.T) {
	draft := &store.ContactDraft{Name: "Anna", Summary: "ML at Stripe"}

	t.Run("cautious persona stages a draft", func(t *testing.T) {
		model := &fakeModel{script: []openai.ChatCompletionMessage{
			toolCallMsg(toolAddContact, `{"text":"met Anna, ML at Stripe"}`),
		}}
		rig := newTestRig(t, model, &fakeExtractor{draft: draft}, &fakeSearcher{})

		out, err := rig.orch.Run(context.Background(), 1, "met Anna, ML at Stripe")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.Kind != OutcomeDraftPending {
			t.Fatalf("expected OutcomeDraftPending, got %v", out.Kind)
		}
		if out.RequestID == "" || out.Draft.Name != "Anna" {
			t.Fatalf("incomplete pending outcome: %+v", out)
		}
		if len(rig.db.contacts) != 0 {
			t.Fatal("nothing may be written before confirmation")
		}
		if rig.gate.Peek(1) == nil {
			t.Fatal("draft was not staged")
		}
	})

	t.Run("relaxed persona commits immediately", func(t *testing.T) {
		model := &fakeModel{script: []openai.ChatCompletionMessage{
			toolCallMsg(toolAddContact, `{"text":"met Anna, ML at Stripe"}`),
		}}
		rig := newTestRig(t, model, &fakeExtractor{draft: draft}, &fakeSearcher{})
		rig.db.users[1] = &store.User{ID: 1, ConfirmCreate: false, ConfirmMutate: false}

		out, err := rig.orch.Run(context.Background(), 1, "met Anna, ML at Stripe")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.Kind != OutcomeRecordSaved {
			t.Fatalf("expected OutcomeRecordSaved, got %v", out.Kind)
		}
		if len(rig.db.contacts) != 1 {
			t.Fatalf("expected 1 stored contact, got %d", len(rig.db.contacts))
		}
		if len(rig.db.vectors) != 1 {
			t.Fatal("committed contact was not indexed")
		}
	})

	t.Run("duplicate name feeds back into the loop", func(t *testing.T) {
		model := &fakeModel{script: []openai.ChatCompletionMessage{
			toolCallMsg(toolAddContact, `{"text":"met Anna again"}`),
			textMsg("You already have an Anna on file. Update her card or save a new one?"),
		}}
		rig := newTestRig(t, model, &fakeExtractor{draft: draft}, &fakeSearcher{})
		rig.db.similar = []store.Contact{{ID: "c9", Name: "Anna", Summary: "old card"}}

		out, err := rig.orch.Run(context.Background(), 1, "met Anna again")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.Kind != OutcomeText {
			t.Fatalf("expected the model's follow-up question, got %v", out.Kind)
		}
		if rig.gate.Peek(1) != nil {
			t.Fatal("nothing may be staged on a duplicate conflict")
		}
	})

	t.Run("free tier contact cap", func(t *testing.T) {
		model := &fakeModel{script: []openai.ChatCompletionMessage{
			toolCallMsg(toolAddContact, `{"text":"met one more person"}`),
		}}
		rig := newTestRig(t, model, &fakeExtractor{draft: draft}, &fakeSearcher{})
		for i := 0; i < DefaultConfig().Agent.FreeContactLimit; i++ {
			rig.db.Create(context.Background(), store.ContactDraft{UserID: 1, Name: fmt.Sprintf("P%d", i)})
		}

		out, err := rig.orch.Run(context.Background(), 1, "met one more person")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.Kind != OutcomeText || !strings.Contains(out.Text, "limit") {
			t.Fatalf("expected limit message, got %+v", out)
		}
	})
}

func TestRunDeleteContact(t *testing.T) {
	t.Run("stages with confirmation on", func(t *testing.T) {
		model := &fakeModel{script: []openai.ChatCompletionMessage{
			toolCallMsg(toolDeleteContact, `{"contact_id":"c1"}`),
		}}
		rig := newTestRig(t, model, &fakeExtractor{}, &fakeSearcher{})
		rig.db.contacts["c1"] = &store.Contact{ID: "c1", UserID: 1, Name: "Anna"}

		out, err := rig.orch.Run(context.Background(), 1, "delete anna")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.Kind != OutcomeDeletePending || out.Contact.ID != "c1" {
			t.Fatalf("expected OutcomeDeletePending for c1, got %+v", out)
		}
		if _, ok := rig.db.contacts["c1"]; !ok {
			t.Fatal("record must survive until confirmation")
		}
	})

	t.Run("foreign record is denied out loud", func(t *testing.T) {
		model := &fakeModel{script: []openai.ChatCompletionMessage{
			toolCallMsg(toolDeleteContact, `{"contact_id":"c1"}`),
		}}
		rig := newTestRig(t, model, &fakeExtractor{}, &fakeSearcher{})
		rig.db.contacts["c1"] = &store.Contact{ID: "c1", UserID: 99, Name: "Anna"}

		out, err := rig.orch.Run(context.Background(), 1, "delete c1")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.Kind != OutcomeText || !strings.Contains(out.Text, "permission") {
			t.Fatalf("expected explicit denial, got %+v", out)
		}
		if _, ok := rig.db.contacts["c1"]; !ok {
			t.Fatal("foreign record must be untouched")
		}
	})

	t.Run("unknown id feeds back into the loop", func(t *testing.T) {
		model := &fakeModel{script: []openai.ChatCompletionMessage{
			toolCallMsg(toolDeleteContact, `{"contact_id":"ghost"}`),
			textMsg("I couldn't find that contact. Who do you mean?"),
		}}
		rig := newTestRig(t, model, &fakeExtractor{}, &fakeSearcher{})

		out, err := rig.orch.Run(context.Background(), 1, "delete ghost")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.Kind != OutcomeText {
			t.Fatalf("expected recovery text, got %v", out.Kind)
		}
	})
}

func TestConfirmFlow(t *testing.T) {
	t.Run("token confirm commits the staged create", func(t *testing.T) {
		rig := newTestRig(t, &fakeModel{}, &fakeExtractor{}, &fakeSearcher{})
		id := rig.gate.Stage(1, PendingAction{
			Kind:  ActionCreate,
			Draft: &store.ContactDraft{UserID: 1, Name: "Anna"},
		})

		out, err := rig.orch.Confirm(context.Background(), 1, id)
		if err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if out.Kind != OutcomeConfirmed {
			t.Fatalf("expected OutcomeConfirmed, got %v", out.Kind)
		}
		if len(rig.db.contacts) != 1 {
			t.Fatal("confirmed create was not committed")
		}
	})

	t.Run("stale token changes nothing", func(t *testing.T) {
		rig := newTestRig(t, &fakeModel{}, &fakeExtractor{}, &fakeSearcher{})
		rig.gate.Stage(1, PendingAction{
			Kind:  ActionCreate,
			Draft: &store.ContactDraft{UserID: 1, Name: "Anna"},
		})

		out, err := rig.orch.Confirm(context.Background(), 1, "deadbeef")
		if err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if out.Kind != OutcomeText || !strings.Contains(out.Text, "expired") {
			t.Fatalf("expected expiry message, got %+v", out)
		}
		if len(rig.db.contacts) != 0 {
			t.Fatal("stale confirm committed an action")
		}
		if rig.gate.Peek(1) == nil {
			t.Fatal("stale confirm consumed the staged action")
		}
	})

	t.Run("confirm tool commits the staged delete", func(t *testing.T) {
		model := &fakeModel{script: []openai.ChatCompletionMessage{
			toolCallMsg(toolConfirmAction, ``),
		}}
		rig := newTestRig(t, model, &fakeExtractor{}, &fakeSearcher{})
		rig.db.contacts["c1"] = &store.Contact{ID: "c1", UserID: 1, Name: "Anna"}
		rig.gate.Stage(1, PendingAction{
			Kind:     ActionDelete,
			TargetID: "c1",
			Target:   rig.db.contacts["c1"],
		})

		out, err := rig.orch.Run(context.Background(), 1, "yes, go ahead")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.Kind != OutcomeConfirmed {
			t.Fatalf("expected OutcomeConfirmed, got %v", out.Kind)
		}
		if _, ok := rig.db.contacts["c1"]; ok {
			t.Fatal("confirmed delete left the record")
		}
		if len(rig.vectors.deleted) != 1 || rig.vectors.deleted[0] != "c1" {
			t.Fatalf("embedding not removed: %v", rig.vectors.deleted)
		}
	})

	t.Run("confirm commits the staged update and marks the interaction", func(t *testing.T) {
		rig := newTestRig(t, &fakeModel{}, &fakeExtractor{}, &fakeSearcher{})
		rig.db.contacts["c1"] = &store.Contact{ID: "c1", UserID: 1, Name: "Anna", Summary: "old card"}
		id := rig.gate.Stage(1, PendingAction{
			Kind:     ActionUpdate,
			TargetID: "c1",
			Target:   rig.db.contacts["c1"],
			Update:   &store.ContactUpdate{Summary: "now leads ML at Stripe"},
		})

		out, err := rig.orch.Confirm(context.Background(), 1, id)
		if err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if out.Kind != OutcomeConfirmed {
			t.Fatalf("expected OutcomeConfirmed, got %v", out.Kind)
		}
		if rig.db.contacts["c1"].Summary != "now leads ML at Stripe" {
			t.Fatalf("update not applied: %+v", rig.db.contacts["c1"])
		}
		if len(rig.db.touched) != 1 || rig.db.touched[0] != "c1" {
			t.Fatalf("update must refresh the interaction timestamp: %v", rig.db.touched)
		}
	})

	t.Run("cancel tool discards", func(t *testing.T) {
		model := &fakeModel{script: []openai.ChatCompletionMessage{
			toolCallMsg(toolCancelAction, ``),
		}}
		rig := newTestRig(t, model, &fakeExtractor{}, &fakeSearcher{})
		rig.gate.Stage(1, PendingAction{
			Kind:  ActionCreate,
			Draft: &store.ContactDraft{UserID: 1, Name: "Anna"},
		})

		out, err := rig.orch.Run(context.Background(), 1, "no, nevermind")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.Kind != OutcomeCancelled {
			t.Fatalf("expected OutcomeCancelled, got %v", out.Kind)
		}
		if rig.gate.Peek(1) != nil {
			t.Fatal("cancel left the action staged")
		}
		if len(rig.db.contacts) != 0 {
			t.Fatal("cancelled create was committed")
		}
	})
}

func TestRunStepBudget(t *testing.T) {
	// The model loops on searches forever; the orchestrator must cut it off
	// after MaxSteps and force a plain answer.
	script := make([]openai.ChatCompletionMessage, DefaultConfig().Agent.MaxSteps)
	for i := range script {
		script[i] = toolCallMsg(toolSearchContacts, `{"query":"anything"}`)
	}
	model := &fakeModel{script: script}
	rig := newTestRig(t, model, &fakeExtractor{}, &fakeSearcher{})

	out, err := rig.orch.Run(context.Background(), 1, "do something complicated")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if model.calls != DefaultConfig().Agent.MaxSteps {
		t.Fatalf("expected exactly %d tool-loop calls, got %d", DefaultConfig().Agent.MaxSteps, model.calls)
	}
	if model.completes != 1 {
		t.Fatalf("expected one forced completion, got %d", model.completes)
	}
	if out.Kind != OutcomeText || out.Text == "" {
		t.Fatalf("expected fallback text, got %+v", out)
	}
}

func TestRunStoreOutageFeedsBack(t *testing.T) {
	// A storage failure inside a tool step stays inside the loop: the model
	// sees it as a tool result and can still close the turn.
	model := &fakeModel{script: []openai.ChatCompletionMessage{
		toolCallMsg(toolAddContact, `{"text":"met Anna"}`),
		textMsg("Something went wrong saving that. Mind trying again in a minute?"),
	}}
	rig := newTestRig(t, model, &fakeExtractor{draft: &store.ContactDraft{Name: "Anna"}}, &fakeSearcher{})
	rig.db.countErr = errors.New("db locked")

	out, err := rig.orch.Run(context.Background(), 1, "met Anna")
	if err != nil {
		t.Fatalf("store outage must not abort the turn: %v", err)
	}
	if out.Kind != OutcomeText {
		t.Fatalf("expected the model's apology, got %v", out.Kind)
	}
}

func TestRunUpstreamFailure(t *testing.T) {
	model := &fakeModel{} // empty script: first call errors
	rig := newTestRig(t, model, &fakeExtractor{}, &fakeSearcher{})

	_, err := rig.orch.Run(context.Background(), 1, "hello")
	if err == nil {
		t.Fatal("expected the provider failure to surface")
	}
	if !strings.Contains(err.Error(), "model call") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadUserDefaults(t *testing.T) {
	rig := newTestRig(t, &fakeModel{}, &fakeExtractor{}, &fakeSearcher{})

	u, err := rig.orch.loadUser(context.Background(), 42)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if !u.ConfirmCreate || !u.ConfirmMutate {
		t.Fatalf("unknown users must default to the cautious persona: %+v", u)
	}
}
