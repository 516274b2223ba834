// Package assistant – confirm.go implements the confirmation gate: at most
// one staged risky action per user, correlated to rendered controls by a
// short random token. Process-local by design; scaling out means moving this
// map to a shared TTL store, nothing else changes.
package assistant

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rolobot-ai/rolobot/pkg/rolobot/store"
)

// ErrStaleRequest is returned when a confirmation token does not match the
// currently staged action (or nothing is staged). The triggering control has
// expired; nothing was committed or discarded.
var ErrStaleRequest = errors.New("confirmation request is stale")

// ActionKind identifies a staged risky operation.
type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionDelete ActionKind = "delete"
	ActionUpdate ActionKind = "update"
)

// PendingAction is one in-flight risky operation awaiting confirmation.
type PendingAction struct {
	Kind      ActionKind
	RequestID string

	// Draft is set for creates.
	Draft *store.ContactDraft

	// TargetID and Target are set for deletes and updates.
	TargetID string
	Target   *store.Contact

	// Update is set for updates.
	Update *store.ContactUpdate

	CreatedAt time.Time
}

// ConfirmStore holds at most one pending action per user.
type ConfirmStore struct {
	pending map[int64]*PendingAction
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewConfirmStore creates an empty gate.
func NewConfirmStore(logger *slog.Logger) *ConfirmStore {
	return &ConfirmStore{
		pending: make(map[int64]*PendingAction),
		logger:  logger.With("component", "confirm_gate"),
	}
}

// Stage stores an action for the user, overwriting any prior entry, and
// returns the fresh correlation token. Staging never queues: the old action
// is gone and its token is dead.
func (s *ConfirmStore) Stage(userID int64, action PendingAction) string {
	action.RequestID = uuid.NewString()[:8]
	action.CreatedAt = time.Now()

	s.mu.Lock()
	replaced := s.pending[userID] != nil
	s.pending[userID] = &action
	s.mu.Unlock()

	s.logger.Debug("action staged",
		"user_id", userID, "kind", action.Kind,
		"request_id", action.RequestID, "replaced", replaced)
	return action.RequestID
}

// Resolve removes and returns the pending action iff requestID matches the
// staged token. A mismatch (including "nothing staged") returns
// ErrStaleRequest and leaves state untouched — a click on an old control
// must never act on a newer action.
func (s *ConfirmStore) Resolve(userID int64, requestID string) (*PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.pending[userID]
	if entry == nil || entry.RequestID != requestID {
		return nil, ErrStaleRequest
	}
	delete(s.pending, userID)
	return entry, nil
}

// Discard removes any pending entry unconditionally.
func (s *ConfirmStore) Discard(userID int64) {
	s.mu.Lock()
	delete(s.pending, userID)
	s.mu.Unlock()
}

// Peek returns the pending entry without consuming it, or nil. Used by the
// free-text ("yes") path, which has no control token to check.
func (s *ConfirmStore) Peek(userID int64) *PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[userID]
}

// Take removes and returns the pending entry without a token check, or nil.
// Free-text confirmation trusts whatever is currently staged.
func (s *ConfirmStore) Take(userID int64) *PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.pending[userID]
	delete(s.pending, userID)
	return entry
}
