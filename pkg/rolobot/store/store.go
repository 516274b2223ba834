// Package store – store.go declares the persistence capabilities the rest of
// the system depends on. The relational store and the vector index are
// external collaborators behind these interfaces; the SQLite and Qdrant
// adapters in this package are the default implementations.
package store

import (
	"context"
	"time"
)

// Scope constrains a search to one user's personal records or to one
// organization's shared records.
type Scope struct {
	UserID int64
	OrgID  string // non-empty = org scope
}

// ContactStore is the relational capability over contacts.
type ContactStore interface {
	// Create persists a new contact and returns it with ID and CreatedAt set.
	Create(ctx context.Context, draft ContactDraft) (*Contact, error)

	// Get fetches a contact by id and verifies the requesting user may see
	// it. Returns ErrNotFound if the id doesn't exist and ErrAccessDenied if
	// it exists but is not visible to userID.
	Get(ctx context.Context, id string, userID int64) (*Contact, error)

	// GetScoped fetches a contact by id constrained to an already-authorized
	// search scope, the same filter KeywordSearch applies. Returns ErrNotFound
	// when the id doesn't exist inside the scope.
	GetScoped(ctx context.Context, scope Scope, id string) (*Contact, error)

	// Update applies refined fields to an owned contact (ownership-checked).
	Update(ctx context.Context, id string, userID int64, upd ContactUpdate) (*Contact, error)

	// Delete removes an owned contact (ownership-checked).
	Delete(ctx context.Context, id string, userID int64) error

	// Touch sets the last-interaction timestamp.
	Touch(ctx context.Context, id string, userID int64, at time.Time) error

	// Count returns the number of non-archived contacts the user owns.
	Count(ctx context.Context, userID int64) (int, error)

	// FindByNameLike returns non-archived contacts in scope whose name
	// contains the fragment (case-insensitive). Used for duplicate checks.
	FindByNameLike(ctx context.Context, scope Scope, fragment string) ([]Contact, error)

	// KeywordSearch matches query against name+summary in scope.
	KeywordSearch(ctx context.Context, scope Scope, query string, limit int) ([]SearchResult, error)

	// Recent returns the newest non-archived contacts in scope.
	Recent(ctx context.Context, scope Scope, limit int) ([]SearchResult, error)

	// Overdue returns up to limit contacts ordered by last interaction
	// ascending with never-contacted first. Feeds the recall sampler.
	Overdue(ctx context.Context, userID int64, limit int) ([]Contact, error)
}

// VectorHit is an ANN match by contact id.
type VectorHit struct {
	ID    string
	Score float32
}

// VectorIndex is the approximate-nearest-neighbor capability over contact
// embeddings.
type VectorIndex interface {
	// Upsert writes the embedding for a contact.
	Upsert(ctx context.Context, c *Contact, vector []float32) error

	// Delete removes a contact's embedding.
	Delete(ctx context.Context, id string) error

	// Query returns hits in scope with similarity >= threshold.
	Query(ctx context.Context, scope Scope, vector []float32, threshold float32, limit int) ([]VectorHit, error)
}

// HistoryStore is the append-only conversation log.
type HistoryStore interface {
	// Append stores one turn.
	Append(ctx context.Context, turn Turn) error

	// Tail returns the most recent turns for the user, oldest first,
	// capped at depth.
	Tail(ctx context.Context, userID int64, depth int) ([]Turn, error)
}

// UserStore manages users, memberships, and recall settings.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	UpsertUser(ctx context.Context, u User) error

	// Memberships returns the orgs the user belongs to (any status).
	Memberships(ctx context.Context, userID int64) ([]Membership, error)

	// IncrementFreeSearches bumps the pending-member search counter and
	// returns the new value. No-op (returns 0) for approved members.
	IncrementFreeSearches(ctx context.Context, userID int64, orgID string) (int, error)

	// RecallSettings returns the user's recall schedule, or nil when the
	// user has never configured one.
	RecallSettings(ctx context.Context, userID int64) (*RecallSettings, error)
	SaveRecallSettings(ctx context.Context, rs RecallSettings) error

	// RecallCandidates lists the ids of users with recall enabled.
	RecallCandidates(ctx context.Context) ([]int64, error)
}
