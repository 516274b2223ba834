// Package store – types.go defines the persistent record types shared by the
// assistant, search, and recall subsystems, plus the sentinel errors that the
// conversational layer turns into user-facing text.
package store

import (
	"errors"
	"time"
)

// Sentinel errors. AccessDenied is never collapsed into NotFound: the caller
// must be able to tell "this exists but isn't yours" from "this doesn't exist".
var (
	ErrNotFound      = errors.New("record not found")
	ErrAccessDenied  = errors.New("access denied")
	ErrQuotaExceeded = errors.New("organization search quota exceeded")
)

// ContactMeta holds the structured metadata the extractor pulls out of free
// text. All fields are optional.
type ContactMeta struct {
	Role      string   `json:"role,omitempty" yaml:"role,omitempty"`
	Company   string   `json:"company,omitempty" yaml:"company,omitempty"`
	Interests []string `json:"interests,omitempty" yaml:"interests,omitempty"`
	Hobbies   []string `json:"hobbies,omitempty" yaml:"hobbies,omitempty"`
	Phones    []string `json:"phones,omitempty" yaml:"phones,omitempty"`
	Emails    []string `json:"emails,omitempty" yaml:"emails,omitempty"`
	Social    []string `json:"social,omitempty" yaml:"social,omitempty"`
	Needs     []string `json:"needs,omitempty" yaml:"needs,omitempty"`
}

// Contact is a person or free-form note owned by a user, optionally scoped to
// an organization the owner is an approved member of.
type Contact struct {
	ID              string
	UserID          int64
	OrgID           string // empty = personal scope
	Name            string
	Summary         string
	Meta            ContactMeta
	RawText         string
	CreatedAt       time.Time
	LastInteraction *time.Time // nil = never contacted
	Archived        bool
}

// ContactDraft is an extracted contact that has not been persisted yet.
// It becomes a Contact on confirmation (or immediately when confirmation is
// disabled).
type ContactDraft struct {
	UserID  int64
	OrgID   string
	Name    string
	Summary string
	Meta    ContactMeta
	RawText string
}

// ContactUpdate carries refined fields for an existing contact.
type ContactUpdate struct {
	Name    string
	Summary string
	Meta    ContactMeta
	RawText string
}

// SearchResult is a transient retrieval hit. Score is the vector similarity
// for vector hits and zero for keyword hits.
type SearchResult struct {
	ID      string
	Name    string
	Summary string
	Meta    ContactMeta
	OrgName string
	Score   float32
}

// Turn is one stored conversation message. System-role turns carry hidden
// machine context (search dumps, tool echoes) that is replayed to the model
// but never shown to the user.
type Turn struct {
	UserID    int64
	Role      string // "user", "assistant", "system"
	Content   string
	CreatedAt time.Time
}

// User is the bot user with entitlement tier and confirmation preferences.
type User struct {
	ID            int64
	Username      string
	FullName      string
	Bio           string
	Premium       bool
	ConfirmCreate bool
	ConfirmMutate bool // covers delete and update
	TermsAccepted bool
	CreatedAt     time.Time
}

// Org is a shared record-visibility scope.
type Org struct {
	ID      string
	Name    string
	OwnerID int64
}

// Membership statuses.
const (
	MemberPending  = "pending"
	MemberApproved = "approved"
)

// Membership links a user to an organization. Pending members may run a
// limited number of org-scoped searches before approval.
type Membership struct {
	UserID          int64
	OrgID           string
	OrgName         string
	Role            string // "owner", "member"
	Status          string // MemberPending or MemberApproved
	FreeSearchesUsed int
}

// RecallSettings holds the per-user proactive recall schedule.
// LastSentDate is the double-send latch, formatted as "2006-01-02" in the
// user's local day.
type RecallSettings struct {
	UserID       int64
	Enabled      bool
	Weekdays     []time.Weekday
	Hour         int
	Minute       int
	Focus        string
	LastManualAt *time.Time
	LastSentDate string
}

// ActiveOn reports whether the given weekday is in the configured set.
func (r RecallSettings) ActiveOn(d time.Weekday) bool {
	for _, w := range r.Weekdays {
		if w == d {
			return true
		}
	}
	return false
}

// EarliestWeekday returns the smallest configured weekday (Sunday=0).
// Free-tier users are restricted to this single day.
func (r RecallSettings) EarliestWeekday() (time.Weekday, bool) {
	if len(r.Weekdays) == 0 {
		return 0, false
	}
	min := r.Weekdays[0]
	for _, w := range r.Weekdays[1:] {
		if w < min {
			min = w
		}
	}
	return min, true
}
