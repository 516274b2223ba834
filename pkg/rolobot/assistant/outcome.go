// Package assistant – outcome.go defines the tagged result of one
// orchestrator run. Callers switch on Kind and render each variant; there is
// no "inspect the dynamic type" path.
package assistant

import "github.com/rolobot-ai/rolobot/pkg/rolobot/store"

// OutcomeKind tags the variant carried by an Outcome.
type OutcomeKind int

const (
	// OutcomeText is a plain assistant answer.
	OutcomeText OutcomeKind = iota

	// OutcomeSearchResults carries an ordered result list for the caller to
	// render with interactive controls.
	OutcomeSearchResults

	// OutcomeRecordSaved is a create or update that was committed without
	// confirmation.
	OutcomeRecordSaved

	// OutcomeDraftPending is an extracted draft awaiting create confirmation.
	OutcomeDraftPending

	// OutcomeDeletePending is a delete awaiting confirmation.
	OutcomeDeletePending

	// OutcomeUpdatePending is an update awaiting confirmation.
	OutcomeUpdatePending

	// OutcomeConfirmed is a previously staged action that was just committed.
	OutcomeConfirmed

	// OutcomeCancelled is a previously staged action that was discarded.
	OutcomeCancelled
)

// Outcome is the terminal result of one orchestrator run. Exactly the fields
// relevant to Kind are populated.
type Outcome struct {
	Kind OutcomeKind

	// Text is the answer for OutcomeText and the explanation for
	// OutcomeConfirmed/OutcomeCancelled.
	Text string

	// Results is set for OutcomeSearchResults.
	Results []store.SearchResult

	// Contact is the committed record for OutcomeRecordSaved and
	// OutcomeConfirmed(create/update), and the target for the pending
	// delete/update variants.
	Contact *store.Contact

	// Draft is set for OutcomeDraftPending.
	Draft *store.ContactDraft

	// RequestID correlates the pending variants with their confirmation
	// controls (rendered as "<action>_<token>").
	RequestID string

	// OldSummary/NewSummary are set for OutcomeUpdatePending so the caller
	// can render a before/after view.
	OldSummary string
	NewSummary string
}

func textOutcome(text string) Outcome {
	return Outcome{Kind: OutcomeText, Text: text}
}
