// Package recall proactively reminds users about contacts they have not
// touched in a while. A cron tick sweeps all users with recall configured,
// checks each one's schedule, samples a couple of overdue contacts and sends
// a short model-written nudge. At most one nudge per user per day; a failed
// delivery leaves the daily latch alone so the next tick retries while the
// window is still open.
package recall

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"

	"github.com/rolobot-ai/rolobot/pkg/rolobot/store"
)

// latchLayout formats the once-per-day latch date.
const latchLayout = "2006-01-02"

// tickMaxRetries bounds the backoff around one sweep.
const tickMaxRetries = 2

// Sender delivers a recall message to a user on whatever surface the service
// runs behind.
type Sender interface {
	SendRecall(ctx context.Context, userID int64, text string) error
}

// TextModel is the slice of the model client the scheduler needs.
type TextModel interface {
	CompleteText(ctx context.Context, system, user string) (string, error)
}

// Options tunes the scheduler.
type Options struct {
	// WindowMinutes is how long after the configured time a user stays
	// eligible. The window is [0, WindowMinutes) from hh:mm.
	WindowMinutes int

	// PoolSize is how many most-overdue contacts the sampler draws from.
	PoolSize int

	// BatchSize is how many contacts one nudge may reference.
	BatchSize int

	// SendDelay is the pause between per-user sends within one tick.
	SendDelay time.Duration

	// Prompt is the system prompt for nudge generation.
	Prompt string
}

// Scheduler runs the recall sweep.
type Scheduler struct {
	users    store.UserStore
	contacts store.ContactStore
	llm      TextModel
	sender   Sender
	opts     Options
	logger   *slog.Logger
	cron     *cron.Cron
	rng      *rand.Rand

	// now is swappable for tests.
	now func() time.Time
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(users store.UserStore, contacts store.ContactStore, llm TextModel, sender Sender, opts Options, logger *slog.Logger) *Scheduler {
	if opts.WindowMinutes <= 0 {
		opts.WindowMinutes = 60
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 20
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 2
	}
	return &Scheduler{
		users:    users,
		contacts: contacts,
		llm:      llm,
		sender:   sender,
		opts:     opts,
		logger:   logger.With("component", "recall"),
		cron:     cron.New(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

// Start schedules the per-minute sweep. Minute granularity matches the
// settings model: users configure hh:mm, the window is measured in minutes.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc("* * * * *", func() {
		s.Tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule recall sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("recall scheduler started",
		"window_minutes", s.opts.WindowMinutes,
		"pool_size", s.opts.PoolSize,
		"batch_size", s.opts.BatchSize)
	return nil
}

// Stop halts the sweep and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("recall scheduler stopped")
}

// Tick runs one sweep, retrying with bounded exponential backoff when the
// pass fails outright (candidate listing unavailable).
func (s *Scheduler) Tick(ctx context.Context) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), tickMaxRetries), ctx)
	if err := backoff.Retry(func() error { return s.sweep(ctx) }, policy); err != nil {
		s.logger.Error("recall sweep failed", "error", err)
	}
}

// sweep visits every user with recall configured. A per-user delivery failure
// is logged and skipped, not retried within the pass; the unlatched user is
// picked up again on a later tick while the window holds.
func (s *Scheduler) sweep(ctx context.Context) error {
	candidates, err := s.users.RecallCandidates(ctx)
	if err != nil {
		return fmt.Errorf("candidate sweep: %w", err)
	}

	now := s.now()
	sent := 0
	for _, userID := range candidates {
		if ctx.Err() != nil {
			return nil
		}
		delivered, err := s.processUser(ctx, userID, now)
		if err != nil {
			s.logger.Warn("recall delivery failed, will retry next tick",
				"user_id", userID, "error", err)
			continue
		}
		if delivered {
			sent++
			if s.opts.SendDelay > 0 {
				time.Sleep(s.opts.SendDelay)
			}
		}
	}
	if sent > 0 {
		s.logger.Info("recall tick done", "candidates", len(candidates), "sent", sent)
	}
	return nil
}

// processUser runs eligibility, sampling, generation and delivery for one
// user. Returns true when a nudge was delivered. The daily latch is advanced
// only after the sender reported success.
func (s *Scheduler) processUser(ctx context.Context, userID int64, now time.Time) (bool, error) {
	rs, err := s.users.RecallSettings(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load settings: %w", err)
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load user: %w", err)
	}

	if !s.eligible(rs, user, now) {
		return false, nil
	}

	picks, err := s.sampleOverdue(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(picks) == 0 {
		return false, nil
	}

	text := s.compose(ctx, user, picks, rs.Focus)

	if err := s.sender.SendRecall(ctx, userID, text); err != nil {
		return false, fmt.Errorf("send: %w", err)
	}

	rs.LastSentDate = now.Format(latchLayout)
	if err := s.users.SaveRecallSettings(ctx, *rs); err != nil {
		// Delivered but unlatched: the user may get a duplicate from a later
		// tick. Better than silently never delivering.
		s.logger.Error("latch save failed after delivery", "user_id", userID, "error", err)
	}
	s.touchPicks(ctx, userID, picks, now)

	s.logger.Info("recall sent", "user_id", userID, "contacts", len(picks))
	return true, nil
}

// touchPicks rotates delivered contacts to the back of the overdue pool.
func (s *Scheduler) touchPicks(ctx context.Context, userID int64, picks []store.Contact, at time.Time) {
	for _, c := range picks {
		if err := s.contacts.Touch(ctx, c.ID, userID, at); err != nil {
			s.logger.Warn("interaction touch failed", "contact_id", c.ID, "error", err)
		}
	}
}

// eligible applies the per-user schedule guards in order: feature on,
// today's weekday active, not already sent today, inside the time window.
func (s *Scheduler) eligible(rs *store.RecallSettings, user *store.User, now time.Time) bool {
	if rs == nil || !rs.Enabled {
		return false
	}

	if user.Premium {
		if !rs.ActiveOn(now.Weekday()) {
			return false
		}
	} else {
		// Free tier gets a single recall day regardless of how many the
		// settings name.
		first, ok := rs.EarliestWeekday()
		if !ok || now.Weekday() != first {
			return false
		}
	}

	if rs.LastSentDate == now.Format(latchLayout) {
		return false
	}

	elapsed := (now.Hour()*60 + now.Minute()) - (rs.Hour*60 + rs.Minute)
	return elapsed >= 0 && elapsed < s.opts.WindowMinutes
}

// sampleOverdue draws up to BatchSize random contacts from the user's
// most-overdue pool. Random sampling keeps repeated nudges from always
// naming the same person.
func (s *Scheduler) sampleOverdue(ctx context.Context, userID int64) ([]store.Contact, error) {
	pool, err := s.contacts.Overdue(ctx, userID, s.opts.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("overdue pool: %w", err)
	}
	if len(pool) <= s.opts.BatchSize {
		return pool, nil
	}

	s.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	return pool[:s.opts.BatchSize], nil
}

// compose writes the nudge text. Generation failure falls back to a plain
// reminder naming the contacts; a recall is still worth sending without the
// model's phrasing.
func (s *Scheduler) compose(ctx context.Context, user *store.User, picks []store.Contact, focus string) string {
	var b strings.Builder
	for _, c := range picks {
		fmt.Fprintf(&b, "Name: %s\n", c.Name)
		if c.Summary != "" {
			fmt.Fprintf(&b, "About: %s\n", c.Summary)
		}
		if c.RawText != "" && c.RawText != c.Summary {
			fmt.Fprintf(&b, "Notes: %s\n", c.RawText)
		}
		b.WriteString("\n")
	}

	system := s.opts.Prompt
	if user != nil && user.Bio != "" {
		system += "\nAbout the user: " + user.Bio
	}
	if focus != "" {
		system += "\nThe user asked to focus these reminders on: " + focus
	}

	text, err := s.llm.CompleteText(ctx, system, b.String())
	if err == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text)
	}
	if err != nil {
		s.logger.Warn("nudge generation failed, using fallback text", "error", err)
	}

	names := make([]string, 0, len(picks))
	for _, c := range picks {
		names = append(names, "<b>"+c.Name+"</b>")
	}
	return fmt.Sprintf("It's been a while since you talked to %s. Maybe reach out today?",
		strings.Join(names, " and "))
}

// Trigger runs an on-demand recall for one user, skipping the weekday, latch
// and window guards. Returns the nudge text for the caller to render; the
// manual timestamp is recorded but the daily latch is left alone so the
// scheduled recall still arrives.
func (s *Scheduler) Trigger(ctx context.Context, userID int64) (string, error) {
	picks, err := s.sampleOverdue(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(picks) == 0 {
		return "", store.ErrNotFound
	}

	rs, err := s.users.RecallSettings(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load settings: %w", err)
	}
	now := s.now()
	var focus string
	if rs != nil {
		focus = rs.Focus
		rs.LastManualAt = &now
		if err := s.users.SaveRecallSettings(ctx, *rs); err != nil {
			s.logger.Warn("manual recall timestamp save failed", "user_id", userID, "error", err)
		}
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		s.logger.Warn("user load failed for manual recall", "user_id", userID, "error", err)
		user = nil
	}

	s.touchPicks(ctx, userID, picks, now)
	return s.compose(ctx, user, picks, focus), nil
}
