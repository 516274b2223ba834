// Package store – sqlite.go implements the relational capabilities on a
// single SQLite file. One rolobot.db holds users, contacts, organizations,
// memberships, conversation turns, and recall settings. Embeddings live in
// the vector index, not here.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// schema is the DDL executed on every startup (idempotent via IF NOT EXISTS).
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id             INTEGER PRIMARY KEY,
    username       TEXT DEFAULT '',
    full_name      TEXT DEFAULT '',
    bio            TEXT DEFAULT '',
    premium        INTEGER DEFAULT 0,
    confirm_create INTEGER DEFAULT 1,
    confirm_mutate INTEGER DEFAULT 1,
    terms_accepted INTEGER DEFAULT 0,
    created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
    id               TEXT PRIMARY KEY,
    user_id          INTEGER NOT NULL,
    org_id           TEXT DEFAULT '',
    name             TEXT NOT NULL,
    summary          TEXT DEFAULT '',
    meta             TEXT DEFAULT '{}',
    raw_text         TEXT DEFAULT '',
    created_at       TEXT NOT NULL,
    last_interaction TEXT,
    archived         INTEGER DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_contacts_user ON contacts(user_id);
CREATE INDEX IF NOT EXISTS idx_contacts_org ON contacts(org_id);

CREATE TABLE IF NOT EXISTS organizations (
    id       TEXT PRIMARY KEY,
    name     TEXT NOT NULL,
    owner_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS organization_members (
    user_id            INTEGER NOT NULL,
    org_id             TEXT NOT NULL,
    role               TEXT DEFAULT 'member',
    status             TEXT DEFAULT 'pending',
    free_searches_used INTEGER DEFAULT 0,
    PRIMARY KEY (user_id, org_id)
);

-- Conversation log (append-only, one row per turn).
CREATE TABLE IF NOT EXISTS conversation_turns (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    INTEGER NOT NULL,
    role       TEXT NOT NULL,
    content    TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_user ON conversation_turns(user_id, id);

CREATE TABLE IF NOT EXISTS recall_settings (
    user_id        INTEGER PRIMARY KEY,
    enabled        INTEGER DEFAULT 0,
    weekdays       TEXT DEFAULT '',
    hour           INTEGER DEFAULT 15,
    minute         INTEGER DEFAULT 0,
    focus          TEXT DEFAULT '',
    last_manual_at TEXT,
    last_sent_date TEXT DEFAULT ''
);
`

const timeLayout = time.RFC3339

// SQLite implements ContactStore, HistoryStore, and UserStore on one
// database file.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (or creates) the database at path, enables WAL mode, and
// applies the schema.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if path == "" {
		path = "./data/rolobot.db"
	}
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db, logger: logger.With("component", "store")}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }

// ---------- Contacts ----------

// Create persists a new contact.
func (s *SQLite) Create(ctx context.Context, draft ContactDraft) (*Contact, error) {
	if draft.OrgID != "" {
		m, err := s.membership(ctx, draft.UserID, draft.OrgID)
		if err != nil {
			return nil, err
		}
		switch {
		case m == nil:
			// Not a member at all: fall back to personal scope rather than
			// trusting the caller-supplied org id.
			s.logger.Warn("write to foreign org blocked, falling back to personal",
				"user_id", draft.UserID, "org_id", draft.OrgID)
			draft.OrgID = ""
		case m.Status != MemberApproved:
			return nil, fmt.Errorf("org %s membership pending: %w", draft.OrgID, ErrAccessDenied)
		}
	}

	c := &Contact{
		ID:        uuid.NewString(),
		UserID:    draft.UserID,
		OrgID:     draft.OrgID,
		Name:      draft.Name,
		Summary:   draft.Summary,
		Meta:      draft.Meta,
		RawText:   draft.RawText,
		CreatedAt: time.Now().UTC(),
	}

	metaJSON, err := json.Marshal(c.Meta)
	if err != nil {
		return nil, fmt.Errorf("marshal meta: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, user_id, org_id, name, summary, meta, raw_text, created_at, archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		c.ID, c.UserID, c.OrgID, c.Name, c.Summary, string(metaJSON), c.RawText,
		c.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert contact: %w", err)
	}

	s.logger.Info("contact created", "id", c.ID, "user_id", c.UserID, "name", c.Name)
	return c, nil
}

// Get fetches a contact by id only, then checks visibility in code: the
// requester must be the owner or an approved member of the record's org.
func (s *SQLite) Get(ctx context.Context, id string, userID int64) (*Contact, error) {
	c, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if c.UserID == userID {
		return c, nil
	}
	if c.OrgID != "" {
		m, err := s.membership(ctx, userID, c.OrgID)
		if err != nil {
			return nil, err
		}
		if m != nil && m.Status == MemberApproved {
			return c, nil
		}
	}

	s.logger.Warn("contact access denied", "id", id, "owner", c.UserID, "requester", userID)
	return nil, fmt.Errorf("contact %s: %w", id, ErrAccessDenied)
}

// GetScoped fetches a contact by id inside an already-authorized search
// scope. The scope clause does the filtering, mirroring KeywordSearch, so an
// org-scoped lookup works for pending members whose personal visibility Get
// would refuse.
func (s *SQLite) GetScoped(ctx context.Context, scope Scope, id string) (*Contact, error) {
	where, args := scopeClause(scope)
	args = append(args, id)

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, org_id, name, summary, meta, raw_text, created_at, last_interaction, archived
		FROM contacts WHERE `+where+` AND id = ?`, args...)

	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("contact %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get scoped contact: %w", err)
	}
	return c, nil
}

// Update applies refined fields. Visibility is checked first so a foreign id
// fails with ErrAccessDenied, never a silent no-op.
func (s *SQLite) Update(ctx context.Context, id string, userID int64, upd ContactUpdate) (*Contact, error) {
	c, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if upd.Name != "" {
		c.Name = upd.Name
	}
	c.Summary = upd.Summary
	c.Meta = upd.Meta
	if upd.RawText != "" {
		c.RawText = c.RawText + "\n" + upd.RawText
	}

	metaJSON, err := json.Marshal(c.Meta)
	if err != nil {
		return nil, fmt.Errorf("marshal meta: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE contacts SET name = ?, summary = ?, meta = ?, raw_text = ? WHERE id = ?`,
		c.Name, c.Summary, string(metaJSON), c.RawText, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}
	return c, nil
}

// Delete removes a visible contact.
func (s *SQLite) Delete(ctx context.Context, id string, userID int64) error {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	s.logger.Info("contact deleted", "id", id, "user_id", userID)
	return nil
}

// Touch sets the last-interaction timestamp.
func (s *SQLite) Touch(ctx context.Context, id string, userID int64, at time.Time) error {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET last_interaction = ? WHERE id = ?`,
		at.UTC().Format(timeLayout), id)
	return err
}

// Count returns the number of non-archived contacts the user owns.
func (s *SQLite) Count(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contacts WHERE user_id = ? AND archived = 0`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return n, nil
}

// FindByNameLike returns contacts whose name contains the fragment.
func (s *SQLite) FindByNameLike(ctx context.Context, scope Scope, fragment string) ([]Contact, error) {
	where, args := scopeClause(scope)
	args = append(args, "%"+strings.ToLower(fragment)+"%")

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, org_id, name, summary, meta, raw_text, created_at, last_interaction, archived
		FROM contacts WHERE `+where+` AND archived = 0 AND lower(name) LIKE ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("find by name: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// KeywordSearch matches the query against name and summary.
func (s *SQLite) KeywordSearch(ctx context.Context, scope Scope, query string, limit int) ([]SearchResult, error) {
	where, args := scopeClause(scope)
	pat := "%" + strings.ToLower(query) + "%"
	args = append(args, pat, pat, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, summary, meta
		FROM contacts
		WHERE `+where+` AND archived = 0 AND (lower(name) LIKE ? OR lower(summary) LIKE ?)
		ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// Recent returns the newest non-archived contacts in scope.
func (s *SQLite) Recent(ctx context.Context, scope Scope, limit int) ([]SearchResult, error) {
	where, args := scopeClause(scope)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, summary, meta
		FROM contacts
		WHERE `+where+` AND archived = 0
		ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("recent contacts: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// Overdue returns contacts ordered by last interaction ascending with
// never-contacted rows first.
func (s *SQLite) Overdue(ctx context.Context, userID int64, limit int) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, org_id, name, summary, meta, raw_text, created_at, last_interaction, archived
		FROM contacts
		WHERE user_id = ? AND archived = 0
		ORDER BY last_interaction IS NOT NULL, last_interaction ASC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("overdue contacts: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ---------- History ----------

// Append stores one conversation turn.
func (s *SQLite) Append(ctx context.Context, turn Turn) error {
	at := turn.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (user_id, role, content, created_at)
		VALUES (?, ?, ?, ?)`,
		turn.UserID, turn.Role, turn.Content, at.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// Tail returns the last depth turns for the user, oldest first.
func (s *SQLite) Tail(ctx context.Context, userID int64, depth int) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, role, content, created_at FROM (
			SELECT id, user_id, role, content, created_at
			FROM conversation_turns WHERE user_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, userID, depth)
	if err != nil {
		return nil, fmt.Errorf("history tail: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		var at string
		if err := rows.Scan(&t.UserID, &t.Role, &t.Content, &at); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.CreatedAt, _ = time.Parse(timeLayout, at)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---------- Users, memberships, recall ----------

// GetUser fetches a user by id.
func (s *SQLite) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	var created string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, bio, premium, confirm_create, confirm_mutate, terms_accepted, created_at
		FROM users WHERE id = ?`, id).Scan(
		&u.ID, &u.Username, &u.FullName, &u.Bio, &u.Premium,
		&u.ConfirmCreate, &u.ConfirmMutate, &u.TermsAccepted, &created)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeLayout, created)
	return &u, nil
}

// UpsertUser creates or updates a user row.
func (s *SQLite) UpsertUser(ctx context.Context, u User) error {
	at := u.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, full_name, bio, premium, confirm_create, confirm_mutate, terms_accepted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			full_name = excluded.full_name,
			bio = excluded.bio,
			premium = excluded.premium,
			confirm_create = excluded.confirm_create,
			confirm_mutate = excluded.confirm_mutate,
			terms_accepted = excluded.terms_accepted`,
		u.ID, u.Username, u.FullName, u.Bio, u.Premium,
		u.ConfirmCreate, u.ConfirmMutate, u.TermsAccepted, at.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// Memberships returns the orgs the user belongs to, joined with org names.
func (s *SQLite) Memberships(ctx context.Context, userID int64) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.user_id, m.org_id, o.name, m.role, m.status, m.free_searches_used
		FROM organization_members m
		JOIN organizations o ON o.id = m.org_id
		WHERE m.user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("memberships: %w", err)
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.UserID, &m.OrgID, &m.OrgName, &m.Role, &m.Status, &m.FreeSearchesUsed); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// IncrementFreeSearches bumps the pending-member quota counter.
func (s *SQLite) IncrementFreeSearches(ctx context.Context, userID int64, orgID string) (int, error) {
	m, err := s.membership(ctx, userID, orgID)
	if err != nil {
		return 0, err
	}
	if m == nil || m.Status != MemberPending {
		return 0, nil
	}

	next := m.FreeSearchesUsed + 1
	_, err = s.db.ExecContext(ctx, `
		UPDATE organization_members SET free_searches_used = ?
		WHERE user_id = ? AND org_id = ? AND status = ?`,
		next, userID, orgID, MemberPending)
	if err != nil {
		return 0, fmt.Errorf("increment free searches: %w", err)
	}
	return next, nil
}

// CreateOrg creates an organization with the owner as an approved member.
func (s *SQLite) CreateOrg(ctx context.Context, name string, ownerID int64) (*Org, error) {
	o := &Org{ID: uuid.NewString(), Name: name, OwnerID: ownerID}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO organizations (id, name, owner_id) VALUES (?, ?, ?)`,
		o.ID, o.Name, o.OwnerID); err != nil {
		return nil, fmt.Errorf("insert org: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO organization_members (user_id, org_id, role, status)
		VALUES (?, ?, 'owner', ?)`, ownerID, o.ID, MemberApproved); err != nil {
		return nil, fmt.Errorf("insert owner membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return o, nil
}

// AddMember adds a pending membership. Returns false if already a member.
func (s *SQLite) AddMember(ctx context.Context, userID int64, orgID, role, status string) (bool, error) {
	m, err := s.membership(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	if m != nil {
		return false, nil
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO organization_members (user_id, org_id, role, status)
		VALUES (?, ?, ?, ?)`, userID, orgID, role, status)
	if err != nil {
		return false, fmt.Errorf("add member: %w", err)
	}
	return true, nil
}

// RecallSettings returns the user's schedule or nil when unset.
func (s *SQLite) RecallSettings(ctx context.Context, userID int64) (*RecallSettings, error) {
	var rs RecallSettings
	var weekdays, lastSent string
	var lastManual sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, enabled, weekdays, hour, minute, focus, last_manual_at, last_sent_date
		FROM recall_settings WHERE user_id = ?`, userID).Scan(
		&rs.UserID, &rs.Enabled, &weekdays, &rs.Hour, &rs.Minute, &rs.Focus, &lastManual, &lastSent)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recall settings: %w", err)
	}

	rs.Weekdays = parseWeekdays(weekdays)
	rs.LastSentDate = lastSent
	if lastManual.Valid {
		if t, err := time.Parse(timeLayout, lastManual.String); err == nil {
			rs.LastManualAt = &t
		}
	}
	return &rs, nil
}

// SaveRecallSettings upserts the user's schedule.
func (s *SQLite) SaveRecallSettings(ctx context.Context, rs RecallSettings) error {
	var lastManual any
	if rs.LastManualAt != nil {
		lastManual = rs.LastManualAt.UTC().Format(timeLayout)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recall_settings (user_id, enabled, weekdays, hour, minute, focus, last_manual_at, last_sent_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			enabled = excluded.enabled,
			weekdays = excluded.weekdays,
			hour = excluded.hour,
			minute = excluded.minute,
			focus = excluded.focus,
			last_manual_at = excluded.last_manual_at,
			last_sent_date = excluded.last_sent_date`,
		rs.UserID, rs.Enabled, formatWeekdays(rs.Weekdays), rs.Hour, rs.Minute,
		rs.Focus, lastManual, rs.LastSentDate)
	if err != nil {
		return fmt.Errorf("save recall settings: %w", err)
	}
	return nil
}

// RecallCandidates lists users with recall enabled.
func (s *SQLite) RecallCandidates(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM recall_settings WHERE enabled = 1`)
	if err != nil {
		return nil, fmt.Errorf("recall candidates: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ---------- Internal helpers ----------

func (s *SQLite) getByID(ctx context.Context, id string) (*Contact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, org_id, name, summary, meta, raw_text, created_at, last_interaction, archived
		FROM contacts WHERE id = ?`, id)

	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("contact %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

func (s *SQLite) membership(ctx context.Context, userID int64, orgID string) (*Membership, error) {
	var m Membership
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, org_id, role, status, free_searches_used
		FROM organization_members WHERE user_id = ? AND org_id = ?`,
		userID, orgID).Scan(&m.UserID, &m.OrgID, &m.Role, &m.Status, &m.FreeSearchesUsed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("membership lookup: %w", err)
	}
	return &m, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanContact(row scanner) (*Contact, error) {
	var c Contact
	var metaJSON, created string
	var lastInteraction sql.NullString
	err := row.Scan(&c.ID, &c.UserID, &c.OrgID, &c.Name, &c.Summary, &metaJSON,
		&c.RawText, &created, &lastInteraction, &c.Archived)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(metaJSON), &c.Meta); err != nil {
		// Tolerate legacy rows with malformed meta.
		c.Meta = ContactMeta{}
	}
	c.CreatedAt, _ = time.Parse(timeLayout, created)
	if lastInteraction.Valid {
		if t, err := time.Parse(timeLayout, lastInteraction.String); err == nil {
			c.LastInteraction = &t
		}
	}
	return &c, nil
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var metaJSON string
		if err := rows.Scan(&r.ID, &r.Name, &r.Summary, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &r.Meta); err != nil {
			r.Meta = ContactMeta{}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// scopeClause builds the WHERE fragment for personal vs org scope.
func scopeClause(scope Scope) (string, []any) {
	if scope.OrgID != "" {
		return "org_id = ?", []any{scope.OrgID}
	}
	return "user_id = ? AND org_id = ''", []any{scope.UserID}
}

func formatWeekdays(days []time.Weekday) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(int(d)))
	}
	return strings.Join(parts, ",")
}

func parseWeekdays(s string) []time.Weekday {
	if s == "" {
		return nil
	}
	var out []time.Weekday
	for _, p := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		out = append(out, time.Weekday(n))
	}
	return out
}
