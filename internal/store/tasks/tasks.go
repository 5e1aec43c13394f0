// Package tasks implements claimable GTD-bucket tasks: exclusive,
// race-safe claim semantics, person (including type/instance/sub-agent
// level) assignment, and assigned-task lookup.
package tasks

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/xid"
	"go.mau.fi/util/dbutil"

	"github.com/agentmem/fabric/pkg/agentmem/agenterrors"
)

// GTD buckets a task can sit in.
const (
	BucketInbox        = "inbox"
	BucketNextActions  = "next_actions"
	BucketWaitingFor   = "waiting_for"
	BucketSomedayMaybe = "someday_maybe"
)

var validBuckets = map[string]bool{
	BucketInbox: true, BucketNextActions: true, BucketWaitingFor: true, BucketSomedayMaybe: true,
}

// ErrAlreadyClaimed is returned when Claim loses the race.
var ErrAlreadyClaimed = errors.New("tasks: already claimed")

// Task is one claimable unit of work.
type Task struct {
	ID           string
	EntryID      string
	PersonID     string
	GTDBucket    string
	ClaimedBy    string
	ClaimedAt    string
	AssigneeKind string
	CreatedAt    string
}

// CreateParams is the input to Create.
type CreateParams struct {
	EntryID      string
	PersonID     string
	GTDBucket    string
	AssigneeKind string
}

// Store manages tasks.
type Store struct {
	db *dbutil.Database
}

// New creates a Store.
func New(db *dbutil.Database) *Store {
	return &Store{db: db}
}

// Create inserts a new task, defaulting its GTD bucket to inbox.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Task, error) {
	if p.EntryID == "" {
		return nil, agenterrors.New(agenterrors.CodeInvalid, "entry_id is required")
	}
	bucket := p.GTDBucket
	if bucket == "" {
		bucket = BucketInbox
	}
	if !validBuckets[bucket] {
		return nil, agenterrors.New(agenterrors.CodeInvalid, "unknown gtd_bucket: "+bucket)
	}

	id := xid.New().String()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(ctx,
		`INSERT INTO tasks (id, entry_id, person_id, gtd_bucket, assignee_kind, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		id, p.EntryID, p.PersonID, bucket, p.AssigneeKind, now)
	if err != nil {
		return nil, err
	}
	return &Task{ID: id, EntryID: p.EntryID, PersonID: p.PersonID, GTDBucket: bucket, AssigneeKind: p.AssigneeKind, CreatedAt: now}, nil
}

// Get fetches a task by id.
func (s *Store) Get(ctx context.Context, id string) (*Task, error) {
	return s.scanOne(ctx, `SELECT id, entry_id, person_id, gtd_bucket, claimed_by, claimed_at, assignee_kind, created_at FROM tasks WHERE id=$1`, id)
}

func (s *Store) scanOne(ctx context.Context, query string, args ...interface{}) (*Task, error) {
	var t Task
	var personID, claimedBy, claimedAt sql.NullString
	err := s.db.QueryRow(ctx, query, args...).Scan(&t.ID, &t.EntryID, &personID, &t.GTDBucket, &claimedBy, &claimedAt, &t.AssigneeKind, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, agenterrors.New(agenterrors.CodeNotFound, "task not found")
	}
	if err != nil {
		return nil, err
	}
	t.PersonID, t.ClaimedBy, t.ClaimedAt = personID.String, claimedBy.String, claimedAt.String
	return &t, nil
}

// Claim attempts an exclusive claim on behalf of claimant (an agent
// instance id). Exactly one concurrent caller wins: the UPDATE's WHERE
// clause only matches rows that are still unclaimed, so the database's own
// write serialization — not application-level locking — decides the race.
func (s *Store) Claim(ctx context.Context, taskID, claimant string) (*Task, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.Exec(ctx,
		`UPDATE tasks SET claimed_by=$1, claimed_at=$2 WHERE id=$3 AND claimed_by IS NULL`,
		claimant, now, taskID)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if _, gerr := s.Get(ctx, taskID); gerr != nil {
			return nil, gerr
		}
		return nil, ErrAlreadyClaimed
	}
	return s.Get(ctx, taskID)
}

// Move changes a task's GTD bucket.
func (s *Store) Move(ctx context.Context, taskID, bucket string) (*Task, error) {
	if !validBuckets[bucket] {
		return nil, agenterrors.New(agenterrors.CodeInvalid, "unknown gtd_bucket: "+bucket)
	}
	if _, err := s.db.Exec(ctx, `UPDATE tasks SET gtd_bucket=$1 WHERE id=$2`, bucket, taskID); err != nil {
		return nil, err
	}
	return s.Get(ctx, taskID)
}

// AssignedFilter narrows AssignedTo's results.
type AssignedFilter struct {
	// IncludeChildren also returns tasks assigned to person entries one
	// level below personID in the type→instance→sub-agent hierarchy.
	IncludeChildren bool
}

// AssignedTo lists tasks assigned to personID, and optionally to its
// children in the person hierarchy.
func (s *Store) AssignedTo(ctx context.Context, personID string, filter AssignedFilter, childPersonIDs []string) ([]Task, error) {
	ids := []string{personID}
	if filter.IncludeChildren {
		ids = append(ids, childPersonIDs...)
	}

	placeholders := make([]interface{}, len(ids))
	query := `SELECT id, entry_id, person_id, gtd_bucket, claimed_by, claimed_at, assignee_kind, created_at FROM tasks WHERE person_id IN (`
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += placeholderFor(i)
		placeholders[i] = id
	}
	query += ")"

	rows, err := s.db.Query(ctx, query, placeholders...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		var pID, claimedBy, claimedAt sql.NullString
		if err := rows.Scan(&t.ID, &t.EntryID, &pID, &t.GTDBucket, &claimedBy, &claimedAt, &t.AssigneeKind, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.PersonID, t.ClaimedBy, t.ClaimedAt = pID.String, claimedBy.String, claimedAt.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func placeholderFor(i int) string {
	// dbutil rewrites $N placeholders for the underlying driver; tasks.go
	// builds an IN(...) clause of arbitrary width so it must mint them.
	const digits = "0123456789"
	n := i + 1
	if n < 10 {
		return "$" + string(digits[n])
	}
	out := ""
	for n > 0 {
		out = string(digits[n%10]) + out
		n /= 10
	}
	return "$" + out
}
