// Package entries implements the Store's entry CRUD surface and the
// Ingestion Endpoint (C7): chat-log entries created on demand from synced
// session messages, with per-entry serialized jsonl-style appends.
package entries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"
	"go.mau.fi/util/dbutil"

	"github.com/agentmem/fabric/pkg/agentmem/agenterrors"
)

// Entry mirrors the wire shape of POST /entries's response.
type Entry struct {
	ID                 string
	PublicID           string
	Principal          string
	Title              string
	EntryType          string
	SourceType         string
	Public             bool
	Content            string
	Metadata           json.RawMessage
	Version            int
	ExternalSessionKey string
	MessageCount       int
	LastMessageAt      string
	LastRole           string
	AgentKind          string
	AgentVersion       string
	CreatedAt          string
	UpdatedAt          string
}

// CreateParams is the input to Create.
type CreateParams struct {
	Principal   string
	Title       string
	EntryType   string
	SourceType  string
	Public      bool
	Metadata    json.RawMessage
	Content     string
	AgentKind   string
	AgentVersion string
}

// Store is the entries table's data-access layer. Message appends run inside
// one transaction each (see appendLocked), so concurrent appends to the same
// chat stream never interleave their message_count bump with an extraction
// enqueue.
type Store struct {
	db *dbutil.Database
}

// New creates an entries Store.
func New(db *dbutil.Database) *Store {
	return &Store{db: db}
}

var ErrNotFound = errors.New("entries: not found")

const (
	// extractionBatchSize is how often (in messages) an entry's append path
	// re-enqueues an extraction job — every 10th message, not every message.
	extractionBatchSize = 10
	// extractionDebounce bounds how often a pending job is re-enqueued for
	// the same entry, so a burst of appends crossing several multiples of
	// extractionBatchSize in quick succession only queues one job.
	extractionDebounce = 30 * time.Second
)

// Create inserts a new entry, minting both an internal id (xid, matching the
// teacher's own id convention in pkg/aiid) and a public-facing uuid.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Entry, error) {
	if p.Metadata == nil {
		p.Metadata = json.RawMessage(`{}`)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	e := &Entry{
		ID:           xid.New().String(),
		PublicID:     uuid.NewString(),
		Principal:    p.Principal,
		Title:        p.Title,
		EntryType:    p.EntryType,
		SourceType:   p.SourceType,
		Public:       p.Public,
		Content:      p.Content,
		Metadata:     p.Metadata,
		Version:      1,
		AgentKind:    p.AgentKind,
		AgentVersion: p.AgentVersion,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO entries (id, public_id, principal, title, entry_type, source_type, public, content, metadata, version, agent_kind, agent_version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, e.PublicID, e.Principal, e.Title, e.EntryType, e.SourceType, boolToInt(e.Public), e.Content, string(e.Metadata), e.Version, e.AgentKind, e.AgentVersion, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Get fetches one entry by internal id.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	return s.scanOne(ctx, `SELECT id, public_id, principal, title, entry_type, source_type, public, content, metadata, version,
		COALESCE(external_session_key, ''), message_count, COALESCE(last_message_at,''), COALESCE(last_role,''), agent_kind, agent_version, created_at, updated_at
		FROM entries WHERE id=$1`, id)
}

// GetByExternalKey fetches an entry by its {principal, externalSessionKey}
// pair, used by C6/C10 to detect "entry already exists for this conversation".
func (s *Store) GetByExternalKey(ctx context.Context, principal, key string) (*Entry, error) {
	return s.scanOne(ctx, `SELECT id, public_id, principal, title, entry_type, source_type, public, content, metadata, version,
		COALESCE(external_session_key, ''), message_count, COALESCE(last_message_at,''), COALESCE(last_role,''), agent_kind, agent_version, created_at, updated_at
		FROM entries WHERE principal=$1 AND external_session_key=$2`, principal, key)
}

func (s *Store) scanOne(ctx context.Context, query string, args ...any) (*Entry, error) {
	row := s.db.QueryRow(ctx, query, args...)
	var e Entry
	var metadata string
	if err := row.Scan(&e.ID, &e.PublicID, &e.Principal, &e.Title, &e.EntryType, &e.SourceType, &e.Public, &e.Content, &metadata,
		&e.Version, &e.ExternalSessionKey, &e.MessageCount, &e.LastMessageAt, &e.LastRole, &e.AgentKind, &e.AgentVersion, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	e.Metadata = json.RawMessage(metadata)
	return &e, nil
}

// UpdateParams is the input to Update; nil pointers leave the field unchanged.
type UpdateParams struct {
	Title    *string
	Public   *bool
	Metadata json.RawMessage
	Content  *string
}

// Update applies a partial update. Changing entry_type or provenance fields
// is never offered by UpdateParams — that invariant is enforced by omission,
// not a runtime check.
func (s *Store) Update(ctx context.Context, id string, p UpdateParams) (*Entry, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Title != nil {
		existing.Title = *p.Title
	}
	if p.Public != nil {
		existing.Public = *p.Public
	}
	if p.Metadata != nil {
		existing.Metadata = p.Metadata
	}
	if p.Content != nil {
		existing.Content = *p.Content
	}
	existing.Version++
	existing.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)

	_, err = s.db.Exec(ctx, `UPDATE entries SET title=$1, public=$2, metadata=$3, content=$4, version=$5, updated_at=$6 WHERE id=$7`,
		existing.Title, boolToInt(existing.Public), string(existing.Metadata), existing.Content, existing.Version, existing.UpdatedAt, id)
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete removes an entry by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.Exec(ctx, `DELETE FROM entries WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendParams is the input to Append.
type AppendParams struct {
	Principal          string
	ExternalSessionKey string
	AgentKind          string
	AgentVersion       string
	Role               string
	Content            string
	Timestamp          string
	MessageID          string
	Source             string
}

// AppendResult is the response shape of POST /chat-stream/append.
type AppendResult struct {
	Entry        *Entry
	MessageCount int
	MessageID    string
}

// Append implements C7: create-if-missing entry, serialized per-entry
// message append, and the message_count/last_message_at/last_role update.
// Principal is not checked here: the HTTP layer rejects callers without
// identity headers with agenterrors.CodeUnauthorized before Append runs.
func (s *Store) Append(ctx context.Context, p AppendParams) (*AppendResult, error) {
	entry, err := s.GetByExternalKey(ctx, p.Principal, p.ExternalSessionKey)
	if errors.Is(err, ErrNotFound) {
		entry, err = s.createForSession(ctx, p)
	}
	if err != nil {
		return nil, err
	}

	messageID := p.MessageID
	if messageID == "" {
		messageID = xid.New().String()
	}

	return s.appendLocked(ctx, entry, p, messageID)
}

func (s *Store) createForSession(ctx context.Context, p AppendParams) (*Entry, error) {
	created, err := s.Create(ctx, CreateParams{
		Principal:    p.Principal,
		Title:        p.ExternalSessionKey,
		EntryType:    "chat_log",
		AgentKind:    p.AgentKind,
		AgentVersion: p.AgentVersion,
	})
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(ctx, `UPDATE entries SET external_session_key=$1 WHERE id=$2`, p.ExternalSessionKey, created.ID)
	if err != nil {
		return nil, err
	}
	created.ExternalSessionKey = p.ExternalSessionKey
	return created, nil
}

// appendLocked performs the insert + attribute bump inside one DoTxn
// transaction, which is this store's per-entry serialization point: sqlite's
// own writer lock means two concurrent appends to the same entry can never
// interleave, without a separate in-process mutex table.
func (s *Store) appendLocked(ctx context.Context, entry *Entry, p AppendParams, messageID string) (*AppendResult, error) {
	var count int
	err := s.db.DoTxn(ctx, nil, func(ctx context.Context) error {
		var seq int
		row := s.db.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_messages WHERE entry_id=$1`, entry.ID)
		if err := row.Scan(&seq); err != nil {
			return err
		}

		if _, err := s.db.Exec(ctx, `INSERT INTO chat_messages (entry_id, message_id, role, content, timestamp, source, seq) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			entry.ID, messageID, p.Role, p.Content, p.Timestamp, p.Source, seq); err != nil {
			return err
		}

		count = seq
		if _, err := s.db.Exec(ctx, `UPDATE entries SET message_count=$1, last_message_at=$2, last_role=$3, updated_at=$4 WHERE id=$5`,
			count, p.Timestamp, p.Role, time.Now().UTC().Format(time.RFC3339Nano), entry.ID); err != nil {
			return err
		}

		if count%extractionBatchSize == 0 {
			return s.enqueueExtraction(ctx, entry.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entry.MessageCount = count
	return &AppendResult{Entry: entry, MessageCount: count, MessageID: messageID}, nil
}

// enqueueExtraction queues a memory-extraction job for entryID, unless one
// was already enqueued within the last extractionDebounce window.
func (s *Store) enqueueExtraction(ctx context.Context, entryID string) error {
	now := time.Now().UTC()
	var existing string
	err := s.db.QueryRow(ctx, `SELECT enqueued_at FROM extraction_jobs WHERE entry_id=$1`, entryID).Scan(&existing)
	if err == nil {
		if last, parseErr := time.Parse(time.RFC3339Nano, existing); parseErr == nil && now.Sub(last) < extractionDebounce {
			return nil
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err = s.db.Exec(ctx, `INSERT INTO extraction_jobs (entry_id, enqueued_at) VALUES ($1,$2)
		ON CONFLICT(entry_id) DO UPDATE SET enqueued_at=excluded.enqueued_at`,
		entryID, now.Format(time.RFC3339Nano))
	return err
}

// ReactionParams is the input to RecordReaction.
type ReactionParams struct {
	TargetMessageID string
	Emoji           string
	FromUser        string
}

// RecordReaction persists a reaction to a chat-stream message (POST
// /chat-stream/reaction). Reactions are append-only and never deduplicated
// here: react/unreact is the caller's concern, this layer just records what
// it's told.
func (s *Store) RecordReaction(ctx context.Context, p ReactionParams) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(ctx, `INSERT INTO reactions (target_message_id, emoji, from_user, created_at) VALUES ($1,$2,$3,$4)`,
		p.TargetMessageID, p.Emoji, p.FromUser, now)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// validate404 turns ErrNotFound into a CodeNotFound StoreError, the error
// behind the Store's {ok:false,error:{code,message}} envelope. The httpapi
// package applies the same mapping through its own mapEntriesErr.
func validate404(err error) error {
	if errors.Is(err, ErrNotFound) {
		return agenterrors.New(agenterrors.CodeNotFound, "entry not found")
	}
	return err
}
