// Package chain implements the Memory Chain (C9): for owners opted into
// trusted-memory mode, entry creation is serialized per owner and each
// record's hash commits to its predecessor, giving verify(owner) a tamper
// check over the whole history.
package chain

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"go.mau.fi/util/dbutil"
)

// Record is one persisted chain link.
type Record struct {
	Owner     string
	Sequence  int
	Kind      string
	EntryID   string
	PrevHash  string
	ThisHash  string
	CreatedAt string
}

// VerifyResult is the response of Verify.
type VerifyResult struct {
	OK         bool
	Broken     bool
	AtSequence int
}

// Chain serializes appends per owner via a mutex-per-owner table — a
// single-concurrency worker queue expressed as mutual exclusion, since every
// append here is already a fast local sqlite write rather than a long-running
// job that would need an actual queue.
type Chain struct {
	db *dbutil.Database

	mu     sync.Mutex
	owners map[string]*sync.Mutex
}

// New creates a Chain.
func New(db *dbutil.Database) *Chain {
	return &Chain{db: db, owners: map[string]*sync.Mutex{}}
}

func (c *Chain) ownerLock(owner string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.owners[owner]
	if !ok {
		lock = &sync.Mutex{}
		c.owners[owner] = lock
	}
	return lock
}

// Append serializes one chain record for owner, computing
// this = H(prevHash ‖ canonical(entryID|kind|createdAt)) and persisting it.
func (c *Chain) Append(ctx context.Context, owner, entryID, kind string) (*Record, error) {
	lock := c.ownerLock(owner)
	lock.Lock()
	defer lock.Unlock()

	prevHash, nextSeq, err := c.tail(ctx, owner)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		Owner:     owner,
		Sequence:  nextSeq,
		Kind:      kind,
		EntryID:   entryID,
		PrevHash:  prevHash,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	rec.ThisHash = linkHash(prevHash, canonical(entryID, kind, rec.CreatedAt))

	_, err = c.db.Exec(ctx, `INSERT INTO memory_chain (owner, sequence, kind, entry_id, prev_hash, this_hash, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.Owner, rec.Sequence, rec.Kind, rec.EntryID, rec.PrevHash, rec.ThisHash, rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Supersede appends a "supersede" record for entryID to owner's chain.
// predecessorEntryID is not stored: the record holds only entryID, its kind
// and the usual link to the previous record in the chain.
func (c *Chain) Supersede(ctx context.Context, owner, entryID, predecessorEntryID string) (*Record, error) {
	return c.Append(ctx, owner, entryID, "supersede")
}

func (c *Chain) tail(ctx context.Context, owner string) (prevHash string, nextSeq int, err error) {
	row := c.db.QueryRow(ctx, `SELECT this_hash, sequence FROM memory_chain WHERE owner=$1 ORDER BY sequence DESC LIMIT 1`, owner)
	var hash string
	var seq int
	err = row.Scan(&hash, &seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, nil
		}
		return "", 0, err
	}
	return hash, seq + 1, nil
}

// Verify walks owner's chain from the beginning and checks every record's
// prevHash against its predecessor's thisHash and its thisHash against a
// recomputation from its own fields, reporting the first record that fails.
func (c *Chain) Verify(ctx context.Context, owner string) (VerifyResult, error) {
	rows, err := c.db.Query(ctx, `SELECT sequence, prev_hash, this_hash, kind, entry_id, created_at FROM memory_chain WHERE owner=$1 ORDER BY sequence ASC`, owner)
	if err != nil {
		return VerifyResult{}, err
	}
	defer rows.Close()

	prev := ""
	for rows.Next() {
		var seq int
		var prevHash, thisHash, kind, entryID, createdAt string
		if err := rows.Scan(&seq, &prevHash, &thisHash, &kind, &entryID, &createdAt); err != nil {
			return VerifyResult{}, err
		}
		if prevHash != prev {
			return VerifyResult{Broken: true, AtSequence: seq}, nil
		}
		expected := linkHash(prevHash, canonical(entryID, kind, createdAt))
		if expected != thisHash {
			return VerifyResult{Broken: true, AtSequence: seq}, nil
		}
		prev = thisHash
	}
	if err := rows.Err(); err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{OK: true}, nil
}

// IsTrusted reports whether owner has opted into trusted-memory mode: every
// accepted memory write for such an owner also appends a chain record.
func (c *Chain) IsTrusted(ctx context.Context, owner string) (bool, error) {
	var exists int
	err := c.db.QueryRow(ctx, `SELECT 1 FROM trusted_memory_owners WHERE owner=$1`, owner).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetTrusted opts owner into (or out of) trusted-memory mode.
func (c *Chain) SetTrusted(ctx context.Context, owner string, trusted bool) error {
	if trusted {
		_, err := c.db.Exec(ctx, `INSERT INTO trusted_memory_owners (owner) VALUES ($1) ON CONFLICT(owner) DO NOTHING`, owner)
		return err
	}
	_, err := c.db.Exec(ctx, `DELETE FROM trusted_memory_owners WHERE owner=$1`, owner)
	return err
}

func linkHash(prevHash, canonicalEntry string) string {
	sum := sha256.Sum256([]byte(prevHash + "|" + canonicalEntry))
	return hex.EncodeToString(sum[:])
}

func canonical(entryID, kind, createdAt string) string {
	return entryID + "|" + kind + "|" + createdAt
}
