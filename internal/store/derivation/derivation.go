// Package derivation implements the Derivation Guard (C8): duplicate
// rejection by content hash and the derivation-depth cap that keeps the
// memory DAG from growing without bound across agent re-ingestion.
package derivation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"go.mau.fi/util/dbutil"

	"github.com/agentmem/fabric/pkg/agentmem/agenterrors"
)

// maxDepth bounds how many times a memory may be re-derived from another
// memory before a write is rejected, keeping derivation chains shallow.
const maxDepth = 3

// Memory is a stored atomic memory row.
type Memory struct {
	ID          string
	Owner       string
	EntryID     string
	Kind        string
	Content     string
	ContentHash string
	SourceAgent string
	DerivedFrom string
	Depth       int
	CreatedAt   string
}

// WriteParams is the input to a guarded memory write.
type WriteParams struct {
	Owner              string
	EntryID            string
	Kind               string
	Content            string
	SourceAgent        string
	DerivedFromMemoryID string
	Confidence         float64
	ChunkIndex         int
}

// CheckResult is the outcome of a probe or a guarded write's pre-check.
type CheckResult struct {
	Duplicate bool
	Depth     int
}

// Guard is the derivation-guard data-access layer.
type Guard struct {
	db *dbutil.Database
}

// New creates a Guard.
func New(db *dbutil.Database) *Guard {
	return &Guard{db: db}
}

// CanonicalHash computes H(canonical(content)). Content here is already
// plain text (the extractor's output), so canonicalization is exact-bytes
// hashing — no structural normalization is needed until a richer content
// shape is introduced.
func CanonicalHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Check is the pre-flight probe (POST /memories/check-derivation): it
// reports what Write would decide, without writing anything.
func (g *Guard) Check(ctx context.Context, p WriteParams) (CheckResult, error) {
	hash := CanonicalHash(p.Content)

	var existing int
	row := g.db.QueryRow(ctx, `SELECT COUNT(1) FROM memories WHERE owner=$1 AND content_hash=$2 AND valid_until IS NULL`, p.Owner, hash)
	if err := row.Scan(&existing); err != nil {
		return CheckResult{}, err
	}
	if existing > 0 {
		return CheckResult{Duplicate: true}, nil
	}

	depth := 0
	if p.DerivedFromMemoryID != "" {
		source, err := g.get(ctx, p.DerivedFromMemoryID)
		if err != nil {
			return CheckResult{}, err
		}
		depth = source.Depth
		if source.SourceAgent != p.SourceAgent {
			depth++
		}
	}
	return CheckResult{Depth: depth}, nil
}

// Write validates and, if accepted, inserts the memory. Duplicates and
// depth-cap violations are both rejected with agenterrors.CodeDerivationLimit
// StoreErrors rather than silently dropped.
func (g *Guard) Write(ctx context.Context, p WriteParams) (*Memory, error) {
	check, err := g.Check(ctx, p)
	if err != nil {
		return nil, err
	}
	if check.Duplicate {
		return nil, agenterrors.New(agenterrors.CodeDerivationLimit, "duplicate memory for this owner and content")
	}
	if check.Depth > maxDepth {
		return nil, agenterrors.New(agenterrors.CodeDerivationLimit, "derivation depth exceeds cap")
	}

	m := &Memory{
		ID:          uuid.NewString(),
		Owner:       p.Owner,
		EntryID:     p.EntryID,
		Kind:        p.Kind,
		Content:     p.Content,
		ContentHash: CanonicalHash(p.Content),
		SourceAgent: p.SourceAgent,
		DerivedFrom: p.DerivedFromMemoryID,
		Depth:       check.Depth,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}

	var derivedFrom any
	if m.DerivedFrom != "" {
		derivedFrom = m.DerivedFrom
	}
	_, err = g.db.Exec(ctx, `INSERT INTO memories (id, owner, entry_id, kind, content, content_hash, confidence, chunk_index, source_agent, derived_from, depth, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		m.ID, m.Owner, m.EntryID, m.Kind, m.Content, m.ContentHash, p.Confidence, p.ChunkIndex, m.SourceAgent, derivedFrom, m.Depth, m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (g *Guard) get(ctx context.Context, id string) (*Memory, error) {
	row := g.db.QueryRow(ctx, `SELECT id, owner, entry_id, kind, content, content_hash, source_agent, COALESCE(derived_from,''), depth, created_at FROM memories WHERE id=$1`, id)
	var m Memory
	if err := row.Scan(&m.ID, &m.Owner, &m.EntryID, &m.Kind, &m.Content, &m.ContentHash, &m.SourceAgent, &m.DerivedFrom, &m.Depth, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
