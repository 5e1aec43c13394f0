// Package relationships implements directed typed edges between entries:
// unique-by-triple creation, per-entry listing, and transitive-closure
// traversal over the blocking-dependency relationship kind.
package relationships

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/xid"
	"go.mau.fi/util/dbutil"

	"github.com/agentmem/fabric/pkg/agentmem/agenterrors"
)

// Closed-plus-extensible vocabulary: the blocking kinds are the ones the
// blocking-chain endpoint traverses; any other string is accepted as an
// extension type but never joined transitively.
const (
	TypeBlockedBy   = "blocked_by"
	TypeDependsOn   = "depends_on"
	TypeRelatesTo   = "relates_to"
	TypeSupersedes  = "supersedes"
	TypeAssignedTo  = "assigned_to"
	TypeDerivedFrom = "derived_from"
	// TypeInstanceOf links an instance-level person entry to its parent
	// type-level person; TypeSubAgentOf links a sub-agent-level person to
	// its parent instance-level person in the type→instance→sub-agent
	// hierarchy. Both participate in assigned-tasks' include_children walk.
	TypeInstanceOf = "instance_of"
	TypeSubAgentOf = "sub_agent_of"
)

var blockingTypes = map[string]bool{
	TypeBlockedBy: true,
	TypeDependsOn: true,
}

// ErrDuplicate is returned when the {source, target, type} triple already
// exists.
var ErrDuplicate = errors.New("relationship: duplicate edge")

// Relationship is one directed edge.
type Relationship struct {
	ID               string
	SourceEntryID    string
	TargetEntryID    string
	RelationshipType string
	Metadata         string
	CreatedAt        string
}

// CreateParams is the input to Create.
type CreateParams struct {
	SourceEntryID    string
	TargetEntryID    string
	RelationshipType string
	Metadata         string
}

// Store manages relationship edges.
type Store struct {
	db *dbutil.Database
}

// New creates a Store.
func New(db *dbutil.Database) *Store {
	return &Store{db: db}
}

// Create inserts a new edge, rejecting with ErrDuplicate an edge whose
// {source, target, type} triple a lookup finds already stored.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Relationship, error) {
	if p.SourceEntryID == "" || p.TargetEntryID == "" || p.RelationshipType == "" {
		return nil, agenterrors.New(agenterrors.CodeInvalid, "source, target and relationship_type are required")
	}

	var exists int
	err := s.db.QueryRow(ctx, `SELECT 1 FROM relationships WHERE source_entry_id=$1 AND target_entry_id=$2 AND relationship_type=$3`,
		p.SourceEntryID, p.TargetEntryID, p.RelationshipType).Scan(&exists)
	if err == nil {
		return nil, ErrDuplicate
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	id := newID()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.Exec(ctx,
		`INSERT INTO relationships (id, source_entry_id, target_entry_id, relationship_type, metadata, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		id, p.SourceEntryID, p.TargetEntryID, p.RelationshipType, p.Metadata, now)
	if err != nil {
		return nil, err
	}

	return &Relationship{ID: id, SourceEntryID: p.SourceEntryID, TargetEntryID: p.TargetEntryID, RelationshipType: p.RelationshipType, Metadata: p.Metadata, CreatedAt: now}, nil
}

// ListFilter narrows For's results.
type ListFilter struct {
	Type      string
	Direction string // "outgoing", "incoming", or "" for both
}

// For lists the relationships touching entryID, optionally filtered by type
// and direction.
func (s *Store) For(ctx context.Context, entryID string, filter ListFilter) ([]Relationship, error) {
	var query string
	var args []interface{}
	switch filter.Direction {
	case "outgoing":
		query = `SELECT id, source_entry_id, target_entry_id, relationship_type, metadata, created_at FROM relationships WHERE source_entry_id=$1`
		args = []interface{}{entryID}
	case "incoming":
		query = `SELECT id, source_entry_id, target_entry_id, relationship_type, metadata, created_at FROM relationships WHERE target_entry_id=$1`
		args = []interface{}{entryID}
	default:
		query = `SELECT id, source_entry_id, target_entry_id, relationship_type, metadata, created_at FROM relationships WHERE (source_entry_id=$1 OR target_entry_id=$1)`
		args = []interface{}{entryID}
	}
	if filter.Type != "" {
		query += ` AND relationship_type=$2`
		args = append(args, filter.Type)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Relationship
	for rows.Next() {
		var r Relationship
		if err := rows.Scan(&r.ID, &r.SourceEntryID, &r.TargetEntryID, &r.RelationshipType, &r.Metadata, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// BlockingChain walks the transitive closure of blocking-dependency edges
// (blocked_by, depends_on) starting from entryID, following the direction
// that leads toward what is blocking it. Cycles are broken by a visited set.
func (s *Store) BlockingChain(ctx context.Context, entryID string) ([]Relationship, error) {
	visited := map[string]bool{entryID: true}
	queue := []string{entryID}
	var chain []Relationship

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		rows, err := s.db.Query(ctx, `SELECT id, source_entry_id, target_entry_id, relationship_type, metadata, created_at FROM relationships WHERE source_entry_id=$1`, current)
		if err != nil {
			return nil, err
		}
		var next []Relationship
		for rows.Next() {
			var r Relationship
			if err := rows.Scan(&r.ID, &r.SourceEntryID, &r.TargetEntryID, &r.RelationshipType, &r.Metadata, &r.CreatedAt); err != nil {
				rows.Close()
				return nil, err
			}
			next = append(next, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		for _, r := range next {
			if !blockingTypes[r.RelationshipType] {
				continue
			}
			chain = append(chain, r)
			if !visited[r.TargetEntryID] {
				visited[r.TargetEntryID] = true
				queue = append(queue, r.TargetEntryID)
			}
		}
	}
	return chain, nil
}

// Children returns the entry ids of person entries whose instance_of/
// sub_agent_of edge targets personID — i.e. personID's immediate children
// in the type→instance→sub-agent hierarchy.
func (s *Store) Children(ctx context.Context, personID string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT source_entry_id FROM relationships WHERE target_entry_id=$1 AND relationship_type IN ($2,$3)`,
		personID, TypeInstanceOf, TypeSubAgentOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var childID string
		if err := rows.Scan(&childID); err != nil {
			return nil, err
		}
		out = append(out, childID)
	}
	return out, rows.Err()
}

func newID() string {
	return xid.New().String()
}
