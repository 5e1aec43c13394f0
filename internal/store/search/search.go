// Package search implements the Search Facade (C11): hybrid/semantic/
// keyword/atomic/memory-hybrid query modes over entries and memories, with
// attribution and include/exclude agent-kind filtering. The Facade applies
// only the lists in the request; excluding the caller's own kind by default
// is done by the HTTP layer before the request reaches it.
package search

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.mau.fi/util/dbutil"

	"github.com/agentmem/fabric/pkg/agentmem/provenance"
)

// tokenRE splits a query into lowercase word terms for the keyword scorer.
var tokenRE = regexp.MustCompile(`[A-Za-z0-9_]+`)

const defaultLimit = 10

// Facade is the Store's search backend.
type Facade struct {
	db       *dbutil.Database
	vectorOK bool // whether a vector-similarity extension loaded successfully
}

// New creates a Facade. No vector extension is loaded, so vectorOK stays
// false and the "semantic" mode uses the keyword scorer.
func New(db *dbutil.Database) *Facade {
	return &Facade{db: db, vectorOK: false}
}

// Search runs req against the Store and returns attributed, threshold-
// filtered, limit-bounded results.
func (f *Facade) Search(ctx context.Context, req provenance.SearchRequest) (*provenance.SearchResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	terms := tokenRE.FindAllString(strings.ToLower(req.Query), -1)

	var rows []candidateRow
	var err error
	switch req.SearchType {
	case provenance.SearchAtomic:
		rows, err = f.queryMemories(ctx, terms, false)
	case provenance.SearchMemoryHybrid:
		rows, err = f.queryMemories(ctx, terms, true)
	case provenance.SearchKeyword, provenance.SearchSemantic, provenance.SearchHybrid, "":
		rows, err = f.queryEntries(ctx, terms)
	default:
		rows, err = f.queryEntries(ctx, terms)
	}
	if err != nil {
		return nil, err
	}

	results := make([]provenance.SearchResult, 0, len(rows))
	for _, r := range rows {
		if !agentAllowed(r.AgentKind, req.IncludeAgents, req.ExcludeAgents) {
			continue
		}
		// No vector extension loaded (f.vectorOK is always false for now), so
		// hybrid mode has no distinct semantic score to blend in and degrades
		// to the keyword score alone rather than double-counting it. A
		// caller-supplied semantic_weight/keyword_weight is accepted but has
		// nothing to apply to until a real semantic scorer exists.
		relevance := r.KeywordScore
		if relevance < req.Threshold {
			continue
		}
		results = append(results, provenance.SearchResult{
			EntryID:   r.ID,
			Title:     r.Title,
			Relevance: relevance,
			Attribution: provenance.Attribution{
				AgentKind:       r.AgentKind,
				AgentVersion:    r.AgentVersion,
				CreatedAt:       r.CreatedAt,
				DerivationDepth: r.Depth,
			},
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Relevance > results[j].Relevance })
	if len(results) > limit {
		results = results[:limit]
	}
	return &provenance.SearchResponse{Results: results}, nil
}

type candidateRow struct {
	ID           string
	Title        string
	AgentKind    string
	AgentVersion string
	CreatedAt    string
	Depth        int
	KeywordScore float64
}

func (f *Facade) queryEntries(ctx context.Context, terms []string) ([]candidateRow, error) {
	rows, err := f.db.Query(ctx, `SELECT id, title, content, agent_kind, agent_version, created_at FROM entries`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []candidateRow
	for rows.Next() {
		var id, title, content, agentKind, agentVersion, createdAt string
		if err := rows.Scan(&id, &title, &content, &agentKind, &agentVersion, &createdAt); err != nil {
			return nil, err
		}
		score := scoreText(terms, title+" "+content)
		if len(terms) > 0 && score == 0 {
			continue
		}
		out = append(out, candidateRow{ID: id, Title: title, AgentKind: agentKind, AgentVersion: agentVersion, CreatedAt: createdAt, KeywordScore: score})
	}
	return out, rows.Err()
}

func (f *Facade) queryMemories(ctx context.Context, terms []string, includeSuperseded bool) ([]candidateRow, error) {
	query := `SELECT id, content, source_agent, depth, created_at FROM memories`
	if !includeSuperseded {
		query += ` WHERE valid_until IS NULL`
	}
	rows, err := f.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []candidateRow
	for rows.Next() {
		var id, content, sourceAgent, createdAt string
		var depth int
		if err := rows.Scan(&id, &content, &sourceAgent, &depth, &createdAt); err != nil {
			return nil, err
		}
		score := scoreText(terms, content)
		if len(terms) > 0 && score == 0 {
			continue
		}
		out = append(out, candidateRow{ID: id, Title: content, AgentKind: sourceAgent, CreatedAt: createdAt, Depth: depth, KeywordScore: score})
	}
	return out, rows.Err()
}

// scoreText counts term overlaps and normalizes them with a BM25-style
// 1/(1+rank) curve, here with "rank" inverted from a raw hit count so more
// matches yield a score closer to 1.
func scoreText(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0.5
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	rank := float64(len(terms)-hits) * 2
	return 1 / (1 + rank) * (float64(hits) / float64(len(terms)))
}

// agentAllowed applies the include/exclude agent-kind filter.
func agentAllowed(agentKind string, include, exclude []string) bool {
	if len(include) > 0 {
		for _, a := range include {
			if a == agentKind {
				return true
			}
		}
		return false
	}
	for _, a := range exclude {
		if a == agentKind {
			return false
		}
	}
	return true
}
