package retriever

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentmem/fabric/pkg/agentmem/provenance"
)

const (
	semanticWeight  = 0.7
	keywordWeight   = 0.3
	resultLimit     = 10
	searchTimeout   = 8 * time.Second
	defaultThreshold = 0.5
)

// Searcher is the subset of provenance.Client the retriever needs.
type Searcher interface {
	Search(ctx context.Context, req provenance.SearchRequest) (*provenance.SearchResponse, error)
}

// Retriever builds a query from recent user turns and formats a bounded
// "Retrieved Context" block from the Store's hybrid search.
type Retriever struct {
	store     Searcher
	threshold float64
	log       zerolog.Logger
}

// New creates a Retriever. threshold <= 0 uses the default of 0.5.
func New(store Searcher, threshold float64, log zerolog.Logger) *Retriever {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Retriever{store: store, threshold: threshold, log: log.With().Str("component", "retriever").Logger()}
}

// Retrieve builds a query from sessionFile's recent user turns, searches the
// Store, and formats a context block. It returns ("", nil) — not an error —
// on any failure or empty/low-relevance result, so callers can fall back.
func (r *Retriever) Retrieve(ctx context.Context, sessionFile string) (string, error) {
	userMessages, err := ExtractRecentUserMessages(sessionFile)
	if err != nil {
		r.log.Debug().Err(err).Msg("retriever: could not read session file")
		return "", nil
	}
	query := BuildQuery(userMessages)
	if query == "" {
		return "", nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	resp, err := r.store.Search(searchCtx, provenance.SearchRequest{
		Query:          query,
		SearchType:     provenance.SearchHybrid,
		Limit:          resultLimit,
		SemanticWeight: semanticWeight,
		KeywordWeight:  keywordWeight,
	})
	if err != nil {
		r.log.Debug().Err(err).Msg("retriever: search failed")
		return "", nil
	}

	filtered := make([]provenance.SearchResult, 0, len(resp.Results))
	for _, res := range resp.Results {
		if res.Relevance >= r.threshold {
			filtered = append(filtered, res)
		}
	}
	if len(filtered) == 0 {
		return "", nil
	}

	return FormatContextBlock(query, time.Now(), string(provenance.SearchHybrid), filtered), nil
}

// FormatContextBlock renders the numbered "title (relevance N%)" block. No
// raw memory bodies are included — only titles — to keep injected context
// from growing unbounded as more memories accumulate.
func FormatContextBlock(query string, at time.Time, searchType string, results []provenance.SearchResult) string {
	var b strings.Builder
	b.WriteString("## Retrieved Context\n")
	b.WriteString(fmt.Sprintf("query: %q | at: %s | type: %s | count: %d\n\n", query, at.UTC().Format(time.RFC3339), searchType, len(results)))
	for i, res := range results {
		pct := int(res.Relevance*100 + 0.5)
		b.WriteString(strconv.Itoa(i+1) + ". " + res.Title + " (relevance " + strconv.Itoa(pct) + "%)\n")
	}
	b.WriteString("\n(retrieved context ends)\n")
	return b.String()
}
