package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/agentmem/fabric/pkg/agentmem/provenance"
)

// handleSearch implements POST /search, reusing the client-side wire types
// directly since the Store and the client already agree on the shape.
func (a *api) handleSearch(w http.ResponseWriter, r *http.Request, id identity) {
	var req provenance.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	applyDefaultExclusion(&req, id)

	resp, err := a.deps.Search.Search(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSearchGet implements GET /search?q=...&limit=...&exclude_agents=...
func (a *api) handleSearchGet(w http.ResponseWriter, r *http.Request, id identity) {
	q := r.URL.Query()
	req := provenance.SearchRequest{
		Query:      q.Get("q"),
		SearchType: provenance.SearchKeyword,
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		req.Limit = limit
	}
	if raw := q.Get("exclude_agents"); raw != "" {
		req.ExcludeAgents = strings.Split(raw, ",")
	}
	applyDefaultExclusion(&req, id)

	resp, err := a.deps.Search.Search(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// applyDefaultExclusion mirrors provenance.Client.Search's self-retrieval
// feedback guard on the server side, for callers that skip the client
// wrapper (e.g. a GET from a lightweight shell-out).
func applyDefaultExclusion(req *provenance.SearchRequest, id identity) {
	if len(req.IncludeAgents) == 0 && len(req.ExcludeAgents) == 0 {
		req.ExcludeAgents = []string{id.AgentKind}
	}
}
