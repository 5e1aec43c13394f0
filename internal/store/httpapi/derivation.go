package httpapi

import (
	"net/http"

	"github.com/agentmem/fabric/internal/store/derivation"
)

type checkDerivationRequest struct {
	OwnerID         string `json:"owner_id"`
	Content         string `json:"content"`
	DerivedFromID   string `json:"derived_from_memory_id,omitempty"`
	WriterAgentKind string `json:"writer_agent_kind"`
}

// handleCheckDerivation implements POST /memories/check-derivation: the
// non-mutating pre-flight probe C8 exposes.
func (a *api) handleCheckDerivation(w http.ResponseWriter, r *http.Request, id identity) {
	var req checkDerivationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := a.deps.Derivation.Check(r.Context(), derivation.WriteParams{
		Owner:               req.OwnerID,
		Content:              req.Content,
		SourceAgent:          req.WriterAgentKind,
		DerivedFromMemoryID:  req.DerivedFromID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"duplicate": res.Duplicate, "depth": res.Depth})
}
