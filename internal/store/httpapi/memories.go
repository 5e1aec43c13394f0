package httpapi

import (
	"net/http"

	"github.com/agentmem/fabric/internal/store/derivation"
	"github.com/agentmem/fabric/pkg/agentmem/agenterrors"
)

type createMemoryRequest struct {
	EntryID             string  `json:"entry_id"`
	Kind                string  `json:"kind"`
	Content             string  `json:"content"`
	Confidence          float64 `json:"confidence,omitempty"`
	ChunkIndex          int     `json:"chunk_index,omitempty"`
	SourceAgent         string  `json:"source_agent"`
	DerivedFromMemoryID string  `json:"derived_from,omitempty"`
}

func memoryResponse(m *derivation.Memory) map[string]any {
	return map[string]any{
		"id":           m.ID,
		"owner":        m.Owner,
		"entry_id":     m.EntryID,
		"kind":         m.Kind,
		"content":      m.Content,
		"source_agent": m.SourceAgent,
		"derived_from": m.DerivedFrom,
		"depth":        m.Depth,
		"created_at":   m.CreatedAt,
	}
}

// handleCreateMemory implements POST /memories: the landing point for the
// external extractor's candidate memories (one call per accepted memory for
// the entry it was asked to process). The Derivation Guard (C8) filters
// duplicates and depth-cap violations; owners in trusted-memory mode also
// get a Memory Chain (C9) record appended for the same write.
func (a *api) handleCreateMemory(w http.ResponseWriter, r *http.Request, id identity) {
	var req createMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.EntryID == "" || req.Content == "" || req.SourceAgent == "" {
		writeError(w, agenterrors.New(agenterrors.CodeInvalid, "entry_id, content and source_agent are required"))
		return
	}

	entry, err := a.deps.Entries.Get(r.Context(), req.EntryID)
	if err != nil {
		writeError(w, mapEntriesErr(err))
		return
	}

	m, err := a.deps.Derivation.Write(r.Context(), derivation.WriteParams{
		Owner:               entry.Principal,
		EntryID:             req.EntryID,
		Kind:                req.Kind,
		Content:             req.Content,
		SourceAgent:         req.SourceAgent,
		DerivedFromMemoryID: req.DerivedFromMemoryID,
		Confidence:          req.Confidence,
		ChunkIndex:          req.ChunkIndex,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	trusted, err := a.deps.Chain.IsTrusted(r.Context(), entry.Principal)
	if err != nil {
		writeError(w, err)
		return
	}
	if trusted {
		if _, err := a.deps.Chain.Append(r.Context(), entry.Principal, req.EntryID, "create"); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, memoryResponse(m))
}

type setTrustedMemoryRequest struct {
	Trusted bool `json:"trusted"`
}

// handleSetTrustedMemory implements POST /owners/{id}/trusted-memory,
// opting an owner into (or out of) the stricter chain-only update mode.
func (a *api) handleSetTrustedMemory(w http.ResponseWriter, r *http.Request, id identity) {
	owner := r.PathValue("id")
	var req setTrustedMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := a.deps.Chain.SetTrusted(r.Context(), owner, req.Trusted); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "owner": owner, "trusted": req.Trusted})
}
