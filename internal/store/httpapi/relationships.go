package httpapi

import (
	"errors"
	"net/http"

	"github.com/agentmem/fabric/internal/store/relationships"
	"github.com/agentmem/fabric/pkg/agentmem/agenterrors"
)

type createRelationshipRequest struct {
	SourceEntryID    string         `json:"source_entry_id"`
	TargetEntryID    string         `json:"target_entry_id"`
	RelationshipType string         `json:"relationship_type"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// handleCreateRelationship implements POST /relationships.
func (a *api) handleCreateRelationship(w http.ResponseWriter, r *http.Request, id identity) {
	var req createRelationshipRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rel, err := a.deps.Relationships.Create(r.Context(), relationships.CreateParams{
		SourceEntryID:    req.SourceEntryID,
		TargetEntryID:    req.TargetEntryID,
		RelationshipType: req.RelationshipType,
	})
	if err != nil {
		if errors.Is(err, relationships.ErrDuplicate) {
			writeError(w, agenterrors.New(agenterrors.CodeDuplicate, "relationship already exists"))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": rel.ID})
}

// handleListRelationships implements GET /entries/:id/relationships.
func (a *api) handleListRelationships(w http.ResponseWriter, r *http.Request, id identity) {
	entryID := r.PathValue("id")
	filter := relationships.ListFilter{
		Type:      r.URL.Query().Get("type"),
		Direction: r.URL.Query().Get("direction"),
	}
	rels, err := a.deps.Relationships.For(r.Context(), entryID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rels)
}

// handleBlockingChain implements GET /entries/:id/relationships/blocking-chain.
func (a *api) handleBlockingChain(w http.ResponseWriter, r *http.Request, id identity) {
	entryID := r.PathValue("id")
	chain, err := a.deps.Relationships.BlockingChain(r.Context(), entryID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chain)
}
