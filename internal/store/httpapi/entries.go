package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agentmem/fabric/internal/store/entries"
	"github.com/agentmem/fabric/pkg/agentmem/agenterrors"
)

type createEntryRequest struct {
	Title      string          `json:"title"`
	EntryType  string          `json:"entry_type"`
	SourceType string          `json:"source_type,omitempty"`
	Public     bool            `json:"public,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	Content    string          `json:"content,omitempty"`
}

func entryResponse(e *entries.Entry) map[string]any {
	return map[string]any{
		"id":          e.ID,
		"public_id":   e.PublicID,
		"title":       e.Title,
		"entry_type":  e.EntryType,
		"source_type": e.SourceType,
		"public":      e.Public,
		"content":     e.Content,
		"metadata":    e.Metadata,
		"version":     e.Version,
	}
}

// handleCreateEntry implements POST /entries.
func (a *api) handleCreateEntry(w http.ResponseWriter, r *http.Request, id identity) {
	var req createEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Title == "" || req.EntryType == "" {
		writeError(w, agenterrors.New(agenterrors.CodeInvalid, "title and entry_type are required"))
		return
	}

	e, err := a.deps.Entries.Create(r.Context(), entries.CreateParams{
		Principal:    id.InstanceID,
		Title:        req.Title,
		EntryType:    req.EntryType,
		SourceType:   req.SourceType,
		Public:       req.Public,
		Metadata:     req.Metadata,
		Content:      req.Content,
		AgentKind:    id.AgentKind,
		AgentVersion: id.AgentVersion,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entryResponse(e))
}

type updateEntryRequest struct {
	Title    *string         `json:"title,omitempty"`
	Public   *bool           `json:"public,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Content  *string         `json:"content,omitempty"`
}

// handleUpdateEntry implements PUT /entries/:id. entry_type and provenance
// are not accepted fields on updateEntryRequest at all — that invariant is
// enforced by omission from the request shape, not a runtime check. Owners
// in trusted-memory mode reject this path entirely: their entries may only
// change through the memory chain (POST /memories), never a direct update.
func (a *api) handleUpdateEntry(w http.ResponseWriter, r *http.Request, id identity) {
	entryID := r.PathValue("id")
	var req updateEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	existing, err := a.deps.Entries.Get(r.Context(), entryID)
	if err != nil {
		writeError(w, mapEntriesErr(err))
		return
	}
	trusted, err := a.deps.Chain.IsTrusted(r.Context(), existing.Principal)
	if err != nil {
		writeError(w, err)
		return
	}
	if trusted {
		writeError(w, agenterrors.New(agenterrors.CodeInvalid, "owner is in trusted-memory mode: entries may only change through the memory chain"))
		return
	}

	e, err := a.deps.Entries.Update(r.Context(), entryID, entries.UpdateParams{
		Title: req.Title, Public: req.Public, Metadata: req.Metadata, Content: req.Content,
	})
	if err != nil {
		writeError(w, mapEntriesErr(err))
		return
	}
	writeJSON(w, http.StatusOK, entryResponse(e))
}

// handleDeleteEntry implements DELETE /entries/:id.
func (a *api) handleDeleteEntry(w http.ResponseWriter, r *http.Request, id identity) {
	entryID := r.PathValue("id")
	if err := a.deps.Entries.Delete(r.Context(), entryID); err != nil {
		writeError(w, mapEntriesErr(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func mapEntriesErr(err error) error {
	if errors.Is(err, entries.ErrNotFound) {
		return agenterrors.New(agenterrors.CodeNotFound, "entry not found")
	}
	return err
}

type chatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Source    string `json:"source,omitempty"`
}

type appendChatStreamRequest struct {
	SessionID string      `json:"session_id"`
	Message   chatMessage `json:"message"`
}

// handleChatStreamAppend implements POST /chat-stream/append.
func (a *api) handleChatStreamAppend(w http.ResponseWriter, r *http.Request, id identity) {
	var req appendChatStreamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SessionID == "" {
		writeError(w, agenterrors.New(agenterrors.CodeInvalid, "session_id is required"))
		return
	}

	res, err := a.deps.Entries.Append(r.Context(), entries.AppendParams{
		Principal:          id.InstanceID,
		ExternalSessionKey: "session:" + id.AgentKind + ":" + req.SessionID,
		AgentKind:          id.AgentKind,
		AgentVersion:       id.AgentVersion,
		Role:               req.Message.Role,
		Content:            req.Message.Content,
		Timestamp:          req.Message.Timestamp,
		MessageID:          req.Message.MessageID,
		Source:             req.Message.Source,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"stream_id":     res.Entry.ID,
		"message_count": res.MessageCount,
	})
}

type reactionRequest struct {
	TargetMessageID string `json:"target_message_id"`
	Emoji           string `json:"emoji"`
	FromUser        string `json:"from_user"`
}

// handleChatStreamReaction implements POST /chat-stream/reaction.
func (a *api) handleChatStreamReaction(w http.ResponseWriter, r *http.Request, id identity) {
	var req reactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.TargetMessageID == "" || req.Emoji == "" {
		writeError(w, agenterrors.New(agenterrors.CodeInvalid, "target_message_id and emoji are required"))
		return
	}
	if err := a.deps.Entries.RecordReaction(r.Context(), entries.ReactionParams{
		TargetMessageID: req.TargetMessageID,
		Emoji:           req.Emoji,
		FromUser:        req.FromUser,
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
