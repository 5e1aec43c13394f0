package httpapi

import (
	"net/http"

	"github.com/agentmem/fabric/internal/store/importer"
)

// handleImportPreview implements GET /openclaw/import/preview: lists
// discoverable session files without importing them.
func (a *api) handleImportPreview(w http.ResponseWriter, r *http.Request, id identity) {
	files, err := a.deps.Importer.List(r.Context(), importer.ListFilter{AgentKind: r.URL.Query().Get("agent_kind")})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// handleImport implements POST /openclaw/import: imports every discovered
// session file for the calling principal.
func (a *api) handleImport(w http.ResponseWriter, r *http.Request, id identity) {
	files, err := a.deps.Importer.List(r.Context(), importer.ListFilter{})
	if err != nil {
		writeError(w, err)
		return
	}
	results := a.deps.Importer.Import(r.Context(), id.InstanceID, files)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "results": results})
}

type importFileRequest struct {
	Path string `json:"path"`
}

// handleImportFile implements POST /openclaw/import/file: imports exactly
// one named session file.
func (a *api) handleImportFile(w http.ResponseWriter, r *http.Request, id identity) {
	var req importFileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	all, err := a.deps.Importer.List(r.Context(), importer.ListFilter{})
	if err != nil {
		writeError(w, err)
		return
	}
	var match []importer.FileInfo
	for _, f := range all {
		if f.Path == req.Path {
			match = append(match, f)
			break
		}
	}
	results := a.deps.Importer.Import(r.Context(), id.InstanceID, match)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "results": results})
}
