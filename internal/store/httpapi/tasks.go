package httpapi

import (
	"net/http"

	"github.com/agentmem/fabric/internal/store/tasks"
)

// handleAssignedTasks implements GET /persons/:id/assigned-tasks
// [?include_children=true]. When include_children is set, tasks assigned
// to the person's immediate children in the type→instance→sub-agent
// hierarchy are included too.
func (a *api) handleAssignedTasks(w http.ResponseWriter, r *http.Request, id identity) {
	personID := r.PathValue("id")
	includeChildren := r.URL.Query().Get("include_children") == "true"

	var childIDs []string
	if includeChildren {
		var err error
		childIDs, err = a.deps.Relationships.Children(r.Context(), personID)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	found, err := a.deps.Tasks.AssignedTo(r.Context(), personID, tasks.AssignedFilter{IncludeChildren: includeChildren}, childIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}
