// Package httpapi wires the Store's /api/v1 surface: entry/chat-stream/
// relationship/derivation/import/search endpoints behind identity-header
// middleware, using the stdlib pattern-based ServeMux's METHOD /path
// registration directly rather than a third-party router.
package httpapi

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/agentmem/fabric/internal/store/chain"
	"github.com/agentmem/fabric/internal/store/derivation"
	"github.com/agentmem/fabric/internal/store/entries"
	"github.com/agentmem/fabric/internal/store/importer"
	"github.com/agentmem/fabric/internal/store/relationships"
	"github.com/agentmem/fabric/internal/store/search"
	"github.com/agentmem/fabric/internal/store/tasks"
)

// Deps are the Store components the API dispatches to.
type Deps struct {
	Entries       *entries.Store
	Derivation    *derivation.Guard
	Chain         *chain.Chain
	Importer      *importer.Importer
	Search        *search.Facade
	Relationships *relationships.Store
	Tasks         *tasks.Store
	Log           zerolog.Logger
}

// api holds handler state.
type api struct {
	deps Deps
	log  zerolog.Logger
}

// NewRouter builds the /api/v1 mux. Every route is mounted under that
// version prefix so a future v2 surface can be added alongside it.
func NewRouter(deps Deps) http.Handler {
	a := &api{deps: deps, log: deps.Log.With().Str("component", "httpapi").Logger()}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/entries", a.withIdentity(a.handleCreateEntry))
	mux.HandleFunc("PUT /api/v1/entries/{id}", a.withIdentity(a.handleUpdateEntry))
	mux.HandleFunc("DELETE /api/v1/entries/{id}", a.withIdentity(a.handleDeleteEntry))

	mux.HandleFunc("POST /api/v1/chat-stream/append", a.withIdentity(a.handleChatStreamAppend))
	mux.HandleFunc("POST /api/v1/chat-stream/reaction", a.withIdentity(a.handleChatStreamReaction))

	mux.HandleFunc("POST /api/v1/relationships", a.withIdentity(a.handleCreateRelationship))
	mux.HandleFunc("GET /api/v1/entries/{id}/relationships", a.withIdentity(a.handleListRelationships))
	mux.HandleFunc("GET /api/v1/entries/{id}/relationships/blocking-chain", a.withIdentity(a.handleBlockingChain))

	mux.HandleFunc("POST /api/v1/memories/check-derivation", a.withIdentity(a.handleCheckDerivation))
	mux.HandleFunc("POST /api/v1/memories", a.withIdentity(a.handleCreateMemory))
	mux.HandleFunc("POST /api/v1/owners/{id}/trusted-memory", a.withIdentity(a.handleSetTrustedMemory))

	mux.HandleFunc("POST /api/v1/openclaw/import", a.withIdentity(a.handleImport))
	mux.HandleFunc("POST /api/v1/openclaw/import/file", a.withIdentity(a.handleImportFile))
	mux.HandleFunc("GET /api/v1/openclaw/import/preview", a.withIdentity(a.handleImportPreview))

	mux.HandleFunc("POST /api/v1/search", a.withIdentity(a.handleSearch))
	mux.HandleFunc("GET /api/v1/search", a.withIdentity(a.handleSearchGet))

	mux.HandleFunc("GET /api/v1/persons/{id}/assigned-tasks", a.withIdentity(a.handleAssignedTasks))

	return mux
}
