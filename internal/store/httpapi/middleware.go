package httpapi

import (
	"context"
	"net/http"

	"github.com/agentmem/fabric/pkg/agentmem/agenterrors"
)

type identityKey struct{}

// identity is the caller's provenance, read off the identity headers every
// request must carry — without them there is no agent_kind/agent_version
// to attribute the write to.
type identity struct {
	AgentKind     string
	AgentVersion  string
	InstanceID    string
	SubAgentID    string
}

// withIdentity extracts the four identity headers and rejects the request
// with CodeUnauthorized if the required ones are missing, before handing
// off to next.
func (a *api) withIdentity(next func(http.ResponseWriter, *http.Request, identity)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identity{
			AgentKind:    r.Header.Get("X-Agent-Id"),
			AgentVersion: r.Header.Get("X-Agent-Version"),
			InstanceID:   r.Header.Get("X-Agent-Instance-Id"),
			SubAgentID:   r.Header.Get("X-Agent-Subagent-Id"),
		}
		if id.AgentKind == "" || id.InstanceID == "" {
			writeError(w, agenterrors.New(agenterrors.CodeUnauthorized, "missing identity headers"))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)), id)
	}
}
