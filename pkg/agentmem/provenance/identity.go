// Package provenance wraps every call to the Store with agent identity
// headers, retries transient failures, and routes success/failure accounting
// through the coordination store (C1).
package provenance

import "fmt"

// Identity is the immutable provenance tuple carried on every Store request.
// It is only ever constructed once, at process startup, from trusted
// configuration — nothing downstream of New can forge or mutate it,
// since the fields are unexported and there is no setter.
type Identity struct {
	agentKind   string
	agentVer    string
	instanceID  string
	subAgentID  string // optional
}

// NewIdentity builds an Identity. subAgentID may be empty for calls made
// directly by the top-level agent instance.
func NewIdentity(agentKind, agentVersion, instanceID, subAgentID string) Identity {
	return Identity{
		agentKind:  agentKind,
		agentVer:   agentVersion,
		instanceID: instanceID,
		subAgentID: subAgentID,
	}
}

// AgentKind returns the identity's agent-kind tag (e.g. "code-assistant").
func (id Identity) AgentKind() string { return id.agentKind }

// Key returns the rate-limit window key for this identity: agent kind plus
// host instance, so that sibling instances of the same agent kind each get
// their own write budget rather than starving one another.
func (id Identity) Key() string {
	return fmt.Sprintf("%s:%s", id.agentKind, id.instanceID)
}

// Headers returns the four identity headers required on every Store call.
func (id Identity) Headers() map[string]string {
	h := map[string]string{
		"X-Agent-Id":          id.agentKind,
		"X-Agent-Version":     id.agentVer,
		"X-Agent-Instance-Id": id.instanceID,
	}
	if id.subAgentID != "" {
		h["X-Agent-Subagent-Id"] = id.subAgentID
	}
	return h
}

// WithSubAgent returns a copy of id scoped to a named sub-agent role.
func (id Identity) WithSubAgent(name string) Identity {
	id.subAgentID = name
	return id
}
