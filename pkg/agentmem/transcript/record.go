// Package transcript parses the host's on-disk session-file format: one
// JSON record per line, as read by both the smart retriever (C4), the
// fallback recoverer (C5), and the chat-stream syncer (C6).
package transcript

import (
	"encoding/json"
	"strings"
)

// Roles the host runtime may emit on a message record.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ContentItem is one typed item inside a message's content array.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Record is one line of a session file. Kind distinguishes message records
// from other record kinds the host may emit (e.g. tool-call bookkeeping);
// only "message" records carry Role/Content and are of interest here.
type Record struct {
	Kind      string          `json:"kind"`
	Role      string          `json:"role,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	ID        string          `json:"id,omitempty"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

// IsMessage reports whether r is a message record with a recognized role.
func (r *Record) IsMessage() bool {
	if r == nil || r.Kind != "message" {
		return false
	}
	switch r.Role {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	default:
		return false
	}
}

// Text extracts the record's textual content. Content may be a bare JSON
// string, or an array of typed items — only {"type":"text",...} items are
// concatenated; other item types (tool calls, images) carry no prose to
// surface here.
func (r *Record) Text() string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(r.Content, &asString); err == nil {
		return asString
	}

	var items []ContentItem
	if err := json.Unmarshal(r.Content, &items); err == nil {
		var parts []string
		for _, item := range items {
			if item.Type == "text" && strings.TrimSpace(item.Text) != "" {
				parts = append(parts, item.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// ParseLine parses one JSONL line into a Record. A blank line (common as a
// trailing newline) returns (nil, nil) rather than an error.
func ParseLine(line []byte) (*Record, error) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return nil, nil
	}
	var r Record
	if err := json.Unmarshal([]byte(trimmed), &r); err != nil {
		return nil, err
	}
	return &r, nil
}
