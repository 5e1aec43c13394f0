package provenance

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Entry mirrors the Store's entry representation over the wire.
type Entry struct {
	ID         string         `json:"id"`
	PublicID   string         `json:"public_id"`
	Title      string         `json:"title"`
	EntryType  string         `json:"entry_type"`
	SourceType string         `json:"source_type,omitempty"`
	Public     bool           `json:"public,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Content    string         `json:"content,omitempty"`
	Version    int            `json:"version"`
}

// CreateEntryRequest is the body of POST /entries.
type CreateEntryRequest struct {
	Title      string         `json:"title"`
	EntryType  string         `json:"entry_type"`
	SourceType string         `json:"source_type,omitempty"`
	Public     bool           `json:"public,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Content    string         `json:"content,omitempty"`
}

// CreateEntry issues POST /entries.
func (c *Client) CreateEntry(ctx context.Context, req CreateEntryRequest) (*Entry, error) {
	var entry Entry
	if err := c.mutating(ctx, "POST", "/entries", req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateEntryRequest is the body of PUT /entries/:id.
type UpdateEntryRequest struct {
	Title    string         `json:"title,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Content  string         `json:"content,omitempty"`
}

// UpdateEntry issues PUT /entries/:id.
func (c *Client) UpdateEntry(ctx context.Context, id string, req UpdateEntryRequest) (*Entry, error) {
	var entry Entry
	if err := c.mutating(ctx, "PUT", "/entries/"+url.PathEscape(id), req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteEntry issues DELETE /entries/:id.
func (c *Client) DeleteEntry(ctx context.Context, id string) error {
	return c.mutating(ctx, "DELETE", "/entries/"+url.PathEscape(id), nil, nil)
}

// ChatMessage is one message appended to a chat-log entry's jsonl representation.
type ChatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Source    string `json:"source,omitempty"`
}

// AppendChatStreamRequest is the body of POST /chat-stream/append.
type AppendChatStreamRequest struct {
	SessionID string      `json:"session_id"`
	Message   ChatMessage `json:"message"`
}

// AppendChatStreamResponse is the response of POST /chat-stream/append.
type AppendChatStreamResponse struct {
	OK           bool   `json:"ok"`
	StreamID     string `json:"stream_id"`
	MessageCount int    `json:"message_count"`
}

// AppendChatStream issues POST /chat-stream/append.
func (c *Client) AppendChatStream(ctx context.Context, req AppendChatStreamRequest) (*AppendChatStreamResponse, error) {
	var resp AppendChatStreamResponse
	if err := c.mutating(ctx, "POST", "/chat-stream/append", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReactionRequest is the body of POST /chat-stream/reaction.
type ReactionRequest struct {
	TargetMessageID string `json:"target_message_id"`
	Emoji           string `json:"emoji"`
	FromUser        string `json:"from_user"`
}

// PostReaction issues POST /chat-stream/reaction.
func (c *Client) PostReaction(ctx context.Context, req ReactionRequest) error {
	return c.mutating(ctx, "POST", "/chat-stream/reaction", req, nil)
}

// RelationshipRequest is the body of POST /relationships.
type RelationshipRequest struct {
	SourceEntryID      string         `json:"source_entry_id"`
	TargetEntryID      string         `json:"target_entry_id"`
	RelationshipType   string         `json:"relationship_type"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// CreateRelationship issues POST /relationships.
func (c *Client) CreateRelationship(ctx context.Context, req RelationshipRequest) error {
	return c.mutating(ctx, "POST", "/relationships", req, nil)
}

// CheckDerivationRequest is the body of POST /memories/check-derivation.
type CheckDerivationRequest struct {
	OwnerID           string `json:"owner_id"`
	ContentHash       string `json:"content_hash"`
	DerivedFromID     string `json:"derived_from_memory_id,omitempty"`
	WriterAgentKind   string `json:"writer_agent_kind"`
}

// CheckDerivationResponse is the response of the probe.
type CheckDerivationResponse struct {
	Duplicate bool `json:"duplicate"`
	Depth     int  `json:"depth"`
}

// CheckDerivation issues the non-mutating pre-flight probe.
func (c *Client) CheckDerivation(ctx context.Context, req CheckDerivationRequest) (*CheckDerivationResponse, error) {
	var resp CheckDerivationResponse
	if err := c.readOnly(ctx, "POST", "/memories/check-derivation", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchType selects the Search Facade's mode.
type SearchType string

const (
	SearchHybrid        SearchType = "hybrid"
	SearchSemantic      SearchType = "semantic"
	SearchKeyword       SearchType = "keyword"
	SearchAtomic        SearchType = "atomic"
	SearchMemoryHybrid  SearchType = "memory_hybrid"
)

// SearchRequest is the body of POST /search. Agent-filtering defaults are
// applied by Client.Search, not by the caller.
type SearchRequest struct {
	Query          string     `json:"query"`
	SearchType     SearchType `json:"search_type"`
	Limit          int        `json:"limit"`
	SemanticWeight float64    `json:"semantic_weight,omitempty"`
	KeywordWeight  float64    `json:"keyword_weight,omitempty"`
	IncludeAgents  []string   `json:"include_agents,omitempty"`
	ExcludeAgents  []string   `json:"exclude_agents,omitempty"`
	Threshold      float64    `json:"threshold,omitempty"`
}

// Attribution is attached to every search result and echoes the writer's provenance.
type Attribution struct {
	AgentKind       string `json:"agentKind"`
	AgentVersion    string `json:"agentVersion"`
	CreatedAt       string `json:"createdAt"`
	DerivationDepth int    `json:"derivationDepth"`
}

// SearchResult is one hit from the Search Facade.
type SearchResult struct {
	EntryID     string      `json:"entry_id"`
	Title       string      `json:"title"`
	Relevance   float64     `json:"relevance"`
	Attribution Attribution `json:"attribution"`
}

// SearchResponse is the response of POST/GET /search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// Search issues POST /search. If req.IncludeAgents and req.ExcludeAgents are
// both empty, the calling agent kind is excluded by default as a guard
// against an agent retrieving its own just-written memories as "context",
// unless the caller explicitly set either field (including an explicit
// empty slice is not distinguishable from "unset" over JSON, so callers who
// want no exclusion should pass IncludeAgents with at least the caller's
// own kind).
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if len(req.IncludeAgents) == 0 && len(req.ExcludeAgents) == 0 {
		req.ExcludeAgents = []string{c.identity.AgentKind()}
	}
	var resp SearchResponse
	if err := c.readOnly(ctx, "POST", "/search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchGet issues the GET form of search, used by lightweight callers (e.g.
// shell-outs) that prefer query-string requests over a JSON body.
func (c *Client) SearchGet(ctx context.Context, query string, limit int, excludeAgents []string) (*SearchResponse, error) {
	if len(excludeAgents) == 0 {
		excludeAgents = []string{c.identity.AgentKind()}
	}
	values := url.Values{}
	values.Set("q", query)
	if limit > 0 {
		values.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(excludeAgents) > 0 {
		values.Set("exclude_agents", strings.Join(excludeAgents, ","))
	}
	var resp SearchResponse
	if err := c.readOnly(ctx, "GET", "/search?"+values.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAssignedTasks issues GET /persons/:id/assigned-tasks.
func (c *Client) GetAssignedTasks(ctx context.Context, personID string, includeChildren bool) ([]Entry, error) {
	path := "/persons/" + url.PathEscape(personID) + "/assigned-tasks"
	if includeChildren {
		path += "?include_children=true"
	}
	var tasks []Entry
	if err := c.readOnly(ctx, "GET", path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetBlockingChain issues GET /entries/:id/relationships/blocking-chain.
func (c *Client) GetBlockingChain(ctx context.Context, entryID string) ([]Entry, error) {
	var chain []Entry
	if err := c.readOnly(ctx, "GET", "/entries/"+url.PathEscape(entryID)+"/relationships/blocking-chain", nil, &chain); err != nil {
		return nil, err
	}
	return chain, nil
}
