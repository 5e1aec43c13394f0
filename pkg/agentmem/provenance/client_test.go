package provenance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/fabric/pkg/agentmem/coord"
)

type fakeBreaker struct {
	writes   []string
	failures int
	deny     bool
}

func (f *fakeBreaker) CanWrite(agentKey string) coord.CanWriteResult {
	if f.deny {
		return coord.CanWriteResult{Allowed: false, Reason: "denied for test"}
	}
	return coord.CanWriteResult{Allowed: true}
}
func (f *fakeBreaker) RecordWrite(agentKey string) { f.writes = append(f.writes, agentKey) }
func (f *fakeBreaker) RecordFailure()              { f.failures++ }

func TestClientSendsIdentityHeaders(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"e1","entry_type":"chat_log","version":1}`))
	}))
	defer server.Close()

	id := NewIdentity("code-assistant", "1.2.3", "host-1", "")
	breaker := &fakeBreaker{}
	c := New(server.URL, "tok", id, breaker, zerolog.Nop())

	entry, err := c.CreateEntry(context.Background(), CreateEntryRequest{Title: "t", EntryType: "chat_log"})
	require.NoError(t, err)
	require.Equal(t, "e1", entry.ID)
	require.Equal(t, "code-assistant", gotHeaders.Get("X-Agent-Id"))
	require.Equal(t, "1.2.3", gotHeaders.Get("X-Agent-Version"))
	require.Equal(t, "host-1", gotHeaders.Get("X-Agent-Instance-Id"))
	require.Equal(t, "Bearer tok", gotHeaders.Get("Authorization"))
	require.Equal(t, []string{"code-assistant:host-1"}, breaker.writes)
}

func TestClientRetriesTransientFailures(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"stream_id":"s1","message_count":1}`))
	}))
	defer server.Close()

	id := NewIdentity("chat-assistant", "0.1", "host-1", "")
	breaker := &fakeBreaker{}
	c := New(server.URL, "tok", id, breaker, zerolog.Nop())

	resp, err := c.AppendChatStream(context.Background(), AppendChatStreamRequest{SessionID: "s1", Message: ChatMessage{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, 1, resp.MessageCount)
	require.Equal(t, 2, attempts)
	require.Equal(t, 0, breaker.failures)
}

func TestClientDoesNotRetryAuthErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": map[string]any{"code": "unauthorized", "message": "bad token"}})
	}))
	defer server.Close()

	id := NewIdentity("chat-assistant", "0.1", "host-1", "")
	breaker := &fakeBreaker{}
	c := New(server.URL, "bad-tok", id, breaker, zerolog.Nop())

	_, err := c.CreateEntry(context.Background(), CreateEntryRequest{Title: "t", EntryType: "note"})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
	require.Equal(t, 0, breaker.failures, "auth failures must not count toward the circuit breaker")
}

func TestClientGatesOnCoordinationStoreBeforeWriting(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	id := NewIdentity("chat-assistant", "0.1", "host-1", "")
	breaker := &fakeBreaker{deny: true}
	c := New(server.URL, "tok", id, breaker, zerolog.Nop())

	_, err := c.CreateEntry(context.Background(), CreateEntryRequest{Title: "t", EntryType: "note"})
	require.Error(t, err)
	require.False(t, called, "request must not be sent when the coordination store denies the write")
}

func TestSearchDefaultsToExcludingCallerAgentKind(t *testing.T) {
	var gotBody SearchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	id := NewIdentity("code-assistant", "1.0", "host-1", "")
	c := New(server.URL, "tok", id, &fakeBreaker{}, zerolog.Nop())

	_, err := c.Search(context.Background(), SearchRequest{Query: "q", SearchType: SearchHybrid, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, []string{"code-assistant"}, gotBody.ExcludeAgents)
}
