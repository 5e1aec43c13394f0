package provenance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentmem/fabric/pkg/agentmem/agenterrors"
	"github.com/agentmem/fabric/pkg/agentmem/coord"
)

const (
	maxAttempts   = 3
	baseRetryWait = 200 * time.Millisecond
)

// Breaker is the subset of coord.Store the client needs, so tests can fake it.
type Breaker interface {
	CanWrite(agentKey string) coord.CanWriteResult
	RecordWrite(agentKey string)
	RecordFailure()
}

// Client is a Store-aware HTTP client carrying one Identity on every call.
type Client struct {
	baseURL    string
	token      string
	identity   Identity
	breaker    Breaker
	httpClient *http.Client
	log        zerolog.Logger
}

// New constructs a Client. baseURL should include the /api/v1 prefix.
func New(baseURL, token string, identity Identity, breaker Breaker, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		identity:   identity,
		breaker:    breaker,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("component", "provenance").Str("agent_kind", identity.AgentKind()).Logger(),
	}
}

// Identity returns the client's provenance tuple.
func (c *Client) Identity() Identity { return c.identity }

func (c *Client) headers() map[string]string {
	h := c.identity.Headers()
	h["Authorization"] = "Bearer " + c.token
	h["Content-Type"] = "application/json"
	return h
}

// mutating performs a POST/PUT/DELETE that counts against the write window
// and the circuit breaker. It gates on CanWrite before attempting anything.
func (c *Client) mutating(ctx context.Context, method, path string, body any, out any) error {
	if c.breaker != nil {
		gate := c.breaker.CanWrite(c.identity.Key())
		if !gate.Allowed {
			return agenterrors.New(agenterrors.CodeRateLimited, "coordination store denied write: "+gate.Reason)
		}
	}

	err := c.doWithRetry(ctx, method, path, body, out)
	if err != nil {
		if c.breaker != nil && !agenterrors.IsAuthError(err) && !agenterrors.IsDerivationLimit(err) {
			c.breaker.RecordFailure()
		}
		return err
	}
	if c.breaker != nil {
		c.breaker.RecordWrite(c.identity.Key())
	}
	return nil
}

// readOnly performs a GET/search-style call without touching the write window.
func (c *Client) readOnly(ctx context.Context, method, path string, body any, out any) error {
	return c.doWithRetry(ctx, method, path, body, out)
}

// doWithRetry issues one logical request with up to maxAttempts tries,
// exponential backoff with jitter between attempts, and only retries errors
// classified transient or rate-limited.
func (c *Client) doWithRetry(ctx context.Context, method, path string, body any, out any) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if agenterrors.IsAuthError(err) || agenterrors.IsDerivationLimit(err) {
			return err // fatal, non-retryable
		}
		if !agenterrors.IsTransient(err) && !agenterrors.IsRateLimited(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		wait := baseRetryWait * time.Duration(1<<uint(attempt-1))
		jitter := time.Duration(rand.Int63n(int64(wait) / 2))
		select {
		case <-time.After(wait + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
		c.log.Debug().Int("attempt", attempt+1).Err(err).Msg("provenance: retrying Store call")
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("provenance: marshal body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("provenance: build request: %w", err)
	}
	for k, v := range c.headers() {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return agenterrors.New(agenterrors.CodeTransient, err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return agenterrors.New(agenterrors.CodeTransient, "reading response: "+err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode, data)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("provenance: decode response: %w", err)
		}
	}
	return nil
}

// errorEnvelope mirrors the Store's {ok:false, error:{code,message}} shape.
type errorEnvelope struct {
	OK    bool `json:"ok"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func classifyStatus(status int, data []byte) error {
	var env errorEnvelope
	if json.Unmarshal(data, &env) == nil && env.Error.Code != "" {
		return &agenterrors.StoreError{Code: agenterrors.Code(env.Error.Code), Message: env.Error.Message, Status: status}
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &agenterrors.StoreError{Code: agenterrors.CodeUnauthorized, Message: string(data), Status: status}
	case http.StatusTooManyRequests:
		return &agenterrors.StoreError{Code: agenterrors.CodeRateLimited, Message: string(data), Status: status}
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return &agenterrors.StoreError{Code: agenterrors.CodeDerivationLimit, Message: string(data), Status: status}
	case http.StatusNotFound:
		return &agenterrors.StoreError{Code: agenterrors.CodeNotFound, Message: string(data), Status: status}
	default:
		if status >= 500 {
			return &agenterrors.StoreError{Code: agenterrors.CodeTransient, Message: string(data), Status: status}
		}
		return &agenterrors.StoreError{Code: agenterrors.CodeInvalid, Message: string(data), Status: status}
	}
}
