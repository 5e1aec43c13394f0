package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// pointerCacheTTL bounds how often the pointer file is re-read, trading a
// brief staleness window for not hitting disk on every lookup.
const pointerCacheTTL = 30 * time.Second

// MainSession identifies the host's current main session for one agent.
type MainSession struct {
	SessionID   string `json:"sessionId"`
	SessionFile string `json:"sessionFile"`
}

// PointerResolver caches reads of the sessions-pointer file: a JSON map
// keyed by "agent:{agent}:main" -> MainSession.
type PointerResolver struct {
	path string

	mu       sync.Mutex
	cachedAt time.Time
	data     map[string]MainSession
}

// NewPointerResolver creates a resolver reading path on demand.
func NewPointerResolver(path string) *PointerResolver {
	return &PointerResolver{path: path}
}

// Resolve returns the main session for agent, or (zero, false) if there is
// no pointer file or no entry for agent — callers must treat that as
// "nothing to do", not an error, since an agent's first run on a host has
// no pointer file yet.
func (p *PointerResolver) Resolve(agent string) (MainSession, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.cachedAt) > pointerCacheTTL {
		data, err := p.load()
		if err == nil {
			p.data = data
			p.cachedAt = time.Now()
		} else if p.data == nil {
			p.data = map[string]MainSession{}
			p.cachedAt = time.Now()
		}
	}

	key := fmt.Sprintf("agent:%s:main", agent)
	ms, ok := p.data[key]
	return ms, ok
}

func (p *PointerResolver) load() (map[string]MainSession, error) {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return nil, err
	}
	var m map[string]MainSession
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
