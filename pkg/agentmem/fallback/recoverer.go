// Package fallback implements the recovery path used when the smart
// retriever (C4) cannot reach the Store: a best-effort scan of the host's
// own session-files directory, rather than no injected context at all.
package fallback

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentmem/fabric/pkg/agentmem/transcript"
)

// Message is one recovered, role-attributed line of conversation.
type Message struct {
	Role      string
	Text      string
	Timestamp time.Time
}

// Recoverer scans a directory of session files and assembles a trailing
// window of recent messages when the Store is unreachable.
type Recoverer struct {
	dir string
	cfg Config
	log zerolog.Logger
}

// New creates a Recoverer over dir using cfg (defaults filled by ResolveConfig).
func New(dir string, cfg Config, log zerolog.Logger) *Recoverer {
	return &Recoverer{dir: dir, cfg: ResolveConfig(cfg), log: log.With().Str("component", "fallback").Logger()}
}

// candidate is a session file that survived the directory-level filters.
type candidate struct {
	path    string
	modTime time.Time
	size    int64
}

// Recover scans the directory and returns a formatted context block, or ""
// if fewer than cfg.MinMessages messages survive filtering.
func (r *Recoverer) Recover() string {
	candidates, err := r.scanCandidates()
	if err != nil {
		r.log.Debug().Err(err).Msg("fallback: directory scan failed")
		return ""
	}
	if len(candidates) == 0 {
		return ""
	}

	// Most-recently-modified first: the earliest files to stop scanning
	// once caps are hit should be the ones least likely to matter.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})
	if len(candidates) > r.cfg.MaxFiles {
		candidates = candidates[:r.cfg.MaxFiles]
	}

	var messages []Message
	var totalBytesRead int64
	targetCollected := 2 * r.cfg.TargetMessages

	for _, c := range candidates {
		if totalBytesRead >= r.cfg.MaxTotalBytesRead {
			break
		}
		if len(messages) >= targetCollected {
			break
		}

		lines, _, err := transcript.ReadLines(c.path, r.cfg.MaxLinesPerFile)
		if err != nil {
			continue
		}
		totalBytesRead += c.size

		for _, line := range lines {
			rec, err := transcript.ParseLine(line)
			if err != nil || rec == nil || !rec.IsMessage() {
				continue
			}
			if rec.Role != transcript.RoleUser && rec.Role != transcript.RoleAssistant {
				continue
			}
			text := strings.TrimSpace(rec.Text())
			if text == "" || IsBlocked(text) {
				continue
			}
			if len(text) > r.cfg.MaxTextChars {
				text = text[:r.cfg.MaxTextChars]
			}
			ts := parseTimestamp(rec.Timestamp, c.modTime)
			messages = append(messages, Message{Role: rec.Role, Text: text, Timestamp: ts})
		}
	}

	if len(messages) == 0 {
		return ""
	}

	sort.Slice(messages, func(i, j int) bool { return messages[i].Timestamp.Before(messages[j].Timestamp) })

	trailing := r.cfg.TargetMessages
	if trailing > len(messages) {
		trailing = len(messages)
	}
	messages = messages[len(messages)-trailing:]

	if len(messages) < r.cfg.MinMessages {
		return ""
	}

	return FormatBlock(messages, time.Now())
}

// scanCandidates walks the directory one level deep, applying the
// usable/age/size filters before any file content is read, so an unusable
// or stale session never costs a parse pass.
func (r *Recoverer) scanCandidates() ([]candidate, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-r.cfg.Window)
	var out []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".deleted") || strings.HasSuffix(name, ".locked") || strings.HasSuffix(name, ".archived") {
			continue
		}
		path := filepath.Join(r.dir, name)
		if !isUsable(path) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			continue
		}
		if info.Size() > r.cfg.MaxFileSize {
			continue
		}
		out = append(out, candidate{path: path, modTime: info.ModTime(), size: info.Size()})
	}
	return out, nil
}

func parseTimestamp(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return fallback
}

// FormatBlock renders the recovered messages as a header/body/footer block,
// mirroring FormatContextBlock's shape so a consumer can't tell whether
// context came from the Store or the fallback scan.
func FormatBlock(messages []Message, at time.Time) string {
	var b strings.Builder
	b.WriteString("## Recovered Context (Fallback)\n")
	b.WriteString("source: local session scan | at: " + at.UTC().Format(time.RFC3339) + "\n\n")
	for _, m := range messages {
		b.WriteString(m.Role + ": " + m.Text + "\n")
	}
	b.WriteString("\n(recovered context ends)\n")
	return b.String()
}
