// Package importer implements the Session Importer (C10): idempotent bulk
// ingestion of historical session-file transcripts into chat-log entries,
// sequenced so the memory chain (C9) sees them in conversation order.
package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"go.mau.fi/util/dbutil"

	"github.com/agentmem/fabric/internal/store/entries"
	"github.com/agentmem/fabric/pkg/agentmem/transcript"
)

// layout is `.../agents/{agentKind}/sessions/{sessionId}.jsonl`.
var sessionFileRe = regexp.MustCompile(`agents/([^/]+)/sessions/([^/]+)\.jsonl$`)

// FileInfo describes one discovered session file.
type FileInfo struct {
	Path            string
	AgentKind       string
	SessionID       string
	EarliestInstant time.Time
	MessageCount    int
}

// ListFilter narrows List's results.
type ListFilter struct {
	AgentKind string
	After     time.Time
	Before    time.Time
}

// Importer discovers and idempotently imports session files under a root
// directory into the entries store.
type Importer struct {
	root  string
	db    *dbutil.Database
	store *entries.Store
}

// New creates an Importer rooted at dir.
func New(dir string, db *dbutil.Database, store *entries.Store) *Importer {
	return &Importer{root: dir, db: db, store: store}
}

// List walks the root directory and returns matching files sorted by
// earliest message instant ascending.
func (im *Importer) List(ctx context.Context, filter ListFilter) ([]FileInfo, error) {
	var out []FileInfo
	err := filepath.Walk(im.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		m := sessionFileRe.FindStringSubmatch(filepath.ToSlash(path))
		if m == nil {
			return nil
		}
		agentKind, sessionID := m[1], m[2]
		if filter.AgentKind != "" && filter.AgentKind != agentKind {
			return nil
		}

		earliest, count, ferr := inspect(path)
		if ferr != nil {
			return nil // unreadable file: skipped, not fatal to the whole listing
		}
		if !filter.After.IsZero() && earliest.Before(filter.After) {
			return nil
		}
		if !filter.Before.IsZero() && earliest.After(filter.Before) {
			return nil
		}

		out = append(out, FileInfo{Path: path, AgentKind: agentKind, SessionID: sessionID, EarliestInstant: earliest, MessageCount: count})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EarliestInstant.Before(out[j].EarliestInstant) })
	return out, nil
}

func inspect(path string) (time.Time, int, error) {
	lines, _, err := transcript.ReadLines(path, 0)
	if err != nil {
		return time.Time{}, 0, err
	}
	var earliest time.Time
	count := 0
	for _, line := range lines {
		rec, err := transcript.ParseLine(line)
		if err != nil || rec == nil || !rec.IsMessage() {
			continue
		}
		count++
		if rec.Timestamp == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, rec.Timestamp)
		if err != nil {
			continue
		}
		if earliest.IsZero() || ts.Before(earliest) {
			earliest = ts
		}
	}
	return earliest, count, nil
}

// FileResult is one file's outcome from Import.
type FileResult struct {
	Path             string
	EntryID          string
	ExternalKey      string
	AlreadyExisted   bool
	MessagesImported int
	Err              error
}

// Import runs the import phase: one job per file, strictly sequential
// (single-concurrency queue) so the memory chain sees entries in earliest-
// instant order. A per-file failure is recorded in its FileResult and does
// not abort the rest of the batch.
func (im *Importer) Import(ctx context.Context, principal string, files []FileInfo) []FileResult {
	results := make([]FileResult, 0, len(files))
	for _, f := range files {
		results = append(results, im.importOne(ctx, principal, f))
	}
	return results
}

func (im *Importer) importOne(ctx context.Context, principal string, f FileInfo) FileResult {
	externalKey := "session:" + f.AgentKind + ":" + f.SessionID

	existing, err := im.store.GetByExternalKey(ctx, principal, externalKey)
	if err == nil {
		return FileResult{Path: f.Path, EntryID: existing.ID, ExternalKey: externalKey, AlreadyExisted: true}
	}
	if !errors.Is(err, entries.ErrNotFound) {
		return FileResult{Path: f.Path, ExternalKey: externalKey, Err: err}
	}

	lines, _, err := transcript.ReadLines(f.Path, 0)
	if err != nil {
		return FileResult{Path: f.Path, ExternalKey: externalKey, Err: err}
	}

	var entryID string
	imported := 0
	for _, line := range lines {
		rec, perr := transcript.ParseLine(line)
		if perr != nil || rec == nil || !rec.IsMessage() {
			continue
		}
		res, aerr := im.store.Append(ctx, entries.AppendParams{
			Principal:          principal,
			ExternalSessionKey: externalKey,
			AgentKind:          f.AgentKind,
			Role:               rec.Role,
			Content:            rec.Text(),
			Timestamp:          rec.Timestamp,
			MessageID:          rec.ID,
			Source:             "import",
		})
		if aerr != nil {
			return FileResult{Path: f.Path, ExternalKey: externalKey, EntryID: entryID, MessagesImported: imported, Err: aerr}
		}
		entryID = res.Entry.ID
		imported++
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, _ = im.db.Exec(ctx, `INSERT OR IGNORE INTO import_files (external_session_key, entry_id, imported_at) VALUES ($1,$2,$3)`, externalKey, entryID, now)

	return FileResult{Path: f.Path, EntryID: entryID, ExternalKey: externalKey, MessagesImported: imported}
}
