// Package syncer implements the Chat-Stream Syncer (C6): it watches the
// host's main session file for new lines and mirrors them into the Store as
// appends or reactions. Every watcher event triggers a full sync pass; events
// are not debounced, and a per-file line-count cursor is the only guard
// against re-posting a line (there is no message-id dedupe cache).
package syncer

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/agentmem/fabric/pkg/agentmem/coord"
	"github.com/agentmem/fabric/pkg/agentmem/provenance"
	"github.com/agentmem/fabric/pkg/agentmem/transcript"
)

// appendTimeout bounds a single post call, matching the Store's 10s append budget.
const appendTimeout = 10 * time.Second

// Poster is the subset of provenance.Client the syncer needs.
type Poster interface {
	AppendChatStream(ctx context.Context, req provenance.AppendChatStreamRequest) (*provenance.AppendChatStreamResponse, error)
	PostReaction(ctx context.Context, req provenance.ReactionRequest) error
}

// Breaker is the subset of coord.Store the syncer needs.
type Breaker interface {
	CanWrite(agentKey string) coord.CanWriteResult
	RecordFailure()
}

// Syncer watches the sessions directory and mirrors the current main
// session file's new lines into the Store.
type Syncer struct {
	agent       string
	agentKey    string
	sessionsDir string
	pointers    *transcript.PointerResolver
	poster      Poster
	breaker     Breaker
	state       *stateTable
	log         zerolog.Logger
}

// New creates a Syncer for one agent identity, watching sessionsDir.
func New(agent, agentKey, sessionsDir string, pointers *transcript.PointerResolver, poster Poster, breaker Breaker, log zerolog.Logger) *Syncer {
	return &Syncer{
		agent:       agent,
		agentKey:    agentKey,
		sessionsDir: sessionsDir,
		pointers:    pointers,
		poster:      poster,
		breaker:     breaker,
		state:       newStateTable(),
		log:         log.With().Str("component", "syncer").Str("agent", agent).Logger(),
	}
}

// Run watches sessionsDir for changes and syncs on every event plus once on
// startup, until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(s.sessionsDir); err != nil {
		return err
	}

	s.Sync(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.Sync(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn().Err(err).Msg("syncer: watcher error")
		}
	}
}

// Sync runs one pass: locate the main session file, read any new lines,
// and post each as a reaction or append, advancing the cursor as it goes.
func (s *Syncer) Sync(ctx context.Context) {
	ms, ok := s.pointers.Resolve(s.agent)
	if !ok || ms.SessionFile == "" {
		return
	}

	birth, err := transcript.Birth(ms.SessionFile)
	if err != nil {
		s.log.Debug().Err(err).Msg("syncer: could not stat session file")
		return
	}

	st, existed := s.state.get(ms.SessionFile)
	if !existed {
		st = &fileState{}
	}
	if st.BirthMs != 0 && birth.UnixMilli() > st.BirthMs {
		st.LineCount = 0
	}
	st.BirthMs = birth.UnixMilli()

	lines, _, err := transcript.ReadLines(ms.SessionFile, 0)
	if err != nil {
		s.log.Debug().Err(err).Msg("syncer: could not read session file")
		return
	}
	if len(lines) <= st.LineCount {
		s.state.touch(ms.SessionFile, st)
		return
	}

	newLines := lines[st.LineCount:]
	processed := 0
	for _, line := range newLines {
		rec, err := transcript.ParseLine(line)
		if err != nil || rec == nil || !rec.IsMessage() {
			processed++
			continue
		}
		text := rec.Text()
		if text == "" {
			processed++
			continue
		}

		c := classify(text)
		ok := true
		switch {
		case c.IsReaction:
			ok = s.postReaction(ctx, c, rec)
		case isNoise(text):
			// dropped, not posted
		default:
			ok = s.postAppend(ctx, ms.SessionID, rec, text)
		}
		if !ok {
			break
		}
		processed++
	}

	st.LineCount += processed
	s.state.touch(ms.SessionFile, st)
}

func (s *Syncer) postReaction(ctx context.Context, c classified, rec *transcript.Record) bool {
	gate := s.breaker.CanWrite(s.agentKey)
	if !gate.Allowed {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()
	if err := s.poster.PostReaction(ctx, provenance.ReactionRequest{
		TargetMessageID: c.TargetMessageID,
		Emoji:           c.Emoji,
		FromUser:        rec.Role,
	}); err != nil {
		s.breaker.RecordFailure()
		return false
	}
	return true
}

func (s *Syncer) postAppend(ctx context.Context, sessionID string, rec *transcript.Record, text string) bool {
	gate := s.breaker.CanWrite(s.agentKey)
	if !gate.Allowed {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()
	_, err := s.poster.AppendChatStream(ctx, provenance.AppendChatStreamRequest{
		SessionID: sessionID,
		Message: provenance.ChatMessage{
			Role:      rec.Role,
			Content:   text,
			Timestamp: rec.Timestamp,
			MessageID: rec.ID,
		},
	})
	if err != nil {
		s.breaker.RecordFailure()
		return false
	}
	return true
}
