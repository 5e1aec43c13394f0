package syncer

import "regexp"

// reactionPattern matches the host's reaction shorthand: a bare line naming
// a target message id and an emoji, e.g. "react:msg_83f2:👍". Anything else
// classified as a message record is treated as ordinary chat content.
var reactionPattern = regexp.MustCompile(`(?i)^react:([^:]+):(\S+)$`)

// classified is the outcome of running one record's text through the
// extractor: exactly one of IsReaction or (neither) holds.
type classified struct {
	IsReaction      bool
	TargetMessageID string
	Emoji           string
}

// classify applies the per-message extractor ahead of posting, so the Store
// only ever receives already-attributed reaction or append operations.
func classify(text string) classified {
	if m := reactionPattern.FindStringSubmatch(text); m != nil {
		return classified{IsReaction: true, TargetMessageID: m[1], Emoji: m[2]}
	}
	return classified{}
}
