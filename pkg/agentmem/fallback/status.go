package fallback

import "os"

// isUsable reports whether a session file is usable by the recoverer.
// Hosts mark a file deleted/locked/archived by dropping a same-named
// sidecar marker next to it (e.g. "a.jsonl.deleted") rather than mutating
// the transcript itself, so the recoverer can skip it with a plain stat.
func isUsable(path string) bool {
	for _, suffix := range []string{".deleted", ".locked", ".archived"} {
		if _, err := os.Stat(path + suffix); err == nil {
			return false
		}
	}
	return true
}
