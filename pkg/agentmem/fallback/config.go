package fallback

import "time"

// Config tunes the fallback recoverer's bounds. Zero values are replaced
// with defaults by ResolveConfig.
type Config struct {
	// Window bounds how stale a session file may be to be considered.
	Window time.Duration
	// MaxFileSize is the per-file size ceiling.
	MaxFileSize int64
	// MaxFiles bounds how many files are scanned.
	MaxFiles int
	// MaxLinesPerFile bounds JSONL lines parsed per file.
	MaxLinesPerFile int
	// MaxTextChars truncates any single message's extracted text.
	MaxTextChars int
	// MaxTotalBytesRead stops the scan early once this many file bytes have
	// been read across all files.
	MaxTotalBytesRead int64
	// TargetMessages is how many trailing messages the block should contain.
	TargetMessages int
	// MaxMessages caps TargetMessages regardless of caller input.
	MaxMessages int
	// MinMessages is the minimum survivor count below which nothing is returned.
	MinMessages int
}

const (
	defaultWindow          = 12 * time.Hour
	maxWindow              = 168 * time.Hour
	defaultMaxFileSize     = 5 * 1024 * 1024
	defaultMaxFiles        = 100
	defaultMaxLinesPerFile = 10000
	defaultMaxTextChars    = 4000
	defaultMaxTotalBytes   = 100 * 1024 * 1024
	defaultTargetMessages  = 30
	defaultMaxMessages     = 100
	defaultMinMessages     = 3
)

// ResolveConfig fills in the default for any zero field and clamps Window
// to the 168h ceiling.
func ResolveConfig(cfg Config) Config {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Window > maxWindow {
		cfg.Window = maxWindow
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = defaultMaxFiles
	}
	if cfg.MaxLinesPerFile <= 0 {
		cfg.MaxLinesPerFile = defaultMaxLinesPerFile
	}
	if cfg.MaxTextChars <= 0 {
		cfg.MaxTextChars = defaultMaxTextChars
	}
	if cfg.MaxTotalBytesRead <= 0 {
		cfg.MaxTotalBytesRead = defaultMaxTotalBytes
	}
	if cfg.TargetMessages <= 0 {
		cfg.TargetMessages = defaultTargetMessages
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = defaultMaxMessages
	}
	if cfg.TargetMessages > cfg.MaxMessages {
		cfg.TargetMessages = cfg.MaxMessages
	}
	if cfg.MinMessages <= 0 {
		cfg.MinMessages = defaultMinMessages
	}
	return cfg
}
