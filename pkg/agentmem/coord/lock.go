package coord

import (
	"fmt"
	"os"
	"time"
)

// staleLockAge is how old a lock file can get before a competitor reclaims
// it. Guards against a crashed holder wedging every sibling agent forever.
const staleLockAge = 10 * time.Second

// lockAcquireTimeout is the wall-clock budget for acquiring the sidecar
// lock before giving up. A hook call that can't get the lock in time skips
// silently rather than blocking the agent's turn.
const lockAcquireTimeout = 5 * time.Second

const lockRetryInterval = 50 * time.Millisecond

// acquireLock creates path exclusively, retrying until timeout. It reclaims
// stale locks (older than staleLockAge) by removing them and retrying the
// create. Returns an error if the lock could not be acquired in time.
func acquireLock(path string) error {
	deadline := time.Now().Add(lockAcquireTimeout)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
			_ = f.Close()
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("coord: create lock %s: %w", path, err)
		}

		if info, statErr := os.Stat(path); statErr == nil {
			if time.Since(info.ModTime()) > staleLockAge {
				_ = os.Remove(path)
				continue
			}
		} else if os.IsNotExist(statErr) {
			// Lock disappeared between our failed create and the stat; retry now.
			continue
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("coord: timed out acquiring lock %s", path)
		}
		time.Sleep(lockRetryInterval)
	}
}

func releaseLock(path string) {
	_ = os.Remove(path)
}
