package notify

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const dedupDirName = "ccvoice-dedup"

// Dedup remembers, per session, the hash of the last context that was
// spoken. Markers live in the OS temp directory.
type Dedup struct {
	dir string
}

// NewDedup creates a tracker under the OS temp directory.
func NewDedup() *Dedup {
	return &Dedup{dir: filepath.Join(os.TempDir(), dedupDirName)}
}

// NewDedupAt creates a tracker storing markers in dir.
func NewDedupAt(dir string) *Dedup {
	return &Dedup{dir: dir}
}

// IsDuplicate reports whether text was the last thing spoken in sessionID.
func (d *Dedup) IsDuplicate(sessionID, text string) bool {
	if sessionID == "" {
		return false
	}
	stored, err := os.ReadFile(d.markerPath(sessionID))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(stored)) == hashText(text)
}

// Record stores text as the last spoken context of sessionID. Failures are
// only logged.
func (d *Dedup) Record(sessionID, text string) {
	if sessionID == "" {
		return
	}
	if err := os.MkdirAll(d.dir, 0o700); err != nil {
		log.Debug().Err(err).Msg("Failed to create dedup directory")
		return
	}
	if err := os.WriteFile(d.markerPath(sessionID), []byte(hashText(text)), 0o600); err != nil {
		log.Debug().Err(err).Msg("Failed to write dedup marker")
	}
}

// Cleanup removes markers older than maxAge.
func (d *Dedup) Cleanup(maxAge time.Duration) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(d.dir, entry.Name()))
		}
	}
}

// markerPath keeps session ids from escaping the marker directory.
func (d *Dedup) markerPath(sessionID string) string {
	return filepath.Join(d.dir, filepath.Base(filepath.Clean("/"+sessionID))+".last")
}

func hashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h)
}
