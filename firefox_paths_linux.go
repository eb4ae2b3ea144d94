//go:build linux && !android

package browserjar

import (
	"os"
	"path/filepath"
)

func firefoxRoots() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".mozilla", "firefox"),
		// Snap-packaged Firefox keeps its profile under ~/snap.
		filepath.Join(home, "snap", "firefox", "common", ".mozilla", "firefox"),
	}
}
