//go:build darwin && !ios

package browserjar

import (
	"os"
	"path/filepath"
	"strings"
)

func safariCookieFiles(override string) ([]string, []Diagnostic) {
	override = strings.TrimSpace(override)
	if override != "" {
		if fileExists(override) {
			return []string{override}, nil
		}
		return nil, []Diagnostic{diag(DiagProfileNotFound, BrowserSafari, "", override, "Cookies.binarycookies not found at override")}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, nil
	}
	paths := []string{
		filepath.Join(home, "Library", "Containers", "com.apple.Safari", "Data", "Library", "Cookies", "Cookies.binarycookies"),
		filepath.Join(home, "Library", "Cookies", "Cookies.binarycookies"),
	}

	var out []string
	for _, p := range paths {
		if fileExists(p) {
			out = append(out, p)
		}
	}
	return out, nil
}
