//go:build !darwin || ios

package browserjar

import "strings"

// Safari profiles exist on macOS only, but an explicit override (e.g. a
// store file copied from another machine) is honored anywhere since the
// binarycookies parser is OS-independent.
func safariCookieFiles(override string) ([]string, []Diagnostic) {
	override = strings.TrimSpace(override)
	if override == "" {
		return nil, nil
	}
	if fileExists(override) {
		return []string{override}, nil
	}
	return nil, []Diagnostic{diag(DiagProfileNotFound, BrowserSafari, "", override, "Cookies.binarycookies not found at override")}
}
