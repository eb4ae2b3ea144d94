package browserjar

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// chromiumStore is one discovered cookie database and its profile context.
type chromiumStore struct {
	cookiesDB string
	userData  string
	profile   string
	isDefault bool
}

// chromiumLocateStores finds candidate cookie stores for a Chromium-family
// browser. A missing browser is not an error: it returns an empty slice and
// the caller reports DiagProfileNotFound. An explicit override (profile
// name, profile dir, or cookies DB path) beats auto-discovery.
func chromiumLocateStores(b Browser, override string) ([]chromiumStore, []Diagnostic) {
	if override != "" {
		return chromiumStoresFromOverride(b, override)
	}

	var out []chromiumStore
	var diags []Diagnostic
	for _, root := range chromiumUserDataDirs(b) {
		st, d := chromiumStoresFromUserDataDir(b, root)
		diags = append(diags, d...)
		out = append(out, st...)
	}
	return out, diags
}

// chromiumStoresFromUserDataDir enumerates profiles via the Local State
// info_cache, falling back to a Default probe when the file is unreadable.
// Randomized and numbered profile directories both appear in info_cache.
func chromiumStoresFromUserDataDir(b Browser, userDataDir string) ([]chromiumStore, []Diagnostic) {
	localStateBytes, err := os.ReadFile(filepath.Join(userDataDir, "Local State"))
	if err != nil {
		return chromiumProbeProfileDirs(b, userDataDir), nil
	}

	var localState struct {
		Profile struct {
			InfoCache map[string]struct {
				IsUsingDefaultName bool `json:"is_using_default_name"`
				Name               string
			} `json:"info_cache"`
		} `json:"profile"`
	}
	if err := json.Unmarshal(localStateBytes, &localState); err != nil {
		d := diag(DiagCorruptStore, b, "", userDataDir, fmt.Sprintf("unparseable Local State: %v", err))
		return chromiumProbeProfileDirs(b, userDataDir), []Diagnostic{d}
	}

	var out []chromiumStore
	for profDir, prof := range localState.Profile.InfoCache {
		out = append(out, chromiumStoresForProfileDir(userDataDir, profDir, prof.Name, prof.IsUsingDefaultName)...)
	}
	if len(out) == 0 {
		out = chromiumProbeProfileDirs(b, userDataDir)
	}
	return out, nil
}

// chromiumProbeProfileDirs checks the well-known profile directory names
// directly when Local State is missing or empty.
func chromiumProbeProfileDirs(_ Browser, userDataDir string) []chromiumStore {
	out := chromiumStoresForProfileDir(userDataDir, "Default", "Default", true)
	matches, _ := filepath.Glob(filepath.Join(userDataDir, "Profile *"))
	for _, m := range matches {
		name := filepath.Base(m)
		out = append(out, chromiumStoresForProfileDir(userDataDir, name, name, false)...)
	}
	return out
}

func chromiumStoresForProfileDir(userDataDir, profDir, profName string, isDefault bool) []chromiumStore {
	var out []chromiumStore
	candidates := []string{
		filepath.Join(userDataDir, profDir, "Network", "Cookies"),
		filepath.Join(userDataDir, profDir, "Cookies"),
	}
	for _, p := range candidates {
		if fileExists(p) {
			out = append(out, chromiumStore{
				cookiesDB: p,
				userData:  userDataDir,
				profile:   profName,
				isDefault: isDefault,
			})
		}
	}
	return out
}

func chromiumStoresFromOverride(b Browser, override string) ([]chromiumStore, []Diagnostic) {
	override = strings.TrimSpace(override)
	if override == "" {
		return nil, nil
	}

	// 1) Explicit file or profile directory.
	if fi, err := os.Stat(override); err == nil {
		if fi.IsDir() {
			return chromiumStoresFromProfileDir(override), nil
		}
		return chromiumStoresFromDBPath(b, override)
	}

	// 2) Treat as a profile name across known roots.
	var out []chromiumStore
	for _, root := range chromiumUserDataDirs(b) {
		out = append(out, chromiumStoresForProfileDir(root, override, override, false)...)
	}
	if len(out) == 0 {
		return nil, []Diagnostic{diag(DiagProfileNotFound, b, override, "", "profile override not found")}
	}
	return out, nil
}

func chromiumStoresFromProfileDir(profileDir string) []chromiumStore {
	candidates := []string{
		filepath.Join(profileDir, "Network", "Cookies"),
		filepath.Join(profileDir, "Cookies"),
	}
	for _, p := range candidates {
		if fileExists(p) {
			return []chromiumStore{{
				cookiesDB: p,
				userData:  filepath.Dir(profileDir),
				profile:   filepath.Base(profileDir),
			}}
		}
	}
	return nil
}

func chromiumStoresFromDBPath(b Browser, cookiesDBPath string) ([]chromiumStore, []Diagnostic) {
	if !fileExists(cookiesDBPath) {
		return nil, []Diagnostic{diag(DiagProfileNotFound, b, "", cookiesDBPath, "cookies DB not found")}
	}

	dir := filepath.Dir(cookiesDBPath)
	if filepath.Base(dir) == "Network" {
		dir = filepath.Dir(dir)
	}
	return []chromiumStore{{
		cookiesDB: cookiesDBPath,
		userData:  filepath.Dir(dir),
		profile:   filepath.Base(dir),
	}}, nil
}
