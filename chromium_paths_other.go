//go:build (!darwin && !linux && !windows) || android || ios

package browserjar

func chromiumUserDataDirs(_ Browser) []string { return nil }
