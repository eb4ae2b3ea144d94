//go:build (!darwin && !linux && !windows) || android || ios

package browserjar

func firefoxRoots() []string { return nil }
