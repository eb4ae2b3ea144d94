//go:build darwin && !ios

package browserjar

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// osChromiumDecryptor builds the macOS provider: the per-vendor Safe
// Storage password lives in the login keychain. Without it nothing in the
// profile decrypts, so a keychain failure skips the whole browser.
func osChromiumDecryptor(_ context.Context, vendor chromiumVendor, _ []chromiumStore, opts Options) (chromiumDecryptFunc, []Diagnostic, error) {
	password := strings.TrimSpace(os.Getenv(envKeySafeStoragePassword(vendor.browser)))
	if password == "" {
		pw, err := macosKeychainPassword(opts.Timeout, vendor.safeStorageService, vendor.safeStorageAccount)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: keychain read failed (%s): %v", ErrKeyUnavailable, vendor.safeStorageService, err)
		}
		password = strings.TrimSpace(pw)
		if password == "" {
			return nil, nil, fmt.Errorf("%w: keychain returned an empty %s password", ErrKeyUnavailable, vendor.safeStorageService)
		}
	}

	key := chromiumDeriveCBCKey(password, chromiumKDFItersDarwin)
	decrypt := func(encrypted []byte, metaVersion int64) ([]byte, error) {
		// Unprefixed values predate encryption and are stored as-is.
		return chromiumDecryptCBC(encrypted, key, metaVersion, true)
	}
	return decrypt, nil, nil
}

func macosKeychainPassword(timeout time.Duration, service string, account string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stdout, stderr, err := execCapture(ctx, "security", []string{
		"find-generic-password",
		"-w",
		"-a", account,
		"-s", service,
	})
	if err != nil {
		if stderr != "" {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))
		}
		return "", err
	}
	return strings.TrimSpace(stdout), nil
}
