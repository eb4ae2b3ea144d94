//go:build linux && !android

package browserjar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
)

type linuxKeyringBackend string

const (
	linuxKeyringGnome   linuxKeyringBackend = "gnome"
	linuxKeyringKWallet linuxKeyringBackend = "kwallet"
	linuxKeyringBasic   linuxKeyringBackend = "basic"
)

// osChromiumDecryptor builds the Linux provider. v10 values use the fixed
// "peanuts" passphrase, v11 values the per-vendor Safe Storage secret from
// the session keyring. A missing keyring is reported but not fatal: v10
// cookies still decrypt with the fixed key.
func osChromiumDecryptor(_ context.Context, vendor chromiumVendor, _ []chromiumStore, opts Options) (chromiumDecryptFunc, []Diagnostic, error) {
	password, diags := linuxSafeStoragePassword(vendor, opts.Timeout)

	v10Key := chromiumDeriveCBCKey("peanuts", chromiumKDFItersLinux)
	emptyKey := chromiumDeriveCBCKey("", chromiumKDFItersLinux)
	v11Key := chromiumDeriveCBCKey(password, chromiumKDFItersLinux)

	decrypt := func(encrypted []byte, metaVersion int64) ([]byte, error) {
		if len(encrypted) < 3 {
			return nil, errors.New("encrypted value too short")
		}
		var keys [][]byte
		switch string(encrypted[:3]) {
		case "v10":
			keys = [][]byte{v10Key, emptyKey}
		case "v11":
			keys = [][]byte{v11Key, emptyKey}
		default:
			return nil, fmt.Errorf("unknown value prefix %q", string(encrypted[:3]))
		}
		var lastErr error
		for _, key := range keys {
			plain, err := chromiumDecryptCBC(encrypted, key, metaVersion, false)
			if err == nil {
				return plain, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
	return decrypt, diags, nil
}

func linuxSafeStoragePassword(vendor chromiumVendor, timeout time.Duration) (string, []Diagnostic) {
	// Escape hatch for deterministic tooling/CI.
	if override := strings.TrimSpace(os.Getenv(envKeySafeStoragePassword(vendor.browser))); override != "" {
		return override, nil
	}

	backend := parseLinuxKeyringBackend()
	if backend == "" {
		backend = chooseLinuxKeyringBackend()
	}

	unavailable := func(detail string) []Diagnostic {
		return []Diagnostic{diag(DiagKeyUnavailable, vendor.browser, "", "",
			detail+"; v11 cookies will be unreadable")}
	}

	switch backend {
	case linuxKeyringBasic:
		return "", nil
	case linuxKeyringGnome:
		if pw, err := keyring.Get(vendor.safeStorageService, vendor.safeStorageAccount); err == nil && strings.TrimSpace(pw) != "" {
			return strings.TrimSpace(pw), nil
		}
		pw, err := linuxSecretToolLookup(timeout, vendor.safeStorageService, vendor.safeStorageAccount)
		if err == nil {
			return pw, nil
		}
		return "", unavailable("Secret Service lookup failed")
	case linuxKeyringKWallet:
		pw, err := linuxKWalletLookup(timeout, vendor.safeStorageService, vendor.safeStorageAccount)
		if err == nil {
			return pw, nil
		}
		return "", unavailable("kwallet lookup failed")
	default:
		return "", unavailable(fmt.Sprintf("unknown keyring backend %q", backend))
	}
}

func parseLinuxKeyringBackend() linuxKeyringBackend {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("BROWSERJAR_LINUX_KEYRING")))
	switch raw {
	case "gnome":
		return linuxKeyringGnome
	case "kwallet":
		return linuxKeyringKWallet
	case "basic":
		return linuxKeyringBasic
	default:
		return ""
	}
}

func chooseLinuxKeyringBackend() linuxKeyringBackend {
	xdg := strings.ToLower(os.Getenv("XDG_CURRENT_DESKTOP"))
	for _, p := range strings.Split(xdg, ":") {
		if strings.TrimSpace(p) == "kde" {
			return linuxKeyringKWallet
		}
	}
	if os.Getenv("KDE_FULL_SESSION") != "" {
		return linuxKeyringKWallet
	}
	return linuxKeyringGnome
}

func linuxSecretToolLookup(timeout time.Duration, service string, account string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stdout, _, err := execCapture(ctx, "secret-tool", []string{"lookup", "service", service, "account", account})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(stdout), nil
}

func linuxKWalletLookup(timeout time.Duration, service string, account string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	wallet := "kdewallet"
	serviceName, walletPath := linuxKWalletServiceNameAndPath()
	if serviceName != "" && walletPath != "" {
		stdout, _, err := execCapture(ctx, "dbus-send", []string{
			"--session",
			"--print-reply=literal",
			"--dest=" + serviceName,
			walletPath,
			"org.kde.KWallet.networkWallet",
		})
		if err == nil {
			if w := strings.TrimSpace(strings.ReplaceAll(stdout, "\"", "")); w != "" {
				wallet = w
			}
		}
	}

	folder := account + " Keys"
	stdout, _, err := execCapture(ctx, "kwallet-query", []string{"--read-password", service, "--folder", folder, wallet})
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(stdout)
	if strings.HasPrefix(strings.ToLower(out), "failed to read") {
		return "", errors.New("kwallet-query failed")
	}
	return out, nil
}

func linuxKWalletServiceNameAndPath() (serviceName string, walletPath string) {
	switch strings.TrimSpace(os.Getenv("KDE_SESSION_VERSION")) {
	case "6":
		return "org.kde.kwalletd6", "/modules/kwalletd6"
	case "5":
		return "org.kde.kwalletd5", "/modules/kwalletd5"
	default:
		return "org.kde.kwalletd", "/modules/kwalletd"
	}
}
