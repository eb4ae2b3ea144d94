//go:build (!darwin && !linux && !windows) || android || ios

package browserjar

import (
	"context"
	"fmt"
	"runtime"
)

func osChromiumDecryptor(_ context.Context, _ chromiumVendor, _ []chromiumStore, _ Options) (chromiumDecryptFunc, []Diagnostic, error) {
	return nil, nil, fmt.Errorf("%w: chromium cookie decryption unsupported on %s", ErrKeyUnavailable, runtime.GOOS)
}
