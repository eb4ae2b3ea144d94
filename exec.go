package browserjar

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Key-material lookups shell out to OS helpers (security, secret-tool,
// kwalletcli). Swappable for tests.
var execCommandContext = exec.CommandContext

// execCapture runs a helper and returns both output streams; stderr is
// kept because keychain tools report "not found" there with exit code 0
// variants across versions.
func execCapture(ctx context.Context, name string, args []string) (string, string, error) {
	cmd := execCommandContext(ctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return outBuf.String(), errBuf.String(), fmt.Errorf("%s: %w", name, err)
	}
	return outBuf.String(), errBuf.String(), nil
}
