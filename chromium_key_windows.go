//go:build windows

package browserjar

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/windows"
)

// 0x01000000D08C9DDF0115D1118C7A00C04FC297EB — the DPAPI blob header.
// Values carrying it were protected whole by CryptProtectData (pre-v80);
// everything else uses AES-256-GCM with the Local State master key.
var dpapiBlobPrefix = [...]byte{
	1, 0, 0, 0, 208, 140, 157, 223, 1, 21, 209, 17, 140, 122, 0, 192, 79, 194, 151, 235,
}

func osChromiumDecryptor(_ context.Context, vendor chromiumVendor, stores []chromiumStore, _ Options) (chromiumDecryptFunc, []Diagnostic, error) {
	userDataDir := ""
	for _, st := range stores {
		if st.userData != "" {
			userDataDir = st.userData
			break
		}
	}
	if userDataDir == "" {
		return nil, nil, fmt.Errorf("%w: %s Local State path unavailable", ErrKeyUnavailable, vendor.label)
	}

	masterKey, err := windowsMasterKey(userDataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s master key: %v", ErrKeyUnavailable, vendor.label, err)
	}

	decrypt := func(encrypted []byte, metaVersion int64) ([]byte, error) {
		if len(encrypted) < 3 {
			return nil, errors.New("encrypted value too short")
		}

		if bytes.HasPrefix(encrypted, dpapiBlobPrefix[:]) {
			plain, err := dpapiUnprotect(encrypted)
			if err != nil {
				return nil, err
			}
			return chromiumStripHashPrefix(plain, metaVersion), nil
		}

		if string(encrypted[:3]) == "v20" {
			return nil, errors.New("app-bound (v20) encryption not supported")
		}

		return chromiumDecryptGCM(encrypted, masterKey, metaVersion)
	}
	return decrypt, nil, nil
}

// windowsMasterKey reads os_crypt.encrypted_key from Local State, strips
// the "DPAPI" tag and unwraps it with the user's data-protection key.
func windowsMasterKey(userDataDir string) ([]byte, error) {
	stateBytes, err := os.ReadFile(filepath.Join(userDataDir, "Local State"))
	if err != nil {
		return nil, err
	}

	var localState struct {
		OSCrypt struct {
			EncryptedKey string `json:"encrypted_key"`
		} `json:"os_crypt"`
	}
	if err := json.Unmarshal(stateBytes, &localState); err != nil {
		return nil, err
	}
	if localState.OSCrypt.EncryptedKey == "" {
		return nil, errors.New("local state missing os_crypt.encrypted_key")
	}
	enc, err := base64.StdEncoding.DecodeString(localState.OSCrypt.EncryptedKey)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(enc, []byte("DPAPI")) {
		return nil, errors.New("encrypted_key missing DPAPI prefix")
	}
	key, err := dpapiUnprotect(enc[len("DPAPI"):])
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("master key not 32 bytes (got %d)", len(key))
	}
	return key, nil
}

func dpapiUnprotect(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty dpapi input")
	}

	var outBlob dataBlob
	if err := cryptUnprotectData(newBlob(data), &outBlob); err != nil {
		return nil, err
	}
	defer func() {
		_, _ = windows.LocalFree(windows.Handle(unsafe.Pointer(outBlob.pbData))) //nolint:gosec // Windows API requires this.
	}()
	return outBlob.bytes(), nil
}

type dataBlob struct {
	cbData uint32
	pbData *byte
}

func newBlob(d []byte) *dataBlob {
	if len(d) == 0 {
		return &dataBlob{}
	}
	return &dataBlob{pbData: &d[0], cbData: uint32(len(d))}
}

func (b *dataBlob) bytes() []byte {
	if b == nil || b.cbData == 0 || b.pbData == nil {
		return nil
	}
	out := make([]byte, b.cbData)
	copy(out, (*[1 << 30]byte)(unsafe.Pointer(b.pbData))[:b.cbData:b.cbData])
	return out
}

func cryptUnprotectData(in *dataBlob, out *dataBlob) error {
	// windows.CryptUnprotectData in x/sys is awkward for raw blobs; call the proc directly.
	dll := windows.NewLazySystemDLL("Crypt32.dll")
	proc := dll.NewProc("CryptUnprotectData")
	const cryptprotectUIForbidden = 0x1
	r, _, e := proc.Call(
		uintptr(unsafe.Pointer(in)),
		0,
		0,
		0,
		0,
		cryptprotectUIForbidden,
		uintptr(unsafe.Pointer(out)),
	)
	if r == 0 {
		return e
	}
	return nil
}
