package browserjar

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1" //nolint:gosec // Chromium's legacy cookie KDF is PBKDF2-SHA1 ("saltysalt").
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"
)

const (
	chromiumKDFSalt         = "saltysalt"
	chromiumCBCIV           = "                " // 16 spaces
	chromiumKDFItersLinux   = 1
	chromiumKDFItersDarwin  = 1003
	chromiumCBCKeyLen       = 16
	chromiumGCMNonceLen     = 12
	chromiumGCMTagLen       = 16
	chromiumHashPrefixLen   = 32
	chromiumHashPrefixSince = 24 // meta schema version that introduced it
)

func chromiumDeriveCBCKey(password string, iterations int) []byte {
	return pbkdf2.Key([]byte(password), []byte(chromiumKDFSalt), iterations, chromiumCBCKeyLen, sha1.New)
}

// chromiumDecryptCBC handles v10/v11 AES-128-CBC values (Linux and macOS).
// When plaintextFallback is set, values without a version prefix are
// returned as-is; macOS stores pre-encryption cookies that way.
func chromiumDecryptCBC(encrypted []byte, key []byte, metaVersion int64, plaintextFallback bool) ([]byte, error) {
	if len(encrypted) == 0 {
		return nil, errors.New("empty encrypted value")
	}
	if len(encrypted) <= 3 {
		return nil, fmt.Errorf("encrypted value too short (%d bytes)", len(encrypted))
	}

	if !hasChromiumVersionPrefix(encrypted) {
		if !plaintextFallback {
			return nil, errors.New("missing v## prefix")
		}
		return bytes.Clone(encrypted), nil
	}

	ciphertext := encrypted[3:]
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("cipher input not full blocks")
	}

	out := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(block, []byte(chromiumCBCIV))
	cbc.CryptBlocks(out, ciphertext)

	out, err = stripPKCS7Padding(out)
	if err != nil {
		return nil, err
	}
	return chromiumStripHashPrefix(out, metaVersion), nil
}

// chromiumDecryptGCM handles v10 AES-256-GCM values (Windows master-key
// scheme): 3-byte prefix, 12-byte nonce, ciphertext, 16-byte tag.
func chromiumDecryptGCM(encrypted []byte, key []byte, metaVersion int64) ([]byte, error) {
	if len(encrypted) < 3+chromiumGCMNonceLen+chromiumGCMTagLen {
		return nil, errors.New("encrypted value too short")
	}
	if !hasChromiumVersionPrefix(encrypted) {
		return nil, errors.New("missing v## prefix")
	}

	payload := encrypted[3:]
	nonce := payload[:chromiumGCMNonceLen]
	ciphertextAndTag := payload[chromiumGCMNonceLen:]

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plain, err := aesgcm.Open(nil, nonce, ciphertextAndTag, nil)
	if err != nil {
		return nil, err
	}
	return chromiumStripHashPrefix(plain, metaVersion), nil
}

// Schema version 24 prepended SHA256(host_key) to the plaintext.
func chromiumStripHashPrefix(plain []byte, metaVersion int64) []byte {
	if metaVersion >= chromiumHashPrefixSince && len(plain) >= chromiumHashPrefixLen {
		return plain[chromiumHashPrefixLen:]
	}
	return plain
}

func hasChromiumVersionPrefix(b []byte) bool {
	if len(b) < 3 {
		return false
	}
	return b[0] == 'v' && isDigit(b[1]) && isDigit(b[2])
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func stripPKCS7Padding(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return b, nil
	}
	paddingLen := int(b[len(b)-1])
	if paddingLen <= 0 || paddingLen > aes.BlockSize || paddingLen > len(b) {
		return nil, fmt.Errorf("invalid padding length: %d", paddingLen)
	}
	for _, p := range b[len(b)-paddingLen:] {
		if int(p) != paddingLen {
			return nil, errors.New("invalid padding bytes")
		}
	}
	return b[:len(b)-paddingLen], nil
}

func decodeCookieValue(b []byte) (string, bool) {
	b = stripLeadingControlBytes(b)
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

func stripLeadingControlBytes(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] < 0x20 {
		i++
	}
	return bytes.Clone(b[i:])
}
