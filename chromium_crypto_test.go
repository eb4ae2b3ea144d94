package browserjar

import (
	"bytes"
	"testing"
)

func TestChromiumDecryptCBC_RoundTrip(t *testing.T) {
	key := chromiumDeriveCBCKey("pw", chromiumKDFItersLinux)
	enc := encryptCBCForTest(t, "v10", key, []byte("abc123"))

	got, err := chromiumDecryptCBC(enc, key, 18, false)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "abc123" {
		t.Fatalf("want %q got %q", "abc123", string(got))
	}
}

func TestChromiumDecryptCBC_StripsHashPrefix(t *testing.T) {
	key := chromiumDeriveCBCKey("pw", chromiumKDFItersLinux)
	plain := append(bytes.Repeat([]byte{0xAA}, chromiumHashPrefixLen), []byte("hello")...)
	enc := encryptCBCForTest(t, "v10", key, plain)

	got, err := chromiumDecryptCBC(enc, key, 30, false)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("want %q got %q", "hello", string(got))
	}
}

func TestChromiumDecryptCBC_PlaintextFallback(t *testing.T) {
	key := chromiumDeriveCBCKey("pw", chromiumKDFItersDarwin)

	got, err := chromiumDecryptCBC([]byte("plaintext"), key, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "plaintext" {
		t.Fatalf("want %q got %q", "plaintext", string(got))
	}

	if _, err := chromiumDecryptCBC([]byte("plaintext"), key, 0, false); err == nil {
		t.Fatal("expected error without fallback")
	}
}

func TestChromiumDecryptCBC_WrongKeyFailsPadding(t *testing.T) {
	key := chromiumDeriveCBCKey("pw", chromiumKDFItersLinux)
	wrong := chromiumDeriveCBCKey("other", chromiumKDFItersLinux)
	enc := encryptCBCForTest(t, "v10", key, []byte("secret"))

	if _, err := chromiumDecryptCBC(enc, wrong, 18, false); err == nil {
		t.Fatal("expected padding failure with wrong key")
	}
}

func TestChromiumDecryptGCM_RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	nonce := bytes.Repeat([]byte{0x22}, 12)
	plain := append(bytes.Repeat([]byte{0xBB}, chromiumHashPrefixLen), []byte("hello")...)
	enc := encryptGCMForTest(t, "v10", key, nonce, plain)

	got, err := chromiumDecryptGCM(enc, key, 24)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("want %q got %q", "hello", string(got))
	}
}

func TestChromiumDecryptGCM_TamperedCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	nonce := bytes.Repeat([]byte{0x22}, 12)
	enc := encryptGCMForTest(t, "v10", key, nonce, []byte("hello"))
	enc[len(enc)-1] ^= 0xFF

	if _, err := chromiumDecryptGCM(enc, key, 0); err == nil {
		t.Fatal("expected authentication failure")
	}
}

func TestHasChromiumVersionPrefix(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"v10rest", true},
		{"v11rest", true},
		{"v20rest", true},
		{"vXXrest", false},
		{"x10rest", false},
		{"v1", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := hasChromiumVersionPrefix([]byte(tc.in)); got != tc.want {
			t.Errorf("hasChromiumVersionPrefix(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDecodeCookieValue_StripsLeadingControlBytes(t *testing.T) {
	val, ok := decodeCookieValue([]byte{0x01, 0x02, 'o', 'k'})
	if !ok {
		t.Fatal("expected ok")
	}
	if val != "ok" {
		t.Fatalf("want %q got %q", "ok", val)
	}

	if _, ok := decodeCookieValue([]byte{0xFF, 0xFE, 0xFD}); ok {
		t.Fatal("expected invalid UTF-8 to be rejected")
	}
}
