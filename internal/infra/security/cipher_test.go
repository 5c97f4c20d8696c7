package security

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func newTestCipher(t *testing.T, mode CipherMode) *Cipher {
	t.Helper()
	km := NewKeyMaterial()
	key, err := km.Key()
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	c := NewCipher(mode, km)
	if err := c.SetDefaultKey(key); err != nil {
		t.Fatalf("SetDefaultKey: %v", err)
	}
	return c
}

func TestCipherRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("hello world"),
		bytes.Repeat([]byte{0x00, 0xff}, 64),
		[]byte("exactly sixteen!"),
	}

	for _, mode := range []CipherMode{CipherModeGCM, CipherModeCBC} {
		c := newTestCipher(t, mode)
		for _, pt := range payloads {
			blob, err := c.Encrypt(pt, nil)
			if err != nil {
				t.Fatalf("%s: Encrypt: %v", mode, err)
			}
			if len(blob) < IVSize+len(pt) {
				t.Fatalf("%s: blob of %d bytes cannot hold IV and %d plaintext bytes", mode, len(blob), len(pt))
			}

			got, err := c.Decrypt(blob, nil)
			if err != nil {
				t.Fatalf("%s: Decrypt: %v", mode, err)
			}
			if !bytes.Equal(pt, got) {
				t.Fatalf("%s: round trip mismatch: %x != %x", mode, got, pt)
			}
		}
	}
}

func TestCipherHelloWorldBlobLayout(t *testing.T) {
	c := newTestCipher(t, CipherModeGCM)

	encoded, err := c.EncryptString("hello world", nil)
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("stored blob is not base64: %v", err)
	}
	if len(blob) < 11+IVSize {
		t.Fatalf("blob too short for IV prefix: %d bytes", len(blob))
	}

	got, err := c.DecryptString(encoded, nil)
	if err != nil || got != "hello world" {
		t.Fatalf("DecryptString = %q, %v", got, err)
	}
}

func TestCipherFreshIVPerCall(t *testing.T) {
	c := newTestCipher(t, CipherModeGCM)

	a, err := c.Encrypt([]byte("same"), nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := c.Encrypt([]byte("same"), nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if bytes.Equal(a[:IVSize], b[:IVSize]) {
		t.Fatal("IV reused across calls")
	}
	if bytes.Equal(a, b) {
		t.Fatal("identical plaintexts produced identical blobs")
	}
}

func TestCipherShortBlobIsMalformed(t *testing.T) {
	for _, mode := range []CipherMode{CipherModeGCM, CipherModeCBC} {
		c := newTestCipher(t, mode)
		for n := 0; n < IVSize; n++ {
			_, err := c.Decrypt(make([]byte, n), nil)
			if !errors.Is(err, ErrMalformedCiphertext) || !errors.Is(err, ErrDecryption) {
				t.Fatalf("%s: %d-byte blob: expected ErrMalformedCiphertext, got %v", mode, n, err)
			}
		}
	}

	c := newTestCipher(t, CipherModeGCM)
	if _, err := c.DecryptString("%%%not-base64", nil); !errors.Is(err, ErrMalformedCiphertext) {
		t.Fatalf("expected ErrMalformedCiphertext for bad base64, got %v", err)
	}
}

func TestCipherTamperedBlobFailsAuthentication(t *testing.T) {
	c := newTestCipher(t, CipherModeGCM)

	blob, err := c.Encrypt([]byte("visitor passport number"), nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	blob[len(blob)-1] ^= 0x01

	_, err = c.Decrypt(blob, nil)
	if !errors.Is(err, ErrAuthenticationFailed) || errors.Is(err, ErrMalformedCiphertext) {
		t.Fatalf("expected ErrAuthenticationFailed only, got %v", err)
	}
}

func TestCipherWrongKeyFails(t *testing.T) {
	c := newTestCipher(t, CipherModeGCM)
	other, err := NewKeyMaterial().Key()
	if err != nil {
		t.Fatalf("Key: %v", err)
	}

	blob, err := c.Encrypt([]byte("secret"), nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := c.Decrypt(blob, other); !errors.Is(err, ErrDecryption) {
		t.Fatalf("expected ErrDecryption with the wrong key, got %v", err)
	}
}

func TestCipherExplicitKeyOverridesDefault(t *testing.T) {
	c := newTestCipher(t, CipherModeGCM)
	override, err := NewKeyMaterial().Key()
	if err != nil {
		t.Fatalf("Key: %v", err)
	}

	blob, err := c.Encrypt([]byte("override"), override)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := c.Decrypt(blob, override)
	if err != nil || string(got) != "override" {
		t.Fatalf("Decrypt = %q, %v", got, err)
	}
	if _, err := c.Decrypt(blob, nil); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("default key opened a blob sealed with another key: %v", err)
	}
}

func TestCipherKeyValidation(t *testing.T) {
	c := NewCipher(CipherModeGCM, nil)

	if _, err := c.Encrypt([]byte("x"), nil); !errors.Is(err, ErrNoDefaultKey) {
		t.Fatalf("expected ErrNoDefaultKey, got %v", err)
	}
	if _, err := c.Encrypt([]byte("x"), []byte("short")); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if err := c.SetDefaultKey(make([]byte, 16)); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for a 16-byte default, got %v", err)
	}

	// Key problems are reported as such, not as a rejected blob.
	_, err := c.Decrypt(make([]byte, IVSize+16), nil)
	if !errors.Is(err, ErrNoDefaultKey) || errors.Is(err, ErrDecryption) {
		t.Fatalf("expected ErrNoDefaultKey outside ErrDecryption, got %v", err)
	}
}

func TestPKCS7UnpadRejectsBadPadding(t *testing.T) {
	block := bytes.Repeat([]byte{'a'}, 16)
	block[15] = 0x03
	block[14] = 0x03
	block[13] = 0x02
	if _, ok := pkcs7Unpad(block, 16); ok {
		t.Fatal("inconsistent padding accepted")
	}

	block[13] = 0x03
	out, ok := pkcs7Unpad(block, 16)
	if !ok || len(out) != 13 {
		t.Fatalf("valid padding rejected: ok=%v len=%d", ok, len(out))
	}
}

func TestParseCipherMode(t *testing.T) {
	if got := ParseCipherMode(" CBC "); got != CipherModeCBC {
		t.Fatalf("ParseCipherMode(\" CBC \") = %q", got)
	}
	if got := ParseCipherMode("anything"); got != CipherModeGCM {
		t.Fatalf("ParseCipherMode(\"anything\") = %q", got)
	}
}
