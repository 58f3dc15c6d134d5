package crypto

import (
	"testing"

	"github.com/fernet/fernet-go"
)

func newTestCipher(t *testing.T) *KeyCipher {
	t.Helper()
	var key fernet.Key
	if err := key.Generate(); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cipher, err := NewKeyCipher(key.Encode())
	if err != nil {
		t.Fatalf("NewKeyCipher: %v", err)
	}
	return cipher
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cipher := newTestCipher(t)

	token, err := cipher.Encrypt("sk-live-abcdef123456")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if token == "sk-live-abcdef123456" {
		t.Fatal("ciphertext equals plaintext")
	}
	plain, err := cipher.Decrypt(token)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plain != "sk-live-abcdef123456" {
		t.Fatalf("round trip = %q", plain)
	}
}

func TestDecryptRejectsForeignToken(t *testing.T) {
	cipher := newTestCipher(t)
	other := newTestCipher(t)

	token, err := other.Encrypt("sk-live-abcdef123456")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := cipher.Decrypt(token); err == nil {
		t.Fatal("decrypt succeeded with the wrong key")
	}
	if _, err := cipher.Decrypt("not-a-token"); err == nil {
		t.Fatal("decrypt succeeded on garbage")
	}
}

func TestFingerprintIsStableAndDistinct(t *testing.T) {
	cipher := newTestCipher(t)

	a := cipher.Fingerprint("sk-live-abcdef123456")
	b := cipher.Fingerprint("sk-live-abcdef123456")
	c := cipher.Fingerprint("sk-live-other")
	if a != b {
		t.Fatal("fingerprint not deterministic")
	}
	if a == c {
		t.Fatal("distinct keys share a fingerprint")
	}
	if len(a) != 64 {
		t.Fatalf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestNewKeyCipherRejectsBadKey(t *testing.T) {
	if _, err := NewKeyCipher("short"); err == nil {
		t.Fatal("expected error for malformed key")
	}
}

func TestZeroize(t *testing.T) {
	buf := []byte("secret")
	Zeroize(buf)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d not cleared", i)
		}
	}
}
