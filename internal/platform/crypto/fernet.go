package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fernet/fernet-go"
)

// KeyCipher encrypts provider API keys with Fernet (AES-128-CBC + HMAC-SHA-256
// under a 32-byte URL-safe key). Fingerprints are SHA-256 of the plaintext and
// serve as duplicate-detection surrogates without revealing the key.
type KeyCipher struct {
	key *fernet.Key
}

func NewKeyCipher(encodedKey string) (*KeyCipher, error) {
	k, err := fernet.DecodeKey(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials encryption key: %w", err)
	}
	return &KeyCipher{key: k}, nil
}

func (c *KeyCipher) Encrypt(rawAPIKey string) (string, error) {
	buf := []byte(rawAPIKey)
	defer Zeroize(buf)
	tok, err := fernet.EncryptAndSign(buf, c.key)
	if err != nil {
		return "", fmt.Errorf("encrypt api key: %w", err)
	}
	return string(tok), nil
}

func (c *KeyCipher) Decrypt(encryptedAPIKey string) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(encryptedAPIKey), 0, []*fernet.Key{c.key})
	if msg == nil {
		return "", fmt.Errorf("decrypt api key: invalid token")
	}
	return string(msg), nil
}

func (c *KeyCipher) Fingerprint(rawAPIKey string) string {
	sum := sha256.Sum256([]byte(rawAPIKey))
	return hex.EncodeToString(sum[:])
}

// Zeroize overwrites a secret buffer once it is no longer needed.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
