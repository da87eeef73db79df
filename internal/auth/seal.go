package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

// Keys are the two independent keys derived from SESSION_SECRET.
//
// HKDF gives each purpose its own key, so the cookie signing key and the
// token sealing key never coincide even though operators set one secret.
type Keys struct {
	Cookie string   // HMAC secret for client cookies (hex)
	Seal   [32]byte // secretbox key for stored bearer tokens
}

// DeriveKeys expands secret into Keys with HKDF-SHA256.
func DeriveKeys(secret string) (Keys, error) {
	if len(secret) < 16 {
		return Keys{}, errors.New("auth: session secret must be at least 16 characters")
	}

	var keys Keys
	cookie := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte("devfolio client cookie")), cookie); err != nil {
		return Keys{}, fmt.Errorf("auth: deriving cookie key: %w", err)
	}
	keys.Cookie = hex.EncodeToString(cookie)

	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte("devfolio token seal")), keys.Seal[:]); err != nil {
		return Keys{}, fmt.Errorf("auth: deriving seal key: %w", err)
	}
	return keys, nil
}

// RandomSecret returns a fresh 32-byte hex secret. main uses it when
// SESSION_SECRET is not set.
func RandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generating secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Sealer encrypts bearer tokens before they are written to the token store.
//
// NaCl secretbox (XSalsa20-Poly1305) both encrypts and authenticates, so a
// row edited in the database fails to open instead of yielding a different
// token. Each seal uses a fresh random 24-byte nonce stored in front of the
// ciphertext.
type Sealer struct {
	key [32]byte
}

func NewSealer(key [32]byte) *Sealer {
	return &Sealer{key: key}
}

const nonceSize = 24

// Seal encrypts plaintext and returns URL-safe base64.
func (s *Sealer) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("auth: generating nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(box), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	box, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("auth: decoding sealed token: %w", err)
	}
	if len(box) < nonceSize+secretbox.Overhead {
		return "", errors.New("auth: sealed token too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", errors.New("auth: sealed token failed authentication")
	}
	return string(plain), nil
}

// Fingerprint returns a short, non-reversible label for a bearer token, safe
// to put in logs.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:4])
}
