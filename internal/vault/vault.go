// Package vault encrypts integration credentials at rest.
//
// Ciphertexts are stored as "hex(nonce):hex(ciphertext)". The AES-256 key is
// derived from a configured secret with scrypt, so rotating the secret makes
// previously stored blobs unreadable rather than wrong.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/go-faster/errors"
	"golang.org/x/crypto/scrypt"
)

// salt is static: the key must be reproducible from the secret alone.
var salt = []byte("commerce-engine/vault/v1")

const (
	scryptN = 1 << 14
	scryptR = 8
	scryptP = 1
	keyLen  = 32
)

// ErrEmptySecret is returned by New when no secret is configured.
var ErrEmptySecret = errors.New("vault secret is empty")

// Vault is a symmetric cipher for short secrets.
type Vault struct {
	aead cipher.AEAD
}

// New derives the encryption key from secret.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key, err := scrypt.Key([]byte(secret), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, errors.Wrap(err, "derive key")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "create cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "create gcm")
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "read nonce")
	}
	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Malformed blobs, blobs sealed
// under another key, and tampered ciphertexts all yield "".
func (v *Vault) Decrypt(blob string) string {
	ivHex, ctHex, ok := strings.Cut(blob, ":")
	if !ok {
		return ""
	}
	nonce, err := hex.DecodeString(ivHex)
	if err != nil || len(nonce) != v.aead.NonceSize() {
		return ""
	}
	sealed, err := hex.DecodeString(ctHex)
	if err != nil {
		return ""
	}
	plain, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return ""
	}
	return string(plain)
}
