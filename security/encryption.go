package security

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// Encryptor encrypts a snapshot payload at rest on the passive side.
// Encryption is optional: a deployment that trusts its transport
// directory's filesystem permissions can run sync-channel auth without it.
type Encryptor interface {
	Encrypt(plaintext []byte) (ciphertext []byte, err error)
	Decrypt(ciphertext []byte) (plaintext []byte, err error)
	Algorithm() string
}

// ChaCha20Poly1305Encryptor is the sync channel's encryption-at-rest
// option, picked over AES-GCM because it needs no AES-NI to run at
// speed on the kind of modest hardware a passive barman node is often
// deployed on.
type ChaCha20Poly1305Encryptor struct {
	cipher cipher.AEAD
}

// NewChaCha20Poly1305Encryptor builds an encryptor from a 32-byte key.
func NewChaCha20Poly1305Encryptor(key []byte) (*ChaCha20Poly1305Encryptor, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("security: ChaCha20-Poly1305 requires a %d-byte key, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("security: create ChaCha20-Poly1305 cipher: %w", err)
	}
	return &ChaCha20Poly1305Encryptor{cipher: aead}, nil
}

func (e *ChaCha20Poly1305Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.cipher.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: generate nonce: %w", err)
	}
	return e.cipher.Seal(nonce, nonce, plaintext, nil), nil
}

func (e *ChaCha20Poly1305Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	n := e.cipher.NonceSize()
	if len(ciphertext) < n {
		return nil, fmt.Errorf("security: ciphertext shorter than nonce")
	}
	nonce, body := ciphertext[:n], ciphertext[n:]
	plaintext, err := e.cipher.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (e *ChaCha20Poly1305Encryptor) Algorithm() string { return "ChaCha20-Poly1305" }

// DeriveKey turns an operator-supplied passphrase into a key of keyLen
// bytes, for deployments that configure the sync channel with a
// passphrase instead of generating and distributing a raw key file.
func DeriveKey(passphrase, salt []byte, keyLen int) ([]byte, error) {
	if len(salt) < 16 {
		return nil, fmt.Errorf("security: salt must be at least 16 bytes")
	}
	key, err := scrypt.Key(passphrase, salt, 32768, 8, 1, keyLen)
	if err != nil {
		return nil, fmt.Errorf("security: derive key: %w", err)
	}
	return key, nil
}

// GenerateSalt returns a fresh random salt for DeriveKey.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("security: generate salt: %w", err)
	}
	return salt, nil
}
