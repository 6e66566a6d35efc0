// Package security authenticates and optionally encrypts the sync
// protocol channel between a primary barman node and its passive
// mirrors. It has nothing to do with verifying the bytes of a backup
// itself — spec.md's Non-goals exclude that — this is channel and
// metadata security for the catalog-replication wire format in
// [[syncengine]].
package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// Signer authenticates a sync snapshot envelope.
type Signer interface {
	Sign(data []byte) (signature []byte, err error)
	Verify(data, signature []byte) error
	Algorithm() string
}

// Ed25519Signer signs snapshot envelopes so a passive node can confirm a
// snapshot actually came from the primary it's paired with, not from
// whatever happened to write to the transport directory.
type Ed25519Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// NewEd25519Signer generates a fresh key pair.
func NewEd25519Signer() (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("security: generate Ed25519 key: %w", err)
	}
	return &Ed25519Signer{privateKey: priv, publicKey: pub}, nil
}

// LoadEd25519Signer loads a PKCS8-encoded Ed25519 private key from a PEM
// file, the same format GenerateKeyPair writes.
func LoadEd25519Signer(privateKeyPath string) (*Ed25519Signer, error) {
	keyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("security: read private key: %w", err)
	}

	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("security: no PEM block found in %s", privateKeyPath)
	}
	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("security: unexpected PEM block type %q", block.Type)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("security: parse private key: %w", err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("security: %s is not an Ed25519 key", privateKeyPath)
	}

	return &Ed25519Signer{
		privateKey: priv,
		publicKey:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// NewEd25519Verifier builds a signer that can Verify but not Sign, for a
// passive node that holds only the primary's public key.
func NewEd25519Verifier(publicKey ed25519.PublicKey) *Ed25519Signer {
	return &Ed25519Signer{publicKey: publicKey}
}

func (s *Ed25519Signer) Sign(data []byte) ([]byte, error) {
	if s.privateKey == nil {
		return nil, fmt.Errorf("security: signer has no private key")
	}
	return ed25519.Sign(s.privateKey, data), nil
}

func (s *Ed25519Signer) Verify(data, signature []byte) error {
	if !ed25519.Verify(s.publicKey, data, signature) {
		return fmt.Errorf("security: signature verification failed")
	}
	return nil
}

func (s *Ed25519Signer) Algorithm() string { return "Ed25519" }

// GenerateKeyPair writes a fresh Ed25519 private and public key, PEM
// encoded, to the given paths. The primary keeps the private key; the
// public key is distributed to every passive node it syncs to.
func GenerateKeyPair(privateKeyPath, publicKeyPath string) error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("security: generate Ed25519 key: %w", err)
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("security: marshal private key: %w", err)
	}
	if err := writePEM(privateKeyPath, "PRIVATE KEY", privBytes, 0o600); err != nil {
		return err
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("security: marshal public key: %w", err)
	}
	return writePEM(publicKeyPath, "PUBLIC KEY", pubBytes, 0o644)
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("security: open %s: %w", path, err)
	}
	defer f.Close()
	return pem.Encode(f, &pem.Block{Type: blockType, Bytes: der})
}

// LoadEd25519PublicKey reads a PEM-encoded Ed25519 public key, as written
// by GenerateKeyPair, for a passive node configured with only the
// primary's public half.
func LoadEd25519PublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("security: read public key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("security: no PEM block found in %s", path)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("security: parse public key: %w", err)
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("security: %s is not an Ed25519 public key", path)
	}
	return pub, nil
}
