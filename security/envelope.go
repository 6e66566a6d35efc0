package security

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Envelope wraps one sync snapshot payload with a signature over the
// (possibly encrypted) body, so a passive node can authenticate the
// primary before handing the payload to [[syncengine]].
type Envelope struct {
	Payload   []byte `json:"payload"`
	Encrypted bool   `json:"encrypted"`
	Signature string `json:"signature"` // base64
	Algorithm string `json:"algorithm"`
}

// Seal signs plaintext and, if enc is non-nil, encrypts it first.
func Seal(signer Signer, enc Encryptor, plaintext []byte) (*Envelope, error) {
	payload := plaintext
	encrypted := false
	if enc != nil {
		ciphertext, err := enc.Encrypt(plaintext)
		if err != nil {
			return nil, fmt.Errorf("security: encrypt envelope: %w", err)
		}
		payload = ciphertext
		encrypted = true
	}

	sig, err := signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("security: sign envelope: %w", err)
	}

	return &Envelope{
		Payload:   payload,
		Encrypted: encrypted,
		Signature: base64.StdEncoding.EncodeToString(sig),
		Algorithm: signer.Algorithm(),
	}, nil
}

// Open verifies env's signature and, if the payload was encrypted,
// decrypts it, returning the original plaintext.
func Open(signer Signer, enc Encryptor, env *Envelope) ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return nil, fmt.Errorf("security: decode signature: %w", err)
	}
	if err := signer.Verify(env.Payload, sig); err != nil {
		return nil, fmt.Errorf("security: envelope signature invalid: %w", err)
	}

	if !env.Encrypted {
		return env.Payload, nil
	}
	if enc == nil {
		return nil, fmt.Errorf("security: envelope is encrypted but no decryptor was configured")
	}
	return enc.Decrypt(env.Payload)
}

// SealJSON is a convenience wrapper around Seal for a value that should
// be JSON-marshaled before sealing, the shape [[syncengine]]'s Snapshot
// payload needs.
func SealJSON(signer Signer, enc Encryptor, v interface{}) (*Envelope, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("security: marshal payload: %w", err)
	}
	return Seal(signer, enc, plaintext)
}

// OpenJSON opens env and unmarshals the resulting plaintext into v.
func OpenJSON(signer Signer, enc Encryptor, env *Envelope, v interface{}) error {
	plaintext, err := Open(signer, enc, env)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}
