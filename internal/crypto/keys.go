// Package crypto provides escrow key management for the custody workflows:
// ed25519 keypair loading from JSON secret arrays, base58 secrets, or
// password-encrypted key files, and transfer-intent signing.
package crypto

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

// Keypair is an ed25519 custodial keypair. The base58-encoded public key is
// the owner address on the ledger.
type Keypair struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// Address returns the base58 owner address.
func (k *Keypair) Address() string {
	return base58.Encode(k.pub)
}

// Sign signs a canonical transfer-intent payload.
func (k *Keypair) Sign(payload []byte) []byte {
	return ed25519.Sign(k.priv, payload)
}

// FromSecretBytes builds a Keypair from a 64-byte expanded secret (seed ||
// public key) or a 32-byte seed.
func FromSecretBytes(secret []byte) (*Keypair, error) {
	switch len(secret) {
	case ed25519.PrivateKeySize:
		priv := ed25519.PrivateKey(secret)
		return &Keypair{pub: priv.Public().(ed25519.PublicKey), priv: priv}, nil
	case ed25519.SeedSize:
		priv := ed25519.NewKeyFromSeed(secret)
		return &Keypair{pub: priv.Public().(ed25519.PublicKey), priv: priv}, nil
	default:
		return nil, fmt.Errorf("crypto: expected %d or %d byte secret, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(secret))
	}
}

// KeySource carries the possible sources for one keypair. Resolution order:
// SecretJSON, SecretB58, EncryptedKeyPath.
type KeySource struct {
	// SecretJSON is a JSON array of byte values, the common wallet export
	// format.
	SecretJSON string
	// SecretB58 is the base58-encoded secret key.
	SecretB58 string
	// EncryptedKeyPath points at a file produced by EncryptKeyFile.
	EncryptedKeyPath string
	// KeyPassword decrypts EncryptedKeyPath.
	KeyPassword string
}

// LoadKeypair resolves a Keypair from the first populated source in src.
func LoadKeypair(src KeySource) (*Keypair, error) {
	if s := strings.TrimSpace(src.SecretJSON); s != "" {
		var arr []byte
		if err := json.Unmarshal([]byte(s), &arr); err != nil {
			return nil, fmt.Errorf("crypto: parsing JSON secret array: %w", err)
		}
		return FromSecretBytes(arr)
	}

	if s := strings.TrimSpace(src.SecretB58); s != "" {
		raw := base58.Decode(s)
		if len(raw) == 0 {
			return nil, errors.New("crypto: invalid base58 secret")
		}
		return FromSecretBytes(raw)
	}

	if src.EncryptedKeyPath != "" {
		data, err := os.ReadFile(src.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading encrypted key file: %w", err)
		}
		secret, err := DecryptKeyFile(data, src.KeyPassword)
		if err != nil {
			return nil, err
		}
		return FromSecretBytes(secret)
	}

	return nil, errors.New("crypto: no key source configured")
}
