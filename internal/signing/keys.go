package signing

import (
	"encoding/hex"
	"fmt"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// KeyPair is the process-wide ECDSA-secp256k1 signing identity. It is
// an injected, immutable configuration record, read-only after
// Load/Generate returns rather than ambient global state.
type KeyPair struct {
	private *secp256k1.PrivateKey
	public  *secp256k1.PublicKey
}

// PublicKeyHex returns the compressed public key, hex-encoded, as served at
// the well-known discovery endpoint.
func (k KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(k.public.SerializeCompressed())
}

// LoadFromHex parses a 32-byte hex-encoded private key, as read from the
// SIGNING_PRIVATE_KEY_HEX environment variable. Returns a plain error on
// malformed input (not hex, or not 32 bytes).
func LoadFromHex(keyHex string) (KeyPair, error) {
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return KeyPair{}, fmt.Errorf("signing key is not valid hex: %w", err)
	}
	if len(raw) != 32 {
		return KeyPair{}, fmt.Errorf("signing key must be 32 bytes, got %d", len(raw))
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	return KeyPair{private: priv, public: priv.PubKey()}, nil
}

// Generate creates a fresh random key pair, used when no signing key is
// configured at first start.
func Generate() (KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate signing key: %w", err)
	}
	return KeyPair{private: priv, public: priv.PubKey()}, nil
}

// PrivateKeyHex exports the raw private key as hex, so a freshly generated
// key can be persisted for reuse across restarts.
func (k KeyPair) PrivateKeyHex() string {
	return hex.EncodeToString(k.private.Serialize())
}
