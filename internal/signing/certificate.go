// Package signing provides deterministic trace canonicalisation, SHA-256
// hashing, and ECDSA-secp256k1 signing/verification for execution-trace
// certificates. Stateless aside from the process-wide KeyPair.
package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const (
	CertContext = "https://garl.network/contexts/v1"
	CertType    = "CertifiedExecutionTrace"
	Alg         = "ECDSA-secp256k1"
)

// Payload is the signed subset of a trace: everything a third party needs
// to verify the certificate independent of the ledger.
type Payload struct {
	TraceID         string    `json:"trace_id"`
	AgentID         string    `json:"agent_id"`
	Status          string    `json:"status"`
	TrustScoreAfter float64   `json:"trust_score_after"`
	TraceHash       string    `json:"trace_hash"`
	Created         time.Time `json:"created"`
}

// Proof is the signature envelope.
type Proof struct {
	Type      string    `json:"type"`
	Created   time.Time `json:"created"`
	PublicKey string    `json:"publicKey"`
	Signature string    `json:"signature"` // DER hex
	Alg       string    `json:"alg"`
}

// Certificate is the full wire-level output of a trace submission.
type Certificate struct {
	Context string  `json:"@context"`
	Type    string  `json:"@type"`
	Payload Payload `json:"payload"`
	Proof   Proof   `json:"proof"`
}

// Hash computes the SHA-256 hash (hex) of the canonical JSON serialisation
// of v. Used both for trace_hash and as the input to Sign.
func Hash(v interface{}) (string, error) {
	canon, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Sign produces a Certificate for the given payload fields, signing the
// SHA-256 hash of the canonicalised payload with the process key pair.
func Sign(keys KeyPair, payload Payload) (Certificate, error) {
	payloadHash, err := Hash(payload)
	if err != nil {
		return Certificate{}, fmt.Errorf("hash payload: %w", err)
	}
	digest, err := hex.DecodeString(payloadHash)
	if err != nil {
		return Certificate{}, fmt.Errorf("decode payload hash: %w", err)
	}

	sig := ecdsa.Sign(keys.private, digest)

	return Certificate{
		Context: CertContext,
		Type:    CertType,
		Payload: payload,
		Proof: Proof{
			Type:      "EcdsaSecp256k1Signature",
			Created:   time.Now().UTC(),
			PublicKey: keys.PublicKeyHex(),
			Signature: hex.EncodeToString(sig.Serialize()),
			Alg:       Alg,
		},
	}, nil
}

// Verify checks that cert.Proof.Signature is a valid ECDSA-secp256k1
// signature, by the key embedded in the certificate, over the SHA-256 hash
// of the canonicalised payload. This is what a third party runs using only
// the certificate and the public key served at discovery -- it never
// contacts the ledger.
func Verify(cert Certificate) (bool, error) {
	payloadHash, err := Hash(cert.Payload)
	if err != nil {
		return false, fmt.Errorf("hash payload: %w", err)
	}
	digest, err := hex.DecodeString(payloadHash)
	if err != nil {
		return false, fmt.Errorf("decode payload hash: %w", err)
	}

	pubKeyBytes, err := hex.DecodeString(cert.Proof.PublicKey)
	if err != nil {
		return false, fmt.Errorf("decode public key: %w", err)
	}
	pubKey, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false, fmt.Errorf("parse public key: %w", err)
	}

	sigBytes, err := hex.DecodeString(cert.Proof.Signature)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false, fmt.Errorf("parse signature: %w", err)
	}

	return sig.Verify(digest, pubKey), nil
}
