package signing

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	SignerEd25519    = "ed25519"
	SignerHMACSHA256 = "hmac-sha256"
)

// Signer signs ledger digests and verifies signatures it produced. Signatures are hex encoded.
type Signer interface {
	KeyID() string
	Algorithm() string
	Sign(digest []byte) (string, error)
	Verify(digest []byte, signature string) bool
}

// Ed25519Signer signs with a deterministic key derived from a seed.
type Ed25519Signer struct {
	keyID string
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
}

// NewEd25519Signer derives the key pair from seed. A 64 char hex seed is used verbatim,
// any other value is stretched with sha256.
func NewEd25519Signer(keyID, seed string) (*Ed25519Signer, error) {
	if seed == "" {
		return nil, fmt.Errorf("signing seed missing")
	}
	raw, err := hex.DecodeString(seed)
	if err != nil || len(raw) != ed25519.SeedSize {
		sum := sha256.Sum256([]byte(seed))
		raw = sum[:]
	}
	priv := ed25519.NewKeyFromSeed(raw)
	return &Ed25519Signer{
		keyID: keyID,
		priv:  priv,
		pub:   priv.Public().(ed25519.PublicKey),
	}, nil
}

func (s *Ed25519Signer) KeyID() string     { return s.keyID }
func (s *Ed25519Signer) Algorithm() string { return SignerEd25519 }

// PublicKey exposes the verification key for external auditors.
func (s *Ed25519Signer) PublicKey() ed25519.PublicKey { return s.pub }

func (s *Ed25519Signer) Sign(digest []byte) (string, error) {
	if len(digest) == 0 {
		return "", fmt.Errorf("digest required")
	}
	return hex.EncodeToString(ed25519.Sign(s.priv, digest)), nil
}

func (s *Ed25519Signer) Verify(digest []byte, signature string) bool {
	sig, err := hex.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(s.pub, digest, sig)
}

// HMACSigner signs with a shared system secret.
type HMACSigner struct {
	keyID  string
	secret []byte
}

// NewHMACSigner constructs an HMAC-SHA256 signer.
func NewHMACSigner(keyID, secret string) (*HMACSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret missing")
	}
	return &HMACSigner{keyID: keyID, secret: []byte(secret)}, nil
}

func (s *HMACSigner) KeyID() string     { return s.keyID }
func (s *HMACSigner) Algorithm() string { return SignerHMACSHA256 }

func (s *HMACSigner) Sign(digest []byte) (string, error) {
	if len(digest) == 0 {
		return "", fmt.Errorf("digest required")
	}
	return hex.EncodeToString(s.mac(digest)), nil
}

func (s *HMACSigner) Verify(digest []byte, signature string) bool {
	expected := hex.EncodeToString(s.mac(digest))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *HMACSigner) mac(digest []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write(digest)
	return mac.Sum(nil)
}

// NewSigner builds the signer named by algorithm.
func NewSigner(algorithm, keyID, seed, hmacSecret string) (Signer, error) {
	switch algorithm {
	case "", SignerEd25519:
		return NewEd25519Signer(keyID, seed)
	case SignerHMACSHA256:
		return NewHMACSigner(keyID, hmacSecret)
	default:
		return nil, fmt.Errorf("unsupported signer %q", algorithm)
	}
}
