package oracle

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Signer holds the process-wide ledger credential. It is read-only after
// construction and safe for concurrent use.
type Signer struct {
	priv    ed25519.PrivateKey
	address string
}

// NewSigner derives a Signer from a hex-encoded ed25519 seed.
func NewSigner(privateKeyHex string) (*Signer, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	// Address is the keccak of the public key, truncated to 20 bytes.
	digest := Keccak256(pub)
	address := "0x" + hex.EncodeToString(digest[12:])

	return &Signer{priv: priv, address: address}, nil
}

// Address returns the ledger account address derived from the credential.
func (s *Signer) Address() string {
	return s.address
}

// Sign returns the hex-encoded signature over payload.
func (s *Signer) Sign(payload []byte) string {
	return "0x" + hex.EncodeToString(ed25519.Sign(s.priv, payload))
}

// Verify checks a hex-encoded signature produced by Sign.
func (s *Signer) Verify(payload []byte, sigHex string) bool {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return false
	}
	return ed25519.Verify(s.priv.Public().(ed25519.PublicKey), payload, sig)
}

// Keccak256 returns the legacy Keccak-256 digest used for on-chain hashes.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}
