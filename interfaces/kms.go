package interfaces

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
)

// KMS derives the coprocessor's key material.
type KMS interface {
	// NetworkKey returns the P-256 key ciphertexts for a contract are sealed to.
	NetworkKey(contract common.Address) (*ecdsa.PrivateKey, error)

	// SignerKey returns the secp256k1 key that signs input proofs.
	SignerKey() (*ecdsa.PrivateKey, error)
}
