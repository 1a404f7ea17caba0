package kms

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"
)

const (
	networkKeyInfo = "obscura-mint/network-key/v1/"
	signerKeyInfo  = "obscura-mint/input-signer/v1"
)

// SimpleKMS derives all coprocessor keys deterministically from a master seed,
// so a node restarted with the same seed can decrypt everything it sealed before.
type SimpleKMS struct {
	masterKey []byte
}

// NewSimpleKMS creates a new instance with the provided master key.
// The master key must be at least 32 bytes long.
func NewSimpleKMS(masterKey []byte) (*SimpleKMS, error) {
	if len(masterKey) < 32 {
		return nil, errors.New("master key must be at least 32 bytes")
	}

	k := &SimpleKMS{masterKey: make([]byte, len(masterKey))}
	copy(k.masterKey, masterKey)
	return k, nil
}

// WithSeed creates a new SimpleKMS with the provided seed.
func (k *SimpleKMS) WithSeed(seed []byte) (*SimpleKMS, error) {
	return NewSimpleKMS(seed)
}

// NetworkKey returns the P-256 key that ciphertexts bound to contract are sealed to.
func (k *SimpleKMS) NetworkKey(contract common.Address) (*ecdsa.PrivateKey, error) {
	r := hkdf.New(sha256.New, k.masterKey, nil, append([]byte(networkKeyInfo), contract.Bytes()...))
	return deriveP256(r)
}

// SignerKey returns the secp256k1 key that signs input proofs.
func (k *SimpleKMS) SignerKey() (*ecdsa.PrivateKey, error) {
	r := hkdf.New(sha256.New, k.masterKey, nil, []byte(signerKeyInfo))

	buf := make([]byte, 32)
	for i := 0; i < 16; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("failed to read key material: %w", err)
		}
		key, err := crypto.ToECDSA(buf)
		if err == nil {
			return key, nil
		}
	}
	return nil, errors.New("could not derive a valid signer key")
}

// SignerAddress is the address input proofs recover to.
func (k *SimpleKMS) SignerAddress() (common.Address, error) {
	key, err := k.SignerKey()
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// deriveP256 reads candidate scalars until one lies in [1, N-1].
func deriveP256(r io.Reader) (*ecdsa.PrivateKey, error) {
	curve := elliptic.P256()
	n := curve.Params().N
	buf := make([]byte, 32)

	for i := 0; i < 16; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("failed to read key material: %w", err)
		}

		d := new(big.Int).SetBytes(buf)
		if d.Sign() == 0 || d.Cmp(n) >= 0 {
			continue
		}

		key := &ecdsa.PrivateKey{
			PublicKey: ecdsa.PublicKey{Curve: curve},
			D:         d,
		}
		key.PublicKey.X, key.PublicKey.Y = curve.ScalarBaseMult(buf)
		return key, nil
	}

	return nil, errors.New("could not derive a valid P-256 key")
}
