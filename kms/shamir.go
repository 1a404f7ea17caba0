package kms

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/vault/shamir"
	"github.com/ruteri/obscura-mint/cryptoutils"
)

// SplitSeed splits a master seed into shares, any threshold of which
// reconstruct it with CombineSeed.
func SplitSeed(seed []byte, shares, threshold int) ([][]byte, error) {
	if len(seed) < 32 {
		return nil, errors.New("master key must be at least 32 bytes")
	}

	if threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}

	if shares < threshold {
		return nil, errors.New("total shares must be at least equal to threshold")
	}

	parts, err := shamir.Split(seed, shares, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split master key: %w", err)
	}
	return parts, nil
}

// CombineSeed reconstructs the master seed. Combining fewer shares than the
// threshold does not fail but yields a different seed, which shows up as a
// different signer address.
func CombineSeed(shares [][]byte) ([]byte, error) {
	if len(shares) < 2 {
		return nil, errors.New("at least 2 shares are required")
	}

	seed, err := shamir.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("failed to combine shares: %w", err)
	}
	if len(seed) < 32 {
		return nil, errors.New("reconstructed master key is shorter than 32 bytes")
	}
	return seed, nil
}

// NewSimpleKMSFromShares reconstructs the seed and wipes it after use.
func NewSimpleKMSFromShares(shares [][]byte) (*SimpleKMS, error) {
	seed, err := CombineSeed(shares)
	if err != nil {
		return nil, err
	}
	defer wipeBytes(seed)

	return NewSimpleKMS(seed)
}

// SealShare encrypts a share for the admin holding the matching private key.
func SealShare(adminPubKeyPEM []byte, share []byte) ([]byte, error) {
	return cryptoutils.EncryptWithPublicKey(adminPubKeyPEM, share)
}

// OpenShare decrypts a share sealed with SealShare.
func OpenShare(adminPrivKeyPEM []byte, sealed []byte) ([]byte, error) {
	return cryptoutils.DecryptWithPrivateKey(adminPrivKeyPEM, sealed)
}

// EncodeShare renders a share as hex for share files.
func EncodeShare(share []byte) string {
	return hex.EncodeToString(share)
}

// DecodeShare parses a share file's contents.
func DecodeShare(data string) ([]byte, error) {
	share, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(data), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid share encoding: %w", err)
	}
	return share, nil
}

// wipeBytes overwrites sensitive data in memory.
func wipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
