package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// PubkeyPEM is a PEM-encoded P-256 public key, used for re-encryption targets.
type PubkeyPEM []byte

// Validate checks that the PEM holds a P-256 public key.
func (pub PubkeyPEM) Validate() error {
	_, err := ParsePublicKeyPEM(pub)
	return err
}

// PrivkeyPEM is a PEM-encoded P-256 private key.
type PrivkeyPEM []byte

// Validate checks that the PEM holds a P-256 private key.
func (priv PrivkeyPEM) Validate() error {
	_, err := ParsePrivateKeyPEM(priv)
	return err
}

// PublicKey returns the PEM encoding of the matching public key.
func (priv PrivkeyPEM) PublicKey() (PubkeyPEM, error) {
	key, err := ParsePrivateKeyPEM(priv)
	if err != nil {
		return nil, err
	}
	return MarshalPublicKeyPEM(&key.PublicKey)
}

// RandomP256Keypair generates a fresh P-256 key pair in PEM form.
func RandomP256Keypair() (PubkeyPEM, PrivkeyPEM, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}

	privPEM, err := MarshalPrivateKeyPEM(privateKey)
	if err != nil {
		return nil, nil, err
	}

	pubPEM, err := MarshalPublicKeyPEM(&privateKey.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	return pubPEM, privPEM, nil
}

// MarshalPublicKeyPEM encodes a public key as a PKIX "PUBLIC KEY" block.
func MarshalPublicKeyPEM(publicKey *ecdsa.PublicKey) (PubkeyPEM, error) {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// MarshalPrivateKeyPEM encodes a private key as a SEC1 "EC PRIVATE KEY" block.
func MarshalPrivateKeyPEM(privateKey *ecdsa.PrivateKey) (PrivkeyPEM, error) {
	der, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// ParsePublicKeyPEM decodes a PKIX P-256 public key.
func ParsePublicKeyPEM(data []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode public key PEM")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	publicKey, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("not an ECDSA public key")
	}
	if publicKey.Curve != elliptic.P256() {
		return nil, errors.New("public key is not on P-256")
	}
	return publicKey, nil
}

// ParsePrivateKeyPEM decodes a SEC1 or PKCS#8 P-256 private key.
func ParsePrivateKeyPEM(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode private key PEM")
	}

	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("not an ECDSA private key")
	}
	return key, nil
}

// ParsePrivateKeyHex parses a hex secp256k1 key, with or without 0x prefix.
func ParsePrivateKeyHex(s string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}
