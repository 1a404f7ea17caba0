package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const gcmNonceSize = 12

// EncryptWithPublicKey encrypts data to a PEM-encoded P-256 public key.
func EncryptWithPublicKey(publicKeyPEM []byte, data []byte) ([]byte, error) {
	publicKey, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return nil, err
	}
	return EncryptToKey(publicKey, data)
}

// DecryptWithPrivateKey decrypts data produced by EncryptWithPublicKey.
func DecryptWithPrivateKey(privateKeyPEM []byte, encryptedData []byte) ([]byte, error) {
	privateKey, err := ParsePrivateKeyPEM(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	return DecryptWithKey(privateKey, encryptedData)
}

// EncryptToKey seals data with a fresh ephemeral key, ECDH and AES-GCM.
//
// Format: [ephemeral key length (2 bytes)][ephemeral key][iv][ciphertext]
func EncryptToKey(publicKey *ecdsa.PublicKey, data []byte) ([]byte, error) {
	if publicKey == nil || publicKey.Curve == nil {
		return nil, errors.New("missing public key")
	}

	ephemeralKey, err := ecdsa.GenerateKey(publicKey.Curve, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	x, _ := publicKey.Curve.ScalarMult(publicKey.X, publicKey.Y, ephemeralKey.D.Bytes())
	aesGCM, err := newGCM(x.Bytes())
	if err != nil {
		return nil, err
	}

	iv := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	ciphertext := aesGCM.Seal(nil, iv, data, nil)
	ephemeralPub := elliptic.Marshal(ephemeralKey.Curve, ephemeralKey.X, ephemeralKey.Y)

	result := make([]byte, 0, 2+len(ephemeralPub)+len(iv)+len(ciphertext))
	result = binary.BigEndian.AppendUint16(result, uint16(len(ephemeralPub)))
	result = append(result, ephemeralPub...)
	result = append(result, iv...)
	result = append(result, ciphertext...)
	return result, nil
}

// DecryptWithKey opens data sealed by EncryptToKey.
func DecryptWithKey(privateKey *ecdsa.PrivateKey, encryptedData []byte) ([]byte, error) {
	if privateKey == nil {
		return nil, errors.New("missing private key")
	}

	if len(encryptedData) < 2 {
		return nil, errors.New("encrypted data too short")
	}

	ephemeralKeyLen := int(binary.BigEndian.Uint16(encryptedData[0:2]))
	if len(encryptedData) < 2+ephemeralKeyLen+gcmNonceSize {
		return nil, errors.New("encrypted data has invalid format")
	}

	ephemeralKeyBytes := encryptedData[2 : 2+ephemeralKeyLen]
	x, y := elliptic.Unmarshal(privateKey.Curve, ephemeralKeyBytes)
	if x == nil {
		return nil, errors.New("failed to unmarshal ephemeral public key")
	}

	xShared, _ := privateKey.Curve.ScalarMult(x, y, privateKey.D.Bytes())
	aesGCM, err := newGCM(xShared.Bytes())
	if err != nil {
		return nil, err
	}

	ivStart := 2 + ephemeralKeyLen
	iv := encryptedData[ivStart : ivStart+gcmNonceSize]
	ciphertext := encryptedData[ivStart+gcmNonceSize:]

	plaintext, err := aesGCM.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(sharedX []byte) (cipher.AEAD, error) {
	sharedSecret := sha256.Sum256(sharedX)

	aesBlock, err := aes.NewCipher(sharedSecret[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
