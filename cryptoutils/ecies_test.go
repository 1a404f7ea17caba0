package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptionDecryption(t *testing.T) {
	pubPEM, privPEM, err := RandomP256Keypair()
	require.NoError(t, err)

	testCases := []struct {
		name string
		data []byte
	}{
		{"Empty data", []byte{}},
		{"Short text", []byte("hello")},
		{"Uint32 value", []byte{0, 0, 0, 42}},
		{"Binary data", []byte{0x00, 0x01, 0xff, 0xfe}},
		{"Longer text", make([]byte, 4096)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encrypted, err := EncryptWithPublicKey(pubPEM, tc.data)
			require.NoError(t, err)
			assert.NotEqual(t, tc.data, encrypted)

			decrypted, err := DecryptWithPrivateKey(privPEM, encrypted)
			require.NoError(t, err)
			assert.Equal(t, len(tc.data), len(decrypted))
			assert.Equal(t, string(tc.data), string(decrypted))
		})
	}
}

func TestEncryptionIsRandomized(t *testing.T) {
	pubPEM, _, err := RandomP256Keypair()
	require.NoError(t, err)

	a, err := EncryptWithPublicKey(pubPEM, []byte("same"))
	require.NoError(t, err)
	b, err := EncryptWithPublicKey(pubPEM, []byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptWithWrongKey(t *testing.T) {
	pubPEM, _, err := RandomP256Keypair()
	require.NoError(t, err)
	_, otherPriv, err := RandomP256Keypair()
	require.NoError(t, err)

	encrypted, err := EncryptWithPublicKey(pubPEM, []byte("secret"))
	require.NoError(t, err)

	_, err = DecryptWithPrivateKey(otherPriv, encrypted)
	assert.Error(t, err)
}

func TestDecryptMalformed(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	_, err = DecryptWithKey(key, nil)
	assert.Error(t, err)

	_, err = DecryptWithKey(key, []byte{0x00, 0x41, 0x04})
	assert.Error(t, err)

	encrypted, err := EncryptToKey(&key.PublicKey, []byte("payload"))
	require.NoError(t, err)
	encrypted[len(encrypted)-1] ^= 0xff
	_, err = DecryptWithKey(key, encrypted)
	assert.Error(t, err)
}

func TestKeyPEMs(t *testing.T) {
	pubPEM, privPEM, err := RandomP256Keypair()
	require.NoError(t, err)

	require.NoError(t, pubPEM.Validate())
	require.NoError(t, privPEM.Validate())

	derived, err := privPEM.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, string(pubPEM), string(derived))

	assert.Error(t, PubkeyPEM("not-a-pem").Validate())
	assert.Error(t, PrivkeyPEM("not-a-pem").Validate())

	_, err = EncryptWithPublicKey([]byte("garbage"), []byte("x"))
	assert.Error(t, err)
}

func TestParsePrivateKeyHex(t *testing.T) {
	const hexKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	a, err := ParsePrivateKeyHex(hexKey)
	require.NoError(t, err)
	b, err := ParsePrivateKeyHex("0x" + hexKey + "\n")
	require.NoError(t, err)
	assert.Equal(t, a.D, b.D)

	_, err = ParsePrivateKeyHex("0xzz")
	assert.Error(t, err)
}
