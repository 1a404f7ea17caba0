// Package cryptoutils holds the cryptographic primitives shared by the node,
// its clients and the coprocessor.
//
// # Encryption
//
// EncryptToKey and DecryptWithKey implement ECIES over P-256: ECDH with a fresh
// ephemeral key, SHA-256 of the shared X coordinate as the AES-256-GCM key.
// The PEM variants EncryptWithPublicKey and DecryptWithPrivateKey accept keys
// as exchanged over the API.
//
// Ciphertext layout:
//
//	[ephemeral key length (2 bytes)][ephemeral key][iv (12 bytes)][ciphertext]
//
// # Signed requests
//
// Mutating API calls are authenticated by an Ethereum signature over
//
//	METHOD\nPATH\nTIMESTAMP\nNONCE\nBODY
//
// hashed with the EIP-191 personal message prefix. SignRequest produces the
// X-Obscura-* headers and RequestSignature.Verify checks them.
package cryptoutils
