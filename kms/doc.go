// Package kms provides key management for the confidential coprocessor.
//
// # SimpleKMS
//
// Derives every key deterministically from a master seed using HKDF-SHA256:
//
//   - one P-256 network key per contract address; encrypted inputs bound to
//     that contract are sealed to it
//   - one secp256k1 signer key whose signatures serve as input proofs
//
// A node restarted with the same seed recovers the same keys and can still
// decrypt every ciphertext it produced.
//
// # Seed sharing
//
// SplitSeed and CombineSeed wrap Shamir's Secret Sharing so the seed can be
// distributed among administrators instead of living in one place. Shares can
// be sealed to an administrator's P-256 public key with SealShare.
package kms
