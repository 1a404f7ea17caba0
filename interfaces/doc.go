// Package interfaces defines the core types and interfaces of the ObscuraMint
// system, separating interface definitions from implementations.
//
// # Ledger Types
//
// Series, Handle, Event and Receipt describe the state machine managed by the
// ledger: numbered series with a bounded supply, per-account balances, one
// owner and one confidential field per series holding a ciphertext handle.
//
// # Call Surface
//
// ObscuraMint is the caller-bound contract surface implemented by the
// in-process ledger session, the HTTP client and the on-chain contract client.
//
// # Confidential Runtime
//
// InputVerifier, AccessControl and Coprocessor describe the encryption runtime
// collaborator: encrypt cleartext into a handle with an input proof, check the
// proof, grant decryption rights and serve authorized user decryption.
//
// # Storage Interfaces
//
// StorageBackend: Provides content-addressed storage for sealed ciphertext
// envelopes across multiple backend types (file, S3, IPFS, Vault, memory).
//
// StorageBackendFactory: Creates storage backends from URI strings and manages
// multi-backend configurations for redundant storage.
package interfaces
