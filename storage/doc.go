// Package storage provides content-addressed blob storage for sealed
// ciphertext envelopes and ledger exports.
//
// Content is identified by the SHA-256 hash of its bytes, so every backend
// computes the same id for the same data and a fetched blob can be checked
// against the id it was requested by.
//
// Backends are selected by URI:
//
//	file:///var/lib/obscura/ciphertexts
//	s3://bucket/prefix?region=us-west-2
//	ipfs://localhost:5001/obscura
//	vault://vault.example.com:8200/secret/obscura?token=s.xxx
//	memory://default
//
// MultiStorageBackend combines several backends: writes go to every available
// backend, reads fall back through them in order.
package storage
