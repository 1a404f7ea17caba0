package interfaces

import "errors"

var (
	// ErrNotOwner is returned when an owner-only operation is called by anyone else.
	ErrNotOwner = errors.New("caller is not the owner")

	// ErrMaxSupplyExceeded is returned when a mint would push minted past maxSupply.
	ErrMaxSupplyExceeded = errors.New("max supply exceeded")

	// ErrSeriesNotFound is returned for series ids that were never created.
	ErrSeriesNotFound = errors.New("series not found")

	ErrInvalidMaxSupply = errors.New("max supply must be greater than zero")
	ErrInvalidAmount    = errors.New("amount must be greater than zero")
	ErrZeroAddress      = errors.New("zero address")

	// ErrInvalidProof is returned when an input proof does not bind the handle
	// to the contract and the caller.
	ErrInvalidProof = errors.New("invalid input proof")

	// ErrHandleNotFound is returned when no ciphertext exists for a handle.
	ErrHandleNotFound = errors.New("handle not found")

	// ErrUnauthorized is returned when a decryption is requested by an account
	// or for a contract missing from the handle's ACL.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRequestExpired is returned for decryption authorizations outside their window.
	ErrRequestExpired = errors.New("request expired")

	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidRequest   = errors.New("invalid request")
)
