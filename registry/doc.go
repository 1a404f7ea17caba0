// Package registry binds the ObscuraMint contract deployed on an
// Ethereum-compatible chain.
//
// ObscuraMintClient implements interfaces.ObscuraMint over a
// bind.BoundContract built from the embedded ABI. Mutations are simulated
// before they are sent so that custom error reverts (NotOwner,
// MaxSupplyExceeded, ...) surface as the matching sentinel errors, then the
// client waits for the receipt and decodes the emitted events.
//
// Confidential fields are plain bytes32 handles on chain. Encrypting inputs
// and decrypting handles is the coprocessor's job, see package coprocessor.
//
// MockObscuraMint is a testify mock of the same interface for consumers.
package registry
