// Package coprocessor implements the confidential runtime behind encrypted
// fields.
//
// Encrypt seals an address under a per-contract network key and stores the
// sealed envelope in content-addressed storage; the content id is the handle.
// The accompanying input proof is the coprocessor signer's signature over
// keccak256(handle || contract || caller), so a handle can only be submitted
// by the caller it was produced for, to the contract it is bound to.
//
// Decryption rights are tracked per handle. A user decryption needs an
// EIP-712 UserDecryptRequestVerification signed by the user, a current
// validity window, and both the user and the contract on the handle's ACL.
// The cleartext is then re-encrypted to the user's ephemeral P-256 key.
package coprocessor
