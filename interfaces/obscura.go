package interfaces

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ObscuraMint is the contract surface as seen by a single caller.
// Implementations bind the caller identity (a key, a session or a signer)
// and return a Receipt for every successful mutation.
type ObscuraMint interface {
	// ContractAddress identifies the contract the handles are bound to.
	ContractAddress() common.Address

	Owner(ctx context.Context) (common.Address, error)
	TransferOwnership(ctx context.Context, newOwner common.Address) (*Receipt, error)

	CreateSeries(ctx context.Context, name string, maxSupply uint32) (*Receipt, error)
	Mint(ctx context.Context, seriesID uint64, amount uint32) (*Receipt, error)
	MintOne(ctx context.Context, seriesID uint64) (*Receipt, error)

	GetSeries(ctx context.Context, seriesID uint64) (*Series, error)
	SeriesCount(ctx context.Context) (uint64, error)
	BalanceOf(ctx context.Context, account common.Address, seriesID uint64) (uint64, error)

	GetObscuraOwner(ctx context.Context, seriesID uint64) (Handle, error)
	SetObscuraOwner(ctx context.Context, seriesID uint64, handle Handle, inputProof []byte) (*Receipt, error)
}

// InputVerifier checks that an input proof binds a handle to a contract and caller.
type InputVerifier interface {
	VerifyInput(ctx context.Context, contract, caller common.Address, handle Handle, proof []byte) error
}

// AccessControl records which accounts may decrypt a handle.
type AccessControl interface {
	Allow(ctx context.Context, handle Handle, account common.Address) error
	IsAllowed(handle Handle, account common.Address) bool
}

// ConfidentialRuntime is the part of the coprocessor the ledger depends on.
type ConfidentialRuntime interface {
	InputVerifier
	AccessControl
}

// EncryptedInput is an encrypted external value ready for submission.
type EncryptedInput struct {
	Handle     Handle        `json:"handle"`
	InputProof hexutil.Bytes `json:"input_proof"`
}

// UserDecryptRequest carries a user's time-bounded EIP-712 authorization to
// re-encrypt a handle's cleartext under PublicKey.
type UserDecryptRequest struct {
	Handle            Handle           `json:"handle"`
	ContractAddress   common.Address   `json:"contract_address"`
	UserAddress       common.Address   `json:"user_address"`
	PublicKey         string           `json:"public_key"`
	ContractAddresses []common.Address `json:"contract_addresses"`
	StartTimestamp    int64            `json:"start_timestamp"`
	DurationDays      int64            `json:"duration_days"`
	Signature         hexutil.Bytes    `json:"signature"`
}

// UserDecryptResponse holds the cleartext sealed to the request's public key.
type UserDecryptResponse struct {
	Handle     Handle        `json:"handle"`
	Ciphertext hexutil.Bytes `json:"ciphertext"`
}

// CoprocessorInfo is what a client needs to build and sign requests.
type CoprocessorInfo struct {
	Signer            common.Address `json:"signer"`
	VerifyingContract common.Address `json:"verifying_contract"`
	ChainID           int64          `json:"chain_id"`
	DomainName        string         `json:"domain_name"`
	DomainVersion     string         `json:"domain_version"`
}

// Coprocessor is the full confidential runtime.
type Coprocessor interface {
	ConfidentialRuntime

	Encrypt(ctx context.Context, contract, caller, value common.Address) (*EncryptedInput, error)
	UserDecrypt(ctx context.Context, req *UserDecryptRequest) (*UserDecryptResponse, error)
	Info() CoprocessorInfo
}
