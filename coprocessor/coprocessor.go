package coprocessor

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	lru "github.com/hashicorp/golang-lru"
	"github.com/ruteri/obscura-mint/cryptoutils"
	"github.com/ruteri/obscura-mint/interfaces"
	"github.com/ruteri/obscura-mint/metrics"
)

const (
	envelopeCacheSize    = 4096
	maxContractAddresses = 10
)

// Config holds the collaborators of a Coprocessor.
type Config struct {
	KMS     interfaces.KMS
	Storage interfaces.StorageBackend

	// ChainID and VerifyingContract form the EIP-712 domain user decryption
	// authorizations are signed under.
	ChainID           int64
	VerifyingContract common.Address

	DomainName    string
	DomainVersion string

	Log *slog.Logger

	// Now overrides the clock used for authorization windows.
	Now func() time.Time
}

// Coprocessor encrypts external values into handles, verifies their input
// proofs, tracks per-handle decryption rights and serves authorized user
// decryptions.
type Coprocessor struct {
	kms     interfaces.KMS
	storage interfaces.StorageBackend
	log     *slog.Logger
	now     func() time.Time

	signer     *ecdsa.PrivateKey
	signerAddr common.Address
	info       interfaces.CoprocessorInfo

	envelopes *lru.Cache

	mu  sync.RWMutex
	acl map[interfaces.Handle]map[common.Address]struct{}
}

var _ interfaces.Coprocessor = (*Coprocessor)(nil)

// New creates a coprocessor around the given key material and ciphertext storage.
func New(cfg *Config) (*Coprocessor, error) {
	if cfg.KMS == nil {
		return nil, errors.New("kms is required")
	}
	if cfg.Storage == nil {
		return nil, errors.New("ciphertext storage is required")
	}

	signer, err := cfg.KMS.SignerKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive signer key: %w", err)
	}

	envelopes, err := lru.New(envelopeCacheSize)
	if err != nil {
		return nil, err
	}

	c := &Coprocessor{
		kms:        cfg.KMS,
		storage:    cfg.Storage,
		log:        cfg.Log,
		now:        cfg.Now,
		signer:     signer,
		signerAddr: crypto.PubkeyToAddress(signer.PublicKey),
		envelopes:  envelopes,
		acl:        make(map[interfaces.Handle]map[common.Address]struct{}),
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}

	c.info = interfaces.CoprocessorInfo{
		Signer:            c.signerAddr,
		VerifyingContract: cfg.VerifyingContract,
		ChainID:           cfg.ChainID,
		DomainName:        cfg.DomainName,
		DomainVersion:     cfg.DomainVersion,
	}
	if c.info.DomainName == "" {
		c.info.DomainName = DefaultDomainName
	}
	if c.info.DomainVersion == "" {
		c.info.DomainVersion = DefaultDomainVersion
	}

	return c, nil
}

// Info returns the input signer and the EIP-712 domain.
func (c *Coprocessor) Info() interfaces.CoprocessorInfo {
	return c.info
}

// Encrypt seals value under the contract's network key and returns its handle
// with a proof binding it to contract and caller.
func (c *Coprocessor) Encrypt(ctx context.Context, contract, caller, value common.Address) (*interfaces.EncryptedInput, error) {
	if contract == (common.Address{}) || caller == (common.Address{}) {
		return nil, fmt.Errorf("%w: contract and caller are required", interfaces.ErrInvalidRequest)
	}

	networkKey, err := c.kms.NetworkKey(contract)
	if err != nil {
		return nil, fmt.Errorf("failed to derive network key: %w", err)
	}

	ciphertext, err := cryptoutils.EncryptToKey(&networkKey.PublicKey, value.Bytes())
	if err != nil {
		return nil, err
	}

	data, err := newEnvelope(contract, ciphertext).marshal()
	if err != nil {
		return nil, err
	}

	id, err := c.storage.Store(ctx, data, interfaces.EnvelopeType)
	if err != nil {
		return nil, fmt.Errorf("failed to store ciphertext: %w", err)
	}
	handle := id.Handle()
	c.envelopes.Add(handle, data)

	proof, err := crypto.Sign(proofDigest(handle, contract, caller), c.signer)
	if err != nil {
		return nil, fmt.Errorf("failed to sign input proof: %w", err)
	}

	c.log.Debug("encrypted input", "handle", handle, "contract", contract, "caller", caller)
	return &interfaces.EncryptedInput{Handle: handle, InputProof: proof}, nil
}

// VerifyInput checks the proof signature and that the handle's ciphertext
// exists and is bound to contract.
func (c *Coprocessor) VerifyInput(ctx context.Context, contract, caller common.Address, handle interfaces.Handle, proof []byte) error {
	if handle.IsZero() {
		return fmt.Errorf("%w: zero handle", interfaces.ErrInvalidProof)
	}

	signer, err := cryptoutils.RecoverSigner(proofDigest(handle, contract, caller), proof)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrInvalidProof, err)
	}
	if signer != c.signerAddr {
		return fmt.Errorf("%w: not signed by the coprocessor", interfaces.ErrInvalidProof)
	}

	env, err := c.fetchEnvelope(ctx, handle)
	if err != nil {
		return err
	}
	if env.contract() != contract {
		return fmt.Errorf("%w: handle bound to another contract", interfaces.ErrInvalidProof)
	}
	return nil
}

// Allow grants account the right to take part in decryptions of handle.
func (c *Coprocessor) Allow(ctx context.Context, handle interfaces.Handle, account common.Address) error {
	if handle.IsZero() {
		return fmt.Errorf("%w: zero handle", interfaces.ErrInvalidRequest)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	accounts, ok := c.acl[handle]
	if !ok {
		accounts = make(map[common.Address]struct{})
		c.acl[handle] = accounts
	}
	accounts[account] = struct{}{}
	return nil
}

// IsAllowed reports whether account is on the handle's ACL.
func (c *Coprocessor) IsAllowed(handle interfaces.Handle, account common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.acl[handle][account]
	return ok
}

// UserDecrypt re-encrypts a handle's cleartext to the requester's public key
// after checking the EIP-712 authorization, its time window and the ACL.
func (c *Coprocessor) UserDecrypt(ctx context.Context, req *interfaces.UserDecryptRequest) (resp *interfaces.UserDecryptResponse, err error) {
	defer func() { metrics.RecordUserDecrypt(err) }()

	if err := c.checkAuthorization(req); err != nil {
		c.log.Info("user decryption rejected", "handle", req.Handle, "user", req.UserAddress, "err", err)
		return nil, err
	}

	env, err := c.fetchEnvelope(ctx, req.Handle)
	if err != nil {
		return nil, err
	}
	if env.contract() != req.ContractAddress {
		return nil, fmt.Errorf("%w: handle bound to another contract", interfaces.ErrUnauthorized)
	}

	networkKey, err := c.kms.NetworkKey(env.contract())
	if err != nil {
		return nil, fmt.Errorf("failed to derive network key: %w", err)
	}

	cleartext, err := cryptoutils.DecryptWithKey(networkKey, env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt handle %s: %w", req.Handle, err)
	}

	sealed, err := cryptoutils.EncryptWithPublicKey([]byte(req.PublicKey), cleartext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidRequest, err)
	}

	c.log.Info("user decryption served", "handle", req.Handle, "user", req.UserAddress)
	return &interfaces.UserDecryptResponse{Handle: req.Handle, Ciphertext: sealed}, nil
}

func (c *Coprocessor) checkAuthorization(req *interfaces.UserDecryptRequest) error {
	if req == nil || req.Handle.IsZero() {
		return fmt.Errorf("%w: handle is required", interfaces.ErrInvalidRequest)
	}
	if err := cryptoutils.PubkeyPEM(req.PublicKey).Validate(); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrInvalidRequest, err)
	}
	if req.DurationDays < 1 || req.DurationDays > MaxDurationDays {
		return fmt.Errorf("%w: duration must be between 1 and %d days", interfaces.ErrInvalidRequest, MaxDurationDays)
	}
	if n := len(req.ContractAddresses); n == 0 || n > maxContractAddresses {
		return fmt.Errorf("%w: between 1 and %d contract addresses required", interfaces.ErrInvalidRequest, maxContractAddresses)
	}

	listed := false
	for _, a := range req.ContractAddresses {
		if a == req.ContractAddress {
			listed = true
			break
		}
	}
	if !listed {
		return fmt.Errorf("%w: contract %s not authorized by the request", interfaces.ErrUnauthorized, req.ContractAddress)
	}

	now := c.now().Unix()
	if now < req.StartTimestamp || now >= req.StartTimestamp+req.DurationDays*secondsPerDay {
		return interfaces.ErrRequestExpired
	}

	typedData := NewUserDecryptTypedData(c.info, req.PublicKey, req.ContractAddresses, req.StartTimestamp, req.DurationDays)
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrInvalidRequest, err)
	}

	signer, err := cryptoutils.RecoverSigner(hash, req.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrInvalidSignature, err)
	}
	if signer != req.UserAddress {
		return interfaces.ErrInvalidSignature
	}

	if !c.IsAllowed(req.Handle, req.UserAddress) {
		return fmt.Errorf("%w: user %s may not decrypt this handle", interfaces.ErrUnauthorized, req.UserAddress)
	}
	if !c.IsAllowed(req.Handle, req.ContractAddress) {
		return fmt.Errorf("%w: contract %s may not decrypt this handle", interfaces.ErrUnauthorized, req.ContractAddress)
	}
	return nil
}

func (c *Coprocessor) fetchEnvelope(ctx context.Context, handle interfaces.Handle) (*envelope, error) {
	data, ok := c.envelopes.Get(handle)
	if !ok {
		fetched, err := c.storage.Fetch(ctx, interfaces.ContentID(handle), interfaces.EnvelopeType)
		if errors.Is(err, interfaces.ErrContentNotFound) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrHandleNotFound, handle)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch ciphertext: %w", err)
		}
		if interfaces.ComputeID(fetched) != interfaces.ContentID(handle) {
			return nil, fmt.Errorf("ciphertext for %s failed integrity check", handle)
		}
		c.envelopes.Add(handle, fetched)
		data = fetched
	}
	return unmarshalEnvelope(data.([]byte))
}

// proofDigest is keccak256(handle || contract || caller).
func proofDigest(handle interfaces.Handle, contract, caller common.Address) []byte {
	return crypto.Keccak256(handle[:], contract.Bytes(), caller.Bytes())
}
