package registry

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ruteri/obscura-mint/interfaces"
)

// ErrNoTransactOpts is returned when a transaction is attempted without first setting transaction options.
var ErrNoTransactOpts = errors.New("no authorized transactor available")

// ObscuraMintClient implements interfaces.ObscuraMint against a deployed
// ObscuraMint contract.
type ObscuraMintClient struct {
	contract *bind.BoundContract
	client   bind.ContractBackend
	backend  bind.DeployBackend
	address  common.Address
	auth     *bind.TransactOpts
}

var _ interfaces.ObscuraMint = (*ObscuraMintClient)(nil)

// NewObscuraMintClient binds the contract at address. The DeployBackend is
// used to wait for transaction receipts.
func NewObscuraMintClient(client bind.ContractBackend, backend bind.DeployBackend, address common.Address) *ObscuraMintClient {
	return &ObscuraMintClient{
		contract: bind.NewBoundContract(address, parsedABI, client, client, client),
		client:   client,
		backend:  backend,
		address:  address,
	}
}

// Dial connects to an Ethereum JSON-RPC endpoint and binds the contract at address.
// If key is set, transactions are signed with it for the endpoint's chain id.
func Dial(ctx context.Context, rpcURL string, address common.Address, key *ecdsa.PrivateKey) (*ObscuraMintClient, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("could not dial %s: %w", rpcURL, err)
	}

	c := NewObscuraMintClient(ec, ec, address)
	if key == nil {
		return c, nil
	}

	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("could not fetch chain id: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.SetTransactOpts(auth)

	return c, nil
}

// SetTransactOpts sets the transaction options required for functions that modify state.
// This must be called before using any methods that send transactions to the blockchain.
func (c *ObscuraMintClient) SetTransactOpts(auth *bind.TransactOpts) {
	c.auth = auth
}

func (c *ObscuraMintClient) ContractAddress() common.Address {
	return c.address
}

func (c *ObscuraMintClient) Owner(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, "owner")
	if err != nil {
		return common.Address{}, err
	}
	return *abiConvert[common.Address](out[0]), nil
}

func (c *ObscuraMintClient) TransferOwnership(ctx context.Context, newOwner common.Address) (*interfaces.Receipt, error) {
	return c.transact(ctx, "transferOwnership", newOwner)
}

func (c *ObscuraMintClient) CreateSeries(ctx context.Context, name string, maxSupply uint32) (*interfaces.Receipt, error) {
	return c.transact(ctx, "createSeries", name, maxSupply)
}

func (c *ObscuraMintClient) Mint(ctx context.Context, seriesID uint64, amount uint32) (*interfaces.Receipt, error) {
	return c.transact(ctx, "mint", new(big.Int).SetUint64(seriesID), amount)
}

func (c *ObscuraMintClient) MintOne(ctx context.Context, seriesID uint64) (*interfaces.Receipt, error) {
	return c.transact(ctx, "mintOne", new(big.Int).SetUint64(seriesID))
}

func (c *ObscuraMintClient) GetSeries(ctx context.Context, seriesID uint64) (*interfaces.Series, error) {
	out, err := c.call(ctx, "getSeries", new(big.Int).SetUint64(seriesID))
	if err != nil {
		return nil, err
	}

	s := &interfaces.Series{
		ID:        seriesID,
		Name:      *abiConvert[string](out[0]),
		MaxSupply: *abiConvert[uint32](out[1]),
		Minted:    *abiConvert[uint32](out[2]),
		Creator:   *abiConvert[common.Address](out[3]),
	}
	if s.MaxSupply == 0 {
		return nil, interfaces.ErrSeriesNotFound
	}
	return s, nil
}

func (c *ObscuraMintClient) SeriesCount(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, "seriesCount")
	if err != nil {
		return 0, err
	}
	return (*abiConvert[*big.Int](out[0])).Uint64(), nil
}

func (c *ObscuraMintClient) BalanceOf(ctx context.Context, account common.Address, seriesID uint64) (uint64, error) {
	out, err := c.call(ctx, "balanceOf", account, new(big.Int).SetUint64(seriesID))
	if err != nil {
		return 0, err
	}
	return (*abiConvert[*big.Int](out[0])).Uint64(), nil
}

func (c *ObscuraMintClient) GetObscuraOwner(ctx context.Context, seriesID uint64) (interfaces.Handle, error) {
	out, err := c.call(ctx, "getObscuraOwner", new(big.Int).SetUint64(seriesID))
	if err != nil {
		return interfaces.Handle{}, err
	}
	return interfaces.Handle(*abiConvert[[32]byte](out[0])), nil
}

func (c *ObscuraMintClient) SetObscuraOwner(ctx context.Context, seriesID uint64, handle interfaces.Handle, inputProof []byte) (*interfaces.Receipt, error) {
	return c.transact(ctx, "setObscuraOwner", new(big.Int).SetUint64(seriesID), [32]byte(handle), inputProof)
}

// HeadBlock returns the number of the latest block known to the endpoint.
func (c *ObscuraMintClient) HeadBlock(ctx context.Context) (uint64, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not fetch head block: %w", err)
	}
	return header.Number.Uint64(), nil
}

// FilterEvents returns the contract's events in the block range [from, to].
// A nil to means the latest block.
func (c *ObscuraMintClient) FilterEvents(ctx context.Context, from uint64, to *uint64) ([]interfaces.Event, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		Addresses: []common.Address{c.address},
	}
	if to != nil {
		query.ToBlock = new(big.Int).SetUint64(*to)
	}

	logs, err := c.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	events := make([]interfaces.Event, 0, len(logs))
	for i := range logs {
		ev, err := DecodeLog(&logs[i])
		if errors.Is(err, errUnknownEvent) {
			continue
		} else if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, nil
}

func (c *ObscuraMintClient) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	opts := &bind.CallOpts{Context: ctx}
	if c.auth != nil {
		opts.From = c.auth.From
	}

	var out []interface{}
	if err := c.contract.Call(opts, &out, method, args...); err != nil {
		return nil, mapCallError(method, err)
	}
	return out, nil
}

// transact simulates the call first so custom error reverts surface as
// sentinel errors, then sends the transaction and waits for it to be mined.
func (c *ObscuraMintClient) transact(ctx context.Context, method string, args ...interface{}) (*interfaces.Receipt, error) {
	if c.auth == nil {
		return nil, ErrNoTransactOpts
	}

	if _, err := c.call(ctx, method, args...); err != nil {
		return nil, err
	}

	opts := *c.auth
	opts.Context = ctx
	tx, err := c.contract.Transact(&opts, method, args...)
	if err != nil {
		return nil, mapCallError(method, err)
	}

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", tx.Hash().Hex(), err)
	}

	return ConvertReceipt(receipt)
}

// ConvertReceipt decodes the ObscuraMint events of a transaction receipt.
func ConvertReceipt(receipt *types.Receipt) (*interfaces.Receipt, error) {
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: transaction %s failed", ErrReverted, receipt.TxHash.Hex())
	}

	out := &interfaces.Receipt{
		TxHash: receipt.TxHash,
		Status: receipt.Status,
		Events: []interfaces.Event{},
	}
	if receipt.BlockNumber != nil {
		out.Block = receipt.BlockNumber.Uint64()
	}

	for _, l := range receipt.Logs {
		ev, err := DecodeLog(l)
		if errors.Is(err, errUnknownEvent) {
			continue
		} else if err != nil {
			return nil, err
		}
		out.Events = append(out.Events, *ev)
	}
	return out, nil
}

func mapCallError(method string, err error) error {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, ok := revertData(dataErr.ErrorData()); ok {
			return DecodeRevert(data)
		}
	}
	return fmt.Errorf("%s: %w", method, err)
}

func revertData(v interface{}) ([]byte, bool) {
	switch d := v.(type) {
	case string:
		data, err := hexutil.Decode(d)
		return data, err == nil
	case []byte:
		return d, true
	default:
		return nil, false
	}
}

func abiConvert[T any](v interface{}) *T {
	return abi.ConvertType(v, new(T)).(*T)
}
