package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/obscura-mint/interfaces"
	"github.com/ruteri/obscura-mint/metrics"
)

// ErrContractMismatch is returned when a store holding state for one contract
// is opened for another. Handles are bound to the contract they were set for.
var ErrContractMismatch = errors.New("state store belongs to another contract")

// Config holds the collaborators of a Ledger.
type Config struct {
	// ContractAddress is the address handles are bound to and the first
	// account granted decryption rights on every stored handle. It is
	// persisted at genesis; a restored ledger refuses a different address and
	// adopts the stored one when left zero.
	ContractAddress common.Address

	// Deployer becomes the owner of a fresh ledger. Ignored when the store
	// already holds state.
	Deployer common.Address

	Runtime interfaces.ConfidentialRuntime
	Store   StateStore
	Log     *slog.Logger
}

// Ledger is the ObscuraMint state machine. Mutations are serialized by a
// single mutex, committed to the StateStore as one changeset and applied to
// memory only after the commit succeeded.
type Ledger struct {
	mu sync.RWMutex

	contract common.Address
	runtime  interfaces.ConfidentialRuntime
	store    StateStore
	log      *slog.Logger

	owner    common.Address
	block    uint64
	series   []*interfaces.Series
	balances map[balanceKey]uint64
	handles  map[uint64]HandleRecord
	events   []interfaces.Event
	minted   uint64

	subs subscribers
}

// New restores the ledger from the store, or initializes it with the
// deployer as owner when the store is empty.
func New(ctx context.Context, cfg *Config) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, errors.New("state store is required")
	}
	if cfg.Runtime == nil {
		return nil, errors.New("confidential runtime is required")
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	l := &Ledger{
		contract: cfg.ContractAddress,
		runtime:  cfg.Runtime,
		store:    cfg.Store,
		log:      log,
		balances: make(map[balanceKey]uint64),
		handles:  make(map[uint64]HandleRecord),
	}

	state, err := cfg.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger state: %w", err)
	}

	if state != nil && state.Contract != nil {
		switch {
		case l.contract == (common.Address{}):
			l.contract = *state.Contract
		case l.contract != *state.Contract:
			return nil, fmt.Errorf("%w: stored %s, configured %s", ErrContractMismatch, state.Contract.Hex(), l.contract.Hex())
		}
	}
	if l.contract == (common.Address{}) {
		return nil, fmt.Errorf("contract: %w", interfaces.ErrZeroAddress)
	}

	if state == nil {
		if err := l.genesis(ctx, cfg.Deployer); err != nil {
			return nil, err
		}
		log.Info("Initialized ledger", "contract", l.contract, "owner", l.owner)
		return l, nil
	}

	if err := l.applyChangeset(state); err != nil {
		return nil, fmt.Errorf("failed to restore ledger state: %w", err)
	}

	for _, h := range l.handles {
		if err := l.grant(ctx, h); err != nil {
			return nil, fmt.Errorf("failed to restore decryption rights: %w", err)
		}
	}

	metrics.SetSeriesTotal(uint64(len(l.series)))
	metrics.SetMintedTotal(l.minted)
	log.Info("Restored ledger", "contract", l.contract, "owner", l.owner,
		"block", l.block, "series", len(l.series), "events", len(l.events))
	return l, nil
}

func (l *Ledger) genesis(ctx context.Context, deployer common.Address) error {
	if deployer == (common.Address{}) {
		return fmt.Errorf("deployer: %w", interfaces.ErrZeroAddress)
	}

	_, err := l.execute(ctx, deployer, "constructor", []interface{}{l.contract}, func(t *tx) error {
		contract := l.contract
		t.cs.Contract = &contract
		t.cs.Owner = &deployer
		t.emit(interfaces.Event{
			Type:     interfaces.EventOwnershipTransferred,
			NewOwner: deployer,
		})
		return nil
	})
	return err
}

// ContractAddress returns the address handles are bound to.
func (l *Ledger) ContractAddress() common.Address {
	return l.contract
}

// Close releases the state store.
func (l *Ledger) Close() error {
	l.subs.closeAll()
	return l.store.Close()
}

// execute runs one mutation. build validates against the current state and
// records writes on the tx; nothing is visible until the commit succeeded.
func (l *Ledger) execute(ctx context.Context, caller common.Address, method string, args []interface{}, build func(t *tx) error) (receipt *interfaces.Receipt, err error) {
	defer func() { metrics.RecordOperation(method, err) }()

	block := l.block + 1
	hash, err := TxHash(block, caller, method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to compute tx hash: %w", err)
	}

	t := &tx{
		block:   block,
		hash:    hash,
		caller:  caller,
		nextSeq: uint64(len(l.events)),
		cs:      &Changeset{Block: block},
	}

	if err := build(t); err != nil {
		return nil, err
	}

	if err := l.store.Commit(ctx, t.cs); err != nil {
		l.log.Error("Failed to commit changeset", "method", method, "block", block, "err", err)
		return nil, fmt.Errorf("failed to commit %s: %w", method, err)
	}

	if err := l.applyChangeset(t.cs); err != nil {
		// The store accepted a changeset memory cannot represent; memory
		// no longer matches the store.
		panic(fmt.Sprintf("ledger diverged from store at block %d: %v", block, err))
	}

	l.subs.publish(t.cs.Events)

	l.log.Debug("Committed transaction", "method", method, "block", block,
		"tx", hash, "caller", caller, "events", len(t.cs.Events))
	return t.receipt(), nil
}

// applyChangeset updates memory from a committed (or restored) changeset.
func (l *Ledger) applyChangeset(cs *Changeset) error {
	if cs.Owner != nil {
		l.owner = *cs.Owner
	}
	if cs.Block > l.block {
		l.block = cs.Block
	}

	for i := range cs.Series {
		s := cs.Series[i]
		switch {
		case s.ID < uint64(len(l.series)):
			l.minted += uint64(s.Minted) - uint64(l.series[s.ID].Minted)
			*l.series[s.ID] = s
		case s.ID == uint64(len(l.series)):
			l.minted += uint64(s.Minted)
			l.series = append(l.series, &s)
		default:
			return fmt.Errorf("series %d out of sequence (have %d)", s.ID, len(l.series))
		}
	}

	for _, b := range cs.Balances {
		l.balances[balanceKey{b.Account, b.SeriesID}] = b.Amount
	}

	for _, h := range cs.Handles {
		l.handles[h.SeriesID] = h
	}

	for _, ev := range cs.Events {
		if ev.Seq != uint64(len(l.events)) {
			return fmt.Errorf("event %d out of sequence (have %d)", ev.Seq, len(l.events))
		}
		l.events = append(l.events, ev)
	}

	return nil
}

// grant gives the contract and the setter decryption rights on a handle.
func (l *Ledger) grant(ctx context.Context, h HandleRecord) error {
	for _, account := range []common.Address{l.contract, h.SetBy} {
		if err := l.runtime.Allow(ctx, h.Handle, account); err != nil {
			l.log.Error("Failed to grant decryption rights", "series", h.SeriesID,
				"handle", h.Handle, "account", account, "err", err)
			return fmt.Errorf("series %d: %w", h.SeriesID, err)
		}
	}
	return nil
}

func (l *Ledger) seriesLocked(id uint64) (*interfaces.Series, error) {
	if id >= uint64(len(l.series)) {
		return nil, fmt.Errorf("series %d: %w", id, interfaces.ErrSeriesNotFound)
	}
	return l.series[id], nil
}
