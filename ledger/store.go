package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/obscura-mint/interfaces"
)

// ErrStoreClosed is returned by stores used after Close.
var ErrStoreClosed = errors.New("state store closed")

// Balance is the number of units of a series held by an account.
type Balance struct {
	Account  common.Address
	SeriesID uint64
	Amount   uint64
}

// HandleRecord is the confidential field of a series together with the
// account that set it. SetBy is needed to restore decryption rights.
type HandleRecord struct {
	SeriesID uint64
	Handle   interfaces.Handle
	SetBy    common.Address
}

// Changeset is the full set of writes produced by one ledger mutation.
// Series, balances and handles are upserts keyed by their ids; events are appended.
type Changeset struct {
	// Contract is written once, at genesis.
	Contract *common.Address
	Owner    *common.Address
	Block    uint64
	Series   []interfaces.Series
	Balances []Balance
	Handles  []HandleRecord
	Events   []interfaces.Event
}

// StateStore persists ledger state. Commit must apply a changeset atomically:
// either every write is durable or none is.
type StateStore interface {
	// Load returns the persisted state as a single changeset, or nil for an empty store.
	Load(ctx context.Context) (*Changeset, error)
	Commit(ctx context.Context, cs *Changeset) error
	Close() error
}

type balanceKey struct {
	account  common.Address
	seriesID uint64
}

// MemoryStore keeps ledger state in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	closed   bool
	contract *common.Address
	owner    *common.Address
	block    uint64
	series   map[uint64]interfaces.Series
	balances map[balanceKey]uint64
	handles  map[uint64]HandleRecord
	events   []interfaces.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		series:   make(map[uint64]interfaces.Series),
		balances: make(map[balanceKey]uint64),
		handles:  make(map[uint64]HandleRecord),
	}
}

func (m *MemoryStore) Load(ctx context.Context) (*Changeset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	if m.owner == nil {
		return nil, nil
	}

	owner := *m.owner
	cs := &Changeset{Owner: &owner, Block: m.block}
	if m.contract != nil {
		contract := *m.contract
		cs.Contract = &contract
	}

	for _, s := range m.series {
		cs.Series = append(cs.Series, s)
	}
	sort.Slice(cs.Series, func(i, j int) bool { return cs.Series[i].ID < cs.Series[j].ID })

	for k, amount := range m.balances {
		cs.Balances = append(cs.Balances, Balance{Account: k.account, SeriesID: k.seriesID, Amount: amount})
	}

	for _, h := range m.handles {
		cs.Handles = append(cs.Handles, h)
	}
	sort.Slice(cs.Handles, func(i, j int) bool { return cs.Handles[i].SeriesID < cs.Handles[j].SeriesID })

	cs.Events = append(cs.Events, m.events...)
	return cs, nil
}

func (m *MemoryStore) Commit(ctx context.Context, cs *Changeset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if cs.Contract != nil {
		contract := *cs.Contract
		m.contract = &contract
	}
	if cs.Owner != nil {
		owner := *cs.Owner
		m.owner = &owner
	}
	if cs.Block > m.block {
		m.block = cs.Block
	}
	for _, s := range cs.Series {
		m.series[s.ID] = s
	}
	for _, b := range cs.Balances {
		m.balances[balanceKey{b.Account, b.SeriesID}] = b.Amount
	}
	for _, h := range cs.Handles {
		m.handles[h.SeriesID] = h
	}
	m.events = append(m.events, cs.Events...)
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
