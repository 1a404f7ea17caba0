package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/obscura-mint/interfaces"
	"github.com/vmihailenco/msgpack/v4"
)

const snapshotVersion = 1

var (
	// ErrStoreNotEmpty is returned when restoring a snapshot into a store that
	// already holds state.
	ErrStoreNotEmpty = errors.New("state store is not empty")

	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

type balanceRecord struct {
	Account  []byte
	SeriesID uint64
	Amount   uint64
}

type handleSnapshotRecord struct {
	SeriesID uint64
	Handle   []byte
	SetBy    []byte
}

type snapshotRecord struct {
	Version  uint8
	Contract []byte
	Owner    []byte
	Block    uint64
	Series   []*seriesRecord
	Balances []balanceRecord
	Handles  []handleSnapshotRecord
	Events   []*eventRecord
}

// Snapshot is a point-in-time copy of the full ledger state.
type Snapshot struct {
	Contract common.Address
	State    *Changeset
}

// Snapshot copies the current state under the read lock.
func (l *Ledger) Snapshot() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	owner, contract := l.owner, l.contract
	cs := &Changeset{
		Contract: &contract,
		Owner:    &owner,
		Block:    l.block,
		Series:   make([]interfaces.Series, 0, len(l.series)),
		Events:   append([]interfaces.Event(nil), l.events...),
	}
	for _, s := range l.series {
		cs.Series = append(cs.Series, *s)
	}
	for k, amount := range l.balances {
		cs.Balances = append(cs.Balances, Balance{Account: k.account, SeriesID: k.seriesID, Amount: amount})
	}
	for _, h := range l.handles {
		cs.Handles = append(cs.Handles, h)
	}

	return &Snapshot{Contract: l.contract, State: cs}
}

// Export writes a snapshot of the ledger to backend and returns its content id.
func (l *Ledger) Export(ctx context.Context, backend interfaces.StorageBackend) (interfaces.ContentID, error) {
	data, err := l.Snapshot().Marshal()
	if err != nil {
		return interfaces.ContentID{}, err
	}

	id, err := backend.Store(ctx, data, interfaces.ExportType)
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("failed to store snapshot: %w", err)
	}

	l.log.Info("Exported ledger snapshot", "id", id, "backend", backend.Name(), "size", len(data))
	return id, nil
}

func (s *Snapshot) Marshal() ([]byte, error) {
	rec := &snapshotRecord{
		Version:  snapshotVersion,
		Contract: s.Contract.Bytes(),
		Block:    s.State.Block,
	}
	if s.State.Owner != nil {
		rec.Owner = s.State.Owner.Bytes()
	}
	for _, series := range s.State.Series {
		rec.Series = append(rec.Series, newSeriesRecord(series))
	}
	for _, b := range s.State.Balances {
		rec.Balances = append(rec.Balances, balanceRecord{Account: b.Account.Bytes(), SeriesID: b.SeriesID, Amount: b.Amount})
	}
	for _, h := range s.State.Handles {
		rec.Handles = append(rec.Handles, handleSnapshotRecord{SeriesID: h.SeriesID, Handle: h.Handle[:], SetBy: h.SetBy.Bytes()})
	}
	for _, ev := range s.State.Events {
		rec.Events = append(rec.Events, newEventRecord(ev))
	}

	return msgpack.Marshal(rec)
}

func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var rec snapshotRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("malformed snapshot: %w", err)
	}
	if rec.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", rec.Version)
	}
	if len(rec.Owner) != common.AddressLength {
		return nil, errors.New("snapshot has no owner")
	}

	if len(rec.Contract) != common.AddressLength {
		return nil, errors.New("snapshot has no contract")
	}

	owner, contract := common.BytesToAddress(rec.Owner), common.BytesToAddress(rec.Contract)
	cs := &Changeset{Contract: &contract, Owner: &owner, Block: rec.Block}
	for _, s := range rec.Series {
		cs.Series = append(cs.Series, s.series())
	}
	for _, b := range rec.Balances {
		cs.Balances = append(cs.Balances, Balance{Account: common.BytesToAddress(b.Account), SeriesID: b.SeriesID, Amount: b.Amount})
	}
	for _, h := range rec.Handles {
		var handle interfaces.Handle
		copy(handle[:], h.Handle)
		cs.Handles = append(cs.Handles, HandleRecord{SeriesID: h.SeriesID, Handle: handle, SetBy: common.BytesToAddress(h.SetBy)})
	}
	for _, ev := range rec.Events {
		cs.Events = append(cs.Events, ev.event())
	}

	return &Snapshot{Contract: contract, State: cs}, nil
}

// FetchSnapshot loads an exported snapshot from backend.
func FetchSnapshot(ctx context.Context, backend interfaces.StorageBackend, id interfaces.ContentID) (*Snapshot, error) {
	data, err := backend.Fetch(ctx, id, interfaces.ExportType)
	if err != nil {
		return nil, err
	}
	return UnmarshalSnapshot(data)
}

// Validate checks that the snapshot describes a state the ledger could have
// produced: series ids are dense, supply caps hold, balances add up to the
// minted counts and events are numbered without gaps.
func (s *Snapshot) Validate() error {
	cs := s.State
	if cs == nil {
		return fmt.Errorf("%w: no state", ErrInvalidSnapshot)
	}
	if s.Contract == (common.Address{}) {
		return fmt.Errorf("%w: zero contract", ErrInvalidSnapshot)
	}
	if cs.Owner == nil || *cs.Owner == (common.Address{}) {
		return fmt.Errorf("%w: zero owner", ErrInvalidSnapshot)
	}

	for i, series := range cs.Series {
		if series.ID != uint64(i) {
			return fmt.Errorf("%w: series %d at position %d", ErrInvalidSnapshot, series.ID, i)
		}
		if series.MaxSupply == 0 {
			return fmt.Errorf("%w: series %d has no supply", ErrInvalidSnapshot, series.ID)
		}
		if series.Minted > series.MaxSupply {
			return fmt.Errorf("%w: series %d minted %d of %d", ErrInvalidSnapshot, series.ID, series.Minted, series.MaxSupply)
		}
	}

	sums := make([]uint64, len(cs.Series))
	seen := make(map[balanceKey]struct{}, len(cs.Balances))
	for _, b := range cs.Balances {
		if b.SeriesID >= uint64(len(cs.Series)) {
			return fmt.Errorf("%w: balance of unknown series %d", ErrInvalidSnapshot, b.SeriesID)
		}
		key := balanceKey{b.Account, b.SeriesID}
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: duplicate balance of %s in series %d", ErrInvalidSnapshot, b.Account.Hex(), b.SeriesID)
		}
		seen[key] = struct{}{}
		sums[b.SeriesID] += b.Amount
	}
	for i, series := range cs.Series {
		if sums[i] != uint64(series.Minted) {
			return fmt.Errorf("%w: series %d balances sum to %d, minted %d", ErrInvalidSnapshot, i, sums[i], series.Minted)
		}
	}

	for _, h := range cs.Handles {
		if h.SeriesID >= uint64(len(cs.Series)) {
			return fmt.Errorf("%w: handle of unknown series %d", ErrInvalidSnapshot, h.SeriesID)
		}
		if h.Handle.IsZero() {
			return fmt.Errorf("%w: zero handle for series %d", ErrInvalidSnapshot, h.SeriesID)
		}
	}

	var lastBlock uint64
	for i, ev := range cs.Events {
		if ev.Seq != uint64(i) {
			return fmt.Errorf("%w: event %d at position %d", ErrInvalidSnapshot, ev.Seq, i)
		}
		if ev.Block < lastBlock || ev.Block > cs.Block {
			return fmt.Errorf("%w: event %d in block %d", ErrInvalidSnapshot, ev.Seq, ev.Block)
		}
		lastBlock = ev.Block
	}

	return nil
}

// Restore validates the snapshot and commits it into an empty store. A
// ledger opened on the store afterwards resumes from the snapshot and is
// bound to the snapshot's contract.
func (s *Snapshot) Restore(ctx context.Context, store StateStore) error {
	if err := s.Validate(); err != nil {
		return err
	}

	existing, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrStoreNotEmpty
	}

	state := *s.State
	contract := s.Contract
	state.Contract = &contract
	return store.Commit(ctx, &state)
}

func newSeriesRecord(s interfaces.Series) *seriesRecord {
	return &seriesRecord{
		ID:        s.ID,
		Name:      s.Name,
		MaxSupply: s.MaxSupply,
		Minted:    s.Minted,
		Creator:   s.Creator.Bytes(),
	}
}

func (rec *seriesRecord) series() interfaces.Series {
	return interfaces.Series{
		ID:        rec.ID,
		Name:      rec.Name,
		MaxSupply: rec.MaxSupply,
		Minted:    rec.Minted,
		Creator:   common.BytesToAddress(rec.Creator),
	}
}

func newEventRecord(ev interfaces.Event) *eventRecord {
	return &eventRecord{
		Type:          string(ev.Type),
		Seq:           ev.Seq,
		Block:         ev.Block,
		TxHash:        ev.TxHash.Bytes(),
		SeriesID:      ev.SeriesID,
		Creator:       ev.Creator.Bytes(),
		Minter:        ev.Minter.Bytes(),
		PreviousOwner: ev.PreviousOwner.Bytes(),
		NewOwner:      ev.NewOwner.Bytes(),
		Name:          ev.Name,
		MaxSupply:     ev.MaxSupply,
		Amount:        ev.Amount,
	}
}

func (rec *eventRecord) event() interfaces.Event {
	return interfaces.Event{
		Type:          interfaces.EventType(rec.Type),
		Seq:           rec.Seq,
		Block:         rec.Block,
		TxHash:        common.BytesToHash(rec.TxHash),
		SeriesID:      rec.SeriesID,
		Creator:       common.BytesToAddress(rec.Creator),
		Minter:        common.BytesToAddress(rec.Minter),
		PreviousOwner: common.BytesToAddress(rec.PreviousOwner),
		NewOwner:      common.BytesToAddress(rec.NewOwner),
		Name:          rec.Name,
		MaxSupply:     rec.MaxSupply,
		Amount:        rec.Amount,
	}
}
