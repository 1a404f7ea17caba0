package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/obscura-mint/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	contractAddr = common.HexToAddress("0x6693eCD7432a8f82Ed34e253996d4fa359AcA415")
	deployer     = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	alice        = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob          = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

type mockRuntime struct {
	mock.Mock
}

func (m *mockRuntime) VerifyInput(ctx context.Context, contract, caller common.Address, handle interfaces.Handle, proof []byte) error {
	return m.Called(ctx, contract, caller, handle, proof).Error(0)
}

func (m *mockRuntime) Allow(ctx context.Context, handle interfaces.Handle, account common.Address) error {
	return m.Called(ctx, handle, account).Error(0)
}

func (m *mockRuntime) IsAllowed(handle interfaces.Handle, account common.Address) bool {
	return m.Called(handle, account).Bool(0)
}

type failingStore struct {
	*MemoryStore
	fail bool
}

func (f *failingStore) Commit(ctx context.Context, cs *Changeset) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.MemoryStore.Commit(ctx, cs)
}

func newTestLedger(t *testing.T, store StateStore, rt *mockRuntime) *Ledger {
	t.Helper()
	l, err := New(context.Background(), &Config{
		ContractAddress: contractAddr,
		Deployer:        deployer,
		Runtime:         rt,
		Store:           store,
		Log:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return l
}

func assertSupplyInvariants(t *testing.T, l *Ledger, accounts ...common.Address) {
	t.Helper()
	for _, s := range l.ListSeries(0, 0) {
		assert.LessOrEqual(t, s.Minted, s.MaxSupply)
		var sum uint64
		for _, a := range accounts {
			bal, err := l.BalanceOf(a, s.ID)
			require.NoError(t, err)
			sum += bal
		}
		assert.Equal(t, uint64(s.Minted), sum, "balances of series %d", s.ID)
	}
}

func TestGenesis(t *testing.T) {
	l := newTestLedger(t, NewMemoryStore(), &mockRuntime{})

	assert.Equal(t, deployer, l.Owner())
	assert.Equal(t, contractAddr, l.ContractAddress())
	assert.Equal(t, uint64(0), l.SeriesCount())

	events := l.Events(0, 0)
	require.Len(t, events, 1)
	assert.Equal(t, interfaces.EventOwnershipTransferred, events[0].Type)
	assert.Equal(t, common.Address{}, events[0].PreviousOwner)
	assert.Equal(t, deployer, events[0].NewOwner)
	assert.Equal(t, uint64(1), events[0].Block)

	_, err := New(context.Background(), &Config{
		ContractAddress: contractAddr,
		Runtime:         &mockRuntime{},
		Store:           NewMemoryStore(),
	})
	assert.ErrorIs(t, err, interfaces.ErrZeroAddress)
}

func TestGenesisSeriesScenario(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, NewMemoryStore(), &mockRuntime{})

	receipt, id, err := l.CreateSeries(ctx, alice, "Genesis", 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)
	assert.Equal(t, interfaces.ReceiptStatusSuccessful, receipt.Status)
	require.Len(t, receipt.Events, 1)
	assert.Equal(t, interfaces.EventSeriesCreated, receipt.Events[0].Type)
	assert.Equal(t, alice, receipt.Events[0].Creator)
	assert.Equal(t, "Genesis", receipt.Events[0].Name)
	assert.Equal(t, uint32(3), receipt.Events[0].MaxSupply)

	assert.Equal(t, uint64(1), l.SeriesCount())
	s, err := l.GetSeries(0)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Series{ID: 0, Name: "Genesis", MaxSupply: 3, Minted: 0, Creator: alice}, *s)

	receipt, err = l.MintOne(ctx, bob, 0)
	require.NoError(t, err)
	require.Len(t, receipt.Events, 1)
	assert.Equal(t, interfaces.EventMinted, receipt.Events[0].Type)
	assert.Equal(t, bob, receipt.Events[0].Minter)
	assert.Equal(t, uint32(1), receipt.Events[0].Amount)

	bal, err := l.BalanceOf(bob, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), bal)

	_, err = l.Mint(ctx, bob, 0, 2)
	require.NoError(t, err)

	s, err = l.GetSeries(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), s.Minted)
	bal, err = l.BalanceOf(bob, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), bal)

	eventsBefore := l.EventCount()
	_, err = l.MintOne(ctx, bob, 0)
	assert.ErrorIs(t, err, interfaces.ErrMaxSupplyExceeded)

	s, err = l.GetSeries(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), s.Minted)
	assert.Equal(t, eventsBefore, l.EventCount())

	assertSupplyInvariants(t, l, alice, bob, deployer)
}

func TestCreateSeriesValidation(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, NewMemoryStore(), &mockRuntime{})

	_, _, err := l.CreateSeries(ctx, alice, "empty", 0)
	assert.ErrorIs(t, err, interfaces.ErrInvalidMaxSupply)
	assert.Equal(t, uint64(0), l.SeriesCount())

	for i, name := range []string{"", "second", "third ✨"} {
		_, id, err := l.CreateSeries(ctx, bob, name, math.MaxUint32)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), id)
	}

	listed := l.ListSeries(1, 1)
	require.Len(t, listed, 1)
	assert.Equal(t, "second", listed[0].Name)
	assert.Empty(t, l.ListSeries(5, 10))
	assert.Len(t, l.ListSeries(0, 0), 3)
}

func TestMintValidation(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, NewMemoryStore(), &mockRuntime{})

	_, err := l.MintOne(ctx, bob, 0)
	assert.ErrorIs(t, err, interfaces.ErrSeriesNotFound)

	_, _, err = l.CreateSeries(ctx, alice, "big", math.MaxUint32)
	require.NoError(t, err)

	_, err = l.Mint(ctx, bob, 0, 0)
	assert.ErrorIs(t, err, interfaces.ErrInvalidAmount)

	_, err = l.Mint(ctx, bob, 0, math.MaxUint32-1)
	require.NoError(t, err)

	// minted + amount would wrap a uint32
	_, err = l.Mint(ctx, alice, 0, 2)
	assert.ErrorIs(t, err, interfaces.ErrMaxSupplyExceeded)

	_, err = l.MintOne(ctx, alice, 0)
	require.NoError(t, err)

	s, err := l.GetSeries(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), s.Minted)
	assert.Equal(t, uint32(0), s.Remaining())

	_, err = l.BalanceOf(bob, 9)
	assert.ErrorIs(t, err, interfaces.ErrSeriesNotFound)
	_, err = l.GetSeries(9)
	assert.ErrorIs(t, err, interfaces.ErrSeriesNotFound)

	assertSupplyInvariants(t, l, alice, bob)
}

func TestTransferOwnership(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, NewMemoryStore(), &mockRuntime{})

	_, err := l.TransferOwnership(ctx, alice, alice)
	assert.ErrorIs(t, err, interfaces.ErrNotOwner)

	_, err = l.TransferOwnership(ctx, deployer, common.Address{})
	assert.ErrorIs(t, err, interfaces.ErrZeroAddress)
	assert.Equal(t, deployer, l.Owner())

	receipt, err := l.TransferOwnership(ctx, deployer, alice)
	require.NoError(t, err)
	require.Len(t, receipt.Events, 1)
	assert.Equal(t, interfaces.EventOwnershipTransferred, receipt.Events[0].Type)
	assert.Equal(t, deployer, receipt.Events[0].PreviousOwner)
	assert.Equal(t, alice, receipt.Events[0].NewOwner)
	assert.Equal(t, alice, l.Owner())

	_, err = l.TransferOwnership(ctx, deployer, bob)
	assert.ErrorIs(t, err, interfaces.ErrNotOwner)
}

func TestSetObscuraOwner(t *testing.T) {
	ctx := context.Background()
	rt := &mockRuntime{}
	l := newTestLedger(t, NewMemoryStore(), rt)

	handle := interfaces.Handle{0x01, 0x02}
	proof := []byte{0xaa, 0xbb}

	_, err := l.SetObscuraOwner(ctx, deployer, 0, handle, proof)
	assert.ErrorIs(t, err, interfaces.ErrSeriesNotFound)

	_, _, err = l.CreateSeries(ctx, alice, "Genesis", 3)
	require.NoError(t, err)

	h, err := l.GetObscuraOwner(0)
	require.NoError(t, err)
	assert.True(t, h.IsZero())

	_, err = l.SetObscuraOwner(ctx, alice, 0, handle, proof)
	assert.ErrorIs(t, err, interfaces.ErrNotOwner)
	rt.AssertNotCalled(t, "VerifyInput", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	badProof := []byte{0x00}
	rt.On("VerifyInput", mock.Anything, contractAddr, deployer, handle, badProof).Return(interfaces.ErrInvalidProof).Once()
	eventsBefore := l.EventCount()
	_, err = l.SetObscuraOwner(ctx, deployer, 0, handle, badProof)
	assert.ErrorIs(t, err, interfaces.ErrInvalidProof)
	assert.Equal(t, eventsBefore, l.EventCount())
	h, err = l.GetObscuraOwner(0)
	require.NoError(t, err)
	assert.True(t, h.IsZero())

	rt.On("VerifyInput", mock.Anything, contractAddr, deployer, handle, proof).Return(nil).Once()
	rt.On("Allow", mock.Anything, handle, contractAddr).Return(nil).Once()
	rt.On("Allow", mock.Anything, handle, deployer).Return(nil).Once()

	receipt, err := l.SetObscuraOwner(ctx, deployer, 0, handle, proof)
	require.NoError(t, err)
	require.Len(t, receipt.Events, 1)
	assert.Equal(t, interfaces.EventObscuraOwnerUpdated, receipt.Events[0].Type)
	assert.Equal(t, uint64(0), receipt.Events[0].SeriesID)

	h, err = l.GetObscuraOwner(0)
	require.NoError(t, err)
	assert.Equal(t, handle, h)

	// overwrite
	next := interfaces.Handle{0x03}
	rt.On("VerifyInput", mock.Anything, contractAddr, deployer, next, proof).Return(nil).Once()
	rt.On("Allow", mock.Anything, next, mock.Anything).Return(nil).Twice()
	_, err = l.SetObscuraOwner(ctx, deployer, 0, next, proof)
	require.NoError(t, err)
	h, err = l.GetObscuraOwner(0)
	require.NoError(t, err)
	assert.Equal(t, next, h)

	rt.AssertExpectations(t)
}

func TestFailedCommitLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	rt := &mockRuntime{}
	store := &failingStore{MemoryStore: NewMemoryStore()}
	l := newTestLedger(t, store, rt)

	_, _, err := l.CreateSeries(ctx, alice, "Genesis", 3)
	require.NoError(t, err)
	_, err = l.MintOne(ctx, bob, 0)
	require.NoError(t, err)

	store.fail = true
	eventsBefore := l.EventCount()

	_, _, err = l.CreateSeries(ctx, alice, "lost", 5)
	assert.Error(t, err)
	_, err = l.Mint(ctx, bob, 0, 2)
	assert.Error(t, err)
	_, err = l.TransferOwnership(ctx, deployer, alice)
	assert.Error(t, err)

	handle := interfaces.Handle{0x09}
	rt.On("VerifyInput", mock.Anything, contractAddr, deployer, handle, mock.Anything).Return(nil)
	rt.On("Allow", mock.Anything, handle, mock.Anything).Return(nil)
	_, err = l.SetObscuraOwner(ctx, deployer, 0, handle, []byte{0x01})
	assert.Error(t, err)

	assert.Equal(t, uint64(1), l.SeriesCount())
	s, err := l.GetSeries(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), s.Minted)
	bal, err := l.BalanceOf(bob, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), bal)
	assert.Equal(t, deployer, l.Owner())
	h, err := l.GetObscuraOwner(0)
	require.NoError(t, err)
	assert.True(t, h.IsZero())
	assert.Equal(t, eventsBefore, l.EventCount())

	// the next successful mutation continues the sequence without gaps
	store.fail = false
	receipt, err := l.MintOne(ctx, bob, 0)
	require.NoError(t, err)
	assert.Equal(t, eventsBefore, receipt.Events[0].Seq)
}

func TestFailedGrantAbortsSetObscuraOwner(t *testing.T) {
	ctx := context.Background()
	rt := &mockRuntime{}
	l := newTestLedger(t, NewMemoryStore(), rt)

	_, _, err := l.CreateSeries(ctx, alice, "Genesis", 3)
	require.NoError(t, err)

	handle := interfaces.Handle{0x0a}
	rt.On("VerifyInput", mock.Anything, contractAddr, deployer, handle, mock.Anything).Return(nil)
	rt.On("Allow", mock.Anything, handle, contractAddr).Return(nil).Once()
	rt.On("Allow", mock.Anything, handle, deployer).Return(errors.New("acl unavailable")).Once()

	eventsBefore := l.EventCount()
	_, err = l.SetObscuraOwner(ctx, deployer, 0, handle, []byte{0x01})
	assert.ErrorContains(t, err, "acl unavailable")

	h, err := l.GetObscuraOwner(0)
	require.NoError(t, err)
	assert.True(t, h.IsZero())
	assert.Equal(t, eventsBefore, l.EventCount())
	rt.AssertExpectations(t)
}

func TestReopenWithOtherContract(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rt := &mockRuntime{}
	rt.On("VerifyInput", mock.Anything, contractAddr, deployer, mock.Anything, mock.Anything).Return(nil)
	rt.On("Allow", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	l := newTestLedger(t, store, rt)
	_, _, err := l.CreateSeries(ctx, alice, "Genesis", 3)
	require.NoError(t, err)
	_, err = l.SetObscuraOwner(ctx, deployer, 0, interfaces.Handle{0x0b}, []byte{0x01})
	require.NoError(t, err)

	_, err = New(ctx, &Config{
		ContractAddress: common.HexToAddress("0x00000000000000000000000000000000000000ee"),
		Runtime:         rt,
		Store:           store,
		Log:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	assert.ErrorIs(t, err, ErrContractMismatch)

	// a zero address adopts the stored contract
	reopened, err := New(ctx, &Config{
		Runtime: rt,
		Store:   store,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	assert.Equal(t, contractAddr, reopened.ContractAddress())
	rt.AssertCalled(t, "Allow", mock.Anything, interfaces.Handle{0x0b}, contractAddr)
}

func TestGenesisRequiresContract(t *testing.T) {
	_, err := New(context.Background(), &Config{
		Deployer: deployer,
		Runtime:  &mockRuntime{},
		Store:    NewMemoryStore(),
	})
	assert.ErrorIs(t, err, interfaces.ErrZeroAddress)
}

func TestEventsAndSubscriptions(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, NewMemoryStore(), &mockRuntime{})

	sub := l.Subscribe(16)
	slow := l.Subscribe(1)

	_, _, err := l.CreateSeries(ctx, alice, "a", 10)
	require.NoError(t, err)
	_, err = l.Mint(ctx, bob, 0, 4)
	require.NoError(t, err)

	ev := <-sub.Events()
	assert.Equal(t, interfaces.EventSeriesCreated, ev.Type)
	assert.Equal(t, uint64(1), ev.Seq)
	ev = <-sub.Events()
	assert.Equal(t, interfaces.EventMinted, ev.Type)
	assert.Equal(t, uint64(2), ev.Seq)

	// the slow subscriber got the first event, then was dropped
	ev, ok := <-slow.Events()
	require.True(t, ok)
	assert.Equal(t, interfaces.EventSeriesCreated, ev.Type)
	_, ok = <-slow.Events()
	assert.False(t, ok)

	all := l.Events(0, 0)
	require.Len(t, all, 3)
	for i, e := range all {
		assert.Equal(t, uint64(i), e.Seq)
	}
	assert.Equal(t, all[1:2], l.Events(1, 1))
	assert.Empty(t, l.Events(10, 0))

	sub.Unsubscribe()
	_, ok = <-sub.Events()
	assert.False(t, ok)
	sub.Unsubscribe()
}

func TestTxHash(t *testing.T) {
	h1, err := TxHash(2, alice, "mint", uint64(0), uint32(3))
	require.NoError(t, err)
	h2, err := TxHash(2, alice, "mint", uint64(0), uint32(3))
	require.NoError(t, err)
	h3, err := TxHash(3, alice, "mint", uint64(0), uint32(3))
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)

	ctx := context.Background()
	l := newTestLedger(t, NewMemoryStore(), &mockRuntime{})
	r1, err := l.Session(alice).CreateSeries(ctx, "x", 1)
	require.NoError(t, err)
	r2, err := l.Session(alice).CreateSeries(ctx, "x", 1)
	require.NoError(t, err)
	assert.NotEqual(t, r1.TxHash, r2.TxHash)
	assert.Equal(t, r1.Block+1, r2.Block)
}

func TestSession(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, NewMemoryStore(), &mockRuntime{})

	var m interfaces.ObscuraMint = l.Session(bob)

	receipt, err := m.CreateSeries(ctx, "bob's", 2)
	require.NoError(t, err)
	id, ok := receipt.CreatedSeriesID()
	require.True(t, ok)

	_, err = m.MintOne(ctx, id)
	require.NoError(t, err)
	bal, err := m.BalanceOf(ctx, bob, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), bal)

	count, err := m.SeriesCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	_, err = m.TransferOwnership(ctx, bob)
	assert.ErrorIs(t, err, interfaces.ErrNotOwner)

	owner, err := l.Session(deployer).Owner(ctx)
	require.NoError(t, err)
	assert.Equal(t, deployer, owner)
}
