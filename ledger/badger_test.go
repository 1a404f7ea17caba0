package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/obscura-mint/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBadgerStorePersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handle := interfaces.Handle{0xde, 0xad}
	proof := []byte{0x01}

	store, err := OpenBadger(dir, logger)
	require.NoError(t, err)

	rt := &mockRuntime{}
	rt.On("VerifyInput", mock.Anything, contractAddr, deployer, handle, proof).Return(nil)
	rt.On("Allow", mock.Anything, handle, mock.Anything).Return(nil)

	l := newTestLedger(t, store, rt)
	_, _, err = l.CreateSeries(ctx, alice, "Genesis", 3)
	require.NoError(t, err)
	_, _, err = l.CreateSeries(ctx, bob, "Second", 10)
	require.NoError(t, err)
	_, err = l.Mint(ctx, bob, 0, 2)
	require.NoError(t, err)
	_, err = l.MintOne(ctx, alice, 1)
	require.NoError(t, err)
	_, err = l.SetObscuraOwner(ctx, deployer, 0, handle, proof)
	require.NoError(t, err)
	_, err = l.TransferOwnership(ctx, deployer, alice)
	require.NoError(t, err)

	eventsBefore := l.Events(0, 0)
	require.NoError(t, l.Close())

	store, err = OpenBadger(dir, logger)
	require.NoError(t, err)
	defer store.Close()

	_, err = New(ctx, &Config{
		ContractAddress: common.HexToAddress("0x00000000000000000000000000000000000000ee"),
		Runtime:         &mockRuntime{},
		Store:           store,
		Log:             logger,
	})
	require.ErrorIs(t, err, ErrContractMismatch)

	restoredRT := &mockRuntime{}
	restoredRT.On("Allow", mock.Anything, handle, contractAddr).Return(nil).Once()
	restoredRT.On("Allow", mock.Anything, handle, deployer).Return(nil).Once()

	restored := newTestLedger(t, store, restoredRT)
	restoredRT.AssertExpectations(t)

	assert.Equal(t, alice, restored.Owner())
	assert.Equal(t, uint64(2), restored.SeriesCount())

	s, err := restored.GetSeries(0)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Series{ID: 0, Name: "Genesis", MaxSupply: 3, Minted: 2, Creator: alice}, *s)
	s, err = restored.GetSeries(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), s.Minted)

	bal, err := restored.BalanceOf(bob, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), bal)
	bal, err = restored.BalanceOf(alice, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), bal)

	h, err := restored.GetObscuraOwner(0)
	require.NoError(t, err)
	assert.Equal(t, handle, h)
	h, err = restored.GetObscuraOwner(1)
	require.NoError(t, err)
	assert.True(t, h.IsZero())

	assert.Equal(t, eventsBefore, restored.Events(0, 0))

	// the restored ledger keeps numbering where the old one stopped
	receipt, err := restored.MintOne(ctx, bob, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(eventsBefore)), receipt.Events[0].Seq)
	assert.Equal(t, eventsBefore[len(eventsBefore)-1].Block+1, receipt.Block)

	_, err = restored.MintOne(ctx, bob, 0)
	assert.ErrorIs(t, err, interfaces.ErrMaxSupplyExceeded)
}

func TestBadgerStoreInMemory(t *testing.T) {
	ctx := context.Background()
	store, err := OpenBadger("", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer store.Close()

	cs, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cs)

	owner, contract := deployer, contractAddr
	require.NoError(t, store.Commit(ctx, &Changeset{
		Contract: &contract,
		Owner:    &owner,
		Block:    4,
		Series:   []interfaces.Series{{ID: 0, Name: "a", MaxSupply: 2, Minted: 1, Creator: alice}},
		Balances: []Balance{{Account: alice, SeriesID: 0, Amount: 1}},
		Events:   []interfaces.Event{{Type: interfaces.EventMinted, Seq: 0, Block: 4, SeriesID: 0, Minter: alice, Amount: 1}},
	}))

	cs, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cs)
	assert.Equal(t, deployer, *cs.Owner)
	require.NotNil(t, cs.Contract)
	assert.Equal(t, contractAddr, *cs.Contract)
	assert.Equal(t, uint64(4), cs.Block)
	assert.Equal(t, []Balance{{Account: alice, SeriesID: 0, Amount: 1}}, cs.Balances)
	require.Len(t, cs.Events, 1)
	assert.Equal(t, alice, cs.Events[0].Minter)
	assert.Empty(t, cs.Handles)
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Commit(context.Background(), &Changeset{}), ErrStoreClosed)
}
