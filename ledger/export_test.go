package ledger

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/obscura-mint/interfaces"
	"github.com/ruteri/obscura-mint/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestExportAndRestore(t *testing.T) {
	ctx := context.Background()
	rt := &mockRuntime{}
	rt.On("VerifyInput", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	rt.On("Allow", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	l := newTestLedger(t, NewMemoryStore(), rt)
	_, _, err := l.CreateSeries(ctx, alice, "Genesis", 3)
	require.NoError(t, err)
	_, err = l.Mint(ctx, bob, 0, 2)
	require.NoError(t, err)
	handle := interfaces.Handle{0x0c}
	_, err = l.SetObscuraOwner(ctx, deployer, 0, handle, []byte{0x01})
	require.NoError(t, err)

	backend := storage.NewMemoryBackend("export")
	id, err := l.Export(ctx, backend)
	require.NoError(t, err)

	snap, err := FetchSnapshot(ctx, backend, id)
	require.NoError(t, err)
	assert.Equal(t, contractAddr, snap.Contract)

	store := NewMemoryStore()
	require.NoError(t, snap.Restore(ctx, store))
	assert.ErrorIs(t, snap.Restore(ctx, store), ErrStoreNotEmpty)

	restored := newTestLedger(t, store, rt)
	assert.Equal(t, deployer, restored.Owner())
	assert.Equal(t, l.EventCount(), restored.EventCount())
	assert.Equal(t, l.Events(0, 100), restored.Events(0, 100))

	s, err := restored.GetSeries(0)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Series{ID: 0, Name: "Genesis", MaxSupply: 3, Minted: 2, Creator: alice}, *s)

	balance, err := restored.BalanceOf(bob, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), balance)

	h, err := restored.GetObscuraOwner(0)
	require.NoError(t, err)
	assert.Equal(t, handle, h)
	rt.AssertCalled(t, "Allow", mock.Anything, handle, deployer)

	// minting continues where the export left off
	_, err = restored.MintOne(ctx, alice, 0)
	require.NoError(t, err)
	_, err = restored.MintOne(ctx, alice, 0)
	assert.ErrorIs(t, err, interfaces.ErrMaxSupplyExceeded)
}

func TestUnmarshalSnapshot_Invalid(t *testing.T) {
	_, err := UnmarshalSnapshot([]byte("not msgpack"))
	assert.Error(t, err)

	snap := &Snapshot{State: &Changeset{}}
	data, err := snap.Marshal()
	require.NoError(t, err)
	_, err = UnmarshalSnapshot(data)
	assert.ErrorContains(t, err, "no owner")

	owner := deployer
	snap = &Snapshot{State: &Changeset{Owner: &owner}}
	data, err = snap.Marshal()
	require.NoError(t, err)
	_, err = UnmarshalSnapshot(data)
	assert.ErrorContains(t, err, "no contract")
}

func validSnapshot() *Snapshot {
	owner := deployer
	return &Snapshot{
		Contract: contractAddr,
		State: &Changeset{
			Owner: &owner,
			Block: 3,
			Series: []interfaces.Series{
				{ID: 0, Name: "Genesis", MaxSupply: 3, Minted: 2, Creator: alice},
				{ID: 1, Name: "Second", MaxSupply: 1, Minted: 0, Creator: bob},
			},
			Balances: []Balance{
				{Account: alice, SeriesID: 0, Amount: 1},
				{Account: bob, SeriesID: 0, Amount: 1},
			},
			Handles: []HandleRecord{{SeriesID: 0, Handle: interfaces.Handle{0x01}, SetBy: deployer}},
			Events: []interfaces.Event{
				{Type: interfaces.EventOwnershipTransferred, Seq: 0, Block: 1, NewOwner: deployer},
				{Type: interfaces.EventSeriesCreated, Seq: 1, Block: 2, SeriesID: 0},
				{Type: interfaces.EventSeriesCreated, Seq: 2, Block: 3, SeriesID: 1},
			},
		},
	}
}

func TestSnapshotValidate(t *testing.T) {
	require.NoError(t, validSnapshot().Validate())

	tests := []struct {
		name   string
		modify func(s *Snapshot)
	}{
		{"zero contract", func(s *Snapshot) { s.Contract = common.Address{} }},
		{"zero owner", func(s *Snapshot) { s.State.Owner = &common.Address{} }},
		{"no supply", func(s *Snapshot) { s.State.Series[1].MaxSupply = 0 }},
		{"minted over cap", func(s *Snapshot) {
			s.State.Series[0].Minted = 4
			s.State.Balances[0].Amount = 3
		}},
		{"series out of order", func(s *Snapshot) { s.State.Series[0], s.State.Series[1] = s.State.Series[1], s.State.Series[0] }},
		{"balances do not add up", func(s *Snapshot) { s.State.Balances[1].Amount = 2 }},
		{"balance of unknown series", func(s *Snapshot) {
			s.State.Balances = append(s.State.Balances, Balance{Account: alice, SeriesID: 5, Amount: 0})
		}},
		{"duplicate balance", func(s *Snapshot) {
			s.State.Balances = append(s.State.Balances, Balance{Account: alice, SeriesID: 0, Amount: 0})
		}},
		{"handle of unknown series", func(s *Snapshot) { s.State.Handles[0].SeriesID = 2 }},
		{"zero handle", func(s *Snapshot) { s.State.Handles[0].Handle = interfaces.ZeroHandle }},
		{"event gap", func(s *Snapshot) { s.State.Events[2].Seq = 3 }},
		{"event blocks go back", func(s *Snapshot) { s.State.Events[2].Block = 1 }},
		{"event after last block", func(s *Snapshot) { s.State.Events[2].Block = 9 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := validSnapshot()
			tt.modify(snap)
			assert.ErrorIs(t, snap.Validate(), ErrInvalidSnapshot)

			store := NewMemoryStore()
			assert.ErrorIs(t, snap.Restore(context.Background(), store), ErrInvalidSnapshot)
			state, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Nil(t, state, "nothing is committed")
		})
	}
}

func TestRestoreBindsSnapshotContract(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, validSnapshot().Restore(ctx, store))

	state, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, state.Contract)
	assert.Equal(t, contractAddr, *state.Contract)

	rt := &mockRuntime{}
	rt.On("Allow", mock.Anything, interfaces.Handle{0x01}, mock.Anything).Return(nil)
	_, err = New(ctx, &Config{
		ContractAddress: alice,
		Runtime:         rt,
		Store:           store,
	})
	assert.ErrorIs(t, err, ErrContractMismatch)
}
