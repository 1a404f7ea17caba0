package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/obscura-mint/interfaces"
)

// Session binds the ledger to one caller so it can be used through
// interfaces.ObscuraMint.
type Session struct {
	ledger *Ledger
	caller common.Address
}

var _ interfaces.ObscuraMint = (*Session)(nil)

func (l *Ledger) Session(caller common.Address) *Session {
	return &Session{ledger: l, caller: caller}
}

func (s *Session) Caller() common.Address {
	return s.caller
}

func (s *Session) ContractAddress() common.Address {
	return s.ledger.ContractAddress()
}

func (s *Session) Owner(ctx context.Context) (common.Address, error) {
	return s.ledger.Owner(), nil
}

func (s *Session) TransferOwnership(ctx context.Context, newOwner common.Address) (*interfaces.Receipt, error) {
	return s.ledger.TransferOwnership(ctx, s.caller, newOwner)
}

func (s *Session) CreateSeries(ctx context.Context, name string, maxSupply uint32) (*interfaces.Receipt, error) {
	receipt, _, err := s.ledger.CreateSeries(ctx, s.caller, name, maxSupply)
	return receipt, err
}

func (s *Session) Mint(ctx context.Context, seriesID uint64, amount uint32) (*interfaces.Receipt, error) {
	return s.ledger.Mint(ctx, s.caller, seriesID, amount)
}

func (s *Session) MintOne(ctx context.Context, seriesID uint64) (*interfaces.Receipt, error) {
	return s.ledger.MintOne(ctx, s.caller, seriesID)
}

func (s *Session) GetSeries(ctx context.Context, seriesID uint64) (*interfaces.Series, error) {
	return s.ledger.GetSeries(seriesID)
}

func (s *Session) SeriesCount(ctx context.Context) (uint64, error) {
	return s.ledger.SeriesCount(), nil
}

func (s *Session) BalanceOf(ctx context.Context, account common.Address, seriesID uint64) (uint64, error) {
	return s.ledger.BalanceOf(account, seriesID)
}

func (s *Session) GetObscuraOwner(ctx context.Context, seriesID uint64) (interfaces.Handle, error) {
	return s.ledger.GetObscuraOwner(seriesID)
}

func (s *Session) SetObscuraOwner(ctx context.Context, seriesID uint64, handle interfaces.Handle, inputProof []byte) (*interfaces.Receipt, error) {
	return s.ledger.SetObscuraOwner(ctx, s.caller, seriesID, handle, inputProof)
}
