package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/obscura-mint/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockObscuraMint mocks the interfaces.ObscuraMint interface
type MockObscuraMint struct {
	mock.Mock
}

var _ interfaces.ObscuraMint = (*MockObscuraMint)(nil)

func (m *MockObscuraMint) ContractAddress() common.Address {
	args := m.Called()
	return args.Get(0).(common.Address)
}

func (m *MockObscuraMint) Owner(ctx context.Context) (common.Address, error) {
	args := m.Called(ctx)
	return args.Get(0).(common.Address), args.Error(1)
}

func (m *MockObscuraMint) TransferOwnership(ctx context.Context, newOwner common.Address) (*interfaces.Receipt, error) {
	args := m.Called(ctx, newOwner)
	return receiptArg(args, 0), args.Error(1)
}

func (m *MockObscuraMint) CreateSeries(ctx context.Context, name string, maxSupply uint32) (*interfaces.Receipt, error) {
	args := m.Called(ctx, name, maxSupply)
	return receiptArg(args, 0), args.Error(1)
}

func (m *MockObscuraMint) Mint(ctx context.Context, seriesID uint64, amount uint32) (*interfaces.Receipt, error) {
	args := m.Called(ctx, seriesID, amount)
	return receiptArg(args, 0), args.Error(1)
}

func (m *MockObscuraMint) MintOne(ctx context.Context, seriesID uint64) (*interfaces.Receipt, error) {
	args := m.Called(ctx, seriesID)
	return receiptArg(args, 0), args.Error(1)
}

// GetSeries mocks the GetSeries method
func (m *MockObscuraMint) GetSeries(ctx context.Context, seriesID uint64) (*interfaces.Series, error) {
	args := m.Called(ctx, seriesID)
	if s, ok := args.Get(0).(*interfaces.Series); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockObscuraMint) SeriesCount(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockObscuraMint) BalanceOf(ctx context.Context, account common.Address, seriesID uint64) (uint64, error) {
	args := m.Called(ctx, account, seriesID)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockObscuraMint) GetObscuraOwner(ctx context.Context, seriesID uint64) (interfaces.Handle, error) {
	args := m.Called(ctx, seriesID)
	return args.Get(0).(interfaces.Handle), args.Error(1)
}

func (m *MockObscuraMint) SetObscuraOwner(ctx context.Context, seriesID uint64, handle interfaces.Handle, inputProof []byte) (*interfaces.Receipt, error) {
	args := m.Called(ctx, seriesID, handle, inputProof)
	return receiptArg(args, 0), args.Error(1)
}

func receiptArg(args mock.Arguments, i int) *interfaces.Receipt {
	if r, ok := args.Get(i).(*interfaces.Receipt); ok {
		return r
	}
	return nil
}

// MockChainSource mocks ChainSource on top of MockObscuraMint.
type MockChainSource struct {
	MockObscuraMint
}

var _ ChainSource = (*MockChainSource)(nil)

func (m *MockChainSource) HeadBlock(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockChainSource) FilterEvents(ctx context.Context, from uint64, to *uint64) ([]interfaces.Event, error) {
	args := m.Called(ctx, from, to)
	events, _ := args.Get(0).([]interfaces.Event)
	return events, args.Error(1)
}
