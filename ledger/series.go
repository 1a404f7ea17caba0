package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/obscura-mint/interfaces"
	"github.com/ruteri/obscura-mint/metrics"
)

// CreateSeries registers a new series with the next sequential id.
// Anyone may create a series; maxSupply must be at least 1.
func (l *Ledger) CreateSeries(ctx context.Context, caller common.Address, name string, maxSupply uint32) (*interfaces.Receipt, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := uint64(len(l.series))
	receipt, err := l.execute(ctx, caller, "createSeries", []interface{}{name, maxSupply}, func(t *tx) error {
		if maxSupply == 0 {
			return interfaces.ErrInvalidMaxSupply
		}

		t.cs.Series = append(t.cs.Series, interfaces.Series{
			ID:        id,
			Name:      name,
			MaxSupply: maxSupply,
			Creator:   caller,
		})
		t.emit(interfaces.Event{
			Type:      interfaces.EventSeriesCreated,
			SeriesID:  id,
			Creator:   caller,
			Name:      name,
			MaxSupply: maxSupply,
		})
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	metrics.SetSeriesTotal(uint64(len(l.series)))
	return receipt, id, nil
}

// Mint credits amount units of a series to the caller.
func (l *Ledger) Mint(ctx context.Context, caller common.Address, seriesID uint64, amount uint32) (*interfaces.Receipt, error) {
	return l.mint(ctx, caller, "mint", seriesID, amount)
}

// MintOne credits a single unit of a series to the caller.
func (l *Ledger) MintOne(ctx context.Context, caller common.Address, seriesID uint64) (*interfaces.Receipt, error) {
	return l.mint(ctx, caller, "mintOne", seriesID, 1)
}

func (l *Ledger) mint(ctx context.Context, caller common.Address, method string, seriesID uint64, amount uint32) (*interfaces.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	args := []interface{}{seriesID, amount}
	if method == "mintOne" {
		args = args[:1]
	}

	receipt, err := l.execute(ctx, caller, method, args, func(t *tx) error {
		s, err := l.seriesLocked(seriesID)
		if err != nil {
			return err
		}
		if amount == 0 {
			return interfaces.ErrInvalidAmount
		}
		if uint64(s.Minted)+uint64(amount) > uint64(s.MaxSupply) {
			return fmt.Errorf("series %d has %d of %d left: %w", seriesID, s.Remaining(), s.MaxSupply, interfaces.ErrMaxSupplyExceeded)
		}

		updated := *s
		updated.Minted += amount
		t.cs.Series = append(t.cs.Series, updated)

		key := balanceKey{caller, seriesID}
		t.cs.Balances = append(t.cs.Balances, Balance{
			Account:  caller,
			SeriesID: seriesID,
			Amount:   l.balances[key] + uint64(amount),
		})

		t.emit(interfaces.Event{
			Type:     interfaces.EventMinted,
			SeriesID: seriesID,
			Minter:   caller,
			Amount:   amount,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SetMintedTotal(l.minted)
	return receipt, nil
}

// GetSeries returns a copy of the series.
func (l *Ledger) GetSeries(seriesID uint64) (*interfaces.Series, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, err := l.seriesLocked(seriesID)
	if err != nil {
		return nil, err
	}
	out := *s
	return &out, nil
}

// SeriesCount returns the number of series ever created.
func (l *Ledger) SeriesCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.series))
}

// ListSeries returns up to limit series starting at offset, in id order.
func (l *Ledger) ListSeries(offset, limit uint64) []interfaces.Series {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := uint64(len(l.series))
	if offset >= total {
		return []interfaces.Series{}
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	out := make([]interfaces.Series, 0, end-offset)
	for _, s := range l.series[offset:end] {
		out = append(out, *s)
	}
	return out
}

// BalanceOf returns how many units of a series the account holds.
func (l *Ledger) BalanceOf(account common.Address, seriesID uint64) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.seriesLocked(seriesID); err != nil {
		return 0, err
	}
	return l.balances[balanceKey{account, seriesID}], nil
}
