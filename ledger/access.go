package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/obscura-mint/interfaces"
)

// Owner returns the current owner.
func (l *Ledger) Owner() common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.owner
}

// TransferOwnership hands ownership to newOwner. Only the owner may call it
// and the zero address is rejected. Decryption rights already granted on
// stored handles stay with the accounts that set them.
func (l *Ledger) TransferOwnership(ctx context.Context, caller, newOwner common.Address) (*interfaces.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.execute(ctx, caller, "transferOwnership", []interface{}{newOwner}, func(t *tx) error {
		if err := l.onlyOwner(caller); err != nil {
			return err
		}
		if newOwner == (common.Address{}) {
			return interfaces.ErrZeroAddress
		}

		previous := l.owner
		t.cs.Owner = &newOwner
		t.emit(interfaces.Event{
			Type:          interfaces.EventOwnershipTransferred,
			PreviousOwner: previous,
			NewOwner:      newOwner,
		})
		return nil
	})
}

func (l *Ledger) onlyOwner(caller common.Address) error {
	if caller != l.owner {
		return interfaces.ErrNotOwner
	}
	return nil
}
