package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/obscura-mint/interfaces"
)

// SetObscuraOwner stores an encrypted address as the series' confidential
// owner field. Only the owner may call it. The input proof must bind the
// handle to this contract and to the caller. The contract and the caller are
// granted decryption rights on the handle before the write is committed, so a
// stored handle is always decryptable by them. Overwrites are allowed and keep
// no history.
func (l *Ledger) SetObscuraOwner(ctx context.Context, caller common.Address, seriesID uint64, handle interfaces.Handle, inputProof []byte) (*interfaces.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.execute(ctx, caller, "setObscuraOwner", []interface{}{seriesID, handle, inputProof}, func(t *tx) error {
		if err := l.onlyOwner(caller); err != nil {
			return err
		}
		if _, err := l.seriesLocked(seriesID); err != nil {
			return err
		}

		if err := l.runtime.VerifyInput(ctx, l.contract, caller, handle, inputProof); err != nil {
			return fmt.Errorf("series %d: %w", seriesID, err)
		}

		record := HandleRecord{
			SeriesID: seriesID,
			Handle:   handle,
			SetBy:    caller,
		}
		if err := l.grant(ctx, record); err != nil {
			return err
		}

		t.cs.Handles = append(t.cs.Handles, record)
		t.emit(interfaces.Event{
			Type:     interfaces.EventObscuraOwnerUpdated,
			SeriesID: seriesID,
		})
		return nil
	})
}

// GetObscuraOwner returns the handle stored for a series, or the zero handle
// if it was never set. The handle is public; reading its cleartext requires
// an authorized user decryption.
func (l *Ledger) GetObscuraOwner(seriesID uint64) (interfaces.Handle, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.seriesLocked(seriesID); err != nil {
		return interfaces.ZeroHandle, err
	}
	return l.handles[seriesID].Handle, nil
}
