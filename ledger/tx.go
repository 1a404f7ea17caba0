package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ruteri/obscura-mint/interfaces"
)

// TxHash identifies a mutation: keccak256(rlp([block, caller, method, args...])).
func TxHash(block uint64, caller common.Address, method string, args ...interface{}) (common.Hash, error) {
	fields := make([]interface{}, 0, 3+len(args))
	fields = append(fields, block, caller, method)
	fields = append(fields, args...)

	encoded, err := rlp.EncodeToBytes(fields)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// tx accumulates the writes of one mutation before they are committed.
type tx struct {
	block   uint64
	hash    common.Hash
	caller  common.Address
	nextSeq uint64
	cs      *Changeset
}

func (t *tx) emit(ev interfaces.Event) {
	ev.Seq = t.nextSeq
	ev.Block = t.block
	ev.TxHash = t.hash
	t.nextSeq++
	t.cs.Events = append(t.cs.Events, ev)
}

func (t *tx) receipt() *interfaces.Receipt {
	events := make([]interfaces.Event, len(t.cs.Events))
	copy(events, t.cs.Events)
	return &interfaces.Receipt{
		TxHash: t.hash,
		Block:  t.block,
		Status: interfaces.ReceiptStatusSuccessful,
		Events: events,
	}
}
