package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Handle is the 32-byte reference to an encrypted value held by the coprocessor.
// The zero handle means "unset".
type Handle [32]byte

// ZeroHandle is the value of a confidential field that was never set.
var ZeroHandle Handle

// HandleFromHex parses a 0x-prefixed or bare 64-character hex string.
func HandleFromHex(s string) (Handle, error) {
	clean := strings.TrimPrefix(s, "0x")
	if len(clean) != 64 {
		return Handle{}, errors.New("invalid handle length: hex string must be 64 characters")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return Handle{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var h Handle
	copy(h[:], raw)
	return h, nil
}

func (h Handle) IsZero() bool {
	return h == ZeroHandle
}

// Hex returns the 0x-prefixed hex encoding.
func (h Handle) Hex() string {
	return hexutil.Encode(h[:])
}

func (h Handle) String() string {
	return h.Hex()
}

// ContentID returns the storage key of the sealed envelope behind the handle.
func (h Handle) ContentID() ContentID {
	return ContentID(h)
}

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

func (h *Handle) UnmarshalText(input []byte) error {
	parsed, err := HandleFromHex(string(input))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Series is a numbered NFT-like series with a bounded supply.
type Series struct {
	ID        uint64         `json:"id"`
	Name      string         `json:"name"`
	MaxSupply uint32         `json:"max_supply"`
	Minted    uint32         `json:"minted"`
	Creator   common.Address `json:"creator"`
}

// Remaining returns how many units can still be minted.
func (s *Series) Remaining() uint32 {
	return s.MaxSupply - s.Minted
}

// EventType names a ledger event.
type EventType string

const (
	EventOwnershipTransferred EventType = "OwnershipTransferred"
	EventSeriesCreated        EventType = "SeriesCreated"
	EventMinted               EventType = "Minted"
	EventObscuraOwnerUpdated  EventType = "ObscuraOwnerUpdated"
)

// Event is a flat record of everything a ledger mutation emits.
// Only the fields relevant to Type are populated.
type Event struct {
	Type   EventType   `json:"type"`
	Seq    uint64      `json:"seq"`
	Block  uint64      `json:"block"`
	TxHash common.Hash `json:"tx_hash"`

	SeriesID      uint64         `json:"series_id"`
	Creator       common.Address `json:"creator"`
	Minter        common.Address `json:"minter"`
	PreviousOwner common.Address `json:"previous_owner"`
	NewOwner      common.Address `json:"new_owner"`
	Name          string         `json:"name,omitempty"`
	MaxSupply     uint32         `json:"max_supply,omitempty"`
	Amount        uint32         `json:"amount,omitempty"`
}

const (
	// ReceiptStatusFailed matches the EVM receipt status of a reverted transaction.
	ReceiptStatusFailed = uint64(0)
	// ReceiptStatusSuccessful matches the EVM receipt status of a successful transaction.
	ReceiptStatusSuccessful = uint64(1)
)

// Receipt is returned by every successful mutation.
type Receipt struct {
	TxHash common.Hash `json:"tx_hash"`
	Block  uint64      `json:"block"`
	Status uint64      `json:"status"`
	Events []Event     `json:"events"`
}

// CreatedSeriesID returns the id from the receipt's SeriesCreated event.
func (r *Receipt) CreatedSeriesID() (uint64, bool) {
	for _, ev := range r.Events {
		if ev.Type == EventSeriesCreated {
			return ev.SeriesID, true
		}
	}
	return 0, false
}
