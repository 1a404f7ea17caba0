package registry

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ruteri/obscura-mint/interfaces"
)

var errUnknownEvent = errors.New("unknown event")

// DecodeLog converts an ObscuraMint log into an Event. Seq is the log's index
// in its block.
func DecodeLog(l *types.Log) (*interfaces.Event, error) {
	if len(l.Topics) == 0 {
		return nil, errUnknownEvent
	}
	abiEvent, err := parsedABI.EventByID(l.Topics[0])
	if err != nil {
		return nil, errUnknownEvent
	}

	ev := &interfaces.Event{
		Type:   interfaces.EventType(abiEvent.Name),
		Seq:    uint64(l.Index),
		Block:  l.BlockNumber,
		TxHash: l.TxHash,
	}

	wantTopics := 1
	for _, input := range abiEvent.Inputs {
		if input.Indexed {
			wantTopics++
		}
	}
	if len(l.Topics) != wantTopics {
		return nil, fmt.Errorf("%s: expected %d topics, got %d", abiEvent.Name, wantTopics, len(l.Topics))
	}

	fields := map[string]interface{}{}
	if err := abiEvent.Inputs.NonIndexed().UnpackIntoMap(fields, l.Data); err != nil {
		return nil, fmt.Errorf("%s: %w", abiEvent.Name, err)
	}

	switch ev.Type {
	case interfaces.EventOwnershipTransferred:
		ev.PreviousOwner = common.BytesToAddress(l.Topics[1].Bytes())
		ev.NewOwner = common.BytesToAddress(l.Topics[2].Bytes())
	case interfaces.EventSeriesCreated:
		ev.SeriesID = topicUint64(l.Topics[1])
		ev.Creator = common.BytesToAddress(l.Topics[2].Bytes())
		ev.Name, _ = fields["name"].(string)
		ev.MaxSupply, _ = fields["maxSupply"].(uint32)
	case interfaces.EventMinted:
		ev.SeriesID = topicUint64(l.Topics[1])
		ev.Minter = common.BytesToAddress(l.Topics[2].Bytes())
		ev.Amount, _ = fields["amount"].(uint32)
	case interfaces.EventObscuraOwnerUpdated:
		ev.SeriesID = topicUint64(l.Topics[1])
	default:
		return nil, errUnknownEvent
	}

	return ev, nil
}

func topicUint64(h common.Hash) uint64 {
	return new(big.Int).SetBytes(h.Bytes()).Uint64()
}
