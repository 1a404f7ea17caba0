package coprocessor

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vmihailenco/msgpack/v4"
)

const envelopeVersion = 1

// envelope is the stored form of an encrypted value. Its content id is the handle.
type envelope struct {
	Version    uint8  `msgpack:"v"`
	Contract   []byte `msgpack:"c"`
	Ciphertext []byte `msgpack:"ct"`
}

func newEnvelope(contract common.Address, ciphertext []byte) *envelope {
	return &envelope{
		Version:    envelopeVersion,
		Contract:   contract.Bytes(),
		Ciphertext: ciphertext,
	}
}

func (e *envelope) contract() common.Address {
	return common.BytesToAddress(e.Contract)
}

func (e *envelope) marshal() ([]byte, error) {
	return msgpack.Marshal(e)
}

func unmarshalEnvelope(data []byte) (*envelope, error) {
	var e envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if e.Version != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", e.Version)
	}
	if len(e.Contract) != common.AddressLength {
		return nil, errors.New("malformed envelope: bad contract address")
	}
	return &e, nil
}
