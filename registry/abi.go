package registry

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ruteri/obscura-mint/interfaces"
)

// ObscuraMintABI is the ABI of the deployed ObscuraMint contract. Confidential
// fields (eaddress, externalEaddress) are bytes32 handles on the wire.
const ObscuraMintABI = `[
	{"inputs":[],"stateMutability":"nonpayable","type":"constructor"},
	{"inputs":[],"name":"NotOwner","type":"error"},
	{"inputs":[],"name":"MaxSupplyExceeded","type":"error"},
	{"inputs":[],"name":"InvalidMaxSupply","type":"error"},
	{"inputs":[],"name":"InvalidAmount","type":"error"},
	{"inputs":[],"name":"SeriesNotFound","type":"error"},
	{"inputs":[],"name":"ZeroAddress","type":"error"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"address","name":"previousOwner","type":"address"},
		{"indexed":true,"internalType":"address","name":"newOwner","type":"address"}
	],"name":"OwnershipTransferred","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"uint256","name":"seriesId","type":"uint256"},
		{"indexed":true,"internalType":"address","name":"creator","type":"address"},
		{"indexed":false,"internalType":"string","name":"name","type":"string"},
		{"indexed":false,"internalType":"uint32","name":"maxSupply","type":"uint32"}
	],"name":"SeriesCreated","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"uint256","name":"seriesId","type":"uint256"},
		{"indexed":true,"internalType":"address","name":"minter","type":"address"},
		{"indexed":false,"internalType":"uint32","name":"amount","type":"uint32"}
	],"name":"Minted","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"uint256","name":"seriesId","type":"uint256"}
	],"name":"ObscuraOwnerUpdated","type":"event"},
	{"inputs":[],"name":"owner","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"newOwner","type":"address"}],"name":"transferOwnership","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"seriesCount","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"seriesId","type":"uint256"}],"name":"getSeries","outputs":[
		{"internalType":"string","name":"name","type":"string"},
		{"internalType":"uint32","name":"maxSupply","type":"uint32"},
		{"internalType":"uint32","name":"minted","type":"uint32"},
		{"internalType":"address","name":"creator","type":"address"}
	],"stateMutability":"view","type":"function"},
	{"inputs":[
		{"internalType":"address","name":"account","type":"address"},
		{"internalType":"uint256","name":"seriesId","type":"uint256"}
	],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"seriesId","type":"uint256"}],"name":"getObscuraOwner","outputs":[{"internalType":"eaddress","name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
	{"inputs":[
		{"internalType":"string","name":"name","type":"string"},
		{"internalType":"uint32","name":"maxSupply","type":"uint32"}
	],"name":"createSeries","outputs":[{"internalType":"uint256","name":"seriesId","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[
		{"internalType":"uint256","name":"seriesId","type":"uint256"},
		{"internalType":"uint32","name":"amount","type":"uint32"}
	],"name":"mint","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"seriesId","type":"uint256"}],"name":"mintOne","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[
		{"internalType":"uint256","name":"seriesId","type":"uint256"},
		{"internalType":"externalEaddress","name":"encryptedObscuraOwner","type":"bytes32"},
		{"internalType":"bytes","name":"inputProof","type":"bytes"}
	],"name":"setObscuraOwner","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(ObscuraMintABI))
	if err != nil {
		panic(fmt.Sprintf("invalid ObscuraMint ABI: %v", err))
	}
	return parsed
}

// ErrReverted is returned for reverts that carry no known custom error.
var ErrReverted = errors.New("execution reverted")

var customErrors = map[string]error{
	"NotOwner":          interfaces.ErrNotOwner,
	"MaxSupplyExceeded": interfaces.ErrMaxSupplyExceeded,
	"InvalidMaxSupply":  interfaces.ErrInvalidMaxSupply,
	"InvalidAmount":     interfaces.ErrInvalidAmount,
	"SeriesNotFound":    interfaces.ErrSeriesNotFound,
	"ZeroAddress":       interfaces.ErrZeroAddress,
}

// DecodeRevert maps contract revert data to the matching sentinel error.
// Error(string) reverts are returned as ErrReverted with the reason attached.
func DecodeRevert(data []byte) error {
	if len(data) < 4 {
		return ErrReverted
	}

	for name, abiErr := range parsedABI.Errors {
		if bytes.Equal(data[:4], abiErr.ID[:4]) {
			if sentinel, ok := customErrors[name]; ok {
				return sentinel
			}
			return fmt.Errorf("%w: %s", ErrReverted, name)
		}
	}

	if reason, err := abi.UnpackRevert(data); err == nil {
		return fmt.Errorf("%w: %s", ErrReverted, reason)
	}
	return fmt.Errorf("%w: unknown revert data %x", ErrReverted, data)
}
