package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ruteri/obscura-mint/interfaces"
)

// ContractInfoResponse describes the contract served by a node.
type ContractInfoResponse struct {
	ContractAddress common.Address             `json:"contract_address"`
	Owner           common.Address             `json:"owner"`
	SeriesCount     uint64                     `json:"series_count"`
	Coprocessor     interfaces.CoprocessorInfo `json:"coprocessor"`
}

type OwnerResponse struct {
	Owner common.Address `json:"owner"`
}

type TransferOwnershipRequest struct {
	NewOwner common.Address `json:"new_owner"`
}

type CreateSeriesRequest struct {
	Name      string `json:"name"`
	MaxSupply uint32 `json:"max_supply"`
}

// CreateSeriesResponse carries the id assigned to the new series next to the
// receipt it was created in.
type CreateSeriesResponse struct {
	SeriesID uint64              `json:"series_id"`
	Receipt  *interfaces.Receipt `json:"receipt"`
}

type MintRequest struct {
	Amount uint32 `json:"amount"`
}

type SeriesListResponse struct {
	Series []interfaces.Series `json:"series"`
	Total  uint64              `json:"total"`
}

type CountResponse struct {
	Count uint64 `json:"count"`
}

type BalanceResponse struct {
	Account  common.Address `json:"account"`
	SeriesID uint64         `json:"series_id"`
	Balance  uint64         `json:"balance"`
}

type ObscuraOwnerResponse struct {
	SeriesID uint64            `json:"series_id"`
	Handle   interfaces.Handle `json:"handle"`
}

// SetObscuraOwnerRequest submits an encrypted input produced by the coprocessor
// for the signing caller.
type SetObscuraOwnerRequest struct {
	Handle     interfaces.Handle `json:"handle"`
	InputProof hexutil.Bytes     `json:"input_proof"`
}

// EventsResponse is one page of the event log. Next is the sequence number to
// request the following page from.
type EventsResponse struct {
	Events []interfaces.Event `json:"events"`
	Next   uint64             `json:"next"`
}

// EncryptRequest asks the coprocessor to encrypt Value for the signing caller
// and ContractAddress.
type EncryptRequest struct {
	ContractAddress common.Address `json:"contract_address"`
	Value           common.Address `json:"value"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
