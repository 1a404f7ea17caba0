package httpserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/obscura-mint/api"
	"github.com/ruteri/obscura-mint/interfaces"
	"github.com/ruteri/obscura-mint/ledger"
)

const (
	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024

	defaultPageSize = 100
	maxPageSize     = 1000
)

// Handler serves the ObscuraMint API on top of a ledger and its coprocessor.
type Handler struct {
	ledger      *ledger.Ledger
	coprocessor interfaces.Coprocessor
	log         *slog.Logger
}

// NewHandler creates a new HTTP request handler.
func NewHandler(l *ledger.Ledger, coprocessor interfaces.Coprocessor, log *slog.Logger) *Handler {
	return &Handler{
		ledger:      l,
		coprocessor: coprocessor,
		log:         log,
	}
}

// HandleContractInfo returns the contract address, owner, series count and
// the coprocessor parameters clients need to sign requests.
func (h *Handler) HandleContractInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, &api.ContractInfoResponse{
		ContractAddress: h.ledger.ContractAddress(),
		Owner:           h.ledger.Owner(),
		SeriesCount:     h.ledger.SeriesCount(),
		Coprocessor:     h.coprocessor.Info(),
	})
}

func (h *Handler) HandleOwner(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, &api.OwnerResponse{Owner: h.ledger.Owner()})
}

func (h *Handler) HandleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req api.TransferOwnershipRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	receipt, err := h.ledger.TransferOwnership(r.Context(), callerFromContext(r.Context()), req.NewOwner)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, receipt)
}

func (h *Handler) HandleCreateSeries(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSeriesRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	receipt, id, err := h.ledger.CreateSeries(r.Context(), callerFromContext(r.Context()), req.Name, req.MaxSupply)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, &api.CreateSeriesResponse{SeriesID: id, Receipt: receipt})
}

// HandleListSeries returns a page of series selected by the offset and limit
// query parameters.
func (h *Handler) HandleListSeries(w http.ResponseWriter, r *http.Request) {
	offset, err := queryUint(r, "offset", 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	limit, err := pageLimit(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, &api.SeriesListResponse{
		Series: h.ledger.ListSeries(offset, limit),
		Total:  h.ledger.SeriesCount(),
	})
}

func (h *Handler) HandleSeriesCount(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, &api.CountResponse{Count: h.ledger.SeriesCount()})
}

func (h *Handler) HandleGetSeries(w http.ResponseWriter, r *http.Request) {
	id, err := seriesIDParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	series, err := h.ledger.GetSeries(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, series)
}

func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	id, err := seriesIDParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	account := chi.URLParam(r, "account")
	if !common.IsHexAddress(account) {
		h.writeError(w, fmt.Errorf("%w: invalid account %q", interfaces.ErrInvalidRequest, account))
		return
	}

	balance, err := h.ledger.BalanceOf(common.HexToAddress(account), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, &api.BalanceResponse{
		Account:  common.HexToAddress(account),
		SeriesID: id,
		Balance:  balance,
	})
}

func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	id, err := seriesIDParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req api.MintRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	receipt, err := h.ledger.Mint(r.Context(), callerFromContext(r.Context()), id, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, receipt)
}

func (h *Handler) HandleMintOne(w http.ResponseWriter, r *http.Request) {
	id, err := seriesIDParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	receipt, err := h.ledger.MintOne(r.Context(), callerFromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, receipt)
}

func (h *Handler) HandleGetObscuraOwner(w http.ResponseWriter, r *http.Request) {
	id, err := seriesIDParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	handle, err := h.ledger.GetObscuraOwner(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, &api.ObscuraOwnerResponse{SeriesID: id, Handle: handle})
}

func (h *Handler) HandleSetObscuraOwner(w http.ResponseWriter, r *http.Request) {
	id, err := seriesIDParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req api.SetObscuraOwnerRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	receipt, err := h.ledger.SetObscuraOwner(r.Context(), callerFromContext(r.Context()), id, req.Handle, req.InputProof)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, receipt)
}

// HandleEvents returns a page of the event log starting at the from query parameter.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	from, err := queryUint(r, "from", 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	limit, err := pageLimit(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	events := h.ledger.Events(from, limit)
	next := from + uint64(len(events))
	if len(events) == 0 {
		next = max(from, h.ledger.EventCount())
	}
	h.writeJSON(w, http.StatusOK, &api.EventsResponse{Events: events, Next: next})
}

func (h *Handler) HandleCoprocessorInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.coprocessor.Info())
}

// HandleEncrypt encrypts an address for the signing caller. The resulting
// input proof is only accepted from that caller.
func (h *Handler) HandleEncrypt(w http.ResponseWriter, r *http.Request) {
	var req api.EncryptRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	contract := req.ContractAddress
	if contract == (common.Address{}) {
		contract = h.ledger.ContractAddress()
	}

	input, err := h.coprocessor.Encrypt(r.Context(), contract, callerFromContext(r.Context()), req.Value)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, input)
}

// HandleUserDecrypt serves an EIP-712 authorized user decryption. The request
// carries its own signature, so no request signing headers are needed.
func (h *Handler) HandleUserDecrypt(w http.ResponseWriter, r *http.Request) {
	var req interfaces.UserDecryptRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	resp, err := h.coprocessor.UserDecrypt(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code, status := api.ErrorCode(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "err", err)
	} else {
		h.log.Debug("Request rejected", "code", code, "err", err)
	}
	h.writeJSON(w, status, &api.ErrorResponse{Error: err.Error(), Code: code})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed body: %v", interfaces.ErrInvalidRequest, err)
	}
	return nil
}

func seriesIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid series id %q", interfaces.ErrInvalidRequest, raw)
	}
	return id, nil
}

func queryUint(r *http.Request, name string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", interfaces.ErrInvalidRequest, name, raw)
	}
	return v, nil
}

func pageLimit(r *http.Request) (uint64, error) {
	limit, err := queryUint(r, "limit", defaultPageSize)
	if err != nil {
		return 0, err
	}
	if limit == 0 || limit > maxPageSize {
		return 0, fmt.Errorf("%w: limit must be between 1 and %d", interfaces.ErrInvalidRequest, maxPageSize)
	}
	return limit, nil
}
