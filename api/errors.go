package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ruteri/obscura-mint/cryptoutils"
	"github.com/ruteri/obscura-mint/interfaces"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeNotOwner          = "NotOwner"
	CodeMaxSupplyExceeded = "MaxSupplyExceeded"
	CodeSeriesNotFound    = "SeriesNotFound"
	CodeHandleNotFound    = "HandleNotFound"
	CodeInvalidMaxSupply  = "InvalidMaxSupply"
	CodeInvalidAmount     = "InvalidAmount"
	CodeZeroAddress       = "ZeroAddress"
	CodeInvalidProof      = "InvalidProof"
	CodeInvalidRequest    = "InvalidRequest"
	CodeUnauthorized      = "Unauthorized"
	CodeRequestExpired    = "RequestExpired"
	CodeInvalidSignature  = "InvalidSignature"
	CodeReplayedRequest   = "ReplayedRequest"
	CodeBusy              = "Busy"
	CodeInternal          = "Internal"
)

var (
	// ErrReplayedRequest is returned for a signed request whose nonce was already used.
	ErrReplayedRequest = errors.New("request nonce already used")

	// ErrNonceCacheFull is returned while every remembered nonce is still
	// within its replay window.
	ErrNonceCacheFull = errors.New("too many signed requests in the replay window")
)

var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{interfaces.ErrNotOwner, CodeNotOwner, http.StatusForbidden},
	{interfaces.ErrMaxSupplyExceeded, CodeMaxSupplyExceeded, http.StatusConflict},
	{interfaces.ErrSeriesNotFound, CodeSeriesNotFound, http.StatusNotFound},
	{interfaces.ErrHandleNotFound, CodeHandleNotFound, http.StatusNotFound},
	{interfaces.ErrInvalidMaxSupply, CodeInvalidMaxSupply, http.StatusBadRequest},
	{interfaces.ErrInvalidAmount, CodeInvalidAmount, http.StatusBadRequest},
	{interfaces.ErrZeroAddress, CodeZeroAddress, http.StatusBadRequest},
	{interfaces.ErrInvalidProof, CodeInvalidProof, http.StatusBadRequest},
	{interfaces.ErrInvalidRequest, CodeInvalidRequest, http.StatusBadRequest},
	{interfaces.ErrRequestExpired, CodeRequestExpired, http.StatusForbidden},
	{interfaces.ErrUnauthorized, CodeUnauthorized, http.StatusForbidden},
	{interfaces.ErrInvalidSignature, CodeInvalidSignature, http.StatusUnauthorized},
	{cryptoutils.ErrMissingSignature, CodeInvalidSignature, http.StatusUnauthorized},
	{cryptoutils.ErrSignatureMismatch, CodeInvalidSignature, http.StatusUnauthorized},
	{ErrReplayedRequest, CodeReplayedRequest, http.StatusUnauthorized},
	{ErrNonceCacheFull, CodeBusy, http.StatusServiceUnavailable},
}

// ErrorCode maps an error to its API code and HTTP status.
func ErrorCode(err error) (string, int) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code, e.status
		}
	}
	return CodeInternal, http.StatusInternalServerError
}

// ErrorFromResponse rebuilds an error from an API error response so that
// callers can match it with errors.Is against the sentinel errors.
func ErrorFromResponse(status int, resp *ErrorResponse) error {
	if resp == nil || resp.Code == "" {
		return fmt.Errorf("server returned status %d", status)
	}
	for _, e := range errorCodes {
		if e.code == resp.Code {
			return fmt.Errorf("%w: %s", e.err, resp.Error)
		}
	}
	return fmt.Errorf("server returned status %d: %s", status, resp.Error)
}
