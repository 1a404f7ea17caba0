package clients

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
	"github.com/ruteri/obscura-mint/api"
	"github.com/ruteri/obscura-mint/coprocessor"
	"github.com/ruteri/obscura-mint/cryptoutils"
	"github.com/ruteri/obscura-mint/interfaces"
)

// ErrNoSigningKey is returned by mutating calls on a read-only client.
var ErrNoSigningKey = errors.New("client has no signing key")

// ObscuraClient talks to an obscura node over its HTTP API. Mutations are
// signed with the client's key, which makes the key's address the caller.
type ObscuraClient struct {
	serverAddr string
	key        *ecdsa.PrivateKey
	httpClient *http.Client
	contract   common.Address
}

var _ interfaces.ObscuraMint = (*ObscuraClient)(nil)

// NewObscuraClient connects to the node at serverAddr and resolves the
// contract it serves. key may be nil for a read-only client.
func NewObscuraClient(ctx context.Context, serverAddr string, key *ecdsa.PrivateKey, timeout time.Duration) (*ObscuraClient, error) {
	c := &ObscuraClient{
		serverAddr: strings.TrimSuffix(serverAddr, "/"),
		key:        key,
		httpClient: &http.Client{Timeout: timeout},
	}

	info, err := c.ContractInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not fetch contract info: %w", err)
	}
	c.contract = info.ContractAddress

	return c, nil
}

// Caller returns the address mutations are attributed to.
func (c *ObscuraClient) Caller() common.Address {
	if c.key == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(c.key.PublicKey)
}

func (c *ObscuraClient) ContractAddress() common.Address {
	return c.contract
}

func (c *ObscuraClient) ContractInfo(ctx context.Context) (*api.ContractInfoResponse, error) {
	var resp api.ContractInfoResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/contract", nil, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ObscuraClient) Owner(ctx context.Context) (common.Address, error) {
	var resp api.OwnerResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/owner", nil, false, &resp); err != nil {
		return common.Address{}, err
	}
	return resp.Owner, nil
}

func (c *ObscuraClient) TransferOwnership(ctx context.Context, newOwner common.Address) (*interfaces.Receipt, error) {
	return c.receipt(ctx, http.MethodPost, "/api/v1/owner/transfer", &api.TransferOwnershipRequest{NewOwner: newOwner})
}

func (c *ObscuraClient) CreateSeries(ctx context.Context, name string, maxSupply uint32) (*interfaces.Receipt, error) {
	var resp api.CreateSeriesResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/series", &api.CreateSeriesRequest{Name: name, MaxSupply: maxSupply}, true, &resp); err != nil {
		return nil, err
	}
	return resp.Receipt, nil
}

func (c *ObscuraClient) Mint(ctx context.Context, seriesID uint64, amount uint32) (*interfaces.Receipt, error) {
	return c.receipt(ctx, http.MethodPost, fmt.Sprintf("/api/v1/series/%d/mint", seriesID), &api.MintRequest{Amount: amount})
}

func (c *ObscuraClient) MintOne(ctx context.Context, seriesID uint64) (*interfaces.Receipt, error) {
	return c.receipt(ctx, http.MethodPost, fmt.Sprintf("/api/v1/series/%d/mint-one", seriesID), nil)
}

func (c *ObscuraClient) GetSeries(ctx context.Context, seriesID uint64) (*interfaces.Series, error) {
	var resp interfaces.Series
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/series/%d", seriesID), nil, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ObscuraClient) SeriesCount(ctx context.Context) (uint64, error) {
	var resp api.CountResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/series/count", nil, false, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// ListSeries returns up to limit series starting at offset, and the total count.
func (c *ObscuraClient) ListSeries(ctx context.Context, offset, limit uint64) (*api.SeriesListResponse, error) {
	var resp api.SeriesListResponse
	path := fmt.Sprintf("/api/v1/series?offset=%d&limit=%d", offset, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ObscuraClient) BalanceOf(ctx context.Context, account common.Address, seriesID uint64) (uint64, error) {
	var resp api.BalanceResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/series/%d/balances/%s", seriesID, account.Hex()), nil, false, &resp); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

func (c *ObscuraClient) GetObscuraOwner(ctx context.Context, seriesID uint64) (interfaces.Handle, error) {
	var resp api.ObscuraOwnerResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/series/%d/obscura-owner", seriesID), nil, false, &resp); err != nil {
		return interfaces.Handle{}, err
	}
	return resp.Handle, nil
}

func (c *ObscuraClient) SetObscuraOwner(ctx context.Context, seriesID uint64, handle interfaces.Handle, inputProof []byte) (*interfaces.Receipt, error) {
	req := &api.SetObscuraOwnerRequest{Handle: handle, InputProof: inputProof}
	return c.receipt(ctx, http.MethodPut, fmt.Sprintf("/api/v1/series/%d/obscura-owner", seriesID), req)
}

// Events returns one page of the event log starting at sequence number from.
func (c *ObscuraClient) Events(ctx context.Context, from, limit uint64) (*api.EventsResponse, error) {
	var resp api.EventsResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/events?from=%d&limit=%d", from, limit), nil, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamEvents follows the event log from sequence number from and calls fn
// for every event until ctx is done, fn returns an error or the server closes
// the stream.
func (c *ObscuraClient) StreamEvents(ctx context.Context, from uint64, fn func(interfaces.Event) error) error {
	u, err := url.Parse(c.serverAddr)
	if err != nil {
		return fmt.Errorf("invalid server address: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/v1/events/stream"
	u.RawQuery = fmt.Sprintf("from=%d", from)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("could not open event stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var ev interfaces.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("event stream: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

// CoprocessorInfo returns the coprocessor's signer and EIP-712 domain.
func (c *ObscuraClient) CoprocessorInfo(ctx context.Context) (interfaces.CoprocessorInfo, error) {
	var resp interfaces.CoprocessorInfo
	err := c.do(ctx, http.MethodGet, "/api/v1/coprocessor/info", nil, false, &resp)
	return resp, err
}

// Encrypt asks the coprocessor to encrypt value for this client's caller and
// the served contract.
func (c *ObscuraClient) Encrypt(ctx context.Context, value common.Address) (*interfaces.EncryptedInput, error) {
	return c.EncryptFor(ctx, c.contract, value)
}

// EncryptFor encrypts value for this client's caller and an arbitrary
// contract, such as one deployed on chain.
func (c *ObscuraClient) EncryptFor(ctx context.Context, contract, value common.Address) (*interfaces.EncryptedInput, error) {
	var resp interfaces.EncryptedInput
	req := &api.EncryptRequest{ContractAddress: contract, Value: value}
	if err := c.do(ctx, http.MethodPost, "/api/v1/coprocessor/encrypt", req, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ObscuraClient) UserDecrypt(ctx context.Context, req *interfaces.UserDecryptRequest) (*interfaces.UserDecryptResponse, error) {
	var resp interfaces.UserDecryptResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/coprocessor/user-decrypt", req, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EncryptAndSetObscuraOwner encrypts owner and submits it as the confidential
// owner of the series.
func (c *ObscuraClient) EncryptAndSetObscuraOwner(ctx context.Context, seriesID uint64, owner common.Address) (*interfaces.Receipt, error) {
	input, err := c.Encrypt(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("could not encrypt owner: %w", err)
	}
	return c.SetObscuraOwner(ctx, seriesID, input.Handle, input.InputProof)
}

// DecryptObscuraOwner fetches the series' confidential owner handle and
// decrypts it under an authorization valid for durationDays from now.
func (c *ObscuraClient) DecryptObscuraOwner(ctx context.Context, seriesID uint64, durationDays int64) (common.Address, error) {
	if c.key == nil {
		return common.Address{}, ErrNoSigningKey
	}

	handle, err := c.GetObscuraOwner(ctx, seriesID)
	if err != nil {
		return common.Address{}, err
	}
	if handle.IsZero() {
		return common.Address{}, fmt.Errorf("%w: series %d has no confidential owner", interfaces.ErrHandleNotFound, seriesID)
	}

	return c.DecryptHandle(ctx, c.contract, handle, durationDays)
}

// DecryptHandle decrypts a handle bound to contract with a fresh keypair.
// The client's key signs the EIP-712 authorization, so its address must be
// allowed on the handle.
func (c *ObscuraClient) DecryptHandle(ctx context.Context, contract common.Address, handle interfaces.Handle, durationDays int64) (common.Address, error) {
	if c.key == nil {
		return common.Address{}, ErrNoSigningKey
	}

	info, err := c.CoprocessorInfo(ctx)
	if err != nil {
		return common.Address{}, err
	}

	pub, priv, err := coprocessor.GenerateKeypair()
	if err != nil {
		return common.Address{}, err
	}

	req, err := coprocessor.NewUserDecryptRequest(c.key, info, handle, contract, pub, time.Now().Unix(), durationDays)
	if err != nil {
		return common.Address{}, err
	}

	resp, err := c.UserDecrypt(ctx, req)
	if err != nil {
		return common.Address{}, err
	}

	return coprocessor.OpenUserDecryptResult(priv, resp)
}

func (c *ObscuraClient) receipt(ctx context.Context, method, path string, body interface{}) (*interfaces.Receipt, error) {
	var resp interfaces.Receipt
	if err := c.do(ctx, method, path, body, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ObscuraClient) do(ctx context.Context, method, path string, body interface{}, signed bool, out interface{}) error {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverAddr+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if signed {
		if c.key == nil {
			return ErrNoSigningKey
		}
		sig, err := cryptoutils.SignRequest(c.key, method, req.URL.Path, raw)
		if err != nil {
			return fmt.Errorf("could not sign request: %w", err)
		}
		for k, v := range sig.Headers() {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		var apiErr api.ErrorResponse
		if err := json.Unmarshal(respBody, &apiErr); err != nil {
			return fmt.Errorf("%s returned error %d: %s", path, resp.StatusCode, string(respBody))
		}
		return api.ErrorFromResponse(resp.StatusCode, &apiErr)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse response from %s: %w", path, err)
	}
	return nil
}
