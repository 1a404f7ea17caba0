package httpserver

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
	"github.com/ruteri/obscura-mint/api"
	"github.com/ruteri/obscura-mint/coprocessor"
	"github.com/ruteri/obscura-mint/cryptoutils"
	"github.com/ruteri/obscura-mint/interfaces"
	"github.com/ruteri/obscura-mint/kms"
	"github.com/ruteri/obscura-mint/ledger"
	"github.com/ruteri/obscura-mint/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

type testEnv struct {
	srv    *Server
	router http.Handler
	ledger *ledger.Ledger
	cop    *coprocessor.Coprocessor
	owner  *ecdsa.PrivateKey
	user   *ecdsa.PrivateKey
}

func newTestEnv(t *testing.T) *testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err)
	k, err := kms.NewSimpleKMS(seed)
	require.NoError(t, err)

	cop, err := coprocessor.New(&coprocessor.Config{
		KMS:               k,
		Storage:           storage.NewMemoryBackend("test"),
		ChainID:           31337,
		VerifyingContract: testContract,
		Log:               logger,
	})
	require.NoError(t, err)

	owner, err := crypto.GenerateKey()
	require.NoError(t, err)
	user, err := crypto.GenerateKey()
	require.NoError(t, err)

	l, err := ledger.New(context.Background(), &ledger.Config{
		ContractAddress: testContract,
		Deployer:        crypto.PubkeyToAddress(owner.PublicKey),
		Runtime:         cop,
		Store:           ledger.NewMemoryStore(),
		Log:             logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	srv, err := New(&api.HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      logger,
		GracefulShutdownDuration: time.Second,
	}, NewHandler(l, cop, logger))
	require.NoError(t, err)

	return &testEnv{srv: srv, router: srv.getRouter(), ledger: l, cop: cop, owner: owner, user: user}
}

func (e *testEnv) do(t *testing.T, key *ecdsa.PrivateKey, method, path string, body interface{}) *httptest.ResponseRecorder {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	if key != nil {
		sig, err := cryptoutils.SignRequest(key, method, req.URL.Path, raw)
		require.NoError(t, err)
		for k, v := range sig.Headers() {
			req.Header.Set(k, v)
		}
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	return decode[api.ErrorResponse](t, w).Code
}

func TestGenesisScenario(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, env.user, http.MethodPost, "/api/v1/series", &api.CreateSeriesRequest{Name: "Genesis", MaxSupply: 3})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[api.CreateSeriesResponse](t, w)
	assert.Equal(t, uint64(0), created.SeriesID)
	require.Len(t, created.Receipt.Events, 1)
	assert.Equal(t, interfaces.EventSeriesCreated, created.Receipt.Events[0].Type)

	w = env.do(t, env.user, http.MethodPost, "/api/v1/series/0/mint-one", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, env.user, http.MethodPost, "/api/v1/series/0/mint", &api.MintRequest{Amount: 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, env.user, http.MethodPost, "/api/v1/series/0/mint-one", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, api.CodeMaxSupplyExceeded, errorCode(t, w))

	w = env.do(t, nil, http.MethodGet, "/api/v1/series/0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	series := decode[interfaces.Series](t, w)
	assert.Equal(t, "Genesis", series.Name)
	assert.Equal(t, uint32(3), series.Minted)
	assert.Equal(t, crypto.PubkeyToAddress(env.user.PublicKey), series.Creator)

	userAddr := crypto.PubkeyToAddress(env.user.PublicKey).Hex()
	w = env.do(t, nil, http.MethodGet, "/api/v1/series/0/balances/"+userAddr, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint64(3), decode[api.BalanceResponse](t, w).Balance)

	w = env.do(t, nil, http.MethodGet, "/api/v1/series/count", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint64(1), decode[api.CountResponse](t, w).Count)

	w = env.do(t, nil, http.MethodGet, "/api/v1/series?offset=0&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[api.SeriesListResponse](t, w)
	assert.Len(t, list.Series, 1)
	assert.Equal(t, uint64(1), list.Total)
}

func TestValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, env.user, http.MethodPost, "/api/v1/series", &api.CreateSeriesRequest{Name: "Zero", MaxSupply: 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, api.CodeInvalidMaxSupply, errorCode(t, w))

	w = env.do(t, env.user, http.MethodPost, "/api/v1/series/7/mint-one", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, api.CodeSeriesNotFound, errorCode(t, w))

	w = env.do(t, nil, http.MethodGet, "/api/v1/series/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, nil, http.MethodGet, "/api/v1/series/0/balances/not-an-address", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, nil, http.MethodGet, "/api/v1/series?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignedRequestsRequired(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, nil, http.MethodPost, "/api/v1/series", &api.CreateSeriesRequest{Name: "x", MaxSupply: 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, api.CodeInvalidSignature, errorCode(t, w))
	assert.Equal(t, uint64(0), env.ledger.SeriesCount())
}

func TestReplayedRequestRejected(t *testing.T) {
	env := newTestEnv(t)

	raw, err := json.Marshal(&api.CreateSeriesRequest{Name: "Once", MaxSupply: 5})
	require.NoError(t, err)
	sig, err := cryptoutils.SignRequest(env.user, http.MethodPost, "/api/v1/series", raw)
	require.NoError(t, err)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/series", bytes.NewReader(raw))
		for k, v := range sig.Headers() {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusCreated, send().Code)

	w := send()
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, api.CodeReplayedRequest, errorCode(t, w))
	assert.Equal(t, uint64(1), env.ledger.SeriesCount())
}

func TestTamperedBodyRejected(t *testing.T) {
	env := newTestEnv(t)

	raw := []byte(`{"name":"Signed","max_supply":5}`)
	sig, err := cryptoutils.SignRequest(env.user, http.MethodPost, "/api/v1/series", raw)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/series", strings.NewReader(`{"name":"Other","max_supply":5}`))
	for k, v := range sig.Headers() {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, api.CodeInvalidSignature, errorCode(t, w))
}

func TestStaleTimestampRejected(t *testing.T) {
	env := newTestEnv(t)
	env.srv.auth.now = func() time.Time { return time.Now().Add(10 * time.Minute) }

	w := env.do(t, env.user, http.MethodPost, "/api/v1/series", &api.CreateSeriesRequest{Name: "Late", MaxSupply: 1})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, api.CodeRequestExpired, errorCode(t, w))
}

func TestConfidentialOwnerFlow(t *testing.T) {
	env := newTestEnv(t)
	ownerAddr := crypto.PubkeyToAddress(env.owner.PublicKey)
	secretOwner := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	w := env.do(t, env.user, http.MethodPost, "/api/v1/series", &api.CreateSeriesRequest{Name: "Genesis", MaxSupply: 3})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, nil, http.MethodGet, "/api/v1/series/0/obscura-owner", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[api.ObscuraOwnerResponse](t, w).Handle.IsZero())

	// non-owner encrypts for itself and is rejected by the ledger
	w = env.do(t, env.user, http.MethodPost, "/api/v1/coprocessor/encrypt", &api.EncryptRequest{Value: secretOwner})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	userInput := decode[interfaces.EncryptedInput](t, w)

	w = env.do(t, env.user, http.MethodPut, "/api/v1/series/0/obscura-owner", &api.SetObscuraOwnerRequest{Handle: userInput.Handle, InputProof: userInput.InputProof})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, api.CodeNotOwner, errorCode(t, w))

	// owner cannot reuse a proof issued to someone else
	w = env.do(t, env.owner, http.MethodPut, "/api/v1/series/0/obscura-owner", &api.SetObscuraOwnerRequest{Handle: userInput.Handle, InputProof: userInput.InputProof})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, api.CodeInvalidProof, errorCode(t, w))

	w = env.do(t, env.owner, http.MethodPost, "/api/v1/coprocessor/encrypt", &api.EncryptRequest{ContractAddress: testContract, Value: secretOwner})
	require.Equal(t, http.StatusOK, w.Code)
	input := decode[interfaces.EncryptedInput](t, w)

	w = env.do(t, env.owner, http.MethodPut, "/api/v1/series/0/obscura-owner", &api.SetObscuraOwnerRequest{Handle: input.Handle, InputProof: input.InputProof})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	receipt := decode[interfaces.Receipt](t, w)
	require.Len(t, receipt.Events, 1)
	assert.Equal(t, interfaces.EventObscuraOwnerUpdated, receipt.Events[0].Type)
	assert.Equal(t, uint64(0), receipt.Events[0].SeriesID)

	w = env.do(t, nil, http.MethodGet, "/api/v1/series/0/obscura-owner", nil)
	require.Equal(t, http.StatusOK, w.Code)
	handle := decode[api.ObscuraOwnerResponse](t, w).Handle
	assert.Equal(t, input.Handle, handle)

	w = env.do(t, nil, http.MethodGet, "/api/v1/coprocessor/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[interfaces.CoprocessorInfo](t, w)

	pub, priv, err := coprocessor.GenerateKeypair()
	require.NoError(t, err)
	req, err := coprocessor.NewUserDecryptRequest(env.owner, info, handle, testContract, pub, time.Now().Unix(), 1)
	require.NoError(t, err)
	assert.Equal(t, ownerAddr, req.UserAddress)

	w = env.do(t, nil, http.MethodPost, "/api/v1/coprocessor/user-decrypt", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[interfaces.UserDecryptResponse](t, w)

	decrypted, err := coprocessor.OpenUserDecryptResult(priv, &resp)
	require.NoError(t, err)
	assert.Equal(t, secretOwner, decrypted)

	// the creator of the series is not on the ACL
	req, err = coprocessor.NewUserDecryptRequest(env.user, info, handle, testContract, pub, time.Now().Unix(), 1)
	require.NoError(t, err)
	w = env.do(t, nil, http.MethodPost, "/api/v1/coprocessor/user-decrypt", req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, api.CodeUnauthorized, errorCode(t, w))
}

func TestTransferOwnership(t *testing.T) {
	env := newTestEnv(t)
	userAddr := crypto.PubkeyToAddress(env.user.PublicKey)

	w := env.do(t, env.user, http.MethodPost, "/api/v1/owner/transfer", &api.TransferOwnershipRequest{NewOwner: userAddr})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, env.owner, http.MethodPost, "/api/v1/owner/transfer", &api.TransferOwnershipRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, api.CodeZeroAddress, errorCode(t, w))

	w = env.do(t, env.owner, http.MethodPost, "/api/v1/owner/transfer", &api.TransferOwnershipRequest{NewOwner: userAddr})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, nil, http.MethodGet, "/api/v1/owner", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userAddr, decode[api.OwnerResponse](t, w).Owner)

	w = env.do(t, nil, http.MethodGet, "/api/v1/contract", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[api.ContractInfoResponse](t, w)
	assert.Equal(t, testContract, info.ContractAddress)
	assert.Equal(t, userAddr, info.Owner)
}

func TestEventsPaging(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		w := env.do(t, env.user, http.MethodPost, "/api/v1/series", &api.CreateSeriesRequest{Name: "s", MaxSupply: 1})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	// genesis OwnershipTransferred plus three SeriesCreated
	w := env.do(t, nil, http.MethodGet, "/api/v1/events?from=0&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[api.EventsResponse](t, w)
	require.Len(t, page.Events, 2)
	assert.Equal(t, interfaces.EventOwnershipTransferred, page.Events[0].Type)
	assert.Equal(t, uint64(2), page.Next)

	w = env.do(t, nil, http.MethodGet, "/api/v1/events?from=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[api.EventsResponse](t, w)
	require.Len(t, page.Events, 2)
	assert.Equal(t, uint64(4), page.Next)

	w = env.do(t, nil, http.MethodGet, "/api/v1/events?from=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[api.EventsResponse](t, w)
	assert.Empty(t, page.Events)
	assert.Equal(t, uint64(10), page.Next)
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events/stream?from=0"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var ev interfaces.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, interfaces.EventOwnershipTransferred, ev.Type)
	assert.Equal(t, uint64(0), ev.Seq)

	_, _, err = env.ledger.CreateSeries(context.Background(), crypto.PubkeyToAddress(env.user.PublicKey), "Live", 2)
	require.NoError(t, err)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, interfaces.EventSeriesCreated, ev.Type)
	assert.Equal(t, "Live", ev.Name)
	assert.Equal(t, uint64(1), ev.Seq)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	check := func(path string, status int, body string) {
		w := env.do(t, nil, http.MethodGet, path, nil)
		assert.Equal(t, status, w.Code, path)
		assert.JSONEq(t, body, w.Body.String(), path)
	}

	check("/livez", http.StatusOK, `{"status":"alive"}`)
	check("/readyz", http.StatusOK, `{"status":"ready"}`)
	check("/drain", http.StatusOK, `{"status":"draining"}`)
	check("/drain", http.StatusOK, `{"status":"already draining"}`)
	check("/readyz", http.StatusServiceUnavailable, `{"status":"not ready"}`)
	check("/undrain", http.StatusOK, `{"status":"ready"}`)
	check("/readyz", http.StatusOK, `{"status":"ready"}`)
}
