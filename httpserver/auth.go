package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/ruteri/obscura-mint/api"
	"github.com/ruteri/obscura-mint/cryptoutils"
	"github.com/ruteri/obscura-mint/interfaces"
)

type callerKey struct{}

func callerFromContext(ctx context.Context) common.Address {
	caller, _ := ctx.Value(callerKey{}).(common.Address)
	return caller
}

// RequestAuthenticator verifies signed requests and resolves the caller
// identity for mutating routes.
type RequestAuthenticator struct {
	maxSkew time.Duration
	now     func() time.Time

	// nonces maps caller:nonce to the time it may be forgotten. Entries are
	// never touched after insertion, so the oldest entry expires first.
	mu     sync.Mutex
	nonces *lru.Cache
	size   int

	log     *slog.Logger
	onError func(http.ResponseWriter, error)
}

// NewRequestAuthenticator creates an authenticator accepting timestamps within
// maxSkew of the server clock and remembering nonceCacheSize nonces.
func NewRequestAuthenticator(maxSkew time.Duration, nonceCacheSize int, log *slog.Logger, onError func(http.ResponseWriter, error)) (*RequestAuthenticator, error) {
	if maxSkew <= 0 {
		maxSkew = api.DefaultMaxRequestSkew
	}
	if nonceCacheSize <= 0 {
		nonceCacheSize = api.DefaultNonceCacheSize
	}

	nonces, err := lru.New(nonceCacheSize)
	if err != nil {
		return nil, err
	}

	return &RequestAuthenticator{
		maxSkew: maxSkew,
		nonces:  nonces,
		size:    nonceCacheSize,
		now:     time.Now,
		log:     log,
		onError: onError,
	}, nil
}

// Middleware rejects requests without a valid signature and stores the
// verified caller in the request context. The body is buffered and restored
// for the next handler.
func (a *RequestAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.authenticate(r)
		if err != nil {
			a.log.Warn("Authentication failed", "path", r.URL.Path, "err", err)
			a.onError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), callerKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *RequestAuthenticator) authenticate(r *http.Request) (common.Address, error) {
	sig, err := cryptoutils.ParseRequestSignature(r.Header.Get)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", interfaces.ErrInvalidSignature, err)
	}

	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
		if err != nil {
			return common.Address{}, fmt.Errorf("%w: failed to read body: %v", interfaces.ErrInvalidRequest, err)
		}
		if len(body) > maxBodySize {
			return common.Address{}, fmt.Errorf("%w: body too large", interfaces.ErrInvalidRequest)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	skew := a.now().Sub(time.Unix(sig.Timestamp, 0))
	if skew > a.maxSkew || skew < -a.maxSkew {
		return common.Address{}, fmt.Errorf("%w: timestamp outside the accepted window", interfaces.ErrRequestExpired)
	}

	if err := sig.Verify(r.Method, r.URL.Path, body); err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", interfaces.ErrInvalidSignature, err)
	}

	// only verified nonces are remembered, so forged requests cannot burn them
	if err := a.rememberNonce(sig.Caller.Hex() + ":" + sig.Nonce); err != nil {
		return common.Address{}, err
	}

	return sig.Caller, nil
}

// rememberNonce records a nonce until no request carrying it can pass the
// timestamp check again. A timestamp accepted now is at most maxSkew in the
// future, so its nonce is kept for twice maxSkew. Eviction only ever drops
// expired nonces; when none has expired the request is refused.
func (a *RequestAuthenticator) rememberNonce(key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.nonces.Contains(key) {
		return api.ErrReplayedRequest
	}

	if a.nonces.Len() >= a.size {
		_, oldest, ok := a.nonces.GetOldest()
		if ok && now.Before(oldest.(time.Time)) {
			return api.ErrNonceCacheFull
		}
	}

	a.nonces.Add(key, now.Add(2*a.maxSkew))
	return nil
}
