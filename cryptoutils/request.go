package cryptoutils

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Headers carried by signed API requests.
const (
	HeaderCaller    = "X-Obscura-Caller"
	HeaderTimestamp = "X-Obscura-Timestamp"
	HeaderNonce     = "X-Obscura-Nonce"
	HeaderSignature = "X-Obscura-Signature"
)

var (
	ErrMissingSignature  = errors.New("missing request signature")
	ErrSignatureMismatch = errors.New("signature does not match caller")
)

// RequestSignature holds the header values of a signed request.
type RequestSignature struct {
	Caller    common.Address
	Timestamp int64
	Nonce     string
	Signature []byte
}

// RequestDigest is the EIP-191 text hash of the canonical request message
// METHOD\nPATH\nTIMESTAMP\nNONCE\nBODY.
func RequestDigest(method, path string, timestamp int64, nonce string, body []byte) []byte {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte('\n')
	b.WriteString(path)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(timestamp, 10))
	b.WriteByte('\n')
	b.WriteString(nonce)
	b.WriteByte('\n')
	b.Write(body)
	return accounts.TextHash([]byte(b.String()))
}

// SignRequest signs a request with a fresh nonce and the current time.
func SignRequest(key *ecdsa.PrivateKey, method, path string, body []byte) (*RequestSignature, error) {
	ts := time.Now().Unix()
	nonce := uuid.NewString()

	sig, err := crypto.Sign(RequestDigest(method, path, ts, nonce, body), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	return &RequestSignature{
		Caller:    crypto.PubkeyToAddress(key.PublicKey),
		Timestamp: ts,
		Nonce:     nonce,
		Signature: sig,
	}, nil
}

// Headers returns the header values to attach to the request.
func (s *RequestSignature) Headers() map[string]string {
	return map[string]string{
		HeaderCaller:    s.Caller.Hex(),
		HeaderTimestamp: strconv.FormatInt(s.Timestamp, 10),
		HeaderNonce:     s.Nonce,
		HeaderSignature: hexutil.Encode(s.Signature),
	}
}

// ParseRequestSignature reads the signed request headers through get.
func ParseRequestSignature(get func(string) string) (*RequestSignature, error) {
	caller, ts, nonce, sig := get(HeaderCaller), get(HeaderTimestamp), get(HeaderNonce), get(HeaderSignature)
	if caller == "" || ts == "" || nonce == "" || sig == "" {
		return nil, ErrMissingSignature
	}

	if !common.IsHexAddress(caller) {
		return nil, fmt.Errorf("invalid caller address %q", caller)
	}

	timestamp, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}

	sigBytes, err := hexutil.Decode(sig)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}

	return &RequestSignature{
		Caller:    common.HexToAddress(caller),
		Timestamp: timestamp,
		Nonce:     nonce,
		Signature: sigBytes,
	}, nil
}

// Verify checks that the signature over the request was made by Caller.
func (s *RequestSignature) Verify(method, path string, body []byte) error {
	signer, err := RecoverSigner(RequestDigest(method, path, s.Timestamp, s.Nonce, body), s.Signature)
	if err != nil {
		return err
	}
	if signer != s.Caller {
		return ErrSignatureMismatch
	}
	return nil
}

// RecoverSigner returns the address that produced a 65-byte signature over
// digest. Both 0/1 and 27/28 recovery ids are accepted.
func RecoverSigner(digest []byte, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(signature))
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
