package coprocessor

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/ruteri/obscura-mint/cryptoutils"
	"github.com/ruteri/obscura-mint/interfaces"
)

const (
	DefaultDomainName    = "Decryption"
	DefaultDomainVersion = "1"

	userDecryptPrimaryType = "UserDecryptRequestVerification"

	MaxDurationDays = 365
	secondsPerDay   = 24 * 60 * 60
)

var userDecryptTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	userDecryptPrimaryType: {
		{Name: "publicKey", Type: "bytes"},
		{Name: "contractAddresses", Type: "address[]"},
		{Name: "startTimestamp", Type: "uint256"},
		{Name: "durationDays", Type: "uint256"},
	},
}

// NewUserDecryptTypedData builds the EIP-712 message a user signs to authorize
// re-encryption under publicKey for the listed contracts.
func NewUserDecryptTypedData(info interfaces.CoprocessorInfo, publicKey string, contracts []common.Address, startTimestamp, durationDays int64) apitypes.TypedData {
	addrs := make([]interface{}, len(contracts))
	for i, c := range contracts {
		addrs[i] = c.Hex()
	}

	return apitypes.TypedData{
		Types:       userDecryptTypes,
		PrimaryType: userDecryptPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              info.DomainName,
			Version:           info.DomainVersion,
			ChainId:           math.NewHexOrDecimal256(info.ChainID),
			VerifyingContract: info.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         hexutil.Encode([]byte(publicKey)),
			"contractAddresses": addrs,
			"startTimestamp":    strconv.FormatInt(startTimestamp, 10),
			"durationDays":      strconv.FormatInt(durationDays, 10),
		},
	}
}

// SignUserDecrypt signs the typed data hash with the user's key.
func SignUserDecrypt(key *ecdsa.PrivateKey, typedData apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return crypto.Sign(hash, key)
}

// NewUserDecryptRequest signs an authorization for publicKey, valid from
// startTimestamp for durationDays, and packs it with the handle to decrypt.
func NewUserDecryptRequest(key *ecdsa.PrivateKey, info interfaces.CoprocessorInfo, handle interfaces.Handle, contract common.Address, publicKey string, startTimestamp, durationDays int64) (*interfaces.UserDecryptRequest, error) {
	contracts := []common.Address{contract}
	sig, err := SignUserDecrypt(key, NewUserDecryptTypedData(info, publicKey, contracts, startTimestamp, durationDays))
	if err != nil {
		return nil, err
	}

	return &interfaces.UserDecryptRequest{
		Handle:            handle,
		ContractAddress:   contract,
		UserAddress:       crypto.PubkeyToAddress(key.PublicKey),
		PublicKey:         publicKey,
		ContractAddresses: contracts,
		StartTimestamp:    startTimestamp,
		DurationDays:      durationDays,
		Signature:         sig,
	}, nil
}

// GenerateKeypair creates the ephemeral P-256 key pair a user decryption is
// re-encrypted to. The public key goes into the request, the private key
// opens the response.
func GenerateKeypair() (publicKeyPEM string, privateKeyPEM []byte, err error) {
	pub, priv, err := cryptoutils.RandomP256Keypair()
	if err != nil {
		return "", nil, err
	}
	return string(pub), priv, nil
}

// OpenUserDecryptResult decrypts a user decryption response into the address
// it carries.
func OpenUserDecryptResult(privateKeyPEM []byte, resp *interfaces.UserDecryptResponse) (common.Address, error) {
	cleartext, err := cryptoutils.DecryptWithPrivateKey(privateKeyPEM, resp.Ciphertext)
	if err != nil {
		return common.Address{}, err
	}
	if len(cleartext) != common.AddressLength {
		return common.Address{}, errors.New("decrypted value is not an address")
	}
	return common.BytesToAddress(cleartext), nil
}
