package interfaces

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
)

// ContentID is the SHA-256 of a stored blob. For sealed envelopes it is also
// the handle that refers to the value on chain.
type ContentID [32]byte

// ComputeID returns the address data is stored under.
func ComputeID(data []byte) ContentID {
	return ContentID(sha256.Sum256(data))
}

// ParseContentID accepts the same 0x-prefixed or bare hex form as handles.
func ParseContentID(s string) (ContentID, error) {
	h, err := HandleFromHex(s)
	if err != nil {
		return ContentID{}, fmt.Errorf("invalid content ID: %w", err)
	}
	return h.ContentID(), nil
}

func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

// Handle returns the ciphertext handle addressing this content.
func (id ContentID) Handle() Handle {
	return Handle(id)
}

// ContentType selects the namespace a blob is kept in.
type ContentType int

const (
	// EnvelopeType holds sealed ciphertext envelopes, one per handle.
	EnvelopeType ContentType = iota
	// ExportType holds msgpack ledger snapshots.
	ExportType
)

func (ct ContentType) String() string {
	switch ct {
	case EnvelopeType:
		return "envelopes"
	case ExportType:
		return "exports"
	default:
		return "unknown"
	}
}

var storageSchemes = map[string]struct{}{
	"file":   {},
	"s3":     {},
	"ipfs":   {},
	"vault":  {},
	"memory": {},
}

// StorageBackendLocation is a parsed --storage URI, e.g.
// s3://KEY:SECRET@bucket/prefix?region=eu-west-1.
type StorageBackendLocation struct {
	URI    string
	Scheme string
	Host   string
	Path   string
	Params url.Values
	User   *url.Userinfo
}

func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}
	if _, ok := storageSchemes[parsed.Scheme]; !ok {
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return StorageBackendLocation{
		URI:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Params: parsed.Query(),
		User:   parsed.User,
	}, nil
}

func (loc StorageBackendLocation) String() string {
	return loc.URI
}

// Param returns the query parameter name, or fallback when it is absent.
func (loc StorageBackendLocation) Param(name, fallback string) string {
	if v := loc.Params.Get(name); v != "" {
		return v
	}
	return fallback
}

// Credentials returns the user and password embedded in the URI, if any.
func (loc StorageBackendLocation) Credentials() (string, string) {
	if loc.User == nil {
		return "", ""
	}
	password, _ := loc.User.Password()
	return loc.User.Username(), password
}

var (
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable covers network, auth and service failures.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// StorageBackend stores envelopes and snapshots by content address.
// Store must be idempotent: storing the same bytes twice yields the same ID.
type StorageBackend interface {
	Fetch(ctx context.Context, id ContentID, contentType ContentType) ([]byte, error)
	Store(ctx context.Context, data []byte, contentType ContentType) (ContentID, error)

	// Available reports whether the backend can currently serve requests.
	Available(ctx context.Context) bool

	Name() string
	LocationURI() string
}

// StorageBackendFactory turns --storage locations into backends.
type StorageBackendFactory interface {
	StorageBackendFor(location StorageBackendLocation) (StorageBackend, error)

	// CreateMultiBackend fans writes out to every location that could be
	// opened and reads from the first that has the content.
	CreateMultiBackend(locations []StorageBackendLocation) (StorageBackend, error)
}
