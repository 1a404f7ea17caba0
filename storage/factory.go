package storage

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/obscura-mint/interfaces"
)

// StorageBackendFactory creates storage backends from location URIs.
type StorageBackendFactory struct {
	log *slog.Logger

	// memory backends are shared per name so that every reference to
	// memory://name within a process sees the same content.
	memory map[string]*MemoryBackend
}

var _ interfaces.StorageBackendFactory = (*StorageBackendFactory)(nil)

// NewStorageBackendFactory creates a new factory instance.
func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &StorageBackendFactory{
		log:    logger,
		memory: make(map[string]*MemoryBackend),
	}
}

// StorageBackendFor creates a storage backend from a location.
//
// Supported schemes:
//   - file:///var/lib/obscura/ciphertexts
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-west-2&endpoint=minio:9000
//   - ipfs://host:5001/root?timeout=30s
//   - vault://host:8200/mount/path?token=...&tls=false
//   - memory://name
func (sf *StorageBackendFactory) StorageBackendFor(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating storage backend", slog.String("scheme", location.Scheme), slog.String("host", location.Host))

	switch location.Scheme {
	case "file":
		return sf.createFileBackend(location)
	case "s3":
		return sf.createS3Backend(location)
	case "ipfs":
		return sf.createIPFSBackend(location)
	case "vault":
		return sf.createVaultBackend(location)
	case "memory":
		return sf.createMemoryBackend(location), nil
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// CreateMultiBackend aggregates all backends that could be created. It fails
// only if none could.
func (sf *StorageBackendFactory) CreateMultiBackend(locations []interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(locations))

	for _, location := range locations {
		backend, err := sf.StorageBackendFor(location)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("scheme", location.Scheme))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}

	return NewMultiStorageBackend(backends, sf.log), nil
}

// file:///absolute/path or file://./relative/path
func (sf *StorageBackendFactory) createFileBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	path := location.Path
	if location.Host != "" {
		path = location.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI", interfaces.ErrInvalidLocationURI)
	}

	return NewFileBackend(path, sf.log)
}

func (sf *StorageBackendFactory) createS3Backend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	accessKey, secretKey := location.Credentials()
	region := location.Param("region", "us-east-1")

	return NewS3Backend(location.Host, location.Path, region, location.Param("endpoint", ""), accessKey, secretKey, sf.log)
}

func (sf *StorageBackendFactory) createIPFSBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	host, port, found := strings.Cut(location.Host, ":")
	if !found || port == "" {
		port = "5001"
	}

	raw := location.Param("timeout", "30s")
	timeout, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrInvalidLocationURI, raw)
	}

	return NewIPFSBackend(host, port, location.Path, timeout, sf.log)
}

func (sf *StorageBackendFactory) createVaultBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	if location.Host == "" {
		return nil, fmt.Errorf("%w: missing Vault host", interfaces.ErrInvalidLocationURI)
	}

	mount, dataPath, _ := strings.Cut(strings.Trim(location.Path, "/"), "/")
	if mount == "" {
		mount = "secret"
	}
	if dataPath == "" {
		dataPath = "obscura"
	}

	scheme := "https"
	if tls := location.Param("tls", "true"); tls == "false" || tls == "0" {
		scheme = "http"
	}

	return NewVaultBackend(fmt.Sprintf("%s://%s", scheme, location.Host), mount, dataPath, location.Param("token", ""), sf.log)
}

func (sf *StorageBackendFactory) createMemoryBackend(location interfaces.StorageBackendLocation) interfaces.StorageBackend {
	name := location.Host
	if b, ok := sf.memory[name]; ok {
		return b
	}
	b := NewMemoryBackend(name)
	sf.memory[name] = b
	return b
}
