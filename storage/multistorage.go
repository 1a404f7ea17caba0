package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/obscura-mint/interfaces"
)

// MultiStorageBackend writes to every available backend and reads from the
// first one that has the content.
type MultiStorageBackend struct {
	backends []interfaces.StorageBackend
	log      *slog.Logger
}

// NewMultiStorageBackend creates a new multi-storage backend with fallback.
func NewMultiStorageBackend(backends []interfaces.StorageBackend, logger *slog.Logger) *MultiStorageBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStorageBackend{
		backends: backends,
		log:      logger,
	}
}

// Fetch tries each available backend in order. If every backend that was
// asked reports the content missing, the error wraps ErrContentNotFound.
func (m *MultiStorageBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	start := time.Now()
	contentIDStr := fmt.Sprintf("%x", id[:8])
	var errs []error
	allNotFound := true

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("content_id", contentIDStr))
			continue
		}

		data, err := backend.Fetch(ctx, id, contentType)
		if err == nil {
			m.log.Debug("Fetched content",
				slog.String("backend_name", backend.Name()),
				slog.String("content_id", contentIDStr),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		if !errors.Is(err, interfaces.ErrContentNotFound) {
			allNotFound = false
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no backend available", interfaces.ErrBackendUnavailable)
	}
	if allNotFound {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, contentIDStr)
	}

	m.log.Error("All backends failed to fetch content",
		slog.String("content_id", contentIDStr),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("all backends failed to fetch %s: %w", contentIDStr, errors.Join(errs...))
}

// Store saves data to all available backends and succeeds if at least one did.
func (m *MultiStorageBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	start := time.Now()
	var result interfaces.ContentID
	var success bool
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		id, err := backend.Store(ctx, data, contentType)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
			continue
		}

		if !success {
			result = id
			success = true
		} else if result != id {
			m.log.Warn("Inconsistent hashes from backends",
				slog.String("backend_name", backend.Name()),
				slog.String("expected_id", result.String()),
				slog.String("actual_id", id.String()))
		}
	}

	if !success && len(errs) == 0 {
		return interfaces.ContentID{}, fmt.Errorf("%w: no backend available", interfaces.ErrBackendUnavailable)
	}
	if !success {
		m.log.Error("All backends failed to store data",
			slog.Int("failed_backends", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return interfaces.ContentID{}, fmt.Errorf("all backends failed to store data: %w", errors.Join(errs...))
	}

	return result, nil
}

// Available checks if any backend is available.
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend.
func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

// LocationURI lists the URIs of all member backends.
func (m *MultiStorageBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
