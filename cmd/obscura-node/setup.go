package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ruteri/obscura-mint/interfaces"
	"github.com/ruteri/obscura-mint/kms"
	"github.com/ruteri/obscura-mint/ledger"
	"github.com/ruteri/obscura-mint/storage"
)

var errNoSeed = errors.New("either --seed or --share-file is required")

// loadKMS builds the KMS from a hex seed or from Shamir share files. Shares
// are opened with the PEM key in shareKeyFile when they were sealed.
func loadKMS(seedHex string, shareFiles []string, shareKeyFile string) (*kms.SimpleKMS, error) {
	if seedHex != "" && len(shareFiles) > 0 {
		return nil, errors.New("--seed and --share-file are mutually exclusive")
	}

	if seedHex != "" {
		seed, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(seedHex), "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid seed: %w", err)
		}
		return kms.NewSimpleKMS(seed)
	}

	if len(shareFiles) == 0 {
		return nil, errNoSeed
	}

	var shareKey []byte
	if shareKeyFile != "" {
		var err error
		shareKey, err = os.ReadFile(shareKeyFile)
		if err != nil {
			return nil, fmt.Errorf("could not read share key: %w", err)
		}
	}

	shares := make([][]byte, 0, len(shareFiles))
	for _, path := range shareFiles {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read share %s: %w", path, err)
		}
		share, err := kms.DecodeShare(string(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid share %s: %w", path, err)
		}
		if shareKey != nil {
			share, err = kms.OpenShare(shareKey, share)
			if err != nil {
				return nil, fmt.Errorf("could not open share %s: %w", path, err)
			}
		}
		shares = append(shares, share)
	}

	return kms.NewSimpleKMSFromShares(shares)
}

// openStore opens the badger database in dataDir, or an in-memory store when
// dataDir is empty.
func openStore(dataDir string, log *slog.Logger) (ledger.StateStore, error) {
	if dataDir == "" {
		log.Warn("No data directory configured, ledger state is kept in memory")
		return ledger.NewMemoryStore(), nil
	}
	store, err := ledger.OpenBadger(dataDir, log)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func openStorage(uris []string, log *slog.Logger) (interfaces.StorageBackend, error) {
	if len(uris) == 0 {
		return nil, errors.New("at least one --storage location is required")
	}

	locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
	for _, uri := range uris {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, fmt.Errorf("invalid storage location %q: %w", uri, err)
		}
		locations = append(locations, loc)
	}

	return storage.NewStorageBackendFactory(log).CreateMultiBackend(locations)
}

func newSeed() ([]byte, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return seed, nil
}

// exportState snapshots the persisted state without opening a ledger, so no
// key material is needed. The contract is the one the state was created for.
func exportState(ctx context.Context, dataDir string, uris []string, log *slog.Logger) (interfaces.ContentID, error) {
	backend, err := openStorage(uris, log)
	if err != nil {
		return interfaces.ContentID{}, err
	}

	store, err := openStore(dataDir, log)
	if err != nil {
		return interfaces.ContentID{}, err
	}
	defer store.Close()

	state, err := store.Load(ctx)
	if err != nil {
		return interfaces.ContentID{}, err
	}
	if state == nil {
		return interfaces.ContentID{}, errors.New("state store is empty")
	}
	if state.Contract == nil {
		return interfaces.ContentID{}, errors.New("state store has no contract address")
	}

	data, err := (&ledger.Snapshot{Contract: *state.Contract, State: state}).Marshal()
	if err != nil {
		return interfaces.ContentID{}, err
	}
	return backend.Store(ctx, data, interfaces.ExportType)
}

func importState(ctx context.Context, dataDir string, id interfaces.ContentID, uris []string, log *slog.Logger) error {
	backend, err := openStorage(uris, log)
	if err != nil {
		return err
	}

	snap, err := ledger.FetchSnapshot(ctx, backend, id)
	if err != nil {
		return fmt.Errorf("could not fetch snapshot %s: %w", id.String(), err)
	}

	store, err := openStore(dataDir, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := snap.Restore(ctx, store); err != nil {
		return err
	}
	log.Info("Restored snapshot", "id", id.String(), "contract", snap.Contract,
		"series", len(snap.State.Series), "events", len(snap.State.Events))
	return nil
}
