package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/obscura-mint/interfaces"
)

// ChainSource is the read side of a deployed contract the ACLFollower polls.
type ChainSource interface {
	ContractAddress() common.Address
	HeadBlock(ctx context.Context) (uint64, error)
	FilterEvents(ctx context.Context, from uint64, to *uint64) ([]interfaces.Event, error)
	Owner(ctx context.Context) (common.Address, error)
	GetObscuraOwner(ctx context.Context, seriesID uint64) (interfaces.Handle, error)
}

var _ ChainSource = (*ObscuraMintClient)(nil)

// ACLFollower replays ObscuraOwnerUpdated events of a deployed contract into
// a coprocessor's decryption ACL. For every series whose confidential owner
// changed, the handle currently stored on chain is granted to the contract
// and to the contract owner.
type ACLFollower struct {
	chain    ChainSource
	acl      interfaces.AccessControl
	interval time.Duration
	log      *slog.Logger

	next uint64
}

func NewACLFollower(chain ChainSource, acl interfaces.AccessControl, fromBlock uint64, interval time.Duration, log *slog.Logger) *ACLFollower {
	if log == nil {
		log = slog.Default()
	}
	return &ACLFollower{
		chain:    chain,
		acl:      acl,
		interval: interval,
		log:      log,
		next:     fromBlock,
	}
}

// NextBlock is the first block the next Sync will read.
func (f *ACLFollower) NextBlock() uint64 {
	return f.next
}

// Sync processes every block up to the current head and returns the number
// of handles granted. On error the same range is retried by the next call.
func (f *ACLFollower) Sync(ctx context.Context) (int, error) {
	head, err := f.chain.HeadBlock(ctx)
	if err != nil {
		return 0, err
	}
	if head < f.next {
		return 0, nil
	}

	events, err := f.chain.FilterEvents(ctx, f.next, &head)
	if err != nil {
		return 0, fmt.Errorf("could not filter events in [%d, %d]: %w", f.next, head, err)
	}

	updated := make(map[uint64]struct{})
	for _, ev := range events {
		if ev.Type == interfaces.EventObscuraOwnerUpdated {
			updated[ev.SeriesID] = struct{}{}
		}
	}

	granted := 0
	if len(updated) > 0 {
		owner, err := f.chain.Owner(ctx)
		if err != nil {
			return 0, err
		}

		ids := make([]uint64, 0, len(updated))
		for id := range updated {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, id := range ids {
			handle, err := f.chain.GetObscuraOwner(ctx, id)
			if err != nil {
				return granted, fmt.Errorf("series %d: %w", id, err)
			}
			if handle.IsZero() {
				continue
			}
			for _, account := range []common.Address{f.chain.ContractAddress(), owner} {
				if err := f.acl.Allow(ctx, handle, account); err != nil {
					return granted, fmt.Errorf("series %d: %w", id, err)
				}
			}
			granted++
			f.log.Debug("Granted on-chain handle", "series", id, "handle", handle, "owner", owner)
		}
	}

	f.next = head + 1
	return granted, nil
}

// Run syncs every interval until ctx is done.
func (f *ACLFollower) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		granted, err := f.Sync(ctx)
		if err != nil {
			f.log.Warn("Failed to follow contract events", "contract", f.chain.ContractAddress(), "from", f.next, "err", err)
		} else if granted > 0 {
			f.log.Info("Followed on-chain confidential owners", "granted", granted, "next", f.next)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
