package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/obscura-mint/api/clients"
	"github.com/ruteri/obscura-mint/interfaces"
	"github.com/ruteri/obscura-mint/registry"
)

var errNoCoprocessor = errors.New("this command needs a coprocessor: use --server, or --coprocessor with --rpc-addr")

// obscuraApp runs commands against either a node (HTTP) or a deployed
// contract (chain), which both implement interfaces.ObscuraMint.
type obscuraApp struct {
	out    io.Writer
	mint   interfaces.ObscuraMint
	caller common.Address

	// node serves the coprocessor endpoints. Nil in chain mode without --coprocessor.
	node *clients.ObscuraClient
	// chain is set in chain mode only.
	chain *registry.ObscuraMintClient
}

func (a *obscuraApp) showAddress() {
	printInfo(a.out, "caller", a.caller.Hex())
	printInfo(a.out, "contract", a.mint.ContractAddress().Hex())
}

func (a *obscuraApp) showOwner(ctx context.Context) error {
	owner, err := a.mint.Owner(ctx)
	if err != nil {
		return err
	}
	printInfo(a.out, "owner", owner.Hex())
	if owner == a.caller {
		printOK(a.out, "you are the contract owner")
	}
	return nil
}

func (a *obscuraApp) transferOwnership(ctx context.Context, newOwner common.Address) error {
	receipt, err := a.mint.TransferOwnership(ctx, newOwner)
	if err != nil {
		return err
	}
	printOK(a.out, "ownership transferred to %s", newOwner.Hex())
	printReceipt(a.out, receipt)
	return nil
}

func (a *obscuraApp) createSeries(ctx context.Context, name string, maxSupply uint32) error {
	receipt, err := a.mint.CreateSeries(ctx, name, maxSupply)
	if err != nil {
		return err
	}
	if id, ok := receipt.CreatedSeriesID(); ok {
		printOK(a.out, "created series #%d %q with max supply %d", id, name, maxSupply)
	} else {
		printWarn(a.out, "transaction succeeded but no SeriesCreated event was found")
	}
	printReceipt(a.out, receipt)
	return nil
}

func (a *obscuraApp) mintSeries(ctx context.Context, seriesID uint64, amount uint32) error {
	var (
		receipt *interfaces.Receipt
		err     error
	)
	if amount == 1 {
		receipt, err = a.mint.MintOne(ctx, seriesID)
	} else {
		receipt, err = a.mint.Mint(ctx, seriesID, amount)
	}
	if err != nil {
		return err
	}
	printOK(a.out, "minted %d of series #%d", amount, seriesID)
	printReceipt(a.out, receipt)
	return nil
}

// showSeries prints one series, or every series when id is nil.
func (a *obscuraApp) showSeries(ctx context.Context, id *uint64) error {
	if id != nil {
		s, err := a.mint.GetSeries(ctx, *id)
		if err != nil {
			return err
		}
		renderSeriesTable(a.out, []interfaces.Series{*s})
		return nil
	}

	count, err := a.mint.SeriesCount(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		printWarn(a.out, "no series created yet")
		return nil
	}

	series := make([]interfaces.Series, 0, count)
	for i := uint64(0); i < count; i++ {
		s, err := a.mint.GetSeries(ctx, i)
		if err != nil {
			return fmt.Errorf("series %d: %w", i, err)
		}
		series = append(series, *s)
	}
	renderSeriesTable(a.out, series)
	return nil
}

func (a *obscuraApp) showBalance(ctx context.Context, seriesID uint64, account common.Address) error {
	balance, err := a.mint.BalanceOf(ctx, account, seriesID)
	if err != nil {
		return err
	}
	printInfo(a.out, fmt.Sprintf("balance of %s in series #%d", account.Hex(), seriesID), balance)
	return nil
}

func (a *obscuraApp) setObscuraOwner(ctx context.Context, seriesID uint64, owner common.Address) error {
	if a.node == nil {
		return errNoCoprocessor
	}

	input, err := a.node.EncryptFor(ctx, a.mint.ContractAddress(), owner)
	if err != nil {
		return fmt.Errorf("could not encrypt owner: %w", err)
	}
	printInfo(a.out, "handle", input.Handle.Hex())

	receipt, err := a.mint.SetObscuraOwner(ctx, seriesID, input.Handle, input.InputProof)
	if err != nil {
		return err
	}
	printOK(a.out, "confidential owner of series #%d updated", seriesID)
	printReceipt(a.out, receipt)
	return nil
}

func (a *obscuraApp) decryptObscuraOwner(ctx context.Context, seriesID uint64, durationDays int64) error {
	if a.node == nil {
		return errNoCoprocessor
	}

	handle, err := a.mint.GetObscuraOwner(ctx, seriesID)
	if err != nil {
		return err
	}
	if handle.IsZero() {
		printWarn(a.out, "series #%d has no confidential owner", seriesID)
		return nil
	}

	owner, err := a.node.DecryptHandle(ctx, a.mint.ContractAddress(), handle, durationDays)
	if err != nil {
		return a.decryptError(err)
	}
	printInfo(a.out, fmt.Sprintf("obscura owner of series #%d", seriesID), owner.Hex())
	return nil
}

// decryptError explains the usual cause of a rejected decryption in chain
// mode: the coprocessor only grants handles of contracts it follows.
func (a *obscuraApp) decryptError(err error) error {
	if a.chain != nil && errors.Is(err, interfaces.ErrUnauthorized) {
		return fmt.Errorf("%w (the coprocessor node must run with --follow-rpc for contract %s)", err, a.mint.ContractAddress().Hex())
	}
	return err
}

func (a *obscuraApp) showEvents(ctx context.Context, from, limit uint64, follow bool) error {
	if a.chain != nil {
		events, err := a.chain.FilterEvents(ctx, from, nil)
		if err != nil {
			return err
		}
		renderEventsTable(a.out, events)
		return nil
	}

	if follow {
		return a.node.StreamEvents(ctx, from, func(ev interfaces.Event) error {
			printInfo(a.out, fmt.Sprintf("#%d", ev.Seq), describeEvent(ev))
			return nil
		})
	}

	page, err := a.node.Events(ctx, from, limit)
	if err != nil {
		return err
	}
	renderEventsTable(a.out, page.Events)
	printInfo(a.out, "next", page.Next)
	return nil
}
