package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/ruteri/obscura-mint/interfaces"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	infoColor = color.New(color.FgCyan)
	warnColor = color.New(color.FgYellow)
)

func printOK(w io.Writer, format string, args ...interface{}) {
	okColor.Fprint(w, "OK ")
	fmt.Fprintf(w, format+"\n", args...)
}

func printInfo(w io.Writer, label string, value interface{}) {
	infoColor.Fprintf(w, "%s: ", label)
	fmt.Fprintln(w, value)
}

func printWarn(w io.Writer, format string, args ...interface{}) {
	warnColor.Fprintf(w, format+"\n", args...)
}

func printReceipt(w io.Writer, r *interfaces.Receipt) {
	printInfo(w, "tx", r.TxHash.Hex())
	printInfo(w, "block", r.Block)
	for _, ev := range r.Events {
		printInfo(w, "event", describeEvent(ev))
	}
}

func describeEvent(ev interfaces.Event) string {
	switch ev.Type {
	case interfaces.EventOwnershipTransferred:
		return fmt.Sprintf("OwnershipTransferred %s -> %s", ev.PreviousOwner.Hex(), ev.NewOwner.Hex())
	case interfaces.EventSeriesCreated:
		return fmt.Sprintf("SeriesCreated #%d %q max=%d by %s", ev.SeriesID, ev.Name, ev.MaxSupply, ev.Creator.Hex())
	case interfaces.EventMinted:
		return fmt.Sprintf("Minted #%d amount=%d to %s", ev.SeriesID, ev.Amount, ev.Minter.Hex())
	case interfaces.EventObscuraOwnerUpdated:
		return fmt.Sprintf("ObscuraOwnerUpdated #%d", ev.SeriesID)
	default:
		return string(ev.Type)
	}
}

func renderSeriesTable(w io.Writer, series []interfaces.Series) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Name", "Minted", "Max Supply", "Remaining", "Creator"})
	table.SetAutoWrapText(false)
	for _, s := range series {
		table.Append([]string{
			strconv.FormatUint(s.ID, 10),
			s.Name,
			strconv.FormatUint(uint64(s.Minted), 10),
			strconv.FormatUint(uint64(s.MaxSupply), 10),
			strconv.FormatUint(uint64(s.Remaining()), 10),
			s.Creator.Hex(),
		})
	}
	table.Render()
}

func renderEventsTable(w io.Writer, events []interfaces.Event) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Seq", "Block", "Event"})
	table.SetAutoWrapText(false)
	for _, ev := range events {
		table.Append([]string{
			strconv.FormatUint(ev.Seq, 10),
			strconv.FormatUint(ev.Block, 10),
			describeEvent(ev),
		})
	}
	table.Render()
}
