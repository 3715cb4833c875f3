package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/breakout/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the execution journal",
	Long: `Query and display journal records from the SQLite database.

Subcommands:
  streams - List stream records for a trading date
  orders  - List order intents for a stream
  events  - Dump the event log for a stream

Examples:
  breakout journal streams 2025-03-10
  breakout journal orders 2025-03-10 ES_EU_09:00
  breakout journal events 2025-03-10 ES_EU_09:00`,
}

var journalStreamsCmd = &cobra.Command{
	Use:   "streams <YYYY-MM-DD>",
	Short: "List stream records for a trading date",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalStreams,
}

var journalOrdersCmd = &cobra.Command{
	Use:   "orders <YYYY-MM-DD> <stream>",
	Short: "List order intents for a stream",
	Args:  cobra.ExactArgs(2),
	RunE:  runJournalOrders,
}

var journalEventsCmd = &cobra.Command{
	Use:   "events <YYYY-MM-DD> <stream>",
	Short: "Dump the event log for a stream",
	Args:  cobra.ExactArgs(2),
	RunE:  runJournalEvents,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalStreamsCmd)
	journalCmd.AddCommand(journalOrdersCmd)
	journalCmd.AddCommand(journalEventsCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./breakout.db", "path to SQLite journal DB")
}

func openJournal() (journal.Store, error) {
	store, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return store, nil
}

func runJournalStreams(cmd *cobra.Command, args []string) error {
	store, err := openJournal()
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.ListStreams(args[0])
	if err != nil {
		return fmt.Errorf("query streams: %w", err)
	}
	if len(recs) == 0 {
		fmt.Printf("No stream records for %s\n", args[0])
		return nil
	}

	fmt.Printf("%-20s %-14s %-10s %-10s %-10s %s\n", "STREAM", "STATE", "HIGH", "LOW", "LOCKED", "TERMINAL")
	for _, r := range recs {
		fmt.Printf("%-20s %-14s %-10.2f %-10.2f %-10v %s\n",
			r.Stream, r.State, r.RangeHigh, r.RangeLow, r.RangeLocked, r.Terminal)
	}
	return nil
}

func runJournalOrders(cmd *cobra.Command, args []string) error {
	store, err := openJournal()
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.ListIntents(args[0], args[1])
	if err != nil {
		return fmt.Errorf("query intents: %w", err)
	}
	if len(recs) == 0 {
		fmt.Printf("No order intents for %s on %s\n", args[1], args[0])
		return nil
	}

	fmt.Printf("%-68s %-10s %-8s %-10s %s\n", "HASH", "STATE", "FILLED", "COMPLETE", "ORDER")
	for _, r := range recs {
		fmt.Printf("%-68s %-10s %-8.0f %-10v %s\n",
			r.IntentHash, r.State, r.FilledQty, r.Completed, r.OrderID)
	}
	return nil
}

func runJournalEvents(cmd *cobra.Command, args []string) error {
	store, err := openJournal()
	if err != nil {
		return err
	}
	defer store.Close()

	evs, err := store.EventsFor(args[0], args[1])
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	if len(evs) == 0 {
		fmt.Printf("No events for %s on %s\n", args[1], args[0])
		return nil
	}

	for _, e := range evs {
		fmt.Printf("%s  %-22s", e.At.Format(time.RFC3339), e.Type)
		for k, v := range e.Payload {
			fmt.Printf(" %s=%v", k, v)
		}
		fmt.Println()
	}
	return nil
}
