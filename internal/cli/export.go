package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func getCmdExport(gs *globalState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export accounts, entries or the bookkeeping ledger",
	}
	cmd.AddCommand(
		getCmdExportAccounts(gs),
		getCmdExportEntries(gs),
		getCmdExportLedger(gs),
	)
	return cmd
}

func getCmdExportAccounts(gs *globalState) *cobra.Command {
	var (
		output    string
		validOnly bool
	)
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Write account balances as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := gs.ensureApp(cmd); err != nil {
				return err
			}
			defer gs.close()
			n, err := gs.app.Export.WriteAccounts(cmd.Context(), output, validOnly)
			if err != nil {
				return err
			}
			successLine(gs.stdout, "wrote %d accounts to %s", n, output)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&output, "output", "o", "", "destination file")
	fl.BoolVar(&validOnly, "valid-only", false, "only accounts of current members")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func getCmdExportEntries(gs *globalState) *cobra.Command {
	var (
		output       string
		year         int
		positiveOnly bool
	)
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Write ledger entries as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := gs.ensureApp(cmd); err != nil {
				return err
			}
			defer gs.close()
			n, err := gs.app.Export.WriteEntries(cmd.Context(), output, year, positiveOnly)
			if err != nil {
				return err
			}
			successLine(gs.stdout, "wrote %d entries to %s", n, output)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&output, "output", "o", "", "destination file")
	fl.IntVar(&year, "year", 0, "only entries dated in this year")
	fl.BoolVar(&positiveOnly, "positive-only", false, "skip credits and refunds")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func getCmdExportLedger(gs *globalState) *cobra.Command {
	var (
		output   string
		year     int
		fromFlag string
		toFlag   string
	)
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Write a general ledger file for the bookkeeper",
		Long: `Writes billed entries as double-entry rows against the receivables
account in the semicolon separated format the club's bookkeeping
software imports. A path ending in .gz is gzip compressed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var start, end time.Time
			var err error
			if start, err = parseDateFlag(fromFlag); err != nil {
				return err
			}
			if end, err = parseDateFlag(toFlag); err != nil {
				return err
			}
			if year == 0 && start.IsZero() && end.IsZero() {
				return fmt.Errorf("either --year or --from/--to is required")
			}
			if err := gs.ensureApp(cmd); err != nil {
				return err
			}
			defer gs.close()
			n, err := gs.app.Export.WriteLedger(cmd.Context(), output, year, start, end)
			if err != nil {
				return err
			}
			successLine(gs.stdout, "wrote %d ledger rows to %s", n, output)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&output, "output", "o", "", "destination file")
	fl.IntVar(&year, "year", 0, "export this calendar year")
	fl.StringVar(&fromFlag, "from", "", "first entry date (YYYY-MM-DD)")
	fl.StringVar(&toFlag, "to", "", "last entry date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
