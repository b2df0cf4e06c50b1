package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func getCmdSend(gs *globalState) *cobra.Command {
	var (
		account string
		all     bool
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Mail draft invoices to their members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all == (account != "") {
				return fmt.Errorf("exactly one of --account or --all is required")
			}
			if err := gs.ensureApp(cmd); err != nil {
				return err
			}
			defer gs.close()

			sp := newSpinner(gs.stderr, "sending invoices", !gs.quiet)
			sp.Start()
			report, err := gs.app.Invoicing.Send(cmd.Context(), account, dryRun)
			sp.Stop()
			if err != nil {
				return err
			}

			for _, f := range report.Failures {
				failLine(gs.stderr, "%s", f)
			}
			if report.DryRun {
				successLine(gs.stdout, "dry run: %d invoices rendered (%d failed)",
					report.Invoices-len(report.Failures), len(report.Failures))
				return nil
			}
			successLine(gs.stdout, "sent %d of %d invoices (%d failed)",
				report.Sent, report.Invoices, len(report.Failures))
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&account, "account", "", "send for a single account reference")
	fl.BoolVar(&all, "all", false, "send every draft invoice")
	fl.BoolVar(&dryRun, "dry-run", false, "render letters without sending")
	return cmd
}
