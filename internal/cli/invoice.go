package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func getCmdInvoice(gs *globalState) *cobra.Command {
	var (
		account      string
		all          bool
		exportDir    string
		deleteDrafts bool
	)
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Generate draft invoices from account balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all == (account != "") {
				return fmt.Errorf("exactly one of --account or --all is required")
			}
			if err := gs.ensureApp(cmd); err != nil {
				return err
			}
			defer gs.close()

			report, err := gs.app.Invoicing.Generate(cmd.Context(), account, deleteDrafts, exportDir)
			if err != nil {
				return err
			}
			for _, f := range report.Failures {
				failLine(gs.stderr, "%s", f)
			}
			line := fmt.Sprintf("run %s: %d invoices from %d accounts (%d skipped)",
				report.RunID, report.Created, report.Accounts, report.Skipped)
			if report.DraftsDeleted > 0 {
				line += fmt.Sprintf(", %d stale drafts deleted", report.DraftsDeleted)
			}
			if report.Exported > 0 {
				line += fmt.Sprintf(", %d letters exported to %s", report.Exported, exportDir)
			}
			successLine(gs.stdout, "%s", line)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&account, "account", "", "generate for a single account reference")
	fl.BoolVar(&all, "all", false, "generate for every account")
	fl.StringVar(&exportDir, "export", "", "write rendered letters into this directory")
	fl.BoolVar(&deleteDrafts, "delete-drafts", false, "delete existing drafts before generating")
	return cmd
}
