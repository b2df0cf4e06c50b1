package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pik-ry/laskutin/internal/services/accounts"
)

func getCmdBalances(gs *globalState) *cobra.Command {
	var (
		nonzero   bool
		validOnly bool
	)
	cmd := &cobra.Command{
		Use:   "balances",
		Short: "List account balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := gs.ensureApp(cmd); err != nil {
				return err
			}
			defer gs.close()
			summaries, err := gs.app.Accounts.ListSummaries(cmd.Context(), validOnly)
			if err != nil {
				return err
			}
			if nonzero {
				kept := summaries[:0]
				for _, sum := range summaries {
					if !sum.Balance.IsZero() {
						kept = append(kept, sum)
					}
				}
				summaries = kept
			}
			printSummaries(gs, summaries)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&nonzero, "nonzero", false, "hide settled accounts")
	fl.BoolVar(&validOnly, "valid-only", false, "only accounts of current members")
	return cmd
}

func printSummaries(gs *globalState, summaries []accounts.Summary) {
	tw := tabwriter.NewWriter(gs.stdout, 2, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "REFERENCE\tNAME\tBALANCE\tOVERDUE SINCE\tLAST PAYMENT")
	for _, sum := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			sum.Account.Reference,
			sum.Account.Name,
			colorBalance(sum.Balance),
			formatDay(sum.OverdueSince),
			formatDay(sum.LastPayment),
		)
	}
	tw.Flush()

	totals := accounts.SumTotals(summaries)
	fmt.Fprintf(gs.stdout, "\n%d accounts, balance %s (debt %s, credit %s)\n",
		totals.Accounts,
		totals.Balance.StringFixed(2),
		color.RedString(totals.Debt.StringFixed(2)),
		color.GreenString(totals.Credit.StringFixed(2)),
	)
}

// colorBalance colors zero balances too. An uncolored cell in a colored
// column would throw off the tab writer's widths.
func colorBalance(d decimal.Decimal) string {
	s := d.StringFixed(2)
	switch d.Sign() {
	case 1:
		return color.RedString(s)
	case -1:
		return color.GreenString(s)
	default:
		return color.WhiteString(s)
	}
}

func formatDay(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("02.01.2006")
}
