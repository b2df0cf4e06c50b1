package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const dateFlagLayout = "2006-01-02"

func getCmdProcess(gs *globalState) *cobra.Command {
	var (
		fromFlag string
		toFlag   string
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Price unbilled flights and book the charges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, err := parseDateFlag(fromFlag)
			if err != nil {
				return err
			}
			to, err := parseDateFlag(toFlag)
			if err != nil {
				return err
			}
			if err := gs.ensureApp(cmd); err != nil {
				return err
			}
			defer gs.close()

			sp := newSpinner(gs.stderr, "pricing flights", !gs.quiet)
			sp.Start()
			report, err := gs.app.Billing.ProcessFlights(cmd.Context(), from, to, dryRun)
			sp.Stop()
			if err != nil {
				return err
			}

			printWarnings(gs, report.Warnings)
			for _, u := range report.Unmatched {
				warnLine(gs.stderr, "no rule matched %s", u)
			}
			if report.DryRun {
				successLine(gs.stdout, "dry run: %d of %d flights would book %d entries totaling %s",
					report.Billed, report.Flights, report.Entries, report.Total.StringFixed(2))
				return nil
			}
			successLine(gs.stdout, "billed %d of %d flights, %d entries totaling %s",
				report.Billed, report.Flights, report.Entries, report.Total.StringFixed(2))
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&fromFlag, "from", "", "only flights on or after this date (YYYY-MM-DD)")
	fl.StringVar(&toFlag, "to", "", "only flights up to this date (YYYY-MM-DD)")
	fl.BoolVar(&dryRun, "dry-run", false, "price without booking")
	return cmd
}

func parseDateFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateFlagLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", value)
	}
	return t, nil
}
