package cli

import (
	"github.com/spf13/cobra"
)

func getCmdSeed(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create any missing club fleet aircraft",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := gs.ensureApp(cmd); err != nil {
				return err
			}
			defer gs.close()

			created, err := gs.app.Operations.Seed(cmd.Context())
			if err != nil {
				return err
			}
			if created == 0 {
				successLine(gs.stdout, "fleet already seeded")
				return nil
			}
			successLine(gs.stdout, "seeded %d aircraft", created)
			return nil
		},
	}
}
