package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is the release version, overridden at build time with
// -ldflags "-X github.com/pik-ry/laskutin/internal/cli.Version=...".
var Version = "dev"

func versionString() string {
	return fmt.Sprintf("laskutin v%s (%s, %s/%s)",
		Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func getCmdVersion(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the application version",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintln(gs.stdout, versionString())
		},
	}
}
