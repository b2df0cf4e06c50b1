package cli

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/pik-ry/laskutin/internal/services/operations"
	"github.com/pik-ry/laskutin/internal/services/payments"
)

func getCmdImport(gs *globalState) *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import club records from exported files",
	}
	importCmd.AddCommand(
		getCmdImportMembers(gs),
		getCmdImportFlights(gs),
		getCmdImportEntries(gs),
		getCmdImportBalances(gs),
		getCmdImportBank(gs),
	)
	return importCmd
}

func getCmdImportMembers(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "members FILE",
		Short: "Import a FloMembers member export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := gs.ensureApp(cmd); err != nil {
				return err
			}
			defer gs.close()

			f, err := gs.fs.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			report, err := gs.app.Members.ImportCSV(cmd.Context(), f)
			if err != nil {
				return err
			}
			successLine(gs.stdout, "imported %d members (%d skipped, %d accounts created)",
				report.Imported, report.Skipped, report.AccountsCreated)
			return nil
		},
	}
}

func getCmdImportFlights(gs *globalState) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "flights PATTERN...",
		Short: "Import flight log exports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := gs.ensureApp(cmd); err != nil {
				return err
			}
			defer gs.close()

			paths, err := expandGlobs(gs, args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no flight logs match %v", args)
			}
			files, err := readFiles(gs, paths, "reading flight logs")
			if err != nil {
				return err
			}
			sources := make([]operations.Source, 0, len(files))
			for _, f := range files {
				sources = append(sources, operations.Source{Name: f.name, Reader: bytes.NewReader(f.data)})
			}

			sp := newSpinner(gs.stderr, "importing flights", !gs.quiet)
			sp.Start()
			report, err := gs.app.Operations.ImportFlights(cmd.Context(), sources, dryRun)
			sp.Stop()
			if err != nil {
				return err
			}
			printWarnings(gs, report.Warnings)
			if report.DryRun {
				successLine(gs.stdout, "dry run: %d rows would import %d flights (%d duplicates, %d skipped)",
					report.Rows, report.Imported, report.Duplicates, report.Skipped)
				return nil
			}
			successLine(gs.stdout, "imported %d flights from %d files (%d duplicates, %d skipped)",
				report.Imported, report.Files, report.Duplicates, report.Skipped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and validate without writing")
	return cmd
}

func getCmdImportEntries(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "entries FILE",
		Short: "Import additive ledger entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := gs.ensureApp(cmd); err != nil {
				return err
			}
			defer gs.close()

			f, err := gs.fs.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			report, err := gs.app.Accounts.ImportEntriesCSV(cmd.Context(), f)
			if err != nil {
				return err
			}
			printWarnings(gs, report.Warnings)
			successLine(gs.stdout, "imported %d of %d rows (%d skipped)",
				report.Imported, report.Rows, report.Skipped)
			return nil
		},
	}
}

func getCmdImportBalances(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "balances FILE",
		Short: "Import balance resets from a closing statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := gs.ensureApp(cmd); err != nil {
				return err
			}
			defer gs.close()

			f, err := gs.fs.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			report, err := gs.app.Accounts.ImportBalancesCSV(cmd.Context(), f)
			if err != nil {
				return err
			}
			printWarnings(gs, report.Warnings)
			successLine(gs.stdout, "reset %d balances from %d rows (%d skipped)",
				report.Imported, report.Rows, report.Skipped)
			return nil
		},
	}
}

func getCmdImportBank(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "bank PATTERN...",
		Short: "Import NDA bank statements and book the payments",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := gs.ensureApp(cmd); err != nil {
				return err
			}
			defer gs.close()

			paths, err := expandGlobs(gs, args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no statement files match %v", args)
			}
			files, err := readFiles(gs, paths, "reading statements")
			if err != nil {
				return err
			}
			sources := make([]payments.Source, 0, len(files))
			for _, f := range files {
				sources = append(sources, payments.Source{Name: f.name, Reader: bytes.NewReader(f.data)})
			}

			report, err := gs.app.Payments.ImportStatements(cmd.Context(), sources)
			if err != nil {
				return err
			}
			printWarnings(gs, report.Warnings)
			successLine(gs.stdout, "booked %d payments from %d files (%d duplicates, %d failed)",
				report.Imported, report.Files, report.Duplicates, report.Failed)
			return nil
		},
	}
}

type fileData struct {
	name string
	data []byte
}

// readFiles loads every path up front, showing a progress bar when more
// than one file is read.
func readFiles(gs *globalState, paths []string, prefix string) ([]fileData, error) {
	bar := newProgressBar(gs.stderr, len(paths), prefix, !gs.quiet && len(paths) > 1)
	files := make([]fileData, 0, len(paths))
	for _, path := range paths {
		data, err := afero.ReadFile(gs.fs, path)
		if err != nil {
			return nil, err
		}
		files = append(files, fileData{name: path, data: data})
		bar.Increment()
	}
	bar.Finish()
	return files, nil
}

// expandGlobs resolves glob patterns against the command filesystem.
// Patterns without matches warn; the caller decides whether an empty
// result is an error.
func expandGlobs(gs *globalState, patterns []string) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := afero.Glob(gs.fs, pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			warnLine(gs.stderr, "no files match %q", pattern)
			continue
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func printWarnings(gs *globalState, warnings []string) {
	if gs.quiet {
		return
	}
	for _, w := range warnings {
		warnLine(gs.stderr, "%s", w)
	}
}
