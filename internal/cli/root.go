// Package cli implements the laskutin command tree.
package cli

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pik-ry/laskutin/internal/app"
	"github.com/pik-ry/laskutin/internal/config"
	"github.com/pik-ry/laskutin/internal/platform/database"
	"github.com/pik-ry/laskutin/internal/storage/postgres"
	"github.com/pik-ry/laskutin/pkg/logger"
)

// globalState carries everything the commands share: flag values, the
// filesystem, the output streams and the lazily built application.
type globalState struct {
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer

	cfgPath   string
	verbose   bool
	quiet     bool
	logFormat string

	cfg config.Config
	log *logger.Logger

	app *app.Application
	db  *sql.DB
}

func newGlobalState(fsys afero.Fs, stdout, stderr io.Writer) *globalState {
	return &globalState{fs: fsys, stdout: stdout, stderr: stderr}
}

// setup loads the settings file and builds the logger. It runs as the
// persistent pre-run of every command.
func (gs *globalState) setup() error {
	_ = godotenv.Load() // allow .env for local runs

	cfg, err := config.LoadOrDefault(gs.fs, gs.cfgPath)
	if err != nil {
		return err
	}
	if gs.verbose {
		cfg.Logging.Level = "debug"
	}
	if gs.quiet {
		cfg.Logging.Level = "error"
	}
	if gs.logFormat != "" {
		cfg.Logging.Format = gs.logFormat
	}
	gs.cfg = cfg
	gs.log = logger.New(cfg.Logging)
	return nil
}

// ensureApp builds the application once, opening the database when a
// DSN is configured.
func (gs *globalState) ensureApp(cmd *cobra.Command) error {
	if gs.app != nil {
		return nil
	}

	stores := app.Stores{}
	if gs.cfg.Database.DSN != "" {
		db, err := database.Open(cmd.Context(), gs.cfg.Database.DSN, database.Options{
			MaxOpenConns:    gs.cfg.Database.MaxOpenConns,
			MaxIdleConns:    gs.cfg.Database.MaxIdleConns,
			ConnMaxLifetime: gs.cfg.Database.ConnMaxLifetime.Std(),
		})
		if err != nil {
			return err
		}
		gs.db = db
		store := postgres.New(db)
		stores = app.Stores{
			Members:  store,
			Accounts: store,
			Entries:  store,
			Aircraft: store,
			Flights:  store,
			Invoices: store,
		}
	} else {
		gs.log.Warn("database.dsn is empty; running on in-memory stores")
	}

	a, err := app.New(gs.cfg, stores, gs.fs, gs.log)
	if err != nil {
		gs.close()
		return err
	}
	gs.app = a
	return nil
}

// close releases the database handle opened by ensureApp.
func (gs *globalState) close() {
	if gs.db != nil {
		_ = gs.db.Close()
		gs.db = nil
	}
}

func newRootCommand(gs *globalState) *cobra.Command {
	root := &cobra.Command{
		Use:   "laskutin",
		Short: "Invoicing for the Polytech Flying Club",
		Long: `laskutin keeps the flight ledger of Polyteknikkojen Ilmailukerho:
it imports member registers, flight logs and bank statements, prices
flights with the season rules and turns account balances into invoices.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return gs.setup()
		},
	}

	root.PersistentFlags().AddFlagSet(rootCmdPersistentFlagSet(gs))
	root.SetOut(gs.stdout)
	root.SetErr(gs.stderr)

	root.AddCommand(
		getCmdServe(gs),
		getCmdMigrate(gs),
		getCmdSeed(gs),
		getCmdImport(gs),
		getCmdProcess(gs),
		getCmdInvoice(gs),
		getCmdSend(gs),
		getCmdExport(gs),
		getCmdBalances(gs),
		getCmdVersion(gs),
	)
	return root
}

func rootCmdPersistentFlagSet(gs *globalState) *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.StringVar(&gs.cfgPath, "config", "", "settings file (default laskutin.yaml)")
	flags.BoolVarP(&gs.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVarP(&gs.quiet, "quiet", "q", false, "log errors only")
	flags.StringVar(&gs.logFormat, "log-format", "", "log format, text or json")
	return flags
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	gs := newGlobalState(afero.NewOsFs(), os.Stdout, os.Stderr)
	root := newRootCommand(gs)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(gs.stderr, "laskutin: %v\n", err)
		return 1
	}
	return 0
}
