// Package app composes stores, services, the API server and the
// scheduler into one lifecycle-managed application. Business logic
// lives in internal/services; this package only wires it together.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/afero"

	rules "github.com/pik-ry/laskutin/internal/billing"
	"github.com/pik-ry/laskutin/internal/config"
	"github.com/pik-ry/laskutin/internal/httpapi"
	"github.com/pik-ry/laskutin/internal/metrics"
	"github.com/pik-ry/laskutin/internal/scheduler"
	"github.com/pik-ry/laskutin/internal/services/accounts"
	billingsvc "github.com/pik-ry/laskutin/internal/services/billing"
	"github.com/pik-ry/laskutin/internal/services/export"
	"github.com/pik-ry/laskutin/internal/services/invoicing"
	"github.com/pik-ry/laskutin/internal/services/members"
	"github.com/pik-ry/laskutin/internal/services/operations"
	"github.com/pik-ry/laskutin/internal/services/payments"
	"github.com/pik-ry/laskutin/internal/storage"
	"github.com/pik-ry/laskutin/internal/storage/memory"
	"github.com/pik-ry/laskutin/internal/system"
	"github.com/pik-ry/laskutin/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to a
// shared in-memory implementation.
type Stores struct {
	Members  storage.MemberStore
	Accounts storage.AccountStore
	Entries  storage.EntryStore
	Aircraft storage.AircraftStore
	Flights  storage.FlightStore
	Invoices storage.InvoiceStore
}

// Application ties the domain services together and manages their
// lifecycle.
type Application struct {
	cfg     config.Config
	fs      afero.Fs
	manager *system.Manager
	log     *logger.Logger

	Members    *members.Service
	Accounts   *accounts.Service
	Operations *operations.Service
	Billing    *billingsvc.Service
	Invoicing  *invoicing.Service
	Export     *export.Service
	Payments   *payments.Service

	// Handler serves the REST API once EnableServer has run.
	Handler http.Handler
	// Scheduler drives the recurring jobs once EnableScheduler has run.
	Scheduler *scheduler.Scheduler
}

// New builds a fully initialised application with the provided stores.
func New(cfg config.Config, stores Stores, fsys afero.Fs, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	mem := memory.New()
	if stores.Members == nil {
		stores.Members = mem
	}
	if stores.Accounts == nil {
		stores.Accounts = mem
	}
	if stores.Entries == nil {
		stores.Entries = mem
	}
	if stores.Aircraft == nil {
		stores.Aircraft = mem
	}
	if stores.Flights == nil {
		stores.Flights = mem
	}
	if stores.Invoices == nil {
		stores.Invoices = mem
	}

	engine, err := buildEngine(cfg.Billing, fsys, log)
	if err != nil {
		return nil, err
	}
	mailer, err := buildMailer(cfg.Mail)
	if err != nil {
		return nil, err
	}
	invOpts, err := invoicingOptions(cfg, fsys)
	if err != nil {
		return nil, err
	}

	memberSvc := members.New(stores.Members, stores.Accounts, log)
	accountSvc := accounts.New(stores.Accounts, stores.Entries, log)
	operationsSvc := operations.New(stores.Aircraft, stores.Flights, stores.Accounts, operationsOptions(cfg), log)
	billingSvc := billingsvc.New(stores.Flights, stores.Entries, stores.Members, engine, log)
	invoicingSvc, err := invoicing.New(stores.Invoices, stores.Accounts, stores.Entries, stores.Members, mailer, invOpts, log)
	if err != nil {
		return nil, fmt.Errorf("invoicing service: %w", err)
	}
	exportSvc := export.New(accountSvc, stores.Entries, stores.Members, export.Options{
		ReceivablesAccount: cfg.Invoicing.ReceivablesAccount,
		ReceivablesName:    cfg.Invoicing.ReceivablesName,
		LedgerAccountNames: cfg.Invoicing.LedgerAccountNames,
	}, log)
	paymentSvc := payments.New(stores.Accounts, stores.Entries, payments.Options{
		AccountIBANs: cfg.Bank.AccountIBANs,
	}, log)

	manager := system.NewManager()
	for _, name := range []string{"members", "accounts", "operations"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		cfg:        cfg,
		fs:         fsys,
		manager:    manager,
		log:        log,
		Members:    memberSvc,
		Accounts:   accountSvc,
		Operations: operationsSvc,
		Billing:    billingSvc,
		Invoicing:  invoicingSvc,
		Export:     exportSvc,
		Payments:   paymentSvc,
	}, nil
}

// EnableServer builds the REST handler and registers the HTTP server
// with the lifecycle manager.
func (a *Application) EnableServer() error {
	if a.cfg.Server.AuthSecret == "" {
		return fmt.Errorf("server.auth_secret is required to serve the API")
	}
	a.Handler = httpapi.NewHandler(httpapi.Services{
		Members:    a.Members,
		Accounts:   a.Accounts,
		Operations: a.Operations,
		Billing:    a.Billing,
		Invoicing:  a.Invoicing,
	}, httpapi.Config{
		AuthSecret: []byte(a.cfg.Server.AuthSecret),
		SkipPaths:  a.cfg.Server.AuthSkipPaths,
		RateRPS:    a.cfg.Server.RateRPS,
		RateBurst:  a.cfg.Server.RateBurst,
	}, a.log)
	return a.manager.Register(newAPIServer(a.cfg.Server.Listen, a.Handler, a.log))
}

// EnableScheduler registers the recurring billing and invoicing jobs.
// Jobs whose cron expression is empty are skipped.
func (a *Application) EnableScheduler() error {
	sched := scheduler.New(a.log)
	err := sched.Add(scheduler.Job{
		Name: "billing",
		Spec: a.cfg.Scheduler.BillingCron,
		Run: func(ctx context.Context) error {
			// Recurring runs price the current year to date. Cap seeding
			// keeps re-runs from double charging.
			now := time.Now().UTC()
			from := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
			report, err := a.Billing.ProcessFlights(ctx, from, now, false)
			if err != nil {
				return err
			}
			metrics.AddEntriesWritten(report.Entries)
			return nil
		},
	})
	if err != nil {
		return err
	}
	err = sched.Add(scheduler.Job{
		Name: "invoicing",
		Spec: a.cfg.Scheduler.InvoicingCron,
		Run: func(ctx context.Context) error {
			// Stale drafts are replaced so the run always reflects the
			// current balances.
			report, err := a.Invoicing.Generate(ctx, "", true, "")
			if err != nil {
				return err
			}
			metrics.AddInvoicesGenerated(report.Created)
			return nil
		},
	})
	if err != nil {
		return err
	}
	a.Scheduler = sched
	return a.manager.Register(sched)
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(svc system.Service) error {
	return a.manager.Register(svc)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

func operationsOptions(cfg config.Config) operations.Options {
	aliases := make(map[string]operations.Alias, len(cfg.Operations.Aliases))
	for key, alias := range cfg.Operations.Aliases {
		aliases[key] = operations.Alias{
			Registration:   alias.Registration,
			DiscountReason: alias.DiscountReason,
		}
	}
	return operations.Options{
		Aliases:               aliases,
		NoInvoicingAircraft:   cfg.Operations.NoInvoicingAircraft,
		NoInvoicingReferences: cfg.Billing.NoInvoicingReferences,
		AllowedPurposes:       cfg.Operations.AllowedPurposes,
		ICAOPrefix:            cfg.Operations.ICAOPrefix,
	}
}

func invoicingOptions(cfg config.Config, fsys afero.Fs) (invoicing.Options, error) {
	opts := invoicing.Options{
		ClubName: cfg.Invoicing.ClubName,
		IBAN:     cfg.Invoicing.IBAN,
		BIC:      cfg.Invoicing.BIC,
		DueDays:  cfg.Invoicing.DueDays,
		Subject:  cfg.Mail.Subject,
		FS:       fsys,
	}
	if cfg.Invoicing.TemplateFile != "" {
		data, err := afero.ReadFile(fsys, cfg.Invoicing.TemplateFile)
		if err != nil {
			return invoicing.Options{}, fmt.Errorf("read letter template: %w", err)
		}
		opts.Template = string(data)
	}
	return opts, nil
}

func buildMailer(cfg config.MailConfig) (invoicing.Mailer, error) {
	if cfg.Host == "" {
		return nil, nil
	}
	mailer, err := invoicing.NewSMTPMailer(invoicing.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.Sender(),
		ReplyTo:  cfg.ReplyTo,
		Rate:     cfg.Rate,
		Burst:    cfg.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("smtp mailer: %w", err)
	}
	return mailer, nil
}

func buildEngine(cfg config.BillingConfig, fsys afero.Fs, log *logger.Logger) (*rules.Engine, error) {
	if cfg.RulesFile == "" {
		log.Warn("no billing rules file configured; billing runs are disabled")
		return nil, nil
	}
	data, err := afero.ReadFile(fsys, cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	root, err := rules.CompileRules(data, log)
	if err != nil {
		return nil, err
	}
	return rules.NewEngine(root, cfg.NoInvoicingReferences, log), nil
}
