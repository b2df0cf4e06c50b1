// Package config loads the installation settings file.
//
// Settings live in one YAML file, laskutin.yaml by default. Every field
// has a default, so a missing file yields a runnable in-memory setup.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/pik-ry/laskutin/pkg/logger"
)

// DefaultPath is the settings file looked up when neither the --config
// flag nor LASKUTIN_CONFIG names one.
const DefaultPath = "laskutin.yaml"

// EnvPath is the environment variable naming the settings file.
const EnvPath = "LASKUTIN_CONFIG"

// Duration wraps time.Duration so YAML values like "30m" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config carries every installation setting.
type Config struct {
	Server     ServerConfig         `yaml:"server"`
	Database   DatabaseConfig       `yaml:"database"`
	Mail       MailConfig           `yaml:"mail"`
	Invoicing  InvoicingConfig      `yaml:"invoicing"`
	Operations OperationsConfig     `yaml:"operations"`
	Billing    BillingConfig        `yaml:"billing"`
	Bank       BankConfig           `yaml:"bank"`
	Scheduler  SchedulerConfig      `yaml:"scheduler"`
	Logging    logger.LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Listen is the bind address, host:port.
	Listen string `yaml:"listen"`
	// AuthSecret signs and verifies the bearer tokens. Required to
	// serve the API.
	AuthSecret string `yaml:"auth_secret"`
	// AuthSkipPaths bypass the token check. Defaults to the health and
	// metrics endpoints.
	AuthSkipPaths []string `yaml:"auth_skip_paths"`
	// RateRPS and RateBurst bound requests per caller.
	RateRPS   int `yaml:"rate_rps"`
	RateBurst int `yaml:"rate_burst"`
}

// DatabaseConfig configures the PostgreSQL pool. An empty DSN keeps
// every store in memory.
type DatabaseConfig struct {
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// MailConfig configures outbound SMTP. An empty host disables sending.
type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// From is the sender address; FromName, when set, becomes its
	// display part.
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
	ReplyTo  string `yaml:"reply_to"`
	// Subject overrides the built-in mail subject template.
	Subject string `yaml:"subject"`
	// Rate and Burst throttle outbound sends.
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// Sender returns the from address, in display form when FromName is set.
func (m MailConfig) Sender() string {
	if m.FromName == "" {
		return m.From
	}
	return fmt.Sprintf("%s <%s>", m.FromName, m.From)
}

// InvoicingConfig configures invoice generation and the bookkeeping
// export.
type InvoicingConfig struct {
	// ClubName, IBAN and BIC fill the payee lines of the letter.
	ClubName string `yaml:"club_name"`
	IBAN     string `yaml:"iban"`
	BIC      string `yaml:"bic"`
	// DueDays is added to the invoice date to get the due date.
	DueDays int `yaml:"due_days"`
	// TemplateFile overrides the built-in letter body.
	TemplateFile string `yaml:"template_file"`
	// ReceivablesAccount is the ledger account the voucher export books
	// invoice rows against, with ReceivablesName as its bookkeeping
	// label.
	ReceivablesAccount string `yaml:"receivables_account"`
	ReceivablesName    string `yaml:"receivables_name"`
	// LedgerAccountNames maps ledger account codes to bookkeeping names.
	LedgerAccountNames map[string]string `yaml:"ledger_account_names"`
}

// AliasConfig maps one flight log key to a fleet registration.
type AliasConfig struct {
	Registration   string `yaml:"registration"`
	DiscountReason string `yaml:"discount_reason"`
}

// OperationsConfig configures flight imports.
type OperationsConfig struct {
	// AllowedPurposes lists the known purpose-of-flight codes.
	AllowedPurposes []string `yaml:"allowed_purposes"`
	// Aliases maps log keys to registrations, TOW to OH-TOW for one.
	Aliases map[string]AliasConfig `yaml:"aliases"`
	// NoInvoicingAircraft lists log keys whose rows are dropped.
	NoInvoicingAircraft []string `yaml:"no_invoicing_aircraft"`
	// ICAOPrefix, when set, requires airfield codes to carry it.
	ICAOPrefix string `yaml:"icao_prefix"`
}

// BillingConfig configures the rule engine runs.
type BillingConfig struct {
	// RulesFile is the YAML ruleset the billing run compiles.
	RulesFile string `yaml:"rules_file"`
	// NoInvoicingReferences lists payer references never billed.
	NoInvoicingReferences []string `yaml:"no_invoicing_references"`
}

// BankConfig configures statement imports.
type BankConfig struct {
	// AccountIBANs are the club accounts whose statement credits get
	// booked as payments.
	AccountIBANs []string `yaml:"account_ibans"`
}

// SchedulerConfig holds the cron expressions for the background jobs.
// An empty expression disables the job.
type SchedulerConfig struct {
	BillingCron   string `yaml:"billing_cron"`
	InvoicingCron string `yaml:"invoicing_cron"`
}

// Default returns the settings used when the file does not override
// them.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:        ":8080",
			AuthSkipPaths: []string{"/healthz", "/metrics"},
			RateRPS:       10,
			RateBurst:     20,
		},
		Mail: MailConfig{
			Port:  587,
			Rate:  1,
			Burst: 5,
		},
		Invoicing: InvoicingConfig{
			ClubName:           "Polyteknikkojen Ilmailukerho ry",
			DueDays:            14,
			ReceivablesAccount: "1422",
			ReceivablesName:    "Saamiset jäseniltä",
		},
		Operations: OperationsConfig{
			AllowedPurposes: []string{
				"GEO", "HAR", "HIN", "KOE", "KOU", "LAN", "LAS", "LVL",
				"MAT", "PALO", "RAH", "SAI", "SAR", "SII", "TAI", "TAR",
				"TIL", "VLL", "VOI", "YLE", "MUU", "KIL", "TYY", "TAIKOU",
			},
			ICAOPrefix: "EF",
		},
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and validates the settings file at path. The file must
// exist.
func Load(fsys afero.Fs, path string) (Config, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrDefault resolves the settings file and loads it. An empty path
// falls back to LASKUTIN_CONFIG and then to laskutin.yaml. A named file
// must exist; only the unnamed default may be absent, in which case the
// defaults are returned.
func LoadOrDefault(fsys afero.Fs, path string) (Config, error) {
	named := path != ""
	if path == "" {
		path = os.Getenv(EnvPath)
		named = path != ""
	}
	if path == "" {
		path = DefaultPath
	}
	exists, err := afero.Exists(fsys, path)
	if err != nil {
		return Config{}, fmt.Errorf("stat config: %w", err)
	}
	if !exists {
		if named {
			return Config{}, fmt.Errorf("config file %s not found", path)
		}
		return Default(), nil
	}
	return Load(fsys, path)
}

// Validate checks the loaded settings. Errors name the offending field
// in its YAML form.
func (c Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Server.RateRPS < 0 {
		return fmt.Errorf("server.rate_rps must not be negative")
	}
	if c.Server.RateBurst < 0 {
		return fmt.Errorf("server.rate_burst must not be negative")
	}
	if c.Database.MaxOpenConns < 0 {
		return fmt.Errorf("database.max_open_conns must not be negative")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns must not be negative")
	}
	if c.Mail.Host != "" && c.Mail.From == "" {
		return fmt.Errorf("mail.from is required when mail.host is set")
	}
	if c.Mail.Rate < 0 {
		return fmt.Errorf("mail.rate must not be negative")
	}
	if c.Invoicing.DueDays <= 0 {
		return fmt.Errorf("invoicing.due_days must be positive")
	}
	if c.Invoicing.ReceivablesAccount == "" {
		return fmt.Errorf("invoicing.receivables_account is required")
	}
	return nil
}
