// Package config registers the flags shared by the server and the operator tools
// and turns them into ready-to-use components.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"resumepay/pkg/extract"
	"resumepay/pkg/ocr"
	"resumepay/pkg/payment"
	"resumepay/pkg/store"
)

// EnvPrefix is prepended to every flag name when read from the environment,
// e.g. --db-dsn becomes RESUMEPAY_DB_DSN.
const EnvPrefix = "RESUMEPAY"

// DefaultPrice is the resume export price in ngultrum.
const DefaultPrice = "300"

// Verification holds the flags every binary needs to verify a receipt.
type Verification struct {
	LogLevel    *string
	Environment *string

	Recognizer  *string
	GeminiKey   *string
	GeminiModel *string
	OCRLanguage *string

	Policy          *string
	Amount          *string
	AmountTolerance *string
	WindowSeconds   *int
	Timezone        *string

	HolderName      *string
	AccountNumber   *string
	AccountSuffixes *string
	BankTokens      *string
}

// RegisterVerification adds the verification flags to fs.
func RegisterVerification(fs *ff.FlagSet) *Verification {
	return &Verification{
		LogLevel:    fs.StringLong("log-level", "info", "log level: debug, info, warn, error"),
		Environment: fs.StringLong("environment", "development", "runtime environment; production switches logs to JSON"),

		Recognizer:  fs.StringLong("recognizer", "tesseract", "text recognizer: 'tesseract' or 'gemini'"),
		GeminiKey:   fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		GeminiModel: fs.StringLong("gemini-model", ocr.DefaultGeminiModel, "Google Gemini model name"),
		OCRLanguage: fs.StringLong("ocr-language", ocr.DefaultLanguage, "tesseract language code"),

		Policy:          fs.StringLong("policy", "strict", "verification policy: 'strict' or 'lenient'"),
		Amount:          fs.StringLong("amount", DefaultPrice, "expected payment amount"),
		AmountTolerance: fs.StringLong("amount-tolerance", "", "override the policy's amount tolerance"),
		WindowSeconds:   fs.IntLong("window-seconds", int(payment.DefaultWindow/time.Second), "payment window length in seconds"),
		Timezone:        fs.StringLong("timezone", "Asia/Thimphu", "IANA zone used to read receipt timestamps"),

		HolderName:      fs.StringLong("holder-name", "", "receiving account holder name as printed on receipts"),
		AccountNumber:   fs.StringLong("account-number", "", "receiving account number"),
		AccountSuffixes: fs.StringLong("account-suffixes", "", "comma separated short account suffixes printed by some bank apps"),
		BankTokens:      fs.StringLong("bank-tokens", strings.Join(extract.DefaultBankTokens, ","), "comma separated bank app names that mark a receipt on their own"),
	}
}

// Parse registers --config, then reads args, RESUMEPAY_* variables and the
// optional config file (one "flag value" pair per line), in that order of precedence.
func Parse(fs *ff.FlagSet, args []string) error {
	fs.StringLong("config", "", "optional config file")
	return ff.Parse(fs, args,
		ff.WithEnvVarPrefix(EnvPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ExpectedAmount parses --amount.
func (v *Verification) ExpectedAmount() (decimal.Decimal, error) {
	amt, err := decimal.NewFromString(strings.TrimSpace(*v.Amount))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --amount %q: %w", *v.Amount, err)
	}
	if !amt.IsPositive() {
		return decimal.Zero, fmt.Errorf("--amount must be positive, got %s", amt)
	}
	return amt, nil
}

// Window is --window-seconds as a duration.
func (v *Verification) Window() time.Duration {
	if *v.WindowSeconds <= 0 {
		return payment.DefaultWindow
	}
	return time.Duration(*v.WindowSeconds) * time.Second
}

// Location loads --timezone.
func (v *Verification) Location() (*time.Location, error) {
	if *v.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(*v.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid --timezone %q: %w", *v.Timezone, err)
	}
	return loc, nil
}

// SelectedPolicy resolves --policy and applies --amount-tolerance.
func (v *Verification) SelectedPolicy() (payment.Policy, error) {
	p, err := payment.PolicyByName(*v.Policy)
	if err != nil {
		return payment.Policy{}, err
	}
	if t := strings.TrimSpace(*v.AmountTolerance); t != "" {
		tol, err := decimal.NewFromString(t)
		if err != nil || tol.IsNegative() {
			return payment.Policy{}, fmt.Errorf("invalid --amount-tolerance %q", t)
		}
		p.AmountTolerance = tol
	}
	return p, nil
}

func (v *Verification) Receiver() extract.Receiver {
	return extract.Receiver{
		Name:     *v.HolderName,
		Account:  *v.AccountNumber,
		Suffixes: splitList(*v.AccountSuffixes),
	}
}

func (v *Verification) Gate() extract.Gate {
	g := extract.DefaultGate()
	if tokens := splitList(*v.BankTokens); len(tokens) > 0 {
		g.BankTokens = tokens
	}
	return g
}

// ErrNoReceiver is returned when neither a holder name nor an account is configured.
var ErrNoReceiver = errors.New("configure --holder-name or --account-number so receipts can be matched")

// NewRecognizer builds the configured text recognizer.
func (v *Verification) NewRecognizer(ctx context.Context) (ocr.Recognizer, error) {
	switch *v.Recognizer {
	case "tesseract", "":
		return ocr.NewTesseract(), nil
	case "gemini":
		key := *v.GeminiKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		if key == "" {
			return nil, errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		return ocr.NewGemini(ctx, key, *v.GeminiModel)
	}
	return nil, fmt.Errorf("invalid recognizer %q: want tesseract or gemini", *v.Recognizer)
}

// NewVerifier wires a recognizer into a pass runner and verifier using the flag
// values. metrics may be nil.
func (v *Verification) NewVerifier(rec ocr.Recognizer, log *zap.SugaredLogger, metrics *payment.Metrics, opts ...payment.VerifierOption) (*payment.Verifier, error) {
	policy, err := v.SelectedPolicy()
	if err != nil {
		return nil, err
	}
	receiver := v.Receiver()
	if receiver.Name == "" && receiver.Account == "" {
		return nil, ErrNoReceiver
	}
	loc, err := v.Location()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	runner := ocr.NewRunner(rec,
		ocr.WithLanguage(*v.OCRLanguage),
		ocr.WithLogger(log),
		ocr.WithObserver(metrics.PassObserver()),
	)
	verifier := payment.NewVerifier(
		runner,
		payment.VerifierConfig{Receiver: receiver, Gate: v.Gate(), Policy: policy, Location: loc},
		append([]payment.VerifierOption{payment.WithVerifierLogger(log), payment.WithMetrics(metrics)}, opts...)...,
	)
	return verifier, nil
}

// Storage holds the audit trail flags.
type Storage struct {
	Kind        *string
	DSN         *string
	BoltPath    *string
	AutoMigrate *string
}

func RegisterStorage(fs *ff.FlagSet) *Storage {
	return &Storage{
		Kind:        fs.StringLong("store", "bolt", "attempt store: 'postgres' or 'bolt'"),
		DSN:         fs.StringLong("db-dsn", "", "Postgres DSN for --store=postgres"),
		BoltPath:    fs.StringLong("bolt-path", "resumepay.db", "bbolt file for --store=bolt"),
		AutoMigrate: fs.StringLong("db-auto-migrate", "true", "run gorm AutoMigrate on start (false/0/no to skip)"),
	}
}

func (s *Storage) autoMigrate() bool {
	switch strings.ToLower(strings.TrimSpace(*s.AutoMigrate)) {
	case "false", "0", "no":
		return false
	}
	return true
}

// Migrate prepares the configured store's schema and returns any failure.
func (s *Storage) Migrate() error {
	switch *s.Kind {
	case "postgres":
		return store.MigrateGorm(*s.DSN)
	case "bolt", "":
		st, err := store.OpenBolt(*s.BoltPath)
		if err != nil {
			return err
		}
		return st.Close()
	}
	return fmt.Errorf("invalid store %q: want postgres or bolt", *s.Kind)
}

// Open connects the configured store.
func (s *Storage) Open(log *zap.SugaredLogger) (store.Store, error) {
	switch *s.Kind {
	case "postgres":
		return store.OpenGorm(*s.DSN, s.autoMigrate(), log)
	case "bolt", "":
		return store.OpenBolt(*s.BoltPath)
	}
	return nil, fmt.Errorf("invalid store %q: want postgres or bolt", *s.Kind)
}
