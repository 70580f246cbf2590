package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmed/simpleice/internal/app"
	"github.com/rmed/simpleice/internal/config"
	"github.com/rmed/simpleice/internal/provider"
	"github.com/rmed/simpleice/internal/provider/smtp"
	"github.com/rmed/simpleice/internal/store"
	"github.com/rmed/simpleice/internal/store/jsonfile"
)

// newSender builds the delivery transport. Tests replace it.
var newSender = func() provider.Sender {
	return smtp.New()
}

// resolveSecret returns the SMTP secret using the first available source:
// config file → environment variable → OS keyring. Accounts without a
// username do not authenticate and need no secret.
func resolveSecret(cfg *config.MailConfig) (string, error) {
	// 1. Config file
	if cfg.Secret != "" {
		return cfg.Secret, nil
	}

	// 2. Environment variable
	if s := os.Getenv(config.SecretEnv); s != "" {
		return s, nil
	}

	if cfg.Username == "" {
		return "", nil
	}

	// 3. Keyring
	s, err := store.NewKeyringSecretStore().LoadSecret(cfg.Username)
	if errors.Is(err, store.ErrSecretNotFound) {
		return "", fmt.Errorf("%w: no secret for %s: set mail.secret, %s or run 'simpleice secret set'",
			errConfig, cfg.Username, config.SecretEnv)
	}
	if err != nil {
		return "", err
	}
	return s, nil
}

// setupScheduler builds a Scheduler from the config. The returned cleanup
// closes the delivery journal.
func setupScheduler(cmd *cobra.Command, opts ...app.SchedulerOption) (*app.Scheduler, *config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Mail.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	timeout, err := cfg.Mail.SendTimeout()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	secret, err := resolveSecret(&cfg.Mail)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() {}
	base := []app.SchedulerOption{
		app.WithLogger(logger),
		app.WithSendTimeout(timeout),
	}
	if cfg.Store.Journal != "" {
		db, err := openJournal(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		base = append(base, app.WithJournal(db))
		cleanup = func() { db.Close() }
	}

	sch := app.NewScheduler(
		jsonfile.New(cfg.Store.Path),
		newSender(),
		cfg.Mail.Account(secret),
		append(base, opts...)...,
	)
	return sch, cfg, cleanup, nil
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Deliver ICE mails whose trigger date has passed",
		Long: "Run a single check cycle: every Active mail whose trigger date has passed\n" +
			"is delivered and marked Sent. Failed deliveries stay Active and are\n" +
			"retried on the next check. Suitable for cron.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sch, _, cleanup, err := setupScheduler(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := sch.Check(cmd.Context())
			if jsonFlag {
				if perr := printJSON(cmd, toJSONCycle(summary)); perr != nil {
					return perr
				}
			} else {
				printSummary(cmd, summary)
			}
			if err != nil {
				return err
			}
			if n := len(summary.Failed); n > 0 {
				return fmt.Errorf("%d of %d deliveries failed: %w", n, n+len(summary.Sent), summary.Failed[0].Err)
			}
			return nil
		},
	}
}

func printSummary(cmd *cobra.Command, summary app.CycleSummary) {
	w := cmd.OutOrStdout()
	for _, o := range summary.Sent {
		fmt.Fprintf(w, "%s %s -> %s\n", activeStyle.Render("sent"), o.Mail.Name, o.Mail.Recipient)
	}
	for _, o := range summary.Failed {
		fmt.Fprintf(w, "%s %s -> %s: %v\n", draftStyle.Render("failed"), o.Mail.Name, o.Mail.Recipient, o.Err)
	}
	fmt.Fprintf(w, "Sent %d, failed %d.\n", len(summary.Sent), len(summary.Failed))
}

func newDaemonCmd() *cobra.Command {
	var intervalFlag time.Duration

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run check cycles on a fixed interval",
		Long: "Run a check cycle immediately and then every interval until interrupted.\n" +
			"A cycle in progress always completes before the daemon exits.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sch, cfg, cleanup, err := setupScheduler(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			interval := intervalFlag
			if interval == 0 {
				if interval, err = cfg.Interval(); err != nil {
					return fmt.Errorf("%w: %w", errConfig, err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return sch.Run(ctx, interval)
		},
	}

	cmd.Flags().DurationVar(&intervalFlag, "interval", 0, "check interval (overrides daemon.interval)")
	return cmd
}
