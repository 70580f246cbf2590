package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rmed/simpleice/internal/app"
	"github.com/rmed/simpleice/internal/config"
	"github.com/rmed/simpleice/internal/store/jsonfile"
	"github.com/rmed/simpleice/internal/store/sqlite"
)

var (
	// version is set via ldflags at build time.
	version = "dev"
	cfgFile string

	// jsonFlag enables JSON output for all commands.
	jsonFlag bool
)

// errConfig marks failures caused by missing or invalid configuration.
var errConfig = errors.New("configuration error")

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "simpleice",
		Short: "In case of emergency mail scheduler",
		Long: "simpleice keeps pre-composed \"in case of emergency\" mails and delivers\n" +
			"them once their trigger date has passed.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if shell, _ := cmd.Flags().GetString("generate-completion"); shell != "" {
				out := cmd.OutOrStdout()
				switch shell {
				case "bash":
					return cmd.Root().GenBashCompletion(out)
				case "zsh":
					return cmd.Root().GenZshCompletion(out)
				case "fish":
					return cmd.Root().GenFishCompletion(out, true)
				default:
					return fmt.Errorf("unsupported shell: %s (use bash, zsh, or fish)", shell)
				}
			}
			return cmd.Help()
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("simpleice %s\n", version))
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().String("generate-completion", "", "Generate shell completion (bash, zsh, fish)")
	root.Flags().MarkHidden("generate-completion")
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	root.AddCommand(newNewCmd())
	root.AddCommand(newEditCmd())
	root.AddCommand(newActivateCmd())
	root.AddCommand(newDeactivateCmd())
	root.AddCommand(newRemoveCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newDaemonCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newCreateConfigCmd())
	root.AddCommand(newSecretCmd())
	return root
}

func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		printError(root.ErrOrStderr(), err)
		os.Exit(1)
	}
}

// printError reports err together with its kind.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error [%s]: %v\n", errorKind(err), err)
}

// errorKind maps err to the name printed by printError.
func errorKind(err error) string {
	if errors.Is(err, errConfig) {
		return "Config"
	}
	return app.ErrorKind(err)
}

// configPath returns the --config value or the default location.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

// loadConfig loads the application configuration from the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load config: %w", errConfig, err)
	}
	return cfg, nil
}

// openMailService loads the config and returns a MailService over the
// configured store.
func openMailService() (*app.MailService, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return app.NewMailService(jsonfile.New(cfg.Store.Path)), cfg, nil
}

// openJournal opens the delivery journal database.
func openJournal(cfg *config.Config) (*sqlite.DB, error) {
	if cfg.Store.Journal == "" {
		return nil, fmt.Errorf("%w: delivery journal is disabled (store.journal is empty)", errConfig)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Journal), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sqlite.New(cfg.Store.Journal)
	if err != nil {
		return nil, fmt.Errorf("failed to open delivery journal: %w", err)
	}
	return db, nil
}
