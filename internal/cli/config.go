package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rmed/simpleice/internal/config"
	"github.com/rmed/simpleice/internal/store"
)

func newCreateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-config",
		Short: "Write a config file with default settings",
		Long:  "Write a config file with default settings and empty mail credentials. An existing file is never replaced.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if err := config.Write(path, config.Defaults()); err != nil {
				if errors.Is(err, config.ErrExists) {
					return fmt.Errorf("%w: %w", errConfig, err)
				}
				return err
			}
			if jsonFlag {
				return printJSON(cmd, jsonAction{OK: true, Action: "create-config", Path: path})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
			return nil
		},
	}
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the SMTP secret stored in the OS keyring",
	}
	cmd.AddCommand(newSecretSetCmd())
	cmd.AddCommand(newSecretDeleteCmd())
	return cmd
}

// secretUsername returns the configured mail username.
func secretUsername() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Mail.Username == "" {
		return "", fmt.Errorf("%w: mail.username is not set", errConfig)
	}
	return cfg.Mail.Username, nil
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set",
		Short: "Store the SMTP secret for mail.username",
		Long:  "Store the SMTP secret for mail.username. The secret is prompted for, or read from stdin when not in a terminal.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := secretUsername()
			if err != nil {
				return err
			}

			var secret string
			if interactive() {
				if secret, err = promptSecret(username); err != nil {
					return err
				}
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read secret from stdin: %w", err)
				}
				secret = strings.TrimRight(line, "\r\n")
			}
			if secret == "" {
				return errors.New("secret must not be empty")
			}

			if err := store.NewKeyringSecretStore().SaveSecret(username, secret); err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(cmd, jsonAction{OK: true, Action: "secret-set", Name: username})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Secret stored for %s.\n", username)
			return nil
		},
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove the SMTP secret for mail.username",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := secretUsername()
			if err != nil {
				return err
			}
			if err := store.NewKeyringSecretStore().DeleteSecret(username); err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(cmd, jsonAction{OK: true, Action: "secret-delete", Name: username})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Secret removed for %s.\n", username)
			return nil
		},
	}
}
