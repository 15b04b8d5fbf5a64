package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"kanbansync/internal/credentials"
)

func newCredentialsCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	credentialsCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the API token in the system keyring",
		Long: "Store, check and remove the Vikunja API token in the system keyring (macOS Keychain,\n" +
			"Windows Credential Manager or Linux Secret Service). Tokens are stored per instance host.\n" +
			"A token from --token, VIKUNJA_API_TOKEN or the rc file takes precedence over the keyring.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	credentialsCmd.PersistentFlags().String("account", "", "Keyring account (default: host of the base URL)")

	credentialsCmd.AddCommand(newCredentialsSetCmd(stdout, stderr, cfg))
	credentialsCmd.AddCommand(newCredentialsGetCmd(stdout, stderr, cfg))
	credentialsCmd.AddCommand(newCredentialsDeleteCmd(stdout, stderr, cfg))

	return credentialsCmd
}

// credentialAccount returns --account, or the account derived from the
// configured base URL.
func credentialAccount(cmd *cobra.Command, cfg *Config) (string, error) {
	if account, _ := cmd.Flags().GetString("account"); account != "" {
		return account, nil
	}
	settings, err := loadSettings(cmd, cfg)
	if err != nil {
		return "", err
	}
	return credentials.AccountFor(settings.BaseURL), nil
}

func newCredentialsSetCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "set",
		Short: "Store the API token in the system keyring",
		Long:  "Prompt for the API token (input is hidden on a terminal, otherwise one line is read from stdin).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := credentialAccount(cmd, cfg)
			if err != nil {
				return err
			}
			handler := credentials.NewCLIHandler(cfg.credentialManager(), cfg.stdin(), stdout, stderr)
			return handler.Set(cmd.Context(), account)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newCredentialsGetCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Report whether a token is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := credentialAccount(cmd, cfg)
			if err != nil {
				return err
			}
			handler := credentials.NewCLIHandler(cfg.credentialManager(), nil, stdout, stderr)
			return handler.Get(cmd.Context(), account)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newCredentialsDeleteCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove the token from the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := credentialAccount(cmd, cfg)
			if err != nil {
				return err
			}
			handler := credentials.NewCLIHandler(cfg.credentialManager(), nil, stdout, stderr)
			return handler.Delete(cmd.Context(), account)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}
