package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/bigstash/clientcli"
	"github.com/sagarc03/bigstash/config"
)

var (
	settingsUser        string
	settingsPassword    string
	settingsReset       bool
	settingsShowSecrets bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Obtain and save an API key",
	Long: `Obtain an API key with your BigStash username and password and save
it under the selected profile. Missing credentials are asked for.

With --reset the saved key of the profile is removed and revoked.

Examples:
  bgst settings
  bgst settings --user me@example.com
  bgst --profile work settings --reset`,
	Args: cobra.NoArgs,
	RunE: runSettings,
}

func init() {
	settingsCmd.Flags().StringVarP(&settingsUser, "user", "u", "", "BigStash username")
	settingsCmd.Flags().StringVar(&settingsPassword, "password", "", "BigStash password")
	settingsCmd.Flags().BoolVar(&settingsReset, "reset", false, "remove saved credentials and revoke the API key")
	settingsCmd.Flags().BoolVar(&settingsShowSecrets, "show-secrets", false, "show secret values")
}

func runSettings(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	path, err := credentialsPath()
	if err != nil {
		return err
	}
	file, err := clientcli.LoadOrEmpty(path)
	if err != nil {
		return err
	}

	if settingsReset {
		return resetSettings(cmd, cfg, file, path)
	}

	if p, err := file.GetProfile(cfg.Profile); err == nil {
		return getFormatter().FormatProfile(os.Stdout, *p, settingsShowSecrets)
	}

	token, err := login(cmd.Context(), cfg, settingsUser, settingsPassword)
	if err != nil {
		return err
	}
	return offerSave(cfg, file, path, token)
}

func resetSettings(cmd *cobra.Command, cfg *config.Config, file *clientcli.ConfigFile, path string) error {
	p, err := file.GetProfile(cfg.Profile)
	if errors.Is(err, clientcli.ErrNoProfiles) || errors.Is(err, clientcli.ErrProfileNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	saved := *p

	if err := file.RemoveProfile(saved.Name); err != nil {
		return err
	}
	if err := file.Save(path); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}

	clientCfg := clientcli.ConfigFromProfile(&saved)
	if cmd.Flags().Changed("base-url") || clientCfg.BaseURL == "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	c, err := clientcli.New(clientCfg, apiOptions(cfg)...)
	if err != nil {
		return err
	}
	if err := c.RevokeToken(cmd.Context()); err != nil {
		slog.Warn("could not revoke api key", "profile", saved.Name, "error", err)
		return err
	}

	if !quiet {
		fmt.Printf("Removed and revoked api key for profile '%s'.\n", saved.Name)
	}
	return nil
}
