package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sagarc03/bigstash"
	"github.com/sagarc03/bigstash/clientcli"
	"github.com/sagarc03/bigstash/config"
)

var errNoCredentials = errors.New("no saved credentials found, run 'bgst settings' first")

// credentialsPath returns the location of the profiles file.
func credentialsPath() (string, error) {
	dir, err := config.DefaultDir()
	if err != nil {
		return "", err
	}
	return clientcli.DefaultConfigPath(dir), nil
}

// apiOptions converts the HTTP settings to client options.
func apiOptions(cfg *config.Config) []bigstash.Option {
	var opts []bigstash.Option
	if cfg.HTTP.Timeout > 0 {
		opts = append(opts, bigstash.WithTimeout(cfg.HTTP.Timeout))
	}
	if cfg.HTTP.InsecureSkipVerify {
		opts = append(opts, bigstash.WithInsecureSkipVerify())
	}
	return opts
}

// resolveConfig finds the credentials for the selected profile.
// BS_API_KEY and BS_API_SECRET win over saved credentials. A saved
// profile's base URL wins over settings unless --base-url is given. With
// nothing saved and a terminal attached the user is asked to log in.
func resolveConfig(cmd *cobra.Command, cfg *config.Config) (*clientcli.Config, error) {
	base := &clientcli.Config{BaseURL: cfg.BaseURL}
	var flagCfg *clientcli.Config
	if cmd.Flags().Changed("base-url") {
		flagCfg = &clientcli.Config{BaseURL: cfg.BaseURL}
	}

	env := clientcli.ConfigFromEnv()
	if env.Key != "" && env.Secret != "" {
		return clientcli.MergeConfig(base, env, flagCfg), nil
	}

	path, err := credentialsPath()
	if err != nil {
		return nil, err
	}
	file, err := clientcli.LoadOrEmpty(path)
	if err != nil {
		return nil, err
	}

	p, err := file.GetProfile(cfg.Profile)
	if err == nil {
		return clientcli.MergeConfig(base, clientcli.ConfigFromProfile(p), flagCfg), nil
	}
	if !errors.Is(err, clientcli.ErrNoProfiles) && !errors.Is(err, clientcli.ErrProfileNotFound) {
		return nil, err
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errNoCredentials
	}

	fmt.Println("No saved credentials found")
	token, err := login(cmd.Context(), cfg, "", "")
	if err != nil {
		return nil, err
	}
	if err := offerSave(cfg, file, path, token); err != nil {
		return nil, err
	}

	return clientcli.MergeConfig(base, &clientcli.Config{Key: token.Key, Secret: token.Secret, TokenURL: token.URL}, flagCfg), nil
}

// newClient builds a client for the selected profile.
func newClient(cmd *cobra.Command) (*clientcli.Client, *config.Config, error) {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return nil, nil, err
	}

	clientCfg, err := resolveConfig(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}

	c, err := clientcli.New(clientCfg, apiOptions(cfg)...)
	if err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}

// login asks for whatever credentials are missing and exchanges them for
// an API key.
func login(ctx context.Context, cfg *config.Config, username, password string) (*bigstash.Token, error) {
	if username == "" {
		prompt := promptui.Prompt{
			Label: "Username",
			Validate: func(input string) error {
				if strings.TrimSpace(input) == "" {
					return errors.New("username is required")
				}
				return nil
			},
		}
		v, err := prompt.Run()
		if err != nil {
			return nil, handlePromptError(err)
		}
		username = strings.TrimSpace(v)
	}

	if password == "" {
		fmt.Print("Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	}

	return clientcli.Login(ctx, cfg.BaseURL, username, password, apiOptions(cfg)...)
}

// offerSave stores token under the selected profile if the user agrees.
func offerSave(cfg *config.Config, file *clientcli.ConfigFile, path string, token *bigstash.Token) error {
	prompt := promptui.Prompt{
		Label:     "Save api key to settings",
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return handlePromptError(err)
		}
		return nil
	}

	p := clientcli.ProfileFromToken(cfg.Profile, cfg.BaseURL, token)
	p.Default = len(file.Profiles) == 0
	file.PutProfile(p)

	if err := file.Save(path); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	fmt.Printf("Saved api key for profile '%s'.\n", cfg.Profile)
	return nil
}

// handlePromptError handles promptui errors.
func handlePromptError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) {
		fmt.Println("Cancelled.")
		return &exitError{code: exitUnexpected}
	}
	return err
}

// archiveID returns the numeric archive id of an archive key such as
// 42-ABCDEF.
func archiveID(key string) string {
	id, _, _ := strings.Cut(key, "-")
	return id
}
