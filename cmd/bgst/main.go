package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sagarc03/bigstash"
	"github.com/sagarc03/bigstash/clientcli"
	"github.com/sagarc03/bigstash/config"
)

var (
	cfgFile    string
	jsonOutput bool
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:     "bgst",
	Version: bigstash.Version,
	Short:   "Command line client to BigStash",
	Long: `bgst uploads files to BigStash archives and inspects archives,
uploads and notifications of your account.

Settings are read from settings.yaml in the current directory or in the
bigstash config directory (BS_CONFIG_ROOT overrides its location), then
from BGST_* environment variables, then from flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var files []string
		if cfgFile != "" {
			files = append(files, cfgFile)
		}

		cfg, err := config.Load(files, cmd.Flags())
		if err != nil {
			return err
		}

		closer, err := setupLogging(cfg.Log)
		if err != nil {
			return err
		}
		logCloser = closer

		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "settings file (default: settings.yaml in . or the config dir)")
	flags.StringP("profile", "p", "", "credentials profile (default: default, env: BS_PROFILE)")
	flags.String("base-url", "", "API root URL (env: BS_API_URL)")
	flags.BoolVar(&jsonOutput, "json", false, "output as JSON")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	flags.String("log-level", "", "log level: debug, info, warn, error (env: BS_LOG_LEVEL)")
	flags.String("log-format", "", "log format: text, json")
	flags.String("log-file", "", "write logs to this file instead of stderr")
	flags.Duration("timeout", 0, "HTTP timeout for API requests")
	flags.Bool("insecure", false, "skip TLS certificate verification")
	flags.Bool("no-history", false, "do not record uploads locally")
	flags.String("history-dsn", "", "upload history database (default: history.db in the config dir)")

	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(waitCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	closeLogging()
	os.Exit(report(err))
}

// report prints err unless the command already did and returns the exit
// code for it.
func report(err error) int {
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if !errors.As(err, &ee) || ee.err != nil {
		_ = getFormatter().FormatError(os.Stderr, err)
	}

	code := exitCode(err)
	if code == exitUnexpected {
		fmt.Fprintln(os.Stderr, "Run with --log-level debug for details.")
	}
	return code
}

// getFormatter returns the appropriate formatter based on flags.
func getFormatter() clientcli.Formatter {
	return clientcli.NewFormatter(jsonOutput, quiet)
}
