// Command bgst-mock serves an in-memory imitation of the BigStash API for
// local development and tests.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sagarc03/bigstash"
	"github.com/sagarc03/bigstash/blobstore"
	"github.com/sagarc03/bigstash/config"
	"github.com/sagarc03/bigstash/keybackend"
	"github.com/sagarc03/bigstash/mockserver"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "bgst-mock",
	Version: bigstash.Version,
	Short:   "Mock BigStash API server",
	Long: `bgst-mock serves the BigStash API from memory. Archives, uploads and
notifications live for the lifetime of the process. Uploads reach a
terminal status after a configurable number of reads.

When --objects-root is set, files stored there by bgst with the local
transfer backend are checked against the upload manifest.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&cfgFile, "config", "c", "", "settings file (default: settings.yaml in . or the config dir)")
	flags.Int("port", 8000, "HTTP server port")
	flags.String("prefix", mockserver.DefaultPrefix, "path of the API root")
	flags.Int("page-size", mockserver.DefaultPageSize, "default number of list results")
	flags.Int("processing-polls", mockserver.DefaultProcessingPolls, "reads before an uploaded upload completes")
	flags.Bool("fail-processing", false, "end every upload in error")
	flags.String("objects-root", "", "directory holding uploaded objects")
	flags.String("profiles-file", "", "accept the API keys saved in this bgst profiles file")
	flags.Bool("accept-env-key", false, "accept the API key in BS_API_KEY and BS_API_SECRET")
	flags.Bool("cors", false, "allow cross-origin requests")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text, json")
	flags.String("log-file", "", "write logs to this file instead of stderr")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
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
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	srvCfg, cleanup, err := serverConfig(cfg.Mock)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := mockserver.New(srvCfg)

	addr := fmt.Sprintf(":%d", cfg.Mock.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx := cmd.Context()
	go func() {
		<-ctx.Done()

		slog.Info("shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "err", err)
		}
	}()

	cmd.Printf("Serving BigStash API on http://localhost%s%s/\n", addr, srvCfg.WithDefaults().Prefix)
	slog.Info("starting server", "addr", addr, "prefix", cfg.Mock.Prefix, "users", srvCfg.Accounts.Users())

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// serverConfig builds the mock server configuration. The returned cleanup
// releases the object store, if one was opened.
func serverConfig(mc config.MockConfig) (mockserver.Config, func(), error) {
	accounts, err := keybackend.Load(mc.Accounts)
	if err != nil {
		return mockserver.Config{}, nil, fmt.Errorf("load accounts: %w", err)
	}

	cfg := mockserver.Config{
		Prefix:          mc.Prefix,
		Accounts:        accounts,
		PageSize:        mc.PageSize,
		ProcessingPolls: mc.ProcessingPolls,
		FailProcessing:  mc.FailProcessing,
		CORS:            mc.CORS,
	}

	cleanup := func() {}
	if mc.ObjectsRoot != "" {
		objects, err := blobstore.NewLocal(mc.ObjectsRoot)
		if err != nil {
			return mockserver.Config{}, nil, fmt.Errorf("open objects root: %w", err)
		}
		cfg.Objects = objects
		cleanup = func() { _ = objects.Close() }
	}

	if accounts.Keys() == 0 && accounts.Users() == 0 {
		slog.Warn("no API keys or users configured, every request will be denied")
	}

	return cfg, cleanup, nil
}
