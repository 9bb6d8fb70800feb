package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/bigstash"
	"github.com/sagarc03/bigstash/clientcli"
	"github.com/sagarc03/bigstash/config"
	"github.com/sagarc03/bigstash/history"
	"github.com/sagarc03/bigstash/upload"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List uploads recorded on this machine",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		dir, err := config.DefaultDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
		store, err := history.Open(cmd.Context(), cfg.History.Store(dir))
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		entries, err := store.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		return getFormatter().FormatHistory(os.Stdout, entries)
	},
}

var waitCmd = &cobra.Command{
	Use:   "wait <upload-url|upload-id>",
	Short: "Wait for an upload to finish processing",
	Long: `Poll an upload until the service reports it completed or failed.
Uploads recorded by 'bgst put' can be referred to by id.`,
	Args: cobra.ExactArgs(1),
	RunE: runWait,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "show up to this many uploads, 0 for all")
}

func runWait(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	c, cfg, err := newClient(cmd)
	if err != nil {
		return err
	}

	ref := args[0]
	store := openHistory(ctx, cfg)
	if store != nil {
		defer func() { _ = store.Close() }()
		if e, err := store.Find(ctx, ref); err == nil {
			ref = e.UploadURL
		}
	}

	up, err := c.GetUpload(ctx, ref)
	if err != nil {
		return err
	}

	silent := quiet || jsonOutput
	if !bigstash.IsTerminalStatus(up.Status) {
		if !silent {
			fmt.Printf("Waiting for %s..", up.URL)
		}
		up, err = newOrchestrator(c, cfg).Wait(ctx, up, upload.Options{
			OnState: func(ev upload.Event) {
				if !silent {
					fmt.Print(".")
				}
				if store != nil && ev.Upload != nil {
					recordStatus(ctx, store, ev.Upload.ID(), ev.Upload.Status)
				}
			},
		})
		if !silent {
			fmt.Println()
		}
		if err != nil {
			return err
		}
	}

	return finish(up)
}

// finish prints the final state of up and fails unless it completed.
func finish(up *bigstash.Upload) error {
	if err := getFormatter().FormatUpload(os.Stdout, clientcli.NewUploadInfo(up)); err != nil {
		return err
	}
	if up.Status != bigstash.StatusCompleted {
		return &exitError{code: exitService}
	}
	return nil
}

// newOrchestrator builds the upload workflow from settings.
func newOrchestrator(c *clientcli.Client, cfg *config.Config) *upload.Orchestrator {
	return upload.New(
		c.API(),
		upload.NewTransfererFactory(cfg.Transfer.Backend, cfg.Transfer.Options()),
		upload.WithRetryPolicy(upload.RetryPolicy{
			InitialInterval: cfg.Poll.InitialInterval,
			MaxInterval:     cfg.Poll.MaxInterval,
		}),
	)
}

// openHistory opens the upload journal. Journal failures never stop a
// command, so nil is returned when it is disabled or cannot be opened.
func openHistory(ctx context.Context, cfg *config.Config) *history.Store {
	if !cfg.History.Enabled {
		return nil
	}

	dir, err := config.DefaultDir()
	if err != nil {
		slog.Warn("upload history disabled", "error", err)
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Warn("upload history disabled", "error", err)
		return nil
	}

	store, err := history.Open(ctx, cfg.History.Store(dir))
	if err != nil {
		slog.Warn("upload history disabled", "error", err)
		return nil
	}
	return store
}

func recordStatus(ctx context.Context, store *history.Store, id, status string) {
	err := store.UpdateStatus(ctx, id, status)
	if err != nil && !errors.Is(err, history.ErrNotFound) {
		slog.Warn("could not update upload history", "upload", id, "error", err)
	}
}
