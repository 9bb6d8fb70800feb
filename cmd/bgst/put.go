package main

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/sagarc03/bigstash"
	"github.com/sagarc03/bigstash/clientcli"
	"github.com/sagarc03/bigstash/history"
	"github.com/sagarc03/bigstash/manifest"
	"github.com/sagarc03/bigstash/upload"
)

var (
	putIgnoreFile string
	putTitle      string
	putSilent     bool
	putDontWait   bool
	putDryRun     bool
)

var putCmd = &cobra.Command{
	Use:   "put <files>...",
	Short: "Upload files as a new archive",
	Long: `Upload files and directories as a new archive.

Directories are uploaded recursively. System files, links and paths
matching the ignore file are skipped; names the service cannot store are
reported and nothing is uploaded.

Exit status is 0 when the archive completed, 2 when the service failed
or rejected it, 3 on local file errors, 4 when some names are invalid
and 5 when no files were found.

Examples:
  bgst put ./photos
  bgst put -t "Tax 2025" ./tax/*.pdf
  bgst put --ignore-file .bgstignore --dont-wait ./project
  bgst put --dry-run ./photos`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPut,
}

func init() {
	putCmd.Flags().StringVar(&putIgnoreFile, "ignore-file", "", "path to a .gitignore like file")
	putCmd.Flags().StringVarP(&putTitle, "title", "t", "", "archive title (default: name of the common directory)")
	putCmd.Flags().BoolVar(&putSilent, "silent", false, "do not show any progress or other messages")
	putCmd.Flags().BoolVar(&putDontWait, "dont-wait", false, "do not wait for the archive status after uploading")
	putCmd.Flags().BoolVar(&putDryRun, "dry-run", false, "show the files that would be uploaded and exit")
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var patterns []string
	if putIgnoreFile != "" {
		p, err := manifest.LoadIgnoreFile(putIgnoreFile)
		if err != nil {
			return err
		}
		patterns = p
	}

	res, err := manifest.FromPaths(ctx, args, manifest.Options{
		Title:     putTitle,
		Validator: manifest.NewValidator(patterns),
	})
	if err != nil {
		return err
	}
	m := res.Manifest

	ignoredMsg := ""
	if n := len(res.Ignored); n > 0 {
		ignoredMsg = fmt.Sprintf(" (%d %s ignored)", n, plural(n, "file"))
	}

	if m.Len() == 0 {
		fmt.Println("No files found" + ignoredMsg)
		return &exitError{code: exitNoFiles}
	}
	if len(res.Errors) > 0 {
		_ = getFormatter().FormatValidation(os.Stdout, res.Errors)
		return &exitError{code: exitInvalidFiles}
	}

	if putDryRun {
		return getFormatter().FormatManifest(os.Stdout, m)
	}

	c, cfg, err := newClient(cmd)
	if err != nil {
		return err
	}

	store := openHistory(ctx, cfg)
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	silent := putSilent || quiet || jsonOutput
	out := &putOutput{silent: silent, files: m.Len(), ignoredMsg: ignoredMsg}

	up, err := newOrchestrator(c, cfg).Run(ctx, m, upload.Options{
		NoWait:     putDontWait,
		OnProgress: out.progress,
		OnState: func(ev upload.Event) {
			out.state(ev)
			journal(cmd, store, m, ev)
		},
	})
	if err != nil {
		out.closeLine()
		return err
	}

	if putDontWait {
		if jsonOutput {
			return getFormatter().FormatUpload(os.Stdout, clientcli.NewUploadInfo(up))
		}
		return nil
	}

	if putSilent {
		if up.Status != bigstash.StatusCompleted {
			return &exitError{code: exitService}
		}
		return nil
	}

	out.closeLine()
	return finish(up)
}

// journal keeps the upload history in step with the workflow.
func journal(cmd *cobra.Command, store *history.Store, m *manifest.Manifest, ev upload.Event) {
	if store == nil || ev.Upload == nil {
		return
	}

	ctx := cmd.Context()
	switch ev.State {
	case upload.StateUploadCreated:
		if _, err := store.Record(ctx, history.NewEntry(ev.Upload, m.Title(), m.Size(), m.Len())); err != nil {
			slog.Warn("could not record upload", "upload", ev.Upload.URL, "error", err)
		}
	case upload.StateUploaded, upload.StateProcessing, upload.StateCompleted, upload.StateError:
		recordStatus(ctx, store, ev.Upload.ID(), ev.Upload.Status)
	}
}

// putOutput prints the progress of an upload the way bgst always has.
type putOutput struct {
	silent     bool
	files      int
	ignoredMsg string

	mu      sync.Mutex
	inFile  bool
	waiting bool
}

func (o *putOutput) state(ev upload.Event) {
	if o.silent {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	switch ev.State {
	case upload.StateUploadCreated:
		fmt.Printf("Uploading %d %s as archive %s..%s\n", o.files, plural(o.files, "file"), ev.Archive.Key, o.ignoredMsg)
	case upload.StateTransferring:
		o.finishFile()
		o.inFile = true
	case upload.StateUploaded:
		o.finishFile()
		if !putDontWait {
			fmt.Printf("Waiting for %s..", ev.Upload.URL)
			o.waiting = true
		}
	case upload.StateProcessing, upload.StateCompleted, upload.StateError:
		fmt.Print(".")
	}
}

func (o *putOutput) progress(path string, wrote, total int64) {
	if o.silent {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	fmt.Print(clientcli.ProgressLine(path, wrote, total))
}

// finishFile ends the progress line of the previous file. Callers hold mu.
func (o *putOutput) finishFile() {
	if !o.inFile {
		return
	}
	fmt.Println("..OK")
	o.inFile = false
}

// closeLine ends any progress or waiting line left open.
func (o *putOutput) closeLine() {
	if o.silent {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.inFile || o.waiting {
		fmt.Println()
	}
	o.inFile, o.waiting = false, false
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
