package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	listLimit          int
	notificationsLimit int
	filesTree          bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List archives",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}

		archives, err := c.ListArchives(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		return getFormatter().FormatArchives(os.Stdout, archives)
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <archive-id>",
	Short: "Show an archive",
	Long: `Show an archive. The id may be given as the full archive key, for
example 42-ABCDEF, or as its numeric part.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}

		archive, err := c.GetArchive(cmd.Context(), archiveID(args[0]))
		if err != nil {
			return err
		}
		return getFormatter().FormatArchive(os.Stdout, *archive)
	},
}

var filesCmd = &cobra.Command{
	Use:   "files <archive-id>",
	Short: "List the files of an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}

		files, err := c.ListFiles(cmd.Context(), archiveID(args[0]))
		if err != nil {
			return err
		}
		return getFormatter().FormatFiles(os.Stdout, files, filesTree)
	},
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List account notifications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}

		notifications, err := c.ListNotifications(cmd.Context(), notificationsLimit)
		if err != nil {
			return err
		}
		return getFormatter().FormatNotifications(os.Stdout, notifications)
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Show the account, its quota and latest archives",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, _, err := newClient(cmd)
		if err != nil {
			return err
		}

		user, err := c.User(cmd.Context())
		if err != nil {
			return err
		}
		return getFormatter().FormatUser(os.Stdout, user)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <upload-id>",
	Short: "Cancel a pending upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cfg, err := newClient(cmd)
		if err != nil {
			return err
		}

		if err := c.CancelUpload(cmd.Context(), args[0]); err != nil {
			return err
		}

		store := openHistory(cmd.Context(), cfg)
		if store != nil {
			defer func() { _ = store.Close() }()
			recordStatus(cmd.Context(), store, args[0], "cancelled")
		}

		if !quiet && !jsonOutput {
			fmt.Printf("Upload %s cancelled.\n", args[0])
		}
		return nil
	},
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 10, "show up to this many archives, 0 for all")
	notificationsCmd.Flags().IntVarP(&notificationsLimit, "limit", "n", 10, "show up to this many notifications, 0 for all")
	filesCmd.Flags().BoolVar(&filesTree, "tree", false, "show files as a directory tree")
}
