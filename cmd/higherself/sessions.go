package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/higherself-ai/higherself/pkg/session"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored chat sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsExportCmd())
	cmd.AddCommand(newSessionsImportCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, pinned first, most recently updated next",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			for _, sess := range store.Search(query) {
				pin := " "
				if sess.IsPinned {
					pin = "*"
				}
				tags := ""
				if len(sess.Tags) > 0 {
					tags = " [" + strings.Join(sess.Tags, ", ") + "]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-36s  %-30s  %s  %d messages%s\n",
					pin, sess.ID, sess.Title, sess.UpdatedAt.Format("2006-01-02 15:04"), len(sess.Messages), tags)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "filter by title or tag")
	return cmd
}

func newSessionsExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export [session-id ...]",
		Short: "Export sessions to a JSON snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			data, err := store.Export(args)
			if err != nil {
				return err
			}

			if output == "" {
				output = session.ExportFilename("higherself-sessions", time.Now())
			}
			if err := os.WriteFile(output, data, 0600); err != nil {
				return fmt.Errorf("write export file: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <name>-<date>.json)")
	return cmd
}

func newSessionsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import sessions from a JSON snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}

			imported, err := store.Import(context.Background(), data)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d session(s)\n", len(imported))
			return nil
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := store.Delete(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Deleted.")
			return nil
		},
	}
}

// openStore loads the session store for a one-shot command.
func openStore(cmd *cobra.Command) (*session.Store, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	ctx := context.Background()
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() { _ = store.Close(ctx) }
	return store, cleanup, nil
}
