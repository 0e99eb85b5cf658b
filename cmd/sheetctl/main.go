// sheetctl is a command-line client for the sheetflow upload service. It
// drives the full pipeline: upload spreadsheets, assign columns, analyze
// partitions, and manage ingestion sessions.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetflow/backend/internal/client"
	"github.com/sheetflow/backend/internal/models"
)

var (
	serverURL string
	projectID string
	assumeYes bool
)

func main() {
	root := &cobra.Command{
		Use:           "sheetctl",
		Short:         "Client for the sheetflow upload service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("SHEETFLOW_SERVER", "http://localhost:8086"), "server base URL")
	root.PersistentFlags().StringVarP(&projectID, "project", "p", envOr("SHEETFLOW_PROJECT", "default"), "project id")
	root.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "answer yes to confirmation prompts")

	root.AddCommand(
		newUploadCmd(),
		newFilesCmd(),
		newAnalyzeCmd(),
		newSessionsCmd(),
	)

	if err := root.Execute(); err != nil {
		if errors.Is(err, client.ErrDeclined) {
			fmt.Fprintln(os.Stderr, "aborted")
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient() *client.Client {
	return client.NewClient(serverURL, nil)
}

// confirmer prompts on the terminal unless --yes was given.
func confirmer() client.Confirmer {
	if assumeYes {
		return client.AutoConfirm
	}
	return client.ConfirmerFunc(func(_ context.Context, prompt string) (bool, error) {
		fmt.Printf("%s [y/N]: ", prompt)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return false, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	})
}

func newUploadCmd() *cobra.Command {
	var sessionHint string
	var concurrency int

	cmd := &cobra.Command{
		Use:   "upload <file.xlsx> [file.xlsx...]",
		Short: "Upload spreadsheets and wait for ingestion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := newClient()

			results := c.UploadBatchConcurrent(ctx, projectID, args, sessionHint, concurrency, func(fileName string, percent float64) {
				fmt.Printf("\r%s: transferring %.0f%%", fileName, percent)
			})
			fmt.Println()

			poller := client.NewPoller(c)
			failures := 0
			for _, r := range results {
				if r.Err != nil {
					failures++
					fmt.Printf("%s: FAILED: %v\n", r.FileName, r.Err)
					continue
				}
				if _, err := poller.Poll(ctx, projectID, r.UploadID, nil); err != nil {
					failures++
					fmt.Printf("%s: ingestion error: %v\n", r.FileName, err)
					continue
				}
				fmt.Printf("%s: ingested (file %s)\n", r.FileName, r.File.FileID)
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d files failed", failures, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionHint, "session", "", "existing session id to attach uploads to")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 1, "number of parallel transfers")
	return cmd
}

func newFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage uploaded files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the project's uploaded files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			files, err := newClient().ListFiles(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			for _, f := range files {
				session := f.SessionID
				if session == "" {
					session = "-"
				}
				fmt.Printf("%s  %-30s  %6d rows  %-10s  account=%q amount=%q  session=%s\n",
					f.FileID, f.FileName, f.RowCount, f.Status, f.AccountColumnName, f.AmountColumnName, session)
			}
			return nil
		},
	})

	var accountCol, amountCol string
	setCols := &cobra.Command{
		Use:   "set-columns <fileId>",
		Short: "Assign the account and/or amount column of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var account, amount *string
			if cmd.Flags().Changed("account") {
				account = &accountCol
			}
			if cmd.Flags().Changed("amount") {
				amount = &amountCol
			}

			file, err := newClient().UpdateColumns(cmd.Context(), projectID, args[0], account, amount)
			if err != nil {
				return err
			}
			if file == nil {
				fmt.Println("nothing to change")
				return nil
			}
			fmt.Printf("%s: account=%q amount=%q accounts=%v total=%.2f\n",
				file.FileName, file.AccountColumnName, file.AmountColumnName, file.AccountContents, file.TotalAmount)
			return nil
		},
	}
	setCols.Flags().StringVar(&accountCol, "account", "", "account column header")
	setCols.Flags().StringVar(&amountCol, "amount", "", "amount column header")
	cmd.AddCommand(setCols)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <fileId>",
		Short: "Delete an uploaded file and its stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().DeleteFile(cmd.Context(), projectID, args[0])
		},
	})

	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "analyze [fileId...]",
		Short: "Preview session partitions for the given files",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := newClient()

			fileIDs := args
			if all {
				files, err := c.ListFiles(ctx, projectID)
				if err != nil {
					return err
				}
				for _, f := range files {
					fileIDs = append(fileIDs, f.FileID)
				}
			}

			partitions, err := c.AnalyzePartitions(ctx, projectID, fileIDs)
			if err != nil {
				return err
			}
			printPartitions(partitions)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "analyze every uploaded file")
	return cmd
}

func printPartitions(partitions []models.Partition) {
	for _, p := range partitions {
		fmt.Printf("%-20s  %d files  %6d rows  %12.2f  -> %q\n",
			p.AccountName, p.FileCount, p.TotalRows, p.TotalAmount, p.SessionName)
	}
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage ingestion sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the project's sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions, err := newClient().ListSessions(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			for _, s := range sessions {
				fmt.Printf("%s  %-30s  %-9s  %d files  %6d rows  worker=%q\n",
					s.SessionID, s.SessionName, s.Status, s.TotalFiles, s.TotalRowCount, s.WorkerName)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create <fileId> [fileId...]",
		Short: "Partition the given files and create one session per account",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := newClient()

			partitions, err := c.AnalyzePartitions(ctx, projectID, args)
			if err != nil {
				return err
			}
			printPartitions(partitions)

			outcomes, err := c.CreateSessions(ctx, projectID, partitions)
			if err != nil {
				return err
			}
			failures := 0
			for _, o := range outcomes {
				if o.Error != "" {
					failures++
					fmt.Printf("%s: FAILED: %s\n", o.AccountName, o.Error)
					continue
				}
				fmt.Printf("%s: created session %s\n", o.AccountName, o.Session.SessionID)
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d partitions failed", failures, len(outcomes))
			}
			return nil
		},
	})

	var name, worker string
	update := &cobra.Command{
		Use:   "update <sessionId>",
		Short: "Rename a session or reassign its worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var namePtr, workerPtr *string
			if cmd.Flags().Changed("name") {
				namePtr = &name
			}
			if cmd.Flags().Changed("worker") {
				workerPtr = &worker
			}

			updated, err := newClient().UpdateSession(cmd.Context(), projectID, nil, args[0], namePtr, workerPtr)
			if err != nil {
				return err
			}
			if updated == nil {
				fmt.Println("nothing to change")
				return nil
			}
			fmt.Printf("%s  %q  worker=%q\n", updated.SessionID, updated.SessionName, updated.WorkerName)
			return nil
		},
	}
	update.Flags().StringVar(&name, "name", "", "new session name")
	update.Flags().StringVar(&worker, "worker", "", "new worker name")
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:   "merge <sessionId> <sessionId> [sessionId...]",
		Short: "Merge sessions into the first listed one",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			merged, err := newClient().MergeSessions(cmd.Context(), projectID, args, confirmer())
			if err != nil {
				return err
			}
			fmt.Printf("merged into %s: %d files, %d rows\n", merged.SessionID, merged.TotalFiles, merged.TotalRowCount)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <sessionId> [sessionId...]",
		Short: "Delete sessions, keeping their files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().DeleteSessions(cmd.Context(), projectID, args, confirmer())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "start <sessionId>",
		Short: "Start a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			started, err := newClient().StartSession(cmd.Context(), projectID, args)
			if err != nil {
				return err
			}
			fmt.Printf("%s started at %s\n", started.SessionID, started.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "complete <sessionId>",
		Short: "Complete a session (irreversible)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			completed, err := newClient().CompleteSession(cmd.Context(), projectID, args, confirmer())
			if err != nil {
				return err
			}
			fmt.Printf("%s completed: %d files, %d rows staged, export %s\n",
				completed.SessionID, completed.ProcessedFileCount, completed.ProcessedRowCount, completed.ExportPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <sessionId>",
		Short: "Return a session to its created state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reset, err := newClient().ResetSession(cmd.Context(), projectID, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s reset to %s\n", reset.SessionID, reset.Status)
			return nil
		},
	})

	return cmd
}
