package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vthunder/demerzel/internal/activity"
	"github.com/vthunder/demerzel/internal/gtd"
	"github.com/vthunder/demerzel/internal/ledger"
)

type options struct {
	statePath string
	backend   string
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newRootCmd creates the demerzel-state command with all subcommands attached
func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "demerzel-state",
		Short:         "Inspect demerzel's ledger, activity log and tasks",
		Long:          "demerzel-state reads the agent's state directory. It never writes to it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.statePath, "state", envOr("STATE_PATH", "state"), "state directory")
	cmd.PersistentFlags().StringVar(&opts.backend, "backend", envOr("LEDGER_BACKEND", ledger.BackendSQLite), "ledger backend (sqlite or jsonl)")

	cmd.AddCommand(
		newLedgerCmd(opts),
		newActivityCmd(opts),
		newTasksCmd(opts),
	)
	return cmd
}

func newLedgerCmd(opts *options) *cobra.Command {
	var (
		permit string
		tail   int
		verify bool
	)
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show authorization decisions",
		Long:  "Lists the most recent ledger entries, looks one up by permit, or verifies the hash chain.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			store, err := ledger.OpenStoreReadOnly(opts.backend, opts.statePath)
			if err != nil {
				return fmt.Errorf("ledger: %w", err)
			}
			l, err := ledger.New(ctx, store)
			if err != nil {
				store.Close()
				return fmt.Errorf("ledger: %w", err)
			}
			defer l.Close()
			out := cmd.OutOrStdout()

			if verify {
				if err := l.Verify(ctx); err != nil {
					return fmt.Errorf("ledger: %w", err)
				}
				seq, head := l.Head()
				fmt.Fprintf(out, "OK: %d entries, head %s\n", seq, head)
				return nil
			}

			if permit != "" {
				e, err := l.FindLatestByPermit(ctx, permit)
				if err != nil {
					return fmt.Errorf("ledger: %w", err)
				}
				if e == nil {
					return fmt.Errorf("ledger: no entry for permit %s", permit)
				}
				return printJSON(out, e)
			}

			entries, err := l.Recent(ctx, tail)
			if err != nil {
				return fmt.Errorf("ledger: %w", err)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No ledger entries.")
			}
			for _, e := range entries {
				args, _ := ledger.CanonicalArgs(e.Args)
				fmt.Fprintf(out, "#%-5d %s %-7s %-15s %s intent=%q reason=%q\n",
					e.Sequence, e.Timestamp.Format(time.RFC3339), e.Outcome, e.Tool, args, e.UserIntent, e.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&permit, "permit", "", "show the latest entry for this permit")
	cmd.Flags().IntVar(&tail, "tail", 20, "number of recent entries")
	cmd.Flags().BoolVar(&verify, "verify", false, "verify the hash chain")
	return cmd
}

func newActivityCmd(opts *options) *cobra.Command {
	var (
		tail      int
		typ       string
		query     string
		utterance string
	)
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show the control loop's activity log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := activity.New(opts.statePath)
			var (
				entries []activity.Entry
				err     error
			)
			switch {
			case utterance != "":
				entries, err = log.ForUtterance(utterance)
			case typ != "":
				entries, err = log.ByType(activity.Type(typ), tail)
				reverse(entries)
			case query != "":
				entries, err = log.Search(query, tail)
				reverse(entries)
			default:
				entries, err = log.Recent(tail)
			}
			if err != nil {
				return fmt.Errorf("activity: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No activity.")
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s %-13s %s\n", e.Timestamp.Format("15:04:05.000"), e.Type, e.Summary)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&tail, "tail", 50, "number of entries")
	cmd.Flags().StringVar(&typ, "type", "", "only entries of this type (input, intent, speak, refusal, ...)")
	cmd.Flags().StringVar(&query, "grep", "", "only entries mentioning this text")
	cmd.Flags().StringVar(&utterance, "utterance", "", "every entry for one utterance id, in order")
	return cmd
}

func newTasksCmd(opts *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the task list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := gtd.NewStore(opts.statePath)
			if err := store.Load(); err != nil {
				return fmt.Errorf("tasks: %w", err)
			}
			tasks := store.Open()
			if all {
				tasks = store.All()
			}

			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintln(out, "No tasks.")
			}
			for _, t := range tasks {
				fmt.Fprintf(out, "%3d  [%s] %s\n", t.ID, t.Status, t.Title)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include completed and cleared tasks")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// reverse puts most-recent-first query results back in log order
func reverse(entries []activity.Entry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
