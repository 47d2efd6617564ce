package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/scriptd/internal/script"
	"github.com/roach88/scriptd/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database string
}

// LogEntry is one transition as printed by the log command.
type LogEntry struct {
	Seq        int64  `json:"seq"`
	Script     string `json:"script"`
	ID         string `json:"id"`
	State      string `json:"state"`
	Detail     string `json:"detail,omitempty"`
	RecordedAt string `json:"recorded_at"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log [script]",
		Short: "Show journaled lifecycle transitions",
		Long: `Print the lifecycle transitions recorded by "scriptd run --db".

With no argument every transition is shown in journal order. A script may
be named by its file name or by its ID.

Examples:
  scriptd log --db ./scriptd.db
  scriptd log --db ./scriptd.db greeter
  scriptd log --db ./scriptd.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (overrides config)")

	return cmd
}

func runLog(opts *LogOptions, args []string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if cfg.Database == "" {
		return NewExitError(ExitCommandError, "no database: pass --db or set database")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := os.Stat(cfg.Database); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", cfg.Database))
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	names, err := scriptNames(ctx, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read scripts", err)
	}

	var transitions []store.Transition
	if len(args) == 1 {
		id, err := resolveScript(ctx, st, args[0])
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("unknown script %q", args[0]), err)
		}
		transitions, err = st.Transitions(ctx, id)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read transitions", err)
		}
	} else {
		transitions, err = st.AllTransitions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read transitions", err)
		}
	}

	entries := make([]LogEntry, len(transitions))
	for n, tr := range transitions {
		entries[n] = LogEntry{
			Seq:        tr.Seq,
			Script:     names[tr.ScriptID],
			ID:         tr.ScriptID.String(),
			State:      tr.State,
			Detail:     tr.Detail,
			RecordedAt: tr.RecordedAt.Format(time.RFC3339Nano),
		}
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No transitions recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tSCRIPT\tSTATE\tRECORDED\tDETAIL")
	for _, e := range entries {
		label := e.Script
		if label == "" {
			label = e.ID
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.Seq, label, e.State, e.RecordedAt, e.Detail)
	}
	return tw.Flush()
}

func scriptNames(ctx context.Context, st *store.Store) (map[script.ID]string, error) {
	scripts, err := st.ListScripts(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[script.ID]string, len(scripts))
	for _, s := range scripts {
		names[s.ID] = s.Name
	}
	return names, nil
}

// resolveScript accepts an ID or a script name. Names map to the same
// identity "scriptd run" assigns.
func resolveScript(ctx context.Context, st *store.Store, arg string) (script.ID, error) {
	if id, err := script.ParseID(arg); err == nil {
		return id, nil
	}
	id := script.NameID(arg)
	if _, err := st.LoadScript(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return script.Nil, fmt.Errorf("no script named %q in journal", arg)
		}
		return script.Nil, err
	}
	return id, nil
}
