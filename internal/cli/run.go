package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/scriptd/internal/config"
	"github.com/roach88/scriptd/internal/engine"
	"github.com/roach88/scriptd/internal/luaprog"
	"github.com/roach88/scriptd/internal/script"
	"github.com/roach88/scriptd/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [scripts-dir]",
		Short: "Load scripts and run until interrupted",
		Long: `Compile every .lua file in the scripts directory, load one instance per
file and run until SIGINT or SIGTERM. On shutdown every instance is asked
to stop and the command waits up to shutdown_timeout in total.

Scripts that do not cooperate in time are listed and the command exits 1.
When a database is configured, sources and lifecycle transitions are
journaled to it.

Example:
  scriptd run ./scripts
  scriptd run --db ./scriptd.db ./scripts --verbose
  SCRIPTD_SCRIPTS_DIR=./scripts scriptd run`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScripts(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (overrides config)")

	return cmd
}

func runScripts(opts *RunOptions, args []string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.ScriptsDir = args[0]
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if cfg.ScriptsDir == "" {
		return NewExitError(ExitCommandError, "no scripts directory: pass one or set scripts_dir")
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg, opts.Verbose)

	logger.Info("compiling scripts", "dir", cfg.ScriptsDir)
	programs, errs := LoadPrograms(cfg.ScriptsDir, LoadModeFailFast, luaprog.WithCallStackSize(cfg.LuaCallStackSize))
	if len(errs) > 0 {
		return WrapExitError(ExitCommandError, "failed to compile scripts", errs[0])
	}
	logger.Info("scripts compiled", "count", len(programs))

	out := &syncWriter{w: cmd.OutOrStdout()}
	names := make(map[script.ID]string, len(programs))
	for _, prog := range programs {
		names[script.NameID(prog.Name())] = prog.Name()
	}

	mgrOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithDefaultStopTimeout(cfg.StopTimeout),
		engine.WithChat(chatPrinter(out, names)),
	}

	if cfg.Database != "" {
		logger.Info("opening database", "path", cfg.Database)
		st, err := store.Open(cfg.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		if err := saveSources(cmd.Context(), st, programs); err != nil {
			return WrapExitError(ExitCommandError, "failed to journal scripts", err)
		}
		mgrOpts = append(mgrOpts, engine.WithJournal(st))
	}

	mgr := engine.New(mgrOpts...)
	for _, prog := range programs {
		if err := mgr.Load(script.NameID(prog.Name()), prog); err != nil {
			mgr.ShutdownAll(cfg.ShutdownTimeout)
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to load %s", prog.Name()), err)
		}
	}

	// Use the command's context if set (tests), otherwise a fresh one.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(out, "Loaded %d script(s). Press Ctrl-C to stop.\n", len(programs))
	<-ctx.Done()

	return shutdown(mgr, cfg, names, out)
}

// shutdown stops every instance and reports the ones that did not cooperate.
func shutdown(mgr *engine.Manager, cfg config.Config, names map[script.ID]string, w io.Writer) error {
	failed := mgr.ShutdownAll(cfg.ShutdownTimeout)
	if len(failed) == 0 {
		fmt.Fprintln(w, "All scripts stopped.")
		return nil
	}

	labels := make([]string, len(failed))
	for n, id := range failed {
		labels[n] = names[id]
		if labels[n] == "" {
			labels[n] = id.String()
		}
	}
	fmt.Fprintf(w, "Did not stop within %s: %s\n", cfg.ShutdownTimeout, strings.Join(labels, ", "))
	return NewExitError(ExitFailure, fmt.Sprintf("%d script(s) did not cooperate", len(failed)))
}

func saveSources(ctx context.Context, st *store.Store, programs []*luaprog.Program) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, prog := range programs {
		if err := st.SaveScript(ctx, script.NameID(prog.Name()), prog.Name(), prog.Source()); err != nil {
			return err
		}
	}
	return nil
}

// chatPrinter writes chat lines to w.
func chatPrinter(w io.Writer, names map[script.ID]string) engine.ChatSink {
	return func(msg engine.ChatMessage) {
		name := names[msg.Script]
		if name == "" {
			name = msg.Script.String()
		}
		fmt.Fprintf(w, "[%s] ch%d: %s\n", name, msg.Channel, msg.Message)
	}
}

// syncWriter serialises writes from script goroutines and the command.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
