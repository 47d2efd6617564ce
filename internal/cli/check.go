package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/scriptd/internal/luaprog"
	"github.com/roach88/scriptd/internal/script"
)

// chunkTimeout bounds running a chunk body to list its handlers.
const chunkTimeout = 2 * time.Second

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
}

// CheckedScript describes one script that compiled.
type CheckedScript struct {
	Name     string             `json:"name"`
	ID       string             `json:"id"`
	Handlers []script.EventKind `json:"handlers"`
}

// CheckResult is the outcome of checking a directory.
type CheckResult struct {
	Scripts []CheckedScript `json:"scripts"`
	Errors  []CLIError      `json:"errors,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <scripts-dir>",
		Short: "Compile scripts and list their handlers",
		Long: `Compile every .lua file in the directory without loading it, run each
chunk in an inert sandbox and list the event handlers it defines. All
files are checked and every error is reported.

Exit codes:
  0 - All scripts compiled
  1 - One or more scripts failed
  2 - Command error (invalid paths, etc.)

Examples:
  scriptd check ./scripts
  scriptd check ./scripts --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args[0], cmd)
		},
	}

	return cmd
}

func runCheck(opts *CheckOptions, dir string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	programs, errs := LoadPrograms(dir, LoadModeCollectAll, luaprog.WithCallStackSize(cfg.LuaCallStackSize))
	if len(errs) > 0 && !isCompileError(errs[0]) {
		// Nothing to check: the directory itself is unusable.
		e := toCLIError(errs[0])
		_ = formatter.Error(e.Code, e.Message, nil)
		return WrapExitError(ExitCommandError, "check failed", errs[0])
	}

	result := CheckResult{Scripts: make([]CheckedScript, 0, len(programs))}
	for _, err := range errs {
		result.Errors = append(result.Errors, toCLIError(err))
	}

	for _, prog := range programs {
		formatter.VerboseLog("checking %s", prog.Name())
		kinds, err := listHandlers(cmd.Context(), prog)
		if err != nil {
			result.Errors = append(result.Errors, CLIError{Code: ErrCodeChunkFailed, Message: err.Error()})
			continue
		}
		result.Scripts = append(result.Scripts, CheckedScript{
			Name:     prog.Name(),
			ID:       script.NameID(prog.Name()).String(),
			Handlers: kinds,
		})
	}

	if opts.Format == "json" {
		if len(result.Errors) > 0 {
			if err := formatter.Error(ErrCodeCompileFailed, fmt.Sprintf("%d script(s) failed", len(result.Errors)), result); err != nil {
				return err
			}
		} else if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		outputCheckText(formatter, result)
	}

	if len(result.Errors) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d script(s) failed", len(result.Errors)))
	}
	return nil
}

func listHandlers(parent context.Context, prog *luaprog.Program) ([]script.EventKind, error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, chunkTimeout)
	defer cancel()
	kinds, err := prog.Handlers(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("%s: chunk did not finish within %s", prog.Name(), chunkTimeout)
	}
	return kinds, err
}

func outputCheckText(f *OutputFormatter, result CheckResult) {
	w := f.Writer
	for _, s := range result.Scripts {
		handlers := make([]string, len(s.Handlers))
		for n, k := range s.Handlers {
			handlers[n] = string(k)
		}
		if len(handlers) == 0 {
			handlers = []string{"(no handlers)"}
		}
		fmt.Fprintf(w, "✓ %s: %s\n", s.Name, strings.Join(handlers, ", "))
	}
	for _, e := range result.Errors {
		fmt.Fprintf(w, "✗ %s\n", e.Message)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Check Summary: %d ok, %d failed\n", len(result.Scripts), len(result.Errors))
}

func toCLIError(err error) CLIError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		msg := loadErr.Message
		if loadErr.Path != "" {
			msg = loadErr.Path + ": " + msg
		}
		return CLIError{Code: loadErr.Code, Message: msg}
	}
	return CLIError{Code: ErrCodeGeneric, Message: err.Error()}
}

func isCompileError(err error) bool {
	var loadErr *LoadError
	return errors.As(err, &loadErr) && loadErr.Code == ErrCodeCompileFailed
}
