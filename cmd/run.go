package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/registrar/internal/config"
	"github.com/xkilldash9x/registrar/internal/observability"
	"github.com/xkilldash9x/registrar/internal/runner"
	"github.com/xkilldash9x/registrar/internal/service"
)

type runOptions struct {
	headless bool
	limit    int
	dryRun   bool
}

// newRunCmd creates the `run` command.
func newRunCmd(factory service.ComponentFactory) *cobra.Command {
	var opts runOptions

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Process every pending row of the sheet",
		Long: `Fetches the rows whose status is Pending, drives the registration form for each
one in a single stealth browser session and writes the outcome back to the sheet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg, opts)
			return runRegistration(ctx, observability.GetLogger(), cfg, factory, cmd.OutOrStdout())
		},
	}

	runCmd.Flags().BoolVar(&opts.headless, "headless", false, "Run the browser without a window (manual hand-offs become impossible)")
	runCmd.Flags().IntVar(&opts.limit, "limit", 0, "Process at most N records (0 means all)")
	runCmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Keep outcomes in memory instead of writing the sheet")
	return runCmd
}

// applyRunFlags lets explicit flags override file and environment values.
func applyRunFlags(cmd *cobra.Command, cfg config.Interface, opts runOptions) {
	flags := cmd.Flags()
	if flags.Changed("headless") {
		cfg.SetBrowserHeadless(opts.headless)
	}
	if flags.Changed("limit") {
		cfg.SetRunnerLimit(opts.limit)
	}
	if flags.Changed("dry-run") {
		cfg.SetRunnerDryRun(opts.dryRun)
	}
}

// runRegistration contains the testable core of the run command.
func runRegistration(ctx context.Context, logger *zap.Logger, cfg config.Interface, factory service.ComponentFactory, out io.Writer) error {
	components, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize run components: %w", err)
	}
	defer components.Shutdown()

	summary, err := components.Runner.Run(ctx)
	if printErr := printSummary(out, summary); printErr != nil {
		logger.Warn("Failed to print run summary.", zap.Error(printErr))
	}
	if errors.Is(err, context.Canceled) {
		logger.Warn("Run aborted by signal; unfinished rows stay pending.", zap.String("run_id", summary.RunID))
	}
	return err
}

func printSummary(out io.Writer, s runner.Summary) error {
	if s.RunID == "" {
		return nil
	}
	fmt.Fprintf(out, "Run %s: %d processed, %d succeeded, %d failed\n", s.RunID, s.Processed, s.Succeeded, s.Failed)
	if len(s.Outcomes) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(s.Outcomes))
	for _, o := range s.Outcomes {
		rows = append(rows, []string{strconv.Itoa(o.RowNumber), string(o.FinalStatus), dash(o.EmailUsed), dash(o.ErrorDetail)})
	}
	_, err := fmt.Fprintln(out, renderTable([]string{"ROW", "STATUS", "EMAIL", "ERROR"}, rows, []columnAlignment{alignRight}))
	return err
}
