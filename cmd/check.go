package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/registrar/internal/config"
	"github.com/xkilldash9x/registrar/internal/observability"
	"github.com/xkilldash9x/registrar/internal/service"
)

const checkTimeout = 45 * time.Second

// probe is one connectivity check. It returns a short detail line on success.
type probe struct {
	name string
	run  func(ctx context.Context) (string, error)
}

type probeResult struct {
	name   string
	detail string
	err    error
}

type probeSet func(cfg config.Interface, logger *zap.Logger) []probe

// newCheckCmd creates the `check` command.
func newCheckCmd(probes probeSet) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify access to the sheet, the mail providers and the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()
			return runChecks(ctx, cmd.OutOrStdout(), probes(cfg, logger))
		},
	}
}

// runChecks runs every probe concurrently and reports all results, not just the first failure.
func runChecks(ctx context.Context, out io.Writer, probes []probe) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	results := make([]probeResult, len(probes))
	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			detail, err := p.run(ctx)
			results[i] = probeResult{name: p.name, detail: detail, err: err}
			return err
		})
	}
	firstErr := g.Wait()

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(out, "FAIL  %-8s %v\n", r.name, r.err)
			continue
		}
		fmt.Fprintf(out, "OK    %-8s %s\n", r.name, r.detail)
	}
	if firstErr != nil {
		return fmt.Errorf("%d of %d checks failed: %w", failed, len(probes), firstErr)
	}
	return nil
}

// defaultProbes checks the real services named in the configuration.
func defaultProbes(cfg config.Interface, logger *zap.Logger) []probe {
	probes := []probe{
		{name: "sheet", run: func(ctx context.Context) (string, error) {
			sheet, err := service.InitializeSheet(ctx, cfg.Sheets(), logger)
			if err != nil {
				return "", err
			}
			headers, err := sheet.TestConnection(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d columns: %s", len(headers), strings.Join(headers, ", ")), nil
		}},
		{name: "mail", run: func(ctx context.Context) (string, error) {
			poller, err := service.InitializeMail(cfg.Mail(), cfg.Network(), logger)
			if err != nil {
				return "", err
			}
			mb, err := poller.Provision(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s via %s", mb.Address, mb.Provider), nil
		}},
	}

	if cfg.Database().URL != "" {
		probes = append(probes, probe{name: "journal", run: func(ctx context.Context) (string, error) {
			_, cleanup, err := service.InitializeJournal(ctx, cfg.Database(), logger)
			if err != nil {
				return "", err
			}
			cleanup()
			return "connected, schema ready", nil
		}})
	}
	return probes
}
