package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/registrar/internal/config"
	"github.com/xkilldash9x/registrar/internal/observability"
	"github.com/xkilldash9x/registrar/internal/store"
)

// journalOpener creates a journal and a cleanup that releases its pool.
type journalOpener func(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*store.Journal, func(), error)

// newHistoryCmd creates the `history` command.
func newHistoryCmd(open journalOpener) *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:         "history",
		Short:       "Show recently journaled outcomes",
		Long:        `Reads the PostgreSQL outcome journal. The sheet only keeps the latest outcome per row; the journal keeps every attempt.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{lenientConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runHistory(ctx, observability.GetLogger(), cfg.Database(), open, limit, cmd.OutOrStdout())
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	return historyCmd
}

func runHistory(ctx context.Context, logger *zap.Logger, cfg config.DatabaseConfig, open journalOpener, limit int, out io.Writer) error {
	journal, cleanup, err := open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	entries, err := journal.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "No outcomes journaled yet.")
		return err
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		o := e.Outcome
		rows = append(rows, []string{
			e.RecordedAt.Local().Format(time.DateTime), shortID(e.RunID), strconv.Itoa(o.RowNumber),
			string(o.FinalStatus), dash(o.EmailUsed), dash(o.ErrorDetail),
		})
	}
	_, err = fmt.Fprintln(out, renderTable(
		[]string{"RECORDED", "RUN", "ROW", "STATUS", "EMAIL", "ERROR"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight},
	))
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
