package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

// newLogsCmd creates the `logs` command.
func newLogsCmd() *cobra.Command {
	var (
		follow bool
		file   string
	)

	logsCmd := &cobra.Command{
		Use:         "logs",
		Short:       "Print the JSON log file, optionally following new entries",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{lenientConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" {
				cfg, err := getConfigFromContext(cmd.Context())
				if err != nil {
					return err
				}
				path = cfg.Logger().LogFile
			}
			if path == "" {
				return fmt.Errorf("no log file configured (logger.log_file)")
			}
			return streamLog(cmd.Context(), path, follow, cmd.OutOrStdout())
		},
	}

	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming as the file grows")
	logsCmd.Flags().StringVar(&file, "file", "", "Log file to read (defaults to logger.log_file)")
	return logsCmd
}

// streamLog copies lines to out until EOF, or until ctx ends when following.
func streamLog(ctx context.Context, path string, follow bool, out io.Writer) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				return line.Err
			}
			if _, err := fmt.Fprintln(out, line.Text); err != nil {
				return err
			}
		}
	}
}
