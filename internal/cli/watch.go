package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openjobspec/ojs-job-chief/internal/core"
	natsbackend "github.com/openjobspec/ojs-job-chief/internal/nats"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [queue]",
		Short: "Stream finished runs as they happen",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := natsbackend.New(flagNatsURL)
			if err != nil {
				return err
			}
			defer backend.Close()

			broker := natsbackend.NewPubSubBroker(backend.Conn(), logger)
			defer broker.Close()

			var (
				events <-chan *core.RunRecord
				unsub  func()
			)
			if len(args) == 1 {
				events, unsub, err = broker.SubscribeQueue(args[0])
			} else {
				events, unsub, err = broker.SubscribeAll()
			}
			if err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			defer unsub()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return printRuns(ctx, cmd.OutOrStdout(), events)
		},
	}
}

func printRuns(ctx context.Context, out io.Writer, events <-chan *core.RunRecord) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec := <-events:
			if rec == nil {
				continue
			}
			fmt.Fprintln(out, formatRun(rec))
		}
	}
}

func formatRun(rec *core.RunRecord) string {
	line := fmt.Sprintf("%s %-20s %-12s", core.FormatTime(rec.FinishedAt), rec.Queue, rec.Outcome)
	if rec.JobName != "" {
		line += " job=" + rec.JobName
	}
	if rec.Reason != "" {
		line += " reason=" + rec.Reason
	}
	if rec.NextRunAfter > 0 {
		line += " next=" + core.FormatDuration(rec.NextRunAfter)
	}
	return line
}
