package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	natsbackend "github.com/openjobspec/ojs-job-chief/internal/nats"
)

func newEnqueueCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "enqueue <queue> [payload]",
		Short: "Publish work items to a queue",
		Long:  "Publishes work items to a queue's stream. Without a payload argument the payload is read from stdin.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue := args[0]
			var payload []byte
			if len(args) == 2 {
				payload = []byte(args[1])
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read payload: %w", err)
				}
				payload = data
			}
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}

			backend, err := natsbackend.New(flagNatsURL)
			if err != nil {
				return err
			}
			defer backend.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			for i := 0; i < count; i++ {
				seq, err := backend.Enqueue(ctx, queue, payload)
				if err != nil {
					return fmt.Errorf("enqueue to %s: %w", queue, err)
				}
				logger.Debug("item published", "queue", queue, "sequence", seq)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %d item(s) to %s\n", count, queue)
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of copies to publish")
	return cmd
}
