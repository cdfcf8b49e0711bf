package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openjobspec/ojs-job-chief/internal/core"
	"github.com/openjobspec/ojs-job-chief/internal/server"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <queues.yaml>",
		Short: "Check a queue configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgs, err := server.LoadQueueConfigs(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d queue(s) OK\n", len(cfgs))
			for _, c := range cfgs {
				fmt.Fprintf(out, "  %-24s image=%s parallelism=%d check=%s timeout=%s\n",
					c.QueueName, c.PodConfig.Image, c.PodConfig.Parallelism,
					core.FormatDuration(c.QueueCheckInterval), core.FormatDuration(c.JobStartTimeout))
			}
			return nil
		},
	}
}
