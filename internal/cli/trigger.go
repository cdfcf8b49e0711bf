package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/openjobspec/ojs-job-chief/internal/api"
)

func newTriggerCmd() *cobra.Command {
	var after string

	cmd := &cobra.Command{
		Use:   "trigger <queue>",
		Short: "Ask a running job-chief to evaluate a queue now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue := args[0]
			body, err := json.Marshal(api.TriggerRequest{StartAfter: after})
			if err != nil {
				return err
			}

			endpoint := strings.TrimRight(flagServer, "/") + "/queues/" + url.PathEscape(queue) + "/trigger"
			logger.Debug("http request", "method", http.MethodPost, "url", endpoint)

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Post(endpoint, api.MediaType, bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("trigger %s: %w", queue, err)
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			if resp.StatusCode >= 400 {
				var e api.ErrorResponse
				if json.Unmarshal(data, &e) == nil && e.Error.Message != "" {
					return fmt.Errorf("trigger %s: %s (%s)", queue, e.Error.Message, e.Error.Code)
				}
				return fmt.Errorf("trigger %s: HTTP %d", queue, resp.StatusCode)
			}

			var tr api.TriggerResponse
			if err := json.Unmarshal(data, &tr); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			if tr.Scheduled {
				fmt.Fprintf(cmd.OutOrStdout(), "Triggered %s (trigger %s)\n", queue, tr.TriggerID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "A trigger for %s is already pending\n", queue)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&after, "after", "", "Delay before the evaluation, e.g. 30s, 5m")
	return cmd
}
