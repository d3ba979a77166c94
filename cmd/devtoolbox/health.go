package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe a running devtoolbox gateway",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := retryablehttp.NewClient()
		client.RetryMax = healthRetries
		client.RetryWaitMin = 1 * time.Second
		client.RetryWaitMax = 30 * time.Second
		client.HTTPClient.Timeout = healthTimeout
		client.Logger = nil

		req, err := retryablehttp.NewRequestWithContext(cmd.Context(), http.MethodGet, healthURL+"/healthz", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("gateway unreachable: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("gateway unhealthy: %s", resp.Status)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

var (
	healthURL     string
	healthRetries int
	healthTimeout time.Duration
)

func init() {
	healthCmd.Flags().StringVar(&healthURL, "url", "http://localhost:9654", "base URL of the gateway")
	healthCmd.Flags().IntVar(&healthRetries, "retries", 3, "maximum number of retries for the probe")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 10*time.Second, "probe request timeout")
}
