package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/nexus/internal/server"
)

var statsOutput string

var statsCmd = &cobra.Command{
	Use:   "stats <http-addr>",
	Short: "Show the statistics of a running server",
	Long: `Fetch /stats from the HTTP surface of a running server.

Example:
  nexus stats 127.0.0.1:8080 --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", "table", "Output format: table, json")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	status, raw, err := fetchStatus(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if statsOutput == "json" {
		_, err := out.Write(raw)
		return err
	}

	fmt.Fprintf(out, "%s %s (%s)\n", bold("instance"), status.Instance, status.Mode)
	fmt.Fprintf(out, "%s %s\n", bold("address"), status.Address)
	fmt.Fprintf(out, "%s %d active workers, clients %v\n\n", bold("load"), status.ActiveWorkers, status.Clients)
	printStatistics(out, status.Statistics)
	return nil
}

func fetchStatus(addr string) (server.Status, []byte, error) {
	var status server.Status

	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Get(strings.TrimSuffix(base, "/") + "/stats")
	if err != nil {
		return status, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return status, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return status, nil, fmt.Errorf("stats request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, &status); err != nil {
		return status, nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	return status, body, nil
}
