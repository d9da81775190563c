package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethpandaops/dropwatch/pkg/config"
	"github.com/spf13/cobra"
)

const apiRequestTimeout = 30 * time.Second

var (
	apiURL      string
	apiUsername string
	apiPassword string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Control the watch session of a running daemon",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start [ROOT]",
	Short: "Start watching ROOT, or the stored root when omitted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{}
		if len(args) == 1 {
			body["root"] = args[0]
		}

		return callAPI(cmd.Context(), http.MethodPost, "/session/start", body)
	},
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop watching",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAPI(cmd.Context(), http.MethodPost, "/session/stop", nil)
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAPI(cmd.Context(), http.MethodGet, "/session", nil)
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionStartCmd, sessionStopCmd, sessionStatusCmd)

	sessionCmd.PersistentFlags().StringVar(&apiURL, "api-url", "",
		"daemon API base URL (default derived from api.server.listen)")
	sessionCmd.PersistentFlags().StringVar(&apiUsername, "username", "",
		"basic auth username")
	sessionCmd.PersistentFlags().StringVar(&apiPassword, "password", "",
		"basic auth password (or DROPWATCH_API_PASSWORD)")
}

// resolveAPIURL returns the base URL of the daemon API.
func resolveAPIURL() (string, error) {
	if apiURL != "" {
		return strings.TrimSuffix(apiURL, "/"), nil
	}

	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}

	return "http://" + cfg.API.Server.Listen, nil
}

// callAPI sends a request to the daemon and prints the JSON response.
func callAPI(ctx context.Context, method, path string, body any) error {
	base, err := resolveAPIURL()
	if err != nil {
		return err
	}

	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}

		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, apiRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, base+"/api/v1"+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	password := apiPassword
	if password == "" {
		password = os.Getenv("DROPWATCH_API_PASSWORD")
	}

	if apiUsername != "" {
		req.SetBasicAuth(apiUsername, password)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling daemon api: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}

		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon api: %s (status %d)", apiErr.Error, resp.StatusCode)
		}

		return fmt.Errorf("daemon api: unexpected status %d", resp.StatusCode)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		_, err = os.Stdout.Write(data)

		return err
	}

	pretty.WriteByte('\n')

	_, err = pretty.WriteTo(os.Stdout)

	return err
}
