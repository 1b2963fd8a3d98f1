package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sitewarden/sitewarden/pkg/types"
	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <url>",
		Short: "Classify a URL without recording a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getClientConfig(cmd)

			var verdict types.Verdict
			err := postJSON(cmd, cfg, "/api/v1/scan", map[string]string{"url": args[0]}, &verdict)
			if err != nil {
				return err
			}

			if verdict.Confidence > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (confidence %.2f)\n", verdict.Label, verdict.Confidence)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), verdict.Label)
			}
			if !verdict.Benign() {
				return &ExitError{code: 2}
			}
			return nil
		},
	}
	return cmd
}

func postJSON(cmd *cobra.Command, cfg *clientConfig, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, cfg.serverAddr+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(cfg, req, out)
}

func getJSON(cmd *cobra.Command, cfg *clientConfig, path string, out any) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, cfg.serverAddr+path, nil)
	if err != nil {
		return err
	}
	return doJSON(cfg, req, out)
}

func doJSON(cfg *clientConfig, req *http.Request, out any) error {
	if cfg.token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.token)
	}
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(msg, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
