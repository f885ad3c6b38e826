package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	statusadapter "github.com/bnema/azad-hub/internal/adapters/render/status"
	"github.com/bnema/azad-hub/internal/application"
	"github.com/spf13/cobra"
)

const maxStatusResponseBytes = 1 << 20

func newStatusCmd(app *app) *cobra.Command {
	var (
		addr   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connected peers and advertised periods of a running hub",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = app.cfg.GetString(keyListenAddr)
			}

			snapshot, err := fetchSnapshot(cmd, app.httpClient, addr)
			if err != nil {
				return err
			}
			return writeStatusOutput(cmd, app, snapshot, addr, asJSON)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Hub address (defaults to listen_addr)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")

	return cmd
}

func fetchSnapshot(cmd *cobra.Command, client *http.Client, addr string) (application.Snapshot, error) {
	endpoint := statusURL(addr)
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
	if err != nil {
		return application.Snapshot{}, fmt.Errorf("create status request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return application.Snapshot{}, fmt.Errorf("query hub at %s: %w", addr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return application.Snapshot{}, fmt.Errorf("query hub at %s: unexpected status %d: %s", addr, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var snapshot application.Snapshot
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxStatusResponseBytes)).Decode(&snapshot); err != nil {
		return application.Snapshot{}, fmt.Errorf("decode hub status: %w", err)
	}
	return snapshot, nil
}

func statusURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/") + "/status"
	}
	return (&url.URL{Scheme: "http", Host: addr, Path: "/status"}).String()
}

func writeStatusOutput(cmd *cobra.Command, app *app, snapshot application.Snapshot, addr string, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	}

	rendered, err := app.statusRenderer(snapshot, statusadapter.RenderOptions{Endpoint: addr})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
