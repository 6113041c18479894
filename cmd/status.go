package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/rxsink/internal/sink"
)

var statusCmd = &cobra.Command{
	Use:   "status [sink]",
	Short: "Show the status of running sinks",
	Long: `Query a running rxsink for the status of its sinks over the metrics HTTP endpoint.

Shows: state, local address, bytes received, filtered packets, last throughput and
the accepted sessions. With a sink name only that sink is shown.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := newHTTPStatusClient(statusAddr, 10*time.Second)
		if err := runStatus(cmd.Context(), client, args, cmd.OutOrStdout()); err != nil {
			exitWithError("failed to query status", err)
		}
	},
}

var statusAddr string

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://127.0.0.1:9102",
		"base URL of the rxsink metrics server")
}

// StatusClient reads sink status from a running instance.
type StatusClient interface {
	List(ctx context.Context) ([]sink.Status, error)
	Get(ctx context.Context, name string) (sink.Status, error)
}

func runStatus(ctx context.Context, client StatusClient, args []string, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		result any
		err    error
	)
	if len(args) == 1 {
		result, err = client.Get(ctx, args[0])
	} else {
		result, err = client.List(ctx)
	}
	if err != nil {
		return err
	}

	resultJSON, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	fmt.Fprintln(w, string(resultJSON))
	return nil
}

type httpStatusClient struct {
	base string
	http *http.Client
}

func newHTTPStatusClient(base string, timeout time.Duration) *httpStatusClient {
	return &httpStatusClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *httpStatusClient) List(ctx context.Context) ([]sink.Status, error) {
	var out []sink.Status
	if err := c.get(ctx, "/sinks", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *httpStatusClient) Get(ctx context.Context, name string) (sink.Status, error) {
	var out sink.Status
	err := c.get(ctx, "/sinks/"+url.PathEscape(name), &out)
	return out, err
}

func (c *httpStatusClient) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("unexpected response: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
