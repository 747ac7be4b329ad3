// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// ProbeStatus is the result of one health probe.
type ProbeStatus struct {
	Probe   string `json:"probe"`
	URL     string `json:"url"`
	Healthy bool   `json:"healthy"`
	Code    int    `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
	timeout    time.Duration
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd(opts *rootOptions) *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running lobby server",
		Long: `Query the liveness and readiness probes of a running lobby server
on its metrics address. Exits non-zero unless the server is ready.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if loaded.MetricsAddr == "" {
				return oops.Code("CONFIG_INVALID").
					With("field", "metrics_addr").
					Errorf("metrics address is disabled; status needs it to reach the probes")
			}
			return runStatus(cmd.Context(), cmd.OutOrStdout(), loaded.MetricsAddr, cfg)
		},
	}

	cmd.Flags().String("metrics-addr", "", "metrics address of the server to query")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "probe timeout")

	return cmd
}

// runStatus probes the server at metricsAddr and writes the results to out.
func runStatus(ctx context.Context, out io.Writer, metricsAddr string, cfg *statusConfig) error {
	client := &http.Client{Timeout: cfg.timeout}
	base := "http://" + dialAddr(metricsAddr)

	statuses := []ProbeStatus{
		probe(ctx, client, "liveness", base+"/healthz/liveness"),
		probe(ctx, client, "readiness", base+"/healthz/readiness"),
	}

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return oops.Code("STATUS_FORMAT_FAILED").Wrap(err)
		}
		_, _ = fmt.Fprintln(out, string(data))
	} else {
		_, _ = fmt.Fprint(out, formatStatusTable(statuses))
	}

	for _, s := range statuses {
		if !s.Healthy {
			return oops.Code("STATUS_NOT_READY").
				With("probe", s.Probe).
				Errorf("server is not ready")
		}
	}
	return nil
}

func probe(ctx context.Context, client *http.Client, name, url string) ProbeStatus {
	status := ProbeStatus{Probe: name, URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	resp, err := client.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	status.Code = resp.StatusCode
	status.Healthy = resp.StatusCode == http.StatusOK
	if !status.Healthy {
		status.Error = strings.TrimSpace(string(body))
	}
	return status
}

// dialAddr turns a listen address into one a client can dial: an empty or
// unspecified host becomes loopback.
func dialAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// formatStatusTable formats the probes as a human-readable table.
func formatStatusTable(statuses []ProbeStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "PROBE\tSTATUS\tCODE\tDETAIL")
	_, _ = fmt.Fprintln(w, "-----\t------\t----\t------")

	for _, s := range statuses {
		state := "ok"
		if !s.Healthy {
			state = "failing"
		}
		code := "-"
		if s.Code != 0 {
			code = fmt.Sprintf("%d", s.Code)
		}
		detail := s.Error
		if detail == "" {
			detail = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Probe, state, code, detail)
	}

	_ = w.Flush()
	return buf.String()
}
