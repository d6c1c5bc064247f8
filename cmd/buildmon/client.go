package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/config"
	berrors "git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/supervisor"
)

const (
	defaultDaemonPort = 8337
	clientTimeout     = 15 * time.Second
)

// apiClient is a thin JSON client for the daemon API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(addr string, cfg *config.Config) *apiClient {
	return &apiClient{
		base: resolveAddr(addr, cfg),
		http: &http.Client{Timeout: clientTimeout},
	}
}

// resolveAddr picks the daemon base URL: the explicit flag wins, then the
// configured port, then the stock default.
func resolveAddr(flag string, cfg *config.Config) string {
	if flag != "" {
		if !strings.Contains(flag, "://") {
			flag = "http://" + flag
		}
		return strings.TrimRight(flag, "/")
	}
	port := defaultDaemonPort
	if cfg != nil && cfg.Daemon != nil && cfg.Daemon.HTTP.Port != 0 {
		port = cfg.Daemon.HTTP.Port
	}
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, out)
}

func (c *apiClient) deleteJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, out)
}

func (c *apiClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return berrors.InternalError("build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return berrors.New(berrors.CategoryDaemon, berrors.SeverityError,
			fmt.Sprintf("daemon unreachable at %s: %v", c.base, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return berrors.New(berrors.CategoryDaemon, berrors.SeverityError,
			fmt.Sprintf("malformed daemon response: %v", err))
	}
	return nil
}

// getRaw fetches a non-JSON body, for the report and log endpoints.
func (c *apiClient) getRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, berrors.InternalError("build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, berrors.New(berrors.CategoryDaemon, berrors.SeverityError,
			fmt.Sprintf("daemon unreachable at %s: %v", c.base, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, apiError(resp)
	}
	return io.ReadAll(resp.Body)
}

// apiError rebuilds the typed error carried in the daemon's error envelope
// so exit codes match the daemon's categorization.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var envelope struct {
		Error struct {
			Category string `json:"category"`
			Message  string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return berrors.New(berrors.ErrorCategory(envelope.Error.Category),
			berrors.SeverityError, envelope.Error.Message)
	}
	return berrors.New(berrors.CategoryDaemon, berrors.SeverityError,
		fmt.Sprintf("daemon answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
}

// sessionList mirrors the daemon's session list payload.
type sessionList struct {
	Sessions []supervisor.Snapshot `json:"sessions"`
	Count    int                   `json:"count"`
}

// StatusCmd implements 'status': one session, or every tracked session.
type StatusCmd struct {
	ID   string `arg:"" optional:"" help:"Session id (omit for all sessions)"`
	Addr string `help:"Daemon address, host:port or URL"`
}

func (s *StatusCmd) Run(root *Root) error {
	cfg, _, err := loadConfig(root)
	if err != nil {
		return err
	}
	client := newAPIClient(s.Addr, cfg)
	ctx := context.Background()

	if s.ID == "" {
		var list sessionList
		if err := client.getJSON(ctx, "/api/v1/sessions", &list); err != nil {
			return err
		}
		return printJSON(list)
	}

	var snap supervisor.Snapshot
	if err := client.getJSON(ctx, "/api/v1/sessions/"+url.PathEscape(s.ID), &snap); err != nil {
		return err
	}
	return printJSON(snap)
}

// ConflictsCmd implements 'conflicts': an on-demand process scan.
type ConflictsCmd struct {
	Addr string `help:"Daemon address, host:port or URL"`
}

func (c *ConflictsCmd) Run(root *Root) error {
	cfg, _, err := loadConfig(root)
	if err != nil {
		return err
	}
	client := newAPIClient(c.Addr, cfg)

	var report supervisor.ConflictReport
	if err := client.getJSON(context.Background(), "/api/v1/conflicts", &report); err != nil {
		return err
	}
	return printJSON(report)
}

// TerminateCmd implements 'terminate'.
type TerminateCmd struct {
	ID   string `arg:"" help:"Session id"`
	Addr string `help:"Daemon address, host:port or URL"`
}

func (t *TerminateCmd) Run(root *Root) error {
	cfg, _, err := loadConfig(root)
	if err != nil {
		return err
	}
	client := newAPIClient(t.Addr, cfg)

	var result supervisor.TerminateResult
	if err := client.deleteJSON(context.Background(), "/api/v1/sessions/"+url.PathEscape(t.ID), &result); err != nil {
		return err
	}
	return printJSON(result)
}

// ReportCmd implements 'report': the rendered session report, or with
// --logs the raw retained build output.
type ReportCmd struct {
	ID     string `arg:"" help:"Session id"`
	Format string `help:"Report format" default:"markdown" enum:"markdown,html"`
	Logs   bool   `help:"Print the raw build log instead of the report"`
	Addr   string `help:"Daemon address, host:port or URL"`
}

func (r *ReportCmd) Run(root *Root) error {
	cfg, _, err := loadConfig(root)
	if err != nil {
		return err
	}
	client := newAPIClient(r.Addr, cfg)

	path := "/api/v1/sessions/" + url.PathEscape(r.ID) + "/report"
	switch {
	case r.Logs:
		path = "/api/v1/sessions/" + url.PathEscape(r.ID) + "/log"
	case r.Format == "html":
		path += "?format=html"
	}

	body, err := client.getRaw(context.Background(), path)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(body)
	return err
}
