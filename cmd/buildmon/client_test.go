package main

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"git.home.luguber.info/inful/buildmon/internal/config"
	berrors "git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/supervisor"
	"github.com/stretchr/testify/require"
)

func TestResolveAddr(t *testing.T) {
	cfg := &config.Config{Daemon: &config.DaemonConfig{HTTP: config.DaemonHTTPConfig{Port: 9999}}}

	tests := map[string]struct {
		flag string
		cfg  *config.Config
		want string
	}{
		"flag with scheme":    {flag: "http://build.local:8000", cfg: cfg, want: "http://build.local:8000"},
		"flag without scheme": {flag: "build.local:8000", cfg: cfg, want: "http://build.local:8000"},
		"flag trailing slash": {flag: "http://build.local:8000/", cfg: cfg, want: "http://build.local:8000"},
		"configured port":     {flag: "", cfg: cfg, want: "http://127.0.0.1:9999"},
		"no daemon section":   {flag: "", cfg: &config.Config{}, want: "http://127.0.0.1:8337"},
		"nil config":          {flag: "", cfg: nil, want: "http://127.0.0.1:8337"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, resolveAddr(tc.flag, tc.cfg))
		})
	}
}

func TestAPIErrorRebuildsCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"category": "not_found", "message": "session nope not found"},
		})
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL, nil)
	err := client.getJSON(context.Background(), "/api/v1/sessions/nope", &struct{}{})
	require.Error(t, err)

	var me *berrors.MonitorError
	require.True(t, stdErrors.As(err, &me))
	require.Equal(t, berrors.CategoryNotFound, me.Category)
	require.Equal(t, "session nope not found", me.Message)

	// The rebuilt category drives the same exit code the daemon intended.
	require.Equal(t, 3, berrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestAPIErrorWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL, nil)
	err := client.getJSON(context.Background(), "/api/v1/sessions", &struct{}{})
	require.Error(t, err)

	var me *berrors.MonitorError
	require.True(t, stdErrors.As(err, &me))
	require.Equal(t, berrors.CategoryDaemon, me.Category)
	require.Contains(t, me.Message, "502")
	require.Contains(t, me.Message, "gateway exploded")
}

func TestClientUnreachableDaemon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := newAPIClient(srv.URL, nil)
	err := client.getJSON(context.Background(), "/api/v1/sessions", &struct{}{})
	require.Error(t, err)

	var me *berrors.MonitorError
	require.True(t, stdErrors.As(err, &me))
	require.Equal(t, berrors.CategoryDaemon, me.Category)
	require.Contains(t, me.Message, "daemon unreachable")
}

func TestTerminateSendsDelete(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(supervisor.TerminateResult{
			BuildID: "ab12cd34",
			Result:  supervisor.TerminateTerminated,
			Status:  supervisor.StatusTerminated,
		})
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL, nil)
	var result supervisor.TerminateResult
	err := client.deleteJSON(context.Background(), "/api/v1/sessions/ab12cd34", &result)
	require.NoError(t, err)
	require.Equal(t, http.MethodDelete, gotMethod)
	require.Equal(t, "/api/v1/sessions/ab12cd34", gotPath)
	require.Equal(t, "ab12cd34", result.BuildID)
	require.Equal(t, supervisor.TerminateTerminated, result.Result)
}

func TestReportCommandPaths(t *testing.T) {
	tests := map[string]struct {
		cmd      ReportCmd
		wantPath string
		wantRaw  string
	}{
		"markdown": {
			cmd:      ReportCmd{ID: "ab12cd34", Format: "markdown"},
			wantPath: "/api/v1/sessions/ab12cd34/report",
			wantRaw:  "/api/v1/sessions/ab12cd34/report",
		},
		"html": {
			cmd:      ReportCmd{ID: "ab12cd34", Format: "html"},
			wantPath: "/api/v1/sessions/ab12cd34/report",
			wantRaw:  "/api/v1/sessions/ab12cd34/report?format=html",
		},
		"logs win over format": {
			cmd:      ReportCmd{ID: "ab12cd34", Format: "html", Logs: true},
			wantPath: "/api/v1/sessions/ab12cd34/log",
			wantRaw:  "/api/v1/sessions/ab12cd34/log",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var got string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.URL.RequestURI()
				_, _ = w.Write([]byte("body"))
			}))
			defer srv.Close()

			tc.cmd.Addr = srv.URL
			root := &Root{Config: filepath.Join(t.TempDir(), "absent.yaml")}
			require.NoError(t, tc.cmd.Run(root))
			require.Equal(t, tc.wantRaw, got)
		})
	}
}

func TestStatusCommandListsSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/sessions", r.URL.Path)
		_ = json.NewEncoder(w).Encode(sessionList{
			Sessions: []supervisor.Snapshot{{BuildID: "ab12cd34", Status: supervisor.StatusCompleted}},
			Count:    1,
		})
	}))
	defer srv.Close()

	cmd := StatusCmd{Addr: srv.URL}
	root := &Root{Config: filepath.Join(t.TempDir(), "absent.yaml")}
	require.NoError(t, cmd.Run(root))
}
