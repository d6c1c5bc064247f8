// Command buildmon supervises cmake/make builds: it classifies compiler
// output as it streams, suggests fixes for known failures, predicts
// durations from past runs and keeps a health score per target set. The
// build and serve commands run the engine in-process; the remaining
// commands are thin clients against a running daemon.
package main

import (
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/buildmon/internal/config"
	berrors "git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/version"
	"github.com/alecthomas/kong"
)

// Root is the CLI grammar: global flags plus one struct per command.
type Root struct {
	Config    string `short:"c" help:"Configuration file path" default:"buildmon.yaml"`
	LogLevel  string `help:"Log level: debug, info, warn or error (overrides config)"`
	LogFormat string `help:"Log format: text or json (overrides config)"`
	DataDir   string `help:"Directory for durable state (overrides config)"`

	Build     BuildCmd     `cmd:"" help:"Run one supervised build and print the final session snapshot"`
	Serve     ServeCmd     `cmd:"" help:"Run the supervision daemon with its HTTP API"`
	Status    StatusCmd    `cmd:"" help:"Show session status from a running daemon"`
	Conflicts ConflictsCmd `cmd:"" help:"Scan for conflicting build processes via a running daemon"`
	Terminate TerminateCmd `cmd:"" help:"Terminate a session on a running daemon"`
	Report    ReportCmd    `cmd:"" help:"Fetch a session report from a running daemon"`
	Init      InitCmd      `cmd:"" help:"Write an example configuration file"`
	Version   VersionCmd   `cmd:"" help:"Show version and exit"`
}

// AfterApply installs a provisional log handler from the global flags.
// Commands that load the configuration file refine it afterwards.
func (r *Root) AfterApply() error {
	installLogger(config.LoggingConfig{
		Level:  config.NormalizeLogLevel(r.LogLevel),
		Format: config.NormalizeLogFormat(r.LogFormat),
	})
	return nil
}

func main() {
	root := &Root{}
	kctx := kong.Parse(root,
		kong.Name("buildmon"),
		kong.Description("Supervised cmake/make builds with output classification, fix suggestions, duration prediction and health tracking."),
		kong.UsageOnError(),
	)

	err := kctx.Run(root)
	berrors.NewCLIErrorAdapter(root.LogLevel == "debug", slog.Default()).HandleError(err)
}

// InitCmd implements 'init'.
type InitCmd struct {
	Force bool `help:"Overwrite an existing configuration file"`
}

func (i *InitCmd) Run(root *Root) error {
	if err := config.Init(root.Config, i.Force); err != nil {
		return berrors.New(berrors.CategoryConfig, berrors.SeverityError, err.Error())
	}
	fmt.Printf("Wrote %s\n", root.Config)
	return nil
}

// VersionCmd implements 'version'.
type VersionCmd struct{}

func (v *VersionCmd) Run(_ *Root) error {
	fmt.Printf("buildmon %s (commit %s, built %s)\n",
		version.Version, version.GitCommit, version.BuildTime)
	return nil
}

// loadConfig reads the configured file, falling back to defaults when it
// does not exist, and applies the global flag overrides. The returned path
// is empty when no file was read.
func loadConfig(root *Root) (*config.Config, string, error) {
	var cfg *config.Config
	path := root.Config
	if _, err := os.Stat(path); err == nil {
		loaded, lerr := config.Load(path)
		if lerr != nil {
			var me *berrors.MonitorError
			if stdErrors.As(lerr, &me) {
				return nil, "", lerr
			}
			return nil, "", berrors.New(berrors.CategoryConfig, berrors.SeverityError, lerr.Error())
		}
		cfg = loaded
	} else {
		cfg = config.Default()
		path = ""
	}

	if root.DataDir != "" {
		cfg.Storage.DataDir = root.DataDir
	}
	if root.LogLevel != "" {
		cfg.Monitoring.Logging.Level = config.NormalizeLogLevel(root.LogLevel)
	}
	if root.LogFormat != "" {
		cfg.Monitoring.Logging.Format = config.NormalizeLogFormat(root.LogFormat)
	}
	installLogger(cfg.Monitoring.Logging)
	return cfg, path, nil
}

func installLogger(lc config.LoggingConfig) {
	opts := &slog.HandlerOptions{Level: lc.Level.SlogLevel()}
	var handler slog.Handler
	if lc.Format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// printJSON writes v to stdout as indented JSON. All command output that is
// meant for scripting goes through here; logs stay on stderr.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return berrors.InternalError("encode output", err)
	}
	fmt.Println(string(out))
	return nil
}
