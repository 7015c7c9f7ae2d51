package main

import (
	"context"
	"log/slog"
	"maps"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/actiond/cmd"
	"github.com/smazurov/actiond/internal/catalog"
	"github.com/smazurov/actiond/internal/config"
	"github.com/smazurov/actiond/internal/logging"
	"github.com/smazurov/actiond/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Settings string `help:"Path to TOML settings file" short:"s" default:"actiond.toml"`

	// Actions settings
	ActionsRoot  string `help:"Directory containing the actions (platform default when empty)" short:"r" toml:"actions.root" env:"ACTIONS_ROOT"`
	Config       string `help:"JSON configuration file handed to every action" short:"c" toml:"actions.config" env:"CONFIG"`
	WatchConfig  bool   `help:"Apply edits of the configuration file to later launches" default:"true" toml:"actions.watch_config" env:"WATCH_CONFIG"`
	ManifestFile string `help:"Manifest file looked up in each action directory" default:"package.json" toml:"actions.manifest" env:"MANIFEST_FILE"`
	Toolkit      string `help:"Library an action must depend on to be supervised" default:"snips-toolkit" toml:"actions.toolkit" env:"TOOLKIT"`

	// Supervisor settings
	Attribution string `help:"Crash attribution strategy (trace, origin)" default:"trace" toml:"supervisor.attribution" env:"ATTRIBUTION"`

	// Runner settings
	Interpreter     string `help:"Command the action entry point is appended to" default:"node" toml:"runner.interpreter" env:"INTERPRETER"`
	GracefulTimeout string `help:"Time an action gets to exit after SIGINT" default:"5s" toml:"runner.graceful_timeout" env:"GRACEFUL_TIMEOUT"`
	TailLines       int    `help:"Stderr lines kept as crash trace" default:"50" toml:"runner.tail_lines" env:"TAIL_LINES"`

	// API settings
	APIAddr      string `help:"Status API listen address (disabled when empty)" toml:"api.addr" env:"API_ADDR"`
	AuthUsername string `help:"Basic auth username" toml:"api.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" toml:"api.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingSandbox    string `help:"Action output logging level" default:"info" toml:"logging.sandbox" env:"LOGGING_SANDBOX"`
	LoggingDiscovery  string `help:"Discovery logging level" default:"info" toml:"logging.discovery" env:"LOGGING_DISCOVERY"`
	LoggingConfig     string `help:"Configuration watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	var cli humacli.CLI
	var resolved *Options

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if err := config.LoadConfig(opts, cli.Root()); err != nil {
			slog.Error("Failed to load settings", "path", opts.Settings, "error", err)
			os.Exit(1)
		}
		if opts.ActionsRoot == "" {
			opts.ActionsRoot = catalog.DefaultRoot()
		}

		// Modules without a dedicated option may still be tuned in [logging].
		logCfg := config.LoadLoggingConfig(opts.Settings)
		logCfg.Level = opts.LoggingLevel
		logCfg.Format = opts.LoggingFormat
		maps.Copy(logCfg.Modules, map[string]string{
			"supervisor": opts.LoggingSupervisor,
			"sandbox":    opts.LoggingSandbox,
			"discovery":  opts.LoggingDiscovery,
			"config":     opts.LoggingConfig,
			"api":        opts.LoggingAPI,
		})
		logging.Initialize(logCfg)
		resolved = opts

		logger := logging.GetLogger("main")
		ctx, cancel := context.WithCancel(context.Background())
		finished := make(chan struct{})

		hooks.OnStart(func() {
			defer close(finished)

			d, err := newDaemon(opts)
			if err != nil {
				logger.Error("Failed to start", "error", err)
				os.Exit(1)
			}
			if err := d.Run(ctx); err != nil {
				logger.Error("Supervisor stopped with error", "error", err)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			cancel()
			<-finished
		})
	})

	cli.Root().Use = "actiond"
	cli.Root().Short = "Run and supervise actions"
	cli.Root().Version = version.String()

	cli.Root().AddCommand(cmd.CreateListCmd(func() cmd.ListOptions {
		return cmd.ListOptions{
			ActionsRoot:  resolved.ActionsRoot,
			ManifestFile: resolved.ManifestFile,
			Toolkit:      resolved.Toolkit,
		}
	}))

	cli.Run()
}
