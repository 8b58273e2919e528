package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pocketnode/core/internal/adapters/logging"
	"github.com/pocketnode/core/internal/channel"
	"github.com/pocketnode/core/internal/config"
	"github.com/pocketnode/core/internal/npm"
	"github.com/pocketnode/core/internal/ports"
	"github.com/pocketnode/core/internal/project"
	"github.com/pocketnode/core/internal/registry"
	"github.com/pocketnode/core/internal/runner"
	"github.com/pocketnode/core/internal/supervisor"
)

var (
	// Global flags
	cfgFile     string
	dataDirFlag string
	registryURL string
	socketPath  string
	listenAddr  string
	stdioMode   bool
	verbose     bool
	logJSON     bool
)

var rootCmd = &cobra.Command{
	Use:   "pocketd",
	Short: "The pocketnode IDE backend",
	Long: `Pocketd is the local developer-tool backend of the pocketnode mobile
IDE. It serves the UI's message channel and runs developer commands on its
behalf: shell builtins, an npm-lite package manager, an in-process script
runner, and a built-in preview server.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.pocketnode/pocketd.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "datadir", "", "data directory (default: ~/.pocketnode)")
	rootCmd.PersistentFlags().StringVar(&registryURL, "registry", "", "npm registry URL")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "serve the channel on a unix socket")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "serve the channel over websocket on this address")
	rootCmd.PersistentFlags().BoolVar(&stdioMode, "stdio", false, "serve the channel on stdin/stdout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON lines")

	rootCmd.AddCommand(versionCmd)
}

// serve builds the subsystem graph and runs the configured transports.
func serve(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	if registryURL != "" {
		cfg.Registry = registryURL
	}
	if socketPath != "" {
		cfg.Socket = socketPath
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}

	level := ports.ParseLevel(cfg.LogLevel)
	if verbose {
		level = ports.LevelDebug
	}
	logger := logging.NewConsoleLogger(
		logging.WithLevel(level),
		logging.WithJSONFormat(logJSON || cfg.LogJSON),
	)

	dirs := project.NewDirs(cfg.DataDir)
	if err := dirs.Ensure(); err != nil {
		return err
	}

	rc := config.LoadNpmrc(config.DefaultNpmrcPaths(cfg.DataDir)...)
	regURL := cfg.Registry
	if rc.Registry != "" {
		regURL = rc.Registry
	}

	client := registry.NewClient(
		registry.WithBaseURL(regURL),
		registry.WithScopeURLs(rc.ScopeRegistries),
		registry.WithLogger(logger),
	)

	sup := supervisor.New(logger, npm.NewManager(client, logger), runner.New(logger), dirs)
	defer sup.CancelAll()

	execPath, _ := os.Executable()
	core := channel.NewCore(sup, channel.Info{
		NodeVersion: runner.NodeVersion,
		Platform:    runtime.GOOS,
		Arch:        runtime.GOARCH,
		DataDir:     dirs.DataDir,
		ProjectsDir: dirs.ProjectsDir,
		ExecPath:    execPath,
	}, logger)

	if cfg.Socket != "" {
		srv := channel.NewSocketServer(core, cfg.Socket, logger)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = srv.Stop() }()
		logger.Info(ctx, "channel listening", ports.F("socket", cfg.Socket))
	}

	if cfg.Listen != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/channel", core.WSHandler(ctx))
		httpSrv := &http.Server{Addr: cfg.Listen, Handler: mux}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error(ctx, "websocket listener stopped", ports.F("error", err.Error()))
			}
		}()
		defer func() { _ = httpSrv.Close() }()
		logger.Info(ctx, "channel listening", ports.F("addr", cfg.Listen))
	}

	// Stdio is the default transport when nothing else is configured.
	if stdioMode || (cfg.Socket == "" && cfg.Listen == "") {
		return core.Serve(ctx, os.Stdin, os.Stdout)
	}

	<-ctx.Done()
	return nil
}
