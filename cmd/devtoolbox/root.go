package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"devtoolbox-mcp/internal/analysis"
	"devtoolbox-mcp/internal/config"
	"devtoolbox-mcp/internal/dockerctl"
	"devtoolbox-mcp/internal/gateway"
)

var rootCmd = &cobra.Command{
	Use:   "devtoolbox",
	Short: "An MCP server exposing code analysis and Docker control toolsets",
	Long: `devtoolbox serves two MCP toolsets over HTTP: code-analysis commands
(lint, type-check) under /code and Docker container control under /docker.
One wire transport is chosen at startup and kept for the process lifetime:
sse (the default) or stream-http.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		if transportFlag != "" {
			cfg.Transport = transportFlag
		}
		if addr != "" {
			cfg.Addr = addr
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		transport, err := gateway.ParseTransport(cfg.Transport)
		if err != nil {
			return err
		}

		conn := connectDocker(ctx, cfg.Docker, logger)
		defer conn.Close()

		analysisReg, err := analysis.NewRegistry(cfg.Analysis, logger)
		if err != nil {
			return fmt.Errorf("error building code analysis registry: %w", err)
		}
		dockerReg, err := dockerctl.NewRegistry(conn, cfg.Docker, logger)
		if err != nil {
			return fmt.Errorf("error building docker control registry: %w", err)
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			gw := gateway.New(cfg.Addr, transport, logger,
				gateway.Mount{Prefix: "/code", Registry: analysisReg},
				gateway.Mount{Prefix: "/docker", Registry: dockerReg},
			)
			return gw.Run(ctx)
		})
		return g.Wait()
	},
}

// connectDocker attempts the runtime connection once. Failure degrades the
// container toolset to its unavailable state instead of failing boot.
func connectDocker(ctx context.Context, cfg config.DockerConfig, logger *slog.Logger) dockerctl.Conn {
	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Timeout))
	defer cancel()

	rt, err := dockerctl.Connect(pingCtx, cfg.Host)
	if err != nil {
		logger.Warn("docker not available", "error", err)
		return dockerctl.Unavailable(err.Error())
	}
	return dockerctl.Connected(rt)
}

var (
	configPath    string
	transportFlag string
	addr          string
	verbose       bool

	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func init() {
	rootCmd.Flags().StringVar(&transportFlag, "transport", "", `wire transport: "sse" or "stream-http" (defaults to sse)`)
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging to stderr")

	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built at: %s)", version, commit, date)
	rootCmd.AddCommand(healthCmd)
}
