// Mcpd is an MCP server daemon with Streamable HTTP and stdio
// transports.
//
// The daemon hosts the protocol handler from pkg/mcp and exposes it
// over HTTP (/mcp plus /health and /metrics) or, when MCP_TRANSPORT=stdio
// is set, over stdin/stdout for editor integration.
//
// Configuration is loaded from an optional YAML file and MCPD_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the HTTP server with defaults
//	mcpd
//
//	# Configure via environment
//	MCPD_SERVER_PORT=9000 mcpd serve
//
//	# Stdio transport for editor integration
//	MCP_TRANSPORT=stdio mcpd
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mcpd/internal/config"
	"github.com/fyrsmithlabs/mcpd/internal/logging"
	"github.com/fyrsmithlabs/mcpd/pkg/mcp"
	"github.com/fyrsmithlabs/mcpd/pkg/mcp/stdio"
	"github.com/fyrsmithlabs/mcpd/pkg/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "mcpd",
	Short: "MCP server daemon",
	Long: `mcpd hosts Model Context Protocol tools, resources, and prompts
over the Streamable HTTP transport or stdio.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server (same as running mcpd with no command)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mcpd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
		fmt.Printf("Go:         %s\n", runtime.Version())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mcpd: %v\n", err)
		os.Exit(1)
	}
}

// run starts the daemon and blocks until the context is cancelled.
//
// It loads configuration, builds the logger and protocol handler,
// registers the builtin components, and serves either stdio or HTTP
// depending on the environment.
func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	handler := mcp.NewHandler(mcp.HandlerOptions{
		Logger:                 logger,
		ServerName:             cfg.Protocol.ServerName,
		ServerVersion:          versionString(),
		MaxArgumentKeys:        cfg.Protocol.MaxArgumentKeys,
		MaxPendingRequests:     cfg.Protocol.MaxPendingRequests,
		ClientReplyTimeout:     cfg.Protocol.ClientReplyTimeout,
		PageSize:               cfg.Protocol.PageSize,
		MaxSessions:            cfg.Sessions.MaxSessions,
		SessionMaxAge:          cfg.Sessions.MaxAge,
		SessionCleanupInterval: cfg.Sessions.CleanupInterval,
		EventBufferSize:        cfg.Sessions.EventBufferSize,
		SetLogLevel: func(name string) error {
			lvl, err := logging.ParseLevel(name)
			if err != nil {
				return err
			}
			logging.SetLevel(lvl)
			return nil
		},
	})

	if err := registerBuiltins(handler, cfg); err != nil {
		return fmt.Errorf("register builtin components: %w", err)
	}

	if config.StdioRequested() {
		logger.Info("starting stdio transport",
			zap.String("server", cfg.Protocol.ServerName),
			zap.String("version", versionString()))
		return stdio.NewServer(handler, logger).Run(ctx)
	}

	srv := server.NewServer(cfg)

	transport := mcp.NewHTTPTransport(handler, logger, mcp.HTTPTransportConfig{
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        cfg.RateLimit.Rate,
		RateBurst:        cfg.RateLimit.Burst,
	})
	transport.RegisterRoutes(srv.Echo())

	logger.Info("starting HTTP transport",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("mcp_endpoint", "/mcp"),
		zap.String("health_endpoint", "/health"),
		zap.String("metrics_endpoint", "/metrics"))

	err = srv.Start(ctx)
	if err == http.ErrServerClosed {
		logger.Info("server shutdown complete")
		return nil
	}
	return err
}

// registerBuiltins installs the components every mcpd instance serves.
func registerBuiltins(handler *mcp.Handler, cfg *config.Config) error {
	info, err := mcp.NewResource(
		"server://info",
		"Server information",
		"Name, version, and registered component counts of this server",
		"application/json",
		func(ctx context.Context) (interface{}, error) {
			return map[string]interface{}{
				"name":      cfg.Protocol.ServerName,
				"version":   versionString(),
				"tools":     len(handler.ToolNames()),
				"resources": len(handler.ResourceURIs()),
				"prompts":   len(handler.PromptNames()),
			}, nil
		},
	)
	if err != nil {
		return err
	}
	handler.RegisterResource(info, "builtin")
	return nil
}

func versionString() string {
	if version != "dev" {
		return version
	}
	return version + "+" + gitCommit
}
