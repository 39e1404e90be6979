// Command mcp-file-server runs an MCP server over stdin and stdout.
//
// Configuration comes from MCP_* environment variables, optionally seeded
// from a .env file, and can be overridden with flags. Logs go to stderr.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ggoodman/mcp-file-server/internal/config"
	"github.com/ggoodman/mcp-file-server/internal/logctx"
	"github.com/ggoodman/mcp-file-server/internal/manifest"
	"github.com/ggoodman/mcp-file-server/internal/tools"
	"github.com/ggoodman/mcp-file-server/mcp"
	"github.com/ggoodman/mcp-file-server/mcpservice"
	"github.com/ggoodman/mcp-file-server/sessions"
	"github.com/ggoodman/mcp-file-server/stdio"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type flags struct {
	envFile       string
	logLevel      string
	logFormat     string
	shutdownGrace time.Duration
	toolsManifest string
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:           "mcp-file-server",
		Short:         "MCP server speaking JSON-RPC over stdio",
		Long:          "Serves a single MCP client over newline-delimited JSON-RPC on stdin and stdout.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, stdin, stdout, stderr)
		},
	}
	root.SetOut(stderr)
	root.SetErr(stderr)

	fl := root.PersistentFlags()
	fl.StringVar(&f.envFile, "env-file", ".env", "optional .env file to load before reading the environment")
	root.Flags().StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn or error (MCP_LOG_LEVEL)")
	root.Flags().StringVar(&f.logFormat, "log-format", "", "log format: text or json (MCP_LOG_FORMAT)")
	root.Flags().DurationVar(&f.shutdownGrace, "shutdown-grace", 0, "time allowed for in-flight requests on shutdown (MCP_SHUTDOWN_GRACE)")
	root.Flags().StringVar(&f.toolsManifest, "tools-manifest", "", "YAML tools manifest, reloaded on change (MCP_TOOLS_MANIFEST)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the server name and version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.envFile)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(stdout, "%s %s\n", cfg.ServerName, cfg.ServerVersion)
			return err
		},
	})
	return root
}

// loadConfig merges the environment with explicitly set flags.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.envFile)
	if err != nil {
		return nil, err
	}
	fl := cmd.Flags()
	if fl.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fl.Changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if fl.Changed("shutdown-grace") {
		cfg.ShutdownGrace = f.shutdownGrace
	}
	if fl.Changed("tools-manifest") {
		cfg.ToolsManifest = f.toolsManifest
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	if l, err := config.ParseLevel(cfg.LogLevel); err == nil {
		lv.Set(l)
	}
	opts := &slog.HandlerOptions{Level: lv}
	var h slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(logctx.New(h)), lv
}

func run(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, lv := newLogger(cfg, stderr)

	m := manifest.Default()
	if cfg.ToolsManifest != "" {
		loaded, err := manifest.Load(cfg.ToolsManifest)
		if err != nil {
			return err
		}
		m = loaded
	}
	toolset := mcpservice.NewToolsContainer(tools.Build(m)...)
	defer toolset.Close()

	srv := mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: cfg.ServerName, Version: cfg.ServerVersion}),
		mcpservice.WithInstructions(cfg.Instructions),
		mcpservice.WithToolsCapability(toolset),
		mcpservice.WithLoggingCapability(mcpservice.NewSlogLevelVarLogging(lv)),
		mcpservice.WithHandshakeObserver(func(ctx context.Context, sess sessions.Session) error {
			ci := sess.ClientInfo()
			log.InfoContext(ctx, "client.connected",
				slog.String("client_name", ci.Name),
				slog.String("client_version", ci.Version),
				slog.String("protocol_version", sess.ProtocolVersion()),
			)
			return nil
		}),
	)

	watchCtx, stopWatch := context.WithCancel(ctx)
	var watchers errgroup.Group
	defer func() {
		stopWatch()
		_ = watchers.Wait()
	}()
	if cfg.ToolsManifest != "" {
		watchers.Go(func() error {
			err := manifest.Watch(watchCtx, cfg.ToolsManifest, log, func(m *manifest.Manifest) {
				toolset.Replace(tools.Build(m)...)
			})
			if err != nil {
				log.WarnContext(watchCtx, "manifest.watch.fail", slog.String("err", err.Error()))
			}
			return nil
		})
	}

	log.InfoContext(ctx, "server.start",
		slog.String("name", cfg.ServerName),
		slog.String("version", cfg.ServerVersion),
		slog.Any("tools", toolset.Names()),
	)
	h := stdio.NewHandler(srv,
		stdio.WithIO(stdin, stdout),
		stdio.WithLogger(log),
		stdio.WithGracePeriod(cfg.ShutdownGrace),
	)
	if err := h.Serve(ctx); err != nil {
		return err
	}
	log.InfoContext(ctx, "server.stop")
	return nil
}
