package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/i2y/protoswag/configs"
	"github.com/i2y/protoswag/internal/adapter/inbound/mcptools"
	"github.com/i2y/protoswag/internal/adapter/inbound/resthttp"
	"github.com/i2y/protoswag/internal/adapter/outbound/invoker"
	"github.com/i2y/protoswag/internal/adapter/outbound/memrepo"
	"github.com/i2y/protoswag/internal/usecase"
)

func newServeCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured methods over HTTP (and optionally MCP)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configs.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, stop, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "f", "", "config file, local path or github:// URL (default: $PROTOSWAG_CONFIG_FILE)")
	return cmd
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *configs.Config) error {
	// === Logging ===
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("Logger initialized.", slog.String("level", cfg.ParsedLogLevel().String()), slog.String("mcp_transport", cfg.MCPTransport))

	// === OpenTelemetry Initialization ===
	shutdownOtel, err := initOtelProvider(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		if err := shutdownOtel(context.Background()); err != nil {
			logger.Error("Failed to shutdown OpenTelemetry TracerProvider.", slog.Any("error", err))
		}
	}()

	// === Registration ===
	// Every configuration problem surfaces here, before anything listens.
	r, err := register(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// === Dispatch ===
	up, closeUpstream := upstream(cfg, logger)
	defer func() {
		if err := closeUpstream(); err != nil {
			logger.Warn("Failed to close upstream connection.", slog.Any("error", err))
		}
	}()
	router := invoker.NewRouter(memrepo.NewInMemoryHandlerRegistry(logger), up, logger)
	invokeUC := usecase.NewInvokeMethodUseCase(r.repository, usecase.NewRequestAssembler(r.reflector, logger), router, logger)

	reg, err := usecase.NewServeMethodsUseCase(r.repository, logger).Execute(ctx)
	if err != nil {
		return err
	}

	// === HTTP Server ===
	handler, err := resthttp.NewHandlers(reg, invokeUC, r.reflector, resthttp.Options{
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		ForwardHeaders:      cfg.ForwardHeaders,
	}, logger).Handler()
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}
	go func() {
		logger.Info("HTTP server starting.", slog.String("address", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed to start.", slog.Any("error", err))
			stop()
		}
	}()

	// === MCP Server (mark3labs/mcp-go) ===
	var sseServer *mcpserver.SSEServer
	if cfg.MCPTransport != "none" {
		mcpSrv := mcpserver.NewMCPServer(serviceName, version, mcpserver.WithToolCapabilities(false))
		mcptools.NewTools(reg, invokeUC, r.reflector, logger).Register(mcpSrv)

		switch cfg.MCPTransport {
		case "stdio":
			go func() {
				logger.Info("MCP STDIO server starting.")
				if err := mcpserver.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("MCP STDIO server failed.", slog.Any("error", err))
				}
				stop()
			}()
		case "sse":
			sseServer = mcpserver.NewSSEServer(mcpSrv, mcpserver.WithBaseURL("http://"+cfg.MCPListenAddr))
			go func() {
				logger.Info("MCP SSE server starting.", slog.String("address", cfg.MCPListenAddr))
				if err := sseServer.Start(cfg.MCPListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("MCP SSE server failed to start.", slog.Any("error", err))
					stop()
				}
			}()
		}
	}

	// Wait for interrupt signal.
	<-ctx.Done()

	// === Server Shutdown ===
	logger.Info("Shutting down servers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server graceful shutdown failed.", slog.Any("error", err))
	}
	if sseServer != nil {
		if err := sseServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("MCP SSE server graceful shutdown failed.", slog.Any("error", err))
		}
	}
	logger.Info("Servers shut down gracefully.")
	return nil
}
