package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/connectn/transport/mcp"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

const shutdownTimeout = 10 * time.Second

func newHTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// runServer serves the API until ctx is canceled or the listener fails
func runServer(ctx context.Context, cfg Config, log *slog.Logger) error {
	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
	}

	a, err := newApp(cfg, log, listener.Addr())
	if err != nil {
		listener.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpServer := newHTTPServer(a.handler)
	errChan := make(chan error, 2)

	go func() {
		addr := listener.Addr().String()
		log.Info("Starting HTTP server", "app", AppName, "version", Version, "address", addr, "store", cfg.StoreKind)
		log.Info("Endpoints",
			"api", fmt.Sprintf("http://%s/api", addr),
			"websocket", fmt.Sprintf("ws://%s/ws/game/<session_id>?token=<token>", addr),
			"mcp", fmt.Sprintf("http://%s/mcp", addr))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if cfg.NgrokEnabled {
		tunnelServer := newHTTPServer(a.handler)
		go func() {
			if err := serveNgrok(ctx, cfg, tunnelServer, log); err != nil {
				errChan <- err
			}
		}()
		defer tunnelServer.Close()
	}

	go a.cleanupLoop(ctx)

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		a.shutdown(context.Background())
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", "error", err)
	}
	a.shutdown(shutdownCtx)
	log.Info("Server stopped")
	return nil
}

// serveNgrok exposes srv through an ngrok tunnel until ctx is done
func serveNgrok(ctx context.Context, cfg Config, srv *http.Server, log *slog.Logger) error {
	if cfg.NgrokAuthToken == "" {
		log.Warn("ngrok enabled but NGROK_AUTHTOKEN is not set, skipping tunnel")
		return nil
	}

	tunnel := ngrokConfig.HTTPEndpoint()
	if cfg.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.NgrokDomain))
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.NgrokAuthToken))
	if err != nil {
		return fmt.Errorf("failed to start ngrok tunnel: %w", err)
	}

	url := tun.URL()
	log.Info("Ngrok tunnel established",
		"url", url,
		"api", url+"/api",
		"mcp", url+"/mcp")

	if err := srv.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ngrok server error: %w", err)
	}
	log.Info("Ngrok tunnel closed")
	return nil
}

// runStdioMCP serves MCP over stdio. It targets the configured server when
// one answers /health and otherwise starts an internal one on a loopback port.
func runStdioMCP(ctx context.Context, cfg Config, log *slog.Logger) error {
	externalURL := fmt.Sprintf("http://%s", cfg.Addr())
	if apiAvailable(ctx, externalURL) {
		log.Info("Using external API server for MCP", "url", externalURL)
		return serveStdio(ctx, mcp.NewClient(externalURL))
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to get available port: %w", err)
	}

	a, err := newApp(cfg, log, listener.Addr())
	if err != nil {
		listener.Close()
		return err
	}

	httpServer := newHTTPServer(a.handler)
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Internal HTTP server error", "error", err)
		}
	}()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.cleanupLoop(sctx)

	log.Info("MCP stdio server ready (using internal HTTP server)", "address", listener.Addr().String())
	serveErr := serveStdio(ctx, mcp.NewClient(apiBaseURL(listener.Addr())))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	a.shutdown(shutdownCtx)
	return serveErr
}

func serveStdio(ctx context.Context, client *mcp.Client) error {
	stdio := server.NewStdioServer(client.GetMCPServer())
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// apiAvailable reports whether a server answers GET baseURL/health
func apiAvailable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
