package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/wricardo/connectn/api"
	"github.com/wricardo/connectn/auth"
	"github.com/wricardo/connectn/game/bot"
	"github.com/wricardo/connectn/game/config"
	"github.com/wricardo/connectn/game/service"
	"github.com/wricardo/connectn/game/session"
	"github.com/wricardo/connectn/storage"
	"github.com/wricardo/connectn/transport/mcp"
	"github.com/wricardo/connectn/transport/websocket"
)

// app holds every long-lived component of a running server
type app struct {
	cfg Config
	log *slog.Logger

	sessions *session.Manager
	variants *config.Manager
	store    storage.Store
	tokens   *auth.Issuer
	recorder *service.Recorder
	hub      *websocket.Hub
	bots     *bot.Spawner
	service  service.GameService
	handler  http.Handler
}

// newApp wires the components for a server reachable at listenAddr.
// Bots dial the game endpoint over loopback on the same port.
func newApp(cfg Config, log *slog.Logger, listenAddr net.Addr) (*app, error) {
	variants, err := newVariantCatalog(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.StoreKind, cfg.StoreLocation(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreKind, err)
	}

	secret := cfg.TokenSecret
	if secret == "" {
		secret = randomSecret()
		log.Warn("TOKEN_SECRET not set, tokens will not survive a restart")
	}
	tokens, err := auth.NewIssuer(secret, cfg.TokenLifetime)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		sessions: session.NewManager(),
		variants: variants,
		store:    store,
		tokens:   tokens,
		recorder: service.NewRecorder(store, store, log),
		hub:      websocket.NewHub(log),
	}

	wsHandler := websocket.NewHandler(a.sessions, a.hub, tokens, a.recorder, log)
	wsHandler.MaxChatLength = cfg.MaxChatLength

	a.bots = bot.NewSpawner(gameEndpoint(listenAddr), tokens, log)
	a.bots.MoveDelay = cfg.BotMoveDelay

	a.service = service.NewGameService(a.sessions, variants, service.Options{
		Results:     store,
		Counters:    store,
		Tokens:      tokens,
		Bots:        a.bots,
		Connections: a.hub,
	})

	apiServer := api.NewServer(a.service, wsHandler, log)
	mcpClient := mcp.NewClient(apiBaseURL(listenAddr))

	router := http.NewServeMux()
	router.Handle("/", apiServer)
	router.HandleFunc("/mcp", mcpHandler(mcpClient))
	a.handler = router

	return a, nil
}

// newVariantCatalog loads the variant directory and applies DEFAULT_VARIANT
func newVariantCatalog(cfg Config) (*config.Manager, error) {
	variants, err := config.NewManager(cfg.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}
	if cfg.DefaultVariant != "" {
		if err := variants.SetDefault(cfg.DefaultVariant); err != nil {
			return nil, fmt.Errorf("invalid default variant: %w", err)
		}
	}
	return variants, nil
}

// mcpHandler answers single JSON-RPC messages posted to /mcp
func mcpHandler(client *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := client.GetMCPServer().HandleMessage(r.Context(), body)

		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(responseData)
	}
}

// cleanupLoop drops idle sessions until ctx is done
func (a *app) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := a.sessions.CleanupExpiredSessions(a.cfg.SessionIdleTTL); removed > 0 {
				a.log.Info("cleaned up idle sessions", "count", removed)
			}
		}
	}
}

// shutdown disconnects bots, drains pending result writes and closes the store
func (a *app) shutdown(ctx context.Context) {
	if err := a.bots.Shutdown(ctx); err != nil {
		a.log.Warn("bots did not stop in time", "error", err)
	}
	if err := a.recorder.Wait(ctx); err != nil {
		a.log.Warn("pending results were not recorded", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.log.Error("failed to close store", "error", err)
	}
}

func gameEndpoint(addr net.Addr) string {
	return fmt.Sprintf("ws://%s/ws/game", loopback(addr))
}

func apiBaseURL(addr net.Addr) string {
	return fmt.Sprintf("http://%s", loopback(addr))
}

// loopback rewrites a listener address so local clients can dial it
func loopback(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return fmt.Sprintf("127.0.0.1:%d", tcp.Port)
	}
	return addr.String()
}

func randomSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
