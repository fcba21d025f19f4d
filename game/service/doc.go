// Package service provides the operations layer of the Connect-N server.
//
// GameService sits between the outer surfaces (REST API and MCP tools) and
// the session registry, variant presets, result store and token issuer.
// Live play does not go through it: participants talk to the WebSocket
// protocol handler directly.
//
// Recorder receives finished results from the protocol handler and writes
// them, together with per-participant counter updates, in the background.
// Failed writes are retried with exponential backoff; counter updates are
// idempotent per game id so retries never double count.
//
// Usage:
//
//	sessions := session.NewManager()
//	variants, _ := config.NewManager("configs")
//	svc := service.NewGameService(sessions, variants, service.Options{
//		Results:  store,
//		Counters: store,
//		Tokens:   issuer,
//	})
//
//	info, err := svc.CreateSession(ctx, "connect5")
package service
