// Package mcp exposes the Connect-N REST API as Model Context Protocol tools.
//
// Client is a thin proxy: every tool call becomes one REST request against
// a running server, and the JSON response is rendered as text for the
// agent. Boards are drawn top row first with one digit per roster index.
//
// Tools:
//   - create_session, list_sessions, get_session: session management
//   - add_bot: add the synthetic participant to a session
//   - issue_token: mint a WebSocket token for a participant
//   - list_variants, save_variant: variant presets
//   - get_results, search_results, player_stats: finished matches
//
// The server is reachable over stdio (the "mcp" command) and over HTTP at
// POST /mcp on a running server.
package mcp
