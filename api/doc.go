// Package api provides the HTTP surface of the Connect-N server.
//
// Endpoints:
//
// Session Management:
//   - POST /api/sessions - Create a session ({"variant": "connect5"}, optional)
//   - GET /api/sessions - List sessions (?phase=creation|ongoing|over)
//   - GET /api/sessions/{id} - Get a session snapshot
//   - DELETE /api/sessions/{id} - Delete a session and disconnect its participants
//   - POST /api/sessions/{id}/bot - Add a synthetic participant
//
// Results:
//   - GET /api/results?ids=a,b - Fetch results by id; 404 if any is missing
//   - POST /api/results/search - {"count": 0..100, "sort": "newest"|"oldest", "players": [...]}
//   - GET /api/players/{id}/stats - Wins, losses, ties and game ids
//
// Identity and Configuration:
//   - POST /api/tokens - Mint a connection token ({"participantId": "alice"})
//   - GET /api/variants - List variant presets
//   - POST /api/variants - Add or replace a preset in the config directory
//
// Live Play:
//   - GET /ws/game/{id}?token=... - WebSocket game connection
//   - GET /health - Liveness probe
//
// Errors are returned as {"error": "message"} with a status derived from
// the underlying sentinel error: 404 for unknown sessions, results and
// variants, 409 for sessions that already started or are full, 400 for
// invalid input and 503 for disabled features.
package api
