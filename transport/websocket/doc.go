// Package websocket carries the game protocol over WebSocket connections.
//
// Hub is the per-session connection registry. It keeps at most one Client
// per participant per session; registering a second connection for the
// same participant closes the first with REDUNDANT_CONNECTION (4008).
// Broadcasts marshal a message once and queue it on every client's buffered
// send channel, so they never block on a slow peer.
//
// Handler runs each connection through the protocol states:
//
//  1. Unauthenticated: the "token" query parameter is resolved to a
//     participant id, or the connection is closed with NOT_AUTHORIZED.
//  2. Handshaking: the session is looked up (NOT_FOUND) and joined
//     (GAME_FULL, GAME_ALREADY_STARTED).
//  3. Joined: the client is registered, receives a "state" snapshot and
//     the others receive "join".
//  4. Message loop: "ready", "move" and "chat" envelopes are applied to the
//     session. Malformed, illegal or out-of-phase messages are dropped.
//  5. Closed: the participant leaves and the others receive "leave", unless
//     a newer connection already replaced this one.
//
// Each message is applied inside session.Session.Do, so everything it
// broadcasts is queued to every recipient before the next message for the
// session is processed.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	handler := websocket.NewHandler(sessions, hub, identity, recorder, logger)
//	router.HandleFunc("/ws/game/{id}", func(w http.ResponseWriter, r *http.Request) {
//		handler.ServeWS(w, r, mux.Vars(r)["id"])
//	})
package websocket
