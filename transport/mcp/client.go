package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/lo"
	"github.com/wricardo/connectn/game/engine"
	"github.com/wricardo/connectn/game/service"
	"github.com/wricardo/connectn/game/session"
	"github.com/wricardo/connectn/storage"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Connect-N",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Connect-N session server - MCP Interface

This is a thin client that proxies all requests to the REST API server.
Matches themselves are played over WebSocket at /ws/game/{id}?token=...

AVAILABLE TOOLS:
- create_session: Create a session for a variant (classic, connect5, ...)
- list_sessions: List sessions, optionally by phase
- get_session: Show a session with its board
- add_bot: Add the synthetic "bot" participant to a session
- issue_token: Mint a WebSocket token for a participant
- list_variants: List variant presets
- save_variant: Add or replace a variant preset
- get_results: Fetch finished results by id
- search_results: Search finished results by player
- player_stats: Wins, losses and ties of a participant`),
	)

	c.registerTools()
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func numberProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"description": description,
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new session with an optional variant",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"variant": stringProp("Variant preset name (optional, defaults to classic)"),
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List sessions",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"phase": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"creation", "ongoing", "over"},
					"description": "Only list sessions in this phase",
				},
			},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get a session snapshot including the board",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": stringProp("Session ID to retrieve"),
			},
			Required: []string{"session_id"},
		},
	}, c.handleGetSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "add_bot",
		Description: "Add the bot participant to a session that has not started",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": stringProp("Session ID"),
			},
			Required: []string{"session_id"},
		},
	}, c.handleAddBot)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "issue_token",
		Description: "Mint a connection token for a participant",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"participant_id": stringProp("Participant ID"),
			},
			Required: []string{"participant_id"},
		},
	}, c.handleIssueToken)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_variants",
		Description: "List variant presets",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListVariants)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "save_variant",
		Description: "Add or replace a variant preset in the server's variant directory",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name":        stringProp("Variant name, also the file name"),
				"description": stringProp("Short description (optional)"),
				"connect":     numberProp("Pieces in a row needed to win"),
				"players":     numberProp("Roster size, 2 to 8"),
				"width":       numberProp("Board columns, 1 to 32"),
				"height":      numberProp("Board rows, 1 to 32"),
			},
			Required: []string{"name", "connect", "players", "width", "height"},
		},
	}, c.handleSaveVariant)

	// Results
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_results",
		Description: "Fetch finished results by id; fails if any id is unknown",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"ids": stringProp("Comma separated result ids"),
			},
			Required: []string{"ids"},
		},
	}, c.handleGetResults)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "search_results",
		Description: "Search finished results; every listed player must have played",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"count": map[string]interface{}{
					"type":        "number",
					"minimum":     0,
					"maximum":     storage.MaxSearchCount,
					"description": "Maximum number of results (default 10)",
				},
				"sort": map[string]interface{}{
					"type":        "string",
					"enum":        []string{storage.SortNewest, storage.SortOldest},
					"description": "Order by completion time",
				},
				"players": stringProp("Comma separated participant ids"),
			},
		},
	}, c.handleSearchResults)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "player_stats",
		Description: "Lifetime wins, losses and ties of a participant",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"participant_id": stringProp("Participant ID"),
			},
			Required: []string{"participant_id"},
		},
	}, c.handlePlayerStats)
}

// GetMCPServer returns the underlying MCP server
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// apiCall makes an HTTP request to the REST API
func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

func splitList(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	}))
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	variant, _ := arguments(request)["variant"].(string)

	body := map[string]string{}
	if variant != "" {
		body["variant"] = variant
	}

	var info service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Created session: %s\nVariant: %s\n", info.ID, formatVariant(info.Variant))), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/api/sessions"
	if phase, _ := arguments(request)["phase"].(string); phase != "" {
		path += "?phase=" + url.QueryEscape(phase)
	}

	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		fmt.Fprintf(&sb, "- %s [%s] %s, connected: %s (created %s)\n",
			s.ID, s.Phase, s.Variant.Name, listOrNone(s.Connected), s.CreatedAt.Format("15:04:05"))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	var info service.SessionInfo
	if err := c.apiCall(ctx, "GET", "/api/sessions/"+url.PathEscape(sessionID), nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSession(info.Snapshot)), nil
}

func (c *Client) handleAddBot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	var bot service.BotInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions/"+url.PathEscape(sessionID)+"/bot", nil, &bot); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Participant %q joined session %s\n", bot.ParticipantID, bot.SessionID)), nil
}

func (c *Client) handleIssueToken(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	participantID, _ := arguments(request)["participant_id"].(string)
	if participantID == "" {
		return mcp.NewToolResultError("participant_id is required"), nil
	}

	var token service.TokenInfo
	if err := c.apiCall(ctx, "POST", "/api/tokens", map[string]string{"participantId": participantID}, &token); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Token for %s:\n%s\n", token.ParticipantID, token.Token)), nil
}

func (c *Client) handleListVariants(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var variants []engine.Variant
	if err := c.apiCall(ctx, "GET", "/api/variants", nil, &variants); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Variants (%d):\n\n", len(variants))
	for _, v := range variants {
		fmt.Fprintf(&sb, "- %s\n", formatVariant(v))
		if v.Description != "" {
			fmt.Fprintf(&sb, "  %s\n", v.Description)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (c *Client) handleSaveVariant(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	var v engine.Variant
	v.Name, _ = args["name"].(string)
	if v.Name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}
	v.Description, _ = args["description"].(string)
	for key, field := range map[string]*int{"connect": &v.Connect, "players": &v.Players, "width": &v.Width, "height": &v.Height} {
		n, ok := args[key].(float64)
		if !ok {
			return mcp.NewToolResultError(key + " is required"), nil
		}
		*field = int(n)
	}

	var saved engine.Variant
	if err := c.apiCall(ctx, "POST", "/api/variants", v, &saved); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Saved variant %s\n", formatVariant(saved))), nil
}

func (c *Client) handleGetResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, _ := arguments(request)["ids"].(string)
	if len(splitList(ids)) == 0 {
		return mcp.NewToolResultError("ids is required"), nil
	}

	var response struct {
		Results []session.Result `json:"results"`
	}
	path := "/api/results?ids=" + url.QueryEscape(strings.Join(splitList(ids), ","))
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatResults(response.Results)), nil
}

func (c *Client) handleSearchResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	params := storage.SearchParams{Count: 10}
	if count, ok := args["count"].(float64); ok {
		params.Count = int(count)
	}
	params.Sort, _ = args["sort"].(string)
	if players, _ := args["players"].(string); players != "" {
		params.Players = splitList(players)
	}

	var response struct {
		Count   int              `json:"count"`
		Results []session.Result `json:"results"`
	}
	if err := c.apiCall(ctx, "POST", "/api/results/search", params, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatResults(response.Results)), nil
}

func (c *Client) handlePlayerStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	participantID, _ := arguments(request)["participant_id"].(string)
	if participantID == "" {
		return mcp.NewToolResultError("participant_id is required"), nil
	}

	var stats service.PlayerStats
	if err := c.apiCall(ctx, "GET", "/api/players/"+url.PathEscape(participantID)+"/stats", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := fmt.Sprintf("%s: %d wins, %d losses, %d ties over %d games\n",
		stats.ParticipantID, stats.Wins, stats.Losses, stats.Ties, len(stats.GameIDs))
	return mcp.NewToolResultText(text), nil
}

// Formatting helpers

func formatVariant(v engine.Variant) string {
	return fmt.Sprintf("%s (%dx%d, connect %d, %d players)", v.Name, v.Width, v.Height, v.Connect, v.Players)
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func formatSession(snap session.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Session %s\n", snap.ID)
	fmt.Fprintf(&sb, "Phase: %s\n", snap.Phase)
	fmt.Fprintf(&sb, "Variant: %s\n", formatVariant(snap.Variant))
	fmt.Fprintf(&sb, "Connected: %s\n", listOrNone(snap.Connected))

	switch snap.Phase {
	case session.PhaseCreation:
		fmt.Fprintf(&sb, "Ready: %s\n", listOrNone(snap.Ready))
	case session.PhaseOngoing:
		fmt.Fprintf(&sb, "Roster: %s\n", formatRoster(snap.Roster))
		if snap.Board != nil && snap.Board.CurrentPlayer() < len(snap.Roster) {
			fmt.Fprintf(&sb, "To move: %s\n", snap.Roster[snap.Board.CurrentPlayer()])
		}
	case session.PhaseOver:
		fmt.Fprintf(&sb, "Roster: %s\n", formatRoster(snap.Roster))
		if snap.Result != nil {
			fmt.Fprintf(&sb, "Outcome: %s\n", formatOutcome(*snap.Result))
		}
	}

	if snap.Board != nil {
		sb.WriteString("\n")
		sb.WriteString(formatBoard(snap.Board))
	}
	return sb.String()
}

// formatRoster labels each participant with the digit used on the board
func formatRoster(roster []string) string {
	return strings.Join(lo.Map(roster, func(id string, i int) string {
		return fmt.Sprintf("%d=%s", i, id)
	}), ", ")
}

// formatBoard draws the top row first; empty cells are dots
func formatBoard(b *engine.Board) string {
	var sb strings.Builder
	for row := b.Height - 1; row >= 0; row-- {
		for col := 0; col < b.Width; col++ {
			if cell := b.Cell(row, col); cell == engine.Empty {
				sb.WriteString(" .")
			} else {
				fmt.Fprintf(&sb, " %d", cell)
			}
		}
		sb.WriteString("\n")
	}
	for col := 0; col < b.Width; col++ {
		fmt.Fprintf(&sb, " %d", col%10)
	}
	sb.WriteString("\n")
	return sb.String()
}

func formatOutcome(r session.Result) string {
	if r.Draw {
		return "draw"
	}
	return r.Winner + " won"
}

func formatResults(results []session.Result) string {
	if len(results) == 0 {
		return "No results\n"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Results (%d):\n\n", len(results))
	for _, r := range results {
		fmt.Fprintf(&sb, "- %s %s: %s, %s\n",
			r.ID, r.CompletedAt.Format(time.RFC3339), strings.Join(r.Roster, " vs "), formatOutcome(r))
	}
	return sb.String()
}
