package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wricardo/connectn/auth"
	"github.com/wricardo/connectn/game/config"
	"github.com/wricardo/connectn/game/engine"
	"github.com/wricardo/connectn/game/service"
	"github.com/wricardo/connectn/game/session"
	"github.com/wricardo/connectn/storage"
)

// MockGameService implements service.GameService for testing
type MockGameService struct {
	// Session Management
	CreateSessionFunc func(ctx context.Context, variantName string) (*service.SessionInfo, error)
	GetSessionFunc    func(ctx context.Context, sessionID string) (*service.SessionInfo, error)
	ListSessionsFunc  func(ctx context.Context) ([]*service.SessionInfo, error)
	DeleteSessionFunc func(ctx context.Context, sessionID string) error
	AddBotFunc        func(ctx context.Context, sessionID string) (*service.BotInfo, error)

	// Results
	GetResultsFunc     func(ctx context.Context, ids []string) ([]session.Result, error)
	SearchResultsFunc  func(ctx context.Context, params storage.SearchParams) ([]session.Result, error)
	GetPlayerStatsFunc func(ctx context.Context, participantID string) (*service.PlayerStats, error)

	// Identity and Configuration
	IssueTokenFunc   func(ctx context.Context, participantID string) (*service.TokenInfo, error)
	ListVariantsFunc func(ctx context.Context) ([]engine.Variant, error)
	SaveVariantFunc  func(ctx context.Context, v engine.Variant) (*engine.Variant, error)
}

func (m *MockGameService) CreateSession(ctx context.Context, variantName string) (*service.SessionInfo, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, variantName)
	}
	return testInfo("test-session", session.PhaseCreation), nil
}

func (m *MockGameService) GetSession(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, sessionID)
	}
	return testInfo(sessionID, session.PhaseCreation), nil
}

func (m *MockGameService) ListSessions(ctx context.Context) ([]*service.SessionInfo, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx)
	}
	return []*service.SessionInfo{}, nil
}

func (m *MockGameService) DeleteSession(ctx context.Context, sessionID string) error {
	if m.DeleteSessionFunc != nil {
		return m.DeleteSessionFunc(ctx, sessionID)
	}
	return nil
}

func (m *MockGameService) AddBot(ctx context.Context, sessionID string) (*service.BotInfo, error) {
	if m.AddBotFunc != nil {
		return m.AddBotFunc(ctx, sessionID)
	}
	return &service.BotInfo{SessionID: sessionID, ParticipantID: "bot"}, nil
}

func (m *MockGameService) GetResults(ctx context.Context, ids []string) ([]session.Result, error) {
	if m.GetResultsFunc != nil {
		return m.GetResultsFunc(ctx, ids)
	}
	return []session.Result{}, nil
}

func (m *MockGameService) SearchResults(ctx context.Context, params storage.SearchParams) ([]session.Result, error) {
	if m.SearchResultsFunc != nil {
		return m.SearchResultsFunc(ctx, params)
	}
	return []session.Result{}, nil
}

func (m *MockGameService) GetPlayerStats(ctx context.Context, participantID string) (*service.PlayerStats, error) {
	if m.GetPlayerStatsFunc != nil {
		return m.GetPlayerStatsFunc(ctx, participantID)
	}
	return &service.PlayerStats{ParticipantID: participantID, GameIDs: []string{}}, nil
}

func (m *MockGameService) IssueToken(ctx context.Context, participantID string) (*service.TokenInfo, error) {
	if m.IssueTokenFunc != nil {
		return m.IssueTokenFunc(ctx, participantID)
	}
	return &service.TokenInfo{ParticipantID: participantID, Token: "tok"}, nil
}

func (m *MockGameService) ListVariants(ctx context.Context) ([]engine.Variant, error) {
	if m.ListVariantsFunc != nil {
		return m.ListVariantsFunc(ctx)
	}
	return []engine.Variant{engine.ClassicVariant()}, nil
}

func (m *MockGameService) SaveVariant(ctx context.Context, v engine.Variant) (*engine.Variant, error) {
	if m.SaveVariantFunc != nil {
		return m.SaveVariantFunc(ctx, v)
	}
	return &v, nil
}

// socketStub records the session id handed to the WebSocket handler
type socketStub struct {
	sessionID string
}

func (s *socketStub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	s.sessionID = sessionID
	w.WriteHeader(http.StatusSwitchingProtocols)
}

// Test helpers
func testInfo(id string, phase session.PhaseName) *service.SessionInfo {
	return &service.SessionInfo{
		Snapshot: session.Snapshot{
			ID:        id,
			Phase:     phase,
			Variant:   engine.ClassicVariant(),
			Connected: []string{},
			CreatedAt: time.Now(),
		},
		LastActivity: time.Now(),
	}
}

func setupTestServer(mockService *MockGameService) *Server {
	return NewServer(mockService, &socketStub{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func makeRequest(method, path string, body interface{}) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
}

func serve(server *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

// Session Management Tests

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    interface{}
		setupMock      func(*MockGameService)
		expectedStatus int
		validateResp   func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:        "Create session with default variant",
			requestBody: nil,
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, variantName string) (*service.SessionInfo, error) {
					if variantName != "" {
						t.Errorf("Expected empty variant, got %s", variantName)
					}
					return testInfo("sess-123", session.PhaseCreation), nil
				}
			},
			expectedStatus: http.StatusCreated,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp service.SessionInfo
				parseResponse(t, w, &resp)
				if resp.ID != "sess-123" {
					t.Errorf("Expected session ID sess-123, got %s", resp.ID)
				}
				if resp.Phase != session.PhaseCreation {
					t.Errorf("Expected creation phase, got %s", resp.Phase)
				}
			},
		},
		{
			name:        "Create session with specific variant",
			requestBody: map[string]string{"variant": "connect5"},
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, variantName string) (*service.SessionInfo, error) {
					if variantName != "connect5" {
						t.Errorf("Expected variant connect5, got %s", variantName)
					}
					return testInfo("sess-456", session.PhaseCreation), nil
				}
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:        "Unknown variant",
			requestBody: map[string]string{"variant": "nope"},
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, variantName string) (*service.SessionInfo, error) {
					return nil, fmt.Errorf("%w: nope", config.ErrVariantNotFound)
				}
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "Malformed body",
			requestBody:    "not an object",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "Handle service error",
			requestBody: nil,
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, variantName string) (*service.SessionInfo, error) {
					return nil, fmt.Errorf("service error")
				}
			},
			expectedStatus: http.StatusInternalServerError,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp map[string]string
				parseResponse(t, w, &resp)
				if resp["error"] != "service error" {
					t.Errorf("Expected error message 'service error', got %s", resp["error"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGameService{}
			if tt.setupMock != nil {
				tt.setupMock(mockService)
			}

			w := serve(setupTestServer(mockService), makeRequest("POST", "/api/sessions", tt.requestBody))

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.validateResp != nil {
				tt.validateResp(t, w)
			}
		})
	}
}

func TestListSessions(t *testing.T) {
	mockService := &MockGameService{
		ListSessionsFunc: func(ctx context.Context) ([]*service.SessionInfo, error) {
			return []*service.SessionInfo{
				testInfo("a", session.PhaseCreation),
				testInfo("b", session.PhaseOngoing),
				testInfo("c", session.PhaseCreation),
			}, nil
		},
	}
	server := setupTestServer(mockService)

	t.Run("all sessions", func(t *testing.T) {
		w := serve(server, makeRequest("GET", "/api/sessions", nil))
		var resp struct {
			Count    int                    `json:"count"`
			Sessions []*service.SessionInfo `json:"sessions"`
		}
		parseResponse(t, w, &resp)
		if resp.Count != 3 || len(resp.Sessions) != 3 {
			t.Errorf("Expected 3 sessions, got %d", resp.Count)
		}
	})

	t.Run("filtered by phase", func(t *testing.T) {
		w := serve(server, makeRequest("GET", "/api/sessions?phase=creation", nil))
		var resp struct {
			Count int `json:"count"`
		}
		parseResponse(t, w, &resp)
		if resp.Count != 2 {
			t.Errorf("Expected 2 sessions, got %d", resp.Count)
		}
	})
}

func TestGetAndDeleteSession(t *testing.T) {
	mockService := &MockGameService{
		GetSessionFunc: func(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
			if sessionID == "gone" {
				return nil, session.ErrSessionNotFound
			}
			return testInfo(sessionID, session.PhaseOngoing), nil
		},
		DeleteSessionFunc: func(ctx context.Context, sessionID string) error {
			if sessionID == "gone" {
				return session.ErrSessionNotFound
			}
			return nil
		},
	}
	server := setupTestServer(mockService)

	tests := []struct {
		method   string
		path     string
		expected int
	}{
		{"GET", "/api/sessions/abc", http.StatusOK},
		{"GET", "/api/sessions/gone", http.StatusNotFound},
		{"DELETE", "/api/sessions/abc", http.StatusOK},
		{"DELETE", "/api/sessions/gone", http.StatusNotFound},
		{"PUT", "/api/sessions/abc", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := serve(server, makeRequest(tt.method, tt.path, nil))
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}
		})
	}
}

func TestAddBot(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"added", nil, http.StatusCreated},
		{"missing session", session.ErrSessionNotFound, http.StatusNotFound},
		{"already started", fmt.Errorf("%w: session x", session.ErrAlreadyStarted), http.StatusConflict},
		{"disabled", service.ErrBotsDisabled, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGameService{
				AddBotFunc: func(ctx context.Context, sessionID string) (*service.BotInfo, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return &service.BotInfo{SessionID: sessionID, ParticipantID: "bot"}, nil
				},
			}
			w := serve(setupTestServer(mockService), makeRequest("POST", "/api/sessions/s1/bot", nil))
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}
		})
	}
}

// Result Tests

func TestGetResults(t *testing.T) {
	var gotIDs []string
	mockService := &MockGameService{
		GetResultsFunc: func(ctx context.Context, ids []string) ([]session.Result, error) {
			gotIDs = ids
			for _, id := range ids {
				if id == "missing" {
					return nil, fmt.Errorf("%w: %s", storage.ErrResultNotFound, id)
				}
			}
			return []session.Result{{ID: ids[0], Roster: []string{"a", "b"}, Draw: true}}, nil
		},
	}
	server := setupTestServer(mockService)

	w := serve(server, makeRequest("GET", "/api/results?ids=r1,%20r2,,", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if len(gotIDs) != 2 || gotIDs[0] != "r1" || gotIDs[1] != "r2" {
		t.Errorf("Expected ids [r1 r2], got %v", gotIDs)
	}

	w = serve(server, makeRequest("GET", "/api/results?ids=r1,missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing result, got %d", w.Code)
	}

	w = serve(server, makeRequest("GET", "/api/results", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without ids, got %d", w.Code)
	}
}

func TestSearchResults(t *testing.T) {
	mockService := &MockGameService{
		SearchResultsFunc: func(ctx context.Context, params storage.SearchParams) ([]session.Result, error) {
			if err := params.Validate(); err != nil {
				return nil, err
			}
			if params.Sort != storage.SortOldest || len(params.Players) != 1 {
				t.Errorf("Unexpected params %+v", params)
			}
			return make([]session.Result, params.Count), nil
		},
	}
	server := setupTestServer(mockService)

	w := serve(server, makeRequest("POST", "/api/results/search", map[string]interface{}{
		"count": 3, "sort": "oldest", "players": []string{"alice"},
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count int `json:"count"`
	}
	parseResponse(t, w, &resp)
	if resp.Count != 3 {
		t.Errorf("Expected 3 results, got %d", resp.Count)
	}

	w = serve(server, makeRequest("POST", "/api/results/search", map[string]interface{}{"count": 101}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for count over 100, got %d", w.Code)
	}

	w = serve(server, httptest.NewRequest("POST", "/api/results/search", bytes.NewBufferString("{")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", w.Code)
	}
}

func TestPlayerStats(t *testing.T) {
	mockService := &MockGameService{
		GetPlayerStatsFunc: func(ctx context.Context, participantID string) (*service.PlayerStats, error) {
			return &service.PlayerStats{ParticipantID: participantID, Wins: 2, Losses: 1, GameIDs: []string{"g1", "g2", "g3"}}, nil
		},
	}
	w := serve(setupTestServer(mockService), makeRequest("GET", "/api/players/alice/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var stats service.PlayerStats
	parseResponse(t, w, &stats)
	if stats.ParticipantID != "alice" || stats.Wins != 2 || len(stats.GameIDs) != 3 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

// Identity and Configuration Tests

func TestIssueToken(t *testing.T) {
	mockService := &MockGameService{
		IssueTokenFunc: func(ctx context.Context, participantID string) (*service.TokenInfo, error) {
			if participantID == "bad/id" {
				return nil, fmt.Errorf("%w: %q", auth.ErrInvalidIdentity, participantID)
			}
			return &service.TokenInfo{ParticipantID: participantID, Token: "signed"}, nil
		},
	}
	server := setupTestServer(mockService)

	tests := []struct {
		name     string
		body     interface{}
		expected int
	}{
		{"issued", map[string]string{"participantId": "alice"}, http.StatusCreated},
		{"missing participant", map[string]string{}, http.StatusBadRequest},
		{"empty body", nil, http.StatusBadRequest},
		{"rejected identity", map[string]string{"participantId": "bad/id"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(server, makeRequest("POST", "/api/tokens", tt.body))
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d: %s", tt.expected, w.Code, w.Body.String())
			}
		})
	}
}

func TestListVariants(t *testing.T) {
	w := serve(setupTestServer(&MockGameService{}), makeRequest("GET", "/api/variants", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var variants []engine.Variant
	parseResponse(t, w, &variants)
	if len(variants) != 1 || variants[0].Name != "classic" {
		t.Errorf("Unexpected variants %+v", variants)
	}
}

func TestSaveVariant(t *testing.T) {
	mockService := &MockGameService{
		SaveVariantFunc: func(ctx context.Context, v engine.Variant) (*engine.Variant, error) {
			switch {
			case v.Name == "readonly":
				return nil, config.ErrNoConfigDir
			case v.Connect > max(v.Width, v.Height):
				return nil, fmt.Errorf("%w: connect %d does not fit", config.ErrInvalidVariant, v.Connect)
			}
			return &v, nil
		},
	}
	server := setupTestServer(mockService)

	tests := []struct {
		name     string
		body     interface{}
		expected int
	}{
		{"saved", engine.Variant{Name: "wide", Connect: 4, Players: 2, Width: 10, Height: 5}, http.StatusCreated},
		{"invalid variant", engine.Variant{Name: "impossible", Connect: 9, Players: 2, Width: 4, Height: 4}, http.StatusBadRequest},
		{"empty body", nil, http.StatusBadRequest},
		{"no variant directory", engine.Variant{Name: "readonly", Connect: 3, Players: 2, Width: 4, Height: 4}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(server, makeRequest("POST", "/api/variants", tt.body))
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d: %s", tt.expected, w.Code, w.Body.String())
			}
		})
	}

	w := serve(server, makeRequest("POST", "/api/variants", engine.Variant{Name: "wide", Connect: 4, Players: 2, Width: 10, Height: 5}))
	var saved engine.Variant
	parseResponse(t, w, &saved)
	if saved.Name != "wide" || saved.Width != 10 {
		t.Errorf("Unexpected saved variant %+v", saved)
	}
}

func TestWebSocketRoute(t *testing.T) {
	socket := &socketStub{}
	server := NewServer(&MockGameService{}, socket, slog.New(slog.NewTextHandler(io.Discard, nil)))

	serve(server, makeRequest("GET", "/ws/game/s-42?token=abc", nil))
	if socket.sessionID != "s-42" {
		t.Errorf("Expected session s-42, got %q", socket.sessionID)
	}
}

func TestHealth(t *testing.T) {
	w := serve(setupTestServer(&MockGameService{}), makeRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}
