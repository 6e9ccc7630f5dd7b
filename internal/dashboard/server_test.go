package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agentarium/internal/config"
	"agentarium/internal/database"
	"agentarium/internal/identity"
	"agentarium/internal/models"
	"agentarium/internal/monitoring"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGenerator satisfies simulation.Generator without touching a model
type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, agent *models.Agent, worldContext string, memory map[string]interface{}) (string, map[string]interface{}, error) {
	return "stub action", map[string]interface{}{}, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth.Secret = testSecret
	cfg.Auth.TokenTTLMins = 60
	// A very long tick keeps the loop quiet during tests.
	cfg.Simulation.TickIntervalMS = 3600000
	cfg.Simulation.PingIntervalS = 30
	cfg.Simulation.PongTimeoutS = 60
	return cfg
}

func newTestServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.InitDB("sqlite3", ":memory:")
	require.NoError(t, err)
	db.DB().SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	srv := NewServer(testConfig(), db, stubGenerator{}, identity.NewDBResolver(db), monitoring.NewMonitor())
	return srv, db
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func signupAndLogin(t *testing.T, srv *Server, username string) (string, string) {
	t.Helper()

	w := doJSON(t, srv, http.MethodPost, "/api/signup", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, srv, http.MethodPost, "/api/login", "", gin.H{
		"username": username,
		"password": "hunter22",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token, created.ID
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestSignupLoginFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/signup", "", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	// The password hash must never leak into a response.
	assert.NotContains(t, w.Body.String(), "hunter22")
	assert.NotContains(t, w.Body.String(), "password")

	// Duplicate usernames are rejected.
	w = doJSON(t, srv, http.MethodPost, "/api/signup", "", gin.H{
		"username": "alice",
		"email":    "alice2@example.com",
		"password": "hunter22",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, srv, http.MethodPost, "/api/login", "", gin.H{
		"username": "alice",
		"password": "hunter22",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "token")

	w = doJSON(t, srv, http.MethodPost, "/api/login", "", gin.H{
		"username": "alice",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAgentEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	token, _ := signupAndLogin(t, srv, "alice")

	// Unauthorized without a token.
	w := doJSON(t, srv, http.MethodGet, "/api/agents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, srv, http.MethodPost, "/api/agents", token, gin.H{
		"name":        "Scout",
		"description": "a cautious explorer",
		"goals":       "analyze terrain",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var agent models.Agent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &agent))
	assert.NotEmpty(t, agent.ID)
	assert.Equal(t, models.AgentStatusIdle, agent.Status)

	w = doJSON(t, srv, http.MethodGet, "/api/agents", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Scout")

	w = doJSON(t, srv, http.MethodGet, "/api/agents/"+agent.ID+"/export", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), agent.ID)

	w = doJSON(t, srv, http.MethodGet, "/api/agents/no-such-agent/export", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAgentListIsUserScoped(t *testing.T) {
	srv, _ := newTestServer(t)
	aliceToken, _ := signupAndLogin(t, srv, "alice")
	bobToken, _ := signupAndLogin(t, srv, "bob")

	w := doJSON(t, srv, http.MethodPost, "/api/agents", aliceToken, gin.H{
		"name":  "Alice Agent",
		"goals": "analyze terrain",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/agents", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "Alice Agent")
}

func TestLogsAndMetricsEndpoints(t *testing.T) {
	srv, db := newTestServer(t)
	token, _ := signupAndLogin(t, srv, "alice")

	require.NoError(t, db.Create(&models.SimulationLog{
		Type:      models.LogTypeInfo,
		Message:   "Simulation started",
		Timestamp: time.Now().UTC(),
	}).Error)

	w := doJSON(t, srv, http.MethodGet, "/api/logs", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Simulation started")

	w = doJSON(t, srv, http.MethodGet, "/api/metrics", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "uptime_seconds")
}

func TestLogsAreUserScoped(t *testing.T) {
	srv, db := newTestServer(t)
	aliceToken, aliceID := signupAndLogin(t, srv, "alice")
	bobToken, _ := signupAndLogin(t, srv, "bob")

	agent := models.Agent{
		Name:     "Alice Agent",
		Goals:    "analyze confidential merger targets",
		Status:   models.AgentStatusIdle,
		Metadata: models.JSONMap{},
		Memory:   models.JSONMap{},
		UserID:   aliceID,
	}
	require.NoError(t, db.Create(&agent).Error)

	require.NoError(t, db.Create(&models.SimulationLog{
		AgentID:   agent.ID,
		Type:      models.LogTypeBehavior,
		Message:   "Agent Alice Agent - [ANALYZE] scouting while pursuing: analyze confidential merger targets",
		Timestamp: time.Now().UTC(),
	}).Error)
	require.NoError(t, db.Create(&models.SimulationLog{
		Type:      models.LogTypeInfo,
		Message:   "Simulation started",
		Timestamp: time.Now().UTC(),
	}).Error)

	// Bob sees system rows but nothing scoped to Alice's agents.
	w := doJSON(t, srv, http.MethodGet, "/api/logs", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Simulation started")
	assert.NotContains(t, w.Body.String(), "confidential merger")

	w = doJSON(t, srv, http.MethodGet, "/api/logs", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "confidential merger")
}

func TestWebSocketRequiresKnownUser(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/ws?id=no-such-user", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type wireEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readEventOfType drains the connection until an event of the wanted type
// arrives or the deadline passes.
func readEventOfType(t *testing.T, conn *websocket.Conn, eventType string) wireEvent {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))

	for {
		var event wireEvent
		err := conn.ReadJSON(&event)
		require.NoError(t, err, "waiting for %q event", eventType)
		if event.Type == eventType {
			return event
		}
		require.True(t, time.Now().Before(deadline), "no %q event before deadline", eventType)
	}
}

func dialSession(t *testing.T, srv *Server, userID string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?id=" + userID
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketSession(t *testing.T) {
	srv, _ := newTestServer(t)
	_, userID := signupAndLogin(t, srv, "alice")

	conn := dialSession(t, srv, userID)

	// The session opens with the user's current agent list.
	initial := readEventOfType(t, conn, "agents")
	var existing []models.Agent
	require.NoError(t, json.Unmarshal(initial.Payload, &existing))
	assert.Empty(t, existing)

	// Deploy an agent over the session channel.
	deploy := fmt.Sprintf(`{"command":"deploy","payload":{"name":"Scout","goals":"analyze terrain","userId":%q}}`, userID)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(deploy)))

	logEvent := readEventOfType(t, conn, "log")
	var entry models.SimulationLog
	require.NoError(t, json.Unmarshal(logEvent.Payload, &entry))
	assert.Equal(t, `Agent "Scout" deployed successfully`, entry.Message)

	listEvent := readEventOfType(t, conn, "agents")
	var agents []models.Agent
	require.NoError(t, json.Unmarshal(listEvent.Payload, &agents))
	require.Len(t, agents, 1)
	assert.Equal(t, "Scout", agents[0].Name)
	assert.Equal(t, models.AgentStatusIdle, agents[0].Status)
}

func TestWebSocketDeployRejectsForeignUser(t *testing.T) {
	srv, db := newTestServer(t)
	_, aliceID := signupAndLogin(t, srv, "alice")
	_, bobID := signupAndLogin(t, srv, "bob")

	conn := dialSession(t, srv, aliceID)
	readEventOfType(t, conn, "agents")

	deploy := fmt.Sprintf(`{"command":"deploy","payload":{"name":"Sneaky","goals":"lurk","userId":%q}}`, bobID)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(deploy)))

	logEvent := readEventOfType(t, conn, "log")
	var entry models.SimulationLog
	require.NoError(t, json.Unmarshal(logEvent.Payload, &entry))
	assert.Equal(t, models.LogTypeError, entry.Type)
	assert.Contains(t, entry.Message, "user mismatch")

	var count int
	require.NoError(t, db.Model(&models.Agent{}).Count(&count).Error)
	assert.Equal(t, 0, count)
}

func TestWebSocketMalformedMessage(t *testing.T) {
	srv, _ := newTestServer(t)
	_, userID := signupAndLogin(t, srv, "alice")

	conn := dialSession(t, srv, userID)
	readEventOfType(t, conn, "agents")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	// The malformed message is reported and the connection stays usable.
	errEvent := readEventOfType(t, conn, "error")
	assert.Contains(t, string(errEvent.Payload), "Invalid message format")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"nonsense"}`)))
	logEvent := readEventOfType(t, conn, "log")
	var entry models.SimulationLog
	require.NoError(t, json.Unmarshal(logEvent.Payload, &entry))
	assert.Equal(t, models.LogTypeError, entry.Type)
	assert.Contains(t, entry.Message, "Unknown command: nonsense")
}

func TestWebSocketStartAndPause(t *testing.T) {
	srv, _ := newTestServer(t)
	_, userID := signupAndLogin(t, srv, "alice")

	conn := dialSession(t, srv, userID)
	readEventOfType(t, conn, "agents")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"start"}`)))
	statusEvent := readEventOfType(t, conn, "status")
	assert.Equal(t, `"running"`, strings.TrimSpace(string(statusEvent.Payload)))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"pause"}`)))
	statusEvent = readEventOfType(t, conn, "status")
	assert.Equal(t, `"paused"`, strings.TrimSpace(string(statusEvent.Payload)))
}

func TestWebSocketWorldContextUpdate(t *testing.T) {
	srv, _ := newTestServer(t)
	_, userID := signupAndLogin(t, srv, "alice")

	conn := dialSession(t, srv, userID)
	readEventOfType(t, conn, "agents")

	update := `{"command":"updateWorldContext","payload":{"name":"Desert World","climate":"arid"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(update)))

	stateEvent := readEventOfType(t, conn, "worldState")
	assert.Contains(t, string(stateEvent.Payload), "arid")

	ctxEvent := readEventOfType(t, conn, "worldContext")
	assert.Contains(t, string(ctxEvent.Payload), "Desert World")
}
