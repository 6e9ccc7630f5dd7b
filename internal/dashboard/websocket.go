package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"agentarium/internal/models"
	"agentarium/internal/simulation"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Command is one inbound message on the session channel
type Command struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
}

// Session is one authenticated duplex connection and its bound simulation
// manager. It implements simulation.Broadcaster; outbound events are queued
// on the send channel and drained by the write pump.
type Session struct {
	conn    *websocket.Conn
	send    chan []byte
	user    *models.User
	manager *simulation.Manager
	server  *Server
	cancel  context.CancelFunc
	mu      sync.Mutex
}

// handleWebSocket establishes a session channel. The connection is refused
// when the opaque user identifier is missing or cannot be resolved.
func (s *Server) handleWebSocket(c *gin.Context) {
	rawID := c.Query("id")
	if rawID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user identifier required"})
		return
	}

	userID, err := url.QueryUnescape(rawID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed user identifier"})
		return
	}

	user, err := s.resolver.ResolveUser(userID)
	if err != nil {
		log.Printf("[WebSocket] refusing connection: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WebSocket] failed to upgrade connection: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		conn:   conn,
		send:   make(chan []byte, 256),
		user:   user,
		server: s,
		cancel: cancel,
	}
	sess.manager = simulation.NewManager(s.db, s.generator, sess, s.monitor, user.ID, s.cfg.TickInterval())

	s.monitor.SessionOpened()
	log.Printf("[WebSocket] client connected - user: %s", user.ID)

	go sess.writePump()
	go sess.readPump(ctx)

	// Send the user's current agent list as the initial state
	if err := sess.manager.BroadcastAgentList(); err != nil {
		log.Printf("[WebSocket] failed to send initial state: %v", err)
	}
}

// Broadcast queues one event for delivery to the client
func (sess *Session) Broadcast(event simulation.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[WebSocket] error marshaling event: %v", err)
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	select {
	case sess.send <- data:
	default:
		log.Println("[WebSocket] buffer full, dropping message")
	}
}

// readPump pumps messages from the connection to the command handler. When
// it returns, the session's simulation manager is torn down so no tick fires
// for a disconnected session.
func (sess *Session) readPump(ctx context.Context) {
	defer func() {
		sess.cancel()
		sess.manager.Close()
		sess.server.monitor.SessionClosed()
		sess.conn.Close()
		log.Printf("[WebSocket] client disconnected - user: %s", sess.user.ID)
	}()

	sess.conn.SetReadLimit(512 * 1024) // 512KB
	sess.conn.SetReadDeadline(time.Now().Add(sess.server.cfg.PongTimeout()))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(sess.server.cfg.PongTimeout()))
		return nil
	})

	for {
		_, message, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WebSocket] error: %v", err)
			}
			break
		}

		sess.handleCommand(ctx, message)
	}
}

// writePump pumps queued messages to the connection and pings the client on
// a fixed period; a client that misses the liveness window is closed by the
// read deadline.
func (sess *Session) writePump() {
	ticker := time.NewTicker(sess.server.cfg.PingInterval())
	defer func() {
		ticker.Stop()
		sess.conn.Close()
	}()

	for {
		select {
		case message, ok := <-sess.send:
			sess.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The channel was closed
				sess.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := sess.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			sess.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type deployPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Goals       string `json:"goals"`
	UserID      string `json:"userId"`
}

type agentIDPayload struct {
	AgentID string `json:"agentId"`
}

// handleCommand dispatches one inbound command. Malformed messages and
// command failures are reported as error-type log broadcasts; the connection
// itself stays open.
func (sess *Session) handleCommand(ctx context.Context, message []byte) {
	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		log.Printf("[WebSocket] error unmarshaling message: %v", err)
		sess.manager.AppendLog("", models.LogTypeError, "Invalid message format")
		sess.Broadcast(simulation.Event{Type: simulation.EventError, Payload: "Invalid message format"})
		return
	}

	switch cmd.Command {
	case "ping":
		// Application-level keepalive from the client; nothing to do.

	case "deploy":
		sess.handleDeploy(cmd.Payload)

	case "start":
		if err := sess.manager.Start(ctx); err != nil {
			log.Printf("[WebSocket] failed to start simulation: %v", err)
			sess.manager.AppendLog("", models.LogTypeError, "Failed to start simulation: "+err.Error())
			return
		}
		sess.Broadcast(simulation.Event{Type: simulation.EventStatus, Payload: models.AgentStatusRunning})
		sess.manager.AppendLog("", models.LogTypeInfo, "Simulation started")

	case "pause":
		if err := sess.manager.Stop(); err != nil {
			log.Printf("[WebSocket] failed to pause simulation: %v", err)
			sess.manager.AppendLog("", models.LogTypeError, "Failed to pause simulation: "+err.Error())
		}

	case "reset":
		if err := sess.manager.Reset(); err != nil {
			log.Printf("[WebSocket] failed to reset simulation: %v", err)
			sess.manager.AppendLog("", models.LogTypeError, "Failed to reset simulation: "+err.Error())
		}

	case "exportData":
		var payload agentIDPayload
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil || payload.AgentID == "" {
			sess.manager.AppendLog("", models.LogTypeError, "Export requires an agent id")
			return
		}
		if _, err := sess.manager.ExportAgentData(payload.AgentID); err != nil {
			log.Printf("[WebSocket] failed to export agent data: %v", err)
			sess.manager.AppendLog("", models.LogTypeError, "Failed to export agent data: "+err.Error())
			return
		}
		sess.manager.AppendLog("", models.LogTypeInfo, "Agent data exported for agent ID: "+payload.AgentID)

	case "terminate":
		var payload agentIDPayload
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil || payload.AgentID == "" {
			sess.manager.AppendLog("", models.LogTypeError, "Terminate requires an agent id")
			return
		}
		if err := sess.manager.TerminateAgent(payload.AgentID); err != nil {
			log.Printf("[WebSocket] failed to terminate agent: %v", err)
			sess.manager.AppendLog("", models.LogTypeError, "Failed to terminate agent: "+err.Error())
			return
		}
		sess.manager.AppendLog("", models.LogTypeInfo, "Agent terminated: "+payload.AgentID)

	case "updateWorldContext":
		var updates map[string]interface{}
		if err := json.Unmarshal(cmd.Payload, &updates); err != nil {
			sess.manager.AppendLog("", models.LogTypeError, "Failed to update world context: invalid payload")
			return
		}
		sess.manager.UpdateWorldState(updates)
		name, _ := updates["name"].(string)
		sess.manager.AppendLog("", models.LogTypeInfo, "World context updated: "+name)
		sess.Broadcast(simulation.Event{Type: simulation.EventWorldContext, Payload: json.RawMessage(cmd.Payload)})

	default:
		sess.manager.AppendLog("", models.LogTypeError, "Unknown command: "+cmd.Command)
	}
}

// handleDeploy inserts a new idle agent and re-broadcasts the agent list
func (sess *Session) handleDeploy(payload json.RawMessage) {
	var req deployPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		sess.manager.AppendLog("", models.LogTypeError, "Failed to deploy agent: invalid payload")
		return
	}
	if req.Name == "" || req.Goals == "" || req.UserID == "" {
		sess.manager.AppendLog("", models.LogTypeError, "Failed to deploy agent: name, goals and userId are required")
		return
	}

	// The session is already bound to an authenticated user; a payload naming
	// anyone else is rejected rather than resolved.
	if req.UserID != sess.user.ID {
		log.Printf("[WebSocket] refusing deploy for foreign user %s on session of %s", req.UserID, sess.user.ID)
		sess.manager.AppendLog("", models.LogTypeError, "Failed to deploy agent: user mismatch")
		return
	}

	agent := models.Agent{
		Name:        req.Name,
		Description: req.Description,
		Goals:       req.Goals,
		Status:      models.AgentStatusIdle,
		Metadata:    models.JSONMap{},
		Memory:      models.JSONMap{},
		UserID:      sess.user.ID,
	}
	if err := sess.server.db.Create(&agent).Error; err != nil {
		log.Printf("[WebSocket] failed to deploy agent: %v", err)
		sess.manager.AppendLog("", models.LogTypeError, "Failed to deploy agent: "+err.Error())
		return
	}

	sess.manager.AppendLog("", models.LogTypeInfo, "Agent \""+req.Name+"\" deployed successfully")
	if err := sess.manager.BroadcastAgentList(); err != nil {
		log.Printf("[WebSocket] failed to broadcast agent list: %v", err)
	}
}
