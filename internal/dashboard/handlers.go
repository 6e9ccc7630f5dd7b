package dashboard

import (
	"errors"
	"net/http"

	"agentarium/internal/models"
	"agentarium/internal/simulation"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type signupRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleSignup registers a new user
func (s *Server) handleSignup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	user := models.User{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hash),
	}
	if err := s.db.Create(&user).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "username or email already taken"})
		return
	}

	c.JSON(http.StatusCreated, user)
}

// handleLogin verifies credentials and issues an API token
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := s.db.Where("username = ?", req.Username).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := issueToken(s.cfg.Auth.Secret, user.ID, s.cfg.TokenTTL())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// handleListAgents returns the authenticated user's agents
func (s *Server) handleListAgents(c *gin.Context) {
	userID := c.GetString("userID")

	var agents []models.Agent
	if err := s.db.Where("user_id = ?", userID).Find(&agents).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, agents)
}

type createAgentRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Goals       string `json:"goals" binding:"required"`
}

// handleCreateAgent deploys a new idle agent for the authenticated user
func (s *Server) handleCreateAgent(c *gin.Context) {
	userID := c.GetString("userID")

	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agent := models.Agent{
		Name:        req.Name,
		Description: req.Description,
		Goals:       req.Goals,
		Status:      models.AgentStatusIdle,
		Metadata:    models.JSONMap{},
		Memory:      models.JSONMap{},
		UserID:      userID,
	}
	if err := s.db.Create(&agent).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, agent)
}

// handleExportAgent returns the export bundle for one of the user's agents
func (s *Server) handleExportAgent(c *gin.Context) {
	userID := c.GetString("userID")

	export, err := simulation.ExportAgent(s.db, userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, simulation.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Agent not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, export)
}

// handleListLogs returns the caller's most recent simulation log entries.
// Agent-scoped rows are restricted to agents the caller owns; unscoped
// system rows are visible to everyone.
func (s *Server) handleListLogs(c *gin.Context) {
	userID := c.GetString("userID")

	var logs []models.SimulationLog
	if err := s.db.
		Select("simulation_logs.*").
		Joins("LEFT JOIN agents ON agents.id = simulation_logs.agent_id").
		Where("simulation_logs.agent_id = '' OR agents.user_id = ?", userID).
		Order("simulation_logs.timestamp desc").Limit(100).Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, logs)
}

// handleMetrics returns the monitor's aggregated dashboard metrics
func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.GetMetrics())
}
