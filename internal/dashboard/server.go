package dashboard

import (
	"net/http"

	"agentarium/internal/config"
	"agentarium/internal/identity"
	"agentarium/internal/monitoring"
	"agentarium/internal/simulation"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
)

// Server handles the dashboard's HTTP surface: the websocket session channel
// and the REST API for agents, logs and metrics.
type Server struct {
	router    *gin.Engine
	db        *gorm.DB
	generator simulation.Generator
	resolver  identity.Resolver
	monitor   *monitoring.Monitor
	cfg       *config.Config
}

// NewServer creates a new dashboard server instance
func NewServer(cfg *config.Config, db *gorm.DB, generator simulation.Generator, resolver identity.Resolver, monitor *monitoring.Monitor) *Server {
	server := &Server{
		router:    gin.Default(),
		db:        db,
		generator: generator,
		resolver:  resolver,
		monitor:   monitor,
		cfg:       cfg,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Agentarium API is running"})
	})
	s.router.GET("/ws", s.handleWebSocket)

	// Serve static files for the dashboard client
	s.router.Static("/static", "./web/static")

	api := s.router.Group("/api")
	{
		api.POST("/signup", s.handleSignup)
		api.POST("/login", s.handleLogin)

		authed := api.Group("")
		authed.Use(AuthMiddleware(s.cfg.Auth.Secret))
		{
			authed.GET("/agents", s.handleListAgents)
			authed.POST("/agents", s.handleCreateAgent)
			authed.GET("/agents/:id/export", s.handleExportAgent)
			authed.GET("/logs", s.handleListLogs)
			authed.GET("/metrics", s.handleMetrics)
		}
	}
}

// Router returns the Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
