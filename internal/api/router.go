package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router wraps the Gin engine with the backend handlers.
type Router struct {
	engine  *gin.Engine
	handler *Handler
}

// NewRouter creates a new API router.
func NewRouter(handler *Handler) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	r := &Router{
		engine:  engine,
		handler: handler,
	}

	r.setupRoutes()

	return r
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.handler.HealthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/plans", r.handler.ListPlans)
		v1.POST("/sessions", r.handler.CreateSession)

		// Provider-facing: must stay reachable without auth.
		v1.POST("/payments/callback", r.handler.PaymentCallback)

		v1.POST("/auth/login", r.handler.Login)

		// Operator dashboard views
		ops := v1.Group("/sessions")
		ops.Use(r.handler.AuthMiddleware())
		{
			ops.GET("", r.handler.ListSessions)
			ops.GET("/:sessionId", r.handler.GetSession)
		}
	}
}

// Engine returns the underlying Gin engine.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.engine.ServeHTTP(w, req)
}
