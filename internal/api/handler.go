// Package api provides the HTTP API for the hotspot backend.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sokonet/sokonet-hotspot/internal/auth"
	"github.com/sokonet/sokonet-hotspot/internal/db"
	"github.com/sokonet/sokonet-hotspot/internal/mpesa"
	"github.com/sokonet/sokonet-hotspot/internal/payment"
	"github.com/sokonet/sokonet-hotspot/internal/plans"
)

// Handler holds the API dependencies.
type Handler struct {
	reconciler       *payment.Reconciler
	database         *db.DB
	catalog          *plans.Catalog
	jwtService       *auth.JWTService
	operatorPassword string
	tokenTTL         time.Duration
	logger           *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(
	reconciler *payment.Reconciler,
	database *db.DB,
	catalog *plans.Catalog,
	jwtService *auth.JWTService,
	operatorPassword string,
	tokenTTL time.Duration,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		reconciler:       reconciler,
		database:         database,
		catalog:          catalog,
		jwtService:       jwtService,
		operatorPassword: operatorPassword,
		tokenTTL:         tokenTTL,
		logger:           logger,
	}
}

// CreateSession handles a plan purchase request.
func (h *Handler) CreateSession(c *gin.Context) {
	var req struct {
		DeviceIdentifier string `json:"device_identifier" binding:"required"`
		PlanID           int64  `json:"plan_id" binding:"required"`
		PhoneNumber      string `json:"phone_number" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.reconciler.CreateSession(c.Request.Context(), req.DeviceIdentifier, req.PlanID, req.PhoneNumber)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, payment.ErrInvalidPlan):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, payment.ErrProviderRejected):
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment request was rejected, please try again"})
		default:
			h.logger.Error("purchase failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id":          session.ID,
		"checkout_request_id": session.CheckoutRequestID,
		"state":               session.State,
		"plan":                session.PlanName,
		"amount":              session.Amount,
	})
}

// PaymentCallback receives the provider's payment result. Matched callbacks
// are always acknowledged with 200 so the provider does not retry them;
// only an unknown correlation id gets 404.
func (h *Handler) PaymentCallback(c *gin.Context) {
	var envelope mpesa.CallbackEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed callback body"})
		return
	}

	cb := envelope.Body.StkCallback
	err := h.reconciler.HandleCallback(c.Request.Context(), &cb)
	if errors.Is(err, payment.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown checkout request"})
		return
	}
	if err != nil {
		h.logger.Error("callback processing failed", zap.Error(err),
			zap.String("checkout_request_id", cb.CheckoutRequestID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ResultCode": 0,
		"ResultDesc": "Accepted",
	})
}

// ListPlans returns the purchasable plans.
func (h *Handler) ListPlans(c *gin.Context) {
	active, err := h.catalog.ListActive()
	if err != nil {
		h.logger.Error("failed to list plans", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]gin.H, 0, len(active))
	for _, p := range active {
		out = append(out, gin.H{
			"id":               p.ID,
			"name":             p.Name,
			"duration_minutes": p.DurationMinutes,
			"price":            p.Price,
		})
	}

	c.JSON(http.StatusOK, gin.H{"plans": out})
}

// Login exchanges the operator password for a bearer token.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Password != h.operatorPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}

	token, err := h.jwtService.GenerateToken("operator", h.tokenTTL)
	if err != nil {
		h.logger.Error("failed to generate operator token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"expires_in":   int(h.tokenTTL.Seconds()),
	})
}

// ListSessions returns all sessions for the operator dashboard.
func (h *Handler) ListSessions(c *gin.Context) {
	state := db.SessionState(c.Query("state"))

	sessions, err := h.database.ListSessions(state)
	if err != nil {
		h.logger.Error("failed to list sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionJSON(s))
	}

	total, admitted, revenue, err := h.database.Stats()
	if err != nil {
		h.logger.Error("failed to load stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": out,
		"count":    len(out),
		"stats": gin.H{
			"total":    total,
			"admitted": admitted,
			"revenue":  revenue,
		},
	})
}

// GetSession returns one session.
func (h *Handler) GetSession(c *gin.Context) {
	session, err := h.database.GetSession(c.Param("sessionId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	c.JSON(http.StatusOK, sessionJSON(session))
}

// HealthCheck reports service liveness.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func sessionJSON(s *db.Session) gin.H {
	out := gin.H{
		"session_id":          s.ID,
		"checkout_request_id": s.CheckoutRequestID,
		"device_identifier":   s.DeviceIdentifier,
		"phone_number":        s.PhoneNumber,
		"plan":                s.PlanName,
		"duration_secs":       int64(s.Duration.Seconds()),
		"amount":              s.Amount,
		"receipt_number":      s.ReceiptNumber,
		"state":               s.State,
		"created_at":          s.CreatedAt.Format(time.RFC3339),
	}
	if s.FailureReason != "" {
		out["failure_reason"] = s.FailureReason
	}
	if s.PaidAt != nil {
		out["paid_at"] = s.PaidAt.Format(time.RFC3339)
	}
	if s.ExpiresAt != nil {
		out["expires_at"] = s.ExpiresAt.Format(time.RFC3339)
		remaining := time.Until(*s.ExpiresAt)
		if remaining < 0 {
			remaining = 0
		}
		out["remaining_secs"] = int64(remaining.Seconds())
	}
	if s.RevokedAt != nil {
		out["revoked_at"] = s.RevokedAt.Format(time.RFC3339)
	}
	return out
}
