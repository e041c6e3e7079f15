package subscriptions

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"narrate-backend/internal/shared/server/middleware"
	"narrate-backend/internal/shared/server/respond"
)

// Handler exposes plan and subscription endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

type createRequest struct {
	PlanID string `json:"planId"`
}

// RegisterRoutes attaches subscription routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/plans", h.listPlans)
	rg.POST("/subscriptions", h.create)
	rg.GET("/subscriptions/current", h.current)
}

func (h *Handler) listPlans(c *gin.Context) {
	plans, err := h.Svc.Plans(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list plans", nil)
		return
	}
	if plans == nil {
		plans = []Plan{}
	}
	respond.OK(c, gin.H{"plans": plans})
}

func (h *Handler) create(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing identity", nil)
		return
	}
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid json body", nil)
		return
	}

	current, err := h.Svc.Create(c.Request.Context(), userID, req.PlanID)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", "planId is required", nil)
		case errors.Is(err, ErrPlanNotFound):
			respond.Error(c, http.StatusNotFound, "plan_not_found", "plan not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create subscription", nil)
		}
		return
	}
	respond.JSON(c, http.StatusCreated, current)
}

func (h *Handler) current(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	current, err := h.Svc.Current(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			respond.Error(c, http.StatusNotFound, "no_subscription", "no active subscription", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch subscription", nil)
		return
	}
	respond.OK(c, current)
}
