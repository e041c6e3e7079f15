package tokens

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"narrate-backend/internal/shared/server/middleware"
	"narrate-backend/internal/shared/server/respond"
	"narrate-backend/internal/shared/telemetry"
)

// Handler exposes token balance endpoints.
type Handler struct {
	Ledger *Ledger
}

// NewHandler constructs a Handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{Ledger: ledger}
}

type accountResponse struct {
	UserID          string    `json:"userId"`
	TotalTokens     int       `json:"totalTokens"`
	UsedTokens      int       `json:"usedTokens"`
	RemainingTokens int       `json:"remainingTokens"`
	LastResetDate   time.Time `json:"lastResetDate"`
	NextResetDate   time.Time `json:"nextResetDate"`
	PercentUsed     float64   `json:"percentUsed"`
	DaysUntilReset  int       `json:"daysUntilReset"`
}

type transactionResponse struct {
	ID         string          `json:"id"`
	JobID      string          `json:"jobId,omitempty"`
	TokensUsed int             `json:"tokensUsed"`
	Type       TransactionType `json:"transactionType"`
	WordCount  int             `json:"wordCount"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// RegisterRoutes attaches token routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/tokens", h.getAccount)
	rg.GET("/tokens/transactions", h.listTransactions)
}

// RegisterDevRoutes attaches dev-only token routes.
func (h *Handler) RegisterDevRoutes(rg *gin.RouterGroup) {
	rg.POST("/tokens/reset-monthly", h.resetMonthly)
}

func (h *Handler) getAccount(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	a, err := h.Ledger.Account(c.Request.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountNotFound):
			respond.Error(c, http.StatusNotFound, "no_token_account", "no token account; subscribe to a plan first", nil)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch tokens", nil)
		}
		return
	}
	respond.OK(c, toAccountResponse(a, h.Ledger.now()))
}

func (h *Handler) listTransactions(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	txs, err := h.Ledger.Transactions(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch transactions", nil)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionResponse{
			ID:         t.ID,
			JobID:      t.JobID,
			TokensUsed: t.TokensUsed,
			Type:       t.Type,
			WordCount:  t.WordCount,
			CreatedAt:  t.CreatedAt,
		})
	}
	respond.OK(c, gin.H{"transactions": out})
}

func (h *Handler) resetMonthly(c *gin.Context) {
	n, err := h.Ledger.ResetMonthly(c.Request.Context(), h.Ledger.now())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to reset tokens", nil)
		return
	}
	telemetry.Info("tokens.reset_monthly", map[string]any{
		"request_id": middleware.RequestIDFromContext(c),
		"reset":      n,
	})
	respond.OK(c, gin.H{"reset": n})
}

func toAccountResponse(a Account, now time.Time) accountResponse {
	return accountResponse{
		UserID:          a.UserID,
		TotalTokens:     a.TotalTokens,
		UsedTokens:      a.UsedTokens,
		RemainingTokens: a.Remaining(),
		LastResetDate:   a.LastResetDate,
		NextResetDate:   a.NextReset(),
		PercentUsed:     PercentUsed(a),
		DaysUntilReset:  DaysUntilReset(a, now),
	}
}
