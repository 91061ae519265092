package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/GoPolymarket/polyclob/internal/middleware"
	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyclob/internal/repository"
	"github.com/GoPolymarket/polyclob/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type OrderHandler struct {
	svc     *service.OrderService
	journal JournalReader
}

// JournalReader is implemented by *repository.OrderJournal.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]repository.SignedOrderRecord, error)
}

// NewOrderHandler serves the order routes. journal may be nil.
func NewOrderHandler(svc *service.OrderService, journal JournalReader) *OrderHandler {
	return &OrderHandler{svc: svc, journal: journal}
}

func (h *OrderHandler) SignOrder(c *gin.Context) {
	var req service.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrInvalidRequest, err.Error(), err))
		return
	}
	middleware.AddLogContext(c, "token_id", req.TokenID)

	resp, err := h.svc.Sign(c.Request.Context(), req)
	if err != nil {
		middleware.AddLogContext(c, "error", err.Error())
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var req service.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrInvalidRequest, err.Error(), err))
		return
	}
	middleware.AddLogContext(c, "token_id", req.TokenID)

	resp, err := h.svc.Place(c.Request.Context(), req)
	if err != nil {
		middleware.AddLogContext(c, "error", err.Error())
		_ = c.Error(err)
		return
	}
	if resp.Result != nil {
		middleware.AddLogContext(c, "order_id", resp.Result.OrderID)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	orderID := c.Param("id")
	resp, err := h.svc.Cancel(c.Request.Context(), orderID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	middleware.AddLogContext(c, "action", "cancel_order")
	middleware.AddLogContext(c, "order_id", orderID)

	c.JSON(http.StatusOK, resp)
}

func (h *OrderHandler) CancelAll(c *gin.Context) {
	resp, err := h.svc.CancelAll(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	middleware.AddLogContext(c, "action", "cancel_all")

	c.JSON(http.StatusOK, resp)
}

func (h *OrderHandler) Journal(c *gin.Context) {
	if h.journal == nil {
		_ = c.Error(apperrors.New(apperrors.ErrNotFound, "order journal is not configured", nil))
		return
	}
	limit, err := parseLimit(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	records, err := h.journal.Recent(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrInternal, "read order journal", err))
		return
	}
	c.JSON(http.StatusOK, records)
}

func parseLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperrors.NewInvalidRequest("limit must be a positive integer")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}
