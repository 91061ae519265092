package handler

import (
	"net/http"

	"github.com/GoPolymarket/polyclob/internal/market"
	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyclob/internal/stream"
	"github.com/gin-gonic/gin"
)

// StatusSource is implemented by *stream.Client.
type StatusSource interface {
	Status() stream.Status
}

type MarketHandler struct {
	books   market.Provider
	streams []StatusSource
}

func NewMarketHandler(books market.Provider, streams ...StatusSource) *MarketHandler {
	return &MarketHandler{books: books, streams: streams}
}

func (h *MarketHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "polyclob"})
}

func (h *MarketHandler) Streams(c *gin.Context) {
	out := make([]stream.Status, 0, len(h.streams))
	for _, s := range h.streams {
		out = append(out, s.Status())
	}
	c.JSON(http.StatusOK, out)
}

func (h *MarketHandler) Assets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"assets": h.books.Assets()})
}

func (h *MarketHandler) Book(c *gin.Context) {
	assetID := c.Param("asset_id")
	book, ok := h.books.Book(assetID)
	if !ok {
		_ = c.Error(apperrors.New(apperrors.ErrNotFound, "asset "+assetID+" is not mirrored", nil))
		return
	}
	c.JSON(http.StatusOK, book.View())
}
