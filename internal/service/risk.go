package service

import (
	"fmt"
	"time"

	"github.com/GoPolymarket/polyclob/internal/config"
	"github.com/GoPolymarket/polyclob/internal/market"
	"github.com/GoPolymarket/polyclob/internal/order"
	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyclob/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

const defaultStaleAfter = 10 * time.Second

type RiskEngine struct {
	cfg        config.RiskConfig
	books      market.Provider
	restricted map[string]struct{}
	now        func() time.Time
}

// NewRiskEngine returns a checker over cfg. books may be nil, in which case
// the slippage check is skipped.
func NewRiskEngine(cfg config.RiskConfig, books market.Provider) *RiskEngine {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	restricted := make(map[string]struct{}, len(cfg.RestrictedTokens))
	for _, id := range cfg.RestrictedTokens {
		restricted[id] = struct{}{}
	}
	return &RiskEngine{cfg: cfg, books: books, restricted: restricted, now: time.Now}
}

// CheckOrder runs the pre-trade checks. A non-nil error means the order must
// not be signed.
func (e *RiskEngine) CheckOrder(in order.Intent) error {
	if _, ok := e.restricted[in.TokenID]; ok {
		return reject("restricted_token", "token %s is restricted", in.TokenID)
	}

	value := in.Price.Mul(in.Size)
	if e.cfg.MaxOrderValue > 0 {
		limit := decimal.NewFromFloat(e.cfg.MaxOrderValue)
		if value.GreaterThan(limit) {
			return reject("max_value", "order value %s exceeds limit %s", value, limit)
		}
	}

	// Staleness only matters when the book is used to verify the price.
	if e.cfg.MaxSlippage > 0 && e.books != nil {
		if err := e.checkSlippage(in); err != nil {
			return err
		}
	}
	return nil
}

func (e *RiskEngine) checkSlippage(in order.Intent) error {
	book, ok := e.books.Book(in.TokenID)
	if !ok {
		return nil
	}
	view := book.View()
	if view.LastUpdated.IsZero() {
		return nil
	}
	if e.now().Sub(view.LastUpdated) > e.cfg.StaleAfter {
		return reject("stale_data", "book for %s older than %s, cannot verify price", in.TokenID, e.cfg.StaleAfter)
	}

	slippage := decimal.NewFromFloat(e.cfg.MaxSlippage)
	one := decimal.NewFromInt(1)

	if in.Side == order.Buy {
		if best, ok := book.BestAsk(); ok {
			maxPrice := best.Price.Mul(one.Add(slippage))
			if in.Price.GreaterThan(maxPrice) {
				return reject("slippage", "buy price %s deviates from best ask %s (limit %s)", in.Price, best.Price, maxPrice)
			}
		}
		return nil
	}
	if best, ok := book.BestBid(); ok {
		minPrice := best.Price.Mul(one.Sub(slippage))
		if in.Price.LessThan(minPrice) {
			return reject("slippage", "sell price %s deviates from best bid %s (limit %s)", in.Price, best.Price, minPrice)
		}
	}
	return nil
}

func reject(reason, format string, args ...any) error {
	metrics.RiskRejects.WithLabelValues(reason).Inc()
	return apperrors.New(apperrors.ErrInvalidOrder, "risk reject: "+fmt.Sprintf(format, args...), nil)
}
