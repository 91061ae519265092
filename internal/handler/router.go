package handler

import (
	"github.com/GoPolymarket/polyclob/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	RateLimitRPS float64
	RateBurst    int
	OpsKey       string
	MetricsPath  string // empty disables /metrics
}

// NewRouter mounts the ops routes. orders and events may be nil, in which
// case their routes are not registered.
func NewRouter(cfg RouterConfig, markets *MarketHandler, orders *OrderHandler, events *EventsHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.AccessLogMiddleware())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", markets.Health)
	if cfg.MetricsPath != "" {
		r.GET(cfg.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateBurst))
	{
		v1.GET("/streams", markets.Streams)
		v1.GET("/books", markets.Assets)
		v1.GET("/books/:asset_id", markets.Book)
		if events != nil {
			v1.GET("/events/:channel/:event_type", events.Recent)
		}
	}

	if orders != nil {
		o := v1.Group("/orders")
		o.Use(middleware.OpsKeyMiddleware(cfg.OpsKey))
		o.POST("/sign", orders.SignOrder)
		o.POST("", orders.PlaceOrder)
		o.DELETE("/:id", orders.CancelOrder)
		o.DELETE("", orders.CancelAll)
		o.GET("/journal", orders.Journal)
	}
	return r
}
