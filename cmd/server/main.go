package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/polyclob/internal/auth"
	"github.com/GoPolymarket/polyclob/internal/clob"
	"github.com/GoPolymarket/polyclob/internal/config"
	"github.com/GoPolymarket/polyclob/internal/contracts"
	"github.com/GoPolymarket/polyclob/internal/handler"
	"github.com/GoPolymarket/polyclob/internal/manager"
	"github.com/GoPolymarket/polyclob/internal/market"
	"github.com/GoPolymarket/polyclob/internal/order"
	"github.com/GoPolymarket/polyclob/internal/pkg/logger"
	"github.com/GoPolymarket/polyclob/internal/repository"
	"github.com/GoPolymarket/polyclob/internal/service"
	"github.com/GoPolymarket/polyclob/internal/signer"
	"github.com/GoPolymarket/polyclob/internal/stream"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// 0. Environment and configuration
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.InitWithOptions(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Identity and authentication
	var sgn *signer.Signer
	if cfg.Clob.PrivateKey != "" {
		sgn, err = signer.NewSigner(cfg.Clob.PrivateKey, cfg.Clob.ChainID)
		if err != nil {
			log.Fatalf("Failed to load signer: %v", err)
		}
		logger.Info("Signer loaded", "address", sgn.Address().Hex(), "chain_id", cfg.Clob.ChainID)
	}

	var creds *auth.Credentials
	if c := cfg.Credentials(); c != nil {
		creds = &auth.Credentials{Key: c.Key, Secret: c.Secret, Passphrase: c.Passphrase}
	}
	authenticator := auth.NewAuthenticator(sgn, creds)
	logger.Info("Authentication tier", "tier", authenticator.Tier().String())

	// 2. Persistence (all optional)
	var journal *repository.OrderJournal
	if cfg.Database.DSN != "" {
		journal, err = repository.OpenOrderJournal(cfg.Database.DSN)
		if err != nil {
			logger.Error("Failed to open order journal, orders will not be recorded", "error", err)
			journal = nil
		} else {
			logger.Info("Connected to PostgreSQL")
			defer journal.Close()
		}
	}

	var publishers map[stream.Channel]handler.RecentSource
	var newPublisher func(stream.Channel) *repository.EventPublisher
	if cfg.Redis.Addr != "" {
		rdb, err := repository.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Error("Failed to connect to Redis, events will not be fanned out", "error", err)
		} else {
			logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)
			defer rdb.Close()
			publishers = make(map[stream.Channel]handler.RecentSource)
			newPublisher = func(ch stream.Channel) *repository.EventPublisher {
				p := repository.NewEventPublisher(rdb, ch, cfg.Redis.ChannelPrefix, cfg.Redis.RecentMax)
				publishers[ch] = p
				return p
			}
		}
	}

	// 3. REST client
	clobOpts := []clob.Option{
		clob.WithTimeout(time.Duration(cfg.Clob.TimeoutMs) * time.Millisecond),
		clob.WithUserAgent(cfg.Clob.UserAgent),
		clob.WithRateLimit(cfg.Clob.RateLimitRPS, int(cfg.Clob.RateLimitRPS)+1),
	}
	if sgn != nil {
		builder, err := order.NewBuilder(sgn,
			order.WithSignatureType(order.SignatureType(cfg.Clob.SignatureType)),
			order.WithFunder(cfg.Clob.Funder),
		)
		if err != nil {
			log.Fatalf("Failed to create order builder: %v", err)
		}
		clobOpts = append(clobOpts, clob.WithBuilder(builder))
	}
	if journal != nil {
		clobOpts = append(clobOpts, clob.WithRecorder(journal))
	}
	clobClient, err := clob.New(cfg.Clob.Host, authenticator, clobOpts...)
	if err != nil {
		log.Fatalf("Failed to create CLOB client: %v", err)
	}

	if ts, err := clobClient.ServerTime(ctx); err != nil {
		logger.Warn("CLOB server time unavailable", "error", err)
	} else {
		logger.Info("CLOB reachable", "host", clobClient.Host(), "server_time", ts)
	}

	// 4. Streams and the book mirror
	mirror := market.NewMirror(cfg.Stream.MarketAssets...)
	streamCfg := stream.Config{
		BaseURL:              cfg.Stream.BaseURL,
		KeepaliveInterval:    cfg.Stream.KeepaliveInterval,
		ReconnectBaseDelay:   cfg.Stream.ReconnectBaseDelay,
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
		HandshakeTimeout:     cfg.Stream.HandshakeTimeout,
	}

	var streams []*stream.Client
	if len(cfg.Stream.MarketAssets) > 0 {
		opts := []stream.Option{stream.WithListener(mirror)}
		if newPublisher != nil {
			opts = append(opts, stream.WithListener(newPublisher(stream.MarketChannel)))
		}
		mc, err := stream.New(streamCfg, stream.Subscription{Channel: stream.MarketChannel, Topics: cfg.Stream.MarketAssets}, opts...)
		if err != nil {
			log.Fatalf("Failed to create market stream: %v", err)
		}
		streams = append(streams, mc)
	}
	if creds != nil && len(cfg.Stream.UserMarkets) > 0 {
		var opts []stream.Option
		if newPublisher != nil {
			opts = append(opts, stream.WithListener(newPublisher(stream.UserChannel)))
		}
		uc, err := stream.New(streamCfg, stream.Subscription{Channel: stream.UserChannel, Topics: cfg.Stream.UserMarkets, Auth: creds}, opts...)
		if err != nil {
			log.Fatalf("Failed to create user stream: %v", err)
		}
		streams = append(streams, uc)
	}
	for _, s := range streams {
		if err := s.Run(ctx); err != nil {
			logger.Error("Failed to start stream", "channel", s.Channel(), "error", err)
		}
	}

	// 5. Order service
	var orderHandler *handler.OrderHandler
	if builder := clobClient.Builder(); builder != nil {
		var nonces service.NonceSource
		if cfg.Chain.RPCURL != "" {
			domain, err := contracts.Resolve(cfg.Clob.ChainID, false)
			if err != nil {
				log.Fatalf("Failed to resolve exchange contract: %v", err)
			}
			nm, closeRPC, err := manager.DialNonceManager(ctx, cfg.Chain.RPCURL, domain.Exchange)
			if err != nil {
				logger.Error("Nonce manager unavailable, orders use nonce 0 unless given", "error", err)
			} else {
				defer closeRPC()
				nonces = nm
			}
		}
		risk := service.NewRiskEngine(cfg.Risk, mirror)
		orderSvc := service.NewOrderService(clobClient, risk, nonces, builder.Funder())

		var journalReader handler.JournalReader
		if journal != nil {
			journalReader = journal
		}
		orderHandler = handler.NewOrderHandler(orderSvc, journalReader)
	}

	// 6. Router
	statuses := make([]handler.StatusSource, 0, len(streams))
	for _, s := range streams {
		statuses = append(statuses, s)
	}
	var eventsHandler *handler.EventsHandler
	if publishers != nil {
		eventsHandler = handler.NewEventsHandler(publishers)
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	gin.SetMode(gin.ReleaseMode)
	r := handler.NewRouter(handler.RouterConfig{
		RateLimitRPS: cfg.Server.RateLimitRPS,
		RateBurst:    cfg.Server.RateBurst,
		OpsKey:       cfg.Server.OpsKey,
		MetricsPath:  metricsPath,
	}, handler.NewMarketHandler(mirror, statuses...), orderHandler, eventsHandler)

	// 7. Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("polyclob started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, s := range streams {
		if err := s.Close(); err != nil {
			logger.Warn("Stream close failed", "channel", s.Channel(), "error", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exiting")
}
