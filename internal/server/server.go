package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/harshadakardil/CryptoCrash/internal/cache"
	"github.com/harshadakardil/CryptoCrash/internal/config"
	"github.com/harshadakardil/CryptoCrash/internal/database"
	"github.com/harshadakardil/CryptoCrash/internal/game"
	"github.com/harshadakardil/CryptoCrash/internal/gateway"
	"github.com/harshadakardil/CryptoCrash/internal/ledger"
	"github.com/harshadakardil/CryptoCrash/internal/quote"
	"github.com/harshadakardil/CryptoCrash/internal/round"
)

// FiberServer bundles every component CryptoCrash's process runs:
// the pgx-backed database, the round engine, its Postgres-backed wallet
// and round stores, and the websocket gateway that fronts them all.
// Adapted from nutcas3-aviator-fun's FiberServer: the single-game
// gameManager/gameHub/gameFactory trio is replaced by the engine +
// gateway pair this spec's crash game needs.
type FiberServer struct {
	*fiber.App

	cfg     config.Config
	db      database.Service
	cache   cache.Service
	wallet  ledger.Store
	engine  *game.Engine
	hub     *gateway.Hub
	gateway *gateway.Gateway
}

// New wires every component and starts the engine and hub running in
// their own goroutines. Nothing is listening on a port yet; call Listen
// on the returned server.
func New() *FiberServer {
	cfg := config.Load()

	db := database.New()

	redisService := cache.New()

	wallet := ledger.NewPostgresStore(db.Pool())
	repo := round.NewRepository(db.Pool())

	httpClient := &http.Client{Timeout: cfg.PriceFetchTimeout}
	quoteSource := quote.NewHTTPSource(cfg.CoinGeckoAPIURL, httpClient)
	quoteCache := quote.New(quoteSource, cfg.PriceCacheDuration, cfg.PriceFetchTimeout)

	hub := gateway.NewHub()

	engineCfg := game.Config{
		HouseEdge:         cfg.HouseEdge,
		WaitDuration:      cfg.WaitDuration,
		TickInterval:      cfg.MultiplierTick,
		PostCrashDuration: cfg.PostCrashWait,
		MaxBetUSD:         cfg.MaxBetUSD,
		MinBetUSD:         cfg.MinBetUSD,
		MaxRetries:        5,
	}
	engine := game.NewEngine(quoteCache, wallet, repo, hub, engineCfg)

	var limiter gateway.Limiter
	if redisService != nil {
		limiter = gateway.NewRedisLimiter(redisService.GetClient(), cfg.RateLimitPerMin, time.Minute)
	} else {
		limiter = gateway.NewMemoryLimiter(cfg.RateLimitPerMin, time.Minute)
	}

	gw := gateway.New(engine, wallet, hub, limiter, cfg.JWTSecret)

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "cryptocrash",
			AppName:       "cryptocrash",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		cfg:     cfg,
		db:      db,
		cache:   redisService,
		wallet:  wallet,
		engine:  engine,
		hub:     hub,
		gateway: gw,
	}

	server.App.Use(recover.New())

	go hub.Run()
	go engine.Run(context.Background())

	log.Println("[SERVER] round engine and gateway hub started")

	return server
}

// Port reports the TCP port New loaded from config for Listen.
func (s *FiberServer) Port() string {
	return s.cfg.Port
}

// Shutdown stops the engine and closes every underlying connection.
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] shutting down...")

	s.engine.Stop()

	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return nil
}
