package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// RegisterFiberRoutes wires the health check and the single websocket
// upgrade every client speaks the game protocol over (spec.md §4.6,
// §6.1). There is no REST surface for bets or cashouts — those only
// exist as wire events once a socket is authenticated.
func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.FrontendURL,
		AllowMethods:     "GET,OPTIONS",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	s.App.Get("/ws", websocket.New(s.gateway.HandleConnection))
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"database": s.db.Health(),
		"game": fiber.Map{
			"status":            "running",
			"connected_clients": s.hub.ClientCount(),
		},
	}

	if s.cache != nil {
		health["cache"] = s.cache.Health()
	} else {
		health["cache"] = fiber.Map{"status": "down", "message": "running without Redis"}
	}

	return c.JSON(health)
}
