// Package gateway implements the per-connection session machine spec.md
// §4.6 describes: authenticate, register, dispatch inbound wire events to
// the round engine, and fan engine events back out through a Hub.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harshadakardil/CryptoCrash/internal/currency"
	"github.com/harshadakardil/CryptoCrash/internal/game"
	"github.com/harshadakardil/CryptoCrash/internal/ledger"
)

// inboundMessage is the envelope every wire event arrives in (spec.md
// §6.1).
type inboundMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type placeBetPayload struct {
	USDAmount   decimal.Decimal  `json:"usd_amount"`
	Currency    string           `json:"currency"`
	AutoCashOut *decimal.Decimal `json:"auto_cash_out,omitempty"`
}

type historyPayload struct {
	Limit int `json:"limit,omitempty"`
}

type userStatsPayload struct {
	Wallets     map[currency.Currency]decimal.Decimal `json:"wallets"`
	TotalBets   int64                                 `json:"total_bets"`
	TotalWins   int64                                 `json:"total_wins"`
	TotalProfit decimal.Decimal                       `json:"total_profit"`
}

// Gateway wires the engine, wallet store, and Hub into a single
// connection handler registered against Fiber's websocket upgrade.
type Gateway struct {
	engine    *game.Engine
	wallet    ledger.Store
	hub       *Hub
	limiter   Limiter
	jwtSecret string
}

// New builds a Gateway. limiter enforces spec.md §4.6's per-connection
// rate window; jwtSecret verifies the session token presented at connect.
func New(engine *game.Engine, wallet ledger.Store, hub *Hub, limiter Limiter, jwtSecret string) *Gateway {
	return &Gateway{engine: engine, wallet: wallet, hub: hub, limiter: limiter, jwtSecret: jwtSecret}
}

// HandleConnection is registered as the Fiber websocket handler for /ws.
// It authenticates, registers the socket, sends the initial game_state,
// and then dispatches inbound messages until the socket closes (spec.md
// §4.6). Disconnect only deregisters the socket — any bet the user had
// in flight is left exactly as-is; the round continues normally.
func (g *Gateway) HandleConnection(conn *websocket.Conn) {
	token := conn.Query("token")
	claims, err := ValidateToken(g.jwtSecret, token)
	if err != nil {
		writeUnauthenticated(conn)
		conn.Close()
		return
	}

	userID := claims.UserID
	uname := username(claims)
	connID := uuid.NewString()

	ctx := context.Background()
	if err := g.wallet.InitializeWallets(ctx, userID); err != nil {
		log.Printf("[GATEWAY] failed to initialize wallets for %s: %v", userID, err)
	}

	client := g.hub.Register(conn, userID, connID)
	defer g.hub.Unregister(client)

	g.sendGameState(client)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		allowed, err := g.limiter.Allow(ctx, connID)
		if err != nil {
			log.Printf("[GATEWAY] rate limiter error for %s: %v", connID, err)
		} else if !allowed {
			client.Send("error", game.ErrorPayload{Code: game.CodeRateLimited, Message: "too many operations, connection closed"})
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			client.Send("error", game.ErrorPayload{Code: game.CodeBadRequest, Message: "malformed message envelope"})
			continue
		}

		g.dispatch(ctx, client, userID, uname, msg)
	}
}

func username(claims *Claims) string {
	if claims.Username != "" {
		return claims.Username
	}
	return claims.UserID
}

func writeUnauthenticated(conn *websocket.Conn) {
	data, _ := json.Marshal(wireMessage{Event: "error", Payload: game.ErrorPayload{Code: game.CodeUnauthenticated, Message: "invalid or missing session token"}})
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	conn.WriteMessage(websocket.TextMessage, data)
}

// dispatch translates one inbound event into an engine call, per
// spec.md §6.1's inbound table. Every reply — success or error — goes
// through client.Send, which enqueues onto the same ordered per-client
// outbox the Hub writes into; bet_placed/player_cashout/game_crashed/etc. fan out
// separately through the Hub from inside the engine itself.
func (g *Gateway) dispatch(ctx context.Context, client *Client, userID, uname string, msg inboundMessage) {
	switch msg.Event {
	case "place_bet":
		var p placeBetPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			client.Send("error", game.ErrorPayload{Code: game.CodeBadRequest, Message: "malformed place_bet payload"})
			return
		}
		betCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, gameErr := g.engine.PlaceBet(betCtx, userID, uname, p.USDAmount, currency.Currency(p.Currency), p.AutoCashOut)
		if gameErr != nil {
			client.Send("error", game.ErrorPayload{Code: gameErr.Code, Message: gameErr.Message})
		}

	case "cashout":
		coCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, gameErr := g.engine.Cashout(coCtx, userID)
		if gameErr != nil {
			client.Send("error", game.ErrorPayload{Code: gameErr.Code, Message: gameErr.Message})
		}

	case "get_game_history":
		var p historyPayload
		_ = json.Unmarshal(msg.Payload, &p)
		if p.Limit <= 0 {
			p.Limit = 50
		}
		histCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		rounds, gameErr := g.engine.History(histCtx, p.Limit)
		if gameErr != nil {
			client.Send("error", game.ErrorPayload{Code: gameErr.Code, Message: gameErr.Message})
			return
		}
		client.Send("game_history", rounds)

	case "get_user_stats":
		statsCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		stats, err := g.wallet.Stats(statsCtx, userID)
		if err != nil {
			client.Send("error", game.ErrorPayload{Code: game.CodeStoreError, Message: "failed to load user stats"})
			return
		}
		client.Send("user_stats", userStatsPayload{
			Wallets:     stats.Wallets,
			TotalBets:   stats.TotalBets,
			TotalWins:   stats.TotalWins,
			TotalProfit: stats.TotalProfit,
		})

	case "ping":
		client.Send("pong", nil)

	default:
		client.Send("error", game.ErrorPayload{Code: game.CodeBadRequest, Message: "unknown event: " + msg.Event})
	}
}

func (g *Gateway) sendGameState(client *Client) {
	round := g.engine.CurrentState()
	client.Send("game_state", game.GameStatePayload{
		RoundID:           round.RoundID,
		Hash:              round.Hash,
		Status:            round.Status,
		CurrentMultiplier: round.CurrentMultiplier,
	})
}
