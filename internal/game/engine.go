package game

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harshadakardil/CryptoCrash/internal/currency"
	"github.com/harshadakardil/CryptoCrash/internal/fairness"
	"github.com/harshadakardil/CryptoCrash/internal/ledger"
)

// Quoter is the engine's view of the quote cache — just enough to price a
// bet, so engine tests can swap in a fixed-price fake without pulling in
// the whole quote package.
type Quoter interface {
	Get(ctx context.Context, cur currency.Currency) decimal.Decimal
}

// Repository is the engine's view of the round store (spec.md §4.5).
type Repository interface {
	Save(ctx context.Context, round Round) error
	Recent(ctx context.Context, limit int) ([]Round, error)
}

// Config bundles the engine's tunable parameters (spec.md §6.3).
type Config struct {
	HouseEdge         float64
	WaitDuration      time.Duration
	TickInterval      time.Duration
	PostCrashDuration time.Duration
	MaxBetUSD         decimal.Decimal
	MinBetUSD         decimal.Decimal
	MaxRetries        int
}

// DefaultConfig matches spec.md §6.3's defaults.
func DefaultConfig() Config {
	return Config{
		HouseEdge:         fairness.DefaultHouseEdge,
		WaitDuration:      5 * time.Second,
		TickInterval:      100 * time.Millisecond,
		PostCrashDuration: 5*time.Second + time.Second,
		MaxBetUSD:         decimal.NewFromInt(10000),
		MinBetUSD:         decimal.NewFromFloat(0.01),
		MaxRetries:        5,
	}
}

type betRequest struct {
	ctx         context.Context
	userID      string
	username    string
	usdAmount   decimal.Decimal
	currency    currency.Currency
	autoCashOut *decimal.Decimal
	resp        chan betResponse
}

type betResponse struct {
	bet Bet
	err *Error
}

type betIOResult struct {
	req          betRequest
	roundID      string
	price        decimal.Decimal
	cryptoAmount decimal.Decimal
	err          *Error
}

type cashoutRequest struct {
	ctx    context.Context
	userID string
	resp   chan cashoutResponse
}

type cashoutResponse struct {
	bet Bet
	err *Error
}

// Engine is the round state machine: one goroutine owns *Round for its
// entire lifetime, driven by a tick ticker and two request channels.
// Grounded on nutcas3-aviator-fun/internal/game/manager.go's Manager,
// generalized per spec.md §9: no direct transport reference (EventSink
// instead of *Hub), I/O moved off the exclusive section for bet
// placement, and an explicit drain-before-crash-check step for the
// manual-cashout tie-break (see DESIGN.md).
type Engine struct {
	quoter Quoter
	wallet ledger.Store
	repo   Repository
	sink   EventSink
	cfg    Config

	betChan     chan betRequest
	betIOChan   chan betIOResult
	cashoutChan chan cashoutRequest
	stopChan    chan struct{}

	currentMu sync.RWMutex
	current   *Round

	roundNumber int64
}

// NewEngine wires an Engine against its collaborators. Nothing starts
// running until Run is called.
func NewEngine(quoter Quoter, wallet ledger.Store, repo Repository, sink EventSink, cfg Config) *Engine {
	return &Engine{
		quoter:      quoter,
		wallet:      wallet,
		repo:        repo,
		sink:        sink,
		cfg:         cfg,
		betChan:     make(chan betRequest, 1000),
		betIOChan:   make(chan betIOResult, 1000),
		cashoutChan: make(chan cashoutRequest, 1000),
		stopChan:    make(chan struct{}),
	}
}

// Run drives rounds forever until ctx is cancelled or Stop is called.
// It must run in its own goroutine; it is the sole owner of the current
// round's mutable state.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		default:
			if !e.runRound(ctx) {
				return
			}
		}
	}
}

// Stop halts Run at its next check of the stop signal: during betting,
// between ticks, or in the pause after a crash.
func (e *Engine) Stop() {
	close(e.stopChan)
}

// CurrentState returns a snapshot of the round in progress, or the zero
// Round if none has started yet (spec.md §6.1 game_state).
func (e *Engine) CurrentState() Round {
	e.currentMu.RLock()
	defer e.currentMu.RUnlock()
	if e.current == nil {
		return Round{}
	}
	return e.current.Snapshot()
}

// History returns the most recently crashed rounds, newest first
// (spec.md §4.5 recent()). Rounds the store holds in any other status,
// such as the WAITING snapshot of the round in progress, are left out,
// so fewer than limit rounds may come back.
func (e *Engine) History(ctx context.Context, limit int) ([]Round, *Error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rounds, err := e.repo.Recent(ctx, limit)
	if err != nil {
		return nil, newError(CodeStoreError, "fetch round history: %v", err)
	}
	crashed := make([]Round, 0, len(rounds))
	for _, r := range rounds {
		if r.Status == StatusCrashed {
			crashed = append(crashed, r)
		}
	}
	return crashed, nil
}

// PlaceBet submits a bet to the engine and blocks for its outcome
// (spec.md §4.4 place_bet).
func (e *Engine) PlaceBet(ctx context.Context, userID, username string, usdAmount decimal.Decimal, cur currency.Currency, autoCashOut *decimal.Decimal) (Bet, *Error) {
	if usdAmount.LessThan(e.cfg.MinBetUSD) || usdAmount.GreaterThan(e.cfg.MaxBetUSD) {
		return Bet{}, newError(CodeInvalidAmount, "usd_amount must be between %s and %s", e.cfg.MinBetUSD, e.cfg.MaxBetUSD)
	}
	if !currency.Supported(cur) {
		return Bet{}, newError(CodeUnsupportedCurrency, "currency %q is not supported", cur)
	}
	if autoCashOut != nil && (autoCashOut.LessThanOrEqual(decimal.NewFromInt(1)) || autoCashOut.GreaterThan(decimal.NewFromFloat(fairness.MaxMultiplier))) {
		return Bet{}, newError(CodeInvalidAutoCashout, "auto_cash_out must be in (1.00, %v]", fairness.MaxMultiplier)
	}

	resp := make(chan betResponse, 1)
	req := betRequest{ctx: ctx, userID: userID, username: username, usdAmount: usdAmount, currency: cur, autoCashOut: autoCashOut, resp: resp}

	select {
	case e.betChan <- req:
	case <-ctx.Done():
		return Bet{}, newError(CodeStoreTimeout, "engine busy: %v", ctx.Err())
	}

	select {
	case r := <-resp:
		return r.bet, r.err
	case <-ctx.Done():
		return Bet{}, newError(CodeStoreTimeout, "bet response timeout: %v", ctx.Err())
	}
}

// Cashout requests a manual cashout for userID at the round's current
// multiplier (spec.md §4.4 cashout).
func (e *Engine) Cashout(ctx context.Context, userID string) (Bet, *Error) {
	resp := make(chan cashoutResponse, 1)
	req := cashoutRequest{ctx: ctx, userID: userID, resp: resp}

	select {
	case e.cashoutChan <- req:
	case <-ctx.Done():
		return Bet{}, newError(CodeStoreTimeout, "engine busy: %v", ctx.Err())
	}

	select {
	case r := <-resp:
		return r.bet, r.err
	case <-ctx.Done():
		return Bet{}, newError(CodeStoreTimeout, "cashout response timeout: %v", ctx.Err())
	}
}

// runRound drives one full WAITING->RUNNING->CRASHED->pause lifecycle. It
// returns false if the engine was asked to stop mid-round.
func (e *Engine) runRound(ctx context.Context) bool {
	e.roundNumber++

	proof, err := fairness.NewRound(e.roundNumber, e.cfg.HouseEdge)
	if err != nil {
		log.Printf("[GAME] failed to generate round %d proof: %v", e.roundNumber, err)
		time.Sleep(time.Second)
		return true
	}

	round := &Round{
		RoundID:           proof.RoundID,
		RoundNumber:       e.roundNumber,
		Seed:              proof.Seed,
		Hash:              proof.Hash,
		CrashPoint:        proof.CrashPoint,
		Status:            StatusWaiting,
		CreatedAt:         time.Now(),
		CurrentMultiplier: decimal.NewFromInt(1),
	}

	persistCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	err = e.repo.Save(persistCtx, round.Snapshot())
	cancel()
	if err != nil {
		log.Printf("[GAME] failed to persist WAITING snapshot for round %s: %v", round.RoundID, err)
		e.abortRound(round, "failed to persist WAITING snapshot")
		return true
	}

	e.setCurrent(round)

	log.Printf("[GAME] round %s opened for betting (hash %s)", round.RoundID, round.Hash[:16])
	e.sink.Publish("new_round", NewRoundPayload{RoundID: round.RoundID, Hash: round.Hash, Status: StatusWaiting})

	if !e.waitingPhase(ctx, round) {
		return false
	}

	round.Status = StatusRunning
	round.StartedAt = time.Now()
	e.sink.Publish("game_started", GameStartedPayload{RoundID: round.RoundID, StartedAt: round.StartedAt})
	log.Printf("[GAME] round %s running", round.RoundID)

	if !e.runningPhase(ctx, round) {
		return false
	}

	select {
	case <-time.After(e.cfg.PostCrashDuration):
	case <-e.stopChan:
		return false
	case <-ctx.Done():
		return false
	}
	return true
}

func (e *Engine) setCurrent(round *Round) {
	e.currentMu.Lock()
	e.current = round
	e.currentMu.Unlock()
}

// waitingPhase runs the betting window. Place-bet requests are accepted
// and their quote fetch + ledger debit are performed off this goroutine
// (spec.md §5 suspension points); there is no crash-tie-break pressure
// here, so the full async round-trip is safe.
func (e *Engine) waitingPhase(ctx context.Context, round *Round) bool {
	timer := time.NewTimer(e.cfg.WaitDuration)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return true
		case req := <-e.betChan:
			e.beginBetIO(ctx, round, req)
		case res := <-e.betIOChan:
			e.applyBetIO(round, res)
		case req := <-e.cashoutChan:
			req.resp <- cashoutResponse{err: newError(CodeRoundNotRunning, "round %s has not started", round.RoundID)}
		case <-e.stopChan:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// beginBetIO snapshots the round id and spawns a worker to fetch the
// quote; the worker never touches round state directly.
func (e *Engine) beginBetIO(ctx context.Context, round *Round, req betRequest) {
	roundID := round.RoundID
	go func() {
		ioCtx, cancel := context.WithTimeout(req.ctx, 5*time.Second)
		defer cancel()

		price := e.quoter.Get(ioCtx, req.currency)
		if price.IsZero() {
			e.betIOChan <- betIOResult{req: req, roundID: roundID, err: newError(CodeQuoteUnavailable, "no price available for %s", req.currency)}
			return
		}
		cryptoAmount := req.usdAmount.Div(price)

		if err := e.wallet.Debit(ioCtx, req.userID, req.currency, cryptoAmount); err != nil {
			if err == ledger.ErrInsufficientBalance {
				e.betIOChan <- betIOResult{req: req, roundID: roundID, err: newError(CodeInsufficientBalance, "insufficient %s balance", req.currency)}
				return
			}
			e.betIOChan <- betIOResult{req: req, roundID: roundID, err: newError(CodeStoreError, "debit failed: %v", err)}
			return
		}

		e.betIOChan <- betIOResult{req: req, roundID: roundID, price: price, cryptoAmount: cryptoAmount}
	}()
}

// applyBetIO re-validates preconditions once the async debit completes
// (spec.md §5 "re-enter exclusivity to apply the decision, re-validating
// preconditions") and appends the bet if the round is still open.
func (e *Engine) applyBetIO(round *Round, res betIOResult) {
	if res.err != nil {
		res.req.resp <- betResponse{err: res.err}
		return
	}

	if round.RoundID != res.roundID || round.Status != StatusWaiting {
		e.refund(res.req.ctx, res.req.userID, res.req.currency, res.cryptoAmount)
		res.req.resp <- betResponse{err: newError(CodeRoundNotOpen, "betting window closed before this bet could be accepted")}
		return
	}

	bet := Bet{
		UserID:       res.req.userID,
		Username:     res.req.username,
		USDAmount:    res.req.usdAmount,
		Currency:     res.req.currency,
		PriceAtTime:  res.price,
		CryptoAmount: res.cryptoAmount,
		AutoCashOut:  res.req.autoCashOut,
		PlacedAt:     time.Now(),
	}
	round.Bets = append(round.Bets, bet)

	var autoPayload *decimal.Decimal
	if bet.AutoCashOut != nil {
		autoPayload = bet.AutoCashOut
	}
	e.sink.Publish("bet_placed", BetPlacedPayload{
		RoundID:     round.RoundID,
		Username:    bet.Username,
		USDAmount:   bet.USDAmount,
		Currency:    string(bet.Currency),
		AutoCashOut: autoPayload,
	})

	res.req.resp <- betResponse{bet: bet}
}

// abortRound scraps round after a WAITING-phase persistence failure:
// refund every bet it had accepted, broadcast round_aborted, and let the
// caller advance to the next round number (spec.md §4.4 "Failure
// semantics").
func (e *Engine) abortRound(round *Round, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, bet := range round.Bets {
		e.refund(ctx, bet.UserID, bet.Currency, bet.CryptoAmount)
	}

	e.sink.Publish("round_aborted", RoundAbortedPayload{RoundID: round.RoundID, Reason: reason})
	log.Printf("[GAME] round %s aborted: %s", round.RoundID, reason)
}

func (e *Engine) refund(ctx context.Context, userID string, cur currency.Currency, amount decimal.Decimal) {
	if err := e.wallet.Credit(ctx, userID, cur, amount); err != nil {
		log.Printf("[GAME] CRITICAL: failed to refund %s %s to user %s: %v", amount, cur, userID, err)
	}
}

// runningPhase drives the tick loop until crash. It returns false only if
// the engine was stopped mid-round.
func (e *Engine) runningPhase(ctx context.Context, round *Round) bool {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Drain any manual cashouts already queued before this tick
			// so they settle against the round's prior multiplier, ahead
			// of whatever this tick computes.
			e.drainCashouts(round)

			elapsed := time.Since(round.StartedAt).Seconds()
			mu := tickMultiplier(elapsed)

			// Auto-cashouts settle against this tick's mu before the
			// crash condition is evaluated, so a bet whose auto_cash_out
			// <= crash_point always wins even when the tick that reaches
			// it is the same tick that crashes the round (spec.md §4.4
			// "Tie-breaks and ordering").
			e.fireAutoCashouts(round, mu)

			if mu.GreaterThanOrEqual(round.CrashPoint) {
				e.crashRound(ctx, round)
				return true
			}

			round.CurrentMultiplier = mu
			e.sink.Publish("multiplier_update", MultiplierUpdatePayload{RoundID: round.RoundID, Multiplier: mu, Timestamp: time.Now()})

		case req := <-e.cashoutChan:
			e.handleCashout(round, req)

		case req := <-e.betChan:
			req.resp <- betResponse{err: newError(CodeRoundNotOpen, "round %s is no longer accepting bets", round.RoundID)}

		case res := <-e.betIOChan:
			// A bet's quote fetch completed after betting closed; refund
			// and reject rather than silently dropping the debit.
			e.applyBetIO(round, res)

		case <-e.stopChan:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func (e *Engine) drainCashouts(round *Round) {
	for {
		select {
		case req := <-e.cashoutChan:
			e.handleCashout(round, req)
		default:
			return
		}
	}
}

// fireAutoCashouts triggers every uncashed bet whose auto_cash_out has
// been reached by mu, in bet-acceptance order, each receiving the same
// m = mu (spec.md §4.4 "each receives the same m = current_tick_multiplier
// ... not auto_cash_out itself").
func (e *Engine) fireAutoCashouts(round *Round, mu decimal.Decimal) {
	for i := range round.Bets {
		bet := &round.Bets[i]
		if bet.CashedOut || bet.AutoCashOut == nil {
			continue
		}
		if mu.GreaterThanOrEqual(*bet.AutoCashOut) {
			e.settleCashout(round, i, mu, true)
		}
	}
}

// handleCashout validates and settles a manual cashout request arriving
// on the channel, at the round's current multiplier (spec.md §4.4
// cashout). Auto-cashouts never reach this path — they're settled
// directly by fireAutoCashouts/settleCashout as soon as a tick reaches
// their target.
func (e *Engine) handleCashout(round *Round, req cashoutRequest) {
	if round.Status != StatusRunning {
		req.resp <- cashoutResponse{err: newError(CodeRoundNotRunning, "round %s is not running", round.RoundID)}
		return
	}

	idx := round.BetIndex(req.userID)
	if idx == -1 {
		req.resp <- cashoutResponse{err: newError(CodeNoActiveBet, "user %s has no active bet this round", req.userID)}
		return
	}

	bet := e.settleCashout(round, idx, round.CurrentMultiplier, false)
	req.resp <- cashoutResponse{bet: bet}
}

// settleCashout marks round.Bets[idx] cashed out at m, credits the
// wallet, records the settlement, and broadcasts player_cashout. Ledger
// writes happen synchronously here, on the owner goroutine, so the
// drain-before-crash-check ordering in runningPhase is exact.
func (e *Engine) settleCashout(round *Round, idx int, m decimal.Decimal, isAuto bool) Bet {
	bet := &round.Bets[idx]

	cryptoPayout := bet.CryptoAmount.Mul(m)
	usdPayout := cryptoPayout.Mul(bet.PriceAtTime)
	profit := usdPayout.Sub(bet.USDAmount)

	bet.CashedOut = true
	bet.CashedOutAt = m
	bet.PayoutUSD = usdPayout
	bet.ProfitUSD = profit

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := e.wallet.Credit(ctx, bet.UserID, bet.Currency, cryptoPayout); err != nil {
		log.Printf("[GAME] CRITICAL: failed to credit cashout payout to user %s: %v", bet.UserID, err)
	}
	if err := e.wallet.RecordSettlement(ctx, bet.UserID, profit, true); err != nil {
		log.Printf("[GAME] CRITICAL: failed to record settlement for user %s: %v", bet.UserID, err)
	}

	e.sink.Publish("player_cashout", PlayerCashoutPayload{
		RoundID:    round.RoundID,
		Username:   bet.Username,
		Multiplier: m,
		USDPayout:  usdPayout,
		Profit:     profit,
		IsAuto:     isAuto,
	})

	return *bet
}

// crashRound settles every non-cashed bet as a loss, persists the round,
// and broadcasts game_crashed (spec.md §4.4 "Crash settlement").
func (e *Engine) crashRound(ctx context.Context, round *Round) {
	round.CurrentMultiplier = round.CrashPoint
	round.Status = StatusCrashed
	round.CrashedAt = time.Now()

	settleCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := range round.Bets {
		bet := &round.Bets[i]
		if bet.CashedOut {
			continue
		}
		bet.ProfitUSD = bet.USDAmount.Neg()
		if err := e.wallet.RecordSettlement(settleCtx, bet.UserID, bet.ProfitUSD, false); err != nil {
			log.Printf("[GAME] CRITICAL: failed to record loss for user %s: %v", bet.UserID, err)
		}
	}

	e.sink.Publish("game_crashed", GameCrashedPayload{
		RoundID:    round.RoundID,
		CrashPoint: round.CrashPoint,
		Seed:       round.Seed,
		Timestamp:  round.CrashedAt,
	})
	log.Printf("[GAME] round %s crashed at %sx", round.RoundID, round.CrashPoint)

	e.persistWithRetry(round)
}

// persistWithRetry saves the completed round, retrying with exponential
// backoff up to cfg.MaxRetries (spec.md §4.4 "Failure semantics"). If
// every attempt fails, the round is marked DEGRADED and round_aborted is
// broadcast (spec.md §7 "if ultimately fatal, marks round DEGRADED and
// broadcasts round_aborted").
func (e *Engine) persistWithRetry(round *Round) {
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := e.repo.Save(ctx, round.Snapshot())
		cancel()
		if err == nil {
			return
		}
		log.Printf("[GAME] persist round %s failed (attempt %d/%d): %v", round.RoundID, attempt+1, e.cfg.MaxRetries+1, err)
		time.Sleep(backoff)
		backoff *= 2
	}

	round.Status = StatusDegraded
	log.Printf("[GAME] CRITICAL: round %s could not be persisted after %d attempts, marking DEGRADED", round.RoundID, e.cfg.MaxRetries+1)
	e.sink.Publish("round_aborted", RoundAbortedPayload{RoundID: round.RoundID, Reason: "crash settlement could not be persisted"})
}

// tickMultiplier computes the RUNNING-phase multiplier for elapsed
// seconds since start, per spec.md §4.4's tick algorithm:
// μ = exp(0.00006·Δt), truncated toward zero at two fractional digits.
func tickMultiplier(elapsedSeconds float64) decimal.Decimal {
	mu := math.Exp(0.00006 * elapsedSeconds)
	truncated := math.Trunc(mu*100) / 100
	return decimal.NewFromFloat(truncated)
}
