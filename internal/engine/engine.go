package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xtrntr/crash/internal/fairness"
	"github.com/xtrntr/crash/internal/models"
)

// ErrInsufficientFunds is returned by Wallet.Debit when the balance
// cannot cover the amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Wallet is the durable balance store. Debit and Credit are atomic at
// the storage layer and awaited by the engine under a bounded timeout.
type Wallet interface {
	Debit(ctx context.Context, userID int, currency string, amount float64) (txRef string, err error)
	Credit(ctx context.Context, userID int, currency string, amount float64) (txRef string, err error)
}

// PriceOracle converts currencies to USD prices. May return stale or
// fallback values but must not block indefinitely.
type PriceOracle interface {
	PriceOf(ctx context.Context, currency string) (float64, error)
}

// HistoryStore persists completed rounds. Best-effort: the engine keeps
// running on an in-memory fallback when the store is unavailable.
type HistoryStore interface {
	Append(ctx context.Context, round models.Round) error
	LatestRoundNumber(ctx context.Context) (int64, error)
	RecentCompleted(ctx context.Context, limit int) ([]models.CompletedRound, error)
}

// Config holds the engine's tunables
type Config struct {
	WaitingDelay  time.Duration // pause between rounds before betting opens
	BettingDelay  time.Duration // betting window length
	CrashGrace    time.Duration // pause after a crash before the next waiting phase
	TickInterval  time.Duration // multiplier tick
	GrowthFactor  float64       // multiplier gain per elapsed millisecond
	MaxCrashValue uint32        // crash point bound above 1.00
	WalletTimeout time.Duration // bound on wallet/oracle/history calls
	Currencies    []string      // supported currency codes
	RecentLimit   int           // in-memory completed-round ring size
}

// DefaultConfig returns the reference timings
func DefaultConfig() Config {
	return Config{
		WaitingDelay:  7 * time.Second,
		BettingDelay:  3 * time.Second,
		CrashGrace:    1 * time.Second,
		TickInterval:  100 * time.Millisecond,
		GrowthFactor:  0.00005,
		MaxCrashValue: fairness.DefaultMaxCrashValue,
		WalletTimeout: 3 * time.Second,
		Currencies:    []string{"BTC"},
		RecentLimit:   50,
	}
}

// Engine drives the repeating round loop: it owns the phase variable,
// the per-round ledger, the multiplier clock, and all timers. One mutex
// guards phase + ledger + round, so every check-then-mutate sequence
// runs without interleaving. Construct with New and drive with Start;
// multiple independent engines can coexist in one process.
type Engine struct {
	cfg        Config
	gen        *fairness.Generator
	wallet     Wallet
	oracle     PriceOracle
	history    HistoryStore // may be nil
	sink       Sink
	logger     *slog.Logger
	currencies map[string]struct{}

	mu        sync.Mutex
	phase     models.Phase
	round     *models.Round
	ledger    *Ledger
	clock     *MultiplierClock
	epoch     uint64 // bumped on every phase entry; stale timers check it
	timer     *time.Timer
	nextRound int64
	recent    []models.CompletedRound // newest first
}

// New constructs a stopped engine. Call Start to begin the round loop.
func New(cfg Config, wallet Wallet, oracle PriceOracle, history HistoryStore, sink Sink, logger *slog.Logger) (*Engine, error) {
	if wallet == nil {
		return nil, fmt.Errorf("wallet is required")
	}
	if oracle == nil {
		return nil, fmt.Errorf("price oracle is required")
	}
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	gen, err := fairness.NewGenerator(cfg.MaxCrashValue)
	if err != nil {
		return nil, err
	}

	currencies := make(map[string]struct{}, len(cfg.Currencies))
	for _, c := range cfg.Currencies {
		currencies[c] = struct{}{}
	}

	e := &Engine{
		cfg:        cfg,
		gen:        gen,
		wallet:     wallet,
		oracle:     oracle,
		history:    history,
		sink:       sink,
		logger:     logger,
		currencies: currencies,
		phase:      models.PhaseStopped,
		ledger:     NewLedger(),
		nextRound:  1,
	}
	e.clock = NewMultiplierClock(cfg.TickInterval, cfg.GrowthFactor, e.handleTick, e.handleCrash)
	return e, nil
}

// Start brings a stopped engine into the waiting phase. The next round
// number is recovered from the history store when reachable; a store
// outage falls back to the last number this process has seen.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != models.PhaseStopped {
		return newError(CodePhaseMismatch, "engine already started (phase %s)", e.phase)
	}

	if e.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.WalletTimeout)
		latest, err := e.history.LatestRoundNumber(ctx)
		cancel()
		if err != nil {
			e.logger.Warn("history store unavailable, keeping in-memory round number",
				"next_round", e.nextRound, "error", err)
		} else if latest >= e.nextRound {
			e.nextRound = latest + 1
		}
	}

	e.enterWaitingLocked()
	return nil
}

// Shutdown cancels all timers and halts the clock. The engine can be
// restarted with Start.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == models.PhaseStopped {
		return
	}
	e.stopLocked()
}

// Pause freezes a running round without losing elapsed time
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != models.PhaseRunning {
		return newError(CodePhaseMismatch, "cannot pause from phase %s", e.phase)
	}
	e.epoch++
	e.clock.Pause()
	e.setPhaseLocked(models.PhasePaused)
	e.emitControl("paused")
	return nil
}

// Resume re-enters running from paused, keeping the same crash point
// and elapsed time
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != models.PhasePaused {
		return newError(CodePhaseMismatch, "cannot resume from phase %s", e.phase)
	}
	e.epoch++
	e.setPhaseLocked(models.PhaseRunning)
	e.clock.Resume()
	e.emitControl("resumed")
	return nil
}

// Stop halts the round loop from any state. No wager or cashout is
// accepted until Start is called again.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == models.PhaseStopped {
		return newError(CodePhaseMismatch, "engine already stopped")
	}
	e.stopLocked()
	return nil
}

func (e *Engine) stopLocked() {
	e.epoch++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.clock.Stop()
	e.setPhaseLocked(models.PhaseStopped)
	e.emitControl("stopped")
}

// setPhaseLocked updates the phase and emits the transition
func (e *Engine) setPhaseLocked(p models.Phase) {
	e.phase = p
	e.emitPhase(p)
}

// scheduleLocked arms the single phase timer. The callback only runs if
// the epoch is unchanged, so a timer scheduled for an abandoned phase
// never fires into the new one.
func (e *Engine) scheduleLocked(d time.Duration, fn func()) {
	if e.timer != nil {
		e.timer.Stop()
	}
	epoch := e.epoch
	e.timer = time.AfterFunc(d, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.epoch != epoch {
			return
		}
		fn()
	})
}

func (e *Engine) enterWaitingLocked() {
	e.epoch++
	e.setPhaseLocked(models.PhaseWaiting)
	e.waitStepLocked(int(e.cfg.WaitingDelay / time.Second))
}

func (e *Engine) waitStepLocked(remaining int) {
	e.emitWaiting(remaining)
	if remaining <= 0 {
		e.enterBettingLocked()
		return
	}
	e.scheduleLocked(time.Second, func() { e.waitStepLocked(remaining - 1) })
}

func (e *Engine) enterBettingLocked() {
	e.epoch++
	e.ledger.Reset()
	e.setPhaseLocked(models.PhaseBetting)
	e.bettingStepLocked(int(e.cfg.BettingDelay / time.Second))
}

func (e *Engine) bettingStepLocked(remaining int) {
	e.emitBettingCountdown(remaining)
	if remaining <= 0 {
		e.enterRunningLocked()
		return
	}
	e.scheduleLocked(time.Second, func() { e.bettingStepLocked(remaining - 1) })
}

func (e *Engine) enterRunningLocked() {
	e.epoch++
	num := e.nextRound

	res, err := e.gen.Generate(num)
	if err != nil {
		// Never halt the loop; skip this round and reschedule.
		e.logger.Error("failed to generate crash point, rescheduling round",
			"round", num, "error", err)
		e.enterWaitingLocked()
		return
	}

	e.round = &models.Round{
		ID:             uuid.NewString(),
		Number:         num,
		CrashPoint:     res.CrashPoint,
		Seed:           res.Seed,
		CommitmentHash: res.CommitmentHash,
		Status:         "active",
		StartedAt:      time.Now().UTC(),
		Wagers:         e.ledger.WagerList(),
		Persisted:      e.history != nil,
	}

	e.setPhaseLocked(models.PhaseRunning)
	e.emitRoundStarted(e.round)
	e.clock.Start(res.CrashPoint)
}

// handleTick runs on the clock goroutine for every multiplier update
func (e *Engine) handleTick(mult float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != models.PhaseRunning || e.round == nil {
		return
	}
	e.emitMultiplier(e.round.ID, mult)
}

// handleCrash runs once on the clock goroutine when the multiplier
// crosses the crash point
func (e *Engine) handleCrash() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != models.PhaseRunning || e.round == nil {
		// Stale signal from a clock halted by pause/stop.
		return
	}

	e.epoch++
	round := e.round
	round.Status = "completed"
	round.EndedAt = time.Now().UTC()
	e.setPhaseLocked(models.PhaseCrashed)
	e.emitCrashed(round)

	e.recordCompletedLocked(round)
	e.nextRound = round.Number + 1
	e.round = nil

	e.scheduleLocked(e.cfg.CrashGrace, e.enterWaitingLocked)
}

// recordCompletedLocked appends the round to the history store, falling
// back to in-memory only when the store fails. A store outage never
// blocks the next round.
func (e *Engine) recordCompletedLocked(round *models.Round) {
	completed := round.Disclosed()

	if e.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.WalletTimeout)
		err := e.history.Append(ctx, *round)
		cancel()
		if err != nil {
			round.Persisted = false
			e.logger.Warn("history append failed, keeping round in memory only",
				"round", round.Number, "error", err)
		}
	}

	e.recent = append([]models.CompletedRound{completed}, e.recent...)
	if len(e.recent) > e.cfg.RecentLimit {
		e.recent = e.recent[:e.cfg.RecentLimit]
	}
}

// PlaceWager accepts a USD-denominated bet during the betting phase,
// converts it to asset units at the oracle price, and debits the wallet.
// Either the debit and the ledger entry both happen or neither does.
func (e *Engine) PlaceWager(ctx context.Context, userID int, usdAmount float64, currency string) (models.Wager, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if usdAmount <= 0 {
		return models.Wager{}, newError(CodeInvalidInput, "amount must be positive, got %v", usdAmount)
	}
	if _, ok := e.currencies[currency]; !ok {
		return models.Wager{}, newError(CodeInvalidInput, "unsupported currency %q", currency)
	}
	if e.phase != models.PhaseBetting {
		return models.Wager{}, newError(CodePhaseMismatch, "bets are only accepted during betting, phase is %s", e.phase)
	}
	if e.ledger.HasWager(userID) {
		return models.Wager{}, newError(CodeDuplicateAction, "user %d already wagered this round", userID)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.WalletTimeout)
	defer cancel()

	price, err := e.oracle.PriceOf(callCtx, currency)
	if err != nil {
		return models.Wager{}, newError(CodeUpstreamUnavailable, "price lookup failed: %v", err)
	}
	assetAmount := usdAmount / price

	ref, err := e.wallet.Debit(callCtx, userID, currency, assetAmount)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return models.Wager{}, newError(CodeInsufficientFunds, "balance too low for %v %s", assetAmount, currency)
		}
		return models.Wager{}, newError(CodeUpstreamUnavailable, "wallet debit failed: %v", err)
	}

	w := models.Wager{
		RoundNumber: e.nextRound,
		UserID:      userID,
		USDAmount:   usdAmount,
		AssetAmount: assetAmount,
		Currency:    currency,
		Price:       price,
		DebitRef:    ref,
		PlacedAt:    time.Now().UTC(),
	}
	e.ledger.AddWager(w)
	return w, nil
}

// CashOut locks in the current multiplier for the user's wager and
// credits the payout. The multiplier is read at the instant of
// processing; it never decreases within a round, so later requests see
// an equal-or-larger value.
func (e *Engine) CashOut(ctx context.Context, userID int) (models.Cashout, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != models.PhaseRunning {
		return models.Cashout{}, newError(CodePhaseMismatch, "cashout is only accepted while running, phase is %s", e.phase)
	}
	if e.round == nil {
		return models.Cashout{}, newError(CodeNoActiveRound, "no round is running")
	}
	w, ok := e.ledger.Wager(userID)
	if !ok {
		return models.Cashout{}, newError(CodeNoActiveWager, "user %d has no wager this round", userID)
	}
	if e.ledger.HasCashedOut(userID) {
		return models.Cashout{}, newError(CodeDuplicateAction, "user %d already cashed out this round", userID)
	}

	mult := e.clock.Current()
	payoutAsset := w.AssetAmount * mult

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.WalletTimeout)
	defer cancel()

	ref, err := e.wallet.Credit(callCtx, userID, w.Currency, payoutAsset)
	if err != nil {
		return models.Cashout{}, newError(CodeUpstreamUnavailable, "wallet credit failed: %v", err)
	}

	c := models.Cashout{
		RoundNumber: w.RoundNumber,
		UserID:      userID,
		Multiplier:  mult,
		PayoutAsset: payoutAsset,
		PayoutUSD:   payoutAsset * w.Price,
		Currency:    w.Currency,
		CreditRef:   ref,
		CashedAt:    time.Now().UTC(),
	}
	e.ledger.MarkCashedOut(userID)
	e.round.Cashouts = append(e.round.Cashouts, c)
	e.emitCashout(c)
	return c, nil
}

// Snapshot is a point-in-time view of the engine for queries
type Snapshot struct {
	Phase          models.Phase `json:"phase"`
	Multiplier     float64      `json:"multiplier"`
	RoundID        string       `json:"round_id,omitempty"`
	RoundNumber    int64        `json:"round_number,omitempty"`
	CommitmentHash string       `json:"commitment_hash,omitempty"`
	WagerCount     int          `json:"wager_count"`
}

// Snapshot returns the current round/phase/multiplier view
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		Phase:      e.phase,
		Multiplier: e.clock.Current(),
		WagerCount: e.ledger.WagerCount(),
	}
	if e.round != nil {
		s.RoundID = e.round.ID
		s.RoundNumber = e.round.Number
		s.CommitmentHash = e.round.CommitmentHash
	}
	return s
}

// RecentRounds returns up to limit completed rounds, newest first. Reads
// from the history store when reachable, otherwise from the in-memory
// ring.
func (e *Engine) RecentRounds(ctx context.Context, limit int) []models.CompletedRound {
	if limit <= 0 {
		limit = 10
	}

	if e.history != nil {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.WalletTimeout)
		rounds, err := e.history.RecentCompleted(callCtx, limit)
		cancel()
		if err == nil {
			return rounds
		}
		e.logger.Warn("history query failed, serving in-memory rounds", "error", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if limit > len(e.recent) {
		limit = len(e.recent)
	}
	out := make([]models.CompletedRound, limit)
	copy(out, e.recent[:limit])
	return out
}

// Verify re-derives the fairness materials for a disclosed round
func (e *Engine) Verify(seed string, roundNumber int64, hash string, crashPoint float64) bool {
	return e.gen.Verify(seed, roundNumber, hash, crashPoint)
}
