package engine

import (
	"time"

	"github.com/xtrntr/crash/internal/models"
)

// Event is the common structure for everything the engine emits.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Sink receives engine events for delivery to clients. Implementations
// must not block; the engine publishes from inside its phase loop.
type Sink interface {
	Publish(ev Event)
}

// NopSink discards all events
type NopSink struct{}

func (NopSink) Publish(Event) {}

func (e *Engine) emitPhase(phase models.Phase) {
	e.sink.Publish(Event{Type: "phase-changed", Data: map[string]interface{}{
		"phase": phase,
	}})
}

func (e *Engine) emitWaiting(seconds int) {
	e.sink.Publish(Event{Type: "waiting", Data: map[string]interface{}{
		"seconds_until_betting": seconds,
	}})
}

func (e *Engine) emitBettingCountdown(seconds int) {
	e.sink.Publish(Event{Type: "betting-countdown", Data: map[string]interface{}{
		"seconds_remaining": seconds,
	}})
}

func (e *Engine) emitRoundStarted(round *models.Round) {
	e.sink.Publish(Event{Type: "round-started", Data: map[string]interface{}{
		"round_id":        round.ID,
		"round_number":    round.Number,
		"start_time":      round.StartedAt,
		"commitment_hash": round.CommitmentHash,
	}})
}

func (e *Engine) emitMultiplier(roundID string, value float64) {
	e.sink.Publish(Event{Type: "multiplier-update", Data: map[string]interface{}{
		"round_id": roundID,
		"value":    value,
	}})
}

func (e *Engine) emitCrashed(round *models.Round) {
	e.sink.Publish(Event{Type: "crashed", Data: map[string]interface{}{
		"round_id":        round.ID,
		"round_number":    round.Number,
		"crash_point":     round.CrashPoint,
		"seed":            round.Seed,
		"commitment_hash": round.CommitmentHash,
	}})
}

func (e *Engine) emitCashout(c models.Cashout) {
	e.sink.Publish(Event{Type: "cashout", Data: map[string]interface{}{
		"user_id":    c.UserID,
		"multiplier": c.Multiplier,
		"payout":     c.PayoutAsset,
		"payout_usd": c.PayoutUSD,
		"currency":   c.Currency,
	}})
}

func (e *Engine) emitControl(typ string) {
	e.sink.Publish(Event{Type: typ, Data: map[string]interface{}{
		"at": time.Now().UTC(),
	}})
}
