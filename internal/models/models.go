package models

import "time"

// User represents a registered player
type User struct {
	ID           int
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Phase is the round lifecycle phase
type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhaseBetting Phase = "betting"
	PhaseRunning Phase = "running"
	PhaseCrashed Phase = "crashed"
	PhasePaused  Phase = "paused"
	PhaseStopped Phase = "stopped"
)

// Round represents one play of the game. Seed and CrashPoint stay
// server-side until the round crashes; only CommitmentHash is published
// up front.
type Round struct {
	ID             string    `json:"id"`
	Number         int64     `json:"number"`
	CrashPoint     float64   `json:"-"`
	Seed           string    `json:"-"`
	CommitmentHash string    `json:"commitment_hash"`
	Status         string    `json:"status"` // "active", "completed"
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at,omitempty"`
	Wagers         []Wager   `json:"wagers"`
	Cashouts       []Cashout `json:"cashouts"`
	Persisted      bool      `json:"-"` // false when the history store was unreachable
}

// CompletedRound is the disclosed form of a crashed round
type CompletedRound struct {
	ID             string    `json:"id"`
	Number         int64     `json:"number"`
	CrashPoint     float64   `json:"crash_point"`
	Seed           string    `json:"seed"`
	CommitmentHash string    `json:"commitment_hash"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
}

// Wager is a user's single bet for one round. At most one per
// (round number, user id).
type Wager struct {
	RoundNumber int64     `json:"round_number"`
	UserID      int       `json:"user_id"`
	USDAmount   float64   `json:"usd_amount"`
	AssetAmount float64   `json:"asset_amount"`
	Currency    string    `json:"currency"`
	Price       float64   `json:"price"` // USD per unit at conversion time
	DebitRef    string    `json:"debit_ref"`
	PlacedAt    time.Time `json:"placed_at"`
}

// Cashout records a user locking in the current multiplier. At most one
// per (round number, user id), and only for users with a Wager.
type Cashout struct {
	RoundNumber int64     `json:"round_number"`
	UserID      int       `json:"user_id"`
	Multiplier  float64   `json:"multiplier"`
	PayoutAsset float64   `json:"payout_asset"`
	PayoutUSD   float64   `json:"payout_usd"`
	Currency    string    `json:"currency"`
	CreditRef   string    `json:"credit_ref"`
	CashedAt    time.Time `json:"cashed_at"`
}

// Disclosed returns the post-crash public form of the round
func (r *Round) Disclosed() CompletedRound {
	return CompletedRound{
		ID:             r.ID,
		Number:         r.Number,
		CrashPoint:     r.CrashPoint,
		Seed:           r.Seed,
		CommitmentHash: r.CommitmentHash,
		StartedAt:      r.StartedAt,
		EndedAt:        r.EndedAt,
	}
}
