package fairness

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
)

// Generator derives crash points from random seeds. The seed is hashed
// together with the round number before the round starts, so clients can
// verify after the crash that the point was fixed up front.
type Generator struct {
	MaxCrashValue uint32 // upper bound on the crash offset above 1.00
}

// Result holds one round's fairness materials. Seed stays server-side
// until the round ends; CommitmentHash is published immediately.
type Result struct {
	CrashPoint     float64
	Seed           string
	CommitmentHash string
}

// DefaultMaxCrashValue bounds the crash point to [1.00, 101.00)
const DefaultMaxCrashValue = 100

// NewGenerator creates a generator with the given crash-point bound
func NewGenerator(maxCrashValue uint32) (*Generator, error) {
	if maxCrashValue < 1 {
		return nil, fmt.Errorf("maxCrashValue must be >= 1, got %d", maxCrashValue)
	}
	return &Generator{MaxCrashValue: maxCrashValue}, nil
}

// Generate draws a fresh seed and derives the crash point and commitment
// hash for the given round number. Pure apart from the entropy draw.
func (g *Generator) Generate(roundNumber int64) (Result, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return Result{}, fmt.Errorf("failed to draw seed: %w", err)
	}
	seed := hex.EncodeToString(buf)

	hash := commitmentHash(seed, roundNumber)
	point, err := crashPoint(hash, g.MaxCrashValue)
	if err != nil {
		return Result{}, err
	}

	return Result{CrashPoint: point, Seed: seed, CommitmentHash: hash}, nil
}

// Verify recomputes the hash and crash point from a disclosed seed and
// compares them with the claimed values. Exposed so third parties can
// check completed rounds independently.
func (g *Generator) Verify(seed string, roundNumber int64, claimedHash string, claimedCrashPoint float64) bool {
	hash := commitmentHash(seed, roundNumber)
	if hash != claimedHash {
		return false
	}
	point, err := crashPoint(hash, g.MaxCrashValue)
	if err != nil {
		return false
	}
	return point == claimedCrashPoint
}

// commitmentHash is SHA-256 over the hex seed joined with the decimal
// round number by a colon
func commitmentHash(seed string, roundNumber int64) string {
	sum := sha256.Sum256([]byte(seed + ":" + strconv.FormatInt(roundNumber, 10)))
	return hex.EncodeToString(sum[:])
}

// crashPoint parses the first 8 hex chars of the hash as a uint32 and
// maps it into [1.00, 1.00+max), truncated to 2 decimals
func crashPoint(hash string, max uint32) (float64, error) {
	d, err := strconv.ParseUint(hash[:8], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("failed to parse hash prefix: %w", err)
	}
	point := 1.00 + float64(uint32(d)%max)
	return math.Trunc(point*100) / 100, nil
}
