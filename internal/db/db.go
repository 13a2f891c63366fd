package db

import (
	"context"
	"fmt"

	"github.com/xtrntr/crash/internal/engine"
	"github.com/xtrntr/crash/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool. It implements engine.Wallet and
// engine.HistoryStore.
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// CreateUser inserts a new user
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, username, password_hash, created_at",
		username, passwordHash).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// CreateWallet opens a wallet row for a user/currency pair
func (db *DB) CreateWallet(ctx context.Context, userID int, currency string, balance float64) error {
	_, err := db.Pool.Exec(ctx,
		"INSERT INTO wallets (user_id, currency, balance) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
		userID, currency, balance)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// GetBalances retrieves all wallet balances for a user
func (db *DB) GetBalances(ctx context.Context, userID int) (map[string]float64, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT currency, balance FROM wallets WHERE user_id = $1", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]float64)
	for rows.Next() {
		var currency string
		var balance float64
		if err := rows.Scan(&currency, &balance); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances[currency] = balance
	}
	return balances, rows.Err()
}

// Debit atomically subtracts amount from the user's balance. Returns
// engine.ErrInsufficientFunds when the balance cannot cover it.
func (db *DB) Debit(ctx context.Context, userID int, currency string, amount float64) (string, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		"UPDATE wallets SET balance = balance - $1 WHERE user_id = $2 AND currency = $3 AND balance >= $1",
		amount, userID, currency)
	if err != nil {
		return "", fmt.Errorf("failed to debit wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", engine.ErrInsufficientFunds
	}

	ref := uuid.NewString()
	_, err = tx.Exec(ctx,
		"INSERT INTO wallet_transactions (id, user_id, currency, amount, kind) VALUES ($1, $2, $3, $4, 'debit')",
		ref, userID, currency, amount)
	if err != nil {
		return "", fmt.Errorf("failed to record debit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit debit: %w", err)
	}
	return ref, nil
}

// Credit atomically adds amount to the user's balance
func (db *DB) Credit(ctx context.Context, userID int, currency string, amount float64) (string, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		"UPDATE wallets SET balance = balance + $1 WHERE user_id = $2 AND currency = $3",
		amount, userID, currency)
	if err != nil {
		return "", fmt.Errorf("failed to credit wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("no wallet for user %d currency %s", userID, currency)
	}

	ref := uuid.NewString()
	_, err = tx.Exec(ctx,
		"INSERT INTO wallet_transactions (id, user_id, currency, amount, kind) VALUES ($1, $2, $3, $4, 'credit')",
		ref, userID, currency, amount)
	if err != nil {
		return "", fmt.Errorf("failed to record credit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit credit: %w", err)
	}
	return ref, nil
}

// Append persists a completed round with its wagers and cashouts
func (db *DB) Append(ctx context.Context, round models.Round) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		"INSERT INTO rounds (number, id, crash_point, seed, commitment_hash, started_at, ended_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		round.Number, round.ID, round.CrashPoint, round.Seed, round.CommitmentHash, round.StartedAt, round.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to insert round: %w", err)
	}

	for _, w := range round.Wagers {
		_, err = tx.Exec(ctx,
			"INSERT INTO wagers (round_number, user_id, usd_amount, asset_amount, currency, price, debit_ref, placed_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
			w.RoundNumber, w.UserID, w.USDAmount, w.AssetAmount, w.Currency, w.Price, w.DebitRef, w.PlacedAt)
		if err != nil {
			return fmt.Errorf("failed to insert wager: %w", err)
		}
	}

	for _, c := range round.Cashouts {
		_, err = tx.Exec(ctx,
			"INSERT INTO cashouts (round_number, user_id, multiplier, payout_asset, payout_usd, currency, credit_ref, cashed_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
			c.RoundNumber, c.UserID, c.Multiplier, c.PayoutAsset, c.PayoutUSD, c.Currency, c.CreditRef, c.CashedAt)
		if err != nil {
			return fmt.Errorf("failed to insert cashout: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit round: %w", err)
	}
	return nil
}

// LatestRoundNumber returns the highest persisted round number, or 0
// when no round exists yet
func (db *DB) LatestRoundNumber(ctx context.Context) (int64, error) {
	var latest int64
	err := db.Pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(number), 0) FROM rounds").Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest round number: %w", err)
	}
	return latest, nil
}

// RecentCompleted retrieves up to limit completed rounds, newest first
func (db *DB) RecentCompleted(ctx context.Context, limit int) ([]models.CompletedRound, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT number, id, crash_point, seed, commitment_hash, started_at, ended_at FROM rounds ORDER BY number DESC LIMIT $1",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent rounds: %w", err)
	}
	defer rows.Close()

	var rounds []models.CompletedRound
	for rows.Next() {
		var r models.CompletedRound
		if err := rows.Scan(&r.Number, &r.ID, &r.CrashPoint, &r.Seed, &r.CommitmentHash, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// GetUserWagers retrieves a user's wager history, newest first
func (db *DB) GetUserWagers(ctx context.Context, userID int, limit int) ([]models.Wager, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT round_number, user_id, usd_amount, asset_amount, currency, price, debit_ref, placed_at FROM wagers WHERE user_id = $1 ORDER BY round_number DESC LIMIT $2",
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get user wagers: %w", err)
	}
	defer rows.Close()

	var wagers []models.Wager
	for rows.Next() {
		var w models.Wager
		if err := rows.Scan(&w.RoundNumber, &w.UserID, &w.USDAmount, &w.AssetAmount, &w.Currency, &w.Price, &w.DebitRef, &w.PlacedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wager: %w", err)
		}
		wagers = append(wagers, w)
	}
	return wagers, rows.Err()
}
