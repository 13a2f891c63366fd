package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/crash/internal/engine"
	"github.com/xtrntr/crash/internal/models"
)

type memWallet struct {
	mu       sync.Mutex
	balances map[string]float64
	refs     int
}

func (w *memWallet) key(userID int, currency string) string {
	return fmt.Sprintf("%d/%s", userID, currency)
}

func (w *memWallet) Debit(_ context.Context, userID int, currency string, amount float64) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.balances[w.key(userID, currency)] < amount {
		return "", engine.ErrInsufficientFunds
	}
	w.balances[w.key(userID, currency)] -= amount
	w.refs++
	return fmt.Sprintf("tx-%d", w.refs), nil
}

func (w *memWallet) Credit(_ context.Context, userID int, currency string, amount float64) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[w.key(userID, currency)] += amount
	w.refs++
	return fmt.Sprintf("tx-%d", w.refs), nil
}

type memOracle struct{}

func (memOracle) PriceOf(context.Context, string) (float64, error) { return 50000, nil }

// newTestHandler builds a handler over an engine held in a long betting
// phase. DB and auth are nil: only engine-backed endpoints are exercised.
func newTestHandler(t *testing.T) (*Handler, *memWallet) {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.WaitingDelay = 0
	cfg.BettingDelay = time.Minute
	cfg.TickInterval = time.Hour
	cfg.WalletTimeout = time.Second

	wallet := &memWallet{balances: map[string]float64{"1/BTC": 1}}
	e, err := engine.New(cfg, wallet, memOracle{}, nil, nil, slog.Default())
	require.NoError(t, err)
	require.NoError(t, e.Start())
	t.Cleanup(e.Shutdown)

	return NewHandler(nil, e, nil), wallet
}

func asUser(r *http.Request, userID int) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), "user_id", userID))
}

func TestHandler_GetState(t *testing.T) {
	h, _ := newTestHandler(t)

	w := httptest.NewRecorder()
	h.GetState(w, httptest.NewRequest("GET", "/state", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var snap engine.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, models.PhaseBetting, snap.Phase)
}

func TestHandler_PlaceBet(t *testing.T) {
	h, _ := newTestHandler(t)

	body := bytes.NewBufferString(`{"usd_amount": 10, "currency": "BTC"}`)
	req := asUser(httptest.NewRequest("POST", "/bets", body), 1)
	w := httptest.NewRecorder()
	h.PlaceBet(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var wager models.Wager
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wager))
	assert.Equal(t, 10.0, wager.USDAmount)
	assert.InDelta(t, 0.0002, wager.AssetAmount, 1e-12)
}

func TestHandler_PlaceBet_ErrorMapping(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name       string
		userID     int
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "InvalidAmount",
			userID:     1,
			body:       `{"usd_amount": 0, "currency": "BTC"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "InsufficientFunds",
			userID:     2, // no balance
			body:       `{"usd_amount": 10, "currency": "BTC"}`,
			wantStatus: http.StatusPaymentRequired,
			wantCode:   "INSUFFICIENT_FUNDS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := asUser(httptest.NewRequest("POST", "/bets", bytes.NewBufferString(tt.body)), tt.userID)
			w := httptest.NewRecorder()
			h.PlaceBet(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp["code"])
		})
	}
}

func TestHandler_DuplicateBetConflicts(t *testing.T) {
	h, _ := newTestHandler(t)

	for i, wantStatus := range []int{http.StatusCreated, http.StatusConflict} {
		body := bytes.NewBufferString(`{"usd_amount": 10, "currency": "BTC"}`)
		req := asUser(httptest.NewRequest("POST", "/bets", body), 1)
		w := httptest.NewRecorder()
		h.PlaceBet(w, req)
		assert.Equal(t, wantStatus, w.Code, "attempt %d", i+1)
	}
}

func TestHandler_CashOutOutsideRunning(t *testing.T) {
	h, _ := newTestHandler(t)

	req := asUser(httptest.NewRequest("POST", "/cashout", nil), 1)
	w := httptest.NewRecorder()
	h.CashOut(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "PHASE_MISMATCH", resp["code"])
}

func TestHandler_AdminCommands(t *testing.T) {
	h, _ := newTestHandler(t)

	// Pause is illegal during betting.
	w := httptest.NewRecorder()
	h.Pause(w, httptest.NewRequest("POST", "/admin/pause", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	// Stop always works from a started engine, start brings it back.
	w = httptest.NewRecorder()
	h.Stop(w, httptest.NewRequest("POST", "/admin/stop", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.Start(w, httptest.NewRequest("POST", "/admin/start", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.GetState(w, httptest.NewRequest("GET", "/state", nil))
	var snap engine.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, models.PhaseBetting, snap.Phase)
}

func TestHandler_VerifyRound(t *testing.T) {
	h, _ := newTestHandler(t)

	// Known-good vector.
	url := "/verify?seed=4c785adc56cc9514c51d19c9f277ce3ede60c6baf50af8807b53cc12633fa97b" +
		"&round=1&hash=666a0a8d40caf0d98ac89ad76b169da4aa978ac61b8070eaf1ae811e03097752&crash_point=50.00"
	w := httptest.NewRecorder()
	h.VerifyRound(w, httptest.NewRequest("GET", url, nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp["valid"])

	// Tampered crash point fails.
	url = "/verify?seed=4c785adc56cc9514c51d19c9f277ce3ede60c6baf50af8807b53cc12633fa97b" +
		"&round=1&hash=666a0a8d40caf0d98ac89ad76b169da4aa978ac61b8070eaf1ae811e03097752&crash_point=51.00"
	w = httptest.NewRecorder()
	h.VerifyRound(w, httptest.NewRequest("GET", url, nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp["valid"])
}
