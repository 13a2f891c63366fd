package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/xtrntr/crash/internal/auth"
	"github.com/xtrntr/crash/internal/db"
	"github.com/xtrntr/crash/internal/engine"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	DB          *db.DB
	Engine      *engine.Engine
	AuthService *auth.AuthService
}

// NewHandler creates a new handler
func NewHandler(database *db.DB, eng *engine.Engine, authService *auth.AuthService) *Handler {
	return &Handler{DB: database, Engine: eng, AuthService: authService}
}

// statusFor maps engine error codes to HTTP statuses
func statusFor(code engine.ErrorCode) int {
	switch code {
	case engine.CodeInvalidInput:
		return http.StatusBadRequest
	case engine.CodePhaseMismatch, engine.CodeDuplicateAction:
		return http.StatusConflict
	case engine.CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case engine.CodeNoActiveRound, engine.CodeNoActiveWager:
		return http.StatusNotFound
	case engine.CodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError reports an engine operation failure to the caller
func writeEngineError(w http.ResponseWriter, err error) {
	code := engine.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(code))
	json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"code":  string(code),
	})
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, `{"error": "Username and password required"}`, http.StatusBadRequest)
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, `{"error": "Failed to register user"}`, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, `{"error": "Invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, `{"error": "Authorization header required"}`, http.StatusUnauthorized)
			return
		}

		// Remove "Bearer " prefix if present
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		userID, err := h.AuthService.GetUserFromToken(tokenString)
		if err != nil {
			http.Error(w, `{"error": "Invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "user_id", userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetBalance retrieves the caller's wallet balances
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	balances, err := h.DB.GetBalances(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve balances"}`, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{"balances": balances})
}

// PlaceBet places the caller's wager for the upcoming round
func (h *Handler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		USDAmount float64 `json:"usd_amount"`
		Currency  string  `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	wager, err := h.Engine.PlaceWager(r.Context(), userID, req.USDAmount, req.Currency)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(wager)
}

// CashOut locks in the current multiplier for the caller's wager
func (h *Handler) CashOut(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	cashout, err := h.Engine.CashOut(r.Context(), userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	json.NewEncoder(w).Encode(cashout)
}

// GetState returns the current round/phase/multiplier snapshot
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(h.Engine.Snapshot())
}

// GetRecentRounds returns recently completed rounds with their proofs
func (h *Handler) GetRecentRounds(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			http.Error(w, `{"error": "Invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	json.NewEncoder(w).Encode(h.Engine.RecentRounds(r.Context(), limit))
}

// VerifyRound recomputes the fairness proof for a disclosed round
func (h *Handler) VerifyRound(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	seed := q.Get("seed")
	hash := q.Get("hash")
	roundNumber, err := strconv.ParseInt(q.Get("round"), 10, 64)
	if err != nil {
		http.Error(w, `{"error": "Invalid round number"}`, http.StatusBadRequest)
		return
	}
	crashPoint, err := strconv.ParseFloat(q.Get("crash_point"), 64)
	if err != nil {
		http.Error(w, `{"error": "Invalid crash point"}`, http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]bool{
		"valid": h.Engine.Verify(seed, roundNumber, hash, crashPoint),
	})
}

// Admin commands. Unauthenticated for local operation; put them behind
// an operator credential before exposing the server.

// Pause freezes the running round
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Pause(); err != nil {
		writeEngineError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"message": "Round paused"})
}

// Resume continues a paused round
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Resume(); err != nil {
		writeEngineError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"message": "Round resumed"})
}

// Stop halts the round loop
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Stop(); err != nil {
		writeEngineError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"message": "Round loop stopped"})
}

// Start restarts a stopped round loop
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Start(); err != nil {
		writeEngineError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"message": "Round loop started"})
}
