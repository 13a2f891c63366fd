package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/xtrntr/crash/internal/db"
	"github.com/xtrntr/crash/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles player registration and login
type AuthService struct {
	DB              *db.DB
	Secret          []byte
	Currencies      []string
	StartingBalance float64
}

// NewAuthService creates a new auth service. New players get a wallet
// per supported currency funded with startingBalance.
func NewAuthService(database *db.DB, secret string, currencies []string, startingBalance float64) *AuthService {
	return &AuthService{
		DB:              database,
		Secret:          []byte(secret),
		Currencies:      currencies,
		StartingBalance: startingBalance,
	}
}

// Register creates a new user with hashed password and funded wallets
func (s *AuthService) Register(ctx context.Context, username, password string) (*models.User, error) {
	// Validate input
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}
	if len(username) > 50 {
		return nil, fmt.Errorf("username too long (max 50 characters)")
	}
	if len(password) > 100 {
		return nil, fmt.Errorf("password too long (max 100 characters)")
	}

	// Hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := s.DB.CreateUser(ctx, username, string(hashedPassword))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// Open a funded wallet per supported currency
	for _, currency := range s.Currencies {
		if err := s.DB.CreateWallet(ctx, user.ID, currency, s.StartingBalance); err != nil {
			return nil, fmt.Errorf("failed to open %s wallet: %w", currency, err)
		}
	}
	return user, nil
}

// Login verifies credentials and generates a JWT
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.DB.GetUserByUsername(ctx, username)
	if err != nil {
		return "", err
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString(s.Secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// GetUserFromToken extracts user ID from JWT
func (s *AuthService) GetUserFromToken(tokenString string) (int, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.Secret, nil
	})
	if err != nil {
		return 0, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		userID, ok := claims["user_id"].(float64)
		if !ok {
			return 0, fmt.Errorf("token has no user_id claim")
		}
		return int(userID), nil
	}
	return 0, fmt.Errorf("invalid token")
}
