// Package authn provides JWT-based authentication and role checks for the
// operator HTTP API, adapted from internal/auth's password-hashing and
// token-issuing service.
package authn

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Roles recognised by the operator API. The control loop exposes only
// two privilege levels: operators who may lock/unlock devices, and
// dashboards that only read state.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

var (
	ErrInvalidCredentials = errors.New("authn: invalid credentials")
	ErrInvalidToken       = errors.New("authn: invalid or expired token")
	ErrUnauthorized       = errors.New("authn: unauthorized access")
)

// Claims is the JWT payload for an operator session.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Config holds the authentication service's signing parameters.
type Config struct {
	JWTSecret     string
	TokenDuration time.Duration
	BCryptCost    int
}

// Service issues and validates operator session tokens.
type Service struct {
	config Config
}

// NewService constructs a Service, filling in defaults for an unset
// BCryptCost or TokenDuration.
func NewService(cfg Config) *Service {
	if cfg.BCryptCost == 0 {
		cfg.BCryptCost = bcrypt.DefaultCost
	}
	if cfg.TokenDuration == 0 {
		cfg.TokenDuration = 12 * time.Hour
	}
	return &Service{config: cfg}
}

// HashPassword hashes a plaintext operator password.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BCryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword checks a plaintext password against its stored hash.
func (s *Service) ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// GenerateToken issues a signed session token for an operator.
func (s *Service) GenerateToken(username, role string) (string, error) {
	claims := &Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.config.TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "shadeflow",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// ValidateToken parses and verifies a session token, returning its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// CanLockDevices reports whether role may issue lock/unlock commands.
func CanLockDevices(role string) bool {
	return role == RoleAdmin
}
