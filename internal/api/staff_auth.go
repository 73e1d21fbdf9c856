package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"termin/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	staffRole   = "staff"
	tokenIssuer = "termin"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
)

// StaffToken is a signed access token for the admin routes.
type StaffToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type staffClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// StaffAuth checks the single staff account from config and issues HS256 tokens.
type StaffAuth struct {
	username     string
	passwordHash string
	secret       []byte
	ttl          time.Duration
	now          func() time.Time
}

func NewStaffAuth(cfg config.StaffConfig) *StaffAuth {
	ttl := time.Duration(cfg.TokenTTLMin) * time.Minute
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &StaffAuth{
		username:     cfg.Username,
		passwordHash: cfg.PasswordHash,
		secret:       []byte(cfg.JWTSecret),
		ttl:          ttl,
		now:          time.Now,
	}
}

// HashPassword returns the bcrypt hash to put into staff.password_hash.
func HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Login verifies the credentials and issues a token.
func (a *StaffAuth) Login(username, password string) (StaffToken, error) {
	if a.username == "" || a.passwordHash == "" {
		return StaffToken{}, ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) != 1 {
		return StaffToken{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)) != nil {
		return StaffToken{}, ErrInvalidCredentials
	}
	return a.Issue(username)
}

func (a *StaffAuth) Issue(subject string) (StaffToken, error) {
	now := a.now().UTC()
	exp := now.Add(a.ttl)
	claims := staffClaims{
		Role: staffRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return StaffToken{}, fmt.Errorf("sign token: %w", err)
	}
	return StaffToken{Token: signed, ExpiresAt: exp}, nil
}

// Verify parses a token and returns its subject.
func (a *StaffAuth) Verify(raw string) (string, error) {
	var claims staffClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !tok.Valid {
		return "", ErrInvalidToken
	}
	if claims.Role != staffRole {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
