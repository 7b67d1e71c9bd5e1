package helpers

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// JWTManager signs session and refresh tokens with separate HMAC secrets.
type JWTManager struct {
	SessionSecret []byte
	RefreshSecret []byte
	SessionTTL    time.Duration
	RefreshTTL    time.Duration
	Now           func() time.Time
}

func NewJWTManager(sessionSecret, refreshSecret string, sessionTTL, refreshTTL time.Duration) *JWTManager {
	return &JWTManager{
		SessionSecret: []byte(sessionSecret),
		RefreshSecret: []byte(refreshSecret),
		SessionTTL:    sessionTTL,
		RefreshTTL:    refreshTTL,
		Now:           time.Now,
	}
}

type Claims struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

func (m *JWTManager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *JWTManager) sign(secret []byte, ttl time.Duration, userID, email, sid string) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(ttl)
	claims := &Claims{
		UserID:    userID,
		Email:     email,
		SessionID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	return s, exp, err
}

// GenerateSessionToken issues the bearer token presented on every request.
func (m *JWTManager) GenerateSessionToken(userID, email, sid string) (string, time.Time, error) {
	return m.sign(m.SessionSecret, m.SessionTTL, userID, email, sid)
}

func (m *JWTManager) GenerateRefreshToken(userID, email, sid string) (string, time.Time, error) {
	return m.sign(m.RefreshSecret, m.RefreshTTL, userID, email, sid)
}

func (m *JWTManager) ParseSessionToken(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, m.SessionSecret)
}

func (m *JWTManager) ParseRefreshToken(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, m.RefreshSecret)
}

func (m *JWTManager) parse(tokenStr string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tkn.Valid || claims.UserID == "" || claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
