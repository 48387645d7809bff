package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrEmptySession = errors.New("session id is required")
)

const issuer = "agent-commerce"

// Claims binds a token to one shopping session.
type Claims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// SessionTokens issues and validates HS256 session tokens.
type SessionTokens struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewSessionTokens(secretKey string, ttl time.Duration) *SessionTokens {
	return &SessionTokens{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		now:       time.Now,
	}
}

// NewSessionID returns a fresh anonymous session id.
func NewSessionID() string {
	return "sess_" + uuid.NewString()
}

// Issue signs a token for sessionID, minting a new session when it is blank.
func (s *SessionTokens) Issue(sessionID string) (token, id string, expiresAt time.Time, err error) {
	id = strings.TrimSpace(sessionID)
	if id == "" {
		id = NewSessionID()
	}
	now := s.now()
	expiresAt = now.Add(s.ttl)

	claims := Claims{
		SessionID: id,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, id, expiresAt, nil
}

// Validate checks the signature and expiry and returns the session id.
func (s *SessionTokens) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.SessionID == "" {
		return "", ErrEmptySession
	}
	return claims.SessionID, nil
}

func (s *SessionTokens) TTL() time.Duration {
	return s.ttl
}
