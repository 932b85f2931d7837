package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const FrameTokenCookie = "frame_token"

var ErrInvalidFrameToken = errors.New("invalid frame token")

// FrameClaims binds a card frame session to the amount quoted by the merchant.
type FrameClaims struct {
	EntryID  int64  `json:"entry_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	jwt.RegisteredClaims
}

type FrameTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewFrameTokens(secret string, ttl time.Duration) *FrameTokens {
	return &FrameTokens{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (t *FrameTokens) Issue(entryID, amount int64, currency string) (string, error) {
	if len(t.secret) == 0 {
		return "", errors.New("frame token secret is empty")
	}

	now := t.now()
	claims := FrameClaims{
		EntryID:  entryID,
		Amount:   amount,
		Currency: currency,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(entryID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign frame token: %w", err)
	}
	return signed, nil
}

func (t *FrameTokens) Parse(raw string) (*FrameClaims, error) {
	if raw == "" {
		return nil, ErrInvalidFrameToken
	}

	claims := &FrameClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrameToken, err)
	}
	if claims.EntryID <= 0 || claims.Amount <= 0 || claims.Currency == "" {
		return nil, ErrInvalidFrameToken
	}
	return claims, nil
}

func ExtractFrameToken(r *http.Request) string {
	if cookie, err := r.Cookie(FrameTokenCookie); err == nil {
		if cookie.Value != "" {
			return cookie.Value
		}
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
