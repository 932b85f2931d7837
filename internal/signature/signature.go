// Package signature signs and verifies the JSON bodies exchanged between the
// merchant and payment services.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const HeaderName = "X-Proxy-Signature"

// MaxBodyBytes bounds every signed body read from the wire.
const MaxBodyBytes = 1 << 20

var (
	ErrMissingSecret    = errors.New("shared secret is not configured")
	ErrMissingSignature = errors.New("signature header is missing")
	ErrInvalidSignature = errors.New("signature mismatch")
)

// Sign returns the lowercase hex HMAC-SHA256 of body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over the exact bytes received. An empty
// secret never verifies.
func Verify(received string, body []byte, secret string) bool {
	if secret == "" || received == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(received))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Check is Verify with the reason for rejection.
func Check(received string, body []byte, secret string) error {
	switch {
	case secret == "":
		return ErrMissingSecret
	case received == "":
		return ErrMissingSignature
	case !Verify(received, body, secret):
		return ErrInvalidSignature
	}
	return nil
}

// ReadVerified reads the request body and checks its X-Proxy-Signature.
// The body is returned even when the check fails so callers can log it.
func ReadVerified(r *http.Request, secret string) ([]byte, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	defer r.Body.Close()

	return body, Check(r.Header.Get(HeaderName), body, secret)
}

// SignRequest sets the signature header for an outbound body.
func SignRequest(req *http.Request, body []byte, secret string) error {
	if secret == "" {
		return ErrMissingSecret
	}
	req.Header.Set(HeaderName, Sign(body, secret))
	return nil
}
