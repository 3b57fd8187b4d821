package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrTokenInvalid covers malformed or tampered download tokens.
	ErrTokenInvalid = errors.New("invalid download token")
	// ErrTokenExpired is returned once a token passes its expiry.
	ErrTokenExpired = errors.New("download token expired")
)

// Grant is the payload of a download token.
type Grant struct {
	JobID     string
	Key       string
	ExpiresAt time.Time
}

// SignedURLSigner issues HMAC-SHA256 download tokens for stored artifacts.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner builds a signer. ttl defaults to 24h.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign issues a token granting access to key on behalf of jobID.
func (s *SignedURLSigner) Sign(jobID, key string) (string, Grant, error) {
	if jobID == "" || key == "" {
		return "", Grant{}, fmt.Errorf("sign: job id and key are required")
	}
	if len(s.secret) == 0 {
		return "", Grant{}, fmt.Errorf("sign: secret not configured")
	}
	grant := Grant{JobID: jobID, Key: key, ExpiresAt: s.now().Add(s.ttl).Truncate(time.Second)}
	body := strings.Join([]string{
		jobID,
		strconv.FormatInt(grant.ExpiresAt.Unix(), 10),
		base64.RawURLEncoding.EncodeToString([]byte(key)),
	}, ".")
	return body + "." + s.mac(body), grant, nil
}

// Verify checks the token signature and expiry.
func (s *SignedURLSigner) Verify(token string) (Grant, error) {
	idx := strings.LastIndexByte(token, '.')
	if idx <= 0 {
		return Grant{}, ErrTokenInvalid
	}
	body, sig := token[:idx], token[idx+1:]
	if !hmac.Equal([]byte(sig), []byte(s.mac(body))) {
		return Grant{}, ErrTokenInvalid
	}

	parts := strings.Split(body, ".")
	if len(parts) != 3 {
		return Grant{}, ErrTokenInvalid
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Grant{}, ErrTokenInvalid
	}
	key, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Grant{}, ErrTokenInvalid
	}
	grant := Grant{JobID: parts[0], Key: string(key), ExpiresAt: time.Unix(exp, 0)}
	if s.now().After(grant.ExpiresAt) {
		return grant, ErrTokenExpired
	}
	return grant, nil
}

func (s *SignedURLSigner) mac(body string) string {
	h := hmac.New(sha256.New, s.secret)
	_, _ = h.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
