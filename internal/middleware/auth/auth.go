// Package auth carries the identity established upstream into the request
// context. It never logs users in.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	userIDKey    contextKey = "user_id"
	sessionIDKey contextKey = "session_id"

	// UserCookie holds a signed user id issued after a trusted header login.
	UserCookie = "entrate_uid"
	// SessionCookie holds the uuid keying per-session view state.
	SessionCookie = "entrate_sid"
)

// Config selects where the user id comes from.
type Config struct {
	// TrustHeader enables reading UserHeader. Only enable it behind a proxy
	// that strips the header from client requests.
	TrustHeader bool
	UserHeader  string
	// TrustedPeer reports whether the direct peer may set UserHeader. Nil
	// accepts any peer.
	TrustedPeer func(*http.Request) bool
	// CookieSecret signs UserCookie. When empty the cookie is neither read
	// nor issued.
	CookieSecret []byte
	Secure       bool
}

// Middleware resolves the user id and the session id of each request.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if uid := resolveUser(cfg, w, r); uid != "" {
				ctx = WithUserID(ctx, uid)
			}
			ctx = WithSessionID(ctx, ensureSession(cfg, w, r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveUser(cfg Config, w http.ResponseWriter, r *http.Request) string {
	if cfg.TrustHeader && cfg.UserHeader != "" && (cfg.TrustedPeer == nil || cfg.TrustedPeer(r)) {
		if uid := strings.TrimSpace(r.Header.Get(cfg.UserHeader)); uid != "" {
			issueUserCookie(cfg, w, r, uid)
			return uid
		}
	}
	if len(cfg.CookieSecret) == 0 {
		return ""
	}
	c, err := r.Cookie(UserCookie)
	if err != nil {
		return ""
	}
	uid, ok := VerifyUser(cfg.CookieSecret, c.Value)
	if !ok {
		return ""
	}
	return uid
}

func issueUserCookie(cfg Config, w http.ResponseWriter, r *http.Request, uid string) {
	if len(cfg.CookieSecret) == 0 {
		return
	}
	value := SignUser(cfg.CookieSecret, uid)
	if c, err := r.Cookie(UserCookie); err == nil && c.Value == value {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     UserCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SignUser returns the cookie value for userID: the base64url encoded id
// and its HMAC-SHA256, joined by a dot.
func SignUser(secret []byte, userID string) string {
	id := base64.RawURLEncoding.EncodeToString([]byte(userID))
	return id + "." + base64.RawURLEncoding.EncodeToString(mac(secret, id))
}

// VerifyUser returns the user id carried by value if its signature matches.
func VerifyUser(secret []byte, value string) (string, bool) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || !hmac.Equal(got, mac(secret, id)) {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", false
	}
	uid := strings.TrimSpace(string(raw))
	return uid, uid != ""
}

func mac(secret []byte, msg string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(msg))
	return h.Sum(nil)
}

func ensureSession(cfg Config, w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	sid := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithSessionID returns a copy of ctx carrying sessionID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// UserID returns the authenticated user id, or nil when there is none.
func UserID(ctx context.Context) *string {
	if uid, ok := ctx.Value(userIDKey).(string); ok && uid != "" {
		return &uid
	}
	return nil
}

// SessionID returns the session id, or "" outside the middleware.
func SessionID(ctx context.Context) string {
	sid, _ := ctx.Value(sessionIDKey).(string)
	return sid
}
