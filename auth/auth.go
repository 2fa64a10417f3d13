// Package auth gates who may change site content: a single configured admin
// identity checked with bcrypt, a persisted session flag, a login throttle
// and signed tokens for the admin API.
package auth

import (
	"context"
	"crypto/subtle"
	"math"
	"sync"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/stevemurr/site-content-server/store"
)

const (
	// SessionKey is the session collection key holding the admin flag.
	SessionKey = "isAdminAuthenticated"
	// SessionIDKey holds the id of the current login. Tokens carry it as
	// their jti and stop working once it changes or is removed.
	SessionIDKey = "adminSessionId"

	DefaultUsername = "admin"
	DefaultPassword = "admin123"

	CooldownCapSeconds = 30
	DefaultTokenTTL    = 12 * time.Hour

	// maxThrottled bounds the number of usernames tracked by the throttle.
	maxThrottled = 1024

	// RoleAdmin is the role claim of issued tokens.
	RoleAdmin = "admin"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrThrottled          = errors.New("too many failed login attempts")
)

// ThrottleError tells the caller how long to wait before trying again.
type ThrottleError struct {
	Wait time.Duration
}

func (e *ThrottleError) Error() string {
	return "too many failed login attempts, retry in " + e.Wait.Round(time.Second).String()
}

func (e *ThrottleError) Unwrap() error { return ErrThrottled }

// Config describes the admin identity and token settings. An empty
// PasswordHash falls back to the development identity admin/admin123 and an
// empty TokenSecret to a random per-process secret.
type Config struct {
	Username     string
	PasswordHash string
	TokenSecret  string
	TokenTTL     time.Duration
}

type throttle struct {
	failCount     int
	cooldownUntil time.Time
}

// Service authenticates the admin and owns the session flag.
type Service struct {
	kv       store.Store
	username string
	hash     []byte
	tokens   *jwtauth.JWTAuth
	ttl      time.Duration
	now      func() time.Time

	mu        sync.Mutex
	throttles map[string]*throttle
}

func New(kv store.Store, cfg Config) (*Service, error) {
	if cfg.Username == "" {
		cfg.Username = DefaultUsername
	}
	if cfg.PasswordHash == "" {
		h, err := HashPassword(DefaultPassword)
		if err != nil {
			return nil, err
		}
		cfg.PasswordHash = h
	}
	if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
		return nil, errors.Wrap(err, "admin password hash is not a bcrypt hash")
	}
	if cfg.TokenSecret == "" {
		cfg.TokenSecret = uuid.NewString() + uuid.NewString()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &Service{
		kv:        kv,
		username:  cfg.Username,
		hash:      []byte(cfg.PasswordHash),
		tokens:    jwtauth.New("HS256", []byte(cfg.TokenSecret), nil),
		ttl:       cfg.TokenTTL,
		now:       time.Now,
		throttles: make(map[string]*throttle),
	}, nil
}

// HashPassword returns the bcrypt hash to put in ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "could not hash password")
	}
	return string(h), nil
}

// Authenticate reports whether username and password match the configured
// admin. It has no side effects.
func (s *Service) Authenticate(ctx context.Context, username, password string) bool {
	if ctx.Err() != nil {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(s.hash, []byte(password)) == nil
	return userOK && passOK
}

// IsAuthenticated reads the persisted session flag. A storage error reads
// as signed out.
func (s *Service) IsAuthenticated() bool {
	v, ok, err := s.kv.GetItem(store.CollectionSession, SessionKey)
	return err == nil && ok && v == "true"
}

// SetAuthenticated writes or clears the session flag.
func (s *Service) SetAuthenticated(v bool) error {
	if !v {
		_, err := s.kv.RemoveItem(store.CollectionSession, SessionKey)
		return errors.Wrap(err, "could not clear session")
	}
	return errors.Wrap(s.kv.SetItem(store.CollectionSession, SessionKey, "true"), "could not save session")
}

// Logout clears the session flag and ends the current login, which revokes
// every token issued for it.
func (s *Service) Logout() error {
	if _, err := s.kv.RemoveItem(store.CollectionSession, SessionIDKey); err != nil {
		return errors.Wrap(err, "could not end session")
	}
	return s.SetAuthenticated(false)
}

// Login checks the throttle, authenticates, starts a new session and returns
// a signed admin token for it. Tokens of an earlier login stop working.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	if wait := s.WaitFor(username); wait > 0 {
		return "", &ThrottleError{Wait: wait}
	}
	if !s.Authenticate(ctx, username, password) {
		s.recordFailure(username)
		return "", ErrInvalidCredentials
	}
	s.recordSuccess(username)
	if err := s.kv.SetItem(store.CollectionSession, SessionIDKey, uuid.NewString()); err != nil {
		return "", errors.Wrap(err, "could not start session")
	}
	if err := s.SetAuthenticated(true); err != nil {
		return "", err
	}
	return s.IssueToken(username)
}

// Active reports whether sessionID names the current login. A storage error
// reads as inactive.
func (s *Service) Active(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	current, ok, err := s.kv.GetItem(store.CollectionSession, SessionIDKey)
	if err != nil || !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sessionID), []byte(current)) == 1
}

// WaitFor returns how long username must wait before the next attempt.
func (s *Service) WaitFor(username string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.throttles[username]
	if !ok {
		return 0
	}
	if d := t.cooldownUntil.Sub(s.now()); d > 0 {
		return d
	}
	return 0
}

func (s *Service) recordFailure(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.throttles[username]
	if !ok {
		if len(s.throttles) >= maxThrottled {
			s.evictLocked()
		}
		t = &throttle{}
		s.throttles[username] = t
	}
	t.failCount++
	t.cooldownUntil = s.now().Add(time.Duration(CooldownSecondsForFailCount(t.failCount)) * time.Second)
}

// evictLocked drops usernames whose cooldown has passed. When every entry is
// still cooling down it drops the one that frees up first.
func (s *Service) evictLocked() {
	now := s.now()
	var (
		soonest     string
		soonestTime time.Time
	)
	for name, t := range s.throttles {
		if !t.cooldownUntil.After(now) {
			delete(s.throttles, name)
			continue
		}
		if soonest == "" || t.cooldownUntil.Before(soonestTime) {
			soonest, soonestTime = name, t.cooldownUntil
		}
	}
	if len(s.throttles) >= maxThrottled && soonest != "" {
		delete(s.throttles, soonest)
	}
}

func (s *Service) recordSuccess(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.throttles, username)
}

// CooldownSecondsForFailCount returns min(30, 2^failCount).
func CooldownSecondsForFailCount(failCount int) int {
	secs := math.Pow(2, float64(failCount))
	if secs > CooldownCapSeconds {
		return CooldownCapSeconds
	}
	return int(secs)
}

// IssueToken signs an admin token for username bound to the current
// session. Without a session the token verifies but is never Active.
func (s *Service) IssueToken(username string) (string, error) {
	claims := map[string]interface{}{"sub": username, "role": RoleAdmin}
	if sid, ok, err := s.kv.GetItem(store.CollectionSession, SessionIDKey); err == nil && ok {
		claims["jti"] = sid
	}
	jwtauth.SetIssuedNow(claims)
	jwtauth.SetExpiry(claims, s.now().Add(s.ttl))
	_, token, err := s.tokens.Encode(claims)
	if err != nil {
		return "", errors.Wrap(err, "could not sign token")
	}
	return token, nil
}

// TokenAuth is used by the HTTP layer to verify admin tokens.
func (s *Service) TokenAuth() *jwtauth.JWTAuth { return s.tokens }
