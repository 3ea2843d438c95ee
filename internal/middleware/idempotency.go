package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"panelhub/internal/access"
	"panelhub/internal/apperr"
)

const idempotencyHeader = "Idempotency-Key"

// KeyStore remembers idempotency keys for a while.
type KeyStore interface {
	// Claim records key and reports whether it was new.
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type redisKeyStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (s *redisKeyStore) Claim(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+":"+key, "1", s.ttl).Result()
}

func (s *redisKeyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+":"+key).Err()
}

type memoryKeyStore struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ttl    time.Duration
	nextGC time.Time
}

func newMemoryKeyStore(ttl time.Duration) *memoryKeyStore {
	return &memoryKeyStore{
		seen:   make(map[string]time.Time),
		ttl:    ttl,
		nextGC: time.Now().Add(ttl),
	}
}

func (s *memoryKeyStore) Claim(_ context.Context, key string) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.seen[key]; ok && exp.After(now) {
		return false, nil
	}
	s.seen[key] = now.Add(s.ttl)
	if now.After(s.nextGC) {
		for k, exp := range s.seen {
			if exp.Before(now) {
				delete(s.seen, k)
			}
		}
		s.nextGC = now.Add(s.ttl)
	}
	return true, nil
}

func (s *memoryKeyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, key)
	return nil
}

// NewKeyStore builds a Redis key store and falls back to in-memory when Redis
// is not configured or does not answer. The error reports the fallback.
func NewKeyStore(addr, pass string, db int, ttl time.Duration) (KeyStore, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if addr == "" {
		return newMemoryKeyStore(ttl), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return newMemoryKeyStore(ttl), err
	}

	return &redisKeyStore{client: client, prefix: "panelhub:idem", ttl: ttl}, nil
}

// errorKindKey holds the apperr.Kind of an error response on the echo context.
const errorKindKey = "panelhub.error_kind"

// SetErrorKind records the kind of the error a handler answered with.
func SetErrorKind(c echo.Context, kind apperr.Kind) {
	c.Set(errorKindKey, kind)
}

// releasableKinds fail before anything mutating reaches a panel, so the same
// key may be used again once the caller or an administrator fixed the cause.
var releasableKinds = map[apperr.Kind]bool{
	apperr.InvalidInput:              true,
	apperr.Unauthorized:              true,
	apperr.Forbidden:                 true,
	apperr.InsufficientFunds:         true,
	apperr.PlanNotFound:              true,
	apperr.PanelNotFound:             true,
	apperr.TemplateNotFound:          true,
	apperr.NotFound:                  true,
	apperr.PanelNotConfigured:        true,
	apperr.CredentialsNotProvisioned: true,
	apperr.PanelLoginFailed:          true,
}

// releasable decides from the recorded error kind, falling back to the
// status for responses written without one.
func releasable(c echo.Context) bool {
	if kind, ok := c.Get(errorKindKey).(apperr.Kind); ok {
		return releasableKinds[kind]
	}
	switch c.Response().Status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusPaymentRequired,
		http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// Idempotency refuses a repeated Idempotency-Key from the same caller while
// it is remembered. Requests without the header pass through.
func Idempotency(store KeyStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(idempotencyHeader)
			if store == nil || raw == "" {
				return next(c)
			}
			if len(raw) > 128 {
				return deny(c, apperr.InvalidInput, "Idempotency-Key is too long")
			}

			caller, _ := access.FromContext(c.Request().Context())
			key := fmt.Sprintf("%d:%s:%s", caller.ID, c.Path(), raw)
			ctx := c.Request().Context()

			fresh, err := store.Claim(ctx, key)
			if err != nil {
				return next(c)
			}
			if !fresh {
				return deny(c, apperr.Conflict, "request with this Idempotency-Key was already processed")
			}

			err = next(c)
			if err != nil {
				c.Error(err)
				err = nil
			}
			if releasable(c) {
				_ = store.Release(context.WithoutCancel(ctx), key)
			}
			return err
		}
	}
}
