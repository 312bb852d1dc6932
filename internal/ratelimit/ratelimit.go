// Package ratelimit пропускает или отклоняет запрос до обработчика.
package ratelimit

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Decision ответ шлюза.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds int
}

type Gate interface {
	Check(ctx context.Context, key string) (Decision, error)
}

const maxIdleKeys = 10000

// TokenBucket отдельное ведро на каждый ключ.
type TokenBucket struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
	now     func() time.Time
}

func NewTokenBucket(perSecond float64, burst int) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
		now:     time.Now,
	}
}

func (tb *TokenBucket) Check(ctx context.Context, key string) (Decision, error) {
	now := tb.now()
	lim := tb.bucket(key)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, RetryAfterSeconds: 1}, nil
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return Decision{Allowed: true}, nil
	}
	r.CancelAt(now)
	return Decision{Allowed: false, RetryAfterSeconds: int(math.Ceil(delay.Seconds()))}, nil
}

func (tb *TokenBucket) bucket(key string) *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if lim, ok := tb.buckets[key]; ok {
		return lim
	}
	if len(tb.buckets) >= maxIdleKeys {
		// полные вёдра ничего не помнят, их можно выбросить
		for k, lim := range tb.buckets {
			if lim.TokensAt(tb.now()) >= float64(tb.burst) {
				delete(tb.buckets, k)
			}
		}
	}
	lim := rate.NewLimiter(tb.limit, tb.burst)
	tb.buckets[key] = lim
	return lim
}

// ClientIP ключ по адресу клиента; RealIP middleware уже подставил его в RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware отвечает 429 с Retry-After, если шлюз отказал. Ошибка шлюза запрос не блокирует.
func Middleware(gate Gate, log logrus.FieldLogger, key func(*http.Request) string) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := gate.Check(r.Context(), key(r))
			if err != nil {
				log.WithError(err).Warn("rate limit check failed")
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				retry := decision.RetryAfterSeconds
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
