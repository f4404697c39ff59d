package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/iudanet/keywitness/pkg/api"
)

// RateLimiter считает запросы по ключу (IP клиента) в фиксированном окне.
// Проверка Ed25519-подписи дешевая, а вот signup и login парсят
// Argon2-конверт и пишут аккаунт - их прикрывают жесткие персональные
// лимиты против перебора username и спама регистрациями
type RateLimiter struct {
	counters map[string]*ipCounter
	logger   *slog.Logger
	cleanupC chan struct{}
	rate     int
	window   time.Duration
	mu       sync.RWMutex
}

// ipCounter - остаток лимита одного клиента в текущем окне
type ipCounter struct {
	windowStart time.Time
	remaining   int
	mu          sync.Mutex
}

// NewRateLimiter создает limiter: rate запросов на окно window для каждого IP
func NewRateLimiter(rate int, window time.Duration, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		counters: make(map[string]*ipCounter),
		rate:     rate,
		window:   window,
		logger:   logger,
		cleanupC: make(chan struct{}),
	}

	// Счетчики ушедших клиентов выбрасываются в фоне
	go rl.cleanupLoop()

	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.dropStale()
		case <-rl.cleanupC:
			return
		}
	}
}

// dropStale удаляет счетчики, не видевшие запросов два окна подряд
func (rl *RateLimiter) dropStale() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, c := range rl.counters {
		c.mu.Lock()
		if now.Sub(c.windowStart) > rl.window*2 {
			delete(rl.counters, key)
		}
		c.mu.Unlock()
	}
}

// Stop останавливает cleanup goroutine
func (rl *RateLimiter) Stop() {
	close(rl.cleanupC)
}

// Allow списывает один запрос с лимита ключа
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.RLock()
	c, exists := rl.counters[key]
	rl.mu.RUnlock()

	if !exists {
		c = &ipCounter{
			remaining:   rl.rate,
			windowStart: time.Now(),
		}
		rl.mu.Lock()
		// Параллельный запрос мог успеть первым
		if existing, ok := rl.counters[key]; ok {
			c = existing
		} else {
			rl.counters[key] = c
		}
		rl.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Новое окно - лимит восстанавливается целиком
	if time.Since(c.windowStart) >= rl.window {
		c.remaining = rl.rate
		c.windowStart = time.Now()
	}

	if c.remaining > 0 {
		c.remaining--
		return true
	}
	return false
}

// PathRateLimit - персональный лимит для одного пути
type PathRateLimit struct {
	Path   string
	Rate   int
	Window time.Duration
}

// RateLimitByPathMiddleware ограничивает частоту запросов по IP клиента.
// Пути из limits (signup, login) получают собственные limiters,
// остальной API делит дефолтный
func RateLimitByPathMiddleware(limits []PathRateLimit, defaultRate int, defaultWindow time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	limiters := make(map[string]*RateLimiter, len(limits))
	for _, limit := range limits {
		limiters[limit.Path] = NewRateLimiter(limit.Rate, limit.Window, logger)
	}
	defaultLimiter := NewRateLimiter(defaultRate, defaultWindow, logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter, ok := limiters[r.URL.Path]
			if !ok {
				limiter = defaultLimiter
			}

			key := clientIP(r)
			if !limiter.Allow(key) {
				logger.Warn("rate limit exceeded",
					"ip", key,
					"method", r.Method,
					"path", r.URL.Path,
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "rate limit exceeded, please try again later"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP - ключ лимита: первый адрес X-Forwarded-For, потом X-Real-IP,
// потом RemoteAddr, если прокси не представился
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
