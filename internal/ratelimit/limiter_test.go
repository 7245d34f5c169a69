package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ab-caller/internal/auth"

	"github.com/gin-gonic/gin"
)

type countingLimiter struct {
	mu       sync.Mutex
	limit    int
	inFlight map[string]int
	released []string
	err      error
}

func (l *countingLimiter) Acquire(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.inFlight[key] >= l.limit {
		return false, nil
	}
	l.inFlight[key]++
	return true, nil
}

func (l *countingLimiter) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight[key]--
	l.released = append(l.released, key)
	return nil
}

func newRouter(l Limiter, handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/x", func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "op-1", "operator"))
		c.Next()
	}, LimitDispatch(l), handler)
	return r
}

func TestLimitDispatch_ReleasesSlot(t *testing.T) {
	l := &countingLimiter{limit: 1, inFlight: map[string]int{}}
	r := newRouter(l, func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
	if len(l.released) != 2 || l.released[0] != "op-1" {
		t.Fatalf("expected slots released per request, got %v", l.released)
	}
}

func TestLimitDispatch_RejectsOverLimit(t *testing.T) {
	l := &countingLimiter{limit: 1, inFlight: map[string]int{"op-1": 1}}
	r := newRouter(l, func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestLimitDispatch_FailsOpen(t *testing.T) {
	l := &countingLimiter{limit: 1, inFlight: map[string]int{}, err: errors.New("redis down")}
	r := newRouter(l, func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 when limiter errors, got %d", w.Code)
	}
}

func TestNewRedisLimiter_Validates(t *testing.T) {
	if _, err := NewRedisLimiter(nil, 1, time.Second); !errors.Is(err, ErrInvalidLimiter) {
		t.Fatalf("expected ErrInvalidLimiter, got %v", err)
	}
}

func TestNoop(t *testing.T) {
	ok, err := Noop{}.Acquire(context.Background(), "k")
	if !ok || err != nil {
		t.Fatalf("expected noop acquire to succeed")
	}
}
