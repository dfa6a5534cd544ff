package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestPoolAllowsBurstPerKey(t *testing.T) {
	p := NewPool(0.001, 2)
	defer p.Shutdown()

	if !p.Allow("a") || !p.Allow("a") {
		t.Fatal("Expected the burst to be allowed")
	}
	if p.Allow("a") {
		t.Error("Expected the third request to be limited")
	}
	if !p.Allow("b") {
		t.Error("Expected a different key to have its own bucket")
	}
}

func TestNewPoolDefaults(t *testing.T) {
	p := NewPool(0, 0)
	defer p.Shutdown()

	if p.rps != DefaultRPS || p.burst != DefaultBurst {
		t.Errorf("Expected defaults %d/%d, got %v/%d", DefaultRPS, DefaultBurst, p.rps, p.burst)
	}
}

func TestPrune(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Shutdown()

	now := time.Now()
	p.now = func() time.Time { return now }
	p.Allow("old")

	now = now.Add(11 * time.Minute)
	p.Allow("fresh")
	p.prune()

	if p.Len() != 1 {
		t.Errorf("Expected only the fresh key to remain, got %d", p.Len())
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p := NewPool(0.001, 1)
	defer p.Shutdown()

	rejected := 0
	r := gin.New()
	r.POST("/login", Middleware(p, func() { rejected++ }), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest("POST", "/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes[i] = w.Code
	}

	if codes[0] != http.StatusOK {
		t.Errorf("Expected first request to pass, got %d", codes[0])
	}
	if codes[1] != http.StatusTooManyRequests || codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected later requests to be limited, got %v", codes)
	}
	if rejected != 2 {
		t.Errorf("Expected 2 rejections reported, got %d", rejected)
	}
}
