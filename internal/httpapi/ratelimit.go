package httpapi

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/go-chi/chi/v5"
)

// MeshRateLimiter throttles mutating requests per mesh name rather
// than per client, since the scarce resource being protected is a
// mesh's filesystem subtree and its mutex, not the caller's identity.
type MeshRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
	lastSeen map[string]time.Time
}

// NewMeshRateLimiter returns a limiter allowing rps sustained requests
// per second per mesh, with the given burst allowance.
func NewMeshRateLimiter(rps float64, burst int) *MeshRateLimiter {
	rl := &MeshRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go rl.evictStale()
	return rl
}

func (rl *MeshRateLimiter) limiterFor(mesh string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[mesh]
	if !ok {
		l = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[mesh] = l
	}
	rl.lastSeen[mesh] = time.Now()
	return l
}

func (rl *MeshRateLimiter) evictStale() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		for mesh, seen := range rl.lastSeen {
			if time.Since(seen) > 10*time.Minute {
				delete(rl.limiters, mesh)
				delete(rl.lastSeen, mesh)
			}
		}
		rl.mu.Unlock()
	}
}

// Middleware rejects requests with 429 once a mesh's token bucket is
// exhausted. The mesh name is read from the chi URL parameter "mesh".
func (rl *MeshRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mesh := chi.URLParam(r, "mesh")
		if mesh == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !rl.limiterFor(mesh).Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded for mesh"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
