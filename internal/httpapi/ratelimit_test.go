package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestMeshRateLimiter_AllowsBurstThenRejects(t *testing.T) {
	rl := NewMeshRateLimiter(1, 2)

	r := chi.NewRouter()
	r.With(rl.Middleware).Get("/mesh/{mesh}/x", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	codes := make([]int, 4)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/mesh/gizmo/x", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		codes[i] = rec.Code
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
	assert.Equal(t, http.StatusTooManyRequests, codes[3])
}

func TestMeshRateLimiter_DistinctMeshesIndependent(t *testing.T) {
	rl := NewMeshRateLimiter(1, 1)

	r := chi.NewRouter()
	r.With(rl.Middleware).Get("/mesh/{mesh}/x", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req1 := httptest.NewRequest(http.MethodGet, "/mesh/a/x", nil)
	rec1 := httptest.NewRecorder()
	r.ServeHTTP(rec1, req1)

	req2 := httptest.NewRequest(http.MethodGet, "/mesh/b/x", nil)
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req2)

	assert.Equal(t, http.StatusOK, rec1.Code)
	assert.Equal(t, http.StatusOK, rec2.Code)
}
