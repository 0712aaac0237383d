package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type unreachableRepo struct {
	memRepo
}

func (r *unreachableRepo) Ping(_ context.Context) error {
	return errors.New("database unreachable")
}

func TestHealth_OK(t *testing.T) {
	h := NewHealthHandler(&memRepo{}, 0)

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	h := NewHealthHandler(&unreachableRepo{}, 0)

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}
