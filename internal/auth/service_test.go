package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tra-cli/tra/internal/model"
)

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	s := New(model.Credential{ID: "slot-1", ClientID: "id", ClientSecret: "secret"}, srv.Client())
	s.cfg.TokenURL = srv.URL

	return s, &calls
}

func tokenResponse(w http.ResponseWriter, expiresIn int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": "tok-abc",
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	})
}

func TestGetTokenFetchesAndCaches(t *testing.T) {
	s, calls := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		tokenResponse(w, 3600)
	})

	tok, err := s.GetToken(context.Background())
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok != "tok-abc" {
		t.Fatalf("got token %q", tok)
	}

	if _, err := s.GetToken(context.Background()); err != nil {
		t.Fatalf("second GetToken: %v", err)
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Fatalf("expected 1 upstream call, got %d", got)
	}
}

func TestGetTokenRefetchesWithinSafetyBuffer(t *testing.T) {
	s, calls := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		// expires_in of 30s is inside the 60s safety buffer, so every
		// call should be treated as needing a refresh.
		tokenResponse(w, 30)
	})

	if _, err := s.GetToken(context.Background()); err != nil {
		t.Fatalf("first GetToken: %v", err)
	}
	if _, err := s.GetToken(context.Background()); err != nil {
		t.Fatalf("second GetToken: %v", err)
	}
	if got := atomic.LoadInt32(calls); got < 2 {
		t.Fatalf("expected a refetch inside the safety buffer, got %d calls", got)
	}
}

func TestGetTokenCoalescesConcurrentCallers(t *testing.T) {
	var mu sync.Mutex
	s, calls := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		tokenResponse(w, 3600)
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.GetToken(context.Background()); err != nil {
				t.Errorf("GetToken: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(calls); got != 1 {
		t.Fatalf("expected concurrent callers to coalesce into 1 upstream call, got %d", got)
	}
}

func TestClearCacheForcesRefetch(t *testing.T) {
	s, calls := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		tokenResponse(w, 3600)
	})

	if _, err := s.GetToken(context.Background()); err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	s.ClearCache()
	if _, err := s.GetToken(context.Background()); err != nil {
		t.Fatalf("GetToken after clear: %v", err)
	}

	if got := atomic.LoadInt32(calls); got != 2 {
		t.Fatalf("expected 2 upstream calls after ClearCache, got %d", got)
	}
}

func TestGetTokenPropagatesAuthError(t *testing.T) {
	s, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := s.GetToken(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if code, ok := model.CodeOf(err); !ok || code != model.CodeAuthError {
		t.Fatalf("expected CodeAuthError, got %v (ok=%v)", code, ok)
	}
}
