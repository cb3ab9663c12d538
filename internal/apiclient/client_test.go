package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tra-cli/tra/internal/auth"
	"github.com/tra-cli/tra/internal/breaker"
	"github.com/tra-cli/tra/internal/cache"
	"github.com/tra-cli/tra/internal/events"
	"github.com/tra-cli/tra/internal/keypool"
	"github.com/tra-cli/tra/internal/model"
	"github.com/tra-cli/tra/internal/ratelimit"
	"github.com/tra-cli/tra/internal/retry"
)

func newTestClient(t *testing.T, tdxHandler http.HandlerFunc) (*Client, *httptest.Server, func(int32)) {
	t.Helper()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		tdxHandler(w, r)
	}))
	t.Cleanup(srv.Close)

	origBaseURL := BaseURL
	BaseURL = srv.URL
	t.Cleanup(func() { BaseURL = origBaseURL })

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	}))
	t.Cleanup(tokenSrv.Close)

	cred := model.Credential{ID: "slot-1", ClientID: "id", ClientSecret: "secret"}
	a := auth.NewWithTokenURL(cred, tokenSrv.Client(), tokenSrv.URL)
	limiter := ratelimit.New(ratelimit.Config{MaxTokens: 50, RefillRatePerSec: 5})

	pool := keypool.New()
	pool.Add(keypool.NewSlot(cred, a, limiter, &events.Bus{}))

	br := breaker.New(breaker.Config{FailureThreshold: 3, SuccessThreshold: 2, OpenTimeout: 50 * time.Millisecond})
	rr := retry.New(retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})

	store := cache.New("")
	c := New(pool, store, br, rr, srv.Client())

	return c, srv, func(want int32) {
		if calls != want {
			t.Fatalf("expected %d upstream calls, got %d", want, calls)
		}
	}
}

func TestGetStationsCachesAfterFirstFetch(t *testing.T) {
	c, srv, assertCalls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Stations":[{"StationID":"1000","StationName":{"Zh_tw":"臺北"},"StationPosition":{"PositionLat":25.0,"PositionLon":121.5}}]}`))
	})
	_ = srv

	stations, err := c.GetStations(context.Background())
	if err != nil {
		t.Fatalf("GetStations: %v", err)
	}
	if len(stations) != 1 || stations[0].Name != "臺北" {
		t.Fatalf("unexpected stations: %+v", stations)
	}

	if _, err := c.GetStations(context.Background()); err != nil {
		t.Fatalf("second GetStations: %v", err)
	}

	assertCalls(1)
}

func TestSimplifyTrainTypeStripsParentheticalSuffix(t *testing.T) {
	got := simplifyTrainType("自強(3000)(EMU3000 型電車)")
	if got != "自強" {
		t.Fatalf("got %q", got)
	}
}

func TestTpassEligibleCodeExcludesEMU3000(t *testing.T) {
	if tpassEligibleCode("3") {
		t.Fatal("expected trainTypeCode 3 (EMU3000) to be TPASS-ineligible")
	}
	if !tpassEligibleCode("1") {
		t.Fatal("expected trainTypeCode 1 to be TPASS-eligible")
	}
}

func TestGetDailyTrainTimetableODReturnsNotFoundOnEmptyList(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"TrainTimetables":[]}`))
	})

	_, err := c.GetDailyTrainTimetableOD(context.Background(), "1000", "1010", "2026-07-30")
	if code, ok := model.CodeOf(err); !ok || code != model.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestFetchClassifiesAuthErrorOn401(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.GetStations(context.Background())
	if code, ok := model.CodeOf(err); !ok || code != model.CodeAuthError {
		t.Fatalf("expected AUTH_ERROR, got %v", err)
	}
}

func TestFetchClassifiesAPIErrorAfterRetriesExhausted(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.GetStations(context.Background())
	if code, ok := model.CodeOf(err); !ok || code != model.CodeAPIError {
		t.Fatalf("expected API_ERROR, got %v", err)
	}
}

func TestLiveEndpointsAreNeverCached(t *testing.T) {
	c, _, assertCalls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})

	if _, err := c.TrainLiveBoard(context.Background(), "123"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := c.TrainLiveBoard(context.Background(), "123"); err != nil {
		t.Fatalf("second call: %v", err)
	}

	assertCalls(2)
}
