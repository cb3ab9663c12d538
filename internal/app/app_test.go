package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tra-cli/tra/internal/apiclient"
	"github.com/tra-cli/tra/internal/config"
	"github.com/tra-cli/tra/internal/health"
	"github.com/tra-cli/tra/internal/model"
)

const fixtureStations = `{"Stations":[
	{"StationID":"1000","StationName":{"Zh_tw":"臺北"},"StationPosition":{"PositionLat":25.04,"PositionLon":121.51}},
	{"StationID":"1150","StationName":{"Zh_tw":"新竹"},"StationPosition":{"PositionLat":24.80,"PositionLon":120.97}}
]}`

const fixtureStationOfLine = `{"StationOfLines":[
	{"LineID":"PX","Stations":[{"StationID":"0900"},{"StationID":"0910"},{"StationID":"0920"}]}
]}`

const fixtureLineTransfers = `{"LineTransfers":[
	{"FromStationID":"0900","ToStationID":"0910","MinTransferTime":8}
]}`

func newTestApp(t *testing.T) *App {
	t.Helper()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	}))
	t.Cleanup(tokenSrv.Close)

	tdxSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(r.URL.Path, "StationOfLine"):
			_, _ = w.Write([]byte(fixtureStationOfLine))
		case strings.Contains(r.URL.Path, "LineTransfer"):
			_, _ = w.Write([]byte(fixtureLineTransfers))
		case strings.Contains(r.URL.Path, "/Station"):
			_, _ = w.Write([]byte(fixtureStations))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(tdxSrv.Close)

	origBaseURL := apiclient.BaseURL
	apiclient.BaseURL = tdxSrv.URL
	t.Cleanup(func() { apiclient.BaseURL = origBaseURL })

	cfg := &config.Config{
		Credentials: []model.Credential{{ID: "1", ClientID: "id", ClientSecret: "secret"}},
	}

	a, err := newWithTokenURL(context.Background(), cfg, tokenSrv.Client(), tokenSrv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNewBootstrapsStationsAndBranchLines(t *testing.T) {
	a := newTestApp(t)

	result := a.ResolveStation("臺北")
	if !result.Success {
		t.Fatalf("expected to resolve 臺北, got %+v", result)
	}

	if !a.branches.IsBranchLineStation("0910") {
		t.Fatal("expected 0910 to be recognized as a branch-line station")
	}
}

func TestGetPoolCapacityInvariant(t *testing.T) {
	a := newTestApp(t)
	capacity := a.GetPoolCapacity()
	if capacity.Available > capacity.Max {
		t.Fatalf("expected available <= max, got %+v", capacity)
	}
}

func TestPerformHealthCheckReportsHealthy(t *testing.T) {
	a := newTestApp(t)
	report := a.PerformHealthCheck()
	if report.Overall != health.Healthy {
		t.Fatalf("expected overall status %q, got %+v", health.Healthy, report)
	}
}

func TestMissingCredentialsIsAnError(t *testing.T) {
	_, err := New(context.Background(), &config.Config{}, nil)
	if err == nil {
		t.Fatal("expected an error with no configured credentials")
	}
}
