// Package app is the composition root: it wires the L0..L5 dependency
// graph described by the component table and exposes the public surface
// CLI collaborators consume (spec.md §6.5). Command dispatch, argument
// parsing, and output formatting stay out of this package — those are
// the CLI layer's job.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tra-cli/tra/internal/alert"
	"github.com/tra-cli/tra/internal/apiclient"
	"github.com/tra-cli/tra/internal/auth"
	"github.com/tra-cli/tra/internal/branchline"
	"github.com/tra-cli/tra/internal/breaker"
	"github.com/tra-cli/tra/internal/cache"
	"github.com/tra-cli/tra/internal/config"
	"github.com/tra-cli/tra/internal/events"
	"github.com/tra-cli/tra/internal/fare"
	"github.com/tra-cli/tra/internal/health"
	"github.com/tra-cli/tra/internal/journey"
	"github.com/tra-cli/tra/internal/keypool"
	"github.com/tra-cli/tra/internal/model"
	"github.com/tra-cli/tra/internal/ratelimit"
	"github.com/tra-cli/tra/internal/retry"
	"github.com/tra-cli/tra/internal/station"
	"github.com/tra-cli/tra/internal/timetable"
)

// App bundles every layer behind the methods §6.5 names.
type App struct {
	apiClient *apiclient.Client
	pool      *keypool.Pool
	breaker   *breaker.Breaker

	stations *station.Resolver
	branches *branchline.Resolver
	transfer *branchline.TransferTimeResolver
	alerts   *alert.Service
	fares    *fare.Calculator
	health   *health.Service
}

// New builds the full dependency graph from cfg and bootstraps the
// read-only reference data (stations, branch-line membership, line
// transfer times) from the live API. Returns a plain error (not a
// *model.Error) when cfg has no usable credentials — that is a CLI
// bootstrap failure, not a core-layer error.
func New(ctx context.Context, cfg *config.Config, httpClient *http.Client) (*App, error) {
	return newWithTokenURL(ctx, cfg, httpClient, auth.TokenURL)
}

// newWithTokenURL is New's actual implementation, taking the OAuth2 token
// endpoint as a parameter so tests can redirect it at a fake server the
// same way internal/apiclient's tests redirect BaseURL.
func newWithTokenURL(ctx context.Context, cfg *config.Config, httpClient *http.Client, tokenURL string) (*App, error) {
	if len(cfg.Credentials) == 0 {
		return nil, fmt.Errorf("tra: no TDX credentials configured (set TDX_CLIENT_ID/TDX_CLIENT_SECRET)")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	bus := &events.Bus{}
	pool := keypool.New()
	for _, cred := range cfg.Credentials {
		a := auth.NewWithTokenURL(cred, httpClient, tokenURL)
		limiter := ratelimit.New(ratelimit.Config{
			MaxTokens:        cfg.Tunables.RateLimitMaxTokens,
			RefillRatePerSec: cfg.Tunables.RateLimitRefillPerSec,
		})
		pool.Add(keypool.NewSlot(cred, a, limiter, bus))
	}

	cacheStore := cache.New(cfg.Tunables.CacheDir)

	br := breaker.New(breaker.Config{
		Bus:              bus,
		FailureThreshold: cfg.Tunables.FailureThreshold,
		SuccessThreshold: cfg.Tunables.BreakerSuccessThreshold,
	})

	rr := retry.New(retry.Config{
		MaxRetries: cfg.Tunables.RetryMaxRetries,
	})

	apiClient := apiclient.New(pool, cacheStore, br, rr, httpClient)

	stations, err := apiClient.GetStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("tra: bootstrapping stations: %w", err)
	}
	stationResolver := station.New(stations, builtinNicknames, builtinCorrections)

	branchResolver, transferResolver, err := bootstrapBranchLines(ctx, apiClient)
	if err != nil {
		return nil, fmt.Errorf("tra: bootstrapping branch-line data: %w", err)
	}

	alertService := alert.New(apiClient.GetStationAlerts)
	fareCalculator := fare.New(tpassStationRegion, tpassRegionBoundaries)
	healthService := health.New(pool, br, bus)

	return &App{
		apiClient: apiClient,
		pool:      pool,
		breaker:   br,
		stations:  stationResolver,
		branches:  branchResolver,
		transfer:  transferResolver,
		alerts:    alertService,
		fares:     fareCalculator,
		health:    healthService,
	}, nil
}

// bootstrapBranchLines fetches the station-of-line payload for each of
// the six branch lines and the line-transfer payload, per spec.md §4.9.
// A branch line's junction is the first station TDX lists for it — the
// point where the branch diverges from the trunk.
func bootstrapBranchLines(ctx context.Context, apiClient *apiclient.Client) (*branchline.Resolver, *branchline.TransferTimeResolver, error) {
	lineStations := make(map[branchline.LineID][]string)
	lineJunctions := make(map[branchline.LineID]string)

	for _, line := range branchline.AllLineIDs {
		ids, err := apiClient.GetStationOfLine(ctx, string(line))
		if err != nil {
			if code, ok := model.CodeOf(err); ok && code == model.CodeNotFound {
				continue
			}
			return nil, nil, err
		}
		if len(ids) == 0 {
			continue
		}
		lineStations[line] = ids
		lineJunctions[line] = ids[0]
	}

	transfers, err := apiClient.GetLineTransfers(ctx)
	if err != nil {
		return nil, nil, err
	}
	pairTimes := make(map[[2]string]int, len(transfers))
	for _, t := range transfers {
		pairTimes[[2]string{t.FromStationID, t.ToStationID}] = t.MinTransferTime
	}

	branchResolver := branchline.New(lineStations, lineJunctions)
	transferResolver := branchline.NewTransferTimeResolver(nil, pairTimes)
	return branchResolver, transferResolver, nil
}

// ResolveStation implements StationResolver.resolve.
func (a *App) ResolveStation(query string) station.Result {
	return a.stations.Resolve(query)
}

// SearchStations implements StationResolver.search.
func (a *App) SearchStations(query string, limit int) []model.Station {
	return a.stations.Search(query, limit)
}

// GetStationByID implements StationResolver.getById.
func (a *App) GetStationByID(id string) (model.Station, bool) {
	return a.stations.GetByID(id)
}

// FindJourneyOptions implements JourneyPlanner.findJourneyOptions: it
// fetches the direct OD segments via the branch-line hybrid strategy,
// and, for whichever endpoint is a branch-line station, also fetches a
// one-transfer route through that branch's junction station, then hands
// both to the planner. A failing transfer-leg fetch is a secondary
// query and is skipped rather than propagated (spec.md §7).
func (a *App) FindJourneyOptions(ctx context.Context, from, to, date string, opts journey.Options) ([]model.JourneyOption, error) {
	direct, err := timetable.QueryOD(ctx, a.apiClient, a.branches, from, to, date)
	if err != nil {
		if code, ok := model.CodeOf(err); !ok || code != model.CodeNotFound {
			return nil, err
		}
		direct = nil
	}

	var legs []journey.TransferLeg
	if leg, ok := a.buildTransferLeg(ctx, from, to, date); ok {
		legs = append(legs, leg)
	}

	if opts.Resolver == nil {
		opts.Resolver = a.transfer
	}
	return journey.Plan(direct, legs, opts), nil
}

func (a *App) buildTransferLeg(ctx context.Context, from, to, date string) (journey.TransferLeg, bool) {
	var junction string
	switch {
	case a.branches.IsBranchLineStation(from):
		if j, ok := a.branches.GetJunctionStation(from); ok {
			junction = j
		}
	case a.branches.IsBranchLineStation(to):
		if j, ok := a.branches.GetJunctionStation(to); ok {
			junction = j
		}
	default:
		return journey.TransferLeg{}, false
	}
	if junction == "" {
		return journey.TransferLeg{}, false
	}

	firstLeg, err := timetable.QueryOD(ctx, a.apiClient, a.branches, from, junction, date)
	if err != nil {
		return journey.TransferLeg{}, false
	}
	secondLeg, err := timetable.QueryOD(ctx, a.apiClient, a.branches, junction, to, date)
	if err != nil {
		return journey.TransferLeg{}, false
	}
	if len(firstLeg) == 0 || len(secondLeg) == 0 {
		return journey.TransferLeg{}, false
	}

	return journey.TransferLeg{TransferStationID: junction, FirstLeg: firstLeg, SecondLeg: secondLeg}, true
}

// SortJourneys implements JourneyPlanner.sortJourneys.
func (a *App) SortJourneys(options []model.JourneyOption, keys ...journey.SortKey) []model.JourneyOption {
	return journey.Sort(options, keys...)
}

// GetActiveAlerts implements AlertService.getActiveAlerts.
func (a *App) GetActiveAlerts(ctx context.Context) ([]model.Alert, error) {
	return a.alerts.GetActiveAlerts(ctx)
}

// IsStationSuspended implements AlertService.isStationSuspended.
func (a *App) IsStationSuspended(ctx context.Context, stationID string) (bool, error) {
	return a.alerts.IsStationSuspended(ctx, stationID)
}

// CheckStations implements AlertService.checkStations.
func (a *App) CheckStations(ctx context.Context, stationIDs []string) (map[string]model.Alert, error) {
	return a.alerts.CheckStations(ctx, stationIDs)
}

// CalculateCrossRegionOptions implements
// TpassFareCalculator.calculateCrossRegionOptions, pricing every lookup
// through ApiClient.GetODFare.
func (a *App) CalculateCrossRegionOptions(ctx context.Context, origin, destination string) ([]model.FareOption, error) {
	return a.fares.CalculateCrossRegionOptions(ctx, origin, destination, a.apiClient.GetODFare)
}

// PerformHealthCheck implements HealthCheckService.performHealthCheck.
func (a *App) PerformHealthCheck() health.Report {
	return a.health.PerformHealthCheck()
}

// GetPoolMetrics implements KeyPool.getMetrics for the metrics command.
func (a *App) GetPoolMetrics() []model.SlotMetrics {
	return a.pool.GetMetrics()
}

// GetPoolCapacity implements KeyPool.getCapacity for the metrics command.
func (a *App) GetPoolCapacity() keypool.Capacity {
	return a.pool.GetCapacity()
}
