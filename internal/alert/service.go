// Package alert implements AlertService from spec.md §4.12: on-demand
// fetch and normalize of service alerts, with a 1-hour in-memory-only
// cache layered in front of ApiClient's own (uncached) raw fetch, and a
// fixed-pattern alternative-transport extractor.
package alert

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/tra-cli/tra/internal/apiclient"
	"github.com/tra-cli/tra/internal/model"
)

const cacheTTL = time.Hour

// activeStatus is the upstream status code meaning "currently active"
// (spec.md §4.12).
const activeStatus = 2

// Fetcher is satisfied by apiclient.Client.GetStationAlerts.
type Fetcher func(ctx context.Context) ([]apiclient.AlertRecord, error)

// Service fetches, normalizes, and caches service alerts.
type Service struct {
	fetch Fetcher

	mu        sync.Mutex
	cached    []model.Alert
	cachedAt  time.Time
}

// New builds a Service backed by fetch.
func New(fetch Fetcher) *Service {
	return &Service{fetch: fetch}
}

// GetActiveAlerts returns the normalized, active-only alert list, using
// the 1-hour in-memory cache when still fresh.
func (s *Service) GetActiveAlerts(ctx context.Context) ([]model.Alert, error) {
	s.mu.Lock()
	if s.cached != nil && time.Since(s.cachedAt) < cacheTTL {
		defer s.mu.Unlock()
		return s.cached, nil
	}
	s.mu.Unlock()

	raw, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	alerts := normalize(raw)

	s.mu.Lock()
	s.cached = alerts
	s.cachedAt = time.Now()
	s.mu.Unlock()

	return alerts, nil
}

func normalize(raw []apiclient.AlertRecord) []model.Alert {
	var out []model.Alert
	for _, r := range raw {
		if r.Status != activeStatus {
			continue
		}

		stationIDs := make(map[string]struct{}, len(r.AffectedStationIDs))
		for _, id := range r.AffectedStationIDs {
			stationIDs[id] = struct{}{}
		}
		lineIDs := make(map[string]struct{}, len(r.AffectedLineIDs))
		for _, id := range r.AffectedLineIDs {
			lineIDs[id] = struct{}{}
		}

		out = append(out, model.Alert{
			ID:                   r.AlertID,
			Title:                r.Title,
			Description:          r.Description,
			Status:               model.AlertActive,
			AffectedStationIDs:   stationIDs,
			AffectedLineIDs:      lineIDs,
			AlternativeTransport: parseAlternativeTransport(r.Description),
		})
	}
	return out
}

// IsStationSuspended reports whether id is affected by any currently
// active alert.
func (s *Service) IsStationSuspended(ctx context.Context, id string) (bool, error) {
	alerts, err := s.GetActiveAlerts(ctx)
	if err != nil {
		return false, err
	}
	for _, a := range alerts {
		if _, ok := a.AffectedStationIDs[id]; ok {
			return true, nil
		}
	}
	return false, nil
}

// CheckStations returns the active alert affecting each of ids that has
// one, keyed by station id.
func (s *Service) CheckStations(ctx context.Context, ids []string) (map[string]model.Alert, error) {
	alerts, err := s.GetActiveAlerts(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.Alert)
	for _, id := range ids {
		for _, a := range alerts {
			if _, ok := a.AffectedStationIDs[id]; ok {
				out[id] = a
				break
			}
		}
	}
	return out, nil
}

// alternativeTransportPatterns is the fixed set of regexes used to pull
// an advisory substitute-transport phrase out of CJK alert descriptions
// (spec.md §4.12). Best-effort and non-authoritative.
var alternativeTransportPatterns = []*regexp.Regexp{
	regexp.MustCompile(`請改搭(.{1,10}?)(?:前往|替代|。|$)`),
	regexp.MustCompile(`建議搭乘(.{1,10}?)(?:前往|替代|。|$)`),
	regexp.MustCompile(`以(.{1,10}?)接駁`),
}

// parseAlternativeTransport extracts a substitute-transport phrase from
// description using a small fixed pattern set; returns "" if none match.
func parseAlternativeTransport(description string) string {
	for _, re := range alternativeTransportPatterns {
		if m := re.FindStringSubmatch(description); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}
