// Package fare implements TpassFareCalculator from spec.md §4.13: for a
// cross-region trip, it enumerates the home region's boundary stations,
// prices the direct fare and each boundary-split fare through an
// injected fare lookup, and returns a sorted set of FareOptions.
package fare

import (
	"context"
	"sort"

	"github.com/tra-cli/tra/internal/model"
)

// GetFare prices a single origin/destination pair, typically backed by
// apiclient.Client.GetODFare.
type GetFare func(ctx context.Context, from, to string) (int, error)

// Calculator holds the station-to-region membership and each region's
// boundary stations, loaded once at startup.
type Calculator struct {
	stationRegion    map[string]string
	regionBoundaries map[string][]string
}

// New builds a Calculator. stationRegion maps a station id to its region
// id; regionBoundaries maps a region id to the ordered list of its
// boundary station ids.
func New(stationRegion map[string]string, regionBoundaries map[string][]string) *Calculator {
	return &Calculator{stationRegion: stationRegion, regionBoundaries: regionBoundaries}
}

// CalculateCrossRegionOptions returns the sorted FareOption set for a
// trip from origin to destination, using getFare for every price lookup.
func (c *Calculator) CalculateCrossRegionOptions(ctx context.Context, origin, destination string, getFare GetFare) ([]model.FareOption, error) {
	originRegion, ok := c.stationRegion[origin]
	if !ok {
		return nil, model.New(model.CodeBadInput, "unknown region for origin station "+origin)
	}
	destRegion, ok := c.stationRegion[destination]
	if !ok {
		return nil, model.New(model.CodeBadInput, "unknown region for destination station "+destination)
	}

	directFare, err := getFare(ctx, origin, destination)
	if err != nil {
		return nil, err
	}

	if originRegion == destRegion {
		return []model.FareOption{{
			Type:        model.FareTpassFree,
			TotalFare:   0,
			Savings:     directFare,
			Recommended: true,
		}}, nil
	}

	options := []model.FareOption{{
		Type:      model.FareDirect,
		TotalFare: directFare,
		Savings:   0,
	}}

	for _, boundary := range c.regionBoundaries[originRegion] {
		partialFare, err := getFare(ctx, boundary, destination)
		if err != nil {
			// Secondary query for one boundary station; skip it and keep
			// evaluating the rest (spec.md's propagation policy).
			continue
		}
		options = append(options, model.FareOption{
			Type:              model.FareTpassPartial,
			TransferStationID: boundary,
			TotalFare:         partialFare,
			Savings:           directFare - partialFare,
		})
	}

	markRecommended(options)
	sortOptions(options)
	return options, nil
}

// markRecommended flags the option with the minimum TotalFare, breaking
// ties in favour of tpass_partial over direct.
func markRecommended(options []model.FareOption) {
	best := -1
	for i, o := range options {
		if best == -1 {
			best = i
			continue
		}
		if o.TotalFare < options[best].TotalFare {
			best = i
			continue
		}
		if o.TotalFare == options[best].TotalFare &&
			o.Type == model.FareTpassPartial && options[best].Type != model.FareTpassPartial {
			best = i
		}
	}
	if best >= 0 {
		options[best].Recommended = true
	}
}

// sortOptions orders ascending by TotalFare, keeping the recommended
// option's relative ranking stable alongside it.
func sortOptions(options []model.FareOption) {
	sort.SliceStable(options, func(i, j int) bool {
		return options[i].TotalFare < options[j].TotalFare
	})
}
