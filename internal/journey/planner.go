// Package journey implements JourneyPlanner from spec.md §4.10: composing
// direct and one-transfer itineraries from a set of JourneySegments,
// applying the overnight rule to wait-time arithmetic across midnight.
package journey

import (
	"sort"
	"strconv"
	"strings"

	"github.com/tra-cli/tra/internal/model"
)

// TransferLeg is one candidate transfer point: every segment arriving at
// transferStationID (firstLeg) paired against every segment departing
// from it (secondLeg).
type TransferLeg struct {
	TransferStationID string
	FirstLeg          []model.JourneySegment
	SecondLeg         []model.JourneySegment
}

// TransferTimeResolver supplies a per-station minimum transfer time; if
// nil, Options.MinTransferTime is used for every station.
type TransferTimeResolver interface {
	GetMinTransferTime(stationID string) int
}

// SortKey picks the ascending sort field for Plan's output.
type SortKey string

const (
	SortByTransfers SortKey = "transfers"
	SortByDuration  SortKey = "duration"
	SortByDeparture SortKey = "departure"
	SortByArrival   SortKey = "arrival"
)

// Options configures one Plan call.
type Options struct {
	MinTransferTime int
	MaxTransferTime int
	Resolver        TransferTimeResolver
	SortKeys        []SortKey // applied in order; defaults to spec.md §4.10's {transfers, duration, departure, arrival}
}

func (o Options) withDefaults() Options {
	if len(o.SortKeys) == 0 {
		o.SortKeys = []SortKey{SortByTransfers, SortByDuration, SortByDeparture, SortByArrival}
	}
	return o
}

// Plan builds every JourneyOption from direct segments and transfer legs,
// per the algorithm in spec.md §4.10.
func Plan(direct []model.JourneySegment, legs []TransferLeg, opts Options) []model.JourneyOption {
	opts = opts.withDefaults()

	var options []model.JourneyOption
	for _, seg := range direct {
		options = append(options, directOption(seg))
	}

	for _, leg := range legs {
		minTransfer := opts.MinTransferTime
		if opts.Resolver != nil {
			minTransfer = opts.Resolver.GetMinTransferTime(leg.TransferStationID)
		}

		for _, a := range leg.FirstLeg {
			for _, b := range leg.SecondLeg {
				wait := minutesBetweenOvernight(a.Arrival, b.Departure)
				if wait < minTransfer || wait > opts.MaxTransferTime {
					continue
				}
				options = append(options, transferOption(a, b, leg.TransferStationID, wait))
			}
		}
	}

	sortOptions(options, opts.SortKeys)
	return options
}

func directOption(seg model.JourneySegment) model.JourneyOption {
	duration := minutesBetweenOvernight(seg.Departure, seg.Arrival)
	return model.JourneyOption{
		Type:             model.JourneyDirect,
		Transfers:        0,
		Departure:        seg.Departure,
		Arrival:          seg.Arrival,
		TotalDurationMin: duration,
		WaitTimeMin:      0,
		Segments:         []model.JourneySegment{seg},
	}
}

func transferOption(a, b model.JourneySegment, transferStationID string, wait int) model.JourneyOption {
	firstDuration := minutesBetweenOvernight(a.Departure, a.Arrival)
	secondDuration := minutesBetweenOvernight(b.Departure, b.Arrival)

	return model.JourneyOption{
		Type:              model.JourneyTransfer,
		Transfers:         1,
		Departure:         a.Departure,
		Arrival:           b.Arrival,
		TotalDurationMin:  firstDuration + wait + secondDuration,
		WaitTimeMin:       wait,
		TransferStationID: transferStationID,
		Segments:          []model.JourneySegment{a, b},
	}
}

// minutesBetweenOvernight computes minutes from "HH:MM" from to "HH:MM"
// to, applying spec.md §4.10's overnight rule: if the naive difference is
// less than -12h, treat it as crossing midnight and add 24h. A same-day
// regression of up to 12h is left negative (and therefore rejected by
// callers checking against a minimum).
func minutesBetweenOvernight(from, to string) int {
	diff := parseHHMM(to) - parseHHMM(from)
	if diff < -12*60 {
		diff += 24 * 60
	}
	return diff
}

func parseHHMM(s string) int {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h*60 + m
}

func sortOptions(options []model.JourneyOption, keys []SortKey) {
	sort.SliceStable(options, func(i, j int) bool {
		for _, key := range keys {
			cmp := compareByKey(options[i], options[j], key)
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
}

func compareByKey(a, b model.JourneyOption, key SortKey) int {
	switch key {
	case SortByTransfers:
		return a.Transfers - b.Transfers
	case SortByDuration:
		return a.TotalDurationMin - b.TotalDurationMin
	case SortByDeparture:
		return parseHHMM(a.Departure) - parseHHMM(b.Departure)
	case SortByArrival:
		return parseHHMM(a.Arrival) - parseHHMM(b.Arrival)
	default:
		return 0
	}
}

// Sort re-sorts an already-built option set by the given keys, exposed
// separately per spec.md §6.5's `JourneyPlanner.sortJourneys`.
func Sort(options []model.JourneyOption, keys ...SortKey) []model.JourneyOption {
	if len(keys) == 0 {
		keys = []SortKey{SortByTransfers, SortByDuration, SortByDeparture, SortByArrival}
	}
	out := make([]model.JourneyOption, len(options))
	copy(out, options)
	sortOptions(out, keys)
	return out
}
