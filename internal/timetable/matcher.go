// Package timetable implements StationTimetableMatcher from spec.md
// §4.11: the branch-line hybrid query strategy that intersects two
// stations' daily timetables by train number when an OD-pair timetable
// isn't available because one endpoint is a branch-line station.
package timetable

import (
	"sort"
	"strconv"
	"strings"

	"github.com/tra-cli/tra/internal/apiclient"
	"github.com/tra-cli/tra/internal/model"
)

// Match intersects origin's and destination's daily timetables by train
// number, keeping only pairs where origin.departure < destination.arrival
// under the overnight rule (spec.md §4.11), sorted by departure.
func Match(origin, destination []apiclient.StationTimetableEntry, originID, destinationID string) []model.JourneySegment {
	byTrain := make(map[string]apiclient.StationTimetableEntry, len(destination))
	for _, e := range destination {
		byTrain[e.TrainNo] = e
	}

	var out []model.JourneySegment
	for _, o := range origin {
		d, ok := byTrain[o.TrainNo]
		if !ok {
			continue
		}
		if !validateTrainDirection(o.Departure, d.Arrival) {
			continue
		}

		out = append(out, model.JourneySegment{
			TrainNo:       o.TrainNo,
			TrainType:     o.TrainType,
			TrainTypeCode: o.TrainTypeCode,
			FromStationID: originID,
			ToStationID:   destinationID,
			Departure:     o.Departure,
			Arrival:       d.Arrival,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return parseHHMM(out[i].Departure) < parseHHMM(out[j].Departure)
	})
	return out
}

// validateTrainDirection implements spec.md §4.11's overnight-aware
// direction check: a pre-dawn arrival after a late-night departure is a
// valid overnight run; a daytime regression is the reverse direction and
// rejected.
func validateTrainDirection(departure, arrival string) bool {
	dep := parseHHMM(departure)
	arr := parseHHMM(arrival)
	diff := arr - dep
	if diff < -12*60 {
		diff += 24 * 60
	}
	return diff > 0
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
