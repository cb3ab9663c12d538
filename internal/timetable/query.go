package timetable

import (
	"context"

	"github.com/tra-cli/tra/internal/apiclient"
	"github.com/tra-cli/tra/internal/branchline"
	"github.com/tra-cli/tra/internal/model"
)

// BranchLineChecker reports whether a station belongs to a branch line,
// satisfied by *branchline.Resolver.
type BranchLineChecker interface {
	IsBranchLineStation(id string) bool
}

var _ BranchLineChecker = (*branchline.Resolver)(nil)

// QueryOD chooses transparently between the OD-endpoint fetch (main-line
// only) and the station-timetable intersection path (branch-line
// involved), per spec.md §4.11's "ApiClient exposes a queryOD" contract.
func QueryOD(ctx context.Context, client *apiclient.Client, checker BranchLineChecker, from, to, date string) ([]model.JourneySegment, error) {
	if !checker.IsBranchLineStation(from) && !checker.IsBranchLineStation(to) {
		return client.GetDailyTrainTimetableOD(ctx, from, to, date)
	}

	originTimetable, err := client.GetStationTimetable(ctx, from, date)
	if err != nil {
		return nil, err
	}
	destinationTimetable, err := client.GetStationTimetable(ctx, to, date)
	if err != nil {
		return nil, err
	}

	segments := Match(originTimetable, destinationTimetable, from, to)
	if len(segments) == 0 {
		return nil, model.New(model.CodeNotFound, "no matching trains for this branch-line OD pair")
	}
	return segments, nil
}
