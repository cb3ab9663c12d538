package fare

import (
	"context"
	"testing"

	"github.com/tra-cli/tra/internal/model"
)

func fakeFare(table map[[2]string]int) GetFare {
	return func(ctx context.Context, from, to string) (int, error) {
		if v, ok := table[[2]string{from, to}]; ok {
			return v, nil
		}
		return 0, model.New(model.CodeNotFound, "no fare for "+from+"->"+to)
	}
}

func TestCrossRegionRecommendsCheapestBoundary(t *testing.T) {
	c := New(
		map[string]string{
			"1000": "kpnt",
			"1100": "kpnt",
			"1080": "kpnt",
			"1150": "hsinchu",
		},
		map[string][]string{
			"kpnt": {"1100", "1080"},
		},
	)

	getFare := fakeFare(map[[2]string]int{
		{"1000", "1150"}: 160,
		{"1100", "1150"}: 52,
		{"1080", "1150"}: 68,
	})

	options, err := c.CalculateCrossRegionOptions(context.Background(), "1000", "1150", getFare)
	if err != nil {
		t.Fatalf("CalculateCrossRegionOptions: %v", err)
	}

	var recommended *model.FareOption
	for i := range options {
		if options[i].Recommended {
			recommended = &options[i]
		}
	}
	if recommended == nil {
		t.Fatal("expected one recommended option")
	}
	if recommended.Type != model.FareTpassPartial || recommended.TransferStationID != "1100" {
		t.Fatalf("expected recommended transfer at 1100, got %+v", recommended)
	}
	if recommended.TotalFare != 52 || recommended.Savings != 108 {
		t.Fatalf("expected totalFare=52 savings=108, got %+v", recommended)
	}
}

func TestSameRegionReturnsSingleTpassFreeOption(t *testing.T) {
	c := New(
		map[string]string{"1000": "kpnt", "1020": "kpnt"},
		map[string][]string{"kpnt": {"1010"}},
	)
	getFare := fakeFare(map[[2]string]int{{"1000", "1020"}: 25})

	options, err := c.CalculateCrossRegionOptions(context.Background(), "1000", "1020", getFare)
	if err != nil {
		t.Fatalf("CalculateCrossRegionOptions: %v", err)
	}
	if len(options) != 1 || options[0].Type != model.FareTpassFree {
		t.Fatalf("expected a single tpass_free option, got %+v", options)
	}
	if !options[0].Recommended || options[0].TotalFare != 0 {
		t.Fatalf("expected recommended free option with 0 fare, got %+v", options[0])
	}
}

func TestUnknownRegionIsBadInput(t *testing.T) {
	c := New(map[string]string{"1000": "kpnt"}, map[string][]string{})
	_, err := c.CalculateCrossRegionOptions(context.Background(), "1000", "9999", fakeFare(nil))

	code, ok := model.CodeOf(err)
	if !ok || code != model.CodeBadInput {
		t.Fatalf("expected BAD_INPUT, got %v", err)
	}
}

func TestFailingBoundaryFareIsSkippedNotFatal(t *testing.T) {
	c := New(
		map[string]string{"1000": "kpnt", "1100": "kpnt", "1150": "hsinchu"},
		map[string][]string{"kpnt": {"1100"}},
	)
	getFare := fakeFare(map[[2]string]int{{"1000", "1150"}: 160})

	options, err := c.CalculateCrossRegionOptions(context.Background(), "1000", "1150", getFare)
	if err != nil {
		t.Fatalf("CalculateCrossRegionOptions: %v", err)
	}
	if len(options) != 1 || options[0].Type != model.FareDirect {
		t.Fatalf("expected only the direct option to survive, got %+v", options)
	}
}

func TestDirectFareLookupFailureIsFatal(t *testing.T) {
	c := New(
		map[string]string{"1000": "kpnt", "1150": "hsinchu"},
		map[string][]string{"kpnt": {}},
	)
	_, err := c.CalculateCrossRegionOptions(context.Background(), "1000", "1150", fakeFare(nil))
	if err == nil {
		t.Fatal("expected an error when the primary direct-fare query fails")
	}
}

func TestOptionsSortedAscendingByFare(t *testing.T) {
	c := New(
		map[string]string{"1000": "kpnt", "1100": "kpnt", "1080": "kpnt", "1150": "hsinchu"},
		map[string][]string{"kpnt": {"1100", "1080"}},
	)
	getFare := fakeFare(map[[2]string]int{
		{"1000", "1150"}: 160,
		{"1100", "1150"}: 52,
		{"1080", "1150"}: 68,
	})

	options, err := c.CalculateCrossRegionOptions(context.Background(), "1000", "1150", getFare)
	if err != nil {
		t.Fatalf("CalculateCrossRegionOptions: %v", err)
	}
	for i := 1; i < len(options); i++ {
		if options[i].TotalFare < options[i-1].TotalFare {
			t.Fatalf("expected ascending fare order, got %+v", options)
		}
	}
}
