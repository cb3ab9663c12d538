package app

// builtinNicknames maps common colloquial station aliases to their
// 4-digit station id, loaded once at startup per spec.md §3 ("Station").
var builtinNicknames = map[string]string{
	"北車":  "1000",
	"台北車站": "1000",
	"高雄車站": "4400",
}

// builtinCorrections maps a common misspelling (after suffix-stripping)
// to its canonical station name, per spec.md §4.8 step 4.
var builtinCorrections = map[string]string{
	"新筑": "新竹",
	"台重": "台中",
}

// tpassStationRegion maps a station id to its TPASS monthly-pass region.
// Mirrors the worked example in spec.md's acceptance scenario S8.
var tpassStationRegion = map[string]string{
	"1000": "kpnt",
	"1020": "kpnt",
	"1100": "kpnt",
	"1080": "kpnt",
	"1150": "hsinchu",
	"1160": "hsinchu",
}

// tpassRegionBoundaries lists each region's boundary stations along the
// direction of travel out of the region, used by TpassFareCalculator.
var tpassRegionBoundaries = map[string][]string{
	"kpnt": {"1100", "1080"},
}
