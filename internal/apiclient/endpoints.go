package apiclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tra-cli/tra/internal/model"
)

// --- cache keys (spec.md §6.3) ---

func keyStationsAll() string                   { return "stations/all" }
func keyLinesAll() string                      { return "lines/all" }
func keyLineStations(lineID string) string     { return fmt.Sprintf("lines/stations-%s", lineID) }
func keyLineTransfers() string                 { return "lines/transfers" }
func keyStationExits(id string) string         { return fmt.Sprintf("stations/exits-%s", id) }
func keyTimetableOD(from, to, date string) string {
	return fmt.Sprintf("timetable/od-%s-%s-%s", from, to, date)
}
func keyTimetableTrain(trainNo string) string { return fmt.Sprintf("timetable/train-%s", trainNo) }
func keyTimetableStation(id, date string) string {
	return fmt.Sprintf("timetable/station-%s-%s", id, date)
}
func keyFareOD(from, to string) string { return fmt.Sprintf("fare/od-%s-%s", from, to) }

// --- raw envelope shapes (spec.md §6.1) ---

type stationsEnvelope struct {
	Stations []rawStation `json:"Stations"`
}

type rawStation struct {
	StationID                string  `json:"StationID"`
	StationName              rawName `json:"StationName"`
	StationPosition           rawLatLon `json:"StationPosition"`
}

type rawName struct {
	ZhTw string `json:"Zh_tw"`
}

type rawLatLon struct {
	PositionLat float64 `json:"PositionLat"`
	PositionLon float64 `json:"PositionLon"`
}

type trainTimetableEnvelope struct {
	TrainTimetables []rawTrainTimetable `json:"TrainTimetables"`
}

type rawTrainTimetable struct {
	TrainInfo    rawTrainInfo     `json:"TrainInfo"`
	StopTimes    []rawStopTime    `json:"StopTimes"`
}

type rawTrainInfo struct {
	TrainNo       string `json:"TrainNo"`
	TrainTypeName rawName `json:"TrainTypeName"`
	TrainTypeCode string `json:"TrainTypeCode"`
	Bike          bool   `json:"Bike"`
	WheelChair    bool   `json:"WheelChairFlag"`
}

type rawStopTime struct {
	StationID     string `json:"StationID"`
	ArrivalTime   string `json:"ArrivalTime"`
	DepartureTime string `json:"DepartureTime"`
}

type stationTimetableEnvelope struct {
	StationTimetables []rawStationTimetable `json:"StationTimetables"`
}

type rawStationTimetable struct {
	StationID   string       `json:"StationID"`
	TimeTables  []rawStationEntry `json:"Timetables"`
}

type rawStationEntry struct {
	TrainNo       string `json:"TrainNo"`
	TrainTypeName rawName `json:"TrainTypeName"`
	TrainTypeCode string `json:"TrainTypeCode"`
	ArrivalTime   string `json:"ArrivalTime"`
	DepartureTime string `json:"DepartureTime"`
}

type odFareEnvelope struct {
	ODFares []rawODFare `json:"ODFares"`
}

type rawODFare struct {
	Fares []rawFareDetail `json:"Fares"`
}

type rawFareDetail struct {
	Price int `json:"Price"`
}

type lineEnvelope struct {
	Lines []rawLine `json:"Lines"`
}

type rawLine struct {
	LineID   string  `json:"LineID"`
	LineName rawName `json:"LineName"`
}

type stationOfLineEnvelope struct {
	StationOfLines []rawStationOfLine `json:"StationOfLines"`
}

type rawStationOfLine struct {
	LineID   string              `json:"LineID"`
	Stations []rawLineStationRef `json:"Stations"`
}

type rawLineStationRef struct {
	StationID string `json:"StationID"`
}

type lineTransferEnvelope struct {
	LineTransfers []LineTransferRecord `json:"LineTransfers"`
}

// LineTransferRecord is the exported shape of one line-transfer pair,
// kept exported so internal/app can build a branchline.TransferTimeResolver
// directly from GetLineTransfers' result.
type LineTransferRecord struct {
	FromStationID   string `json:"FromStationID"`
	ToStationID     string `json:"ToStationID"`
	MinTransferTime int    `json:"MinTransferTime"`
}

type alertEnvelope struct {
	Alerts []AlertRecord `json:"Alerts"`
}

// AlertRecord is the exported shape of a single TDX alert record, kept
// exported (rather than the package-private convention used by the other
// raw* types) so that internal/alert can consume GetStationAlerts'
// result directly.
type AlertRecord struct {
	AlertID            string   `json:"AlertID"`
	Title              string   `json:"Title"`
	Description        string   `json:"Description"`
	Status             int      `json:"Status"`
	AffectedStationIDs []string `json:"AffectedStationIDs"`
	AffectedLineIDs    []string `json:"AffectedLineIDs"`
}

type stationExitEnvelope struct {
	StationExits []rawStationExit `json:"StationExits"`
}

type rawStationExit struct {
	ExitID   string `json:"ExitID"`
	ExitName rawName `json:"ExitName"`
}

// --- normalization (spec.md §6.2) ---

// simplifyTrainType strips a trailing parenthetical suffix from a train
// type name, e.g. "自強(3000)(EMU3000 型電車)" → "自強".
func simplifyTrainType(name string) string {
	if idx := strings.IndexByte(name, '('); idx >= 0 {
		return strings.TrimSpace(name[:idx])
	}
	return name
}

// tpassEligibleCode reports whether a trainTypeCode is TPASS-eligible.
// TrainTypeCode "3" (EMU3000) is explicitly excluded even though its name
// contains "自強" (spec.md §6.2).
func tpassEligibleCode(code string) bool {
	return code != "3"
}

func boolPtr(b bool) *bool { return &b }

// --- endpoint methods ---

// GetStations fetches the full station list (spec.md: `GET
// /v3/Rail/TRA/Station`), cached for 7 days.
func (c *Client) GetStations(ctx context.Context) ([]model.Station, error) {
	body, err := c.fetch(ctx, keyStationsAll(), ttlReferenceData, false,
		BaseURL+"/v3/Rail/TRA/Station")
	if err != nil {
		return nil, err
	}

	var env stationsEnvelope
	if err := decodeEnvelope(body, &env); err != nil {
		return nil, err
	}

	out := make([]model.Station, len(env.Stations))
	for i, s := range env.Stations {
		out[i] = model.Station{
			ID:   s.StationID,
			Name: s.StationName.ZhTw,
			Lat:  s.StationPosition.PositionLat,
			Lon:  s.StationPosition.PositionLon,
		}
	}
	return out, nil
}

// GetDailyTrainTimetableOD fetches the OD-pair timetable for a given date
// (spec.md: `GET /v3/Rail/TRA/DailyTrainTimetable/OD/{from}/to/{to}/{date}`),
// returning one JourneySegment per direct train, cached for 1 day.
func (c *Client) GetDailyTrainTimetableOD(ctx context.Context, from, to, date string) ([]model.JourneySegment, error) {
	key := keyTimetableOD(from, to, date)
	u := fmt.Sprintf("%s/v3/Rail/TRA/DailyTrainTimetable/OD/%s/to/%s/%s",
		BaseURL, url.PathEscape(from), url.PathEscape(to), url.PathEscape(date))

	body, err := c.fetch(ctx, key, ttlDailyData, false, u)
	if err != nil {
		return nil, err
	}

	var env trainTimetableEnvelope
	if err := decodeEnvelope(body, &env); err != nil {
		return nil, err
	}
	if len(env.TrainTimetables) == 0 {
		return nil, model.New(model.CodeNotFound, "no direct trains for this OD pair")
	}

	var segments []model.JourneySegment
	for _, tt := range env.TrainTimetables {
		seg, ok := segmentFromODTrain(tt, from, to)
		if ok {
			segments = append(segments, seg)
		}
	}
	return segments, nil
}

func segmentFromODTrain(tt rawTrainTimetable, from, to string) (model.JourneySegment, bool) {
	var dep, arr *rawStopTime
	for i := range tt.StopTimes {
		st := &tt.StopTimes[i]
		if st.StationID == from {
			dep = st
		}
		if st.StationID == to {
			arr = st
		}
	}
	if dep == nil || arr == nil {
		return model.JourneySegment{}, false
	}

	return model.JourneySegment{
		TrainNo:         tt.TrainInfo.TrainNo,
		TrainType:       simplifyTrainType(tt.TrainInfo.TrainTypeName.ZhTw),
		TrainTypeCode:   tt.TrainInfo.TrainTypeCode,
		FromStationID:   from,
		ToStationID:     to,
		Departure:       dep.DepartureTime,
		Arrival:         arr.ArrivalTime,
		BikeFlag:        boolPtr(tt.TrainInfo.Bike),
		WheelChairFlag:  boolPtr(tt.TrainInfo.WheelChair),
	}, true
}

// GetGeneralTrainTimetable fetches one train's full schedule (spec.md:
// `GET /v3/Rail/TRA/GeneralTrainTimetable/TrainNo/{no}`), cached for 1 day.
func (c *Client) GetGeneralTrainTimetable(ctx context.Context, trainNo string) ([]model.TrainEntry, error) {
	body, err := c.fetch(ctx, keyTimetableTrain(trainNo), ttlDailyData, false,
		fmt.Sprintf("%s/v3/Rail/TRA/GeneralTrainTimetable/TrainNo/%s", BaseURL, url.PathEscape(trainNo)))
	if err != nil {
		return nil, err
	}

	var env trainTimetableEnvelope
	if err := decodeEnvelope(body, &env); err != nil {
		return nil, err
	}

	var out []model.TrainEntry
	for _, tt := range env.TrainTimetables {
		for _, st := range tt.StopTimes {
			out = append(out, model.TrainEntry{
				TrainNo:       tt.TrainInfo.TrainNo,
				TrainType:     simplifyTrainType(tt.TrainInfo.TrainTypeName.ZhTw),
				TrainTypeCode: tt.TrainInfo.TrainTypeCode,
				Departure:     st.DepartureTime,
				Arrival:       st.ArrivalTime,
				BikeFlag:      boolPtr(tt.TrainInfo.Bike),
				WheelChairFlag: boolPtr(tt.TrainInfo.WheelChair),
			})
		}
	}
	return out, nil
}

// StationTimetableEntry is one scheduled stop at a single station, the
// shape StationTimetableMatcher intersects across two stations.
type StationTimetableEntry struct {
	TrainNo       string
	TrainType     string
	TrainTypeCode string
	Arrival       string
	Departure     string
}

// GetStationTimetable fetches one station's daily timetable (spec.md:
// `GET /v3/Rail/TRA/DailyStationTimetable/Today/Station/{id}`), used by
// the branch-line hybrid strategy (§4.11), cached for 1 day keyed by date.
func (c *Client) GetStationTimetable(ctx context.Context, stationID, date string) ([]StationTimetableEntry, error) {
	key := keyTimetableStation(stationID, date)
	body, err := c.fetch(ctx, key, ttlDailyData, false,
		fmt.Sprintf("%s/v3/Rail/TRA/DailyStationTimetable/Today/Station/%s", BaseURL, url.PathEscape(stationID)))
	if err != nil {
		return nil, err
	}

	var env stationTimetableEnvelope
	if err := decodeEnvelope(body, &env); err != nil {
		return nil, err
	}

	var out []StationTimetableEntry
	for _, st := range env.StationTimetables {
		if st.StationID != stationID {
			continue
		}
		for _, entry := range st.TimeTables {
			out = append(out, StationTimetableEntry{
				TrainNo:       entry.TrainNo,
				TrainType:     simplifyTrainType(entry.TrainTypeName.ZhTw),
				TrainTypeCode: entry.TrainTypeCode,
				Arrival:       entry.ArrivalTime,
				Departure:     entry.DepartureTime,
			})
		}
	}
	return out, nil
}

// TrainLiveBoard fetches real-time position/delay data for one train
// (spec.md: `GET /v3/Rail/TRA/TrainLiveBoard/TrainNo/{no}`). Never cached
// (spec.md §4.7 step 6).
func (c *Client) TrainLiveBoard(ctx context.Context, trainNo string) ([]byte, error) {
	return c.fetch(ctx, "", 0, true,
		fmt.Sprintf("%s/v3/Rail/TRA/TrainLiveBoard/TrainNo/%s", BaseURL, url.PathEscape(trainNo)))
}

// LiveTrainDelay fetches delay minutes for a set of train numbers via an
// OData `$filter` (spec.md: `GET /v2/Rail/TRA/LiveTrainDelay`). Never
// cached.
func (c *Client) LiveTrainDelay(ctx context.Context, trainNos []string) ([]byte, error) {
	clauses := make([]string, len(trainNos))
	for i, no := range trainNos {
		clauses[i] = fmt.Sprintf("TrainNo eq '%s'", no)
	}
	filter := strings.Join(clauses, " or ")

	q := url.Values{}
	q.Set("$filter", filter)

	return c.fetch(ctx, "", 0, true,
		fmt.Sprintf("%s/v2/Rail/TRA/LiveTrainDelay?%s", BaseURL, q.Encode()))
}

// StationLiveBoard fetches real-time arrivals/departures for one station
// (spec.md: `GET .../StationLiveBoard`). Never cached.
func (c *Client) StationLiveBoard(ctx context.Context, stationID string) ([]byte, error) {
	return c.fetch(ctx, "", 0, true,
		fmt.Sprintf("%s/v3/Rail/TRA/StationLiveBoard/Station/%s", BaseURL, url.PathEscape(stationID)))
}

// GetODFare fetches the full-journey fare for an OD pair (spec.md: `GET
// /v3/Rail/TRA/ODFare/{from}/to/{to}`), cached for 7 days. Returns the
// cheapest listed fare across classes.
func (c *Client) GetODFare(ctx context.Context, from, to string) (int, error) {
	body, err := c.fetch(ctx, keyFareOD(from, to), ttlReferenceData, false,
		fmt.Sprintf("%s/v3/Rail/TRA/ODFare/%s/to/%s", BaseURL, url.PathEscape(from), url.PathEscape(to)))
	if err != nil {
		return 0, err
	}

	var env odFareEnvelope
	if err := decodeEnvelope(body, &env); err != nil {
		return 0, err
	}
	if len(env.ODFares) == 0 || len(env.ODFares[0].Fares) == 0 {
		return 0, model.New(model.CodeNotFound, "no fare found for this OD pair")
	}

	best := env.ODFares[0].Fares[0].Price
	for _, f := range env.ODFares[0].Fares {
		if f.Price < best {
			best = f.Price
		}
	}
	return best, nil
}

// GetLines fetches the list of TRA lines (spec.md: `GET
// /v3/Rail/TRA/Line`), cached for 7 days.
func (c *Client) GetLines(ctx context.Context) ([]model.Station, error) {
	body, err := c.fetch(ctx, keyLinesAll(), ttlReferenceData, false, BaseURL+"/v3/Rail/TRA/Line")
	if err != nil {
		return nil, err
	}

	var env lineEnvelope
	if err := decodeEnvelope(body, &env); err != nil {
		return nil, err
	}

	out := make([]model.Station, len(env.Lines))
	for i, l := range env.Lines {
		out[i] = model.Station{ID: l.LineID, Name: l.LineName.ZhTw}
	}
	return out, nil
}

// GetStationOfLine fetches the ordered station list for one line
// (spec.md: `GET /v3/Rail/TRA/StationOfLine`), cached for 7 days.
func (c *Client) GetStationOfLine(ctx context.Context, lineID string) ([]string, error) {
	body, err := c.fetch(ctx, keyLineStations(lineID), ttlReferenceData, false,
		BaseURL+"/v3/Rail/TRA/StationOfLine")
	if err != nil {
		return nil, err
	}

	var env stationOfLineEnvelope
	if err := decodeEnvelope(body, &env); err != nil {
		return nil, err
	}

	for _, sol := range env.StationOfLines {
		if sol.LineID != lineID {
			continue
		}
		ids := make([]string, len(sol.Stations))
		for i, s := range sol.Stations {
			ids[i] = s.StationID
		}
		return ids, nil
	}
	return nil, model.New(model.CodeNotFound, "unknown line id").WithContext("line_id", lineID)
}

// GetLineTransfers fetches the pairwise minimum transfer times (spec.md:
// `GET /v3/Rail/TRA/LineTransfer`), cached for 1 day.
func (c *Client) GetLineTransfers(ctx context.Context) ([]LineTransferRecord, error) {
	body, err := c.fetch(ctx, keyLineTransfers(), ttlDerivedData, false,
		BaseURL+"/v3/Rail/TRA/LineTransfer")
	if err != nil {
		return nil, err
	}

	var env lineTransferEnvelope
	if err := decodeEnvelope(body, &env); err != nil {
		return nil, err
	}
	return env.LineTransfers, nil
}

// GetStationAlerts fetches the raw alert list (spec.md: `GET
// /v3/Rail/TRA/Alert`). AlertService owns the 1-hour in-memory-only
// cache on top of this (spec.md §4.12), so this call always bypasses
// CacheStore.
func (c *Client) GetStationAlerts(ctx context.Context) ([]AlertRecord, error) {
	body, err := c.fetch(ctx, "", 0, true, BaseURL+"/v3/Rail/TRA/Alert")
	if err != nil {
		return nil, err
	}

	var env alertEnvelope
	if err := decodeEnvelope(body, &env); err != nil {
		return nil, err
	}
	return env.Alerts, nil
}

// GetStationExits fetches a station's exit list (spec.md: `GET
// /v3/Rail/TRA/StationExit`), cached for 1 day.
func (c *Client) GetStationExits(ctx context.Context, stationID string) ([]string, error) {
	body, err := c.fetch(ctx, keyStationExits(stationID), ttlDerivedData, false,
		fmt.Sprintf("%s/v3/Rail/TRA/StationExit/Station/%s", BaseURL, url.PathEscape(stationID)))
	if err != nil {
		return nil, err
	}

	var env stationExitEnvelope
	if err := decodeEnvelope(body, &env); err != nil {
		return nil, err
	}

	out := make([]string, len(env.StationExits))
	for i, e := range env.StationExits {
		out[i] = e.ExitName.ZhTw
	}
	return out, nil
}
