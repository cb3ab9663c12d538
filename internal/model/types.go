package model

import "time"

// SafetyBufferMs is the margin subtracted from a token's expiry so callers
// never hand out a token that is about to lapse mid-request.
const SafetyBufferMs = 60_000

// Credential identifies one TDX OAuth2 client_credentials pair. Immutable
// after load.
type Credential struct {
	ID           string
	ClientID     string
	ClientSecret string
	Label        string
}

// Token is a cached OAuth2 bearer token.
type Token struct {
	AccessToken string
	ExpiresAt   int64 // epoch-ms
}

// Valid reports whether the token has at least SafetyBufferMs left before
// expiry, as of now (epoch-ms).
func (t Token) Valid(nowMs int64) bool {
	return t.AccessToken != "" && nowMs+SafetyBufferMs <= t.ExpiresAt
}

// SlotState is the tagged state of one KeySlot.
type SlotState string

const (
	SlotActive   SlotState = "ACTIVE"
	SlotDisabled SlotState = "DISABLED"
	SlotCooldown SlotState = "COOLDOWN"
)

// SlotMetrics is the counters snapshot exposed by KeySlot.GetMetrics.
type SlotMetrics struct {
	SlotID              string
	Label               string
	State               SlotState
	ConsecutiveFailures int
	TotalRequests        int64
	SuccessfulRequests   int64
	FailedRequests       int64
	LastUsedEpochMs      int64
	LastErrorMessage     string
	DisabledUntilEpochMs int64
	AvailableTokens      int
}

// Station is an immutable TRA station record.
type Station struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64
}

// TrainEntry is the filter view of one scheduled train.
type TrainEntry struct {
	TrainNo        string
	TrainType      string
	TrainTypeCode  string
	Departure      string // "HH:MM"
	Arrival        string // "HH:MM"
	BikeFlag       *bool
	WheelChairFlag *bool
}

// JourneySegment is one scheduled leg of a journey, either a direct ride or
// one half of a transfer.
type JourneySegment struct {
	TrainNo        string
	TrainType      string
	TrainTypeCode  string
	FromStationID  string
	FromStationName string
	ToStationID    string
	ToStationName  string
	Departure      string
	Arrival        string
	BikeFlag       *bool
	WheelChairFlag *bool
}

// JourneyType distinguishes direct rides from one-transfer itineraries.
type JourneyType string

const (
	JourneyDirect   JourneyType = "direct"
	JourneyTransfer JourneyType = "transfer"
)

// JourneyOption is one candidate itinerary produced by the planner.
type JourneyOption struct {
	Type              JourneyType
	Transfers         int
	Departure         string
	Arrival           string
	TotalDurationMin  int
	WaitTimeMin       int
	TransferStationID string
	Segments          []JourneySegment
}

// AlertStatus is the normalized status of a service alert.
type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertResolved AlertStatus = "resolved"
)

// Alert is a normalized TDX service alert.
type Alert struct {
	ID                    string
	Title                 string
	Description           string
	Status                AlertStatus
	AffectedStationIDs    map[string]struct{}
	AffectedLineIDs       map[string]struct{}
	AlternativeTransport  string
}

// FareType distinguishes the three shapes of fare option the calculator
// can produce.
type FareType string

const (
	FareDirect      FareType = "direct"
	FareTpassFree   FareType = "tpass_free"
	FareTpassPartial FareType = "tpass_partial"
)

// FareOption is one candidate fare produced by the TPASS cross-region
// calculator.
type FareOption struct {
	Type              FareType
	TransferStationID string // empty for direct and tpass_free
	TotalFare         int
	Savings           int
	Recommended       bool
}

// CacheEntry is the value stored by CacheStore, tier-agnostic.
type CacheEntry struct {
	Value     []byte
	ExpiresAt time.Time
	SizeBytes int
}
