package model

// TrackingMode describes where the tracked object's position currently
// comes from.
type TrackingMode int

const (
	// TrackingLive means the last fetch succeeded within the staleness window.
	TrackingLive TrackingMode = iota
	// TrackingCached means the last successful fix is stale but still inside
	// the grace window.
	TrackingCached
	// TrackingSimulated means fetches have failed repeatedly (or never
	// succeeded) and a deterministic orbital model supplies the position.
	TrackingSimulated
)

// String returns the wire/metric label for the mode.
func (m TrackingMode) String() string {
	switch m {
	case TrackingLive:
		return "live"
	case TrackingCached:
		return "cached"
	case TrackingSimulated:
		return "simulated"
	default:
		return "unknown"
	}
}

// PositionFix is one parsed live-position sample for the tracked object,
// as handed over by the network collaborator.
type PositionFix struct {
	Latitude   float64 // deg
	Longitude  float64 // deg
	AltitudeKm float64 // km above the parent's surface
	Timestamp  float64 // s, unix seconds reported by the data source
}

// FetchOutcome is the result of one fetch attempt. Seq is a monotonic
// request sequence number; outcomes older than the newest applied one are
// discarded (last fetch wins). Err == nil means Fix is valid.
type FetchOutcome struct {
	Seq uint64
	Fix PositionFix
	Err error
}
