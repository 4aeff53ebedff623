package domain

import (
	"fmt"
	"time"
)

// Site is a point of interest users can visit (e.g. a heritage monument).
type Site struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

// Center returns the site's center as a GeoPoint.
func (s Site) Center() GeoPoint {
	return GeoPoint{Lat: s.Latitude, Lon: s.Longitude}
}

// Validate reports whether the site can be turned into a monitored region.
func (s Site) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("site id is required")
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		return fmt.Errorf("site %s: latitude %.6f out of range", s.ID, s.Latitude)
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("site %s: longitude %.6f out of range", s.ID, s.Longitude)
	}
	if s.RadiusMeters <= 0 {
		return fmt.Errorf("site %s: radius must be positive", s.ID)
	}
	return nil
}

// TransitionMask selects which raw transitions a monitored region reports.
type TransitionMask uint8

const (
	MaskEnter TransitionMask = 1 << iota
	MaskExit
	MaskDwell

	MaskAll = MaskEnter | MaskExit | MaskDwell
)

// Has reports whether kind is selected by the mask.
func (m TransitionMask) Has(kind RawTransitionKind) bool {
	switch kind {
	case RawEnter:
		return m&MaskEnter != 0
	case RawDwell:
		return m&MaskDwell != 0
	case RawExit:
		return m&MaskExit != 0
	}
	return false
}

// MonitoredRegion is the registered counterpart of a Site inside the
// region-monitoring facility.
type MonitoredRegion struct {
	ID             string         `json:"id"`
	Latitude       float64        `json:"latitude"`
	Longitude      float64        `json:"longitude"`
	RadiusMeters   float64        `json:"radius_meters"`
	TransitionMask TransitionMask `json:"transition_mask"`
	DwellDelay     time.Duration  `json:"dwell_delay"`
	Expiry         time.Duration  `json:"expiry"`         // NeverExpire or a positive TTL
	Responsiveness time.Duration  `json:"responsiveness"` // 0 = as fast as the OS allows

	// InitialTrigger fires these transitions right after registration when
	// the device is already inside the region.
	InitialTrigger TransitionMask `json:"initial_trigger"`
}

// RegionFromSite builds the monitored region configuration used for every site.
func RegionFromSite(s Site) MonitoredRegion {
	return MonitoredRegion{
		ID:             s.ID,
		Latitude:       s.Latitude,
		Longitude:      s.Longitude,
		RadiusMeters:   s.RadiusMeters,
		TransitionMask: MaskAll,
		DwellDelay:     DwellDelay,
		Expiry:         NeverExpire,
		Responsiveness: 0,
		InitialTrigger: MaskEnter | MaskDwell,
	}
}

// ActivityKind is a coarse motion classification label.
type ActivityKind int

const (
	ActivityUnknown ActivityKind = iota
	ActivityStill
	ActivityWalking
	ActivityRunning
	ActivityOnFoot
	ActivityOnBicycle
	ActivityInVehicle
	ActivityTilting
)

var activityNames = map[ActivityKind]string{
	ActivityUnknown:   "UNKNOWN",
	ActivityStill:     "STILL",
	ActivityWalking:   "WALKING",
	ActivityRunning:   "RUNNING",
	ActivityOnFoot:    "ON_FOOT",
	ActivityOnBicycle: "ON_BICYCLE",
	ActivityInVehicle: "IN_VEHICLE",
	ActivityTilting:   "TILTING",
}

func (k ActivityKind) String() string {
	if name, ok := activityNames[k]; ok {
		return name
	}
	return fmt.Sprintf("OTHER(%d)", int(k))
}

// ParseActivityKind maps a label to its kind. Unrecognised labels are UNKNOWN.
func ParseActivityKind(s string) ActivityKind {
	for k, name := range activityNames {
		if name == s {
			return k
		}
	}
	return ActivityUnknown
}

func (k ActivityKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ActivityKind) UnmarshalText(b []byte) error {
	*k = ParseActivityKind(string(b))
	return nil
}

// MotionSample is the most probable activity reported by the motion channel.
type MotionSample struct {
	Kind              ActivityKind `json:"kind"`
	ConfidencePercent int          `json:"confidence"`
}

func (s MotionSample) String() string {
	return fmt.Sprintf("%s (%d%%)", s.Kind, s.ConfidencePercent)
}

// RawTransitionKind is the kind of transition reported by the facility.
type RawTransitionKind int

const (
	RawEnter RawTransitionKind = iota + 1
	RawDwell
	RawExit
)

func (k RawTransitionKind) String() string {
	switch k {
	case RawEnter:
		return "ENTER"
	case RawDwell:
		return "DWELL"
	case RawExit:
		return "EXIT"
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(k))
}

// ParseRawTransitionKind parses ENTER, DWELL or EXIT.
func ParseRawTransitionKind(s string) (RawTransitionKind, error) {
	switch s {
	case "ENTER":
		return RawEnter, nil
	case "DWELL":
		return RawDwell, nil
	case "EXIT":
		return RawExit, nil
	}
	return 0, fmt.Errorf("unknown transition %q", s)
}

// RawTransitionEvent is an unarbitrated transition delivered by the facility.
type RawTransitionEvent struct {
	RegionID   string            `json:"region_id"`
	Kind       RawTransitionKind `json:"kind"`
	ObservedAt time.Time         `json:"observed_at"`
}

// ConfirmedKind is the kind of a confirmed transition.
type ConfirmedKind string

const (
	Entered ConfirmedKind = "ENTERED"
	Exited  ConfirmedKind = "EXITED"
)

// ConfirmedTransitionEvent is the engine's output contract: emitted at most
// once per logical transition.
type ConfirmedTransitionEvent struct {
	ID         string        `json:"id"`
	SiteID     string        `json:"site_id"`
	Kind       ConfirmedKind `json:"kind"`
	ObservedAt time.Time     `json:"observed_at"`
	Motion     MotionSample  `json:"motion"`
}

// SiteState is the arbiter's view of whether the user is inside a site.
type SiteState int

const (
	Outside SiteState = iota
	Inside
)

func (s SiteState) String() string {
	if s == Inside {
		return "INSIDE"
	}
	return "OUTSIDE"
}

func (s SiteState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// LocationFix is a single position reading from the device.
type LocationFix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	At        time.Time `json:"at"`
}

// VisitSummary describes a completed visit, from confirmed entry to exit.
type VisitSummary struct {
	SiteID      string        `json:"site_id"`
	EnteredAt   time.Time     `json:"entered_at"`
	ExitedAt    time.Time     `json:"exited_at"`
	Dwell       time.Duration `json:"dwell"`
	EntryMotion MotionSample  `json:"entry_motion"`
}
