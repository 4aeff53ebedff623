package natsadapter

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/samirrijal/sitewatch/internal/core/domain"
)

// Subjects used between the engine and a device. All device subjects are
// scoped by device id: device.<id>.<topic>.
type Subjects struct {
	prefix string
}

// NewSubjects returns the subject set for deviceID.
func NewSubjects(deviceID string) Subjects {
	return Subjects{prefix: "device." + deviceID + "."}
}

func (s Subjects) RemoveHandle() string  { return s.prefix + "regions.remove_handle" }
func (s Subjects) AddRegions() string    { return s.prefix + "regions.add" }
func (s Subjects) RemoveIDs() string     { return s.prefix + "regions.remove_ids" }
func (s Subjects) MotionRequest() string { return s.prefix + "motion.request" }
func (s Subjects) MotionRemove() string  { return s.prefix + "motion.remove" }
func (s Subjects) MotionSample() string  { return s.prefix + "motion.sample" }
func (s Subjects) Transition() string    { return s.prefix + "transition" }
func (s Subjects) Boot() string          { return s.prefix + "boot" }
func (s Subjects) Indicator() string     { return s.prefix + "indicator" }
func (s Subjects) Location() string      { return s.prefix + "location" }

// Engine-wide subjects.
const (
	TransitionStream        = "GEOFENCE_TRANSITIONS"
	TransitionSubjectPrefix = "geofence.transition."
	TransitionSubjectAll    = TransitionSubjectPrefix + ">"
	UIUpdateSubject         = "ui.geofence.update"
)

// TransitionSubject is the JetStream subject for a confirmed transition of siteID.
func TransitionSubject(siteID string) string { return TransitionSubjectPrefix + siteID }

// --- request/reply ---

type removeHandleRequest struct {
	Handle string `json:"handle"`
}

type addRegionsRequest struct {
	Handle  string                   `json:"handle"`
	Regions []domain.MonitoredRegion `json:"regions"`
}

type removeIDsRequest struct {
	IDs []string `json:"ids"`
}

type motionRequest struct {
	IntervalMillis int64 `json:"interval_ms"`
}

// reply is the device's answer to any request. A zero code means success.
type reply struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func replyFromError(err error) reply {
	if err == nil {
		return reply{}
	}
	var fe *domain.FacilityError
	if errors.As(err, &fe) {
		return reply{Code: int(fe.Code), Message: fe.Message}
	}
	return reply{Code: -1, Message: err.Error()}
}

func (r reply) err() error {
	if r.Code == 0 {
		return nil
	}
	return &domain.FacilityError{Code: domain.StatusCode(r.Code), Message: r.Message}
}

// --- device events ---

// transitionMessage is a raw geofencing event as the device reports it. One
// message may name several triggering regions. A non-zero ErrorCode means the
// facility reported an error instead of a transition.
type transitionMessage struct {
	Transition string    `json:"transition,omitempty"`
	RegionIDs  []string  `json:"region_ids,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
	ErrorCode  int       `json:"error_code,omitempty"`
}

// toRawEvents expands a device message into one raw event per region.
func (m transitionMessage) toRawEvents() ([]domain.RawTransitionEvent, error) {
	if m.ErrorCode != 0 {
		return nil, &domain.FacilityError{Code: domain.StatusCode(m.ErrorCode)}
	}
	kind, err := domain.ParseRawTransitionKind(m.Transition)
	if err != nil {
		return nil, err
	}
	if len(m.RegionIDs) == 0 {
		return nil, fmt.Errorf("transition %s without regions", m.Transition)
	}
	at := m.ObservedAt
	if at.IsZero() {
		at = time.Now()
	}
	out := make([]domain.RawTransitionEvent, len(m.RegionIDs))
	for i, id := range m.RegionIDs {
		out[i] = domain.RawTransitionEvent{RegionID: id, Kind: kind, ObservedAt: at}
	}
	return out, nil
}

// activity is one entry of a motion classification result.
type activity struct {
	Type       domain.ActivityKind `json:"type"`
	Confidence int                 `json:"confidence"`
}

// motionMessage carries every probable activity; the most probable one is
// what the engine keeps.
type motionMessage struct {
	Activities []activity `json:"activities"`
	At         time.Time  `json:"at"`
}

func (m motionMessage) mostProbable() domain.MotionSample {
	if len(m.Activities) == 0 {
		return domain.MotionSample{Kind: domain.ActivityUnknown}
	}
	acts := append([]activity(nil), m.Activities...)
	sort.SliceStable(acts, func(i, j int) bool { return acts[i].Confidence > acts[j].Confidence })
	return domain.MotionSample{Kind: acts[0].Type, ConfidencePercent: acts[0].Confidence}
}

type bootMessage struct {
	Action string `json:"action"`
}

type indicatorMessage struct {
	SiteID   string `json:"site_id"`
	SiteName string `json:"site_name"`
	Text     string `json:"text"`
}

// UIUpdate is published for the UI collaborator on every confirmed transition.
type UIUpdate struct {
	SiteID     string `json:"site_id"`
	Transition string `json:"transition"` // enter | exit
	SiteName   string `json:"site_name,omitempty"`
}

type locationMessage struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	At        time.Time `json:"at"`
}
