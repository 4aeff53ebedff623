package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestFacilityError_MatchesSentinels(t *testing.T) {
	tests := []struct {
		code     StatusCode
		sentinel error
		kind     ErrorKind
	}{
		{StatusNotAvailable, ErrNotAvailable, TransientFacilityError},
		{StatusTooManyRegions, ErrTooManyRegions, CapacityError},
		{StatusTooManyHandles, ErrTooManyHandles, CapacityError},
	}
	for _, tt := range tests {
		err := fmt.Errorf("add regions: %w", &FacilityError{Code: tt.code})
		if !errors.Is(err, tt.sentinel) {
			t.Errorf("code %d should match %v", tt.code, tt.sentinel)
		}
		if got := Classify(err); got != tt.kind {
			t.Errorf("code %d: Classify = %s, want %s", tt.code, got, tt.kind)
		}
	}

	unknown := &FacilityError{Code: 8, Message: "internal"}
	if errors.Is(unknown, ErrNotAvailable) {
		t.Error("unknown code should not match a sentinel")
	}
	if Classify(unknown) != UnknownError {
		t.Errorf("expected unknown kind, got %s", Classify(unknown))
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(ErrPermission) {
		t.Error("permission errors need user action")
	}
	if Retryable(&FacilityError{Code: StatusTooManyRegions}) {
		t.Error("capacity errors are policy level")
	}
	if !Retryable(&FacilityError{Code: StatusNotAvailable}) {
		t.Error("not-available is transient")
	}
	if !Retryable(fmt.Errorf("%w: timeout", ErrFetch)) {
		t.Error("fetch errors are retryable")
	}
	if Classify(nil) != "" {
		t.Error("nil error has no kind")
	}
}

func TestRegionFromSite(t *testing.T) {
	s := Site{ID: "3", Name: "Taj Mahal", Latitude: 27.1751, Longitude: 78.0421, RadiusMeters: 500}
	r := RegionFromSite(s)

	if r.ID != s.ID || r.Latitude != s.Latitude || r.Longitude != s.Longitude || r.RadiusMeters != s.RadiusMeters {
		t.Errorf("region does not mirror site: %+v", r)
	}
	for _, k := range []RawTransitionKind{RawEnter, RawDwell, RawExit} {
		if !r.TransitionMask.Has(k) {
			t.Errorf("mask should include %s", k)
		}
	}
	if !r.InitialTrigger.Has(RawEnter) || !r.InitialTrigger.Has(RawDwell) || r.InitialTrigger.Has(RawExit) {
		t.Errorf("unexpected initial trigger %v", r.InitialTrigger)
	}
	if r.DwellDelay != DwellDelay || r.Expiry != NeverExpire || r.Responsiveness != 0 {
		t.Errorf("unexpected timing: %+v", r)
	}
}

func TestSiteValidate(t *testing.T) {
	valid := Site{ID: "1", Latitude: 10, Longitude: 10, RadiusMeters: 100}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []Site{
		{Latitude: 10, Longitude: 10, RadiusMeters: 100},
		{ID: "1", Latitude: 91, Longitude: 10, RadiusMeters: 100},
		{ID: "1", Latitude: 10, Longitude: -181, RadiusMeters: 100},
		{ID: "1", Latitude: 10, Longitude: 10},
	}
	for i, s := range bad {
		if err := s.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestFallbackSites(t *testing.T) {
	sites := FallbackSites()
	if len(sites) != 10 {
		t.Fatalf("expected 10 fallback sites, got %d", len(sites))
	}
	seen := map[string]bool{}
	for _, s := range sites {
		if err := s.Validate(); err != nil {
			t.Errorf("invalid fallback site: %v", err)
		}
		if seen[s.ID] {
			t.Errorf("duplicate id %s", s.ID)
		}
		seen[s.ID] = true
	}
}

func TestActivityKindText(t *testing.T) {
	for _, k := range []ActivityKind{ActivityUnknown, ActivityStill, ActivityWalking, ActivityRunning,
		ActivityOnFoot, ActivityOnBicycle, ActivityInVehicle, ActivityTilting} {
		if got := ParseActivityKind(k.String()); got != k {
			t.Errorf("round trip of %s gave %s", k, got)
		}
	}
	if ParseActivityKind("HOVERING") != ActivityUnknown {
		t.Error("unrecognised labels should map to UNKNOWN")
	}

	b, err := json.Marshal(MotionSample{Kind: ActivityInVehicle, ConfidencePercent: 85})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"kind":"IN_VEHICLE","confidence":85}` {
		t.Errorf("unexpected JSON %s", b)
	}
}

func TestParseRawTransitionKind(t *testing.T) {
	k, err := ParseRawTransitionKind("DWELL")
	if err != nil || k != RawDwell {
		t.Errorf("expected DWELL, got %v (%v)", k, err)
	}
	if _, err := ParseRawTransitionKind("HOVER"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestDeadlineViolationMessage(t *testing.T) {
	v := &DeadlineViolation{SiteID: "3", Elapsed: 6e9, Deadline: AckDeadline}
	if v.Error() != "acknowledgment for site 3 took 6s, deadline 5s" {
		t.Errorf("unexpected message %q", v.Error())
	}
}
