package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/samirrijal/sitewatch/internal/core/domain"
)

// Step is one entry of a replay trace. Every field is optional; a step with
// only Wait just advances time.
type Step struct {
	Latitude   *float64 `json:"lat,omitempty"`
	Longitude  *float64 `json:"lon,omitempty"`
	Motion     string   `json:"motion,omitempty"`
	Confidence int      `json:"confidence,omitempty"`
	Boot       string   `json:"boot,omitempty"`
	Available  *bool    `json:"available,omitempty"`
	Wait       string   `json:"wait,omitempty"`

	wait time.Duration
}

// Fix returns the location of the step, if it has one.
func (s Step) Fix(at time.Time) (domain.LocationFix, bool) {
	if s.Latitude == nil || s.Longitude == nil {
		return domain.LocationFix{}, false
	}
	return domain.LocationFix{Latitude: *s.Latitude, Longitude: *s.Longitude, At: at}, true
}

// Sample returns the motion classification of the step, if it has one.
func (s Step) Sample() (domain.MotionSample, bool) {
	if s.Motion == "" {
		return domain.MotionSample{}, false
	}
	return domain.MotionSample{Kind: domain.ParseActivityKind(s.Motion), ConfidencePercent: s.Confidence}, true
}

var world = domain.Bounds{MinLat: -90, MinLon: -180, MaxLat: 90, MaxLon: 180}

// LoadTrace reads a JSON array of steps from path.
func LoadTrace(path string) ([]Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return ParseTrace(data)
}

// ParseTrace decodes and checks a trace.
func ParseTrace(data []byte) ([]Step, error) {
	var steps []Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("parse trace: %w", err)
	}
	for i := range steps {
		s := &steps[i]
		if (s.Latitude == nil) != (s.Longitude == nil) {
			return nil, fmt.Errorf("step %d: lat and lon must be given together", i)
		}
		if s.Latitude != nil {
			if !world.Contains(domain.GeoPoint{Lat: *s.Latitude, Lon: *s.Longitude}) {
				return nil, fmt.Errorf("step %d: coordinates out of range", i)
			}
		}
		if s.Confidence < 0 || s.Confidence > 100 {
			return nil, fmt.Errorf("step %d: confidence must be 0-100", i)
		}
		if s.Wait != "" {
			d, err := time.ParseDuration(s.Wait)
			if err != nil || d < 0 {
				return nil, fmt.Errorf("step %d: invalid wait %q", i, s.Wait)
			}
			s.wait = d
		}
	}
	return steps, nil
}
