package usecases

import (
	"sync/atomic"

	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/pkg/metrics"
)

// MotionReader is the read side of the motion classifier.
type MotionReader interface {
	Sample() domain.MotionSample
	IsInVehicle() bool
}

// MotionClassifier holds the single most recent motion sample.
//
// Samples are immutable and swapped through an atomic pointer, so a reader
// always sees a kind and confidence that were written together.
type MotionClassifier struct {
	current atomic.Pointer[domain.MotionSample]
}

var unknownSample = domain.MotionSample{Kind: domain.ActivityUnknown}

// NewMotionClassifier creates a classifier holding UNKNOWN (0%).
func NewMotionClassifier() *MotionClassifier {
	c := &MotionClassifier{}
	s := unknownSample
	c.current.Store(&s)
	return c
}

// Update overwrites the current sample.
func (c *MotionClassifier) Update(kind domain.ActivityKind, confidencePercent int) {
	c.current.Store(&domain.MotionSample{Kind: kind, ConfidencePercent: confidencePercent})
	metrics.MotionSamples.WithLabelValues(kind.String()).Inc()
}

// UpdateSample is Update for a whole sample, usable as a MotionUpdates sink.
func (c *MotionClassifier) UpdateSample(s domain.MotionSample) {
	c.Update(s.Kind, s.ConfidencePercent)
}

// Sample returns the current sample.
func (c *MotionClassifier) Sample() domain.MotionSample {
	if s := c.current.Load(); s != nil {
		return *s
	}
	return unknownSample
}

// IsInVehicle is true only for IN_VEHICLE at InVehicleConfidence or above.
func (c *MotionClassifier) IsInVehicle() bool {
	s := c.Sample()
	return s.Kind == domain.ActivityInVehicle && s.ConfidencePercent >= domain.InVehicleConfidence
}

// IsOnFoot is true for walking, running or on-foot classifications.
func (c *MotionClassifier) IsOnFoot() bool {
	s := c.Sample()
	switch s.Kind {
	case domain.ActivityWalking, domain.ActivityOnFoot, domain.ActivityRunning:
		return s.ConfidencePercent >= domain.OnFootConfidence
	}
	return false
}

// IsStill is true when the user is confidently stationary.
func (c *MotionClassifier) IsStill() bool {
	s := c.Sample()
	return s.Kind == domain.ActivityStill && s.ConfidencePercent >= domain.StillConfidence
}

func (c *MotionClassifier) String() string {
	return c.Sample().String()
}
