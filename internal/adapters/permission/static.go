// Package permission answers capability queries from configuration. The
// grants can be changed at runtime, which is how revocations are simulated.
package permission

import "sync/atomic"

// Static implements ports.PermissionChecker.
type Static struct {
	location atomic.Bool
	motion   atomic.Bool
}

func NewStatic(location, motion bool) *Static {
	s := &Static{}
	s.location.Store(location)
	s.motion.Store(motion)
	return s
}

func (s *Static) HasLocationCapability() bool { return s.location.Load() }
func (s *Static) HasMotionCapability() bool   { return s.motion.Load() }

func (s *Static) SetLocation(granted bool) { s.location.Store(granted) }
func (s *Static) SetMotion(granted bool)   { s.motion.Store(granted) }
