package permission

import "testing"

func TestStatic(t *testing.T) {
	s := NewStatic(true, false)
	if !s.HasLocationCapability() || s.HasMotionCapability() {
		t.Fatalf("unexpected initial grants: location=%v motion=%v", s.HasLocationCapability(), s.HasMotionCapability())
	}

	s.SetLocation(false)
	s.SetMotion(true)
	if s.HasLocationCapability() {
		t.Error("expected location revoked")
	}
	if !s.HasMotionCapability() {
		t.Error("expected motion granted")
	}
}
