package telemetry

import "testing"

func TestTransitionAttrs(t *testing.T) {
	attrs := TransitionAttrs("ev-1", "3", "ENTERED")
	if len(attrs) != 3 {
		t.Fatalf("expected 3 attributes, got %d", len(attrs))
	}
	want := map[string]string{"event.id": "ev-1", "site.id": "3", "transition.kind": "ENTERED"}
	for _, kv := range attrs {
		if want[string(kv.Key)] != kv.Value.AsString() {
			t.Errorf("unexpected %s=%s", kv.Key, kv.Value.AsString())
		}
	}
}

func TestShutdownNil(t *testing.T) {
	Shutdown(nil)
}
