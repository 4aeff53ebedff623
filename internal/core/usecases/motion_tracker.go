package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/core/ports"
)

// MotionTracker owns the subscription to the motion classification channel.
type MotionTracker struct {
	updates     ports.MotionUpdates
	permissions ports.PermissionChecker
	classifier  *MotionClassifier

	mu      sync.Mutex
	started bool
}

// NewMotionTracker creates a tracker feeding classifier.
func NewMotionTracker(updates ports.MotionUpdates, permissions ports.PermissionChecker, classifier *MotionClassifier) *MotionTracker {
	return &MotionTracker{updates: updates, permissions: permissions, classifier: classifier}
}

// StartTracking subscribes to motion samples every MotionSampleInterval.
// Without the motion capability it returns ErrPermission and the engine keeps
// running without vehicle suppression.
//
// The request is re-issued even when already tracking: the platform drops
// the subscription on reboot without telling us.
func (t *MotionTracker) StartTracking(ctx context.Context) error {
	if !t.permissions.HasMotionCapability() {
		slog.Warn("motion capability not granted, skipping motion tracking")
		return domain.ErrPermission
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.updates.RequestUpdates(ctx, domain.MotionSampleInterval, t.classifier.UpdateSample); err != nil {
		slog.Error("failed to start motion tracking", "error", err)
		return fmt.Errorf("request motion updates: %w", err)
	}
	t.started = true
	slog.Info("motion tracking started", "interval", domain.MotionSampleInterval.String())
	return nil
}

// StopTracking removes the subscription. Failures are logged only.
func (t *MotionTracker) StopTracking(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.updates.RemoveUpdates(ctx); err != nil {
		slog.Warn("remove motion updates", "error", err)
	}
	t.started = false
	slog.Info("motion tracking stopped")
}

// Tracking reports whether a subscription is active.
func (t *MotionTracker) Tracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}
