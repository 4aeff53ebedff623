package usecases

import (
	"context"
	"log/slog"

	"github.com/samirrijal/sitewatch/internal/core/domain"
)

// Syncer starts a fetch-and-register cycle.
type Syncer interface {
	SyncAndRegister()
}

// Tracker (re)subscribes to motion updates.
type Tracker interface {
	StartTracking(ctx context.Context) error
}

// RebootRehydrator restores region monitoring and motion tracking after the
// device restarts, since the platform clears both. It holds no state.
type RebootRehydrator struct {
	sync    Syncer
	tracker Tracker
}

// NewRebootRehydrator creates a rehydrator.
func NewRebootRehydrator(sync Syncer, tracker Tracker) *RebootRehydrator {
	return &RebootRehydrator{sync: sync, tracker: tracker}
}

// IsBootAction reports whether action is one of the restart signals.
func IsBootAction(action string) bool {
	return action == domain.BootCompleted || action == domain.QuickbootPowerOn
}

// OnBoot handles a device signal. It returns false for anything that is not
// a restart signal.
func (r *RebootRehydrator) OnBoot(ctx context.Context, action string) bool {
	if !IsBootAction(action) {
		slog.Debug("ignoring non-boot device signal", "action", action)
		return false
	}

	slog.Info("device restarted, re-registering regions", "action", action)
	r.sync.SyncAndRegister()

	if err := r.tracker.StartTracking(ctx); err != nil {
		slog.Warn("motion tracking not restored after boot", "error", err)
	}
	return true
}
