package domain

import "time"

// Platform contract. These values are shared with the device side and are
// not configurable.
const (
	// CapacityCeiling is the maximum number of regions the facility monitors at once.
	CapacityCeiling = 100

	// MaxRegistrationHandles is the facility's limit on distinct registration handles.
	MaxRegistrationHandles = 5

	// DwellDelay is how long a user must stay inside before DWELL fires.
	// 30 seconds filters out drive-by triggers.
	DwellDelay = 30 * time.Second

	// MotionSampleInterval is the requested motion classification period.
	MotionSampleInterval = 10 * time.Second

	// AckDeadline bounds the time between a dispatcher wake-up and its
	// visible acknowledgment.
	AckDeadline = 5 * time.Second

	// NeverExpire marks a region that stays registered until removed.
	NeverExpire time.Duration = -1

	InVehicleConfidence = 70
	OnFootConfidence    = 50
	StillConfidence     = 60
)

// Boot signal actions accepted by the rehydrator.
const (
	BootCompleted    = "BOOT_COMPLETED"
	QuickbootPowerOn = "QUICKBOOT_POWERON"
)

// DefaultSiteName is shown when a site id cannot be resolved locally.
const DefaultSiteName = "Heritage Site"
