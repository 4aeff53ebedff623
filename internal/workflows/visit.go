package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/sitewatch/internal/core/domain"
)

const (
	// SignalSiteExited carries the confirmed exit that closes a visit.
	SignalSiteExited = "site-exited"
	// QueryVisitStatus returns the current VisitStatus.
	QueryVisitStatus = "visit-status"
	// MaxVisitDuration abandons a visit whose exit never arrives.
	MaxVisitDuration = 12 * time.Hour
)

// VisitWorkflowID is the workflow id of the open visit at siteID. There is
// at most one open visit per site.
func VisitWorkflowID(siteID string) string { return "visit-" + siteID }

// VisitInput starts a visit from a confirmed entry.
type VisitInput struct {
	EntryEventID string              `json:"entry_event_id"`
	SiteID       string              `json:"site_id"`
	EnteredAt    time.Time           `json:"entered_at"`
	EntryMotion  domain.MotionSample `json:"entry_motion"`
}

// ExitSignal is the payload of SignalSiteExited.
type ExitSignal struct {
	EventID  string    `json:"event_id"`
	ExitedAt time.Time `json:"exited_at"`
}

// VisitStatus is returned by QueryVisitStatus.
type VisitStatus struct {
	SiteID    string    `json:"site_id"`
	EnteredAt time.Time `json:"entered_at"`
	Open      bool      `json:"open"`
}

// VisitResult is the workflow result. Summary is nil for an abandoned visit.
type VisitResult struct {
	Abandoned bool                 `json:"abandoned"`
	Summary   *domain.VisitSummary `json:"summary,omitempty"`
}

// SiteVisitWorkflow follows one visit from confirmed entry to confirmed exit
// and records its summary.
func SiteVisitWorkflow(ctx workflow.Context, input VisitInput) (VisitResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("visit started", "siteID", input.SiteID, "enteredAt", input.EnteredAt)

	status := VisitStatus{SiteID: input.SiteID, EnteredAt: input.EnteredAt, Open: true}
	if err := workflow.SetQueryHandler(ctx, QueryVisitStatus, func() (VisitStatus, error) {
		return status, nil
	}); err != nil {
		return VisitResult{}, err
	}

	var exit ExitSignal
	exited := false

	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	sel := workflow.NewSelector(ctx)
	sel.AddReceive(workflow.GetSignalChannel(ctx, SignalSiteExited), func(c workflow.ReceiveChannel, _ bool) {
		c.Receive(ctx, &exit)
		exited = true
	})
	sel.AddFuture(workflow.NewTimer(timerCtx, MaxVisitDuration), func(workflow.Future) {})
	sel.Select(ctx)
	cancelTimer()

	status.Open = false
	if !exited {
		logger.Warn("visit abandoned without exit", "siteID", input.SiteID)
		return VisitResult{Abandoned: true}, nil
	}

	exitedAt := exit.ExitedAt
	if exitedAt.Before(input.EnteredAt) {
		exitedAt = input.EnteredAt
	}
	summary := &domain.VisitSummary{
		SiteID:      input.SiteID,
		EnteredAt:   input.EnteredAt,
		ExitedAt:    exitedAt,
		Dwell:       exitedAt.Sub(input.EnteredAt),
		EntryMotion: input.EntryMotion,
	}

	actCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})
	var a *VisitActivities
	if err := workflow.ExecuteActivity(actCtx, a.RecordVisit, summary).Get(ctx, nil); err != nil {
		return VisitResult{}, err
	}

	logger.Info("visit recorded", "siteID", input.SiteID, "dwell", summary.Dwell)
	return VisitResult{Summary: summary}, nil
}
