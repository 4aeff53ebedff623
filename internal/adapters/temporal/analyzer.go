// Package temporaladapter starts and closes durable visit workflows.
package temporaladapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/workflows"
)

// VisitAnalyzer implements ports.VisitAnalyzer. A confirmed entry starts the
// site's visit workflow and the matching exit signals it.
type VisitAnalyzer struct {
	client    client.Client
	taskQueue string
}

func NewVisitAnalyzer(c client.Client, taskQueue string) *VisitAnalyzer {
	return &VisitAnalyzer{client: c, taskQueue: taskQueue}
}

func (a *VisitAnalyzer) Analyze(ctx context.Context, ev *domain.ConfirmedTransitionEvent) error {
	id := workflows.VisitWorkflowID(ev.SiteID)

	switch ev.Kind {
	case domain.Entered:
		opts := client.StartWorkflowOptions{
			ID:                    id,
			TaskQueue:             a.taskQueue,
			WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
			// A redelivered entry joins the visit already running.
			WorkflowExecutionErrorWhenAlreadyStarted: false,
		}
		input := workflows.VisitInput{
			EntryEventID: ev.ID,
			SiteID:       ev.SiteID,
			EnteredAt:    ev.ObservedAt,
			EntryMotion:  ev.Motion,
		}
		run, err := a.client.ExecuteWorkflow(ctx, opts, workflows.SiteVisitWorkflow, input)
		if err != nil {
			return fmt.Errorf("start visit %s: %w", id, err)
		}
		slog.Debug("visit workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID())
		return nil

	case domain.Exited:
		err := a.client.SignalWorkflow(ctx, id, "", workflows.SignalSiteExited,
			workflows.ExitSignal{EventID: ev.ID, ExitedAt: ev.ObservedAt})
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			slog.Info("exit without an open visit", "site_id", ev.SiteID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("signal visit %s: %w", id, err)
		}
		return nil
	}
	return fmt.Errorf("unknown transition kind %q", ev.Kind)
}
