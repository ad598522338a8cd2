package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/elonfeng/rankradar/pkg/alert"
)

// Notification renders a failed report for alert destinations.
func (r Report) Notification() *alert.Notification {
	n := &alert.Notification{
		Title:      fmt.Sprintf("rankradar: %s/%s scrape failed", r.Kind, r.Period),
		RunID:      r.RunID,
		Kind:       string(r.Kind),
		Period:     string(r.Period),
		Extracted:  r.Extracted,
		Persisted:  r.Persisted,
		OccurredAt: r.CapturedAt,
	}
	if r.Err != nil {
		n.Error = r.Err.Error()
		n.Body = n.Error
	}
	if r.FallbackPath != "" {
		n.Body += "\nbatch saved to " + r.FallbackPath
	}
	for _, f := range r.Failures {
		n.FailedKeys = append(n.FailedKeys, f.Key.String())
	}
	return n
}

// NotifyFailures broadcasts one notification per failed report.
func NotifyFailures(ctx context.Context, mgr *alert.Manager, reports []Report) error {
	if !mgr.HasNotifiers() {
		return nil
	}
	var errs []error
	for _, r := range reports {
		if r.OK() {
			continue
		}
		if err := mgr.Broadcast(ctx, r.Notification()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
