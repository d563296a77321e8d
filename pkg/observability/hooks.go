package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/chanflow/pkg/domain"
)

// LoggingHooks logs run transitions at info and steps at debug.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	run := func(msg string) func(context.Context, *domain.RunEvent) {
		return func(ctx context.Context, e *domain.RunEvent) {
			attrs := []any{"run_id", e.RunID, "protocol", e.Protocol, "role", e.Role}
			if e.Err != nil {
				logger.WarnContext(ctx, msg, append(attrs, "err", e.Err)...)
				return
			}
			logger.InfoContext(ctx, msg, attrs...)
		}
	}
	return domain.LifecycleHooks{
		OnRunStart:    run("run_start"),
		OnRunSuspend:  run("run_suspend"),
		OnRunComplete: run("run_complete"),
		OnRunFail:     run("run_fail"),
		OnStep: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step",
				"run_id", e.RunID,
				"protocol", e.Protocol,
				"role", e.Role,
				"index", e.Index,
				"name", e.Name,
				"duration", e.Duration,
				"is_error", e.IsError,
			)
		},
	}
}

// Combine returns hooks calling each of hooks in order. Nil callbacks are
// skipped.
func Combine(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	runs := func(pick func(domain.LifecycleHooks) func(context.Context, *domain.RunEvent)) func(context.Context, *domain.RunEvent) {
		var fns []func(context.Context, *domain.RunEvent)
		for _, h := range hooks {
			if fn := pick(h); fn != nil {
				fns = append(fns, fn)
			}
		}
		if len(fns) == 0 {
			return nil
		}
		return func(ctx context.Context, e *domain.RunEvent) {
			for _, fn := range fns {
				fn(ctx, e)
			}
		}
	}

	var steps []func(context.Context, *domain.StepEvent)
	for _, h := range hooks {
		if h.OnStep != nil {
			steps = append(steps, h.OnStep)
		}
	}
	var onStep func(context.Context, *domain.StepEvent)
	if len(steps) > 0 {
		onStep = func(ctx context.Context, e *domain.StepEvent) {
			for _, fn := range steps {
				fn(ctx, e)
			}
		}
	}

	return domain.LifecycleHooks{
		OnRunStart:    runs(func(h domain.LifecycleHooks) func(context.Context, *domain.RunEvent) { return h.OnRunStart }),
		OnRunSuspend:  runs(func(h domain.LifecycleHooks) func(context.Context, *domain.RunEvent) { return h.OnRunSuspend }),
		OnRunComplete: runs(func(h domain.LifecycleHooks) func(context.Context, *domain.RunEvent) { return h.OnRunComplete }),
		OnRunFail:     runs(func(h domain.LifecycleHooks) func(context.Context, *domain.RunEvent) { return h.OnRunFail }),
		OnStep:        onStep,
	}
}
