package runtime

import (
	"context"
	"time"

	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/flow"
)

func (e *Engine) emitRun(ctx context.Context, hook func(context.Context, *domain.RunEvent), typ domain.EventType, run *Run, err error) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.RunEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now(),
			Type:      typ,
			RunID:     run.ID,
		},
		Protocol: run.Protocol,
		Role:     run.Role,
		Err:      err,
	})
}

func (e *Engine) emitStep(ctx context.Context, run *Run, index int, s flow.Step, d time.Duration, isError bool) {
	if e.hooks.OnStep == nil {
		return
	}
	e.hooks.OnStep(ctx, &domain.StepEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now(),
			Type:      domain.EventStep,
			RunID:     run.ID,
		},
		Protocol: run.Protocol,
		Role:     run.Role,
		Index:    index,
		Name:     s.Name,
		Opcode:   s.Op,
		Duration: d,
		IsError:  isError,
	})
}
