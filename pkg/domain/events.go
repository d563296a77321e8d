package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventRunStart    EventType = "run_start"
	EventRunSuspend  EventType = "run_suspend"
	EventRunComplete EventType = "run_complete"
	EventRunFail     EventType = "run_fail"
	EventStep        EventType = "step"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
}

// RunEvent reports a change in a run's status.
type RunEvent struct {
	EventBase
	Protocol Protocol `json:"protocol"`
	Role     int      `json:"role"`
	Err      error    `json:"-"`
}

// StepEvent reports the execution of one step.
type StepEvent struct {
	EventBase
	Protocol Protocol      `json:"protocol"`
	Role     int           `json:"role"`
	Index    int           `json:"index"`
	Name     string        `json:"name"`
	Opcode   Opcode        `json:"opcode,omitempty"`
	Duration time.Duration `json:"duration"`
	IsError  bool          `json:"is_error,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnRunStart    func(context.Context, *RunEvent)
	OnRunSuspend  func(context.Context, *RunEvent)
	OnRunComplete func(context.Context, *RunEvent)
	OnRunFail     func(context.Context, *RunEvent)
	OnStep        func(context.Context, *StepEvent)
}
