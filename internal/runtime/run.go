package runtime

import (
	"fmt"

	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/flow"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusActive        Status = "active"
	StatusAwaitingReply Status = "awaiting_reply"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
)

// Run is one execution of a protocol for one role. A run awaiting a reply is
// its own continuation token: Step is the next step to execute and Pending is
// the message whose reply it waits for.
type Run struct {
	ID       string
	Protocol domain.Protocol
	Role     int
	Step     int
	Status   Status
	Message  domain.ProtocolMessage
	Context  *flow.Context
	Pending  *domain.ProtocolMessage

	// Result is the staged channel map, set once the run completes.
	Result domain.ChannelMap
	Err    error
}

// StepError reports the step at which a run aborted.
type StepError struct {
	Protocol domain.Protocol
	Role     int
	Index    int
	Name     string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s role %d step %d (%s): %v", e.Protocol, e.Role, e.Index, e.Name, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
