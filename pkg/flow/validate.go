package flow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/chanflow/pkg/domain"
)

// ErrInvalidFlow is returned by Validate.
var ErrInvalidFlow = errors.New("invalid flow")

// Validate checks the structural rules every flow must follow: roles are
// numbered contiguously from 0, each role is non-empty and ends by persisting,
// a role suspends at most once, and each step is exactly one of a transform or
// an operation.
func Validate(name domain.Protocol, f Flow) error {
	if len(f) == 0 {
		return fmt.Errorf("%w: %s defines no roles", ErrInvalidFlow, name)
	}

	var problems []string
	for role := 0; role < len(f); role++ {
		steps, ok := f[role]
		if !ok {
			problems = append(problems, fmt.Sprintf("role %d is missing", role))
			continue
		}
		if len(steps) == 0 {
			problems = append(problems, fmt.Sprintf("role %d has no steps", role))
			continue
		}

		waits := 0
		for i, s := range steps {
			hasTransform := s.Transform != nil
			hasOp := s.Op != ""
			if hasTransform == hasOp {
				problems = append(problems, fmt.Sprintf("role %d step %d (%s) must be either a transform or an operation", role, i, s.Name))
			}
			if s.Op == domain.OpSendAndWait {
				waits++
			}
		}
		if waits > 1 {
			problems = append(problems, fmt.Sprintf("role %d waits for a reply %d times", role, waits))
		}
		if last := steps[len(steps)-1]; last.Op != domain.OpPersist {
			problems = append(problems, fmt.Sprintf("role %d must end with %s", role, domain.OpPersist))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s:\n- %s", ErrInvalidFlow, name, strings.Join(problems, "\n- "))
	}
	return nil
}
