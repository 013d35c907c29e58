// Package workflow runs workflow definitions: it matches stimuli to
// definitions, executes their actions and resumes delayed executions.
package workflow

import (
	"errors"
	"fmt"

	"github.com/dukex/autoflow/pkg/models"
)

var (
	ErrUnsupportedAction = errors.New("unsupported action")
	ErrUnknownStimulus   = errors.New("unknown stimulus")
)

// ActionError reports the action that stopped an execution.
type ActionError struct {
	ActionID   string
	ActionType models.ActionType
	Index      int
	Path       string
	Err        error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %q (%s) at index %d failed: %v", e.ActionID, e.ActionType, e.Index, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Details is the structured form stored on the execution.
func (e *ActionError) Details() map[string]any {
	return map[string]any{
		"action_id":   e.ActionID,
		"action_type": string(e.ActionType),
		"index":       e.Index,
		"path":        e.Path,
		"error":       e.Err.Error(),
	}
}
