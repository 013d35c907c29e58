package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ActionType is the discriminator of an action in a definition's action list.
type ActionType string

const (
	ActionTypeSendEmail        ActionType = "send_email"
	ActionTypeCreateInvoice    ActionType = "create_invoice"
	ActionTypeUpdateExpense    ActionType = "update_expense"
	ActionTypeSendNotification ActionType = "send_notification"
	ActionTypeWebhook          ActionType = "webhook"
	ActionTypeDelay            ActionType = "delay"
	ActionTypeConditional      ActionType = "conditional"
)

// ErrUnknownActionType is returned when an action carries a type outside the closed set.
var ErrUnknownActionType = errors.New("unknown action type")

// HandlerActionTypes lists the action types dispatched to a registered handler.
func HandlerActionTypes() []ActionType {
	return []ActionType{
		ActionTypeSendEmail,
		ActionTypeCreateInvoice,
		ActionTypeUpdateExpense,
		ActionTypeSendNotification,
		ActionTypeWebhook,
	}
}

// IsHandlerActionType reports whether t is executed through a handler.
func IsHandlerActionType(t ActionType) bool {
	for _, known := range HandlerActionTypes() {
		if known == t {
			return true
		}
	}

	return false
}

// Action is one step of a workflow. The set of implementations is closed:
// *HandlerAction, *DelayAction and *ConditionalAction.
type Action interface {
	ActionID() string
	ActionType() ActionType
	isAction()
}

// HandlerAction runs the handler registered for its Type with Config.
type HandlerAction struct {
	ID              string         `json:"id"`
	Type            ActionType     `json:"type"`
	Config          map[string]any `json:"config,omitempty"`
	ContinueOnError bool           `json:"continue_on_error,omitempty"`
}

func (a *HandlerAction) ActionID() string       { return a.ID }
func (a *HandlerAction) ActionType() ActionType { return a.Type }
func (a *HandlerAction) isAction()              {}

// DelayAction suspends the execution for Duration.
type DelayAction struct {
	ID              string   `json:"id"`
	Duration        Duration `json:"duration"`
	ContinueOnError bool     `json:"continue_on_error,omitempty"`
}

func (a *DelayAction) ActionID() string       { return a.ID }
func (a *DelayAction) ActionType() ActionType { return ActionTypeDelay }
func (a *DelayAction) isAction()              {}

func (a *DelayAction) MarshalJSON() ([]byte, error) {
	type alias DelayAction

	return json.Marshal(struct {
		Type ActionType `json:"type"`
		*alias
	}{ActionTypeDelay, (*alias)(a)})
}

// ConditionalAction runs ThenActions when Conditions hold, ElseActions otherwise.
type ConditionalAction struct {
	ID          string      `json:"id"`
	Conditions  []Condition `json:"conditions"`
	ThenActions Actions     `json:"then_actions"`
	ElseActions Actions     `json:"else_actions"`
}

func (a *ConditionalAction) ActionID() string       { return a.ID }
func (a *ConditionalAction) ActionType() ActionType { return ActionTypeConditional }
func (a *ConditionalAction) isAction()              {}

func (a *ConditionalAction) MarshalJSON() ([]byte, error) {
	type alias ConditionalAction

	return json.Marshal(struct {
		Type ActionType `json:"type"`
		*alias
	}{ActionTypeConditional, (*alias)(a)})
}

// Branch returns the actions of the named branch.
func (a *ConditionalAction) Branch(b Branch) Actions {
	if b == BranchElse {
		return a.ElseActions
	}

	return a.ThenActions
}

// Actions is an ordered action list that decodes its elements by "type".
type Actions []Action

func (as *Actions) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	decoded := make(Actions, 0, len(raw))

	for i, item := range raw {
		action, err := DecodeAction(item)
		if err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}

		decoded = append(decoded, action)
	}

	*as = decoded

	return nil
}

// Clone returns a deep copy of the list.
func (as Actions) Clone() (Actions, error) {
	data, err := json.Marshal(as)
	if err != nil {
		return nil, err
	}

	var out Actions
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	if out == nil {
		out = Actions{}
	}

	return out, nil
}

// DecodeAction decodes a single action object using its "type" discriminator.
func DecodeAction(data []byte) (Action, error) { //nolint:ireturn // sealed variant
	var head struct {
		Type ActionType `json:"type"`
	}

	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch {
	case head.Type == ActionTypeDelay:
		var a DelayAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, err
		}

		return &a, nil
	case head.Type == ActionTypeConditional:
		var a ConditionalAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, err
		}

		return &a, nil
	case IsHandlerActionType(head.Type):
		var a HandlerAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, err
		}

		return &a, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, head.Type)
	}
}

// Duration accepts either a Go duration string ("90s", "5m") or a number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value * float64(time.Second)))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			seconds, convErr := strconv.ParseFloat(value, 64)
			if convErr != nil {
				return fmt.Errorf("invalid duration %q: %w", value, err)
			}

			parsed = time.Duration(seconds * float64(time.Second))
		}

		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %v", v)
	}

	return nil
}

// Branch names one arm of a conditional action.
type Branch string

const (
	BranchThen Branch = "then"
	BranchElse Branch = "else"
)

// CursorFrame is one level of a position inside nested action lists. A frame
// with a Branch points into that branch of the conditional at Index; a frame
// without one points at the next action to run in the current list.
type CursorFrame struct {
	Index  int    `json:"index"`
	Branch Branch `json:"branch,omitempty"`
}

// Cursor addresses the next action to run, outermost list first.
type Cursor []CursorFrame

// String renders the cursor as a dotted path such as "2.then.0".
func (c Cursor) String() string {
	out := ""

	for i, frame := range c {
		if i > 0 {
			out += "."
		}

		out += strconv.Itoa(frame.Index)
		if frame.Branch != "" {
			out += "." + string(frame.Branch)
		}
	}

	return out
}
