package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/schedule"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateDefinition checks a definition before it is stored. Errors wrap the
// validation sentinels of this package or of models.
func ValidateDefinition(definition *models.WorkflowDefinition) error {
	if err := validate.Struct(definition); err != nil {
		return NewValidationError("ValidateDefinition", "INVALID_REQUEST", describeValidation(err), ErrInvalidRequest)
	}

	if !definition.Status.Valid() {
		return NewValidationError(
			"ValidateDefinition",
			"INVALID_STATUS",
			fmt.Sprintf("invalid status '%s'", definition.Status),
			ErrInvalidStatus,
		)
	}

	if err := ValidateTrigger(definition.TriggerConfig); err != nil {
		return err
	}

	if err := validateConditions("conditions", definition.Conditions); err != nil {
		return err
	}

	if err := validateActions(definition.Actions, "actions", map[string]struct{}{}); err != nil {
		return err
	}

	if definition.IsActive() && len(definition.Actions) == 0 {
		return NewValidationError("ValidateDefinition", "ACTIONS_REQUIRED", ErrActionsRequired.Error(), ErrActionsRequired)
	}

	return nil
}

// ValidateTrigger checks the fields required by the trigger's kind.
func ValidateTrigger(trigger models.TriggerConfig) error {
	switch trigger.Kind {
	case models.TriggerKindEvent:
		if !models.IsKnownEvent(trigger.EventType) {
			return NewValidationError(
				"ValidateTrigger",
				"UNKNOWN_EVENT_TYPE",
				fmt.Sprintf("unknown event type '%s'", trigger.EventType),
				ErrUnknownEventType,
			)
		}
	case models.TriggerKindSchedule:
		if _, err := schedule.Parse(trigger.Expression, trigger.Timezone); err != nil {
			return NewValidationError(
				"ValidateTrigger",
				"INVALID_SCHEDULE",
				fmt.Sprintf("invalid schedule '%s': %v", trigger.Expression, err),
				ErrInvalidSchedule,
			)
		}
	case models.TriggerKindWebhook:
		if strings.TrimSpace(trigger.WebhookID) == "" {
			return NewValidationError("ValidateTrigger", "INVALID_WEBHOOK", "webhook_id is required", ErrInvalidWebhook)
		}

		if trigger.Schema != nil {
			if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(trigger.Schema)); err != nil {
				return NewValidationError(
					"ValidateTrigger",
					"INVALID_WEBHOOK",
					fmt.Sprintf("invalid webhook schema: %v", err),
					ErrInvalidWebhook,
				)
			}
		}
	case models.TriggerKindManual:
	default:
		return NewValidationError(
			"ValidateTrigger",
			"INVALID_TRIGGER",
			fmt.Sprintf("unknown trigger kind '%s'", trigger.Kind),
			ErrInvalidTrigger,
		)
	}

	return nil
}

// ValidateWebhookPayload checks payload against a JSON schema.
func ValidateWebhookPayload(schema map[string]any, payload map[string]any) error {
	if schema == nil {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(payload))
	if err != nil {
		return NewValidationError("ValidateWebhookPayload", "INVALID_WEBHOOK", err.Error(), ErrInvalidWebhook)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return NewValidationError("ValidateWebhookPayload", "INVALID_PAYLOAD", strings.Join(messages, "; "), ErrInvalidPayload)
	}

	return nil
}

func validateConditions(path string, conditions []models.Condition) error {
	for i, condition := range conditions {
		where := fmt.Sprintf("%s[%d]", path, i)

		if strings.TrimSpace(condition.Field) == "" {
			return NewValidationError("validateConditions", "INVALID_REQUEST", where+": field is required", ErrInvalidRequest)
		}

		if !condition.Operator.Valid() {
			return NewValidationError(
				"validateConditions",
				"UNKNOWN_OPERATOR",
				fmt.Sprintf("%s: unknown operator '%s'", where, condition.Operator),
				models.ErrUnknownOperator,
			)
		}

		if condition.Logic != "" && condition.Logic != models.LogicAnd && condition.Logic != models.LogicOr {
			return NewValidationError(
				"validateConditions",
				"UNKNOWN_LOGIC",
				fmt.Sprintf("%s: unknown logic '%s'", where, condition.Logic),
				models.ErrUnknownLogic,
			)
		}
	}

	return nil
}

// validateActions walks the action tree. Action ids key the results map, so
// they must be unique across all branches.
func validateActions(actions models.Actions, path string, seen map[string]struct{}) error {
	for i, action := range actions {
		where := fmt.Sprintf("%s[%d]", path, i)

		if action == nil {
			return NewValidationError("validateActions", "UNKNOWN_ACTION_TYPE", where+": missing action", models.ErrUnknownActionType)
		}

		id := strings.TrimSpace(action.ActionID())
		if id == "" {
			return NewValidationError("validateActions", "INVALID_REQUEST", where+": id is required", ErrInvalidRequest)
		}

		if _, dup := seen[id]; dup {
			return NewValidationError(
				"validateActions",
				"INVALID_REQUEST",
				fmt.Sprintf("%s: duplicate action id '%s'", where, id),
				ErrInvalidRequest,
			)
		}

		seen[id] = struct{}{}

		switch a := action.(type) {
		case *models.HandlerAction:
			if !models.IsHandlerActionType(a.Type) {
				return NewValidationError(
					"validateActions",
					"UNKNOWN_ACTION_TYPE",
					fmt.Sprintf("%s: unknown action type '%s'", where, a.Type),
					models.ErrUnknownActionType,
				)
			}
		case *models.DelayAction:
			if a.Duration.Std() <= 0 {
				return NewValidationError("validateActions", "INVALID_REQUEST", where+": delay duration must be positive", ErrInvalidRequest)
			}
		case *models.ConditionalAction:
			if err := validateConditions(where+".conditions", a.Conditions); err != nil {
				return err
			}

			if err := validateActions(a.ThenActions, where+".then_actions", seen); err != nil {
				return err
			}

			if err := validateActions(a.ElseActions, where+".else_actions", seen); err != nil {
				return err
			}
		default:
			return NewValidationError(
				"validateActions",
				"UNKNOWN_ACTION_TYPE",
				fmt.Sprintf("%s: unknown action type '%s'", where, action.ActionType()),
				models.ErrUnknownActionType,
			)
		}
	}

	return nil
}

func describeValidation(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		messages = append(messages, fmt.Sprintf("%s failed on '%s'", fieldErr.Namespace(), fieldErr.Tag()))
	}

	return strings.Join(messages, "; ")
}
