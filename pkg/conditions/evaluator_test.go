package conditions_test

import (
	"encoding/json"
	"testing"

	"github.com/dukex/autoflow/pkg/conditions"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

func cond(field string, op models.Operator, value any, logic models.Logic) models.Condition {
	return models.Condition{Field: field, Operator: op, Value: value, Logic: logic}
}

func TestEvaluate_EmptyListIsTrue(t *testing.T) {
	t.Parallel()

	assert.True(t, conditions.Evaluate(nil, map[string]any{}))
	assert.True(t, conditions.Evaluate([]models.Condition{}, nil))
}

func TestEvaluate_Operators(t *testing.T) {
	t.Parallel()

	data := conditions.NewContext(map[string]any{
		"invoice": map[string]any{
			"amount":   250.5,
			"currency": "EUR",
			"count":    json.Number("3"),
			"raw":      "42",
			"tags":     []any{"late", "vip"},
			"customer": map[string]any{"tier": "gold"},
		},
		"status": "overdue",
	}, map[string]any{"a1": map[string]any{"sent": true}})

	tests := []struct {
		name      string
		condition models.Condition
		want      bool
	}{
		{"equals string", cond("status", models.OperatorEquals, "overdue", ""), true},
		{"equals number across types", cond("invoice.amount", models.OperatorEquals, 250.5, ""), true},
		{"equals int against float", cond("invoice.count", models.OperatorEquals, 3, ""), true},
		{"equals mismatched", cond("status", models.OperatorEquals, "paid", ""), false},
		{"not equals", cond("status", models.OperatorNotEquals, "paid", ""), true},
		{"greater than", cond("invoice.amount", models.OperatorGreaterThan, 100, ""), true},
		{"greater than numeric string field", cond("invoice.raw", models.OperatorGreaterThan, "41", ""), true},
		{"less than", cond("invoice.amount", models.OperatorLessThan, 100, ""), false},
		{"greater than non numeric fails closed", cond("invoice.currency", models.OperatorGreaterThan, 1, ""), false},
		{"less than non numeric value fails closed", cond("invoice.amount", models.OperatorLessThan, "abc", ""), false},
		{"contains substring", cond("invoice.currency", models.OperatorContains, "EU", ""), true},
		{"contains list member", cond("invoice.tags", models.OperatorContains, "vip", ""), true},
		{"contains map key", cond("invoice.customer", models.OperatorContains, "tier", ""), true},
		{"not contains", cond("invoice.tags", models.OperatorNotContains, "new", ""), true},
		{"results path", cond("results.a1.sent", models.OperatorEquals, true, ""), true},
		{"unknown operator", cond("status", models.Operator("matches"), "overdue", ""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, conditions.Evaluate([]models.Condition{tt.condition}, data))
		})
	}
}

func TestEvaluate_MissingField(t *testing.T) {
	t.Parallel()

	data := conditions.NewContext(map[string]any{"present": nil}, nil)

	tests := []struct {
		op   models.Operator
		want bool
	}{
		{models.OperatorEquals, false},
		{models.OperatorNotEquals, true},
		{models.OperatorGreaterThan, false},
		{models.OperatorLessThan, false},
		{models.OperatorContains, false},
		{models.OperatorNotContains, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, conditions.Evaluate([]models.Condition{cond("missing.field", tt.op, 1, "")}, data))
			assert.Equal(t, tt.want, conditions.Evaluate([]models.Condition{cond("present", tt.op, 1, "")}, data))
		})
	}
}

func TestEvaluate_LeftFold(t *testing.T) {
	t.Parallel()

	data := conditions.NewContext(map[string]any{"a": 1, "b": 2}, nil)

	truthy := func(logic models.Logic) models.Condition { return cond("a", models.OperatorEquals, 1, logic) }
	falsy := func(logic models.Logic) models.Condition { return cond("b", models.OperatorEquals, 99, logic) }

	tests := []struct {
		name       string
		conditions []models.Condition
		want       bool
	}{
		{"single true", []models.Condition{truthy("")}, true},
		{"first logic ignored", []models.Condition{truthy(models.LogicOr)}, true},
		{"first logic ignored when false", []models.Condition{falsy(models.LogicOr)}, false},
		{"and default", []models.Condition{truthy(""), falsy("")}, false},
		{"or rescues", []models.Condition{falsy(""), truthy(models.LogicOr)}, true},
		// ((true or false) and false) = false, not true or (false and false)
		{"strict left to right", []models.Condition{truthy(""), falsy(models.LogicOr), falsy(models.LogicAnd)}, false},
		// ((false and true) or true) = true
		{"no precedence", []models.Condition{falsy(""), truthy(models.LogicAnd), truthy(models.LogicOr)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, conditions.Evaluate(tt.conditions, data))
		})
	}
}

func TestEvaluate_IsPure(t *testing.T) {
	t.Parallel()

	data := conditions.NewContext(map[string]any{"amount": 10}, nil)
	list := []models.Condition{cond("amount", models.OperatorGreaterThan, 5, "")}

	first := conditions.Evaluate(list, data)
	second := conditions.Evaluate(list, data)

	assert.Equal(t, first, second)
	assert.Len(t, data, 2)
}

func TestLookup(t *testing.T) {
	t.Parallel()

	data := conditions.NewContext(map[string]any{"items": []any{map[string]any{"sku": "x1"}}}, nil)

	value, found := conditions.Lookup(data, "items[0].sku")
	assert.True(t, found)
	assert.Equal(t, "x1", value)

	_, found = conditions.Lookup(data, "")
	assert.False(t, found)

	_, found = conditions.Lookup(data, "items.sku.deeper")
	assert.False(t, found)
}
