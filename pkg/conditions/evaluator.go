// Package conditions evaluates ordered condition lists against an execution context.
package conditions

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/oliveagle/jsonpath"
)

// ResultsKey is the context key under which prior action outputs are exposed.
const ResultsKey = "results"

// Evaluate folds conditions left to right. The first condition seeds the
// result and its logic is ignored; each later one is combined with the
// running result using its own logic. An empty list is true.
//
// Evaluate never fails: anything it cannot compare is false.
func Evaluate(conditions []models.Condition, data map[string]any) bool {
	if len(conditions) == 0 {
		return true
	}

	result := evaluateOne(conditions[0], data)

	for _, condition := range conditions[1:] {
		value := evaluateOne(condition, data)

		switch condition.EffectiveLogic() {
		case models.LogicOr:
			result = result || value
		default:
			result = result && value
		}
	}

	return result
}

// NewContext builds the evaluation context from a trigger payload and the
// results gathered so far. Payload keys sit at the top level.
func NewContext(payload map[string]any, results map[string]any) map[string]any {
	data := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		data[k] = v
	}

	if results == nil {
		results = map[string]any{}
	}

	data[ResultsKey] = results

	return normalize(data)
}

func evaluateOne(condition models.Condition, data map[string]any) bool {
	actual, found := Lookup(data, condition.Field)

	if !found {
		return condition.Operator == models.OperatorNotEquals || condition.Operator == models.OperatorNotContains
	}

	switch condition.Operator {
	case models.OperatorEquals:
		return equals(actual, condition.Value)
	case models.OperatorNotEquals:
		return !equals(actual, condition.Value)
	case models.OperatorGreaterThan:
		left, lok := toNumber(actual)
		right, rok := toNumber(condition.Value)

		return lok && rok && left > right
	case models.OperatorLessThan:
		left, lok := toNumber(actual)
		right, rok := toNumber(condition.Value)

		return lok && rok && left < right
	case models.OperatorContains:
		return contains(actual, condition.Value)
	case models.OperatorNotContains:
		return !contains(actual, condition.Value)
	default:
		return false
	}
}

// Lookup resolves a dotted path such as "invoice.amount" or "results.a1.status".
// A null value counts as not found.
func Lookup(data map[string]any, field string) (value any, found bool) {
	if field == "" {
		return nil, false
	}

	path := field
	if !strings.HasPrefix(path, "$") {
		path = "$." + path
	}

	defer func() {
		if r := recover(); r != nil {
			value, found = nil, false
		}
	}()

	value, err := jsonpath.JsonPathLookup(data, path)
	if err != nil || value == nil {
		return nil, false
	}

	return value, true
}

func equals(actual, expected any) bool {
	if isNumeric(actual) || isNumeric(expected) {
		left, lok := toNumber(actual)
		right, rok := toNumber(expected)

		if lok && rok {
			return left == right
		}
	}

	return reflect.DeepEqual(actual, expected)
}

func contains(container, item any) bool {
	switch c := container.(type) {
	case string:
		needle, ok := item.(string)
		if !ok {
			needle = fmt.Sprint(item)
		}

		return strings.Contains(c, needle)
	case []any:
		for _, element := range c {
			if equals(element, item) {
				return true
			}
		}

		return false
	case map[string]any:
		_, ok := c[fmt.Sprint(item)]

		return ok
	default:
		return false
	}
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	}

	return false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)

		return f, err == nil
	default:
		return 0, false
	}
}

// normalize turns typed values (structs, typed maps) into the plain JSON shape
// the path lookup understands.
func normalize(data map[string]any) map[string]any {
	raw, err := json.Marshal(data)
	if err != nil {
		return data
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return data
	}

	return out
}
