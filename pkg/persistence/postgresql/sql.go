package postgresql

import (
	"database/sql"
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"time"
)

type scanner interface {
	Scan(dest ...any) error
}

// whereClause builds AND-joined predicates with positional parameters. Every
// "?" in a predicate refers to the same argument.
type whereClause struct {
	predicates []string
	args       []any
}

func newWhere() *whereClause {
	return &whereClause{}
}

func (w *whereClause) add(predicate string, value any, when bool) {
	if !when {
		return
	}

	w.args = append(w.args, value)
	w.predicates = append(w.predicates, strings.ReplaceAll(predicate, "?", "$"+strconv.Itoa(len(w.args))))
}

func (w *whereClause) sql() string {
	if len(w.predicates) == 0 {
		return ""
	}

	return " WHERE " + strings.Join(w.predicates, " AND ")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	value := t.Time.UTC()

	return &value
}

// marshalOr encodes v, using fallback for nil slices and maps.
func marshalOr(v any, fallback string) ([]byte, error) {
	if isNil(v) {
		return []byte(fallback), nil
	}

	return json.Marshal(v)
}

// marshalNullable encodes v, or returns an untyped nil so the driver sends NULL.
func marshalNullable(v any) (any, error) {
	if isNil(v) {
		return nil, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	return data, nil
}

func unmarshalNullable(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, v)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}

	value := reflect.ValueOf(v)

	switch value.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
		return value.IsNil()
	default:
		return false
	}
}
