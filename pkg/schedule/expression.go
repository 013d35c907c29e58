// Package schedule turns schedule-kind workflow triggers into cron ticks.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrEmptyExpression is returned for a blank cron expression.
var ErrEmptyExpression = errors.New("empty cron expression")

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse parses a five-field cron expression (or a descriptor such as
// "@daily"), evaluated in timezone when one is given.
func Parse(expression, timezone string) (cron.Schedule, error) { //nolint:ireturn // cron's own type
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, ErrEmptyExpression
	}

	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}

		expression = "CRON_TZ=" + timezone + " " + expression
	}

	return parser.Parse(expression)
}
