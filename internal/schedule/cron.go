package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts the standard 5-field UNIX form plus an optional
// leading seconds field, per spec.md §4.7.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron parses expr and confirms it yields at least one future fire
// time in loc; spec.md §4.7 rejects expressions that fail either check.
func ValidateCron(expr string, loc *time.Location) error {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	next := schedule.Next(time.Now().In(loc))
	if next.IsZero() {
		return fmt.Errorf("cron expression %q yields no future fire time", expr)
	}
	return nil
}

// NextRunAt computes the next fire time after `after`, evaluated in the
// named IANA zone and returned in UTC (spec.md §4.7: "nextRunAt is always
// stored in UTC but computed with respect to the zone").
func NextRunAt(cronExpr, timezone string, after time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	next := schedule.Next(after.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q yields no future fire time", cronExpr)
	}
	return next.UTC(), nil
}
