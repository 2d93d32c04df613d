// Package schedule implements the Recurring Scheduler: a cron-driven
// tick loop that instantiates tasks from templates, optionally gated by
// a trigger probe (spec.md §4.7).
package schedule

import (
	"encoding/json"
	"time"
)

// TriggerKind selects the probe used to detect a change worth acting on.
type TriggerKind string

const (
	TriggerHTTPJSON TriggerKind = "http_json"
	TriggerRSS      TriggerKind = "rss"
)

// Trigger describes an optional change-detection probe run before
// instantiation. JSONPath is only meaningful for TriggerHTTPJSON.
type Trigger struct {
	Kind     TriggerKind `json:"kind"`
	URL      string      `json:"url"`
	JSONPath string      `json:"jsonPath,omitempty"`
}

// TaskTemplate is instantiated into a new task on each fire, with
// {{triggerValue}} substituted into title/description when present.
type TaskTemplate struct {
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	Priority          int            `json:"priority"`
	ProjectTag        string         `json:"projectTag,omitempty"`
	OutputRequirement string         `json:"outputRequirement,omitempty"`
	OutputSchema      map[string]any `json:"outputSchema,omitempty"`
	Context           map[string]any `json:"context,omitempty"`
}

// Schedule is a recurring cron-driven task producer.
type Schedule struct {
	ID                       string       `json:"id"`
	WorkspaceID              string       `json:"workspaceId"`
	Name                     string       `json:"name"`
	CronExpr                 string       `json:"cronExpr"`
	Timezone                 string       `json:"timezone"`
	Enabled                  bool         `json:"enabled"`
	TaskTemplate             TaskTemplate `json:"taskTemplate"`
	Trigger                  *Trigger     `json:"trigger,omitempty"`
	LastCheckedAt            *time.Time   `json:"lastCheckedAt,omitempty"`
	LastTriggerValue         string       `json:"lastTriggerValue,omitempty"`
	TriggerTotalChecks       int          `json:"triggerTotalChecks"`
	NextRunAt                *time.Time   `json:"nextRunAt,omitempty"`
	MaxConcurrentFromSchedule int         `json:"maxConcurrentFromSchedule"`
	PauseAfterFailures       int          `json:"pauseAfterFailures"`
	ConsecutiveFailures      int          `json:"consecutiveFailures"`
	LastError                string       `json:"lastError,omitempty"`
	TotalRuns                int          `json:"totalRuns"`
	CreatedAt                time.Time    `json:"createdAt"`
	UpdatedAt                time.Time    `json:"updatedAt"`
}

// New creates a schedule with spec.md-default concurrency/pause values.
func New(workspaceID, name, cronExpr, timezone string, tmpl TaskTemplate) *Schedule {
	now := time.Now()
	return &Schedule{
		ID:                        "SCH-" + now.Format("20060102150405.000000000"),
		WorkspaceID:               workspaceID,
		Name:                      name,
		CronExpr:                  cronExpr,
		Timezone:                  timezone,
		Enabled:                   true,
		TaskTemplate:              tmpl,
		MaxConcurrentFromSchedule: 1,
		PauseAfterFailures:        5,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
}

// Render substitutes {{triggerValue}} into the template's title and
// description, matching spec.md §4.7 step 2c.
func (t TaskTemplate) Render(triggerValue string) TaskTemplate {
	out := t
	out.Title = substitute(t.Title, triggerValue)
	out.Description = substitute(t.Description, triggerValue)
	return out
}

func substitute(s, triggerValue string) string {
	const token = "{{triggerValue}}"
	out := ""
	for {
		idx := indexOf(s, token)
		if idx < 0 {
			out += s
			break
		}
		out += s[:idx] + triggerValue
		s = s[idx+len(token):]
	}
	return out
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}
