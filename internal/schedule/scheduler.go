package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/buildd-ai/coordinatord/internal/dispatch"
	"github.com/buildd-ai/coordinatord/internal/tasks"
)

// TickInterval is the scheduler's single cluster-wide tick cadence.
const TickInterval = 30 * time.Second

// Scheduler runs the §4.7 tick loop: load due schedules, probe triggers,
// instantiate tasks, and advance each schedule's nextRunAt.
type Scheduler struct {
	store     *Store
	taskStore *tasks.Store
	prober    *Prober
	bus       *dispatch.Bus

	// locks serializes per-schedule work so a single process never races
	// itself. It is an in-process mutex only: no cross-process lock is
	// taken, so two processes ticking the same database can both handle
	// the same due schedule.
	locks sync.Map
}

// NewScheduler builds a scheduler over the shared database.
func NewScheduler(db *sql.DB, bus *dispatch.Bus) *Scheduler {
	return &Scheduler{
		store:     NewStore(db),
		taskStore: tasks.NewStore(db),
		prober:    NewProber(),
		bus:       bus,
	}
}

// Run starts the periodic tick loop; call it in its own goroutine.
func (s *Scheduler) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	log.Printf("[SCHEDULER] starting (tick=%v)", TickInterval)
	for {
		select {
		case <-stop:
			log.Printf("[SCHEDULER] stopping")
			return
		case <-ticker.C:
			if err := s.Tick(context.Background()); err != nil {
				log.Printf("[SCHEDULER] tick failed: %v", err)
			}
		}
	}
}

// Tick runs one pass of the §4.7 algorithm over every due schedule.
func (s *Scheduler) Tick(ctx context.Context) error {
	due, err := s.store.Due(time.Now())
	if err != nil {
		return fmt.Errorf("load due schedules: %w", err)
	}
	for _, sc := range due {
		s.processOne(ctx, sc)
	}
	return nil
}

func (s *Scheduler) processOne(ctx context.Context, sc *Schedule) {
	mu, _ := s.locks.LoadOrStore(sc.ID, &sync.Mutex{})
	lock := mu.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()

	if sc.Trigger != nil {
		value, err := s.prober.Probe(ctx, *sc.Trigger)
		if err != nil {
			s.recordFailure(sc, err)
			return
		}
		sc.TriggerTotalChecks++
		if value == sc.LastTriggerValue {
			sc.LastCheckedAt = &now
			s.advance(sc)
			return
		}
		sc.LastTriggerValue = value
	}

	live, err := s.taskStore.CountLiveFromSchedule(sc.ID)
	if err != nil {
		s.recordFailure(sc, fmt.Errorf("count live tasks: %w", err))
		return
	}
	if live >= sc.MaxConcurrentFromSchedule {
		// At capacity: skip instantiation without counting it as a failure.
		sc.LastCheckedAt = &now
		s.advance(sc)
		return
	}

	if err := s.instantiate(sc); err != nil {
		s.recordFailure(sc, fmt.Errorf("instantiate task: %w", err))
		return
	}

	sc.TotalRuns++
	sc.ConsecutiveFailures = 0
	sc.LastError = ""
	sc.LastCheckedAt = &now
	s.advance(sc)
}

func (s *Scheduler) instantiate(sc *Schedule) error {
	tmpl := sc.TaskTemplate.Render(sc.LastTriggerValue)
	task := tasks.New(sc.WorkspaceID, tmpl.Title, tmpl.Description, tmpl.Priority)
	task.ProjectTag = tmpl.ProjectTag
	if tmpl.OutputRequirement != "" {
		task.OutputRequirement = tasks.OutputRequirement(tmpl.OutputRequirement)
	}
	task.OutputSchema = tmpl.OutputSchema
	task.Context = tmpl.Context
	if task.Context == nil {
		task.Context = map[string]any{}
	}
	task.Context["scheduleId"] = sc.ID

	if err := task.Validate(); err != nil {
		return err
	}
	if err := s.taskStore.Save(task); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(dispatch.Event{
			Channel: dispatch.WorkspaceChannel(sc.WorkspaceID),
			Type:    dispatch.EventTaskAssigned,
			Payload: map[string]any{"task": task},
		})
	}
	return nil
}

// advance recomputes nextRunAt and persists the schedule. Failures to
// compute the next fire time disable the schedule outright: a cron
// expression that stops producing future times can never fire again.
func (s *Scheduler) advance(sc *Schedule) {
	next, err := NextRunAt(sc.CronExpr, sc.Timezone, time.Now())
	if err != nil {
		log.Printf("[SCHEDULER] schedule %s cron advance failed, disabling: %v", sc.ID, err)
		sc.Enabled = false
		sc.NextRunAt = nil
	} else {
		sc.NextRunAt = &next
	}
	sc.UpdatedAt = time.Now()
	if err := s.store.Save(sc); err != nil {
		log.Printf("[SCHEDULER] failed to persist schedule %s: %v", sc.ID, err)
	}
}

func (s *Scheduler) recordFailure(sc *Schedule, err error) {
	sc.ConsecutiveFailures++
	sc.LastError = err.Error()
	log.Printf("[SCHEDULER] schedule %s failure %d/%d: %v", sc.ID, sc.ConsecutiveFailures, sc.PauseAfterFailures, err)
	if sc.ConsecutiveFailures >= sc.PauseAfterFailures {
		sc.Enabled = false
		sc.NextRunAt = nil
		sc.UpdatedAt = time.Now()
		if saveErr := s.store.Save(sc); saveErr != nil {
			log.Printf("[SCHEDULER] failed to persist paused schedule %s: %v", sc.ID, saveErr)
		}
		return
	}
	s.advance(sc)
}
