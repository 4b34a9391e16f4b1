// Package worker runs the nightly scoring pass: it makes sure every
// followed resident has a row for each recent day, merges form, sensor and
// journal observations, advances each resident's scoring state and stores
// the result.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/wellness.report/internal/catalog"
	"github.com/banshee-data/wellness.report/internal/db"
	"github.com/banshee-data/wellness.report/internal/monitoring"
	"github.com/banshee-data/wellness.report/internal/score"
	"github.com/banshee-data/wellness.report/internal/sources"
	"github.com/banshee-data/wellness.report/internal/timeutil"
)

// Store is the persistence the worker needs. *db.DB implements it.
type Store interface {
	ListFollowedResidents() ([]db.Resident, error)
	EnsureDay(residentID int64, day string) (bool, error)
	ObservationsForDay(residentID int64, day string, source sources.Source) ([]score.Observation, error)
	RecordObservations(residentID int64, day string, source sources.Source, obs []score.Observation) error
	ReadingsForDay(residentID int64, day string) ([]sources.Reading, error)
	SaveDailyScore(s *db.DailyScore) error
}

// RunReport summarises one scoring pass.
type RunReport struct {
	RunID     string    `json:"run_id"`
	Day       string    `json:"day"`
	StartedAt time.Time `json:"started_at"`
	Scored    []int64   `json:"scored"`
	Replayed  []int64   `json:"replayed"`
	Skipped   []int64   `json:"skipped"`
}

type residentState struct {
	state   *score.ResidentState
	lastDay string
}

// DailyWorker scores every followed resident once per day after RunAt.
type DailyWorker struct {
	Store   Store
	Catalog *catalog.Catalog
	Options score.Options
	Clock   timeutil.Clock
	// Metrics is optional.
	Metrics *monitoring.Metrics
	// Location decides where one day ends; nil means the clock's own zone.
	Location *time.Location
	// RunAt is the time of day after which the daily pass is due.
	RunAt time.Duration
	// Interval is how often the loop wakes up to check.
	Interval time.Duration

	stopChan chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	states  map[int64]*residentState
	lastRun string
	report  RunReport
}

func NewDailyWorker(store Store, cat *catalog.Catalog, opts score.Options) *DailyWorker {
	return &DailyWorker{
		Store:    store,
		Catalog:  cat,
		Options:  opts,
		Clock:    timeutil.RealClock{},
		RunAt:    23*time.Hour + 30*time.Minute,
		Interval: 15 * time.Minute,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		states:   make(map[int64]*residentState),
	}
}

// Start runs the periodic worker loop in a goroutine.
func (w *DailyWorker) Start() {
	ticker := w.Clock.NewTicker(w.Interval)
	go func() {
		defer close(w.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				if !w.Due() {
					continue
				}
				if _, err := w.RunOnce(context.Background()); err != nil {
					monitoring.Logf("daily worker run error: %v", err)
				}
			case <-w.stopChan:
				return
			}
		}
	}()
}

// Stop requests the worker to stop and waits for the loop to exit.
func (w *DailyWorker) Stop() {
	close(w.stopChan)
	<-w.done
}

func (w *DailyWorker) now() time.Time {
	t := w.Clock.Now()
	if w.Location != nil {
		t = t.In(w.Location)
	}
	return t
}

// Today returns the current day key in the worker's location.
func (w *DailyWorker) Today() string { return timeutil.DayKey(w.now()) }

// Due reports whether the daily pass has not run yet today and the clock
// is past RunAt.
func (w *DailyWorker) Due() bool {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastRun == timeutil.DayKey(now) {
		return false
	}
	return now.Sub(timeutil.StartOfDay(now)) >= w.RunAt
}

// LastReport returns the summary of the most recent pass.
func (w *DailyWorker) LastReport() RunReport {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.report
}

// RunOnce scores today for every followed resident. A resident whose data
// the engine rejects is logged and skipped; store failures are collected
// and returned after the other residents have been processed.
func (w *DailyWorker) RunOnce(ctx context.Context) (RunReport, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	days := timeutil.LastDays(now, w.historyLength()+1)
	report := RunReport{
		RunID:     uuid.NewString(),
		Day:       days[len(days)-1],
		StartedAt: now,
	}

	residents, err := w.Store.ListFollowedResidents()
	if err != nil {
		err = fmt.Errorf("failed to list residents: %w", err)
		w.Metrics.Run(now, w.Clock.Now().Sub(now), err)
		return report, err
	}

	followed := make(map[int64]bool, len(residents))
	var errs []error
	for _, r := range residents {
		if err := ctx.Err(); err != nil {
			w.Metrics.Run(now, w.Clock.Now().Sub(now), err)
			return report, err
		}
		followed[r.ID] = true

		replayed, err := w.scoreResident(r.ID, days, report.RunID)
		switch {
		case err == nil:
			report.Scored = append(report.Scored, r.ID)
			w.Metrics.Resident(monitoring.OutcomeScored)
			if replayed {
				report.Replayed = append(report.Replayed, r.ID)
				w.Metrics.Resident(monitoring.OutcomeReplayed)
			}
		case errors.Is(err, score.ErrDomain), errors.Is(err, score.ErrConfig):
			monitoring.Logf("daily worker: skipping resident %d: %v", r.ID, err)
			report.Skipped = append(report.Skipped, r.ID)
			w.Metrics.Resident(monitoring.OutcomeSkipped)
		default:
			report.Skipped = append(report.Skipped, r.ID)
			w.Metrics.Resident(monitoring.OutcomeFailed)
			errs = append(errs, fmt.Errorf("resident %d: %w", r.ID, err))
		}
	}

	// Residents no longer followed lose their live state.
	for id := range w.states {
		if !followed[id] {
			delete(w.states, id)
		}
	}

	w.lastRun = report.Day
	w.report = report
	monitoring.Logf("daily worker: run %s for %s scored %d, replayed %d, skipped %d",
		report.RunID, report.Day, len(report.Scored), len(report.Replayed), len(report.Skipped))
	err = errors.Join(errs...)
	w.Metrics.Run(now, w.Clock.Now().Sub(now), err)
	return report, err
}

func (w *DailyWorker) historyLength() int {
	if w.Options.HistoryLength > 0 {
		return w.Options.HistoryLength
	}
	return score.DefaultHistoryLength
}

// scoreResident advances one resident to the last of days and stores the
// result. The live state is only replaced once everything succeeded.
func (w *DailyWorker) scoreResident(residentID int64, days []string, runID string) (bool, error) {
	today := days[len(days)-1]
	yesterday := days[len(days)-2]

	live, ok := w.states[residentID]
	replay := !ok || live.lastDay != yesterday

	var (
		st  *score.ResidentState
		err error
	)
	if replay {
		sets := make([][]score.Observation, len(days))
		for i, day := range days {
			if sets[i], err = w.dayObservations(residentID, day); err != nil {
				return true, err
			}
		}
		if st, err = score.Replay(w.Catalog, w.Options, sets); err != nil {
			return true, err
		}
	} else {
		obs, err := w.dayObservations(residentID, today)
		if err != nil {
			return false, err
		}
		// Update is atomic, so the live state survives a rejected day.
		if _, err := live.state.Update(obs); err != nil {
			return false, err
		}
		st = live.state
	}

	res, _ := st.Result()
	current, _ := st.Current()
	if err := w.Store.SaveDailyScore(&db.DailyScore{
		ResidentID: residentID,
		Day:        today,
		RunID:      runID,
		Result:     res,
		Imputed:    current.Imputed(),
	}); err != nil {
		// The day was consumed by the state but not stored; replay next time.
		delete(w.states, residentID)
		return replay, err
	}

	w.states[residentID] = &residentState{state: st, lastDay: today}
	return replay, nil
}

// dayObservations makes sure the day exists, refreshes the sensor and
// journal observations derived from that day's readings and returns the
// combined set with form answers taking priority.
func (w *DailyWorker) dayObservations(residentID int64, day string) ([]score.Observation, error) {
	if created, err := w.Store.EnsureDay(residentID, day); err != nil {
		return nil, err
	} else if created {
		monitoring.Debugf("daily worker: resident %d had no form for %s", residentID, day)
	}

	rows, err := w.Store.ReadingsForDay(residentID, day)
	if err != nil {
		return nil, err
	}
	readings := sources.FromReadings(rows)
	sensor := sources.Sensors(w.Catalog, readings)
	journal := sources.Journal(w.Catalog, readings)
	if err := w.Store.RecordObservations(residentID, day, sources.SourceSensor, sensor); err != nil {
		return nil, err
	}
	if err := w.Store.RecordObservations(residentID, day, sources.SourceJournal, journal); err != nil {
		return nil, err
	}

	form, err := w.Store.ObservationsForDay(residentID, day, sources.SourceForm)
	if err != nil {
		return nil, err
	}
	return sources.Combine(form, sensor, journal), nil
}
