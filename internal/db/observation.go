package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/wellness.report/internal/score"
	"github.com/banshee-data/wellness.report/internal/sources"
	"github.com/banshee-data/wellness.report/internal/timeutil"
)

// FormDay is the per-day row every observation hangs off.
type FormDay struct {
	ResidentID int64  `json:"resident_id"`
	Day        string `json:"day"`
	Filled     bool   `json:"filled"`
}

func validDay(day string) error {
	if _, err := timeutil.ParseDay(day, time.UTC); err != nil {
		return fmt.Errorf("invalid day %q: want %s", day, timeutil.DayLayout)
	}
	return nil
}

// EnsureDay creates an empty, unfilled form row for the day if none exists.
// It reports whether a row was created.
func (db *DB) EnsureDay(residentID int64, day string) (bool, error) {
	if err := validDay(day); err != nil {
		return false, err
	}
	res, err := db.Exec(`INSERT OR IGNORE INTO daily_form (resident_id, day, filled) VALUES (?, ?, 0)`, residentID, day)
	if err != nil {
		return false, fmt.Errorf("failed to ensure day %s for resident %d: %w", day, residentID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// FormDays returns the stored days of a resident between from and to
// inclusive, oldest first.
func (db *DB) FormDays(residentID int64, from, to string) ([]FormDay, error) {
	rows, err := db.Query(`
		SELECT resident_id, day, filled
		FROM daily_form
		WHERE resident_id = ? AND day BETWEEN ? AND ?
		ORDER BY day`, residentID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []FormDay
	for rows.Next() {
		var d FormDay
		if err := rows.Scan(&d.ResidentID, &d.Day, &d.Filled); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// RecordObservations replaces everything the given source recorded for the
// resident on that day. Recording a form also marks the day filled. Nil and
// negative values are stored as NULL.
func (db *DB) RecordObservations(residentID int64, day string, source sources.Source, obs []score.Observation) error {
	if !source.Valid() {
		return fmt.Errorf("unknown observation source %q", source)
	}
	if err := validDay(day); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			log.Printf("warning: failed to rollback transaction: %v", err)
		}
	}()

	filled := 0
	if source == sources.SourceForm {
		filled = 1
	}
	if _, err := tx.Exec(`
		INSERT INTO daily_form (resident_id, day, filled) VALUES (?, ?, ?)
		ON CONFLICT (resident_id, day) DO UPDATE SET
			filled = MAX(filled, excluded.filled),
			updated_at = STRFTIME('%s', 'now')`,
		residentID, day, filled); err != nil {
		return fmt.Errorf("failed to upsert day %s for resident %d: %w", day, residentID, err)
	}

	if _, err := tx.Exec(`DELETE FROM daily_observation WHERE resident_id = ? AND day = ? AND source = ?`,
		residentID, day, string(source)); err != nil {
		return fmt.Errorf("failed to clear %s observations: %w", source, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO daily_observation (resident_id, day, source, item_id, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range obs {
		var value sql.NullFloat64
		if !o.Missing() {
			value = sql.NullFloat64{Float64: *o.Value, Valid: true}
		}
		if _, err := stmt.Exec(residentID, day, string(source), o.ItemID, value); err != nil {
			return fmt.Errorf("failed to record item %d: %w", o.ItemID, err)
		}
	}

	return tx.Commit()
}

// ObservationsForDay returns what one source recorded for the resident on
// that day, ordered by item id. A NULL value comes back as a nil Value.
func (db *DB) ObservationsForDay(residentID int64, day string, source sources.Source) ([]score.Observation, error) {
	rows, err := db.Query(`
		SELECT item_id, value
		FROM daily_observation
		WHERE resident_id = ? AND day = ? AND source = ?
		ORDER BY item_id`, residentID, day, string(source))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var obs []score.Observation
	for rows.Next() {
		var (
			o     score.Observation
			value sql.NullFloat64
		)
		if err := rows.Scan(&o.ItemID, &value); err != nil {
			return nil, err
		}
		if value.Valid {
			o.Value = score.Value(value.Float64)
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

// RecordSensorReading appends one measurement or journal entry.
func (db *DB) RecordSensorReading(residentID int64, day string, r sources.Reading) error {
	if err := validDay(day); err != nil {
		return err
	}
	if r.Kind == "" {
		return errors.New("reading kind is required")
	}
	_, err := db.Exec(`INSERT INTO sensor_reading (resident_id, day, kind, value, label) VALUES (?, ?, ?, ?, ?)`,
		residentID, day, r.Kind, r.Value, r.Label)
	if err != nil {
		return fmt.Errorf("failed to record %s reading: %w", r.Kind, err)
	}
	return nil
}

// ReadingsForDay returns the resident's readings for a day in insertion
// order.
func (db *DB) ReadingsForDay(residentID int64, day string) ([]sources.Reading, error) {
	rows, err := db.Query(`
		SELECT kind, value, label
		FROM sensor_reading
		WHERE resident_id = ? AND day = ?
		ORDER BY reading_id`, residentID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []sources.Reading
	for rows.Next() {
		var r sources.Reading
		if err := rows.Scan(&r.Kind, &r.Value, &r.Label); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}
