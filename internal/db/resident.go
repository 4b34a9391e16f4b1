package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Resident is a person whose daily wellness is scored.
type Resident struct {
	ID        int64     `json:"id"`
	Room      string    `json:"room"`
	Name      string    `json:"name"`
	Followed  bool      `json:"followed"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateResident inserts r and sets r.ID when it was zero.
func (db *DB) CreateResident(r *Resident) error {
	var (
		res sql.Result
		err error
	)
	if r.ID == 0 {
		res, err = db.Exec(`INSERT INTO resident (room, name, followed) VALUES (?, ?, ?)`,
			r.Room, r.Name, r.Followed)
	} else {
		res, err = db.Exec(`INSERT INTO resident (resident_id, room, name, followed) VALUES (?, ?, ?, ?)`,
			r.ID, r.Room, r.Name, r.Followed)
	}
	if err != nil {
		return fmt.Errorf("failed to create resident: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get resident id: %w", err)
	}
	r.ID = id
	r.CreatedAt = time.Now()
	return nil
}

// GetResident returns the resident with the given id, or ErrNotFound.
func (db *DB) GetResident(id int64) (*Resident, error) {
	var (
		r       Resident
		created int64
	)
	err := db.QueryRow(`SELECT resident_id, room, name, followed, created_at FROM resident WHERE resident_id = ?`, id).
		Scan(&r.ID, &r.Room, &r.Name, &r.Followed, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resident %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(created, 0)
	return &r, nil
}

// SetFollowed starts or stops daily scoring for a resident.
func (db *DB) SetFollowed(id int64, followed bool) error {
	res, err := db.Exec(`UPDATE resident SET followed = ? WHERE resident_id = ?`, followed, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("resident %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListFollowedResidents returns residents enrolled for daily scoring,
// ordered by id.
func (db *DB) ListFollowedResidents() ([]Resident, error) {
	rows, err := db.Query(`SELECT resident_id, room, name, followed, created_at FROM resident WHERE followed = 1 ORDER BY resident_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var residents []Resident
	for rows.Next() {
		var (
			r       Resident
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Room, &r.Name, &r.Followed, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(created, 0)
		residents = append(residents, r)
	}
	return residents, rows.Err()
}
