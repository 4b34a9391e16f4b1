package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/wellness.report/internal/score"
)

// DailyScore is the persisted output record of one scoring run for one
// resident and day.
type DailyScore struct {
	ResidentID int64  `json:"resident_id"`
	Day        string `json:"day"`
	RunID      string `json:"run_id"`
	score.Result
	// Imputed lists the item ids whose value was estimated.
	Imputed   []int     `json:"imputed"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveDailyScore stores s, replacing any earlier result for the same
// resident and day.
func (db *DB) SaveDailyScore(s *DailyScore) error {
	if err := validDay(s.Day); err != nil {
		return err
	}
	imputed := s.Imputed
	if imputed == nil {
		imputed = []int{}
	}
	imputedJSON, err := json.Marshal(imputed)
	if err != nil {
		return fmt.Errorf("failed to encode imputed items: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO daily_score (
			resident_id, day, run_id, score_today, score_tomorrow,
			trust_index, filling_rate, imputed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (resident_id, day) DO UPDATE SET
			run_id = excluded.run_id,
			score_today = excluded.score_today,
			score_tomorrow = excluded.score_tomorrow,
			trust_index = excluded.trust_index,
			filling_rate = excluded.filling_rate,
			imputed = excluded.imputed,
			created_at = STRFTIME('%s', 'now')`,
		s.ResidentID, s.Day, s.RunID, s.Score4Today, s.Score4Tomorrow,
		s.TrustIndex, s.FillingRate, string(imputedJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save score for resident %d on %s: %w", s.ResidentID, s.Day, err)
	}
	return nil
}

const dailyScoreColumns = `resident_id, day, run_id, score_today, score_tomorrow, trust_index, filling_rate, imputed, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDailyScore(row rowScanner) (DailyScore, error) {
	var (
		s       DailyScore
		imputed string
		created int64
	)
	if err := row.Scan(&s.ResidentID, &s.Day, &s.RunID, &s.Score4Today, &s.Score4Tomorrow,
		&s.TrustIndex, &s.FillingRate, &imputed, &created); err != nil {
		return DailyScore{}, err
	}
	if err := json.Unmarshal([]byte(imputed), &s.Imputed); err != nil {
		return DailyScore{}, fmt.Errorf("failed to decode imputed items: %w", err)
	}
	s.CreatedAt = time.Unix(created, 0)
	return s, nil
}

// LatestScore returns the most recent day scored for the resident, or
// ErrNotFound.
func (db *DB) LatestScore(residentID int64) (*DailyScore, error) {
	row := db.QueryRow(`SELECT `+dailyScoreColumns+` FROM daily_score WHERE resident_id = ? ORDER BY day DESC LIMIT 1`, residentID)
	s, err := scanDailyScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no score for resident %d: %w", residentID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ScoreHistory returns up to n of the most recent daily scores, oldest
// first. n <= 0 returns every stored day.
func (db *DB) ScoreHistory(residentID int64, n int) ([]DailyScore, error) {
	limit := -1
	if n > 0 {
		limit = n
	}
	rows, err := db.Query(`
		SELECT * FROM (
			SELECT `+dailyScoreColumns+` FROM daily_score
			WHERE resident_id = ?
			ORDER BY day DESC
			LIMIT ?
		) ORDER BY day ASC`, residentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []DailyScore
	for rows.Next() {
		s, err := scanDailyScore(rows)
		if err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}
