package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jengzang/trip-recorder-go/internal/database"
	"github.com/jengzang/trip-recorder-go/internal/models"
)

// TrophyRepository handles reward progress bookkeeping
type TrophyRepository struct {
	db *sql.DB
}

// NewTrophyRepository creates a new trophy repository
func NewTrophyRepository(db *sql.DB) *TrophyRepository {
	return &TrophyRepository{db: db}
}

// CreditTrip adds a trip to the progress of its activity type. A trip that
// was already credited is ignored and reported as false.
func (r *TrophyRepository) CreditTrip(trip models.Trip, at time.Time) (bool, error) {
	credited := false
	err := database.Transaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT OR IGNORE INTO trophy_credits (trip_uuid, activity_type, credited_at)
			VALUES (?, ?, ?)`, trip.UUID, int(trip.ActivityType), toMillis(at))
		if err != nil {
			return fmt.Errorf("failed to record credit: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if n == 0 {
			return nil
		}

		_, err = tx.Exec(`INSERT INTO trophy_progress (activity_type, trip_count, distance_meters, duration_seconds, last_earned_at)
			VALUES (?, 1, ?, ?, ?)
			ON CONFLICT(activity_type) DO UPDATE SET
				trip_count = trip_count + 1,
				distance_meters = distance_meters + excluded.distance_meters,
				duration_seconds = duration_seconds + excluded.duration_seconds,
				last_earned_at = excluded.last_earned_at`,
			int(trip.ActivityType), trip.LengthMeters, int64(trip.Duration().Seconds()), toMillis(at))
		if err != nil {
			return fmt.Errorf("failed to update progress: %w", err)
		}
		credited = true
		return nil
	})
	return credited, err
}

// GetProgress returns the progress of every activity type with at least
// one credited trip, most trips first
func (r *TrophyRepository) GetProgress() ([]models.TrophyProgress, error) {
	rows, err := r.db.Query(`SELECT activity_type, trip_count, distance_meters, duration_seconds, last_earned_at
		FROM trophy_progress ORDER BY trip_count DESC, activity_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trophy progress: %w", err)
	}
	defer rows.Close()

	var progress []models.TrophyProgress
	for rows.Next() {
		var p models.TrophyProgress
		var activity int
		var last sql.NullInt64
		if err := rows.Scan(&activity, &p.TripCount, &p.DistanceMeters, &p.DurationSeconds, &last); err != nil {
			return nil, fmt.Errorf("failed to scan trophy progress: %w", err)
		}
		p.ActivityType = models.ActivityType(activity)
		if last.Valid {
			t := fromMillis(last.Int64)
			p.LastEarnedAt = &t
		}
		progress = append(progress, p)
	}
	return progress, rows.Err()
}

// GetProgressFor returns the progress of one activity type, or nil
func (r *TrophyRepository) GetProgressFor(activity models.ActivityType) (*models.TrophyProgress, error) {
	var p models.TrophyProgress
	var last sql.NullInt64
	err := r.db.QueryRow(`SELECT trip_count, distance_meters, duration_seconds, last_earned_at
		FROM trophy_progress WHERE activity_type = ?`, int(activity)).
		Scan(&p.TripCount, &p.DistanceMeters, &p.DurationSeconds, &last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trophy progress: %w", err)
	}
	p.ActivityType = activity
	if last.Valid {
		t := fromMillis(last.Int64)
		p.LastEarnedAt = &t
	}
	return &p, nil
}
