package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jengzang/trip-recorder-go/internal/database"
	"github.com/jengzang/trip-recorder-go/internal/models"
)

// TripRepository handles database operations for trips
type TripRepository struct {
	db *sql.DB
}

// NewTripRepository creates a new trip repository
func NewTripRepository(db *sql.DB) *TripRepository {
	return &TripRepository{db: db}
}

const tripColumns = `id, uuid, start_time, end_time, activity_type, rating,
	length_meters, average_moving_speed, summary_path_json, created_at, updated_at`

// SaveTrip stores a sealed trip with its samples and predictions, and sets
// trip.ID and the timestamps.
func (r *TripRepository) SaveTrip(trip *models.Trip) error {
	if !trip.IsSealed() {
		return fmt.Errorf("failed to save trip %s: trip is not sealed", trip.UUID)
	}

	path, err := json.Marshal(trip.SummaryPath)
	if err != nil {
		return fmt.Errorf("failed to encode summary path: %w", err)
	}

	now := time.Now().UTC()
	return database.Transaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO trips (uuid, start_time, end_time, activity_type, rating,
			length_meters, average_moving_speed, summary_path_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			trip.UUID, toMillis(trip.StartTime), toMillis(*trip.EndTime), int(trip.ActivityType), string(trip.Rating),
			trip.LengthMeters, trip.AverageMovingSpeed, string(path), toMillis(now), toMillis(now),
		)
		if err != nil {
			return fmt.Errorf("failed to insert trip: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get trip id: %w", err)
		}

		locStmt, err := tx.Prepare(`INSERT INTO trip_locations (trip_id, seq, latitude, longitude, timestamp,
			horizontal_accuracy, course, speed) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare location insert: %w", err)
		}
		defer locStmt.Close()

		for i, l := range trip.Locations {
			if _, err := locStmt.Exec(id, i, l.Latitude, l.Longitude, toMillis(l.Timestamp),
				l.HorizontalAccuracy, l.Course, l.Speed); err != nil {
				return fmt.Errorf("failed to insert location %d: %w", i, err)
			}
		}

		predStmt, err := tx.Prepare(`INSERT INTO trip_predictions (trip_id, seq, start_time, end_time,
			model_identifier, confidences_json) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare prediction insert: %w", err)
		}
		defer predStmt.Close()

		for i, p := range trip.Predictions {
			conf, err := json.Marshal(p.Confidences)
			if err != nil {
				return fmt.Errorf("failed to encode confidences: %w", err)
			}
			if _, err := predStmt.Exec(id, i, toMillis(p.StartTime), toMillis(p.EndTime),
				p.ModelIdentifier, string(conf)); err != nil {
				return fmt.Errorf("failed to insert prediction %d: %w", i, err)
			}
		}

		trip.ID = id
		trip.CreatedAt = now
		trip.UpdatedAt = now
		return nil
	})
}

// GetTrips retrieves trip summaries with filtering and pagination.
// Locations and predictions are not loaded.
func (r *TripRepository) GetTrips(filter models.TripFilter) ([]models.Trip, int64, error) {
	var conditions []string
	var args []interface{}

	// Add filters
	if filter.StartTime > 0 {
		conditions = append(conditions, "start_time >= ?")
		args = append(args, filter.StartTime*1000)
	}
	if filter.EndTime > 0 {
		conditions = append(conditions, "end_time <= ?")
		args = append(args, filter.EndTime*1000)
	}
	if filter.ActivityType != "" {
		activity, err := models.ParseActivityType(filter.ActivityType)
		if err != nil {
			return nil, 0, err
		}
		conditions = append(conditions, "activity_type = ?")
		args = append(args, int(activity))
	}
	if filter.Rating != "" {
		conditions = append(conditions, "rating = ?")
		args = append(args, filter.Rating)
	}
	if filter.MinLength > 0 {
		conditions = append(conditions, "length_meters >= ?")
		args = append(args, filter.MinLength)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM trips"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count trips: %w", err)
	}

	// Add pagination
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 100
	}
	if filter.PageSize > 1000 {
		filter.PageSize = 1000
	}

	offset := (filter.Page - 1) * filter.PageSize
	query := "SELECT " + tripColumns + " FROM trips" + where + " ORDER BY start_time DESC LIMIT ? OFFSET ?"
	args = append(args, filter.PageSize, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query trips: %w", err)
	}
	defer rows.Close()

	var trips []models.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, 0, err
		}
		trips = append(trips, *t)
	}

	return trips, total, rows.Err()
}

// GetTripByUUID retrieves a full trip. It returns nil when no trip matches.
func (r *TripRepository) GetTripByUUID(uuid string) (*models.Trip, error) {
	row := r.db.QueryRow("SELECT "+tripColumns+" FROM trips WHERE uuid = ?", uuid)
	t, err := scanTrip(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if t.Locations, err = r.getLocations(t.ID); err != nil {
		return nil, err
	}
	if t.Predictions, err = r.getPredictions(t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateRating sets the user rating of a trip. It reports false when no
// trip matches.
func (r *TripRepository) UpdateRating(uuid string, rating models.Rating) (bool, error) {
	res, err := r.db.Exec("UPDATE trips SET rating = ?, updated_at = ? WHERE uuid = ?",
		string(rating), toMillis(time.Now()), uuid)
	if err != nil {
		return false, fmt.Errorf("failed to update rating: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *TripRepository) getLocations(tripID int64) ([]models.LocationSample, error) {
	rows, err := r.db.Query(`SELECT latitude, longitude, timestamp, horizontal_accuracy, course, speed
		FROM trip_locations WHERE trip_id = ? ORDER BY seq`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var locations []models.LocationSample
	for rows.Next() {
		var l models.LocationSample
		var ts int64
		if err := rows.Scan(&l.Latitude, &l.Longitude, &ts, &l.HorizontalAccuracy, &l.Course, &l.Speed); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		l.Timestamp = fromMillis(ts)
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (r *TripRepository) getPredictions(tripID int64) ([]models.Prediction, error) {
	rows, err := r.db.Query(`SELECT start_time, end_time, model_identifier, confidences_json
		FROM trip_predictions WHERE trip_id = ? ORDER BY seq`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var predictions []models.Prediction
	for rows.Next() {
		var p models.Prediction
		var start, end int64
		var conf string
		if err := rows.Scan(&start, &end, &p.ModelIdentifier, &conf); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		if err := json.Unmarshal([]byte(conf), &p.Confidences); err != nil {
			return nil, fmt.Errorf("failed to decode confidences: %w", err)
		}
		p.StartTime = fromMillis(start)
		p.EndTime = fromMillis(end)
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrip(row rowScanner) (*models.Trip, error) {
	var t models.Trip
	var start, created, updated int64
	var end sql.NullInt64
	var activity int
	var rating string
	var path sql.NullString

	err := row.Scan(&t.ID, &t.UUID, &start, &end, &activity, &rating,
		&t.LengthMeters, &t.AverageMovingSpeed, &path, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan trip: %w", err)
	}

	t.StartTime = fromMillis(start)
	if end.Valid {
		e := fromMillis(end.Int64)
		t.EndTime = &e
	}
	t.ActivityType = models.ActivityType(activity)
	t.Rating = models.Rating(rating)
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(updated)
	if path.Valid && path.String != "" {
		if err := json.Unmarshal([]byte(path.String), &t.SummaryPath); err != nil {
			return nil, fmt.Errorf("failed to decode summary path: %w", err)
		}
	}
	return &t, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
