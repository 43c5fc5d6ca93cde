// Package rewards turns completed trips into trophy progress.
package rewards

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jengzang/trip-recorder-go/internal/models"
)

// Tracker is notified once for every sealed trip. Notifications are fire and
// forget: an error is logged by the caller and never undoes the trip.
type Tracker interface {
	TripCompleted(ctx context.Context, trip models.Trip) error
}

// ProgressStore persists per-activity progress
type ProgressStore interface {
	CreditTrip(trip models.Trip, at time.Time) (bool, error)
	GetProgress() ([]models.TrophyProgress, error)
}

// ProgressTracker credits trips to the trophy of their activity type
type ProgressTracker struct {
	store ProgressStore
	now   func() time.Time
}

// NewProgressTracker creates a tracker backed by store
func NewProgressTracker(store ProgressStore) *ProgressTracker {
	return &ProgressTracker{store: store, now: time.Now}
}

// TripCompleted credits trip. Trips without a motion activity earn nothing.
func (t *ProgressTracker) TripCompleted(ctx context.Context, trip models.Trip) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !trip.ActivityType.IsMotion() {
		log.Printf("[Rewards] Trip %s has no motion activity, nothing to credit", trip.UUID)
		return nil
	}

	credited, err := t.store.CreditTrip(trip, t.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to credit trip %s: %w", trip.UUID, err)
	}
	if credited {
		log.Printf("[Rewards] Credited %s trip %s (%.0fm)", trip.ActivityType, trip.UUID, trip.LengthMeters)
	}
	return nil
}

// Progress lists the current progress of every activity
func (t *ProgressTracker) Progress() ([]models.TrophyProgress, error) {
	return t.store.GetProgress()
}
