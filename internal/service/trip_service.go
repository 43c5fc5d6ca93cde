package service

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jengzang/trip-recorder-go/internal/models"
	"github.com/jengzang/trip-recorder-go/internal/repository"
)

// ErrInvalidRating is returned for a rating outside the known choices
var ErrInvalidRating = errors.New("invalid rating")

// TripService handles business logic for trips
type TripService struct {
	repo *repository.TripRepository
}

// NewTripService creates a new trip service
func NewTripService(repo *repository.TripRepository) *TripService {
	return &TripService{repo: repo}
}

// GetTrips retrieves trips with filtering and pagination
func (s *TripService) GetTrips(filter models.TripFilter) ([]models.Trip, int64, error) {
	return s.repo.GetTrips(filter)
}

// GetTrip retrieves a full trip by uuid, or nil
func (s *TripService) GetTrip(uuid string) (*models.Trip, error) {
	return s.repo.GetTripByUUID(uuid)
}

// RateTrip stores the user's rating. It reports false when the trip does
// not exist.
func (s *TripService) RateTrip(uuid string, rating models.Rating) (bool, error) {
	if !rating.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidRating, rating)
	}
	return s.repo.UpdateRating(uuid, rating)
}

// GetTripGeoJSON renders a trip as a feature collection: the recorded track,
// the simplified summary path, and the start and end points
func (s *TripService) GetTripGeoJSON(uuid string) (*geojson.FeatureCollection, error) {
	trip, err := s.repo.GetTripByUUID(uuid)
	if err != nil || trip == nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()

	track := make(orb.LineString, 0, len(trip.Locations))
	for _, l := range trip.Locations {
		track = append(track, orb.Point{l.Longitude, l.Latitude})
	}
	if len(track) > 0 {
		f := geojson.NewFeature(track)
		f.Properties["kind"] = "track"
		f.Properties["uuid"] = trip.UUID
		f.Properties["activity_type"] = trip.ActivityType.String()
		f.Properties["rating"] = string(trip.Rating)
		f.Properties["length_meters"] = trip.LengthMeters
		f.Properties["average_moving_speed"] = trip.AverageMovingSpeed
		f.Properties["start_time"] = trip.StartTime.Unix()
		if trip.EndTime != nil {
			f.Properties["end_time"] = trip.EndTime.Unix()
		}
		fc.Append(f)

		start := geojson.NewFeature(track[0])
		start.Properties["kind"] = "start"
		fc.Append(start)
		end := geojson.NewFeature(track[len(track)-1])
		end.Properties["kind"] = "end"
		fc.Append(end)
	}

	if len(trip.SummaryPath) > 1 {
		summary := make(orb.LineString, len(trip.SummaryPath))
		for i, c := range trip.SummaryPath {
			summary[i] = orb.Point{c.Longitude, c.Latitude}
		}
		f := geojson.NewFeature(summary)
		f.Properties["kind"] = "summary"
		fc.Append(f)
	}

	return fc, nil
}
