package service

import (
	"github.com/jengzang/trip-recorder-go/internal/models"
	"github.com/jengzang/trip-recorder-go/internal/rewards"
)

// TrophyService exposes reward progress
type TrophyService struct {
	tracker *rewards.ProgressTracker
}

// NewTrophyService creates a new trophy service
func NewTrophyService(tracker *rewards.ProgressTracker) *TrophyService {
	return &TrophyService{tracker: tracker}
}

// GetProgress lists progress for every activity with a credited trip
func (s *TrophyService) GetProgress() ([]models.TrophyProgress, error) {
	progress, err := s.tracker.Progress()
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = []models.TrophyProgress{}
	}
	return progress, nil
}
