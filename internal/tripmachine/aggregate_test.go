package tripmachine

import (
	"testing"
	"time"

	"github.com/jengzang/trip-recorder-go/internal/models"
)

// prediction builds a window ending at end whose top class is label
func prediction(end time.Time, label models.ActivityType, conf float64) models.Prediction {
	rest := (1 - conf) / 2
	c := models.ClassConfidence{label: conf}
	for _, other := range []models.ActivityType{models.ActivityWalking, models.ActivityCycling, models.ActivityOther} {
		if other != label {
			c[other] = rest
		}
	}
	return models.Prediction{
		StartTime:   end.Add(-6 * time.Second),
		EndTime:     end,
		Confidences: c,
	}
}

func bikeThenWalk() []models.Prediction {
	var preds []models.Prediction
	for i := 0; i < 5; i++ {
		preds = append(preds, models.Prediction{
			EndTime: at(float64(i * 10)),
			Confidences: models.ClassConfidence{
				models.ActivityCycling: 0.8,
				models.ActivityWalking: 0.1,
				models.ActivityOther:   0.1,
			},
		})
	}
	for i := 5; i < 7; i++ {
		preds = append(preds, models.Prediction{
			EndTime: at(float64(i * 10)),
			Confidences: models.ClassConfidence{
				models.ActivityWalking: 0.9,
				models.ActivityCycling: 0.05,
				models.ActivityOther:   0.05,
			},
		})
	}
	return preds
}

func TestAggregateRecencyWeighting(t *testing.T) {
	tests := []struct {
		name      string
		weighting Weighting
		want      models.ActivityType
	}{
		{"uniform weights favor the majority", Weighting{HalfLife: 0}, models.ActivityCycling},
		{"default half-life keeps the majority", DefaultConfig().Weighting, models.ActivityCycling},
		{"two-window half-life follows the recent windows", Weighting{HalfLife: 2}, models.ActivityWalking},
		{"one-window half-life follows the recent windows", Weighting{HalfLife: 1}, models.ActivityWalking},
		{"steep decay follows the recent windows", Weighting{HalfLife: 0.5}, models.ActivityWalking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Aggregate(bikeThenWalk(), tt.weighting); got != tt.want {
				t.Errorf("Aggregate() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAggregateTieBreaksOnNewestWindow(t *testing.T) {
	preds := []models.Prediction{
		{Confidences: models.ClassConfidence{models.ActivityWalking: 1, models.ActivityCycling: 0}},
		{Confidences: models.ClassConfidence{models.ActivityWalking: 0, models.ActivityCycling: 1}},
	}
	if got := Aggregate(preds, Weighting{}); got != models.ActivityCycling {
		t.Errorf("expected newest window's class on tie, got %s", got)
	}

	preds[0], preds[1] = preds[1], preds[0]
	if got := Aggregate(preds, Weighting{}); got != models.ActivityWalking {
		t.Errorf("expected newest window's class on tie, got %s", got)
	}
}

func TestAggregateIgnoresStationary(t *testing.T) {
	preds := []models.Prediction{
		{Confidences: models.ClassConfidence{models.ActivityStationary: 0.9, models.ActivityRunning: 0.1}},
	}
	if got := Aggregate(preds, Weighting{}); got != models.ActivityRunning {
		t.Errorf("expected running, got %s", got)
	}

	if got := Aggregate(nil, Weighting{}); got != models.ActivityUnknown {
		t.Errorf("expected unknown for no predictions, got %s", got)
	}
	stillOnly := []models.Prediction{{Confidences: models.ClassConfidence{models.ActivityStationary: 1}}}
	if got := Aggregate(stillOnly, Weighting{}); got != models.ActivityUnknown {
		t.Errorf("expected unknown for stationary-only windows, got %s", got)
	}
}
