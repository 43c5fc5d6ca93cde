package models

import (
	"encoding/json"
	"testing"
)

func TestClassConfidenceJSONRoundTrip(t *testing.T) {
	in := ClassConfidence{ActivityCycling: 0.5, ActivityStationary: 0.3, ActivityType(42): 0.2}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out ClassConfidence
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Unmarshal of %s failed: %v", raw, err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d labels, want %d", len(out), len(in))
	}
	for label, score := range in {
		if out[label] != score {
			t.Errorf("%s = %v, want %v", label, out[label], score)
		}
	}
}

func TestActivityTypeUnmarshalText(t *testing.T) {
	tests := []struct {
		text    string
		want    ActivityType
		wantErr bool
	}{
		{"walking", ActivityWalking, false},
		{"kick_scooter", ActivityKickScooter, false},
		{"activity(42)", ActivityType(42), false},
		{"hovercraft", ActivityUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			var got ActivityType
			err := got.UnmarshalText([]byte(tt.text))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
