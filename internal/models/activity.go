package models

import (
	"fmt"
	"sort"
	"time"
)

// ActivityType is the integer class code used by the classifier model
type ActivityType int16

// Activity codes
const (
	ActivityUnknown       ActivityType = 0
	ActivityRunning       ActivityType = 1
	ActivityCycling       ActivityType = 2
	ActivityAutomotive    ActivityType = 3
	ActivityWalking       ActivityType = 4
	ActivityBus           ActivityType = 5
	ActivityRail          ActivityType = 6
	ActivityStationary    ActivityType = 7
	ActivityAviation      ActivityType = 8
	ActivityMaritime      ActivityType = 9
	ActivityMotorcycle    ActivityType = 10
	ActivityTram          ActivityType = 11
	ActivityHelicopter    ActivityType = 12
	ActivitySkateboarding ActivityType = 13
	ActivitySkiing        ActivityType = 14
	ActivityWheelchair    ActivityType = 15
	ActivitySnowboarding  ActivityType = 16
	ActivityKickScooter   ActivityType = 17
	ActivityOther         ActivityType = 999
)

var activityNames = map[ActivityType]string{
	ActivityUnknown:       "unknown",
	ActivityRunning:       "running",
	ActivityCycling:       "cycling",
	ActivityAutomotive:    "automotive",
	ActivityWalking:       "walking",
	ActivityBus:           "bus",
	ActivityRail:          "rail",
	ActivityStationary:    "stationary",
	ActivityAviation:      "aviation",
	ActivityMaritime:      "maritime",
	ActivityMotorcycle:    "motorcycle",
	ActivityTram:          "tram",
	ActivityHelicopter:    "helicopter",
	ActivitySkateboarding: "skateboarding",
	ActivitySkiing:        "skiing",
	ActivityWheelchair:    "wheelchair",
	ActivitySnowboarding:  "snowboarding",
	ActivityKickScooter:   "kick_scooter",
	ActivityOther:         "other",
}

func (a ActivityType) String() string {
	if name, ok := activityNames[a]; ok {
		return name
	}
	return fmt.Sprintf("activity(%d)", int16(a))
}

// ParseActivityType maps a name back to its code
func ParseActivityType(name string) (ActivityType, error) {
	for code, n := range activityNames {
		if n == name {
			return code, nil
		}
	}
	return ActivityUnknown, fmt.Errorf("unknown activity type %q", name)
}

// IsKnown reports whether the code is one of the defined activities
func (a ActivityType) IsKnown() bool {
	_, ok := activityNames[a]
	return ok
}

// IsMotorized reports car, bus and rail trips
func (a ActivityType) IsMotorized() bool {
	return a == ActivityAutomotive || a == ActivityBus || a == ActivityRail
}

// IsMotion is false for the classes that never describe a trip
func (a ActivityType) IsMotion() bool {
	return a != ActivityUnknown && a != ActivityStationary
}

// MarshalText encodes the activity by name so it can key JSON objects
func (a ActivityType) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes an activity name, or the activity(N) form String
// writes for codes without one
func (a *ActivityType) UnmarshalText(text []byte) error {
	var code int16
	if _, err := fmt.Sscanf(string(text), "activity(%d)", &code); err == nil {
		*a = ActivityType(code)
		return nil
	}
	parsed, err := ParseActivityType(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ClassConfidence maps class label to the raw classifier score for one window
type ClassConfidence map[ActivityType]float64

// Labels returns the labels in ascending code order
func (c ClassConfidence) Labels() []ActivityType {
	labels := make([]ActivityType, 0, len(c))
	for label := range c {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// Top returns the highest scoring class. Equal scores resolve to the lower code.
func (c ClassConfidence) Top() (ActivityType, float64) {
	best, bestScore := ActivityUnknown, -1.0
	for _, label := range c.Labels() {
		if c[label] > bestScore {
			best, bestScore = label, c[label]
		}
	}
	if bestScore < 0 {
		return ActivityUnknown, 0
	}
	return best, bestScore
}

// Clone copies the map
func (c ClassConfidence) Clone() ClassConfidence {
	out := make(ClassConfidence, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Prediction is one classified window, dated by the window bounds
type Prediction struct {
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	ModelIdentifier string          `json:"model_identifier"`
	Confidences     ClassConfidence `json:"confidences"`
}
