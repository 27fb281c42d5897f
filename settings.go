package roundabout

import (
	"math"

	"github.com/pkg/errors"
)

// SwitchPolicy resolves the collision arising from a switch into an occupied lane
type SwitchPolicy uint8

const (
	// POLICY_STRAIGHT_FIRST the straight-moving car keeps going, the switching car is halted
	POLICY_STRAIGHT_FIRST = SwitchPolicy(iota + 1)
	// POLICY_SWITCH_FIRST the switching car keeps going, the straight-moving car is halted
	POLICY_SWITCH_FIRST
)

func (iotaIdx SwitchPolicy) String() string {
	return [...]string{"undefined", "StraightFirst", "SwitchFirst"}[iotaIdx]
}

// ParseSwitchPolicy parses switch_policy value. Empty string falls back to
// the default policy (StraightFirst).
func ParseSwitchPolicy(name string) (SwitchPolicy, error) {
	switch name {
	case "":
		return POLICY_STRAIGHT_FIRST, nil
	case "StraightFirst":
		return POLICY_STRAIGHT_FIRST, nil
	case "SwitchFirst":
		return POLICY_SWITCH_FIRST, nil
	}
	return SwitchPolicy(0), errors.Errorf("Unknown switch policy: '%s'", name)
}

// Default tolerances. Every one of them lives on Settings so tests can vary
// them without touching process-wide state.
const (
	defaultThetaAllow = 1e-2 * math.Pi
	defaultDistAllow  = 1e-2
	defaultDriftAllow = 1e-2
	defaultMinTick    = 1e-2
)

// Settings immutable scenario configuration, shared read-only by every component
type Settings struct {
	// Number of equally spaced exit points on the outermost lane
	NumIntersections int
	// Lane radii ordered strictly decreasing; index 0 is the outermost lane
	LaneRadii []float64
	// Maximum step duration absent any constraining event
	Tick float64
	// Policy applied when a switching car conflicts with a straight-moving one
	Policy SwitchPolicy
	// ThetaAllow angular tolerance: "close enough to the exit to start switching out"
	ThetaAllow float64
	// DistAllow distance tolerance of the finished predicate
	DistAllow float64
	// DriftAllow radial drift tolerance of the lane-alignment check
	DriftAllow float64
	// MinTick minimal tick threshold; a collision closer than this halts a car
	// instead of shrinking the step further
	MinTick float64
}

// DefaultSettings returns settings pre-filled with default tolerances and policy
func DefaultSettings() Settings {
	return Settings{
		NumIntersections: 2,
		LaneRadii:        []float64{1.0},
		Tick:             0.1,
		Policy:           POLICY_STRAIGHT_FIRST,
		ThetaAllow:       defaultThetaAllow,
		DistAllow:        defaultDistAllow,
		DriftAllow:       defaultDriftAllow,
		MinTick:          defaultMinTick,
	}
}

// Validate checks scenario geometry constraints. Any violation fails
// construction, no default-filling happens for required geometry.
func (s *Settings) Validate() error {
	if s.NumIntersections < 1 {
		return errors.Errorf("Number of intersections must be >= 1, but got %d", s.NumIntersections)
	}
	if len(s.LaneRadii) < 1 {
		return errors.New("Lanes should be of length >= 1")
	}
	for i := range s.LaneRadii {
		if s.LaneRadii[i] <= 0.0 {
			return errors.Errorf("Lane %d has non-positive radius %f", i, s.LaneRadii[i])
		}
		if i > 0 && s.LaneRadii[i] >= s.LaneRadii[i-1] {
			return errors.Errorf("Lanes should be sorted in strictly decreasing order, but lane %d (%f) >= lane %d (%f)", i, s.LaneRadii[i], i-1, s.LaneRadii[i-1])
		}
	}
	if s.Tick <= 0.0 {
		return errors.Errorf("Tick must be positive, but got %f", s.Tick)
	}
	if s.Policy != POLICY_STRAIGHT_FIRST && s.Policy != POLICY_SWITCH_FIRST {
		return errors.Errorf("Unknown switch policy: %d", s.Policy)
	}
	if s.ThetaAllow <= 0.0 || s.DistAllow <= 0.0 || s.DriftAllow <= 0.0 || s.MinTick <= 0.0 {
		return errors.New("Tolerances must be positive")
	}
	return nil
}

// IntersectionTheta returns angle of the idx-th exit point
func (s *Settings) IntersectionTheta(idx int) float64 {
	return twoPi / float64(s.NumIntersections) * float64(idx)
}

// IntersectionPosition returns position of the idx-th exit point on the outermost lane
func (s *Settings) IntersectionPosition(idx int) Position {
	return NewPosition(s.LaneRadii[0], s.IntersectionTheta(idx))
}
