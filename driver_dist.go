package roundabout

import (
	"math"
)

// ShortestDistDriver greedy nearest-distance strategy, the default one.
// Compares the cost of staying on the current lane against switching one
// lane inward first and taking the shorter inner arc.
type ShortestDistDriver struct{}

// Init is a no-op, the strategy is stateless
func (d *ShortestDistDriver) Init(car *Car, settings *Settings) {}

// Drive proposes next action
func (d *ShortestDistDriver) Drive(car *Car, ts float64, settings *Settings) Action {
	if car.Finished(settings.DistAllow) {
		return Stop
	}
	remTheta := math.Abs(car.Pos.AngleTo(car.Dst))
	if car.Lane > 0 && remTheta <= settings.ThetaAllow {
		// close enough to the exit angle, prepare to leave
		return SwitchOut
	}
	r0 := settings.LaneRadii[0]
	rCurr := settings.LaneRadii[car.Lane]
	unwrappedTheta := car.remainingTheta()
	// (arc on the current lane) + (switch out to the outermost lane)
	straightDist := rCurr*unwrappedTheta + (r0 - rCurr)
	switchInDist := math.Inf(1)
	rInner := laneRadiusOrInf(settings.LaneRadii, car.Lane+1)
	if !math.IsInf(rInner, 1) {
		// (switch one in and back) + (arc on the inner lane) + (switch out)
		switchInDist = 2.0*(rCurr-rInner) + rInner*unwrappedTheta + (r0 - rCurr)
	}
	if switchInDist < straightDist && car.Lane < len(settings.LaneRadii)-1 {
		return SwitchIn
	}
	return Straight
}

// Update is a no-op, the strategy is stateless
func (d *ShortestDistDriver) Update(car *Car, ts float64, settings *Settings) {}
