package roundabout

import (
	"math"
)

const (
	// minimum dwell time on a lane before the strategy reconsiders lanes
	shortestTimeMinStay = 5.0
	// a lane record older than this gets its speed estimate refreshed
	shortestTimeRefresh = 20.0
)

// ShortestTimeDriver shortest-projected-time strategy. Keeps an estimated
// cruising speed per lane together with the last observation made on it and
// picks the lane with minimum total estimated time to destination.
type ShortestTimeDriver struct {
	laneLastTS  []float64
	laneLastPos []Position
	laneVel     []float64
	prevLane    int
}

// Init seeds every lane record with the car's own speed and start position
func (d *ShortestTimeDriver) Init(car *Car, settings *Settings) {
	n := len(settings.LaneRadii)
	d.laneLastTS = make([]float64, n)
	d.laneLastPos = make([]Position, n)
	d.laneVel = make([]float64, n)
	for i := 0; i < n; i++ {
		d.laneLastPos[i] = car.Pos
		d.laneVel[i] = car.Vel
	}
	d.prevLane = car.Lane
}

// Drive chooses the lane that gives the earliest estimated arrival.
// While the car has stayed on its lane for less than the dwell window and is
// aligned with it, it keeps going straight so the choice does not thrash.
func (d *ShortestTimeDriver) Drive(car *Car, ts float64, settings *Settings) Action {
	if car.Finished(settings.DistAllow) {
		return Stop
	}
	if ts-d.laneLastTS[car.Lane] < shortestTimeMinStay &&
		onLane(car.Pos, settings.LaneRadii[car.Lane], settings.DriftAllow) {
		return Straight
	}
	unwrappedTheta := car.remainingTheta()
	minTime := math.Inf(1)
	minLane := car.Lane
	for i, rLane := range settings.LaneRadii {
		// (arc at the lane's last-known speed) + (radial way to that lane) +
		// (radial way from it out to the exit), both at the car's own speed
		laneTime := rLane*unwrappedTheta/d.laneVel[i] +
			math.Abs(settings.LaneRadii[i]-settings.LaneRadii[car.Lane])/car.Vel +
			(settings.LaneRadii[0]-settings.LaneRadii[i])/car.Vel
		if laneTime < minTime {
			minTime = laneTime
			minLane = i
		}
	}
	if minLane < car.Lane {
		return SwitchOut
	}
	if minLane > car.Lane {
		return SwitchIn
	}
	if onLane(car.Pos, settings.LaneRadii[car.Lane], settings.DriftAllow) {
		return Straight
	}
	if car.Pos.R > settings.LaneRadii[car.Lane] {
		// halfway switching out, keep going
		return SwitchOut
	}
	return SwitchIn
}

// Update maintains the per-lane speed history: snapshots the record of a
// freshly entered lane, periodically refreshes stale records by doubling
// their speed estimate (capped at the car's own speed) and, after a straight
// or stop step, recomputes the current lane's estimate from the distance
// actually covered.
func (d *ShortestTimeDriver) Update(car *Car, ts float64, settings *Settings) {
	lane := car.Lane
	if d.prevLane != lane {
		d.laneVel[lane] = car.Vel
		d.laneLastPos[lane] = car.Pos
		d.laneLastTS[lane] = ts
	}
	needRefresh := -1
	oldestTS := math.Inf(1)
	for i, lastTS := range d.laneLastTS {
		if ts-lastTS > shortestTimeRefresh && i != lane && lastTS < oldestTS {
			oldestTS = lastTS
			needRefresh = i
		}
	}
	if needRefresh >= 0 {
		d.laneVel[needRefresh] *= 2.0
		if d.laneVel[needRefresh] > car.Vel {
			d.laneVel[needRefresh] = car.Vel
		}
		d.laneLastTS[needRefresh] = ts
	}
	if car.Action.Kind == ACTION_STRAIGHT || car.Action.Kind == ACTION_STOP {
		elapsed := ts - d.laneLastTS[lane]
		if elapsed > 0.0 {
			covered := settings.LaneRadii[lane] * UnwrapTheta(d.laneLastPos[lane].AngleTo(car.Pos))
			d.laneVel[lane] = covered / elapsed
			if d.laneVel[lane] > car.Vel {
				d.laneVel[lane] = car.Vel
			}
		}
	}
	d.prevLane = lane
}
