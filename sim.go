package roundabout

import (
	"math"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrNoProgress is returned by Step when every active car ended up with a
// Stop action while the active set is not empty. This is a fatal defect of a
// strategy or of the engine itself, continuing would produce physically
// inconsistent state.
var ErrNoProgress = errors.New("every car stops but simulation is not finished")

// Simulation continuous-time discrete-event engine for the annular
// roundabout. One Step call is atomic: action proposal, collision
// arbitration, variable-tick computation, physical integration and
// completion bookkeeping happen in strict order with no suspension points.
type Simulation struct {
	settings Settings
	t        float64
	cars     []*Car
	finished []*Car
}

// NewSimulation builds the engine from validated settings and the initial
// car list. Malformed car entries (unknown lane, non-positive speed,
// destination index out of range) fail construction immediately. A car that
// already satisfies the finished predicate is placed on the finished list
// with finish time 0 and never enters the active set.
func NewSimulation(settings Settings, scenario *Scenario) (*Simulation, error) {
	if err := settings.Validate(); err != nil {
		return nil, errors.Wrap(err, "Can't validate settings")
	}
	if scenario == nil || scenario.Init == nil {
		return nil, errors.New("Required key 'init' not specified")
	}
	cars := make([]*Car, 0, len(scenario.Init))
	for key, ci := range scenario.Init {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't parse car identifier '%s'", key)
		}
		if ci.Lane < 0 || ci.Lane >= len(settings.LaneRadii) {
			return nil, errors.Errorf("Car %d: lane %d is out of range [0, %d)", id, ci.Lane, len(settings.LaneRadii))
		}
		if ci.Vel <= 0.0 {
			return nil, errors.Errorf("Car %d: velocity must be positive, but got %f", id, ci.Vel)
		}
		if ci.Dst < 0 || ci.Dst >= settings.NumIntersections {
			return nil, errors.Errorf("Car %d: destination %d is out of range [0, %d)", id, ci.Dst, settings.NumIntersections)
		}
		car := &Car{
			ID:     id,
			Pos:    NewPosition(settings.LaneRadii[ci.Lane], ci.Theta),
			Vel:    ci.Vel,
			Lane:   ci.Lane,
			Dst:    settings.IntersectionPosition(ci.Dst),
			Action: Straight,
			driver: NewDriver(ci.Driver),
		}
		car.driver.Init(car, &settings)
		cars = append(cars, car)
	}
	sort.Slice(cars, func(i, j int) bool { return cars[i].ID < cars[j].ID })
	sim := &Simulation{settings: settings}
	for _, car := range cars {
		if car.Finished(settings.DistAllow) {
			car.FinishedAt = 0.0
			car.setAction(Stop)
			sim.finished = append(sim.finished, car)
			continue
		}
		sim.cars = append(sim.cars, car)
	}
	return sim, nil
}

// LoadSimulation builds the engine from a scenario file
func LoadSimulation(filename string) (*Simulation, error) {
	scenario, err := LoadScenario(filename)
	if err != nil {
		return nil, err
	}
	settings, err := scenario.Settings()
	if err != nil {
		return nil, err
	}
	return NewSimulation(settings, scenario)
}

// CurrentTime returns simulated time
func (sim *Simulation) CurrentTime() float64 {
	return sim.t
}

// Settings returns a copy of the engine settings
func (sim *Simulation) Settings() Settings {
	return sim.settings
}

// ActiveCars returns cars still circulating. The slice is owned by the
// engine, callers must treat it as read-only.
func (sim *Simulation) ActiveCars() []*Car {
	return sim.cars
}

// FinishedCars returns finished cars in completion order
func (sim *Simulation) FinishedCars() []*Car {
	return sim.finished
}

// AllFinished reports whether the active set is empty
func (sim *Simulation) AllFinished() bool {
	return len(sim.cars) == 0
}

// Step performs one engine step and reports whether every car has finished.
// The step advances time by a variable tick: it starts from the settings'
// ceiling and shrinks under pending collisions, so within one step motion is
// exact, not a fixed-step approximation.
func (sim *Simulation) Step() (bool, error) {
	if len(sim.cars) == 0 {
		return true, nil
	}
	settings := &sim.settings

	// angular ordering and per-lane grouping for neighbor queries
	sort.Slice(sim.cars, func(i, j int) bool {
		if sim.cars[i].Pos.Theta == sim.cars[j].Pos.Theta {
			return sim.cars[i].ID < sim.cars[j].ID
		}
		return sim.cars[i].Pos.Theta < sim.cars[j].Pos.Theta
	})
	byLane := make(map[int][]*Car)
	for _, car := range sim.cars {
		byLane[car.Lane] = append(byLane[car.Lane], car)
	}
	lanes := make([]int, 0, len(byLane))
	for lane := range byLane {
		lanes = append(lanes, lane)
	}
	sort.Ints(lanes)

	// action proposal
	for _, car := range sim.cars {
		action := car.driver.Drive(car, sim.t, settings)
		if action.Kind == ACTION_SWITCH {
			if action.Dir == 0 {
				// halted-switch sentinel
				action = Stop
			} else if target := car.Lane + action.Dir; target < 0 || target >= len(settings.LaneRadii) {
				log.WithFields(log.Fields{"car": car.ID, "lane": car.Lane, "dir": action.Dir}).Warn("switch proposal out of lane bounds, downgraded to stop")
				action = Stop
			}
		}
		// a car still drifting between lanes must not move along an arc
		if action.Kind == ACTION_STRAIGHT && !onLane(car.Pos, settings.LaneRadii[car.Lane], settings.DriftAllow) {
			log.WithFields(log.Fields{"car": car.ID, "lane": car.Lane, "r": car.Pos.R}).Warn("straight proposal while off lane, downgraded to stop")
			action = Stop
		}
		car.setAction(action)
	}

	tick := settings.Tick
	tick = sim.followingCollisions(byLane, lanes, tick)
	sim.switchCollisions(byLane, lanes, tick)
	tick = sim.sideCollisions(byLane, lanes, tick)

	sim.t += tick

	hasProgress := false
	nTotal := len(sim.cars) + len(sim.finished)
	next := sim.cars[:0]
	for _, car := range sim.cars {
		car.integrate(tick, settings)
		car.driver.Update(car, sim.t, settings)
		if car.Action.Kind != ACTION_STOP {
			hasProgress = true
		}
		if car.Finished(settings.DistAllow) {
			car.FinishedAt = sim.t
			sim.finished = append(sim.finished, car)
			hasProgress = true
			log.WithFields(log.Fields{
				"car":      car.ID,
				"t":        sim.t,
				"finished": len(sim.finished),
				"total":    nTotal,
			}).Info("car finished")
			continue
		}
		next = append(next, car)
	}
	sim.cars = next

	if !hasProgress && len(sim.cars) > 0 {
		return false, errors.Wrapf(ErrNoProgress, "deadlock at t = %f with %d active cars", sim.t, len(sim.cars))
	}
	return len(sim.cars) == 0, nil
}

// Run steps the engine until every car finishes or simulated time exceeds
// maxT. Negative maxT means no time budget. Returns false when the budget
// ran out before completion.
func (sim *Simulation) Run(maxT float64) (bool, error) {
	for sim.t < maxT || maxT < 0.0 {
		done, err := sim.Step()
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}
	return len(sim.cars) == 0, nil
}

// followingCollisions handles same-lane rear-end hazards. Every lane is a
// ring, so the angularly-last car follows the first one. A follower that
// would reach its leader within the minimal threshold is halted outright;
// otherwise the time to contact bounds the tick from above.
func (sim *Simulation) followingCollisions(byLane map[int][]*Car, lanes []int, tick float64) float64 {
	for _, lane := range lanes {
		sameLane := byLane[lane]
		if len(sameLane) < 2 {
			continue
		}
		for i, follower := range sameLane {
			leader := sameLane[(i+1)%len(sameLane)]
			if follower.Action.Kind != ACTION_STRAIGHT {
				continue
			}
			marginTheta := UnwrapTheta(follower.Pos.AngleTo(leader.Pos))
			timeToCollide := marginTheta * sim.settings.LaneRadii[lane] / follower.Vel
			if timeToCollide <= sim.settings.MinTick {
				follower.setAction(Stop)
			} else if timeToCollide < tick {
				tick = timeToCollide
			}
		}
	}
	return tick
}

// switchCollisions handles cars switching into an occupied lane. For every
// switching car two reference cars of the target lane are inspected: the one
// right before it in angular order and the angularly-last one (the ring
// wrap-around). If the switch landing point falls inside the arc a
// straight-moving reference car sweeps during the tentative tick, the
// configured policy decides which of the two is halted.
func (sim *Simulation) switchCollisions(byLane map[int][]*Car, lanes []int, tick float64) {
	for _, lane := range lanes {
		for _, switching := range byLane[lane] {
			if switching.Action.Kind != ACTION_SWITCH {
				continue
			}
			targetLane := lane + switching.Action.Dir
			neighbors := byLane[targetLane]
			if len(neighbors) == 0 {
				continue
			}
			idx := sort.Search(len(neighbors), func(i int) bool {
				return neighbors[i].Pos.Theta >= switching.Pos.Theta
			})
			if idx > 0 {
				sim.resolveSwitchConflict(switching, neighbors[idx-1], targetLane, tick)
			}
			if switching.Action.Kind == ACTION_SWITCH {
				sim.resolveSwitchConflict(switching, neighbors[len(neighbors)-1], targetLane, tick)
			}
		}
	}
}

// resolveSwitchConflict applies the switch policy when the landing point of
// switching falls within the arc swept by other during the tentative tick
func (sim *Simulation) resolveSwitchConflict(switching, other *Car, targetLane int, tick float64) {
	if other.Action.Kind != ACTION_STRAIGHT {
		return
	}
	settings := &sim.settings
	rLane := settings.LaneRadii[targetLane]
	sweep := other.Vel * tick / rLane
	ahead := WrapTheta(switching.Pos.Theta - other.Pos.Theta)
	if ahead < 0.0 || ahead > sweep {
		return
	}
	switch settings.Policy {
	case POLICY_STRAIGHT_FIRST:
		// halt the switch and put the car back onto its source lane circle
		switching.Pos = Position{R: settings.LaneRadii[switching.Lane], Theta: switching.Pos.Theta}
		switching.setAction(Stop)
	default:
		other.setAction(Stop)
	}
}

// sideCollisions handles two cars switching in the same radial direction on
// the same lane within angular proximity of each other. When the radially
// trailing car closes in on the leading one, the time to contact either
// bounds the tick or, below the minimal threshold, halts the trailing car.
// Neighbors are scanned outward in both angular directions and the scan
// stops as soon as a car falls outside the influence range, keeping the
// check local instead of all-pairs.
func (sim *Simulation) sideCollisions(byLane map[int][]*Car, lanes []int, tick float64) float64 {
	settings := &sim.settings
	influence := settings.ThetaAllow / 2.0
	for _, lane := range lanes {
		sameLane := byLane[lane]
		if len(sameLane) < 2 {
			continue
		}
		for i, car := range sameLane {
			if car.Action.Kind != ACTION_SWITCH {
				continue
			}
			for step := 1; step < len(sameLane); step++ {
				other := sameLane[(i+step)%len(sameLane)]
				if math.Abs(WrapTheta(other.Pos.Theta-car.Pos.Theta)) > influence {
					break
				}
				tick = sim.resolveSideConflict(car, other, tick)
			}
			for step := 1; step < len(sameLane); step++ {
				other := sameLane[((i-step)%len(sameLane)+len(sameLane))%len(sameLane)]
				if math.Abs(WrapTheta(other.Pos.Theta-car.Pos.Theta)) > influence {
					break
				}
				tick = sim.resolveSideConflict(car, other, tick)
			}
		}
	}
	return tick
}

// resolveSideConflict clamps the tick to the radial time-to-contact of two
// same-direction switchers, halting the chasing car when contact is closer
// than the minimal threshold
func (sim *Simulation) resolveSideConflict(car, other *Car, tick float64) float64 {
	if car.Action.Kind != ACTION_SWITCH || other.Action.Kind != ACTION_SWITCH {
		return tick
	}
	if car.Action.Dir != other.Action.Dir {
		return tick
	}
	// the car radially behind along the switch direction is the chaser
	chaser, leader := car, other
	if car.Action.Dir > 0 {
		// inward, larger radius trails
		if car.Pos.R < other.Pos.R {
			chaser, leader = other, car
		}
	} else {
		if car.Pos.R > other.Pos.R {
			chaser, leader = other, car
		}
	}
	closing := chaser.Vel - leader.Vel
	if closing <= 0.0 {
		return tick
	}
	gap := math.Abs(chaser.Pos.R - leader.Pos.R)
	timeToContact := gap / closing
	if timeToContact <= sim.settings.MinTick {
		chaser.setAction(Stop)
		return tick
	}
	if timeToContact < tick {
		tick = timeToContact
	}
	return tick
}
