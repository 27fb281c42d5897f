package roundabout

import (
	"fmt"
)

// Car mutable physical state of one vehicle. A car is created at scenario
// load, mutated once per engine step (proposal, possible arbitration
// downgrade, integration) and moved to the finished list the step its
// finished predicate holds. After that it is never mutated again.
type Car struct {
	// ID stable integer identity
	ID int
	// Pos current position. While not mid-switch, Pos.R equals the radius of
	// Lane exactly; mid-switch it lies strictly between source and target radii.
	Pos Position
	// Vel scalar forward speed, always positive
	Vel float64
	// Lane current lane index, 0 is the outermost
	Lane int
	// Dst destination point on the outermost lane at a configured exit angle
	Dst Position
	// Action pending action for the current step
	Action Action
	// FinishedAt simulated time the car reached its destination
	FinishedAt float64

	driver Driver
}

// String returns pretty printed value for Car
func (c *Car) String() string {
	return fmt.Sprintf("Car %d | %s | lane %d | vel %f | %s", c.ID, c.Pos, c.Lane, c.Vel, c.Action)
}

// Finished reports whether the car sits on the outermost lane within given
// distance tolerance of its destination
func (c *Car) Finished(distAllow float64) bool {
	return c.Lane == 0 && c.Pos.DistanceTo(c.Dst) <= distAllow
}

// remainingTheta returns unwrapped forward angular distance to the destination
func (c *Car) remainingTheta() float64 {
	return UnwrapTheta(c.Pos.AngleTo(c.Dst))
}

// setAction stores granted action
func (c *Car) setAction(action Action) {
	c.Action = action
}

// integrate applies the finalized action for one tick.
//   - Switch: move the radius toward the target lane at Vel, snap exactly to
//     it (and update Lane) once reached or passed.
//   - Straight: advance the angle along the current lane radius, clamping at
//     the destination angle so the exit point is never overshot. The clamp is
//     computed from the relative unwrapped remaining angle, which stays valid
//     across the 2*Pi wrap point.
//   - Stop: no change.
func (c *Car) integrate(tick float64, settings *Settings) {
	switch c.Action.Kind {
	case ACTION_SWITCH:
		diff := c.Action.Dir
		// positive Dir goes inward, toward a smaller radius
		nextR := c.Pos.R - float64(diff)*c.Vel*tick
		targetR := settings.LaneRadii[c.Lane+diff]
		if (diff < 0 && nextR >= targetR) || (diff > 0 && nextR <= targetR) {
			c.Pos = Position{R: targetR, Theta: c.Pos.Theta}
			c.Lane += diff
		} else {
			c.Pos = Position{R: nextR, Theta: c.Pos.Theta}
		}
	case ACTION_STRAIGHT:
		mvTheta := c.Vel * tick / settings.LaneRadii[c.Lane]
		if mvTheta >= c.remainingTheta() {
			c.Pos = Position{R: c.Pos.R, Theta: c.Dst.Theta}
		} else {
			c.Pos = NewPosition(c.Pos.R, c.Pos.Theta+mvTheta)
		}
	case ACTION_STOP:
	}
}
