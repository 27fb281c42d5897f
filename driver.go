package roundabout

// Driver driving strategy of a single car. Implementations decide the next
// action from the car's own state only; the engine never reads strategy
// state beyond calling these three entry points.
type Driver interface {
	// Init is called once at scenario load
	Init(car *Car, settings *Settings)
	// Drive proposes the action for the upcoming step
	Drive(car *Car, ts float64, settings *Settings) Action
	// Update is called once per step after physical integration, letting the
	// strategy learn from the outcome
	Update(car *Car, ts float64, settings *Settings)
}

const (
	DRIVER_SHORTEST_DIST = "ShortestDist"
	DRIVER_SHORTEST_TIME = "ShortestTime"
)

// NewDriver returns driver for given strategy name. Unknown or empty name
// falls back to the default greedy nearest-distance strategy.
func NewDriver(name string) Driver {
	switch name {
	case DRIVER_SHORTEST_TIME:
		return &ShortestTimeDriver{}
	case DRIVER_SHORTEST_DIST:
		return &ShortestDistDriver{}
	default:
		return &ShortestDistDriver{}
	}
}
