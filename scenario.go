package roundabout

import (
	"encoding/json"
	"io/ioutil"
	"math"
	"math/rand"
	"strconv"

	"github.com/pkg/errors"
)

// CarInit initial state of a single car in scenario file
type CarInit struct {
	// Lane index into r_lanes
	Lane int `json:"lane"`
	// Theta initial angle in radians
	Theta float64 `json:"theta"`
	// Vel scalar forward speed, must be positive
	Vel float64 `json:"vel"`
	// Dst intersection index in [0, n_inter)
	Dst int `json:"dst"`
	// Driver driving strategy name, empty means default
	Driver string `json:"driver,omitempty"`
}

// Scenario validated scenario input: settings plus initial car list.
// Produced by the config loader or the generators below, consumed once at
// simulation construction.
type Scenario struct {
	NumIntersections int                `json:"n_inter"`
	LaneRadii        []float64          `json:"r_lanes"`
	Tick             float64            `json:"tick"`
	SwitchPolicy     string             `json:"switch_policy,omitempty"`
	Init             map[string]CarInit `json:"init"`
}

// rawScenario is the decode target. Pointer fields let us tell a missing
// required key from a zero value.
type rawScenario struct {
	NumIntersections *int                `json:"n_inter"`
	LaneRadii        *[]float64          `json:"r_lanes"`
	Tick             *float64            `json:"tick"`
	SwitchPolicy     string              `json:"switch_policy"`
	Init             *map[string]CarInit `json:"init"`
}

// ParseScenario parses scenario JSON and checks required keys
func ParseScenario(data []byte) (*Scenario, error) {
	raw := rawScenario{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "Can't parse scenario JSON")
	}
	if raw.NumIntersections == nil {
		return nil, errors.New("Required key 'n_inter' not specified")
	}
	if raw.LaneRadii == nil {
		return nil, errors.New("Required key 'r_lanes' not specified")
	}
	if raw.Tick == nil {
		return nil, errors.New("Required key 'tick' not specified")
	}
	if raw.Init == nil {
		return nil, errors.New("Required key 'init' not specified")
	}
	return &Scenario{
		NumIntersections: *raw.NumIntersections,
		LaneRadii:        *raw.LaneRadii,
		Tick:             *raw.Tick,
		SwitchPolicy:     raw.SwitchPolicy,
		Init:             *raw.Init,
	}, nil
}

// LoadScenario reads and parses scenario file
func LoadScenario(filename string) (*Scenario, error) {
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "Can't read scenario file")
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't parse scenario file '%s'", filename)
	}
	return sc, nil
}

// Settings builds validated settings from scenario fields
func (sc *Scenario) Settings() (Settings, error) {
	policy, err := ParseSwitchPolicy(sc.SwitchPolicy)
	if err != nil {
		return Settings{}, err
	}
	settings := DefaultSettings()
	settings.NumIntersections = sc.NumIntersections
	settings.LaneRadii = sc.LaneRadii
	settings.Tick = sc.Tick
	settings.Policy = policy
	if err := settings.Validate(); err != nil {
		return Settings{}, errors.Wrap(err, "Can't validate settings")
	}
	return settings, nil
}

// MarshalPretty returns indented JSON representation of scenario
func (sc *Scenario) MarshalPretty() ([]byte, error) {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "Can't marshal scenario")
	}
	return data, nil
}

// GenCircular generates a closed convoy: n cars evenly spaced on the
// outermost lane at unit speed, each car's destination being the next car's
// start. Useful as a smoke scenario since every car has to travel the same arc.
func GenCircular(nCars int) (*Scenario, error) {
	if nCars < 1 {
		return nil, errors.Errorf("Number of cars must be >= 1, but got %d", nCars)
	}
	defaults := DefaultSettings()
	init := make(map[string]CarInit, nCars)
	for id := 0; id < nCars; id++ {
		init[strconv.Itoa(id)] = CarInit{
			Vel:   1.0,
			Lane:  0,
			Dst:   (id + 1) % nCars,
			Theta: twoPi / float64(nCars) * float64(id),
		}
	}
	return &Scenario{
		NumIntersections: nCars,
		LaneRadii:        defaults.LaneRadii,
		Tick:             defaults.Tick,
		Init:             init,
	}, nil
}

// GenRandom generates a randomized multi-lane scenario with the given seed.
// Speeds are drawn from [0.2, 1.2) so no car ends up with degenerate velocity.
func GenRandom(nCars, nInter int, rLanes []float64, seed int64) (*Scenario, error) {
	if nCars < 1 {
		return nil, errors.Errorf("Number of cars must be >= 1, but got %d", nCars)
	}
	if nInter < 1 {
		return nil, errors.Errorf("Number of intersections must be >= 1, but got %d", nInter)
	}
	if len(rLanes) < 1 {
		return nil, errors.New("Lanes should be of length >= 1")
	}
	rnd := rand.New(rand.NewSource(seed))
	init := make(map[string]CarInit, nCars)
	for id := 0; id < nCars; id++ {
		init[strconv.Itoa(id)] = CarInit{
			Vel:   rnd.Float64() + 0.2,
			Lane:  rnd.Intn(len(rLanes)),
			Dst:   rnd.Intn(nInter),
			Theta: rnd.Float64() * twoPi,
		}
	}
	defaults := DefaultSettings()
	return &Scenario{
		NumIntersections: nInter,
		LaneRadii:        rLanes,
		Tick:             defaults.Tick,
		Init:             init,
	}, nil
}

// degenerate guard used by strategies: a lane index outside r_lanes yields an
// infinite cost instead of an out-of-bounds access
func laneRadiusOrInf(rLanes []float64, lane int) float64 {
	if lane < 0 || lane >= len(rLanes) {
		return math.Inf(1)
	}
	return rLanes[lane]
}
