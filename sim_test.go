package roundabout

import (
	"math"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func mustSimulation(t *testing.T, scenario *Scenario) *Simulation {
	t.Helper()
	settings, err := scenario.Settings()
	if err != nil {
		t.Fatalf("Settings must build, but got error: %v", err)
	}
	sim, err := NewSimulation(settings, scenario)
	if err != nil {
		t.Fatalf("Simulation must build, but got error: %v", err)
	}
	return sim
}

func finishedIDs(sim *Simulation) []int {
	ids := make([]int, 0, len(sim.FinishedCars()))
	for _, car := range sim.FinishedCars() {
		ids = append(ids, car.ID)
	}
	return ids
}

func TestFinishedAtConstruction(t *testing.T) {
	scenario := &Scenario{
		NumIntersections: 2,
		LaneRadii:        []float64{1.0},
		Tick:             0.1,
		Init: map[string]CarInit{
			"0": {Lane: 0, Theta: 0.0, Vel: 1.0, Dst: 0},
		},
	}
	sim := mustSimulation(t, scenario)
	if len(sim.FinishedCars()) != 1 {
		t.Fatalf("Car already at its destination must be finished at construction, but got %d finished", len(sim.FinishedCars()))
	}
	if got := sim.FinishedCars()[0].FinishedAt; got != 0.0 {
		t.Errorf("Finish time must be 0, but got %f", got)
	}
	done, err := sim.Step()
	if err != nil {
		t.Errorf("Step on an empty active set must not fail, but got error: %v", err)
	}
	if !done {
		t.Error("Step must report all finished")
	}
}

func TestSingleCarCruise(t *testing.T) {
	scenario := &Scenario{
		NumIntersections: 2,
		LaneRadii:        []float64{1.0},
		Tick:             0.1,
		Init: map[string]CarInit{
			"0": {Lane: 0, Theta: 0.0, Vel: 1.0, Dst: 1},
		},
	}
	sim := mustSimulation(t, scenario)
	done, err := sim.Run(-1.0)
	if err != nil {
		t.Fatalf("Run must not fail, but got error: %v", err)
	}
	if !done {
		t.Fatal("Run must finish")
	}
	got := sim.FinishedCars()[0].FinishedAt
	if math.Abs(got-math.Pi) > 0.1*math.Pi {
		t.Errorf("Finish time must be within 10%% of Pi, but got %f", got)
	}
}

func TestCircularConvoy(t *testing.T) {
	for _, n := range []int{4, 36, 360} {
		scenario, err := GenCircular(n)
		if err != nil {
			t.Fatalf("Generator must succeed for %d cars, but got error: %v", n, err)
		}
		sim := mustSimulation(t, scenario)
		done, err := sim.Run(-1.0)
		if err != nil {
			t.Fatalf("Run must not fail for %d cars, but got error: %v", n, err)
		}
		if !done {
			t.Fatalf("All %d convoy cars must finish", n)
		}
		if len(sim.FinishedCars()) != n {
			t.Fatalf("Finished list must hold %d cars, but got %d", n, len(sim.FinishedCars()))
		}
		expected := twoPi / float64(n)
		for _, car := range sim.FinishedCars() {
			// completion is quantized by the tick ceiling, never earlier
			// than the exact arc time
			if car.FinishedAt < expected-1e-9 || car.FinishedAt > expected+scenario.Tick+1e-9 {
				t.Errorf("Car %d of %d must finish near %f, but got %f", car.ID, n, expected, car.FinishedAt)
			}
		}
	}
}

func TestTwoSpeedsSlowerEndsTheRun(t *testing.T) {
	scenario := &Scenario{
		NumIntersections: 2,
		LaneRadii:        []float64{1.0},
		Tick:             0.1,
		Init: map[string]CarInit{
			"0": {Lane: 0, Theta: 0.5, Vel: 1.0, Dst: 1},
			"1": {Lane: 0, Theta: 0.0, Vel: 0.5, Dst: 1},
		},
	}
	sim := mustSimulation(t, scenario)
	done, err := sim.Run(-1.0)
	if err != nil {
		t.Fatalf("Run must not fail, but got error: %v", err)
	}
	if !done {
		t.Fatal("Run must finish")
	}
	ids := finishedIDs(sim)
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Fatalf("Completion order must be [0 1], but got %v", ids)
	}
	slower := sim.FinishedCars()[1]
	expected := math.Pi / 0.5
	if math.Abs(slower.FinishedAt-expected) > 0.1*expected {
		t.Errorf("Run must end when the slower car finishes near %f, but got %f", expected, slower.FinishedAt)
	}
	if sim.CurrentTime() < slower.FinishedAt {
		t.Errorf("Engine time %f must not be before the last finish %f", sim.CurrentTime(), slower.FinishedAt)
	}
}

func TestFollowingStall(t *testing.T) {
	// a fast car boxed in behind a slow one stalls until the slow car exits
	scenario := &Scenario{
		NumIntersections: 4,
		LaneRadii:        []float64{1.0},
		Tick:             0.1,
		Init: map[string]CarInit{
			"0": {Lane: 0, Theta: 0.05, Vel: 0.4, Dst: 1},
			"1": {Lane: 0, Theta: 0.0, Vel: 2.0, Dst: 2},
		},
	}
	sim := mustSimulation(t, scenario)
	done, err := sim.Run(-1.0)
	if err != nil {
		t.Fatalf("Run must not fail, but got error: %v", err)
	}
	if !done {
		t.Fatal("Run must finish")
	}
	ids := finishedIDs(sim)
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Fatalf("Completion order must be [0 1], but got %v", ids)
	}
	slow := sim.FinishedCars()[0]
	fast := sim.FinishedCars()[1]
	if fast.FinishedAt <= slow.FinishedAt {
		t.Errorf("Boxed-in car must finish after the slow one, but got %f <= %f", fast.FinishedAt, slow.FinishedAt)
	}
	expectedSlow := (math.Pi/2.0 - 0.05) / 0.4
	if math.Abs(slow.FinishedAt-expectedSlow) > 0.1*expectedSlow+scenario.Tick {
		t.Errorf("Slow car must finish near %f, but got %f", expectedSlow, slow.FinishedAt)
	}
}

func switchConflictScenario(policy string) *Scenario {
	return &Scenario{
		NumIntersections: 4,
		LaneRadii:        []float64{1.0, 0.6},
		Tick:             0.1,
		SwitchPolicy:     policy,
		Init: map[string]CarInit{
			// car 0 sits on the inner lane right next to its exit and wants out
			"0": {Lane: 1, Theta: math.Pi/2.0 - 0.01, Vel: 0.5, Dst: 1},
			// car 1 cruises the outer lane right behind the landing point
			"1": {Lane: 0, Theta: math.Pi/2.0 - 0.02, Vel: 1.0, Dst: 1},
		},
	}
}

func TestSwitchPolicyDeterminism(t *testing.T) {
	runPolicy := func(policy string) *Simulation {
		sim := mustSimulation(t, switchConflictScenario(policy))
		done, err := sim.Run(-1.0)
		if err != nil {
			t.Fatalf("Run must not fail under %s, but got error: %v", policy, err)
		}
		if !done {
			t.Fatalf("Run must finish under %s", policy)
		}
		return sim
	}

	straightFirst := runPolicy("StraightFirst")
	ids := finishedIDs(straightFirst)
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 0 {
		t.Errorf("StraightFirst completion order must be [1 0], but got %v", ids)
	}

	switchFirst := runPolicy("SwitchFirst")
	ids = finishedIDs(switchFirst)
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Errorf("SwitchFirst completion order must be [0 1], but got %v", ids)
	}

	// identical scenarios must replay to identical outcomes
	for _, policy := range []string{"StraightFirst", "SwitchFirst"} {
		first := runPolicy(policy)
		second := runPolicy(policy)
		firstIDs := finishedIDs(first)
		secondIDs := finishedIDs(second)
		for i := range firstIDs {
			if firstIDs[i] != secondIDs[i] {
				t.Errorf("Completion order under %s must be reproducible, but got %v and %v", policy, firstIDs, secondIDs)
			}
			if first.FinishedCars()[i].FinishedAt != second.FinishedCars()[i].FinishedAt {
				t.Errorf("Finish times under %s must be reproducible, but got %f and %f",
					policy, first.FinishedCars()[i].FinishedAt, second.FinishedCars()[i].FinishedAt)
			}
		}
	}
}

// haltDriver never moves, used to provoke the progress invariant
type haltDriver struct{}

func (d *haltDriver) Init(car *Car, settings *Settings) {}
func (d *haltDriver) Drive(car *Car, ts float64, settings *Settings) Action { return Stop }
func (d *haltDriver) Update(car *Car, ts float64, settings *Settings) {}

func TestProgressInvariantDeadlock(t *testing.T) {
	settings := testSettings(1.0)
	car := &Car{
		ID:     0,
		Pos:    NewPosition(1.0, 0.0),
		Vel:    1.0,
		Lane:   0,
		Dst:    settings.IntersectionPosition(2),
		driver: &haltDriver{},
	}
	sim := &Simulation{settings: settings, cars: []*Car{car}}
	_, err := sim.Step()
	if err == nil {
		t.Fatal("Step with every car stopped must fail")
	}
	if errors.Cause(err) != ErrNoProgress {
		t.Errorf("Error cause must be ErrNoProgress, but got %v", err)
	}
}

// driftDriver insists on going straight even while off lane
type driftDriver struct{}

func (d *driftDriver) Init(car *Car, settings *Settings) {}
func (d *driftDriver) Drive(car *Car, ts float64, settings *Settings) Action { return Straight }
func (d *driftDriver) Update(car *Car, ts float64, settings *Settings) {}

func TestAlignmentGuard(t *testing.T) {
	settings := testSettings(1.0, 0.5)
	car := &Car{
		ID:     0,
		Pos:    NewPosition(0.8, 0.0), // stranded between the lanes
		Vel:    1.0,
		Lane:   0,
		Dst:    settings.IntersectionPosition(2),
		driver: &driftDriver{},
	}
	sim := &Simulation{settings: settings, cars: []*Car{car}}
	_, err := sim.Step()
	if errors.Cause(err) != ErrNoProgress {
		t.Fatalf("Downgraded straight proposal must starve the step, but got error %v", err)
	}
	if car.Action != Stop {
		t.Errorf("Misaligned straight proposal must be downgraded to Stop, but got %s", car.Action)
	}
}

func TestSideCollisionHaltsChaser(t *testing.T) {
	// two cars side by side on the outer lane, both switching inward; the
	// faster one would plow into the slower one immediately
	settings := testSettings(1.0, 0.5)
	slow := &Car{
		ID:     0,
		Pos:    NewPosition(1.0, 0.0),
		Vel:    0.2,
		Lane:   0,
		Dst:    settings.IntersectionPosition(2),
		driver: &haltDriver{},
	}
	fast := &Car{
		ID:     1,
		Pos:    NewPosition(1.0, 0.005),
		Vel:    1.0,
		Lane:   0,
		Dst:    settings.IntersectionPosition(2),
		driver: &haltDriver{},
	}
	slow.setAction(SwitchIn)
	fast.setAction(SwitchIn)
	byLane := map[int][]*Car{0: {slow, fast}}
	sim := &Simulation{settings: settings, cars: []*Car{slow, fast}}
	tick := sim.sideCollisions(byLane, []int{0}, settings.Tick)
	if tick != settings.Tick {
		t.Errorf("Tick must stay at the ceiling %f when the hazard resolves by halting, but got %f", settings.Tick, tick)
	}
	if fast.Action != Stop {
		t.Errorf("Chasing car must be halted, but got %s", fast.Action)
	}
	if slow.Action != SwitchIn {
		t.Errorf("Leading car must keep switching, but got %s", slow.Action)
	}
}

func TestSideCollisionClampsTick(t *testing.T) {
	// the chaser is radially behind by 0.08 and closes at 0.8 per second:
	// contact in 0.1 seconds, within a 0.2 ceiling
	settings := testSettings(1.0, 0.5)
	settings.Tick = 0.2
	leader := &Car{
		ID:     0,
		Pos:    NewPosition(0.85, 0.0),
		Vel:    0.2,
		Lane:   0,
		Dst:    settings.IntersectionPosition(2),
		driver: &haltDriver{},
	}
	chaser := &Car{
		ID:     1,
		Pos:    NewPosition(0.93, 0.005),
		Vel:    1.0,
		Lane:   0,
		Dst:    settings.IntersectionPosition(2),
		driver: &haltDriver{},
	}
	leader.setAction(SwitchIn)
	chaser.setAction(SwitchIn)
	byLane := map[int][]*Car{0: {leader, chaser}}
	sim := &Simulation{settings: settings, cars: []*Car{leader, chaser}}
	tick := sim.sideCollisions(byLane, []int{0}, settings.Tick)
	if math.Abs(tick-0.1) > 1e-9 {
		t.Errorf("Tick must clamp to the time to contact 0.1, but got %f", tick)
	}
	if chaser.Action != SwitchIn || leader.Action != SwitchIn {
		t.Error("Neither car must be halted when the contact is beyond the minimal threshold")
	}
}

func TestExporters(t *testing.T) {
	sim := mustSimulation(t, switchConflictScenario(""))
	fc := sim.GeoJSON()
	correct := 2 /* lanes */ + 4 /* exits */ + 2 /* cars */
	if len(fc.Features) != correct {
		t.Errorf("Feature collection must hold %d features, but got %d", correct, len(fc.Features))
	}
	if !strings.HasPrefix(PrepareWKTLane(1.0), "LINESTRING") {
		t.Error("Lane WKT must be a linestring")
	}
	if !strings.HasPrefix(PrepareWKTPosition(NewPosition(1.0, 0.0)), "POINT") {
		t.Errorf("Position WKT must be a point, but got '%s'", PrepareWKTPosition(NewPosition(1.0, 0.0)))
	}
	if !strings.HasPrefix(sim.PrepareWKTCars(), "MULTIPOINT") {
		t.Errorf("Cars WKT must be a multipoint, but got '%s'", sim.PrepareWKTCars())
	}
}
