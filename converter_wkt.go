package roundabout

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// PrepareWKTLane returns WKT representation of the lane circle with given radius
func PrepareWKTLane(r float64) string {
	return wkt.MarshalString(laneCircle(r, laneCircleSegments))
}

// PrepareWKTPosition returns WKT representation of a position
func PrepareWKTPosition(p Position) string {
	return wkt.MarshalString(p.Point())
}

// PrepareWKTCars returns WKT representation of active car positions as a multipoint
func (sim *Simulation) PrepareWKTCars() string {
	pts := make(orb.MultiPoint, 0, len(sim.cars))
	for _, car := range sim.cars {
		pts = append(pts, car.Pos.Point())
	}
	return wkt.MarshalString(pts)
}
