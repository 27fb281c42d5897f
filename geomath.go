package roundabout

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

const (
	twoPi = 2.0 * math.Pi
)

// Position representation of point on the roundabout plane in polar coordinates.
// Theta is kept normalized to (-Pi, Pi].
type Position struct {
	R     float64
	Theta float64
}

// NewPosition returns position with normalized angle
func NewPosition(r, theta float64) Position {
	return Position{R: r, Theta: WrapTheta(theta)}
}

// String returns pretty printed value for Position
func (p Position) String() string {
	return fmt.Sprintf("R: %f | Theta: %f", p.R, p.Theta)
}

// Point returns Cartesian projection of position
func (p Position) Point() orb.Point {
	return orb.Point{p.R * math.Cos(p.Theta), p.R * math.Sin(p.Theta)}
}

// DistanceTo returns Euclidean distance between two positions
func (p Position) DistanceTo(q Position) float64 {
	a := p.Point()
	b := q.Point()
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	return math.Sqrt(dx*dx + dy*dy)
}

// AngleTo returns relative bearing from p to q, normalized to (-Pi, Pi]
func (p Position) AngleTo(q Position) float64 {
	return WrapTheta(q.Theta - p.Theta)
}

// WrapTheta maps any angle into (-Pi, Pi]
func WrapTheta(theta float64) float64 {
	theta = math.Mod(theta, twoPi)
	if theta > math.Pi {
		theta -= twoPi
	} else if theta <= -math.Pi {
		theta += twoPi
	}
	return theta
}

// UnwrapTheta maps a negative angle into forward-progress range [0, 2*Pi).
// Raw angle subtraction is valid modulo 2*Pi only, so every remaining-distance
// computation has to pass through this first.
func UnwrapTheta(theta float64) float64 {
	if theta < 0.0 {
		return theta + twoPi
	}
	return theta
}

// onLane reports whether position lies on the lane circle of radius rLane
// within given drift tolerance
func onLane(pos Position, rLane float64, driftAllow float64) bool {
	ideal := Position{R: rLane, Theta: pos.Theta}
	return pos.DistanceTo(ideal) <= driftAllow
}

// laneCircle samples the lane circle of given radius as a closed line string
func laneCircle(r float64, segments int) orb.LineString {
	if segments < 3 {
		segments = 3
	}
	line := make(orb.LineString, 0, segments+1)
	for i := 0; i <= segments; i++ {
		theta := twoPi * float64(i) / float64(segments)
		line = append(line, orb.Point{r * math.Cos(theta), r * math.Sin(theta)})
	}
	return line
}
