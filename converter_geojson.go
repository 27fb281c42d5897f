package roundabout

import (
	geojson "github.com/paulmach/go.geojson"
)

const laneCircleSegments = 64

// GeoJSON returns the whole scene as a feature collection: lane circles,
// exit points, active and finished cars. External renderers consume this
// surface, the engine itself never reads it back.
func (sim *Simulation) GeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for lane, r := range sim.settings.LaneRadii {
		circle := laneCircle(r, laneCircleSegments)
		pts := make([][]float64, 0, len(circle))
		for _, pt := range circle {
			pts = append(pts, []float64{pt[0], pt[1]})
		}
		f := geojson.NewFeature(geojson.NewLineStringGeometry(pts))
		f.SetProperty("kind", "lane")
		f.SetProperty("lane", lane)
		f.SetProperty("radius", r)
		fc.AddFeature(f)
	}
	for i := 0; i < sim.settings.NumIntersections; i++ {
		pt := sim.settings.IntersectionPosition(i).Point()
		f := geojson.NewFeature(geojson.NewPointGeometry([]float64{pt[0], pt[1]}))
		f.SetProperty("kind", "exit")
		f.SetProperty("exit", i)
		fc.AddFeature(f)
	}
	for _, car := range sim.cars {
		fc.AddFeature(carFeature(car, false))
	}
	for _, car := range sim.finished {
		fc.AddFeature(carFeature(car, true))
	}
	return fc
}

func carFeature(car *Car, finished bool) *geojson.Feature {
	pt := car.Pos.Point()
	f := geojson.NewFeature(geojson.NewPointGeometry([]float64{pt[0], pt[1]}))
	f.SetProperty("kind", "car")
	f.SetProperty("id", car.ID)
	f.SetProperty("lane", car.Lane)
	f.SetProperty("vel", car.Vel)
	f.SetProperty("action", car.Action.String())
	f.SetProperty("finished", finished)
	if finished {
		f.SetProperty("finished_at", car.FinishedAt)
	}
	return f
}
