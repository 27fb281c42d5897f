package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/vmarkelov/roundabout"

	log "github.com/sirupsen/logrus"
)

var (
	fileName    = flag.String("file", "", "Filename of scenario JSON file to run")
	maxTime     = flag.Float64("maxt", -1.0, "Simulated-time budget. Negative value means no budget")
	out         = flag.String("out", "", "Filename of 'Comma-Separated Values' (CSV) formatted file with finish results. Empty means stdout")
	geojsonOut  = flag.String("geojson", "", "Filename for GeoJSON snapshot of the final scene (optional)")
	genMode     = flag.String("gen", "", "Generate a scenario instead of running one. Expected values: circular / random")
	genCars     = flag.Int("cars", 4, "Number of cars for generated scenario")
	genInter    = flag.Int("inter", 4, "Number of intersections for generated random scenario")
	genSeed     = flag.Int64("seed", 42, "Seed for generated random scenario")
	genLanesStr = flag.String("lanes", "1.0,0.8,0.6", "Lane radii for generated random scenario, outer to inner (separated by commas)")
)

func main() {
	flag.Parse()

	if *genMode != "" {
		if err := generate(); err != nil {
			log.WithError(err).Fatal("Can't generate scenario")
		}
		return
	}
	if *fileName == "" {
		flag.Usage()
		os.Exit(1)
	}
	if err := run(); err != nil {
		log.WithError(err).Fatal("Simulation failed")
	}
}

func generate() error {
	var scenario *roundabout.Scenario
	var err error
	switch *genMode {
	case "circular":
		scenario, err = roundabout.GenCircular(*genCars)
	case "random":
		lanes, lerr := parseLanes(*genLanesStr)
		if lerr != nil {
			return lerr
		}
		scenario, err = roundabout.GenRandom(*genCars, *genInter, lanes, *genSeed)
	default:
		return fmt.Errorf("unknown generator mode '%s'", *genMode)
	}
	if err != nil {
		return err
	}
	data, err := scenario.MarshalPretty()
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func run() error {
	sim, err := roundabout.LoadSimulation(*fileName)
	if err != nil {
		return err
	}
	done, err := sim.Run(*maxTime)
	if err != nil {
		return err
	}
	if !done {
		log.WithFields(log.Fields{"t": sim.CurrentTime(), "active": len(sim.ActiveCars())}).Warn("time budget exhausted before every car finished")
	} else {
		log.WithFields(log.Fields{"t": sim.CurrentTime()}).Info("simulation finished")
	}
	if err := writeResults(sim); err != nil {
		return err
	}
	if *geojsonOut != "" {
		fc := sim.GeoJSON()
		data, err := fc.MarshalJSON()
		if err != nil {
			return err
		}
		if err := ioutil.WriteFile(*geojsonOut, data, 0644); err != nil {
			return err
		}
	}
	return nil
}

func writeResults(sim *roundabout.Simulation) error {
	target := os.Stdout
	if *out != "" {
		file, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer file.Close()
		target = file
	}
	writer := csv.NewWriter(target)
	defer writer.Flush()
	writer.Comma = ';'
	// 		order - completion order, starting from 0
	// 		car_id - stable car identifier
	// 		finished_at - simulated time the car reached its destination
	if err := writer.Write([]string{"order", "car_id", "finished_at"}); err != nil {
		return err
	}
	for i, car := range sim.FinishedCars() {
		err := writer.Write([]string{
			strconv.Itoa(i),
			strconv.Itoa(car.ID),
			strconv.FormatFloat(car.FinishedAt, 'f', -1, 64),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func parseLanes(lanesStr string) ([]float64, error) {
	parts := strings.Split(lanesStr, ",")
	lanes := make([]float64, 0, len(parts))
	for _, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		lanes = append(lanes, value)
	}
	return lanes, nil
}
