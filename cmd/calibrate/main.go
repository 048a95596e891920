// Command calibrate solves the stereo rig model from captured
// chessboard corner observations and writes the calibration file the
// service loads at startup.
//
// Usage:
//
//	go run ./cmd/calibrate [flags]
//
// Flags:
//
//	-observations  Corner observation JSON from the capture tooling (required)
//	-out           Calibration file to write (default: calibration.json)
//	-config        Tuning config supplying solve thresholds
//	-min-views     Minimum paired views (overrides config)
//	-max-rms       Reprojection RMS limit in pixels (overrides config)
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/haptable/haptable/internal/config"
	"github.com/haptable/haptable/internal/stereo"
)

func main() {
	obsFile := flag.String("observations", "", "Corner observation JSON (required)")
	outFile := flag.String("out", "calibration.json", "Calibration file to write")
	configFile := flag.String("config", "", "Tuning config file (built-in defaults when empty)")
	minViews := flag.Int("min-views", 0, "Minimum paired views (0 = config default)")
	maxRMS := flag.Float64("max-rms", 0, "Reprojection RMS limit in px (0 = config default)")
	flag.Parse()

	if *obsFile == "" {
		log.Fatal("Error: -observations flag is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	}
	if *minViews == 0 {
		*minViews = cfg.GetMinCalibrationViews()
	}
	if *maxRMS == 0 {
		*maxRMS = cfg.GetMaxReprojectionRMSPx()
	}

	obs, err := stereo.LoadObservations(*obsFile)
	if err != nil {
		log.Fatalf("Failed to load observations: %v", err)
	}
	log.Printf("loaded %d views of a %dx%d board (%.1fmm squares) at %dx%d",
		len(obs.Views), obs.Board.Cols, obs.Board.Rows, obs.Board.SquareSize,
		obs.ImageWidth, obs.ImageHeight)

	cal, err := stereo.Solve(obs, stereo.SolveOptions{
		MinViews: *minViews,
		MaxRMS:   *maxRMS,
	})
	if err != nil {
		log.Fatalf("Solve failed: %v", err)
	}

	fmt.Printf("left:   fx=%.2f fy=%.2f cx=%.2f cy=%.2f\n", cal.Left.Fx, cal.Left.Fy, cal.Left.Cx, cal.Left.Cy)
	fmt.Printf("right:  fx=%.2f fy=%.2f cx=%.2f cy=%.2f\n", cal.Right.Fx, cal.Right.Fy, cal.Right.Cx, cal.Right.Cy)
	fmt.Printf("baseline: %.2f mm\n", cal.Baseline())
	fmt.Printf("reprojection rms: %.3f px (limit %.1f)\n", cal.ReprojectionRMS, *maxRMS)

	if err := cal.Save(*outFile); err != nil {
		log.Fatalf("Failed to write calibration: %v", err)
	}
	log.Printf("wrote %s", *outFile)
}
