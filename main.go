package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/haptable/haptable/internal/api"
	"github.com/haptable/haptable/internal/config"
	"github.com/haptable/haptable/internal/db"
	"github.com/haptable/haptable/internal/equation"
	"github.com/haptable/haptable/internal/haptics"
	"github.com/haptable/haptable/internal/loop"
	"github.com/haptable/haptable/internal/monitor"
	"github.com/haptable/haptable/internal/scene"
	"github.com/haptable/haptable/internal/serialmux"
	"github.com/haptable/haptable/internal/stereo"
	"github.com/haptable/haptable/internal/units"
	"github.com/haptable/haptable/internal/version"
	"github.com/haptable/haptable/internal/vision"
	"github.com/haptable/haptable/internal/vision/netdetect"
)

var (
	devMode      = flag.Bool("dev", false, "Run with a synthetic hand source and simulated motors")
	benchMode    = flag.Bool("bench", false, "Hold the control loop idle so motors can be driven directly over the API")
	listen       = flag.String("listen", ":8080", "HTTP listen address")
	calibFile    = flag.String("calibration", "calibration.json", "Stereo calibration file")
	configFile   = flag.String("config", "", "Tuning config file (built-in defaults when empty)")
	motorPort    = flag.String("port", "/dev/ttyACM0", "Serial port for the motor controller (ignored in dev mode)")
	trackerAddr  = flag.String("tracker", ":9966", "UDP listen address for hand tracker frames (ignored in dev mode)")
	dbFile       = flag.String("db", "haptable.db", "Session database file (empty disables recording)")
	displayUnits = flag.String("units", units.MM, "Units for displayed lengths")
	equationURL  = flag.String("equation-url", "", "Remote equation parser URL (disabled when empty)")
	rcvBuf       = flag.Int("rcvbuf", 4<<20, "UDP receive buffer size in bytes")
	logInterval  = flag.Int("log-interval", 30, "Tracker statistics logging interval in seconds")
	debugLog     = flag.Bool("debug", false, "Verbose debug logging for all subsystems")
	noConsole    = flag.Bool("no-console", false, "Disable the stdin operator console")
	showVersion  = flag.Bool("version", false, "Print version information and exit")
)

func enableDebugLogging() {
	haptics.SetDebugLogger(os.Stderr)
	loop.SetDebugLogger(os.Stderr)
	netdetect.SetDebugLogger(os.Stderr)
	serialmux.SetDebugLogger(os.Stderr)
	stereo.SetDebugLogger(os.Stderr)
	vision.SetDebugLogger(os.Stderr)
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("haptable %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	// Subcommands run instead of the service. "migrate" manages the session
	// database schema from the command line.
	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		db.RunMigrateCommand(args[1:], *dbFile)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*displayUnits) {
		log.Fatalf("Invalid units %q: valid units are %s", *displayUnits, units.GetValidUnitsString())
	}
	if *debugLog {
		enableDebugLogging()
	}

	log.Printf("haptable %s (%s) starting", version.Version, version.GitSHA)

	cfg := config.EmptyTuningConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		log.Printf("loaded tuning config from %s", *configFile)
	}

	// A missing calibration is fatal on purpose: without it every triangulated
	// point would be garbage, so the operator has to run calibrate first.
	cal, err := stereo.LoadCalibration(*calibFile)
	if err != nil {
		log.Fatalf("Failed to load stereo calibration from %s (run the calibrate tool first): %v", *calibFile, err)
	}
	if err := stereo.Rectify(cal); err != nil {
		log.Fatalf("Failed to rectify calibration: %v", err)
	}
	if max := cfg.GetMaxReprojectionRMSPx(); cal.ReprojectionRMS > max {
		log.Printf("WARNING: calibration reprojection RMS %.2fpx exceeds %.2fpx, depth estimates will drift", cal.ReprojectionRMS, max)
	}
	tri, err := stereo.NewTriangulator(cal, stereo.TriangulatorConfig{
		DisparityEpsilonPx: cfg.GetDisparityEpsilonPx(),
	})
	if err != nil {
		log.Fatalf("Failed to build triangulator: %v", err)
	}
	log.Printf("calibration loaded: %dx%d views=%d rms=%.3fpx", cal.ImageWidth, cal.ImageHeight, cal.Views, cal.ReprojectionRMS)

	coords, err := scene.NewCoordinateSystem(scene.CoordinateSystemConfig{
		XMin:        cfg.GetXMinMM(),
		XMax:        cfg.GetXMaxMM(),
		ZMin:        cfg.GetZMinMM(),
		ZMax:        cfg.GetZMaxMM(),
		TableHeight: cfg.GetTableHeightMM(),
		Step:        cfg.GetRangeStepMM(),
		MinSpan:     cfg.GetMinSpanMM(),
	})
	if err != nil {
		log.Fatalf("Failed to build coordinate system: %v", err)
	}
	curves := scene.NewCurveSet(scene.CurveSetConfig{
		SampleCount:      cfg.GetSampleCount(),
		DefaultThickness: cfg.GetCurveThicknessMM(),
	})

	// Create a wait group for the HTTP server, control loop, tracker, serial
	// monitor, and console routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Hand observations come in over UDP from the tracker process. Dev mode
	// swaps in a generator so the loop runs without cameras.
	var source vision.LandmarkSource
	if *devMode {
		log.Print("dev mode: using synthetic sweep source")
		source = vision.NewSweepSource(cal.ImageWidth, cal.ImageHeight, cfg.GetLoopHz())
	} else {
		tracker, err := netdetect.New(netdetect.SourceConfig{
			Addr:        *trackerAddr,
			RcvBuf:      *rcvBuf,
			LogInterval: time.Duration(*logInterval) * time.Second,
		})
		if err != nil {
			log.Fatalf("Failed to listen for tracker frames on %s: %v", *trackerAddr, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tracker.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("tracker listener error: %v", err)
			}
			log.Print("tracker routine terminated")
		}()
		source = tracker
	}
	defer source.Close()

	// Motor output goes through the serial mux in production so the admin
	// routes and the driver share one port.
	var driver haptics.Driver
	var motorMux serialmux.SerialMuxInterface
	if *devMode {
		log.Print("dev mode: using simulated motor driver")
		driver = haptics.NewSimDriver(cfg.GetMotorCount())
	} else {
		mux, err := serialmux.NewRealSerialMux(*motorPort, serialmux.PortOptions{})
		if err != nil {
			log.Fatalf("Failed to open motor controller port %s: %v", *motorPort, err)
		}
		motorMux = mux
		defer motorMux.Close()

		if err := motorMux.Initialize(); err != nil {
			log.Fatalf("Failed to initialize motor controller: %v", err)
		}

		// run the monitor routine to manage IO on the serial port
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := motorMux.Monitor(ctx); err != nil && err != context.Canceled {
				log.Printf("failed to monitor serial port: %v", err)
			}
			log.Print("monitor routine terminated")
		}()

		// subscribe to the controller messages and pass them to the event
		// handler
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, c := motorMux.Subscribe()
			defer motorMux.Unsubscribe(id)
			for {
				select {
				case payload := <-c:
					if err := serialmux.HandleEvent(payload); err != nil {
						log.Printf("error handling controller event: %v", err)
					}
				case <-ctx.Done():
					log.Print("subscribe routine terminated")
					return
				}
			}
		}()

		driver, err = haptics.NewSerialDriver(motorMux, cfg.GetMotorCount())
		if err != nil {
			log.Fatalf("Failed to build motor driver: %v", err)
		}
	}
	defer driver.Close()

	// Session recording is optional. With a database every cycle that touches
	// a curve lands in contact_events for later replay.
	var database *db.DB
	var recorder *db.Recorder
	var sessionID string
	if *dbFile != "" {
		database, err = db.OpenAndMigrate(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open session database: %v", err)
		}
		defer database.Close()

		session := &db.Session{
			StartedUnix:    float64(time.Now().UnixMilli()) / 1000.0,
			CalibrationRMS: cal.ReprojectionRMS,
			MotorCount:     cfg.GetMotorCount(),
		}
		if err := database.CreateSession(session); err != nil {
			log.Fatalf("Failed to create session: %v", err)
		}
		sessionID = session.ID
		log.Printf("recording session %s to %s", sessionID, *dbFile)
		defer func() {
			if err := database.EndSession(sessionID); err != nil {
				log.Printf("failed to end session: %v", err)
			}
		}()

		recorder = db.NewRecorder(database, sessionID, 0)
		defer func() {
			if err := recorder.Close(); err != nil {
				log.Printf("failed to flush session recorder: %v", err)
			}
			if n := recorder.Dropped(); n > 0 {
				log.Printf("session recorder dropped %d cycles", n)
			}
		}()
	}

	mon := monitor.New(coords, curves, 0)
	sinks := []loop.CycleSink{mon}
	if recorder != nil {
		sinks = append(sinks, recorder)
	}

	ctl, err := loop.New(loop.Config{
		RateHz:             cfg.GetLoopHz(),
		FrameTimeout:       cfg.GetFrameTimeout(),
		MinConfidence:      cfg.GetMinDetectionConfidence(),
		WristMatchFraction: cfg.GetWristMatchFraction(),
		MutationQueueDepth: cfg.GetMutationQueueDepth(),
		Sinks:              sinks,
	}, source, tri, coords, curves, driver)
	if err != nil {
		log.Fatalf("Failed to build control loop: %v", err)
	}

	parser := equation.NewDefaultParser(*equationURL)

	// control loop goroutine. Bench mode leaves the loop idle so the haptics
	// API endpoints can drive motors directly.
	if *benchMode {
		log.Print("bench mode: control loop held idle")
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ctl.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("control loop error: %v", err)
			}
			log.Print("control loop routine terminated")
		}()
	}

	// operator console goroutine reading commands from stdin
	if !*noConsole {
		con := &console{
			loop:    ctl,
			parser:  parser,
			coords:  coords,
			db:      database,
			session: sessionID,
			units:   *displayUnits,
			out:     os.Stdout,
			stop:    stop,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			con.run(ctx, os.Stdin)
			log.Print("console routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		// create a new API server instance and mount the API handlers
		srv := api.NewServer(ctl, parser, driver, database, sessionID, *displayUnits)
		mux := srv.ServeMux()

		// mount the admin and debug routes
		mon.AttachDebugRoutes(mux)
		if database != nil {
			database.AttachAdminRoutes(mux)
		}
		if motorMux != nil {
			motorMux.AttachAdminRoutes(mux)
		}

		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status": "ok", "service": "haptable", "version": "%s", "timestamp": "%s"}`, version.Version, time.Now().UTC().Format(time.RFC3339))
		})

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
