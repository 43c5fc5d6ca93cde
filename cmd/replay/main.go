// Command replay feeds a recorded GPX track, and optionally an accelerometer
// CSV, through the trip pipeline on a simulated clock and stores the trips
// it seals.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/jengzang/trip-recorder-go/internal/classifier"
	"github.com/jengzang/trip-recorder-go/internal/config"
	"github.com/jengzang/trip-recorder-go/internal/database"
	"github.com/jengzang/trip-recorder-go/internal/models"
	"github.com/jengzang/trip-recorder-go/internal/pipeline"
	"github.com/jengzang/trip-recorder-go/internal/repository"
	"github.com/jengzang/trip-recorder-go/internal/rewards"
	"github.com/jengzang/trip-recorder-go/internal/sensor"
)

type countingStore struct {
	repo  *repository.TripRepository
	saved atomic.Int64
}

func (s *countingStore) SaveTrip(trip *models.Trip) error {
	if err := s.repo.SaveTrip(trip); err != nil {
		return err
	}
	s.saved.Add(1)
	log.Printf("[Replay] Saved %s trip %s: %s -> %s, %.0fm",
		trip.ActivityType, trip.UUID, trip.StartTime.Format("15:04:05"), trip.EndTime.Format("15:04:05"), trip.LengthMeters)
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	gpxPath := flag.String("gpx", "", "GPX track to replay (required)")
	accelPath := flag.String("accel", "", "accelerometer CSV: uptime_s,x,y,z,unix_s")
	modelDir := flag.String("model", cfg.ModelDir, "model directory")
	dbPath := flag.String("db", cfg.DBPath, "trip database")
	radius := flag.Float64("home-radius", 100, "radius of the idle zone laid at the first fix, 0 to skip")
	step := flag.Duration("step", sensor.DefaultReplayStep, "clock tick step between recorded events")
	flag.Parse()

	if *gpxPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	locations, err := sensor.ParseGPXFile(*gpxPath)
	if err != nil {
		log.Fatal(err)
	}
	if len(locations) == 0 {
		log.Fatal("No timed track points in ", *gpxPath)
	}

	var accel []models.AccelerometerSample
	if *accelPath != "" {
		if accel, err = sensor.ParseAccelerometerCSVFile(*accelPath); err != nil {
			log.Fatal(err)
		}
	}

	db, err := database.Open(database.Config{Path: *dbPath})
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	c := classifier.New()
	if err := c.Load(*modelDir); err != nil {
		log.Printf("Warning: %v; replaying on location only", err)
	}
	defer c.Release()

	var p *pipeline.Pipeline
	replay := sensor.NewReplay(locations, accel, func() []models.TriggerZone {
		return p.Geofence().Zones()
	})
	replay.SetStep(*step)

	store := &countingStore{repo: repository.NewTripRepository(db)}
	clk := clock.NewMock()
	p, err = pipeline.New(pipeline.Options{
		Config:     cfg.Pipeline,
		Source:     replay,
		Keepalive:  replay,
		Classifier: c,
		Store:      store,
		Tracker:    rewards.NewProgressTracker(repository.NewTrophyRepository(db)),
		Clock:      clk,
	})
	if err != nil {
		log.Fatal(err)
	}

	if *radius > 0 {
		p.Geofence().RegisterZone(locations[0].Coordinate(), *radius, models.ZoneIdle)
	} else {
		// Without a home zone nothing would arm sampling
		p.Geofence().RegisterZone(locations[0].Coordinate(), 1, models.ZoneWake)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
		cancel()
	}()

	tc := cfg.Pipeline.Trip
	tail := cfg.Pipeline.Batcher.MaxDeferral + tc.StillnessTimeout + tc.GracePeriod
	if err := replay.Run(ctx, clk, p, tail); err != nil {
		log.Printf("Replay stopped: %v", err)
	}

	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Pipeline stopped: %v", err)
	}
	log.Printf("Replayed %d fixes and %d accelerometer samples, saved %d trips",
		len(locations), len(accel), store.saved.Load())
}
