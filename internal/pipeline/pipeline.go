// Package pipeline wires the sensor events through the geofence controller,
// batcher, windower, classifier and trip state machine on one serialized
// context.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jengzang/trip-recorder-go/internal/batcher"
	"github.com/jengzang/trip-recorder-go/internal/classifier"
	"github.com/jengzang/trip-recorder-go/internal/geofence"
	"github.com/jengzang/trip-recorder-go/internal/models"
	"github.com/jengzang/trip-recorder-go/internal/rewards"
	"github.com/jengzang/trip-recorder-go/internal/sensor"
	"github.com/jengzang/trip-recorder-go/internal/tripmachine"
	"github.com/jengzang/trip-recorder-go/internal/windower"
)

// ErrBackgroundBudgetExpired means the keepalive token was held past its
// budget. The host would kill the process, so the open trip is sealed.
var ErrBackgroundBudgetExpired = errors.New("background budget expired")

const (
	backgroundTaskName = "trip-detection"
	notifyTimeout      = 30 * time.Second
)

// TripStore persists sealed trips
type TripStore interface {
	SaveTrip(trip *models.Trip) error
}

// Options are the collaborators of a pipeline. Source is required; a nil
// or unloaded Classifier leaves trip detection on location only.
type Options struct {
	Config     Config
	Source     sensor.Source
	Keepalive  sensor.Keepalive
	Classifier *classifier.Classifier
	Store      TripStore
	Tracker    rewards.Tracker
	Clock      clock.Clock
}

type envelope struct {
	ev   sensor.Event
	tick bool
	done chan error
}

type classified struct {
	pred models.Prediction
	err  error
}

// Pipeline owns one independent trip detector. Everything except the
// classification worker and the completion notifier runs inside Run.
type Pipeline struct {
	cfg        Config
	source     sensor.Source
	keepalive  sensor.Keepalive
	classifier *classifier.Classifier
	store      TripStore
	tracker    rewards.Tracker
	clock      clock.Clock

	geofence *geofence.Controller
	batcher  *batcher.Batcher
	windower *windower.Windower
	machine  *tripmachine.Machine

	events  chan envelope
	work    chan models.FeatureWindow
	results chan classified

	// serialized context only
	sampling bool
	inflight int
	ended    []models.Trip
	lastFix  *models.Coordinate
	leaseID  string
	lease    *clock.Timer
	leaseC   <-chan time.Time

	notify sync.WaitGroup
}

// New assembles a pipeline. The windower is only built when a model is
// loaded, since its window shape comes from the model.
func New(opts Options) (*Pipeline, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("failed to create pipeline: sensor source is required")
	}
	cfg := opts.Config
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	p := &Pipeline{
		cfg:        cfg,
		source:     opts.Source,
		keepalive:  opts.Keepalive,
		classifier: opts.Classifier,
		store:      opts.Store,
		tracker:    opts.Tracker,
		clock:      clk,
		events:     make(chan envelope, cfg.QueueSize),
		work:       make(chan models.FeatureWindow, cfg.QueueSize),
		results:    make(chan classified, cfg.QueueSize),
	}

	p.machine = tripmachine.New(cfg.Trip, tripSink{p})
	p.geofence = geofence.NewController(p.machine)
	p.batcher = batcher.New(cfg.Batcher, opts.Source, p.deliver)

	if model, ok := p.model(); ok {
		w, err := windower.New(windower.Config{
			SessionDuration: model.DesiredSessionDuration(),
			SampleInterval:  model.DesiredSampleInterval(),
			MinFillRatio:    cfg.Windower.MinFillRatio,
			MaxGap:          cfg.Windower.MaxGap,
		}, p.enqueue)
		if err != nil {
			return nil, fmt.Errorf("failed to create windower: %w", err)
		}
		p.windower = w
	} else {
		log.Printf("[Pipeline] No model loaded, detecting trips on location only")
	}

	return p, nil
}

// Geofence returns the zone controller. It is safe to register zones from
// any goroutine.
func (p *Pipeline) Geofence() *geofence.Controller {
	return p.geofence
}

// Post queues an event without waiting for it to be handled
func (p *Pipeline) Post(ctx context.Context, ev sensor.Event) error {
	select {
	case p.events <- envelope{ev: ev}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch queues an event and waits until it, and any classification it
// triggered, has been handled
func (p *Pipeline) Dispatch(ctx context.Context, ev sensor.Event) error {
	return p.roundTrip(ctx, envelope{ev: ev, done: make(chan error, 1)})
}

// Tick evaluates the batch and trip timers at the current clock time and
// waits for the result
func (p *Pipeline) Tick(ctx context.Context) error {
	return p.roundTrip(ctx, envelope{tick: true, done: make(chan error, 1)})
}

func (p *Pipeline) roundTrip(ctx context.Context, env envelope) error {
	select {
	case p.events <- env:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-env.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run serves events until ctx is done. It returns early only when arming
// fails with sensor.ErrSensorUnavailable.
func (p *Pipeline) Run(ctx context.Context) error {
	workerCtx, stopWorker := context.WithCancel(ctx)
	var worker sync.WaitGroup
	worker.Add(1)
	go func() {
		defer worker.Done()
		p.classify(workerCtx)
	}()

	ticker := p.clock.Ticker(p.cfg.TickInterval)
	defer func() {
		ticker.Stop()
		stopWorker()
		worker.Wait()
		p.shutdown()
	}()

	log.Printf("[Pipeline] Running (tick=%v)", p.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env := <-p.events:
			var err error
			if env.tick {
				p.tick()
			} else {
				err = p.handle(env.ev)
			}
			if env.done != nil {
				p.drainClassifications(ctx)
				env.done <- err
			}
			if errors.Is(err, sensor.ErrSensorUnavailable) {
				return err
			}

		case r := <-p.results:
			p.handleResult(r)

		case <-ticker.C:
			p.tick()

		case <-p.leaseC:
			p.leaseExpired()
		}
	}
}

func (p *Pipeline) handle(ev sensor.Event) error {
	now := p.clock.Now()
	var err error

	switch ev.Type {
	case sensor.EventLocation:
		p.batcher.Ingest(ev.Location, now)
	case sensor.EventDeferralFailed:
		if p.batcher.Armed() {
			p.batcher.DeferralFailed(ev.Err)
		}
	case sensor.EventAccelerometer:
		if p.windower != nil && p.sampling {
			p.windower.Ingest(ev.Accelerometer)
		}
	case sensor.EventGeofenceEnter:
		sig, gerr := p.geofence.OnEnter(ev.ZoneID)
		if gerr != nil {
			log.Printf("[Pipeline] Ignoring geofence enter: %v", gerr)
			break
		}
		err = p.apply(sig, now)
	case sensor.EventGeofenceExit:
		sig, gerr := p.geofence.OnExit(ev.ZoneID)
		if gerr != nil {
			log.Printf("[Pipeline] Ignoring geofence exit: %v", gerr)
			break
		}
		err = p.apply(sig, now)
	default:
		log.Printf("[Pipeline] Unknown event type %q", ev.Type)
	}

	p.settle()
	return err
}

func (p *Pipeline) apply(sig geofence.Signal, now time.Time) error {
	switch sig {
	case geofence.SignalArm:
		return p.arm()
	case geofence.SignalDisarm:
		p.disarm()
	case geofence.SignalIdleZoneEntered:
		p.machine.IdleZoneEntered(now)
	}
	return nil
}

func (p *Pipeline) tick() {
	now := p.clock.Now()
	p.batcher.Tick(now)
	p.machine.Tick(now)
	p.settle()
}

// arm starts sampling. Continuous accelerometer sampling is only requested
// when a model can use it.
func (p *Pipeline) arm() error {
	if p.machine.Armed() {
		return nil
	}

	if p.windower != nil && p.classifier.CanPredict() {
		if err := p.source.ArmContinuousSampling(); err != nil {
			if errors.Is(err, sensor.ErrSensorUnavailable) {
				return fmt.Errorf("failed to arm accelerometer: %w", err)
			}
			log.Printf("[Pipeline] Accelerometer not armed, continuing on location only: %v", err)
		} else {
			p.sampling = true
			p.windower.Arm()
		}
	}

	if err := p.batcher.Arm(); err != nil {
		if errors.Is(err, sensor.ErrSensorUnavailable) {
			p.batcher.Disarm()
			p.stopSampling()
			return fmt.Errorf("failed to arm location updates: %w", err)
		}
		p.batcher.DeferralFailed(err)
	}

	p.machine.Arm()
	p.acquireLease()
	log.Printf("[Pipeline] Armed (accelerometer=%v)", p.sampling)
	return nil
}

// disarm stops sampling unless a trip is open. The final flush may itself
// open a trip, in which case sampling stays on.
func (p *Pipeline) disarm() {
	if !p.machine.Armed() || p.machine.TripActive() {
		return
	}
	p.batcher.Disarm()
	if p.machine.TripActive() {
		log.Printf("[Pipeline] Final flush opened a trip, staying armed")
		if err := p.batcher.Arm(); err != nil {
			log.Printf("[Pipeline] Failed to re-arm batcher: %v", err)
		}
		return
	}

	p.machine.Disarm()
	p.stopSampling()
	p.releaseLease()
	log.Printf("[Pipeline] Disarmed")
}

func (p *Pipeline) stopSampling() {
	if !p.sampling {
		return
	}
	p.windower.Disarm()
	p.sampling = false
	if err := p.source.DisarmContinuousSampling(); err != nil {
		log.Printf("[Pipeline] Failed to disarm accelerometer: %v", err)
	}
}

// settle reacts to trips that left the machine: a sleep ring is laid around
// where the trip stopped and sampling is switched off until the device
// leaves it
func (p *Pipeline) settle() {
	if len(p.ended) == 0 {
		return
	}
	last := p.ended[len(p.ended)-1]
	p.ended = nil

	if n := len(last.Locations); n > 0 {
		p.geofence.SetupSleepRing(last.Locations[n-1].Coordinate())
	}
	if p.geofence.InsideIdleZone() {
		p.disarm()
	}
}

func (p *Pipeline) deliver(batch []models.LocationSample) {
	if n := len(batch); n > 0 {
		last := batch[n-1].Coordinate()
		p.lastFix = &last
	}
	p.machine.HandleFlush(batch, p.clock.Now())
}

// enqueue hands a closed window to the classification worker
func (p *Pipeline) enqueue(w models.FeatureWindow) {
	select {
	case p.work <- w:
		p.inflight++
	default:
		log.Printf("[Pipeline] Classification queue full, dropping window %s", w.Start.Format(time.RFC3339))
	}
}

// classify is the worker loop. Windows are classified one at a time.
func (p *Pipeline) classify(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-p.work:
			pred, err := p.classifier.Predict(w)
			select {
			case p.results <- classified{pred: pred, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pipeline) handleResult(r classified) {
	p.inflight--
	if r.err != nil {
		// Without a model the window is simply lost; location still segments trips
		log.Printf("[Pipeline] Window not classified: %v", r.err)
		return
	}
	p.machine.HandleClassification(r.pred, p.clock.Now())
	p.settle()
}

func (p *Pipeline) drainClassifications(ctx context.Context) {
	for p.inflight > 0 {
		select {
		case r := <-p.results:
			p.handleResult(r)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) acquireLease() {
	if p.keepalive == nil || p.leaseID != "" {
		return
	}
	id, err := p.keepalive.BeginBackgroundTask(backgroundTaskName)
	if err != nil {
		log.Printf("[Pipeline] Failed to begin background task: %v", err)
		return
	}
	p.leaseID = id
	if p.cfg.BackgroundBudget > 0 {
		p.lease = p.clock.Timer(p.cfg.BackgroundBudget)
		p.leaseC = p.lease.C
	}
}

func (p *Pipeline) releaseLease() {
	if p.lease != nil {
		p.lease.Stop()
		p.lease = nil
		p.leaseC = nil
	}
	if p.leaseID != "" {
		p.keepalive.EndBackgroundTask(p.leaseID)
		p.leaseID = ""
	}
}

func (p *Pipeline) leaseExpired() {
	log.Printf("[Pipeline] FATAL: %v after %v, sealing open trip", ErrBackgroundBudgetExpired, p.cfg.BackgroundBudget)
	p.lease = nil
	p.leaseC = nil

	now := p.clock.Now()
	p.batcher.Flush()
	p.machine.ForceEnd(now, ErrBackgroundBudgetExpired.Error())
	if len(p.ended) == 0 && p.lastFix != nil {
		p.geofence.SetupSleepRing(*p.lastFix)
	}
	p.settle()

	// Sampling without a token is not allowed; the next wake re-arms
	p.disarm()
	p.releaseLease()
}

// shutdown seals what is open and waits for pending notifications
func (p *Pipeline) shutdown() {
	now := p.clock.Now()
	p.batcher.Flush()
	p.machine.ForceEnd(now, "pipeline stopped")
	p.ended = nil
	p.stopSampling()
	p.releaseLease()
	p.notify.Wait()
	log.Printf("[Pipeline] Stopped")
}

func (p *Pipeline) model() (*classifier.Model, bool) {
	if p.classifier == nil {
		return nil, false
	}
	return p.classifier.Model()
}

// tripSink receives trips from the machine inside the serialized context
type tripSink struct {
	p *Pipeline
}

func (s tripSink) TripSealed(trip models.Trip) {
	p := s.p
	p.ended = append(p.ended, trip)

	if p.store != nil {
		if err := p.store.SaveTrip(&trip); err != nil {
			log.Printf("[Pipeline] Failed to save trip %s: %v", trip.UUID, err)
		}
	}

	if p.tracker != nil {
		p.notify.Add(1)
		go func(t models.Trip) {
			defer p.notify.Done()
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := p.tracker.TripCompleted(ctx, t); err != nil {
				log.Printf("[Pipeline] Reward tracker failed for trip %s: %v", t.UUID, err)
			}
		}(trip)
	}
}

func (s tripSink) TripDiscarded(trip models.Trip, reason string) {
	s.p.ended = append(s.p.ended, trip)
}
