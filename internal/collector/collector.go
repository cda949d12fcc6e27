// Package collector drives the periodic observation of every registered
// facility and writes the results to the store.
package collector

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mustafarshd/corec-tracker/config"
	"github.com/mustafarshd/corec-tracker/internal/metrics"
	"github.com/mustafarshd/corec-tracker/internal/model"
	"github.com/mustafarshd/corec-tracker/internal/source"
	"github.com/mustafarshd/corec-tracker/internal/store"
)

// State is the scheduler's lifecycle state.
type State string

const (
	StateIdle     State = "IDLE"
	StateRunning  State = "RUNNING"
	StateSleeping State = "SLEEPING"
	StateStopped  State = "STOPPED"
)

// RunSummary describes the most recently completed collection pass.
type RunSummary struct {
	StartedAt  time.Time                 `json:"startedAt"`
	FinishedAt time.Time                 `json:"finishedAt"`
	Succeeded  int                       `json:"succeeded"`
	Failed     int                       `json:"failed"`
	Outcomes   []model.CollectionOutcome `json:"outcomes"`
}

// Status is the externally visible scheduler status. It is a value snapshot;
// the collector owns the underlying record and is its only writer.
type Status struct {
	State   State       `json:"state"`
	LastRun *RunSummary `json:"lastRun,omitempty"`
}

// Collector runs collection passes on a fixed interval until stopped.
type Collector struct {
	cfg     *config.CollectorConfig
	store   store.Store
	source  source.Source
	clock   clockwork.Clock
	metrics *metrics.Metrics

	mu      sync.Mutex
	state   State
	lastRun *RunSummary
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a collector. It starts idle; call Start to begin collecting.
func New(cfg *config.CollectorConfig, s store.Store, src source.Source, clock clockwork.Clock, m *metrics.Metrics) *Collector {
	return &Collector{
		cfg:     cfg,
		store:   s,
		source:  src,
		clock:   clock,
		metrics: m,
		state:   StateIdle,
	}
}

// Start launches the collection loop: one immediate pass, then one per
// interval. Calling Start while the loop is active is a no-op.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRunning || c.state == StateSleeping {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = StateRunning
	go c.run(ctx, c.done)
	log.Println("Collector started")
}

// Stop requests a cooperative shutdown and blocks until the loop exits. A
// pass already in flight completes first; cancellation takes effect at the
// sleep boundary. Stopping an idle or stopped collector is a no-op.
func (c *Collector) Stop() {
	c.mu.Lock()
	if c.state != StateRunning && c.state != StateSleeping {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done
	log.Println("Collector stopped")
}

// Status returns a snapshot of the scheduler state and last run summary.
func (c *Collector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state}
	if c.lastRun != nil {
		summary := *c.lastRun
		summary.Outcomes = append([]model.CollectionOutcome(nil), c.lastRun.Outcomes...)
		st.LastRun = &summary
	}
	return st
}

func (c *Collector) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Collector) run(ctx context.Context, done chan struct{}) {
	c.metrics.CollectorRunning.Set(1)
	defer c.metrics.CollectorRunning.Set(0)
	defer close(done)

	for {
		c.setState(StateRunning)
		// The pass deliberately does not run under the loop context: a stop
		// request lets the in-flight pass finish, and each fetch carries its
		// own bounded timeout instead.
		c.pass()

		c.setState(StateSleeping)
		select {
		case <-ctx.Done():
			c.setState(StateStopped)
			log.Println("Collector loop shutting down")
			return
		case <-c.clock.After(c.cfg.Interval):
		}
	}
}

// pass attempts every registered facility once. Facilities are independent:
// one failure never aborts the rest, and each successful observation commits
// on its own.
func (c *Collector) pass() {
	started := c.clock.Now().UTC()
	facilities := c.store.Registry().All()
	outcomes := make([]model.CollectionOutcome, len(facilities))

	sem := make(chan struct{}, c.cfg.Concurrency)
	var wg sync.WaitGroup
	for i, facility := range facilities {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = c.collectOne(id)
		}(i, facility.ID)
	}
	wg.Wait()

	finished := c.clock.Now().UTC()
	run := &model.CollectionRun{
		StartedAt:  started,
		FinishedAt: finished,
		Outcomes:   outcomes,
	}
	for _, o := range outcomes {
		if o.Success {
			run.Succeeded++
		} else {
			run.Failed++
		}
	}

	// Run metadata has independent fate: a failure here never rolls back the
	// observations this pass already appended.
	recordCtx, cancel := context.WithTimeout(context.Background(), c.cfg.FetchTimeout)
	defer cancel()
	if err := c.store.RecordRun(recordCtx, run); err != nil {
		log.Printf("Error recording collection run: %v", err)
		c.metrics.RunRecordErrors.Inc()
	}

	c.mu.Lock()
	c.lastRun = &RunSummary{
		StartedAt:  started,
		FinishedAt: finished,
		Succeeded:  run.Succeeded,
		Failed:     run.Failed,
		Outcomes:   outcomes,
	}
	c.mu.Unlock()

	c.metrics.PassesTotal.Inc()
	c.metrics.PassDuration.Observe(finished.Sub(started).Seconds())
	log.Printf("Collection pass finished: %d succeeded, %d failed", run.Succeeded, run.Failed)
}

func (c *Collector) collectOne(facilityID string) model.CollectionOutcome {
	fetchCtx, cancel := context.WithTimeout(context.Background(), c.cfg.FetchTimeout)
	defer cancel()

	obs, err := c.source.Fetch(fetchCtx, facilityID)
	if err != nil {
		outcome := "permanent"
		if source.IsTransient(err) {
			outcome = "transient"
		}
		c.metrics.FetchesTotal.WithLabelValues(facilityID, outcome).Inc()
		log.Printf("Error fetching facility %q: %v", facilityID, err)
		return model.CollectionOutcome{FacilityID: facilityID, Error: err.Error()}
	}
	c.metrics.FetchesTotal.WithLabelValues(facilityID, "success").Inc()

	// A fresh context so an append already under way completes or cleanly
	// fails even if the fetch deadline has just expired.
	appendCtx, cancelAppend := context.WithTimeout(context.Background(), c.cfg.FetchTimeout)
	defer cancelAppend()
	if err := c.store.Append(appendCtx, obs); err != nil {
		c.metrics.AppendErrors.Inc()
		log.Printf("Error appending observation for facility %q: %v", facilityID, err)
		return model.CollectionOutcome{FacilityID: facilityID, Error: err.Error()}
	}

	return model.CollectionOutcome{FacilityID: facilityID, Success: true}
}
