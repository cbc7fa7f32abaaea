// Package supervisor owns the daemon's runtime lifecycle (spec.md §4.7,
// C7): open the CEC adapter, run the protocol engine and external watcher
// concurrently under a context + cancel + sync.WaitGroup lifecycle, and
// reconnect with bounded exponential backoff when a cycle fails.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/corvidae/cecbridge/pkg/ampclient"
	"github.com/corvidae/cecbridge/pkg/bridgeengine"
	"github.com/corvidae/cecbridge/pkg/cecadapter"
	"github.com/corvidae/cecbridge/pkg/config"
	"github.com/corvidae/cecbridge/pkg/eventpolicy"
	"github.com/corvidae/cecbridge/pkg/logging"
)

// Supervisor runs the open-adapter/run-engine/reconnect loop described in
// spec.md §4.7 until its context is cancelled.
type Supervisor struct {
	cfg    *config.Config
	amp    *ampclient.Client
	policy *eventpolicy.Policy
	log    *logging.Logger

	// mu guards engine, the one piece of state a status surface (CLI or
	// statusapi) may want to read concurrently with Run.
	mu     sync.Mutex
	engine *bridgeengine.Engine

	// openAdapter defaults to cecadapter.Open; tests substitute a fake so
	// the reconnect/backoff loop can be exercised off real hardware.
	openAdapter func(cecadapter.Config) (cecadapter.Adapter, error)
}

// New builds a Supervisor. amp is long-lived across reconnect cycles
// (amplifier connectivity is independent of the CEC adapter's lifecycle);
// a fresh CEC adapter and bridgeengine.Engine are built per cycle.
func New(cfg *config.Config, amp *ampclient.Client, log *logging.Logger) *Supervisor {
	dedupeWindow := durationFromSeconds(cfg.DedupeWindowS)
	minInterval := durationFromSeconds(cfg.MinIntervalS)
	return &Supervisor{
		cfg:         cfg,
		amp:         amp,
		policy:      eventpolicy.New(dedupeWindow, minInterval),
		log:         log,
		openAdapter: cecadapter.Open,
	}
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Run executes the reconnect loop until ctx is cancelled. It always
// returns nil on a context-driven shutdown; any other return indicates a
// programming error (runOneCycle itself never returns a fatal error —
// adapter and REST failures are cycle-scoped per spec.md §7).
func (s *Supervisor) Run(ctx context.Context) error {
	backoff := durationFromSeconds(s.cfg.ReconnectDelayS)
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	maxBackoff := backoff
	if maxBackoff < 20*time.Second {
		maxBackoff = 20 * time.Second
	}
	initialBackoff := backoff

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := s.runOneCycle(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = initialBackoff
			continue
		}

		s.log.Errorf("supervisor", "cycle ended: %v; reconnecting in %s", err, backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runOneCycle opens one CEC adapter handle, runs the engine's inbound
// loop and external watcher concurrently, and closes the adapter on
// every exit path (normal end, error, or cancellation) per spec.md §5's
// resource-lifecycle guarantee.
func (s *Supervisor) runOneCycle(ctx context.Context) error {
	adapter, err := s.openAdapter(cecadapter.Config{
		DevicePath: s.cfg.CECDevice,
		OSDName:    s.cfg.CECOSDName,
		Vendor:     cecadapter.VendorProfile(s.cfg.CECVendorCompat),
	})
	if err != nil {
		return err
	}
	defer adapter.Close()

	eng := bridgeengine.New(s.cfg, s.amp, adapter, s.policy, s.log)
	s.mu.Lock()
	s.engine = eng
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.engine = nil
		s.mu.Unlock()
	}()

	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errCh <- eng.RunInbound(cycleCtx)
	}()
	go func() {
		defer wg.Done()
		errCh <- eng.Watch(cycleCtx)
	}()

	firstErr := <-errCh
	cancel()
	wg.Wait()
	close(errCh)

	return firstErr
}

// Engine returns the current cycle's engine, or nil between cycles (e.g.
// while backed off after a failed adapter open). Used by the CLI status
// surface to read a live snapshot without depending on supervisor
// internals beyond this accessor.
func (s *Supervisor) Engine() *bridgeengine.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}
