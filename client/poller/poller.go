// Package poller runs the staff-side authoritative refresh loop. The staff
// view is intentionally eventually consistent: polls are coarse, single
// flight per station, and the loop goes dormant as soon as the station has
// no session in progress.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chargesync/domain"
)

// SessionLister is the backend list call.
type SessionLister interface {
	ListStationSessions(ctx context.Context, stationID string) ([]domain.Session, error)
}

// Config sets the loop cadence.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// Poller owns the refresh loop for one station. The timer lives inside the
// instance; it starts only while at least one session is IN_PROGRESS and
// clears itself when none remain.
type Poller struct {
	stationID string
	backend   SessionLister
	cfg       Config
	logger    *zap.Logger

	mu         sync.Mutex
	polling    bool
	inFlight   bool
	generation uint64
	snapshot   []domain.Session
	onChange   func([]domain.Session)
	cancel     context.CancelFunc
	done       chan struct{}
}

// New builds a dormant poller.
func New(stationID string, backend SessionLister, cfg Config, logger *zap.Logger) *Poller {
	return &Poller{
		stationID: stationID,
		backend:   backend,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// OnChange registers the callback fired when a poll produced a snapshot
// that actually differs, by value, from the previous one.
func (p *Poller) OnChange(fn func([]domain.Session)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// Snapshot returns the last applied session list.
func (p *Poller) Snapshot() []domain.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

// Polling reports whether the refresh loop is live.
func (p *Poller) Polling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polling
}

// Kick performs one authoritative refresh (the staff opening the station
// view). If the result shows an active session the loop starts; otherwise
// the poller stays dormant and issues no further calls.
func (p *Poller) Kick(ctx context.Context) error {
	p.mu.Lock()
	gen := p.generation
	p.mu.Unlock()

	active, ok, err := p.poll(ctx, gen)
	if err != nil {
		return err
	}
	if ok {
		p.ensureLoop(active)
	}
	return nil
}

// poll is single-flight: a call while another is in flight is skipped, not
// queued. ok reports whether the result was applied; results arriving after
// a teardown (generation changed) are discarded.
func (p *Poller) poll(ctx context.Context, gen uint64) (active, ok bool, err error) {
	p.mu.Lock()
	if p.inFlight || gen != p.generation {
		p.mu.Unlock()
		return false, false, nil
	}
	p.inFlight = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	sessions, err := p.backend.ListStationSessions(callCtx, p.stationID)
	if err != nil {
		// Failed or timed-out polls skip this cycle; the next interval retries.
		p.logger.Warn("station poll failed",
			zap.String("station_id", p.stationID),
			zap.Error(err),
		)
		return false, false, err
	}

	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		return false, false, nil
	}
	changed := !domain.SessionsEqual(p.snapshot, sessions)
	if changed {
		p.snapshot = sessions
	}
	onChange := p.onChange
	p.mu.Unlock()

	if changed && onChange != nil {
		onChange(sessions)
	}
	return anyActive(sessions), true, nil
}

func (p *Poller) ensureLoop(active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if active && !p.polling {
		loopCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		p.polling = true
		p.cancel = cancel
		p.done = done
		gen := p.generation
		go p.run(loopCtx, gen, done)
		p.logger.Info("station polling started", zap.String("station_id", p.stationID))
	}
}

func (p *Poller) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			active, ok, err := p.poll(ctx, gen)
			if err != nil || !ok {
				continue
			}
			if !active {
				p.loopFinished(gen)
				return
			}
		}
	}
}

// loopFinished marks the poller dormant after its own loop observed zero
// active sessions.
func (p *Poller) loopFinished(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.generation {
		return
	}
	p.generation++
	p.polling = false
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.done = nil
	p.logger.Info("station polling stopped, no active sessions",
		zap.String("station_id", p.stationID),
	)
}

// Stop tears the loop down. In-flight results from before the teardown are
// discarded rather than applied.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.generation++
	wasPolling := p.polling
	p.polling = false
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if !wasPolling {
		return
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func anyActive(sessions []domain.Session) bool {
	for _, s := range sessions {
		if s.Active() {
			return true
		}
	}
	return false
}
