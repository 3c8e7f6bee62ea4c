// Package simulator runs the driver-side optimistic charge model. Between
// authoritative refreshes it advances a local SOC/energy estimate for a
// smooth display and publishes the latest value to the shared ephemeral
// channel. Its numbers are a display approximation, never billing truth.
package simulator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chargesync/client/api"
	"chargesync/domain"
	"chargesync/estimates"
)

// Simulator states.
const (
	StateIdle    = "IDLE"
	StateArmed   = "ARMED"
	StateRunning = "RUNNING"
	StateStopped = "STOPPED"
)

var (
	ErrNotIdle    = errors.New("simulator: not idle")
	ErrNotArmed   = errors.New("simulator: no armed booking")
	ErrNotRunning = errors.New("simulator: not running")
)

// SessionStarter is the backend call that consumes the booking.
type SessionStarter interface {
	StartSession(ctx context.Context, req api.StartSessionRequest) (domain.Session, error)
}

// Config bounds the local model and the loop cadence.
type Config struct {
	TickInterval       time.Duration
	PublishInterval    time.Duration
	RatedPowerKW       float64
	BatteryCapacityKWh float64
	VehiclePlate       string
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 2 * time.Second
	}
	if c.RatedPowerKW <= 0 {
		c.RatedPowerKW = 22
	}
	if c.BatteryCapacityKWh <= 0 {
		c.BatteryCapacityKWh = 60
	}
	return c
}

// Simulator owns its tick loop: the timer lives inside the instance and its
// lifecycle is bound to the Armed/Running/Stopped transitions.
type Simulator struct {
	cfg     Config
	backend SessionStarter
	channel estimates.Channel
	logger  *zap.Logger
	now     func() time.Time

	mu            sync.Mutex
	state         string
	bookingID     int64
	session       domain.Session
	virtualSoc    float64
	virtualEnergy float64
	lastTick      time.Time
	publishFailed bool
	cancel        context.CancelFunc
	done          chan struct{}
}

// New builds an idle simulator.
func New(backend SessionStarter, channel estimates.Channel, cfg Config, logger *zap.Logger) *Simulator {
	return &Simulator{
		cfg:     cfg.withDefaults(),
		backend: backend,
		channel: channel,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		state:   StateIdle,
	}
}

// Arm binds a scanned booking. Only an idle simulator can be armed.
func (s *Simulator) Arm(bookingID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrNotIdle
	}
	s.state = StateArmed
	s.bookingID = bookingID
	return nil
}

// Start consumes the armed booking via the backend and enters Running. The
// tick loop starts only after the backend confirms the session.
func (s *Simulator) Start(ctx context.Context, initialSoc float64) (domain.Session, error) {
	s.mu.Lock()
	if s.state != StateArmed {
		s.mu.Unlock()
		return domain.Session{}, ErrNotArmed
	}
	bookingID := s.bookingID
	s.mu.Unlock()

	session, err := s.backend.StartSession(ctx, api.StartSessionRequest{
		BookingID:    bookingID,
		VehiclePlate: s.cfg.VehiclePlate,
		InitialSoc:   initialSoc,
	})
	if err != nil {
		return domain.Session{}, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.state = StateRunning
	s.session = session
	s.virtualSoc = session.InitialSoc
	s.virtualEnergy = 0
	s.lastTick = s.now()
	s.publishFailed = false
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.run(loopCtx, done)

	s.logger.Info("simulator running",
		zap.Int64("session_id", session.ID),
		zap.Float64("initial_soc", session.InitialSoc),
	)
	return session, nil
}

// run is the tick loop. Ticks that fall behind are dropped by the ticker,
// never queued; publishing is rate-bounded and best-effort.
func (s *Simulator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	limiter := rate.NewLimiter(rate.Every(s.cfg.PublishInterval), 1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			estimate, ok := s.advance()
			if !ok {
				return
			}
			if limiter.Allow() || s.retryPending() {
				s.publish(ctx, estimate)
			}
		}
	}
}

// advance moves the model one tick. Bounded: SOC never exceeds 100 and
// energy never exceeds rated power times elapsed time.
func (s *Simulator) advance() (estimates.LiveEstimate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return estimates.LiveEstimate{}, false
	}

	now := s.now()
	dt := now.Sub(s.lastTick)
	if dt < 0 {
		dt = 0
	}
	s.lastTick = now

	capacity := s.cfg.BatteryCapacityKWh
	gainKWh := s.cfg.RatedPowerKW * dt.Hours()
	headroom := (100 - s.virtualSoc) / 100 * capacity
	if gainKWh > headroom {
		gainKWh = headroom
	}

	s.virtualEnergy += gainKWh
	s.virtualSoc += gainKWh / capacity * 100
	if s.virtualSoc > 100 {
		s.virtualSoc = 100
	}

	return estimates.LiveEstimate{
		SessionID:        s.session.ID,
		VirtualSoc:       s.virtualSoc,
		VirtualEnergyKWh: s.virtualEnergy,
		Timestamp:        now,
	}, true
}

func (s *Simulator) retryPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishFailed
}

// publish writes the latest estimate, overwriting any previous value. A
// failed write degrades to display-only and is retried on the next tick.
func (s *Simulator) publish(ctx context.Context, estimate estimates.LiveEstimate) {
	err := s.channel.Put(ctx, estimate)

	s.mu.Lock()
	s.publishFailed = err != nil
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("estimate publish failed, running display-only",
			zap.Int64("session_id", estimate.SessionID),
			zap.Error(err),
		)
	}
}

// Stop leaves Running synchronously: when it returns, no further tick can
// fire, and the session's channel entry is gone.
func (s *Simulator) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateRunning:
		// proceed
	case StateArmed:
		s.state = StateStopped
		s.mu.Unlock()
		return nil
	default:
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.state = StateStopped
	cancel := s.cancel
	done := s.done
	sessionID := s.session.ID
	s.mu.Unlock()

	cancel()
	<-done

	if err := s.channel.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("failed to delete live estimate",
			zap.Int64("session_id", sessionID),
			zap.Error(err),
		)
	}
	s.logger.Info("simulator stopped", zap.Int64("session_id", sessionID))
	return nil
}

// State returns the current lifecycle state.
func (s *Simulator) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Session returns the session the simulator is bound to.
func (s *Simulator) Session() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Snapshot returns the current local estimate for display.
func (s *Simulator) Snapshot() estimates.LiveEstimate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return estimates.LiveEstimate{
		SessionID:        s.session.ID,
		VirtualSoc:       s.virtualSoc,
		VirtualEnergyKWh: s.virtualEnergy,
		Timestamp:        s.lastTick,
	}
}
