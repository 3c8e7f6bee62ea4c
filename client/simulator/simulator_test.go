package simulator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"chargesync/client/api"
	"chargesync/domain"
	"chargesync/estimates"
)

type fakeStarter struct {
	mu      sync.Mutex
	err     error
	lastReq api.StartSessionRequest
	session domain.Session
}

func (f *fakeStarter) StartSession(_ context.Context, req api.StartSessionRequest) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Session{}, f.err
	}
	f.lastReq = req
	session := f.session
	if session.ID == 0 {
		session.ID = 101
	}
	session.BookingID = req.BookingID
	session.InitialSoc = req.InitialSoc
	session.Status = domain.SessionInProgress
	session.StartTime = time.Now().UTC()
	return session, nil
}

// flakyChannel fails Put while broken is set.
type flakyChannel struct {
	mu     sync.Mutex
	broken bool
	puts   int
	inner  *estimates.MemoryChannel
}

func newFlakyChannel() *flakyChannel {
	return &flakyChannel{inner: estimates.NewMemoryChannel(time.Minute)}
}

func (c *flakyChannel) setBroken(broken bool) {
	c.mu.Lock()
	c.broken = broken
	c.mu.Unlock()
}

func (c *flakyChannel) Put(ctx context.Context, estimate estimates.LiveEstimate) error {
	c.mu.Lock()
	broken := c.broken
	c.puts++
	c.mu.Unlock()
	if broken {
		return errors.New("storage unavailable")
	}
	return c.inner.Put(ctx, estimate)
}

func (c *flakyChannel) Get(ctx context.Context, sessionID int64) (*estimates.LiveEstimate, error) {
	return c.inner.Get(ctx, sessionID)
}

func (c *flakyChannel) Delete(ctx context.Context, sessionID int64) error {
	return c.inner.Delete(ctx, sessionID)
}

func fastConfig() Config {
	return Config{
		TickInterval:       5 * time.Millisecond,
		PublishInterval:    5 * time.Millisecond,
		RatedPowerKW:       22,
		BatteryCapacityKWh: 60,
		VehiclePlate:       "EV-123",
	}
}

func startRunning(t *testing.T, channel estimates.Channel) *Simulator {
	t.Helper()
	sim := New(&fakeStarter{}, channel, fastConfig(), zap.NewNop())
	if err := sim.Arm(42); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if _, err := sim.Start(context.Background(), 20); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = sim.Stop(context.Background()) })
	return sim
}

func TestSimulatorPublishesRisingEstimates(t *testing.T) {
	channel := estimates.NewMemoryChannel(time.Minute)
	sim := startRunning(t, channel)

	ctx := context.Background()
	var first *estimates.LiveEstimate
	waitFor(t, time.Second, func() bool {
		entry, err := channel.Get(ctx, sim.Session().ID)
		if err != nil || entry == nil {
			return false
		}
		first = entry
		return true
	})

	if first.VirtualSoc < 20 {
		t.Fatalf("estimate below initial soc: %v", first.VirtualSoc)
	}

	waitFor(t, time.Second, func() bool {
		entry, err := channel.Get(ctx, sim.Session().ID)
		if err != nil || entry == nil {
			return false
		}
		return entry.VirtualSoc > first.VirtualSoc && entry.Timestamp.After(first.Timestamp)
	})
}

func TestSimulatorModelStaysBounded(t *testing.T) {
	channel := estimates.NewMemoryChannel(time.Minute)
	cfg := fastConfig()
	// A tiny pack saturates within a few ticks.
	cfg.BatteryCapacityKWh = 0.0001
	sim := New(&fakeStarter{}, channel, cfg, zap.NewNop())
	if err := sim.Arm(1); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if _, err := sim.Start(context.Background(), 95); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = sim.Stop(context.Background()) })

	waitFor(t, time.Second, func() bool {
		return sim.Snapshot().VirtualSoc >= 100
	})

	time.Sleep(30 * time.Millisecond)
	snapshot := sim.Snapshot()
	if snapshot.VirtualSoc > 100 {
		t.Fatalf("soc exceeded 100: %v", snapshot.VirtualSoc)
	}
	maxEnergy := (100 - 95.0) / 100 * cfg.BatteryCapacityKWh
	if snapshot.VirtualEnergyKWh > maxEnergy+1e-9 {
		t.Fatalf("energy exceeded headroom: %v > %v", snapshot.VirtualEnergyKWh, maxEnergy)
	}
}

func TestStopIsSynchronousAndDeletesEstimate(t *testing.T) {
	channel := estimates.NewMemoryChannel(time.Minute)
	sim := startRunning(t, channel)
	ctx := context.Background()

	waitFor(t, time.Second, func() bool {
		entry, err := channel.Get(ctx, sim.Session().ID)
		return err == nil && entry != nil
	})

	if err := sim.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if sim.State() != StateStopped {
		t.Fatalf("expected STOPPED, got %s", sim.State())
	}

	entry, err := channel.Get(ctx, sim.Session().ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected estimate deleted on stop, got %+v", entry)
	}

	// No tick may fire after Stopped: the snapshot must not move anymore.
	before := sim.Snapshot()
	time.Sleep(40 * time.Millisecond)
	after := sim.Snapshot()
	if before.VirtualSoc != after.VirtualSoc || before.VirtualEnergyKWh != after.VirtualEnergyKWh {
		t.Fatalf("model advanced after stop: %+v -> %+v", before, after)
	}
}

func TestPublishFailureDegradesToDisplayOnly(t *testing.T) {
	channel := newFlakyChannel()
	channel.setBroken(true)
	sim := startRunning(t, channel)

	// The loop keeps advancing the local model through publish failures.
	waitFor(t, time.Second, func() bool {
		return sim.Snapshot().VirtualSoc > 20
	})

	// Once storage recovers, the next ticks publish again.
	channel.setBroken(false)
	waitFor(t, time.Second, func() bool {
		entry, err := channel.Get(context.Background(), sim.Session().ID)
		return err == nil && entry != nil
	})
}

func TestLifecycleGuards(t *testing.T) {
	sim := New(&fakeStarter{}, estimates.NewMemoryChannel(time.Minute), fastConfig(), zap.NewNop())

	if _, err := sim.Start(context.Background(), 20); !errors.Is(err, ErrNotArmed) {
		t.Fatalf("start without arm: expected ErrNotArmed, got %v", err)
	}
	if err := sim.Stop(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("stop while idle: expected ErrNotRunning, got %v", err)
	}
	if err := sim.Arm(1); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if err := sim.Arm(2); !errors.Is(err, ErrNotIdle) {
		t.Fatalf("double arm: expected ErrNotIdle, got %v", err)
	}
}

func TestStartFailureLeavesSimulatorArmed(t *testing.T) {
	backend := &fakeStarter{err: errors.New("booking not confirmed")}
	sim := New(backend, estimates.NewMemoryChannel(time.Minute), fastConfig(), zap.NewNop())

	if err := sim.Arm(5); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if _, err := sim.Start(context.Background(), 20); err == nil {
		t.Fatalf("expected start failure")
	}
	if sim.State() != StateArmed {
		t.Fatalf("expected simulator to stay ARMED, got %s", sim.State())
	}
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
