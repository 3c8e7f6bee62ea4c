package app

import (
	"bufio"
	"context"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chargesync/client/api"
	"chargesync/client/reconcile"
	"chargesync/client/scan"
	"chargesync/client/simulator"
	"chargesync/estimates"
	libredis "chargesync/libs/redis"
	"chargesync/services/driver-agent/internal/config"
)

// App wires the driver role: scan a capability, start the session, simulate
// locally until shutdown, then stop and settle through the reconciler.
type App struct {
	cfg         *config.Config
	logger      *zap.Logger
	redisClient *goredis.Client
	channel     estimates.Channel
	backend     *api.Client
	sim         *simulator.Simulator
	reconciler  *reconcile.Reconciler
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	var (
		redisClient *goredis.Client
		channel     estimates.Channel
	)
	if cfg.Redis.Addr != "" {
		client, err := libredis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		redisClient = client
		channel = estimates.NewRedisChannel(client, 0)
	} else {
		logger.Warn("no redis addr configured, using in-process estimate channel")
		channel = estimates.NewMemoryChannel(0)
	}

	backend := api.NewClient(cfg.Backend.URL, api.NewDefaultHTTPClient(cfg.Backend.Timeout))

	sim := simulator.New(backend, channel, simulator.Config{
		TickInterval:       cfg.Simulation.TickInterval,
		PublishInterval:    cfg.Simulation.PublishInterval,
		RatedPowerKW:       cfg.Simulation.RatedPowerKW,
		BatteryCapacityKWh: cfg.Simulation.BatteryCapacityKWh,
		VehiclePlate:       cfg.Vehicle.Plate,
	}, logger)

	return &App{
		cfg:         cfg,
		logger:      logger,
		redisClient: redisClient,
		channel:     channel,
		backend:     backend,
		sim:         sim,
		reconciler:  reconcile.New(backend, channel, logger),
	}, nil
}

// Run scans a token from stdin, starts the session and simulates until ctx
// ends, then stops and settles.
func (a *App) Run(ctx context.Context) error {
	scanner := scan.NewScanner(newStdinSource(), a.logger)

	a.logger.Info("waiting for QR token on stdin")
	bookingID, err := scanner.Scan(ctx)
	if err != nil {
		return err
	}

	if err := a.sim.Arm(bookingID); err != nil {
		return err
	}
	session, err := a.sim.Start(ctx, a.cfg.Vehicle.InitialSoc)
	if err != nil {
		return err
	}
	a.logger.Info("charging session live",
		zap.Int64("session_id", session.ID),
		zap.Int("point_number", session.PointNumber),
	)

	<-ctx.Done()

	// Shutdown path: reconcile while the published estimate is still fresh,
	// then halt the tick loop. The simulator's own cleanup is a no-op once
	// the reconciler has deleted the entry.
	stopCtx := context.Background()
	result, err := a.reconciler.Stop(stopCtx, session.ID)
	if stopErr := a.sim.Stop(stopCtx); stopErr != nil {
		a.logger.Warn("simulator stop failed", zap.Error(stopErr))
	}
	if err != nil {
		a.logger.Error("stop/settlement failed, retry manually", zap.Error(err))
		return err
	}
	a.logger.Info("session settled",
		zap.Int64("invoice_id", result.Invoice.ID),
		zap.Float64("amount", result.Invoice.Amount),
		zap.String("currency", result.Invoice.Currency),
	)
	return nil
}

// Close releases resources.
func (a *App) Close() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}

// stdinSource feeds scanned lines as candidate tokens, standing in for the
// camera layer.
type stdinSource struct {
	lines chan string
}

func newStdinSource() *stdinSource {
	s := &stdinSource{lines: make(chan string)}
	go func() {
		defer close(s.lines)
		reader := bufio.NewScanner(os.Stdin)
		for reader.Scan() {
			s.lines <- reader.Text()
		}
	}()
	return s
}

// Next blocks until a line is available or ctx ends.
func (s *stdinSource) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return "", context.Canceled
		}
		return line, nil
	}
}
