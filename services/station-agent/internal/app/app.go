package app

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chargesync/client/api"
	"chargesync/client/poller"
	"chargesync/client/reconcile"
	"chargesync/domain"
	"chargesync/estimates"
	libredis "chargesync/libs/redis"
	"chargesync/services/station-agent/internal/config"
)

// App wires the staff role: a per-station poller plus the force-stop path
// through the reconciler. Commands arrive on stdin:
//
//	refresh          re-query the station (wakes the poller if needed)
//	stop <sessionID> force-stop and settle a session
type App struct {
	cfg         *config.Config
	logger      *zap.Logger
	redisClient *goredis.Client
	poller      *poller.Poller
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
		logger.Warn("no redis addr configured, driver estimates will not be visible")
		channel = estimates.NewMemoryChannel(0)
	}

	backend := api.NewClient(cfg.Backend.URL, api.NewDefaultHTTPClient(cfg.Backend.Timeout))

	stationPoller := poller.New(cfg.Station.ID, backend, poller.Config{
		Interval: cfg.Polling.Interval,
		Timeout:  cfg.Polling.Timeout,
	}, logger)

	app := &App{
		cfg:         cfg,
		logger:      logger,
		redisClient: redisClient,
		poller:      stationPoller,
		reconciler:  reconcile.New(backend, channel, logger),
	}
	stationPoller.OnChange(app.renderSnapshot)
	return app, nil
}

// Run kicks the poller once and then serves stdin commands until ctx ends.
func (a *App) Run(ctx context.Context) error {
	if err := a.poller.Kick(ctx); err != nil {
		a.logger.Warn("initial station refresh failed", zap.Error(err))
	}

	commands := make(chan string)
	go func() {
		defer close(commands)
		reader := bufio.NewScanner(os.Stdin)
		for reader.Scan() {
			commands <- strings.TrimSpace(reader.Text())
		}
	}()

	for {
		select {
		case <-ctx.Done():
			a.poller.Stop()
			return ctx.Err()
		case command, ok := <-commands:
			if !ok {
				<-ctx.Done()
				a.poller.Stop()
				return ctx.Err()
			}
			a.handle(ctx, command)
		}
	}
}

func (a *App) handle(ctx context.Context, command string) {
	switch {
	case command == "refresh":
		if err := a.poller.Kick(ctx); err != nil {
			a.logger.Warn("station refresh failed", zap.Error(err))
		}
	case strings.HasPrefix(command, "stop "):
		raw := strings.TrimSpace(strings.TrimPrefix(command, "stop "))
		sessionID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || sessionID <= 0 {
			a.logger.Warn("invalid session id", zap.String("input", raw))
			return
		}
		a.forceStop(ctx, sessionID)
	case command == "":
		// ignore blank lines
	default:
		a.logger.Warn("unknown command", zap.String("input", command))
	}
}

// forceStop is the staff override: stop and settle regardless of what the
// driver device is doing. A failure here is surfaced for an explicit retry,
// never retried silently.
func (a *App) forceStop(ctx context.Context, sessionID int64) {
	result, err := a.reconciler.Stop(ctx, sessionID)
	if err != nil {
		a.logger.Error("force stop failed, retry manually",
			zap.Int64("session_id", sessionID),
			zap.Error(err),
		)
		return
	}
	a.logger.Info("session force-stopped",
		zap.Int64("session_id", sessionID),
		zap.Float64("final_soc", finalSoc(result.Session)),
		zap.Float64("amount", result.Invoice.Amount),
		zap.Bool("used_driver_estimate", result.UsedEstimate),
	)
	if err := a.poller.Kick(ctx); err != nil {
		a.logger.Warn("station refresh failed", zap.Error(err))
	}
}

func (a *App) renderSnapshot(sessions []domain.Session) {
	active := 0
	for _, s := range sessions {
		if s.Active() {
			active++
		}
	}
	a.logger.Info("station snapshot updated",
		zap.String("station_id", a.cfg.Station.ID),
		zap.Int("sessions", len(sessions)),
		zap.Int("active", active),
	)
}

func finalSoc(session domain.Session) float64 {
	if session.FinalSoc == nil {
		return 0
	}
	return *session.FinalSoc
}

// Close releases resources.
func (a *App) Close() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
