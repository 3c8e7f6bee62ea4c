package app

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	libdb "chargesync/libs/db"
	"chargesync/services/charging-service/internal/config"
	httpserver "chargesync/services/charging-service/internal/http"
	"chargesync/services/charging-service/internal/http/handlers"
	"chargesync/services/charging-service/internal/repository"
	"chargesync/services/charging-service/internal/service"
)

// App wires charging-service dependencies.
type App struct {
	server *httpserver.Server
	db     *sql.DB
	logger *zap.Logger
}

// New constructs the application graph. Without a DSN the service runs on
// the in-memory store.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	var (
		sqlDB    *sql.DB
		bookings service.BookingStore
		sessions service.SessionStore
		invoices service.InvoiceStore
	)

	if cfg.Database.DSN != "" {
		pool, err := libdb.NewPostgres(cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		sqlDB = pool
		bookings = repository.NewBookingRepository(pool)
		sessions = repository.NewSessionRepository(pool)
		invoices = repository.NewInvoiceRepository(pool)
	} else {
		logger.Warn("no database dsn configured, using in-memory store")
		store := repository.NewMemoryStore()
		bookings = store
		sessions = store
		invoices = store
	}

	params := service.ChargingParams{
		PricePerKWh:        cfg.Tariff.PricePerKWh,
		Currency:           cfg.Tariff.Currency,
		RatedPowerKW:       cfg.Charging.RatedPowerKW,
		BatteryCapacityKWh: cfg.Charging.BatteryCapacityKWh,
	}

	bookingService := service.NewBookingService(bookings, logger)
	sessionService := service.NewSessionService(bookingService, sessions, params, logger)
	settlementService := service.NewSettlementService(sessions, invoices, logger)

	bookingHandlers := handlers.NewBookingHandlers(bookingService)
	sessionHandlers := handlers.NewSessionHandlers(sessionService, settlementService)

	routes := httpserver.Routes{
		CreateBooking:   bookingHandlers.Create,
		ConfirmBooking:  bookingHandlers.Confirm,
		IssueCapability: bookingHandlers.IssueCapability,
		CancelBooking:   bookingHandlers.Cancel,
		StartSession:    sessionHandlers.Start,
		StationSessions: sessionHandlers.StationSessions,
		StopSession:     sessionHandlers.Stop,
		SettleSession:   sessionHandlers.Settle,
		PayInvoice:      sessionHandlers.Pay,
		Health:          handlers.NewHealthHandler(),
	}

	router := httpserver.NewRouter(routes)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server: server,
		db:     sqlDB,
		logger: logger,
	}, nil
}

// Run starts HTTP server.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
