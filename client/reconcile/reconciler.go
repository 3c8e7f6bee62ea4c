// Package reconcile merges the driver's last published estimate with backend
// truth at stop time. The backend stop call is the single source of truth;
// the channel value is only ever a time-boxed hint.
package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chargesync/domain"
	"chargesync/estimates"
)

// Backend covers the stop/settlement calls.
type Backend interface {
	StopSession(ctx context.Context, sessionID int64, finalSoc *float64) (domain.Session, error)
	Settle(ctx context.Context, sessionID int64) (domain.Invoice, error)
}

// Reconciler resolves the final session numbers on stop.
type Reconciler struct {
	backend Backend
	channel estimates.Channel
	logger  *zap.Logger
	now     func() time.Time
}

// New builds a reconciler.
func New(backend Backend, channel estimates.Channel, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		backend: backend,
		channel: channel,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// StopResult is the settled outcome of a stop request.
type StopResult struct {
	Session      domain.Session
	Invoice      domain.Invoice
	UsedEstimate bool
}

// Stop finalizes a session. The driver's published SOC rides along as the
// finalSoc hint only while fresh; whatever the backend returns overwrites
// every local guess. The call is not retried here: stop affects billing, so
// retries stay an explicit caller decision (the backend makes them safe by
// being idempotent once COMPLETED).
func (r *Reconciler) Stop(ctx context.Context, sessionID int64) (StopResult, error) {
	finalSoc := r.stopHint(ctx, sessionID)

	session, err := r.backend.StopSession(ctx, sessionID, finalSoc)
	if err != nil {
		// The session stays IN_PROGRESS from our perspective.
		return StopResult{}, err
	}

	if err := r.channel.Delete(ctx, sessionID); err != nil {
		r.logger.Warn("failed to delete live estimate after stop",
			zap.Int64("session_id", sessionID),
			zap.Error(err),
		)
	}

	invoice, err := r.backend.Settle(ctx, session.ID)
	if err != nil {
		// Stop already committed; let the caller retry settlement explicitly.
		return StopResult{Session: session, UsedEstimate: finalSoc != nil}, err
	}

	r.logger.Info("session reconciled and settled",
		zap.Int64("session_id", session.ID),
		zap.Bool("used_estimate", finalSoc != nil),
		zap.Float64("cost", session.Cost),
	)
	return StopResult{Session: session, Invoice: invoice, UsedEstimate: finalSoc != nil}, nil
}

// stopHint returns the driver's published SOC if a fresh estimate exists.
// Staleness is not an error: the backend simply falls back to its own
// reading.
func (r *Reconciler) stopHint(ctx context.Context, sessionID int64) *float64 {
	estimate, err := r.channel.Get(ctx, sessionID)
	if err != nil {
		r.logger.Warn("estimate lookup failed, stopping without override",
			zap.Int64("session_id", sessionID),
			zap.Error(err),
		)
		return nil
	}
	if estimate == nil {
		return nil
	}
	if !estimate.Fresh(r.now()) {
		r.logger.Info("live estimate stale, stopping without override",
			zap.Int64("session_id", sessionID),
			zap.Time("estimate_ts", estimate.Timestamp),
		)
		return nil
	}
	soc := estimate.VirtualSoc
	return &soc
}
