// Package estimates is the shared ephemeral channel between the driver's
// optimistic simulator and the staff-side stop path. Writes are
// last-value-wins per session; readers must apply the freshness window
// before trusting a value.
package estimates

import (
	"context"
	"time"
)

// FreshnessWindow is the maximum age at which a LiveEstimate may still be
// used as a stop-time hint. Older entries are discarded, never extrapolated.
const FreshnessWindow = 30 * time.Second

// LiveEstimate is the driver client's most recent optimistic reading of
// SOC/energy for an active session.
type LiveEstimate struct {
	SessionID        int64     `json:"session_id"`
	VirtualSoc       float64   `json:"virtual_soc"`
	VirtualEnergyKWh float64   `json:"virtual_energy_kwh"`
	Timestamp        time.Time `json:"timestamp"`
}

// Fresh reports whether the estimate is younger than the freshness window at
// the given instant. The boundary is strict: an estimate aged exactly the
// window is stale.
func (e LiveEstimate) Fresh(now time.Time) bool {
	return now.Sub(e.Timestamp) < FreshnessWindow
}

// Channel is the last-value-wins store keyed by session id. Entries are
// scoped to the lifetime of the active session; owners delete their key on
// stop. Get returns (nil, nil) when no entry exists.
type Channel interface {
	Put(ctx context.Context, estimate LiveEstimate) error
	Get(ctx context.Context, sessionID int64) (*LiveEstimate, error)
	Delete(ctx context.Context, sessionID int64) error
}
