// Package scan runs the driver's QR scan loop. Malformed frames are routine
// at this boundary (reflections, partial reads, foreign codes) and never
// abort the loop.
package scan

import (
	"context"

	"go.uber.org/zap"

	"chargesync/qrtoken"
)

// TokenSource abstracts the camera/QR-decoding hardware: Next blocks until
// a candidate token string is available or ctx ends.
type TokenSource interface {
	Next(ctx context.Context) (string, error)
}

// Scanner consumes frames until one decodes to a valid capability.
type Scanner struct {
	source TokenSource
	logger *zap.Logger
}

// NewScanner builds a scanner.
func NewScanner(source TokenSource, logger *zap.Logger) *Scanner {
	return &Scanner{source: source, logger: logger}
}

// Scan returns the booking id from the first well-formed token. Malformed
// tokens are logged as a transient hint and skipped; only source failures
// and cancellation end the loop.
func (s *Scanner) Scan(ctx context.Context) (int64, error) {
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		token, err := s.source.Next(ctx)
		if err != nil {
			return 0, err
		}

		payload, err := qrtoken.Decode(token)
		if err != nil {
			s.logger.Debug("ignoring invalid code", zap.Error(err))
			continue
		}
		return payload.BookingID, nil
	}
}
