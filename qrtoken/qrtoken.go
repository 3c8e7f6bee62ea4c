// Package qrtoken encodes and decodes the QR capability payload that binds a
// confirmed booking to a scan event. The token is an opaque locator, not a
// credential: single use is enforced by booking state, not by the token.
package qrtoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrMalformed covers every structural decode failure: bad base64, bad JSON,
// missing or non-positive booking id. Scan loops treat it as "ignore and keep
// scanning".
var ErrMalformed = errors.New("qrtoken: malformed token")

// Payload is the decoded token content.
type Payload struct {
	BookingID int64  `json:"bookingId"`
	IssuedAt  int64  `json:"issuedAt"`
	Nonce     string `json:"nonce"`
}

// Encode serializes {bookingId, issuedAt, nonce} as base64 JSON. Issuing is
// idempotent with respect to the booking; each call mints a fresh nonce.
func Encode(bookingID int64) (string, error) {
	if bookingID <= 0 {
		return "", ErrMalformed
	}
	payload := Payload{
		BookingID: bookingID,
		IssuedAt:  time.Now().UTC().Unix(),
		Nonce:     uuid.NewString(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses a scanned token. It never panics; any structural problem
// returns ErrMalformed so the scan loop can move on to the next frame.
func Decode(token string) (Payload, error) {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Payload{}, ErrMalformed
	}

	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Payload{}, ErrMalformed
	}
	if payload.BookingID <= 0 {
		return Payload{}, ErrMalformed
	}
	return payload, nil
}
