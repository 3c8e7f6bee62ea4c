package httpserver

import "net/http"

// Routes groups handlers.
type Routes struct {
	CreateBooking   http.HandlerFunc
	ConfirmBooking  http.HandlerFunc
	IssueCapability http.HandlerFunc
	CancelBooking   http.HandlerFunc
	StartSession    http.HandlerFunc
	StationSessions http.HandlerFunc
	StopSession     http.HandlerFunc
	SettleSession   http.HandlerFunc
	PayInvoice      http.HandlerFunc
	Health          http.HandlerFunc
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	if routes.CreateBooking != nil {
		mux.HandleFunc("POST /bookings", routes.CreateBooking)
	}
	if routes.ConfirmBooking != nil {
		mux.HandleFunc("POST /bookings/{id}/confirm", routes.ConfirmBooking)
	}
	if routes.IssueCapability != nil {
		mux.HandleFunc("POST /bookings/{id}/qr", routes.IssueCapability)
	}
	if routes.CancelBooking != nil {
		mux.HandleFunc("POST /bookings/{id}/cancel", routes.CancelBooking)
	}
	if routes.StartSession != nil {
		mux.HandleFunc("POST /sessions/start", routes.StartSession)
	}
	if routes.StationSessions != nil {
		mux.HandleFunc("GET /stations/{id}/sessions", routes.StationSessions)
	}
	if routes.StopSession != nil {
		mux.HandleFunc("POST /sessions/{id}/stop", routes.StopSession)
	}
	if routes.SettleSession != nil {
		mux.HandleFunc("POST /sessions/{id}/settle", routes.SettleSession)
	}
	if routes.PayInvoice != nil {
		mux.HandleFunc("POST /invoices/{id}/pay", routes.PayInvoice)
	}
	if routes.Health != nil {
		mux.HandleFunc("GET /health", routes.Health)
	}
	return mux
}
