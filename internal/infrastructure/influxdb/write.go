package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementAuthEvent = "auth_event"
	measurementHTTP      = "http_request"
)

// AuthEvent is one authentication outcome.
//
// Outcome is "success" or an auth error kind such as "expired" or
// "invalid_credentials". Subject is the account ID when known; it is stored
// as a field, not a tag, to keep series cardinality bounded.
type AuthEvent struct {
	Action  string // login, resolve, authorize, register
	Outcome string
	Subject string
	Role    string
	Time    time.Time
}

// NewAuthEventPoint builds the line-protocol point for an AuthEvent.
func NewAuthEventPoint(e AuthEvent) *write.Point {
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	tags := map[string]string{
		"action":  e.Action,
		"outcome": e.Outcome,
	}
	if e.Role != "" {
		tags["role"] = e.Role
	}

	fields := map[string]interface{}{
		"count": 1,
	}
	if e.Subject != "" {
		fields["subject"] = e.Subject
	}

	return write.NewPoint(measurementAuthEvent, tags, fields, ts)
}

// WriteAuthEvent records an authentication outcome. Non-blocking.
func (c *Client) WriteAuthEvent(e AuthEvent) {
	c.write(NewAuthEventPoint(e))
}

// WriteHTTPRequest records one API request's route, status and latency.
func (c *Client) WriteHTTPRequest(route, method string, status int, duration time.Duration) {
	c.write(write.NewPoint(
		measurementHTTP,
		map[string]string{
			"route":  route,
			"method": method,
		},
		map[string]interface{}{
			"status":      status,
			"duration_ms": float64(duration.Microseconds()) / 1000,
		},
		time.Now(),
	))
}

// write queues p on the batching write API. Dropped while disconnected.
func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}
