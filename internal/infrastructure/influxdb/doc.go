// Package influxdb records authentication analytics in InfluxDB v2.
//
// Every login, token rejection and authorization denial is written as an
// auth_event point tagged by action and outcome, giving operators a
// time series of failed logins and expired-token churn without scanning
// logs. Writes are batched and non-blocking; a disabled or unreachable
// InfluxDB never affects request handling.
//
// Points never carry passwords or tokens. The subject (account ID) is a
// field, not a tag.
package influxdb
