// Package events connects stored usage sessions and device key rotations to
// the outside world: MQTT topics, InfluxDB points and the audit log.
//
// Bus and Telemetry implement usage.Sink. Bus and AuditTrail implement
// auth.RotationNotifier; Rotations combines several notifiers into one.
// All of them are best-effort and log rather than fail the request.
package events
