// Package influxdb writes water-usage telemetry to InfluxDB v2.
//
// Every usage session a device hub reports is stored in SQLite first; when
// InfluxDB is enabled the same session is also written as a point so usage
// can be charted over time. Points are batched by the client library and
// flushed on an interval or on Close.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	client.WritePointWithTime("water_usage", tags, fields, start)
package influxdb
