// Package influxdb writes link telemetry from Gray Logic Edge to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. The monitor loop
// hands it one LinkSample per tick; samples are batched and written in the
// background.
//
// # Measurements
//
//   - edge_link: state, associated, address, gateway (tags: node, interface)
//   - edge_session: connected, received, dropped_empty, disconnects
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Node.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteLinkSample(sample)
//
// # Error Handling
//
// Write operations are non-blocking; batch errors reach the SetOnError
// callback wrapped in ErrWriteFailed. Connection and health check errors are
// returned directly.
package influxdb
