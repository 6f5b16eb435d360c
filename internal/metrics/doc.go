// Package metrics exposes Gray Logic Edge state to Prometheus.
//
// Counters and gauges are read from their owners at scrape time
// (events.Stats, the link manager, the session client), so nothing on the
// event path writes to Prometheus directly. Only the link wait duration and
// reassociation outcomes are recorded as they happen.
//
// Each Registry is private. The listener is optional and off unless
// metrics.listen is set. Besides /metrics it serves /healthz, which answers
// 200 while the link is associated and the session is connected and 503
// otherwise.
package metrics
