package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementLink    = "edge_link"
	measurementSession = "edge_session"
)

// LinkSample is one monitor tick's view of the node.
type LinkSample struct {
	Interface string
	State     string

	// Address and Gateway are empty while the link has no IP information.
	Address string
	Gateway string

	SessionConnected bool

	// Cumulative event counters.
	Received     uint64
	DroppedEmpty uint64
	Disconnects  uint64

	// Time defaults to now.
	Time time.Time
}

// WriteLinkSample records a monitor tick as two points: link addressing
// and session counters.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteLinkSample(influxdb.LinkSample{
//	    Interface: "wlan0",
//	    State:     "associated",
//	    Address:   "192.168.4.20/24",
//	})
func (c *Client) WriteLinkSample(s LinkSample) {
	if !c.IsConnected() {
		return
	}

	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	link := write.NewPoint(
		measurementLink,
		map[string]string{
			"interface": s.Interface,
		},
		map[string]interface{}{
			"state":      s.State,
			"associated": s.State == "associated",
		},
		ts,
	)
	if s.Address != "" {
		link.AddField("address", s.Address)
	}
	if s.Gateway != "" {
		link.AddField("gateway", s.Gateway)
	}
	c.writeAPI.WritePoint(link)

	c.writeAPI.WritePoint(write.NewPoint(
		measurementSession,
		map[string]string{
			"interface": s.Interface,
		},
		map[string]interface{}{
			"connected":     s.SessionConnected,
			"received":      s.Received,
			"dropped_empty": s.DroppedEmpty,
			"disconnects":   s.Disconnects,
		},
		ts,
	))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
