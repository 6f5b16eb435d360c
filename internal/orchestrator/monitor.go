package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-edge/internal/link"
	"github.com/nerrad567/gray-logic-edge/internal/metrics"
)

// maxReassociateInterval caps the delay between reassociation attempts.
const maxReassociateInterval = 30 * time.Second

// monitor reports link and session status immediately and then every
// monitor.interval until ctx is done.
func (o *Orchestrator) monitor(ctx context.Context) error {
	interval := o.rt.Config.Monitor.Interval
	o.log.Info("monitor started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		o.report(ctx)
		o.ticks.Add(1)

		select {
		case <-ctx.Done():
			o.log.Info("monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// report runs one monitor iteration. Nothing in here is fatal.
func (o *Orchestrator) report(ctx context.Context) {
	if _, err := o.rt.Link.IsAssociated(ctx); err != nil {
		o.log.Debug("link status query failed", "error", err)
	}
	if o.linkLost() {
		select {
		case o.lost <- struct{}{}:
		default:
		}
	}

	state := o.rt.Link.State()
	sample := influxdb.LinkSample{
		State:            state.String(),
		SessionConnected: o.sessionConnected(),
		Time:             time.Now(),
	}

	info, err := o.rt.Link.CurrentIPInfo(ctx)
	if err != nil {
		o.log.Warn("ip info unavailable", "state", state.String(), "error", err)
	} else {
		o.log.Info("ip info", "info", info.String())
		sample.Interface = info.Interface
		sample.Address = info.Address.String()
		if info.Gateway.IsValid() {
			sample.Gateway = info.Gateway.String()
		}
	}
	if sample.Interface == "" {
		sample.Interface = o.rt.Config.WiFi.Interface
	}

	stats := o.rt.Handler.Stats()
	sample.Received = stats.Received.Load()
	sample.DroppedEmpty = stats.DroppedEmpty.Load()
	sample.Disconnects = stats.Disconnects.Load()

	if !sample.SessionConnected {
		o.log.Warn("session not connected", "broker", o.rt.Config.MQTT.Broker)
	}

	if o.rt.Telemetry != nil {
		o.rt.Telemetry.WriteLinkSample(sample)
	}
}

// superviseLink waits for the monitor to observe link loss and then
// reassociates. It returns nil when ctx is done.
func (o *Orchestrator) superviseLink(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.lost:
		}
		if !o.linkLost() {
			continue
		}

		o.setState(StateReassociating)
		outcome := o.reassociate(ctx)
		if o.rt.Metrics != nil {
			o.rt.Metrics.IncReassociation(outcome)
		}
		if outcome == metrics.OutcomeCancelled {
			return nil
		}
		o.setState(StateMonitoring)
	}
}

// reassociate requests association again with exponential backoff until
// the link comes back or ctx is done.
//
// Returns:
//   - string: the metrics outcome label
func (o *Orchestrator) reassociate(ctx context.Context) string {
	wifi := o.rt.Config.WiFi
	o.log.Warn("link lost, reassociating", "ssid", wifi.SSID)

	b := backoff.NewExponentialBackOff()
	if wifi.PollInterval > 0 {
		b.InitialInterval = wifi.PollInterval
	}
	b.MaxInterval = maxReassociateInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := o.rt.Link.Connect(ctx); err != nil {
			if errors.Is(err, link.ErrInvalidState) {
				return struct{}{}, backoff.Permanent(err)
			}
			o.log.Warn("reassociation request failed", "attempt", attempt, "error", err)
			return struct{}{}, err
		}
		if err := o.waitForLink(ctx, wifi.AssociateTimeout); err != nil {
			o.log.Warn("reassociation attempt failed", "attempt", attempt, "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(0))

	switch {
	case err == nil:
		o.log.Info("link reassociated", "attempts", attempt)
		o.reportIPInfo(ctx)
		return metrics.OutcomeAssociated
	case ctx.Err() != nil:
		return metrics.OutcomeCancelled
	default:
		o.log.Error("reassociation abandoned", "attempts", attempt, "error", err)
		return metrics.OutcomeFailed
	}
}
