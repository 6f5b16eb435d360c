package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-edge/internal/events"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-edge/internal/link"
	"github.com/nerrad567/gray-logic-edge/internal/metrics"
	"github.com/nerrad567/gray-logic-edge/internal/session"
)

// SampleWriter receives one link sample per monitor tick.
// *influxdb.Client satisfies it.
type SampleWriter interface {
	WriteLinkSample(s influxdb.LinkSample)
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Runtime is everything the orchestrator needs, built once in main and
// passed by reference. Nothing here is a package-level global.
type Runtime struct {
	Config *config.Config
	Logger *logging.Logger

	// Link owns the wireless interface.
	Link *link.Manager

	// Transport carries the broker session. Exactly one session is
	// created on it.
	Transport session.Transport

	// Handler consumes inbound events on the bus goroutine.
	Handler *events.Handler

	// Metrics is optional.
	Metrics *metrics.Registry

	// Telemetry is optional.
	Telemetry SampleWriter

	// SupervisorRestarts reports restarts of a supervised link daemon.
	// Optional; exported through Metrics.
	SupervisorRestarts func() int

	// Sleep paces the link wait. Defaults to a timer.
	Sleep SleepFunc
}

func (rt *Runtime) validate() error {
	switch {
	case rt == nil:
		return fmt.Errorf("%w: nil runtime", ErrRuntime)
	case rt.Config == nil:
		return fmt.Errorf("%w: config", ErrRuntime)
	case rt.Link == nil:
		return fmt.Errorf("%w: link manager", ErrRuntime)
	case rt.Transport == nil:
		return fmt.Errorf("%w: session transport", ErrRuntime)
	case rt.Handler == nil:
		return fmt.Errorf("%w: event handler", ErrRuntime)
	}
	return nil
}

// sleepTimer is the default SleepFunc.
func sleepTimer(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
