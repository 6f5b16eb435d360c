package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-edge/internal/events"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-edge/internal/link"
	"github.com/nerrad567/gray-logic-edge/internal/metrics"
	"github.com/nerrad567/gray-logic-edge/internal/session"
)

// linkStopTimeout bounds stopping the interface on shutdown.
const linkStopTimeout = 5 * time.Second

// The node takes every topic at least once.
const (
	SubscribeFilter      = "#"
	SubscribeQoS    byte = 1
)

// Orchestrator sequences link acquisition, session establishment and
// subscription, then runs the monitor loop.
//
// Thread Safety:
//   - State, Session and MonitorTicks may be called from any goroutine.
//   - Run must be called at most once.
type Orchestrator struct {
	rt    *Runtime
	log   *logging.Logger
	sleep SleepFunc
	bus   *events.Bus

	state atomic.Int32
	ticks atomic.Uint64

	mu     sync.RWMutex
	client *session.Client
	sub    session.Subscription

	// lost wakes the link supervisor. Buffered so the monitor never blocks.
	lost chan struct{}

	// stateHook observes transitions in tests.
	stateHook func(State)
}

// New creates an orchestrator for rt.
//
// Returns:
//   - *Orchestrator: ready to Run
//   - error: ErrRuntime when a required collaborator is missing, or a
//     metrics registration error
func New(rt *Runtime) (*Orchestrator, error) {
	if err := rt.validate(); err != nil {
		return nil, err
	}

	log := rt.Logger
	if log == nil {
		log = logging.Discard()
	}

	sleep := rt.Sleep
	if sleep == nil {
		sleep = sleepTimer
	}

	o := &Orchestrator{
		rt:    rt,
		log:   log.Component("orchestrator"),
		sleep: sleep,
		bus:   events.NewBus(rt.Config.Events.BufferSize, rt.Handler),
		lost:  make(chan struct{}, 1),
	}

	if rt.Metrics != nil {
		err := rt.Metrics.Bind(metrics.Sources{
			Events:             rt.Handler.Stats(),
			LinkState:          rt.Link.State,
			SessionConnected:   o.sessionConnected,
			BusPending:         o.bus.Pending,
			SupervisorRestarts: rt.SupervisorRestarts,
		})
		if err != nil {
			return nil, err
		}
	}

	return o, nil
}

// State returns the current orchestrator state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	prev := State(o.state.Swap(int32(s)))
	if prev != s {
		o.log.Debug("state change", "from", prev.String(), "to", s.String())
	}
	if o.stateHook != nil {
		o.stateHook(s)
	}
}

// Session returns the session client once established, else nil.
func (o *Orchestrator) Session() *session.Client {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.client
}

// Subscription returns the accepted subscription, or the zero value
// before Subscribing completes.
func (o *Orchestrator) Subscription() session.Subscription {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sub
}

// MonitorTicks returns the number of completed monitor iterations.
func (o *Orchestrator) MonitorTicks() uint64 {
	return o.ticks.Load()
}

func (o *Orchestrator) sessionConnected() bool {
	c := o.Session()
	return c != nil && c.IsConnected()
}

// Run brings the node up and monitors it until ctx is cancelled.
//
// The event bus consumer, the startup sequence with its monitor loop and
// the optional /metrics listener share one errgroup: the first failure
// cancels the rest.
//
// Returns:
//   - error: nil on shutdown through ctx, otherwise a *StageError naming
//     the stage that failed
func (o *Orchestrator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return o.bus.Run(gctx)
	})

	if addr := o.rt.Config.Metrics.Listen; addr != "" && o.rt.Metrics != nil {
		g.Go(func() error {
			o.log.Info("metrics listener started", "addr", addr)
			return o.rt.Metrics.Serve(gctx, addr)
		})
	}

	g.Go(func() error {
		return o.run(gctx)
	})

	err := g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// Shutdown during startup.
		err = nil
	}
	if err == nil {
		o.setState(StateStopped)
	}
	return err
}

// run is the startup sequence followed by monitoring.
func (o *Orchestrator) run(ctx context.Context) error {
	cfg := o.rt.Config
	o.setState(StateInit)
	o.log.Info("starting", "node", cfg.Node.ID, "driver", cfg.WiFi.Driver, "broker", cfg.MQTT.Broker)

	o.setState(StateLinkConfiguring)
	if err := o.bringUpLink(ctx); err != nil {
		return o.fail(StateLinkConfiguring, err)
	}
	defer o.stopLink()

	o.setState(StateLinkConnecting)
	if err := o.waitForLink(ctx, cfg.WiFi.AssociateTimeout); err != nil {
		return o.fail(StateLinkConnecting, err)
	}

	o.setState(StateLinkAssociated)
	o.reportIPInfo(ctx)

	o.setState(StateSessionEstablishing)
	client, err := session.Create(ctx, o.rt.Transport, session.Options{
		BrokerURI: cfg.MQTT.Broker,
		Username:  cfg.MQTT.Auth.Username,
		Password:  cfg.MQTT.Auth.Password,
		ClientID:  cfg.MQTT.ClientID,
	}, o.bus.Sink(ctx), o.log)
	if err != nil {
		return o.fail(StateSessionEstablishing, err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			o.log.Warn("session close failed", "error", err)
		}
	}()
	o.mu.Lock()
	o.client = client
	o.mu.Unlock()

	o.setState(StateSubscribing)
	sub, err := client.Subscribe(ctx, SubscribeFilter, SubscribeQoS)
	if err != nil {
		return o.fail(StateSubscribing, err)
	}
	o.mu.Lock()
	o.sub = sub
	o.mu.Unlock()
	o.log.Info("subscription requested", "filter", sub.Filter, "qos", sub.QoS, "id", sub.ID)

	o.setState(StateMonitoring)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.WiFi.Reassociate {
		g.Go(func() error {
			return o.superviseLink(gctx)
		})
	}
	g.Go(func() error {
		return o.monitor(gctx)
	})
	return g.Wait()
}

// bringUpLink runs configure, start and connect. Any failure is fatal.
func (o *Orchestrator) bringUpLink(ctx context.Context) error {
	wifi := o.rt.Config.WiFi
	if err := o.rt.Link.Configure(ctx, wifi.SSID, wifi.Password); err != nil {
		return err
	}
	if err := o.rt.Link.Start(ctx); err != nil {
		return err
	}
	return o.rt.Link.Connect(ctx)
}

func (o *Orchestrator) stopLink() {
	ctx, cancel := context.WithTimeout(context.Background(), linkStopTimeout)
	defer cancel()
	if err := o.rt.Link.Stop(ctx); err != nil {
		o.log.Warn("link stop failed", "error", err)
	}
}

// fail records a fatal startup error. Cancellation is passed through
// unwrapped so Run can tell shutdown from failure.
func (o *Orchestrator) fail(stage State, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	o.setState(StateFailed)
	o.log.Error("startup failed", "stage", stage.String(), "error", err)
	return &StageError{Stage: stage, Err: err}
}

// waitForLink polls the link until it reports associated.
//
// Each iteration logs the configuration snapshot, then queries the link
// once. A failed query counts as "not yet". Given a link that associates on
// query N, exactly N queries and N-1 sleeps happen.
//
// Parameters:
//   - ctx: cancels the wait
//   - timeout: overall bound; 0 waits until ctx is done
//
// Returns:
//   - error: nil once associated, ErrLinkTimeout, or ctx.Err()
func (o *Orchestrator) waitForLink(ctx context.Context, timeout time.Duration) error {
	poll := o.rt.Config.WiFi.PollInterval
	started := time.Now()

	wctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for attempt := 1; ; attempt++ {
		if snap, err := o.rt.Link.Configuration(wctx); err == nil {
			o.log.Info("waiting for link", "attempt", attempt, "config", snap.String())
		}

		ok, err := o.rt.Link.IsAssociated(wctx)
		if err != nil {
			o.log.Debug("link status query failed", "attempt", attempt, "error", err)
		}
		if ok {
			wait := time.Since(started)
			o.log.Info("link associated", "attempts", attempt, "wait", wait.Round(time.Millisecond))
			if o.rt.Metrics != nil {
				o.rt.Metrics.ObserveLinkWait(wait)
			}
			return nil
		}

		if err := o.sleep(wctx, poll); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w: not associated after %v (%d queries)", ErrLinkTimeout, timeout, attempt)
		}
	}
}

func (o *Orchestrator) reportIPInfo(ctx context.Context) {
	info, err := o.rt.Link.CurrentIPInfo(ctx)
	if err != nil {
		o.log.Warn("ip info unavailable", "state", o.rt.Link.State().String(), "error", err)
		return
	}
	o.log.Info("ip info", "info", info.String())
}

// linkLost reports whether the last status query moved the link to
// Disassociated.
func (o *Orchestrator) linkLost() bool {
	return o.rt.Link.State() == link.StateDisassociated
}
