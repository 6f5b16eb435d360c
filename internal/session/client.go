package session

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/gray-logic-edge/internal/events"
)

// Options identifies the broker and the credentials for a session.
type Options struct {
	BrokerURI string
	Username  string
	Password  string
	ClientID  string
}

// Subscription records a subscription the broker has accepted.
type Subscription struct {
	Filter string
	QoS    byte
	ID     int
}

// Logger defines the logging interface for the session client.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Client is an open broker session.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Events are delivered to the sink from transport goroutines; the
//     sink decides how they are serialised.
type Client struct {
	transport Transport
	endpoint  Endpoint
	logger    Logger

	mu     sync.Mutex
	subs   []Subscription
	closed bool
}

// Create validates opts and opens a session over transport. Every
// event the session produces, starting with Connected, is passed to sink.
//
// Returns:
//   - *Client: the open session
//   - error: *CreateError wrapping ErrInvalidURI or the transport failure
func Create(ctx context.Context, transport Transport, opts Options, sink events.Sink, logger Logger) (*Client, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	if sink == nil {
		sink = func(events.Event) {}
	}

	u, err := ParseBrokerURI(opts.BrokerURI)
	if err != nil {
		return nil, &CreateError{Broker: opts.BrokerURI, Err: err}
	}

	endpoint := Endpoint{
		URL:      u,
		Username: opts.Username,
		Password: opts.Password,
		ClientID: opts.ClientID,
	}
	if endpoint.Username != "" || endpoint.Password != "" {
		u.User = nil
	} else if u.User != nil {
		endpoint.Username = u.User.Username()
		endpoint.Password, _ = u.User.Password()
		u.User = nil
	}

	logger.Info("opening broker session", "broker", endpoint.String(), "client_id", endpoint.ClientID)

	if err := transport.Connect(ctx, endpoint, sink); err != nil {
		return nil, &CreateError{Broker: endpoint.String(), Err: err}
	}

	return &Client{
		transport: transport,
		endpoint:  endpoint,
		logger:    logger,
	}, nil
}

// Subscribe requests filter at qos. The broker's confirmation also
// arrives on the sink as an events.Subscribed carrying the same ID.
func (c *Client) Subscribe(ctx context.Context, filter string, qos byte) (Subscription, error) {
	fail := func(err error) (Subscription, error) {
		return Subscription{}, &SubscribeError{Filter: filter, QoS: qos, Err: err}
	}

	if err := ValidateFilter(filter); err != nil {
		return fail(err)
	}
	if err := ValidateQoS(qos); err != nil {
		return fail(err)
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fail(ErrClosed)
	}
	if !c.transport.IsConnected() {
		return fail(ErrNotConnected)
	}

	id, err := c.transport.Subscribe(ctx, filter, qos)
	if err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			c.logger.Warn("subscription rejected", "filter", filter, "code", rejected.Code)
		}
		return fail(err)
	}

	sub := Subscription{Filter: filter, QoS: qos, ID: id}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub, nil
}

// Subscriptions returns the accepted subscriptions.
func (c *Client) Subscriptions() []Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Subscription, len(c.subs))
	copy(out, c.subs)
	return out
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	return !closed && c.transport.IsConnected()
}

// Endpoint returns the broker the session was opened against.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// Close disconnects from the broker. Closing twice is not an error.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.logger.Info("closing broker session", "broker", c.endpoint.String())
	return c.transport.Close()
}
