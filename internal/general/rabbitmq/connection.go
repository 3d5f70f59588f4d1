package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"logistics/internal/general/config"
	"logistics/internal/general/logger"
	"logistics/internal/general/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	ErrBrokerURLMissing   = errors.New("rabbitmq: broker url is not configured")
	ErrChannelUnavailable = errors.New("rabbitmq: channel unavailable")
	ErrNotInitialized     = errors.New("rabbitmq: channel is not initialized")
	ErrPublishNacked      = errors.New("rabbitmq: publish not acknowledged")
	ErrClientClosed       = errors.New("rabbitmq: client closed")
)

const (
	defaultReconnectBackoff = 5 * time.Second
	confirmBuffer           = 64
)

// Connection is the part of *amqp.Connection the client uses.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

// Channel is the part of *amqp.Channel the client uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	NotifyReturn(c chan amqp.Return) chan amqp.Return
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	GetNextPublishSeqNo() uint64
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	IsClosed() bool
	Close() error
}

// Dialer opens a broker connection.
type Dialer func(url string) (Connection, error)

// DefaultDialer dials with a 10s heartbeat and a 30s dial timeout.
func DefaultDialer(url string) (Connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(30 * time.Second),
	})
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Option customises a Client.
type Option func(*Client)

func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRetryInitial keeps the client when the first dial fails and lets the
// watcher keep trying; publishes fail with ErrNotInitialized meanwhile.
func WithRetryInitial() Option {
	return func(c *Client) { c.retryInitial = true }
}

// Client is a resilient RabbitMQ connector with auto-reconnect and topology setup.
type Client struct {
	url          string
	backoff      time.Duration
	maxAttempts  int
	retryInitial bool
	dial         Dialer
	logger       *logger.Logger
	metrics      *metrics.Metrics
	logCtx       context.Context // context for logging (without cancel)

	mu      sync.RWMutex
	conn    Connection
	pubChan Channel
	readyCh chan struct{} // closed while a connection is installed

	pubMu       sync.Mutex
	pubConfirms chan amqp.Confirmation

	closed    chan struct{}
	closeOnce sync.Once
	reconnect chan struct{}
}

// ConnectRabbitMQ establishes the connection, declares the topology and starts a
// background watcher that reconnects on failures until Close or ctx cancellation.
func ConnectRabbitMQ(ctx context.Context, cfg config.RabbitMQConfig, logger *logger.Logger, opts ...Option) (*Client, error) {
	url := cfg.AMQPURL()
	if url == "" {
		return nil, ErrBrokerURLMissing
	}

	client := &Client{
		url:         url,
		backoff:     cfg.ReconnectBackoff,
		maxAttempts: cfg.MaxReconnectAttempts,
		dial:        DefaultDialer,
		logger:      logger,
		logCtx:      context.WithoutCancel(ctx), // avoid ctx cancel on reconnects
		readyCh:     make(chan struct{}),
		closed:      make(chan struct{}),
		reconnect:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.backoff <= 0 {
		client.backoff = defaultReconnectBackoff
	}

	// initial connect (single attempt; further retries happen in the watcher)
	if err := client.connectOnce(); err != nil {
		if !client.retryInitial || errors.Is(err, ErrChannelUnavailable) {
			return nil, err
		}
		client.signalReconnect()
	}

	go client.watch(ctx)

	return client, nil
}

// IsReady reports whether the connection and publishing channel are open.
func (client *Client) IsReady() bool {
	client.mu.RLock()
	defer client.mu.RUnlock()
	return client.conn != nil && !client.conn.IsClosed() &&
		client.pubChan != nil && !client.pubChan.IsClosed()
}

// WaitReady blocks until a connection is installed, the client closes, or ctx ends.
func (client *Client) WaitReady(ctx context.Context) error {
	for {
		client.mu.RLock()
		ready := client.readyCh
		client.mu.RUnlock()

		select {
		case <-ready:
			if client.IsReady() {
				return nil
			}
			// lost again before the watcher noticed; give it a moment
			select {
			case <-time.After(20 * time.Millisecond):
			case <-client.closed:
				return ErrClientClosed
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-client.closed:
			return ErrClientClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close gracefully stops the watcher and closes AMQP resources.
func (client *Client) Close() {
	client.closeOnce.Do(func() {
		close(client.closed)

		client.mu.Lock()
		if client.pubChan != nil {
			_ = client.pubChan.Close()
			client.pubChan = nil
		}
		if client.conn != nil {
			_ = client.conn.Close()
			client.conn = nil
		}
		client.mu.Unlock()

		client.metrics.SetConnected(false)
		client.logger.Info(client.logCtx, "rabbitmq_closed", "RabbitMQ client closed", nil)
	})
}

func (client *Client) isClosed() bool {
	select {
	case <-client.closed:
		return true
	default:
		return false
	}
}

// --- internals ---

// connectOnce tries to connect and set up topology once.
func (client *Client) connectOnce() (err error) {
	conn, err := client.dial(client.url)
	if err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_dial_failed", "Failed to dial RabbitMQ", err, nil)
		return fmt.Errorf("rabbitmq dial failed: %w", err)
	}

	defer func() {
		if err != nil {
			_ = conn.Close()
		}
	}()

	// create a channel for publishing messages
	ch, err := conn.Channel()
	if err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_open_channel_failed", "Failed to open RabbitMQ channel", err, nil)
		return fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}

	defer func() {
		if err != nil {
			_ = ch.Close()
		}
	}()

	if err = DeclareTopology(ch); err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_declare_topology_failed", "Failed to declare RabbitMQ topology", err, nil)
		return fmt.Errorf("rabbitmq: failed to declare topology: %w", err)
	}

	if err = ch.Confirm(false); err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_enable_confirms_failed", "Failed to enable publisher confirms", err, nil)
		return fmt.Errorf("rabbitmq: failed to enable confirms: %w", err)
	}

	// buffered so confirms of timed-out publishes do not stall the connection reader
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer))

	// unroutable messages (publish with mandatory=true)
	returns := ch.NotifyReturn(make(chan amqp.Return, 1))
	go client.logReturns(returns)

	// register before installing so an early close is not missed
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	client.pubMu.Lock()
	client.pubConfirms = confirms
	client.pubMu.Unlock()

	client.mu.Lock()
	if client.isClosed() {
		client.mu.Unlock()
		return ErrClientClosed
	}
	client.conn = conn
	client.pubChan = ch
	close(client.readyCh)
	client.mu.Unlock()

	go client.watchClose(conn, connClosed, chClosed)

	client.metrics.SetConnected(true)
	client.logger.Info(client.logCtx, "rabbitmq_connected", "RabbitMQ connection established successfully", nil)

	return nil
}

func (client *Client) logReturns(returns <-chan amqp.Return) {
	for r := range returns {
		client.logger.Error(client.logCtx, "rabbitmq_returned",
			"Message was returned (unroutable)",
			fmt.Errorf("code=%d text=%s", r.ReplyCode, r.ReplyText),
			map[string]any{
				"exchange":   r.Exchange,
				"routingKey": r.RoutingKey,
				"size":       len(r.Body),
			},
		)
	}
}

// watchClose waits for the connection or publishing channel to drop, then asks
// the watcher for a reconnect.
func (client *Client) watchClose(conn Connection, connClosed, chClosed chan *amqp.Error) {
	var reason *amqp.Error
	select {
	case <-client.closed:
		return
	case reason = <-connClosed:
	case reason = <-chClosed:
	}
	if client.isClosed() {
		return
	}

	client.mu.Lock()
	if client.conn == conn {
		client.readyCh = make(chan struct{})
		if client.pubChan != nil {
			_ = client.pubChan.Close()
		}
		_ = conn.Close()
		client.conn = nil
		client.pubChan = nil
	}
	client.mu.Unlock()

	client.metrics.SetConnected(false)

	var err error = ErrChannelUnavailable
	if reason != nil {
		err = reason
	}
	client.logger.Error(client.logCtx, "rabbitmq_connection_lost", "RabbitMQ connection lost; scheduling reconnect", err,
		map[string]any{"backoff_ms": client.backoff.Milliseconds()})

	client.signalReconnect()
}

func (client *Client) signalReconnect() {
	select {
	case client.reconnect <- struct{}{}:
	default:
		// already enqueued; no-op
	}
}

// watch runs in background and reconnects with a fixed backoff.
func (client *Client) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			client.Close()
			return
		case <-client.closed:
			return
		case <-client.reconnect:
			client.reconnectLoop(ctx)
		}
	}
}

func (client *Client) reconnectLoop(ctx context.Context) {
	attempts := 0
	for {
		timer := time.NewTimer(client.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-client.closed:
			timer.Stop()
			return
		case <-timer.C:
		}

		attempts++
		client.metrics.ReconnectAttempted()

		err := client.connectOnce()
		if err == nil {
			client.metrics.Reconnected()
			client.logger.Info(client.logCtx, "rabbitmq_reconnected", "Reconnected to RabbitMQ and re-ensured topology",
				map[string]any{"attempts": attempts})
			return
		}
		if errors.Is(err, ErrClientClosed) {
			return
		}

		client.logger.Error(client.logCtx, "rabbitmq_reconnect_failed", "Failed to reconnect to RabbitMQ", err,
			map[string]any{"attempt": attempts, "backoff_ms": client.backoff.Milliseconds()})

		if client.maxAttempts > 0 && attempts >= client.maxAttempts {
			client.logger.Error(client.logCtx, "rabbitmq_reconnect_exhausted", "Giving up on RabbitMQ reconnects", err,
				map[string]any{"attempts": attempts})
			client.Close()
			return
		}
	}
}
