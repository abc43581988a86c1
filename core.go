package mqtt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dratasich/mqtt-telemetry-monitor/events"
	"github.com/dratasich/mqtt-telemetry-monitor/series"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by Connect after Close
var ErrClosed = errors.New("telemetry core closed")

// ReadingHandler receives each decoded reading together with the
// buffered time series including it
type ReadingHandler func(reading events.Reading, snapshot series.Snapshot)

// Core ingests telemetry from a broker and feeds registered displays
//
// Inbound messages are decoded and appended to the time series buffer.
// Handlers registered with OnReading and OnStateChange run on a single
// dispatcher goroutine, in order, and never block ingestion: if the
// queue is full the notification is dropped and counted.
//
// Samples are stamped with their receipt time so the series stays
// chronological whatever timestamp a payload claims.
type Core struct {
	config  Config
	conn    *ConnectionManager
	decoder *events.Decoder
	buffer  *series.Buffer
	sim     *Simulator
	now     func() time.Time

	mu              sync.RWMutex
	readingHandlers []ReadingHandler
	stateHandlers   []StateHandler
	closed          bool

	notifications chan func()
	dropped       atomic.Uint64
	quit          chan struct{}
	done          chan struct{}
	closeOnce     sync.Once
}

type options struct {
	dialer Dialer
	now    func() time.Time
}

// Option customizes a Core
type Option func(*options)

// WithDialer replaces the MQTT transport
func WithDialer(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithClock sets the clock stamping received samples
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New returns a disconnected core
//
// The simulated sensor starts right away unless cfg.PublishInterval is
// zero. It publishes to the topic of the latest Connect.
func New(cfg Config, opts ...Option) *Core {
	o := options{dialer: PahoDialer{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	queueSize := cfg.NotifyQueueSize
	if queueSize <= 0 {
		queueSize = DefaultConfig().NotifyQueueSize
	}

	c := &Core{
		config:        cfg,
		decoder:       events.NewDecoderWithClock(o.now),
		buffer:        series.NewBoundedBuffer(cfg.MaxSamples),
		now:           o.now,
		notifications: make(chan func(), queueSize),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	c.conn = NewConnectionManager(cfg, o.dialer, c.handleMessage, c.handleState)
	go c.dispatch()

	if cfg.PublishInterval > 0 {
		c.sim = NewSimulator(c.conn, c.conn.Topic, cfg.PublishInterval)
		c.sim.Start()
	}
	return c
}

// Connect to broker:port and subscribe to topic, see ConnectionManager.Connect
func (c *Core) Connect(broker string, port int, topic string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	return c.conn.Connect(broker, port, topic)
}

// Disconnect from the broker, a no-op if disconnected
func (c *Core) Disconnect() {
	c.conn.Disconnect()
}

// Publish payload to topic, see ConnectionManager.Publish
func (c *Core) Publish(topic string, payload []byte) (bool, error) {
	return c.conn.Publish(topic, payload)
}

// AwaitConnection blocks until connected, see ConnectionManager.AwaitConnection
func (c *Core) AwaitConnection(ctx context.Context) error {
	return c.conn.AwaitConnection(ctx)
}

// OnReading registers a handler for decoded readings
func (c *Core) OnReading(h ReadingHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readingHandlers = append(c.readingHandlers, h)
}

// OnStateChange registers a handler for connection state transitions
func (c *Core) OnStateChange(h StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateHandlers = append(c.stateHandlers, h)
}

// State of the broker session
func (c *Core) State() State {
	return c.conn.State()
}

// Snapshot of the buffered temperature series
func (c *Core) Snapshot() series.Snapshot {
	return c.buffer.Snapshot()
}

// SimulatorStats returns the counters of the simulated sensor, zero if
// it is disabled
func (c *Core) SimulatorStats() SimulatorStats {
	if c.sim == nil {
		return SimulatorStats{}
	}
	return c.sim.Stats()
}

// DroppedNotifications returns how many handler notifications were
// discarded because the queue was full
func (c *Core) DroppedNotifications() uint64 {
	return c.dropped.Load()
}

// Close stops the simulator, disconnects and stops notifying handlers
//
// Pending notifications are delivered before Close returns.
func (c *Core) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		if c.sim != nil {
			c.sim.Stop()
		}
		c.conn.Disconnect()
		close(c.quit)
		<-c.done
	})
}

func (c *Core) handleMessage(topic string, payload []byte) {
	received := c.now()
	reading, err := c.decoder.Decode(payload)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Bytes("payload", payload).Msg("Dropping malformed message")
		return
	}
	log.Debug().
		Str("temperature", reading.TemperatureText()).
		Str("humidity", reading.HumidityText()).
		Msg("Received reading")

	// the series only holds temperatures
	if reading.Temperature.Valid {
		c.buffer.Append(received, reading.Temperature.Float)
	}
	snapshot := c.buffer.Snapshot()

	c.notify(func() {
		c.mu.RLock()
		handlers := c.readingHandlers
		c.mu.RUnlock()
		for _, h := range handlers {
			h(reading, snapshot)
		}
	})
}

// handleState is called with the connection manager's lock held
func (c *Core) handleState(state State, err error) {
	c.notify(func() {
		c.mu.RLock()
		handlers := c.stateHandlers
		c.mu.RUnlock()
		for _, h := range handlers {
			h(state, err)
		}
	})
}

func (c *Core) notify(fn func()) {
	select {
	case c.notifications <- fn:
	default:
		dropped := c.dropped.Add(1)
		log.Warn().Uint64("dropped", dropped).Msg("Notification queue full, dropping notification")
	}
}

func (c *Core) dispatch() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.notifications:
			fn()
		case <-c.quit:
			for {
				select {
				case fn := <-c.notifications:
					fn()
				default:
					return
				}
			}
		}
	}
}
