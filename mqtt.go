package mqtt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// State of the broker session
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// MessageHandler receives every message of the subscribed topic
type MessageHandler func(topic string, payload []byte)

// StateHandler is notified on every state transition
//
// err is a *TransportError if the transition was caused by a failure.
// It is called with the manager's state lock held and must neither
// block nor call back into the manager.
type StateHandler func(state State, err error)

// ConnectionManager owns the broker session
//
// State transitions are driven by Connect, Disconnect and the session's
// callbacks only. A lost connection lands in Disconnected and is never
// re-established without a new Connect.
type ConnectionManager struct {
	config Config
	dialer Dialer

	onMessage MessageHandler
	onState   StateHandler

	mu      sync.RWMutex
	state   State
	topic   string
	session Session
	// lives as long as the session, Disconnect aborts in-flight publishes
	ctx    context.Context
	cancel context.CancelFunc
	// closed and replaced on every transition
	changed chan struct{}

	// bumped for every session, callbacks of older sessions are ignored
	generation atomic.Uint64
}

func NewConnectionManager(cfg Config, dialer Dialer, onMessage MessageHandler, onState StateHandler) *ConnectionManager {
	if dialer == nil {
		dialer = PahoDialer{}
	}
	if onMessage == nil {
		onMessage = func(string, []byte) {}
	}
	if onState == nil {
		onState = func(State, error) {}
	}
	return &ConnectionManager{
		config:    cfg,
		dialer:    dialer,
		onMessage: onMessage,
		onState:   onState,
		state:     Disconnected,
		changed:   make(chan struct{}),
	}
}

// Connect initiates a session to broker:port and subscribes to topic
// once the broker acknowledged the connect
//
// Returns immediately, the handshake completes in the background.
// Invalid input fails with a *ConfigurationError.
func (cm *ConnectionManager) Connect(broker string, port int, topic string) error {
	if err := validateEndpoint(broker, port, topic); err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.state != Disconnected {
		return ErrSessionActive
	}

	generation := cm.generation.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	cm.ctx, cm.cancel = ctx, cancel
	cm.topic = topic
	cm.setState(Connecting, nil)

	addr := address(broker, port)
	log.Info().Str("broker", addr).Str("topic", topic).Msg("Connect to MQTT broker...")
	go cm.establish(ctx, generation, addr, topic)
	return nil
}

func (cm *ConnectionManager) establish(ctx context.Context, generation uint64, addr string, topic string) {
	handlers := SessionHandlers{
		OnMessage: func(topic string, payload []byte) {
			if cm.generation.Load() != generation {
				return
			}
			cm.onMessage(topic, payload)
		},
		OnConnectionLost: func(err error) {
			cm.lost(generation, &TransportError{Op: "connection", Err: err})
		},
	}

	dialCtx, cancel := cm.withTimeout(ctx, cm.config.ConnectTimeout)
	session, err := cm.dialer.Dial(dialCtx, addr, cm.config, handlers)
	cancel()
	if err != nil {
		var transportErr *TransportError
		if !errors.As(err, &transportErr) {
			transportErr = &TransportError{Op: "connect", Err: err}
		}
		log.Error().Err(transportErr).Str("broker", addr).Msg("Failed to connect to MQTT broker")
		cm.lost(generation, transportErr)
		return
	}

	cm.mu.Lock()
	if cm.generation.Load() != generation || cm.state != Connecting {
		// disconnected while the handshake was in flight
		cm.mu.Unlock()
		if err := session.Disconnect(); err != nil {
			log.Debug().Err(err).Msg("Failed to close abandoned session")
		}
		return
	}
	cm.session = session
	cm.setState(Connected, nil)
	cm.mu.Unlock()
	log.Info().Msg("MQTT connection up")

	subCtx, cancel := cm.withTimeout(ctx, cm.config.ConnectTimeout)
	defer cancel()
	if err := session.Subscribe(subCtx, topic, cm.config.QoS); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to subscribe")
		return
	}
	log.Info().Str("topic", topic).Msg("MQTT subscription made")
}

// lost moves the given session to Disconnected, if it is still current
func (cm *ConnectionManager) lost(generation uint64, err error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.generation.Load() != generation || cm.state == Disconnected {
		return
	}
	cm.reset()
	cm.setState(Disconnected, err)
	log.Warn().Err(err).Msg("Disconnected from MQTT broker")
}

// Disconnect tears down the session
//
// The state is Disconnected when Disconnect returns. Calling it while
// disconnected is a no-op.
func (cm *ConnectionManager) Disconnect() {
	cm.mu.Lock()
	if cm.state == Disconnected {
		cm.mu.Unlock()
		return
	}
	session := cm.session
	cm.reset()
	cm.setState(Disconnected, nil)
	cm.mu.Unlock()

	if session != nil {
		if err := session.Disconnect(); err != nil {
			log.Error().Msgf("Failed to disconnect: %s", err)
		}
	}
	log.Info().Msg("Disconnected from MQTT broker")
}

// Publish sends payload to topic if connected
//
// Returns false without touching the transport if the session is not
// connected. The send happens outside the manager's lock, so a QoS>0
// publish awaiting its acknowledgement never delays Disconnect or loss
// handling. A publish cut short because its session went away is
// reported as refused, not as a transport error.
func (cm *ConnectionManager) Publish(topic string, payload []byte) (bool, error) {
	if err := validateTopic(topic, true); err != nil {
		return false, err
	}

	cm.mu.RLock()
	state, session, sessionCtx := cm.state, cm.session, cm.ctx
	generation := cm.generation.Load()
	cm.mu.RUnlock()

	if state != Connected || session == nil {
		log.Debug().Str("topic", topic).Str("state", state.String()).Msg("Publish refused, not connected")
		return false, nil
	}

	ctx, cancel := cm.withTimeout(sessionCtx, cm.config.PublishTimeout)
	defer cancel()
	if err := session.Publish(ctx, topic, cm.config.QoS, payload); err != nil {
		if cm.generation.Load() != generation {
			log.Debug().Err(err).Str("topic", topic).Msg("Publish refused, session closed")
			return false, nil
		}
		return false, &TransportError{Op: "publish", Err: err}
	}
	return true, nil
}

// State returns the current session state
func (cm *ConnectionManager) State() State {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.state
}

// Topic returns the topic of the latest Connect
func (cm *ConnectionManager) Topic() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.topic
}

// AwaitConnection blocks until the session is connected
//
// Returns ErrNotConnected if the session ends, or was never started,
// before it got connected.
func (cm *ConnectionManager) AwaitConnection(ctx context.Context) error {
	for {
		cm.mu.RLock()
		state, changed := cm.state, cm.changed
		cm.mu.RUnlock()

		switch state {
		case Connected:
			return nil
		case Disconnected:
			return ErrNotConnected
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reset drops the current session, cm.mu must be held
func (cm *ConnectionManager) reset() {
	cm.generation.Add(1)
	if cm.cancel != nil {
		cm.cancel()
		cm.cancel = nil
	}
	cm.ctx = nil
	cm.session = nil
}

// setState, cm.mu must be held
func (cm *ConnectionManager) setState(state State, err error) {
	cm.state = state
	close(cm.changed)
	cm.changed = make(chan struct{})
	cm.onState(state, err)
}

func (cm *ConnectionManager) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
