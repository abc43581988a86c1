package mqtt

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dratasich/mqtt-telemetry-monitor/events"
	"github.com/rs/zerolog/log"
)

// ranges of the simulated sensor
const (
	minTemperature = 20.0
	maxTemperature = 30.0
	minHumidity    = 30.0
	maxHumidity    = 60.0
)

// Publisher sends payloads to the broker
//
// Implemented by ConnectionManager and Core.
type Publisher interface {
	Publish(topic string, payload []byte) (bool, error)
}

// SimulatorStats counts publish attempts of a simulator
type SimulatorStats struct {
	Attempts uint64
	Sent     uint64
	Refused  uint64 // not connected
	Failed   uint64 // transport or topic errors
}

// Simulator publishes synthetic readings on a fixed interval
//
// A refused or failed publish never stops the timer. After Stop
// returned no further publish is attempted.
type Simulator struct {
	publisher Publisher
	topic     func() string
	interval  time.Duration

	// returns the tick channel and a function to stop it
	ticker func(time.Duration) (<-chan time.Time, func())

	mu      sync.Mutex
	started bool
	stopped bool
	quit    chan struct{}
	done    chan struct{}

	attempts, sent, refused, failed atomic.Uint64
}

// NewSimulator returns a stopped simulator publishing to topic() on
// every tick
func NewSimulator(publisher Publisher, topic func() string, interval time.Duration) *Simulator {
	return &Simulator{
		publisher: publisher,
		topic:     topic,
		interval:  interval,
		ticker:    newTicker,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func newTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Start the periodic publishing; a stopped simulator cannot be restarted
func (s *Simulator) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	go s.run()
}

// Stop the periodic publishing and wait for an ongoing tick to finish
func (s *Simulator) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.quit)
	}
	started := s.started
	s.mu.Unlock()

	if started {
		<-s.done
	}
}

// Stats returns the publish counters
func (s *Simulator) Stats() SimulatorStats {
	return SimulatorStats{
		Attempts: s.attempts.Load(),
		Sent:     s.sent.Load(),
		Refused:  s.refused.Load(),
		Failed:   s.failed.Load(),
	}
}

func (s *Simulator) run() {
	defer close(s.done)

	ticks, stop := s.ticker(s.interval)
	defer stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticks:
			// quit wins if both are ready
			select {
			case <-s.quit:
				return
			default:
			}
			s.tick()
		}
	}
}

func (s *Simulator) tick() {
	topic := s.topic()
	if topic == "" {
		log.Debug().Msg("Simulated reading skipped, no topic yet")
		return
	}

	payload, err := events.Encode(synthesize(time.Now()))
	if err != nil {
		log.Error().Msgf("Failed to encode simulated reading: %s", err)
		return
	}

	s.attempts.Add(1)
	sent, err := s.publisher.Publish(topic, payload)
	switch {
	case err != nil:
		s.failed.Add(1)
		log.Error().Err(err).Str("topic", topic).Msg("Failed to publish simulated reading")
	case !sent:
		s.refused.Add(1)
		log.Debug().Str("topic", topic).Msg("Simulated reading not published, not connected")
	default:
		s.sent.Add(1)
		log.Info().Msgf("Published: %s", payload)
	}
}

// synthesize a reading with values drawn uniformly from the sensor
// ranges, rounded to two decimals
func synthesize(ts time.Time) events.Reading {
	return events.Reading{
		Timestamp:   ts,
		Temperature: events.Some(uniform(minTemperature, maxTemperature)),
		Humidity:    events.Some(uniform(minHumidity, maxHumidity)),
	}
}

func uniform(lo, hi float64) float64 {
	return math.Round((lo+rand.Float64()*(hi-lo))*100) / 100
}
