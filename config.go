package mqtt

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Telemetry monitor configuration
//
// Broker address, port and topic are passed to Connect.
type Config struct {
	ClientID string `env:"CLIENT_ID"` // MQTT client id, random if empty

	KeepAlive      uint16        `env:"KEEP_ALIVE,default=60"`       // seconds between keepalive packets
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT,default=30s"` // bound for dial and CONNACK
	PublishTimeout time.Duration `env:"PUBLISH_TIMEOUT,default=5s"`  // bound for writing a single publish

	// qos for subscribe and publish, with qos > 0 Publish blocks until
	// acknowledged or PublishTimeout elapses
	QoS byte `env:"QOS,default=0"`

	// interval of the simulated sensor, 0 disables it
	PublishInterval time.Duration `env:"PUBLISH_INTERVAL,default=5s"`

	// number of samples kept for the plot, 0 keeps all
	MaxSamples int `env:"MAX_SAMPLES,default=0"`
	// pending display notifications before new ones are dropped
	NotifyQueueSize int `env:"NOTIFY_QUEUE_SIZE,default=100"`
}

// DefaultConfig mirrors the env defaults
func DefaultConfig() Config {
	return Config{
		KeepAlive:       60,
		ConnectTimeout:  30 * time.Second,
		PublishTimeout:  5 * time.Second,
		PublishInterval: 5 * time.Second,
		NotifyQueueSize: 100,
	}
}

func (cfg Config) clientID() string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	return "telemetry-monitor-" + uuid.NewString()
}

func validateEndpoint(broker string, port int, topic string) error {
	if strings.TrimSpace(broker) == "" {
		return &ConfigurationError{Field: "broker", Value: broker, Reason: "must not be empty"}
	}
	if strings.ContainsAny(broker, " \t\r\n/") {
		return &ConfigurationError{Field: "broker", Value: broker, Reason: "must be a host name or address"}
	}
	if port < 1 || port > 65535 {
		return &ConfigurationError{Field: "port", Value: port, Reason: "must be within 1-65535"}
	}
	return validateTopic(topic, false)
}

// validateTopic checks a topic name, wildcards are only valid in filters
func validateTopic(topic string, publish bool) error {
	if topic == "" {
		return &ConfigurationError{Field: "topic", Value: topic, Reason: "must not be empty"}
	}
	if strings.ContainsRune(topic, 0) {
		return &ConfigurationError{Field: "topic", Value: topic, Reason: "must not contain NUL"}
	}
	if publish && strings.ContainsAny(topic, "+#") {
		return &ConfigurationError{Field: "topic", Value: topic, Reason: "wildcards are not allowed when publishing"}
	}
	return nil
}

func address(broker string, port int) string {
	return net.JoinHostPort(broker, strconv.Itoa(port))
}
