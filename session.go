package mqtt

import (
	"context"
	"fmt"
	"net"

	"github.com/eclipse/paho.golang/paho"
	"github.com/rs/zerolog/log"
)

// Session is an established broker session
type Session interface {
	Subscribe(ctx context.Context, topic string, qos byte) error
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
	Disconnect() error
}

// SessionHandlers receive broker events
//
// They are called on the transport's goroutines.
type SessionHandlers struct {
	OnMessage        func(topic string, payload []byte)
	OnConnectionLost func(err error)
}

// Dialer opens broker sessions
//
// Dial blocks until the broker acknowledged the connect or ctx is done.
type Dialer interface {
	Dial(ctx context.Context, addr string, cfg Config, h SessionHandlers) (Session, error)
}

// PahoDialer connects over plain TCP using MQTT v5
type PahoDialer struct{}

func (PahoDialer) Dial(ctx context.Context, addr string, cfg Config, h SessionHandlers) (Session, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	handler := func(msg *paho.Publish) {
		log.Debug().Str("topic", msg.Topic).Int("size", len(msg.Payload)).Msg("Received message")
		h.OnMessage(msg.Topic, msg.Payload)
	}

	clientID := cfg.clientID()
	client := paho.NewClient(paho.ClientConfig{
		ClientID: clientID,
		Conn:     conn,
		Router:   paho.NewStandardRouterWithDefault(handler),
		OnClientError: func(err error) {
			log.Error().Msgf("Client error: %s", err)
			go h.OnConnectionLost(err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			var err error
			if d.Properties != nil && d.Properties.ReasonString != "" {
				err = fmt.Errorf("server requested disconnect: %s", d.Properties.ReasonString)
			} else {
				err = fmt.Errorf("server requested disconnect with reason code: %d", d.ReasonCode)
			}
			log.Error().Msg(err.Error())
			go h.OnConnectionLost(err)
		},
	})

	connAck, err := client.Connect(ctx, &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  cfg.KeepAlive,
		CleanStart: true,
	})
	if err != nil {
		_ = conn.Close()
		return nil, &TransportError{Op: "connect", Err: err}
	}
	log.Info().Str("client_id", clientID).Msgf("Connected with reason code %d", connAck.ReasonCode)

	return &pahoSession{client: client}, nil
}

type pahoSession struct {
	client *paho.Client
}

func (s *pahoSession) Subscribe(ctx context.Context, topic string, qos byte) error {
	subAck, err := s.client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: topic, QoS: qos},
		},
	})
	if err != nil {
		return err
	}
	if subAck == nil {
		return nil
	}
	for _, reason := range subAck.Reasons {
		if reason >= 0x80 {
			return fmt.Errorf("subscription to %s refused with reason code: %d", topic, reason)
		}
	}
	return nil
}

func (s *pahoSession) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	_, err := s.client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Payload: payload,
	})
	return err
}

func (s *pahoSession) Disconnect() error {
	return s.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}
