package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/dratasich/mqtt-telemetry-monitor"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"
)

type config struct {
	Broker string `env:"BROKER,default=broker.hivemq.com"`
	Port   int    `env:"PORT,default=1883"`
	Topic  string `env:"TOPIC,default=testmazenkovic/topic1"`

	LogLevel string `env:"LOG_LEVEL,default=info"`

	MQTT mqtt.Config `env:",prefix=MQTT_"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Error().Err(err).Msg("Telemetry monitor failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	core := mqtt.New(cfg.MQTT)
	defer core.Close()

	display := newConsole(os.Stdout)
	core.OnStateChange(display.showState)
	core.OnReading(display.showReading)

	if err := core.Connect(cfg.Broker, cfg.Port, cfg.Topic); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().
		Uint64("published", core.SimulatorStats().Sent).
		Int("samples", core.Snapshot().Len()).
		Msg("Shutting down")
	return nil
}
