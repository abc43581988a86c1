package main

import (
	"fmt"
	"io"
	"sync"

	mqtt "github.com/dratasich/mqtt-telemetry-monitor"
	"github.com/dratasich/mqtt-telemetry-monitor/events"
	"github.com/dratasich/mqtt-telemetry-monitor/series"
)

// console renders readings and connection state as text lines
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) showReading(r events.Reading, snapshot series.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "Received: Temperature=%s °C, Humidity=%s %%\n", r.TemperatureText(), r.HumidityText())
	if latest, ok := snapshot.Latest(); ok {
		fmt.Fprintf(c.out, "Temperature plot: %d samples, latest %.2f °C at %s\n",
			snapshot.Len(), latest.Value, latest.Timestamp.Format("15:04:05"))
	}
}

func (c *console) showState(state mqtt.State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		fmt.Fprintf(c.out, "MQTT %s: %s\n", state, err)
		return
	}
	fmt.Fprintf(c.out, "MQTT %s\n", state)
}
