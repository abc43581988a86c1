package events

import (
	"strconv"
	"time"
)

// Value of a measurement which may be missing from the payload
//
// An absent value is distinct from a decoded zero.
type Value struct {
	Float float64
	Valid bool
}

// Some wraps a present measurement
func Some(v float64) Value {
	return Value{Float: v, Valid: true}
}

// String returns the value or "N/A" if absent
func (v Value) String() string {
	if !v.Valid {
		return "N/A"
	}
	return strconv.FormatFloat(v.Float, 'f', -1, 64)
}

func (v Value) ptr() *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float
	return &f
}

func valueOf(p *float64) Value {
	if p == nil {
		return Value{}
	}
	return Some(*p)
}

// Reading is one decoded telemetry sample
type Reading struct {
	Timestamp   time.Time
	Temperature Value // degree Celsius
	Humidity    Value // percent
}

// Text for the temperature as shown to a user
func (r Reading) TemperatureText() string {
	return r.Temperature.String()
}

// Text for the humidity as shown to a user
func (r Reading) HumidityText() string {
	return r.Humidity.String()
}
