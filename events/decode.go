package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mitchellh/mapstructure"
)

var errNotAnObject = errors.New("payload is not a JSON object")

// DecodeError is returned for payloads which are no telemetry record
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode telemetry: %s", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder turns raw payloads into readings
//
// Decode has no side effects, so a single decoder may be shared by
// concurrent callers.
type Decoder struct {
	// clock stamps readings whose payload carries no "ts"
	now func() time.Time
}

func NewDecoder() *Decoder {
	return &Decoder{now: time.Now}
}

// NewDecoderWithClock is like NewDecoder but uses now to stamp readings
func NewDecoderWithClock(now func() time.Time) *Decoder {
	return &Decoder{now: now}
}

// Decode parses a JSON telemetry record
//
// Missing or null keys decode to absent values. Anything that is not a
// JSON object, or carries non-numeric measurements, yields a
// *DecodeError. An optional integral "ts" (Unix milliseconds) stamps the
// reading, any other "ts" is ignored.
func (d *Decoder) Decode(payload []byte) (Reading, error) {
	var attrs Attributes
	if err := json.Unmarshal(payload, &attrs); err != nil {
		return Reading{}, &DecodeError{Err: err}
	}
	// `null` unmarshals into a nil map without error
	if attrs == nil {
		return Reading{}, &DecodeError{Err: errNotAnObject}
	}

	// ts is optional metadata, a malformed one never rejects the record
	ts, hasTimestamp := unixMillis(attrs["ts"])
	delete(attrs, "ts")

	var telemetry Telemetry
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &telemetry,
	})
	if err != nil {
		return Reading{}, &DecodeError{Err: err}
	}
	if err := decoder.Decode(map[string]any(attrs)); err != nil {
		return Reading{}, &DecodeError{Err: err}
	}

	reading := Reading{
		Temperature: valueOf(telemetry.Temperature),
		Humidity:    valueOf(telemetry.Humidity),
	}
	if hasTimestamp {
		reading.Timestamp = time.UnixMilli(ts)
	} else if d.now != nil {
		reading.Timestamp = d.now()
	} else {
		reading.Timestamp = time.Now()
	}
	return reading, nil
}

// unixMillis accepts integral JSON numbers only
func unixMillis(v any) (int64, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

// Encode a reading into its wire payload
//
// The timestamp is left out, receivers stamp on arrival.
func Encode(r Reading) ([]byte, error) {
	return json.Marshal(Telemetry{
		Temperature: r.Temperature.ptr(),
		Humidity:    r.Humidity.ptr(),
	})
}
