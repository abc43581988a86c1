package events

// Telemetry payload
//
// example:
// `{"temperature": 23.45, "humidity": 41.2}`
//
// Every key is optional.
type Telemetry struct {
	// Unix timestamp in milliseconds, ignored unless integral
	Timestamp *int64 `json:"ts,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
}

// Attributes of a raw payload before they are mapped onto Telemetry
type Attributes map[string]any
