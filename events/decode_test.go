package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var received = time.Date(2025, 9, 1, 16, 3, 22, 0, time.UTC)

func fixture() *Decoder {
	return NewDecoderWithClock(func() time.Time { return received })
}

func TestDecode(t *testing.T) {
	// arrange
	jsonData := `{"temperature": 23.45, "humidity": 41.2}`

	// act
	reading, err := fixture().Decode([]byte(jsonData))

	// assert
	require.NoError(t, err)
	assert.Equal(t, Some(23.45), reading.Temperature)
	assert.Equal(t, Some(41.2), reading.Humidity)
	assert.Equal(t, received, reading.Timestamp)
}

func TestDecodeKeepsValuesAsReceived(t *testing.T) {
	for _, tc := range []struct {
		payload     string
		temperature float64
		humidity    float64
	}{
		{`{"temperature": -40.123456, "humidity": 120}`, -40.123456, 120},
		{`{"temperature": 0, "humidity": 0}`, 0, 0},
		{`{"temperature": 1e3, "humidity": 99.999}`, 1000, 99.999},
	} {
		t.Run(tc.payload, func(t *testing.T) {
			reading, err := fixture().Decode([]byte(tc.payload))
			require.NoError(t, err)
			assert.Equal(t, Some(tc.temperature), reading.Temperature)
			assert.Equal(t, Some(tc.humidity), reading.Humidity)
		})
	}
}

func TestDecodeMissingFields(t *testing.T) {
	for _, tc := range []struct {
		name        string
		payload     string
		temperature Value
		humidity    Value
	}{
		{"no humidity", `{"temperature": 25.0}`, Some(25), Value{}},
		{"no temperature", `{"humidity": 45.5}`, Value{}, Some(45.5)},
		{"empty", `{}`, Value{}, Value{}},
		{"null", `{"temperature": null, "humidity": 30}`, Value{}, Some(30)},
		{"unknown keys", `{"pressure": 1013.2}`, Value{}, Value{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			reading, err := fixture().Decode([]byte(tc.payload))
			require.NoError(t, err)
			assert.Equal(t, tc.temperature, reading.Temperature)
			assert.Equal(t, tc.humidity, reading.Humidity)
			assert.Equal(t, "N/A", Value{}.String())
		})
	}
}

func TestDecodeAbsentIsNotZero(t *testing.T) {
	absent, err := fixture().Decode([]byte(`{}`))
	require.NoError(t, err)
	zero, err := fixture().Decode([]byte(`{"temperature": 0, "humidity": 0}`))
	require.NoError(t, err)

	assert.NotEqual(t, absent.Temperature, zero.Temperature)
	assert.False(t, absent.Temperature.Valid)
	assert.True(t, zero.Temperature.Valid)
	assert.Equal(t, "N/A", absent.TemperatureText())
	assert.Equal(t, "0", zero.TemperatureText())
}

func TestDecodeMalformed(t *testing.T) {
	for _, payload := range []string{
		`not json`,
		``,
		`{"temperature": 23.4`,
		`null`,
		`[1, 2]`,
		`42`,
		`"temperature"`,
		`{"temperature": "warm"}`,
		`{"humidity": true}`,
		`{"temperature": {"value": 1}}`,
	} {
		t.Run(payload, func(t *testing.T) {
			reading, err := fixture().Decode([]byte(payload))

			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, Reading{}, reading)
		})
	}
}

func TestDecodeTimestamp(t *testing.T) {
	// arrange
	// `ts` is the unix timestamp in milliseconds
	jsonData := `{"ts": 1756742602000, "temperature": 22.5, "humidity": 60}`

	// act
	reading, err := fixture().Decode([]byte(jsonData))

	// assert
	require.NoError(t, err)
	assert.True(t, reading.Timestamp.Equal(time.UnixMilli(1756742602000)))
	assert.Equal(t, Some(22.5), reading.Temperature)
}

func TestDecodeIgnoresInvalidTimestamp(t *testing.T) {
	for name, ts := range map[string]string{
		"rfc3339":    `"2025-09-01T12:00:00Z"`,
		"fractional": `1.9`,
		"bool":       `true`,
		"object":     `{"ms": 1000}`,
		"null":       `null`,
	} {
		t.Run(name, func(t *testing.T) {
			// arrange
			jsonData := `{"ts": ` + ts + `, "temperature": 25, "humidity": 45}`

			// act
			reading, err := fixture().Decode([]byte(jsonData))

			// assert
			require.NoError(t, err)
			assert.Equal(t, received, reading.Timestamp)
			assert.Equal(t, Some(25.0), reading.Temperature)
			assert.Equal(t, Some(45.0), reading.Humidity)
		})
	}
}

func TestDecodeZeroDecoder(t *testing.T) {
	before := time.Now()
	reading, err := (&Decoder{}).Decode([]byte(`{"humidity": 50}`))
	require.NoError(t, err)
	assert.False(t, reading.Timestamp.Before(before))
}

func TestEncode(t *testing.T) {
	// act
	payload, err := Encode(Reading{
		Timestamp:   received,
		Temperature: Some(23.45),
		Humidity:    Some(41.2),
	})

	// assert
	require.NoError(t, err)
	assert.JSONEq(t, `{"temperature": 23.45, "humidity": 41.2}`, string(payload))

	reading, err := fixture().Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, Some(23.45), reading.Temperature)
	assert.Equal(t, Some(41.2), reading.Humidity)
}

func TestEncodeOmitsAbsent(t *testing.T) {
	payload, err := Encode(Reading{Humidity: Some(33)})
	require.NoError(t, err)

	var attrs Attributes
	require.NoError(t, json.Unmarshal(payload, &attrs))
	assert.NotContains(t, attrs, "temperature")
	assert.NotContains(t, attrs, "ts")
	assert.Equal(t, 33.0, attrs["humidity"])
}
