package hfp

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePing = `{"VP":{"desi":"10","dir":"1","oper":22,"veh":42,"tst":"2018-04-05T11:38:36.000Z","tsi":1522928316,"spd":36,"hdg":0,"lat":60.192,"long":24.935,"acc":-0.14,"dl":-179,"odo":null,"drst":null,"oday":"2018-04-05","jrn":636,"line":112,"start":"14:07"}}`

func TestDecode_Located(t *testing.T) {
	p, err := Decode([]byte(samplePing))
	require.NoError(t, err)

	assert.Equal(t, 42, p.VehicleNumber)
	assert.Equal(t, "10", p.Designator)
	assert.Equal(t, "1", p.Direction)
	assert.Equal(t, 22, p.Operator)
	assert.Equal(t, 636, p.Journey)
	assert.Equal(t, 112, p.Line)
	assert.Equal(t, "2018-04-05", p.OperatingDay)
	assert.Equal(t, "14:07", p.Start)
	assert.InDelta(t, 36.0, p.SpeedKmh, 1e-9)
	assert.InDelta(t, 0.0, p.HeadingDeg, 1e-9)
	assert.InDelta(t, -0.14, p.Acceleration, 1e-9)
	assert.Equal(t, time.Date(2018, 4, 5, 11, 38, 36, 0, time.UTC), p.ReportedAt.UTC())
	assert.Equal(t, int64(1522928316), p.ReportUnix)

	require.False(t, p.Offline())
	assert.Equal(t, Coord{24.935, 60.192}, p.Location.Coord)

	require.NotNil(t, p.Delay)
	assert.Equal(t, -179, *p.Delay)
	assert.Nil(t, p.Odometer)
	assert.Nil(t, p.DoorStatus)
}

func TestDecode_Offline(t *testing.T) {
	tests := map[string]string{
		"both absent": strings.NewReplacer(`"lat":60.192,`, ``, `"long":24.935,`, ``).Replace(samplePing),
		"both null":   strings.NewReplacer(`"lat":60.192`, `"lat":null`, `"long":24.935`, `"long":null`).Replace(samplePing),
		"lat absent":  strings.Replace(samplePing, `"lat":60.192,`, ``, 1),
		"long absent": strings.Replace(samplePing, `"long":24.935,`, ``, 1),
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			p, err := Decode([]byte(raw))
			require.NoError(t, err)
			assert.True(t, p.Offline())
			assert.Equal(t, Offline, p.Location.Kind)
		})
	}
}

func TestDecode_ZeroValuesArePresent(t *testing.T) {
	raw := strings.NewReplacer(`"spd":36`, `"spd":0`, `"acc":-0.14`, `"acc":0`, `"veh":42`, `"veh":0`).Replace(samplePing)
	p, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 0, p.VehicleNumber)
	assert.Zero(t, p.SpeedKmh)
}

func TestDecode_Errors(t *testing.T) {
	tests := map[string]string{
		"not json":        `VP: 1`,
		"empty object":    `{}`,
		"two envelopes":   `{"VP":{},"DUE":{}}`,
		"envelope scalar": `{"VP":3}`,
		"missing desi":    strings.Replace(samplePing, `"desi":"10",`, ``, 1),
		"missing spd":     strings.Replace(samplePing, `"spd":36,`, ``, 1),
		"null hdg":        strings.Replace(samplePing, `"hdg":0`, `"hdg":null`, 1),
		"desi as number":  strings.Replace(samplePing, `"desi":"10"`, `"desi":10`, 1),
		"veh as string":   strings.Replace(samplePing, `"veh":42`, `"veh":"42"`, 1),
		"fractional veh":  strings.Replace(samplePing, `"veh":42`, `"veh":42.5`, 1),
		"bad tst":         strings.Replace(samplePing, `2018-04-05T11:38:36.000Z`, `yesterday`, 1),
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode), "error %v should wrap ErrDecode", err)
		})
	}
}

func TestDecode_OutOfRangeFixIsOffline(t *testing.T) {
	for _, raw := range []string{
		strings.Replace(samplePing, `"lat":60.192`, `"lat":160.192`, 1),
		strings.Replace(samplePing, `"long":24.935`, `"long":-190.5`, 1),
	} {
		p, err := Decode([]byte(raw))
		require.NoError(t, err)
		assert.True(t, p.Offline())
		assert.Equal(t, 42, p.VehicleNumber)
	}
}

func TestDecode_ErrorNamesField(t *testing.T) {
	_, err := Decode([]byte(strings.Replace(samplePing, `"desi":"10",`, ``, 1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "desi:required")
}
