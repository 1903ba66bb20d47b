package divider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/ridgeline-sensing/bvd-gauge/socgauge"
)

type fakeReader struct {
	reading Reading
	err     error
	calls   int
}

func (f *fakeReader) Sample() (Reading, error) {
	f.calls++
	return f.reading, f.err
}

// recordingPin keeps the sequence of levels written to the gate, not just
// the last one.
type recordingPin struct {
	*gpiotest.Pin
	levels   []gpio.Level
	failFrom int // fail Out calls numbered >= failFrom (1-based), 0 = never
}

func (p *recordingPin) Out(l gpio.Level) error {
	if p.failFrom > 0 && len(p.levels)+1 >= p.failFrom {
		return errors.New("gpio write failed")
	}
	p.levels = append(p.levels, l)
	return p.Pin.Out(l)
}

func newGate(failFrom int) *recordingPin {
	return &recordingPin{
		Pin:      &gpiotest.Pin{N: "GATE", Num: 22},
		failFrom: failFrom,
	}
}

// A 3.7V battery behind a 100k/100k divider read by a 10 bit ADC with a
// 3.3V reference.
var goodReading = Reading{Raw: 574, RefMillivolts: 3300, Bits: 10}

func goodConfig() Config {
	return Config{OutputOhms: 100000, FullOhms: 200000}
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, goodConfig())
	assert.Error(t, err)

	_, err = New(&fakeReader{}, Config{FullOhms: 200000})
	assert.Error(t, err)

	_, err = New(&fakeReader{}, Config{OutputOhms: 100000})
	assert.Error(t, err)

	_, err = New(&fakeReader{}, Config{OutputOhms: 200000, FullOhms: 100000})
	assert.Error(t, err)

	_, err = New(&fakeReader{}, goodConfig())
	assert.NoError(t, err)
}

func TestNewParksGateInactive(t *testing.T) {
	gate := newGate(0)
	cfg := goodConfig()
	cfg.PowerGate = gate
	_, err := New(&fakeReader{}, cfg)
	require.NoError(t, err)
	require.Len(t, gate.levels, 1)
	assert.Equal(t, gpio.Low, gate.levels[0])

	gate = newGate(0)
	cfg.PowerGate = gate
	cfg.GateActiveLow = true
	_, err = New(&fakeReader{}, cfg)
	require.NoError(t, err)
	require.Len(t, gate.levels, 1)
	assert.Equal(t, gpio.High, gate.levels[0])
}

func TestFetchComputesVoltageAndCharge(t *testing.T) {
	reader := &fakeReader{reading: goodReading}
	s, err := New(reader, goodConfig())
	require.NoError(t, err)

	require.NoError(t, s.Fetch())
	assert.Equal(t, 1, reader.calls)
	assert.Equal(t, 574, s.Raw())
	assert.Equal(t, 3698, s.Millivolts())

	volts, microvolts := s.Voltage()
	assert.Equal(t, 3, volts)
	assert.Equal(t, 698000, microvolts)

	// 3698mV sits between {3696, 54} and {3733, 58} on the LiIon curve.
	assert.Equal(t, 54, s.StateOfCharge())
}

func TestFetchWithCustomCurve(t *testing.T) {
	curve := socgauge.DischargeCurve{{Millivolts: 3000, Percent: 0}, {Millivolts: 4000, Percent: 100}}
	reader := &fakeReader{reading: goodReading}
	cfg := goodConfig()
	cfg.Curve = curve
	s, err := New(reader, cfg)
	require.NoError(t, err)

	require.NoError(t, s.Fetch())
	assert.Equal(t, 69, s.StateOfCharge())
}

func TestFetchGateSequence(t *testing.T) {
	gate := newGate(0)
	cfg := goodConfig()
	cfg.PowerGate = gate
	s, err := New(&fakeReader{reading: goodReading}, cfg)
	require.NoError(t, err)

	require.NoError(t, s.Fetch())
	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High, gpio.Low}, gate.levels)
}

func TestFetchGateSequenceActiveLow(t *testing.T) {
	gate := newGate(0)
	cfg := goodConfig()
	cfg.PowerGate = gate
	cfg.GateActiveLow = true
	s, err := New(&fakeReader{reading: goodReading}, cfg)
	require.NoError(t, err)

	require.NoError(t, s.Fetch())
	assert.Equal(t, []gpio.Level{gpio.High, gpio.Low, gpio.High}, gate.levels)
}

func TestFetchReadFailureKeepsValuesAndReleasesGate(t *testing.T) {
	gate := newGate(0)
	reader := &fakeReader{reading: goodReading}
	cfg := goodConfig()
	cfg.PowerGate = gate
	s, err := New(reader, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Fetch())

	reader.err = errors.New("conversion timed out")
	err = s.Fetch()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read ADC")

	// Stale values are retained for this cycle.
	assert.Equal(t, 3698, s.Millivolts())
	assert.Equal(t, 54, s.StateOfCharge())

	// The gate must not be left powering the divider.
	assert.Equal(t, gpio.Low, gate.levels[len(gate.levels)-1])
	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High, gpio.Low, gpio.High, gpio.Low}, gate.levels)
}

func TestFetchGateEnableFailure(t *testing.T) {
	gate := newGate(2) // init succeeds, enable fails
	reader := &fakeReader{reading: goodReading}
	cfg := goodConfig()
	cfg.PowerGate = gate
	s, err := New(reader, cfg)
	require.NoError(t, err)

	err = s.Fetch()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enable")
	assert.Equal(t, 0, reader.calls)
}

func TestFetchGateDisableFailureWins(t *testing.T) {
	gate := newGate(3) // init and enable succeed, disable fails
	reader := &fakeReader{reading: goodReading, err: errors.New("read failed")}
	cfg := goodConfig()
	cfg.PowerGate = gate
	s, err := New(reader, cfg)
	require.NoError(t, err)

	err = s.Fetch()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disable")
}

func TestScaleToMillivolts(t *testing.T) {
	assert.Equal(t, 1849, scaleToMillivolts(Reading{Raw: 574, RefMillivolts: 3300, Bits: 10}))
	assert.Equal(t, 0, scaleToMillivolts(Reading{Raw: 0, RefMillivolts: 3300, Bits: 10}))
	assert.Equal(t, 3296, scaleToMillivolts(Reading{Raw: 1023, RefMillivolts: 3300, Bits: 10}))
	assert.Equal(t, 2048, scaleToMillivolts(Reading{Raw: 16384, RefMillivolts: 4096, Bits: 15}))
	assert.Equal(t, 0, scaleToMillivolts(Reading{Raw: 100, RefMillivolts: 3300, Bits: 0}))
}
