// Package divider reads a battery voltage through a resistor divider and
// converts it to a state of charge. The divider circuit can sit behind a
// power-gate GPIO that is only driven active while a sample is taken.
package divider

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"

	"github.com/ridgeline-sensing/bvd-gauge/socgauge"
)

// Reading is one raw ADC conversion: the counts, the reference voltage in
// millivolts and the resolution in bits, enough to scale counts to volts.
type Reading struct {
	Raw           int
	RefMillivolts int
	Bits          int
}

// AnalogReader is the ADC behind the divider.
type AnalogReader interface {
	Sample() (Reading, error)
}

// Config describes the divider circuit.
type Config struct {
	// OutputOhms is the resistor the ADC measures across, FullOhms the sum
	// of both divider resistors. Battery voltage = measured * full / output.
	OutputOhms uint32
	FullOhms   uint32

	// Curve maps battery millivolts to a charge percentage. Defaults to
	// socgauge.LiIon.
	Curve socgauge.DischargeCurve

	// PowerGate, if set, connects the divider to the battery only while
	// sampling. GateActiveLow inverts the drive polarity.
	PowerGate     gpio.PinIO
	GateActiveLow bool
}

// Sensor takes one measurement cycle at a time and keeps the most recent
// voltage and state of charge. The stored sample is guarded so the D-Bus and
// HTTP surfaces can read it while the sampling loop runs.
type Sensor struct {
	reader AnalogReader
	cfg    Config

	mu      sync.Mutex
	raw     int
	voltage int // millivolts
	percent int
}

// New checks the divider configuration and parks the power gate in its
// inactive state. Configuration errors here are fatal, there is no point
// starting a sampling loop without a working circuit description.
func New(reader AnalogReader, cfg Config) (*Sensor, error) {
	if reader == nil {
		return nil, fmt.Errorf("no analog reader")
	}
	if cfg.OutputOhms == 0 || cfg.FullOhms == 0 {
		return nil, fmt.Errorf("divider resistor values not set (output=%d, full=%d)", cfg.OutputOhms, cfg.FullOhms)
	}
	if cfg.FullOhms < cfg.OutputOhms {
		return nil, fmt.Errorf("full resistance %d below output resistance %d", cfg.FullOhms, cfg.OutputOhms)
	}
	if cfg.Curve == nil {
		cfg.Curve = socgauge.LiIon
	}
	s := &Sensor{reader: reader, cfg: cfg}
	if cfg.PowerGate != nil {
		if err := cfg.PowerGate.Out(s.gateLevel(false)); err != nil {
			return nil, fmt.Errorf("failed to configure power gate %s: %w", cfg.PowerGate, err)
		}
	}
	return s, nil
}

func (s *Sensor) gateLevel(active bool) gpio.Level {
	if s.cfg.GateActiveLow {
		return gpio.Level(!active)
	}
	return gpio.Level(active)
}

// Fetch runs one measurement cycle: gate on, sample, scale, estimate, gate
// off. On a failed sample the previous voltage and percent are kept and the
// error is returned for this cycle only. The gate is driven inactive on
// every exit path; a failure to release it wins over the sample error.
func (s *Sensor) Fetch() error {
	if s.cfg.PowerGate != nil {
		if err := s.cfg.PowerGate.Out(s.gateLevel(true)); err != nil {
			return fmt.Errorf("failed to enable power gate: %w", err)
		}
	}

	reading, readErr := s.reader.Sample()
	if readErr == nil {
		s.store(reading)
	} else {
		readErr = fmt.Errorf("failed to read ADC: %w", readErr)
	}

	if s.cfg.PowerGate != nil {
		if err := s.cfg.PowerGate.Out(s.gateLevel(false)); err != nil {
			return fmt.Errorf("failed to disable power gate: %w", err)
		}
	}
	return readErr
}

func (s *Sensor) store(r Reading) {
	measured := scaleToMillivolts(r)
	millivolts := int(uint64(measured) * uint64(s.cfg.FullOhms) / uint64(s.cfg.OutputOhms))
	percent := s.cfg.Curve.Estimate(millivolts)

	s.mu.Lock()
	s.raw = r.Raw
	s.voltage = millivolts
	s.percent = percent
	s.mu.Unlock()
}

func scaleToMillivolts(r Reading) int {
	if r.Bits <= 0 {
		return 0
	}
	return int(int64(r.Raw) * int64(r.RefMillivolts) >> uint(r.Bits))
}

// Voltage returns the last battery voltage as whole volts plus microvolts.
func (s *Sensor) Voltage() (volts, microvolts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voltage / 1000, (s.voltage % 1000) * 1000
}

// Millivolts returns the last battery voltage in millivolts.
func (s *Sensor) Millivolts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voltage
}

// StateOfCharge returns the last charge estimate in whole percent. The
// fractional part is always zero.
func (s *Sensor) StateOfCharge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.percent
}

// Raw returns the last raw ADC count.
func (s *Sensor) Raw() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raw
}
