package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/ridgeline-sensing/bvd-gauge/socgauge"
)

const (
	adcTypeMCP3008 = "mcp3008"
	adcTypeADS1115 = "ads1115"
)

// Config is the build-time description of the sensing circuit, read from a
// YAML file. Resistor values and the ADC wiring are fixed properties of the
// board, not runtime knobs.
type Config struct {
	OutputOhms uint32
	FullOhms   uint32

	ADCType       string
	ADCChannel    int
	SPIDev        string
	I2CDev        string
	I2CAddr       uint16
	RefMillivolts int

	PowerGatePin  string
	GateActiveLow bool

	SampleRateSeconds int
	Curve             socgauge.DischargeCurve
}

func ParseConfigFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("adc.type", adcTypeMCP3008)
	v.SetDefault("adc.channel", 0)
	v.SetDefault("adc.ref-millivolts", 3300)
	v.SetDefault("adc.i2c-addr", 0x48)
	v.SetDefault("sample-rate-seconds", 120)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	conf := &Config{
		OutputOhms:        v.GetUint32("output-ohms"),
		FullOhms:          v.GetUint32("full-ohms"),
		ADCType:           v.GetString("adc.type"),
		ADCChannel:        v.GetInt("adc.channel"),
		SPIDev:            v.GetString("adc.spi-dev"),
		I2CDev:            v.GetString("adc.i2c-dev"),
		I2CAddr:           uint16(v.GetUint32("adc.i2c-addr")),
		RefMillivolts:     v.GetInt("adc.ref-millivolts"),
		PowerGatePin:      v.GetString("power-gate.pin"),
		GateActiveLow:     v.GetBool("power-gate.active-low"),
		SampleRateSeconds: v.GetInt("sample-rate-seconds"),
	}

	if conf.OutputOhms == 0 || conf.FullOhms == 0 {
		return nil, fmt.Errorf("output-ohms and full-ohms must both be set")
	}
	if conf.ADCType != adcTypeMCP3008 && conf.ADCType != adcTypeADS1115 {
		return nil, fmt.Errorf("unknown adc type %q", conf.ADCType)
	}
	if conf.SampleRateSeconds <= 0 {
		return nil, fmt.Errorf("sample-rate-seconds must be positive")
	}

	if v.IsSet("curve.millivolts") || v.IsSet("curve.percents") {
		curve, err := socgauge.CurveFromSlices(
			v.GetIntSlice("curve.millivolts"),
			v.GetIntSlice("curve.percents"))
		if err != nil {
			return nil, fmt.Errorf("bad discharge curve in config: %w", err)
		}
		conf.Curve = curve
	} else {
		conf.Curve = socgauge.LiIon
	}

	return conf, nil
}
