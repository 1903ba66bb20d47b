package adc

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"

	"github.com/ridgeline-sensing/bvd-gauge/divider"
)

// DefaultADS1115Addr is the address with the ADDR pin tied to ground.
const DefaultADS1115Addr = 0x48

// ADS1115 register map.
const (
	ads1115RegConversion = 0x00
	ads1115RegConfig     = 0x01
)

// Config register fields for a single-shot, single-ended conversion.
const (
	ads1115OsSingle    uint16 = 0x8000 // write: start conversion, read: conversion done
	ads1115MuxSingle0  uint16 = 0x4000 // AIN0 vs GND, +0x1000 per channel
	ads1115GainOne     uint16 = 0x0200 // +/- 4.096V full scale
	ads1115ModeSingle  uint16 = 0x0100
	ads1115DataRate128 uint16 = 0x0080
	ads1115CompDisable uint16 = 0x0003
)

const (
	ads1115RefMillivolts = 4096
	// 16 bit signed result, only the positive half is usable single-ended.
	ads1115Bits = 15

	ads1115PollAttempts = 10
	ads1115PollInterval = 2 * time.Millisecond
)

// ADS1115 reads one single-ended channel of the 16 bit I2C ADC using
// single-shot conversions at the +/- 4.096V range.
type ADS1115 struct {
	dev     i2c.Dev
	channel int
}

func NewADS1115(bus i2c.Bus, addr uint16, channel int) (*ADS1115, error) {
	if channel < 0 || channel > 3 {
		return nil, fmt.Errorf("ads1115 channel %d out of range 0-3", channel)
	}
	if addr == 0 {
		addr = DefaultADS1115Addr
	}
	return &ADS1115{
		dev:     i2c.Dev{Bus: bus, Addr: addr},
		channel: channel,
	}, nil
}

// Sample starts a conversion, waits for the OS bit to report completion and
// reads the result.
func (a *ADS1115) Sample() (divider.Reading, error) {
	config := ads1115OsSingle |
		(ads1115MuxSingle0 + uint16(a.channel)<<12) |
		ads1115GainOne |
		ads1115ModeSingle |
		ads1115DataRate128 |
		ads1115CompDisable

	_, err := a.dev.Write([]byte{ads1115RegConfig, byte(config >> 8), byte(config)})
	if err != nil {
		return divider.Reading{}, fmt.Errorf("failed to start conversion: %w", err)
	}

	ready := false
	status := make([]byte, 2)
	for i := 0; i < ads1115PollAttempts; i++ {
		if err := a.dev.Tx([]byte{ads1115RegConfig}, status); err != nil {
			return divider.Reading{}, err
		}
		if uint16(status[0])<<8&ads1115OsSingle != 0 {
			ready = true
			break
		}
		time.Sleep(ads1115PollInterval)
	}
	if !ready {
		return divider.Reading{}, fmt.Errorf("conversion not ready after %d attempts", ads1115PollAttempts)
	}

	result := make([]byte, 2)
	if err := a.dev.Tx([]byte{ads1115RegConversion}, result); err != nil {
		return divider.Reading{}, err
	}
	raw := int(int16(uint16(result[0])<<8 | uint16(result[1])))
	if raw < 0 {
		// Single-ended input, negative counts are noise around ground.
		raw = 0
	}
	return divider.Reading{Raw: raw, RefMillivolts: ads1115RefMillivolts, Bits: ads1115Bits}, nil
}
