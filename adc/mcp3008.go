// Package adc provides the ADC backends that read the divider output.
package adc

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/ridgeline-sensing/bvd-gauge/divider"
)

// MCP3008 reads one single-ended channel of the 10 bit SPI ADC.
type MCP3008 struct {
	conn          spi.Conn
	channel       int
	refMillivolts int
}

// NewMCP3008 connects to the ADC on the given SPI port. refMillivolts is the
// supply voltage of the chip, which is also its conversion reference.
func NewMCP3008(port spi.Port, channel, refMillivolts int) (*MCP3008, error) {
	if channel < 0 || channel > 7 {
		return nil, fmt.Errorf("mcp3008 channel %d out of range 0-7", channel)
	}
	if refMillivolts <= 0 {
		return nil, fmt.Errorf("mcp3008 reference voltage %dmV invalid", refMillivolts)
	}
	conn, err := port.Connect(physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mcp3008: %w", err)
	}
	return &MCP3008{conn: conn, channel: channel, refMillivolts: refMillivolts}, nil
}

// Sample triggers one conversion.
func (m *MCP3008) Sample() (divider.Reading, error) {
	tx := [3]byte{
		0x01,                       // start bit
		byte((8 + m.channel) << 4), // single-ended mode, channel select
		0x00,                       // clock out the remaining data bits
	}
	var rx [3]byte
	if err := m.conn.Tx(tx[:], rx[:]); err != nil {
		return divider.Reading{}, err
	}
	raw := int(rx[1]&0x03)<<8 | int(rx[2])
	return divider.Reading{Raw: raw, RefMillivolts: m.refMillivolts, Bits: 10}, nil
}
