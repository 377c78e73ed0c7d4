// Package periphbus connects the driver to SPI ports and GPIO pins exposed by
// periph.io.
package periphbus

import (
	"errors"
	"fmt"

	"github.com/BertoldVdb/spisram/sram"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

var ErrorPinNotFound = errors.New("chip select pin not found")

// Bus adapts a periph SPI port. The port is connected on the first
// transaction and reconnected only when the settings change.
type Bus struct {
	port spi.Port
	conn spi.Conn

	settings sram.Settings
}

func NewBus(port spi.Port) *Bus {
	return &Bus{port: port}
}

func mode(s sram.Settings) spi.Mode {
	m := spi.Mode(s.Mode&3) | spi.NoCS
	if !s.MSBFirst {
		m |= spi.LSBFirst
	}
	return m
}

func (b *Bus) Begin(s sram.Settings) error {
	if b.conn != nil && b.settings == s {
		return nil
	}

	conn, err := b.port.Connect(physic.Frequency(s.ClockHz)*physic.Hertz, mode(s), 8)
	if err != nil {
		return err
	}

	b.conn = conn
	b.settings = s
	return nil
}

func (b *Bus) Transfer(out byte) (byte, error) {
	var in [1]byte
	err := b.conn.Tx([]byte{out}, in[:])
	return in[0], err
}

func (b *Bus) End() error {
	return nil
}

// Pin adapts a GPIO output as chip select.
type Pin struct {
	pin gpio.PinOut
}

func NewPin(pin gpio.PinOut) *Pin {
	return &Pin{pin: pin}
}

func (p *Pin) Set(high bool) error {
	if high {
		return p.pin.Out(gpio.High)
	}
	return p.pin.Out(gpio.Low)
}

// OpenPin initialises the host drivers and resolves a chip select pin by
// name, for use with another bus implementation.
func OpenPin(csName string) (*Pin, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}

	pin := gpioreg.ByName(csName)
	if pin == nil {
		return nil, fmt.Errorf("%w: %q", ErrorPinNotFound, csName)
	}

	return NewPin(pin), nil
}

// Open resolves the named SPI port and chip select pin. The returned closer
// releases the port.
func Open(spiName string, csName string) (*Bus, *Pin, spi.PortCloser, error) {
	pin, err := OpenPin(csName)
	if err != nil {
		return nil, nil, nil, err
	}

	port, err := spireg.Open(spiName)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open SPI port %q: %w", spiName, err)
	}

	return NewBus(port), pin, port, nil
}
