// Package simchip emulates a Microchip 23x serial SRAM on the byte level so
// the driver can be exercised without hardware.
package simchip

import (
	"errors"

	"github.com/BertoldVdb/spisram/sram"
)

var (
	ErrorNestedTransaction = errors.New("transaction already started")
	ErrorNoTransaction     = errors.New("no transaction started")
	ErrorBusMode           = errors.New("unsupported bus settings")
)

const pageSize = 32

type phase int

const (
	phaseCommand phase = iota
	phaseAddress
	phaseData
	phaseModeWrite
	phaseModeRead
	phaseIgnore
)

// Chip implements both sram.Bus and sram.ChipSelect.
type Chip struct {
	mem       []byte
	addrBytes int
	mode      byte

	open  bool
	level byte

	inTx     bool
	selected bool
	settings sram.Settings

	phase    phase
	cmd      byte
	addr     uint32
	addrLeft int

	Transactions int
	Transfers    int
}

// New returns a chip of the given capacity in its power-on byte mode. The
// capacity must be a power of two.
func New(capacity uint32) *Chip {
	c := &Chip{
		mem:       make([]byte, capacity),
		addrBytes: 2,
		mode:      sram.ModeByte,
	}

	if capacity > 64*1024 {
		c.addrBytes = 3
	}
	return c
}

// NewOpen models a bus with no chip attached; every transfer reads level.
func NewOpen(level byte) *Chip {
	return &Chip{
		open:  true,
		level: level,
	}
}

func (c *Chip) Capacity() uint32 {
	return uint32(len(c.mem))
}

func (c *Chip) Mode() byte {
	return c.mode
}

func (c *Chip) Settings() sram.Settings {
	return c.settings
}

// Memory returns a copy of the array.
func (c *Chip) Memory() []byte {
	out := make([]byte, len(c.mem))
	copy(out, c.mem)
	return out
}

// Load overwrites the array from the start without using the bus.
func (c *Chip) Load(data []byte) int {
	return copy(c.mem, data)
}

func (c *Chip) Begin(s sram.Settings) error {
	if c.inTx {
		return ErrorNestedTransaction
	}
	if s.Mode != 0 && s.Mode != 3 {
		return ErrorBusMode
	}
	if !s.MSBFirst {
		return ErrorBusMode
	}

	c.settings = s
	c.inTx = true
	return nil
}

func (c *Chip) End() error {
	if !c.inTx {
		return ErrorNoTransaction
	}

	c.inTx = false
	return nil
}

func (c *Chip) Set(high bool) error {
	if high {
		c.selected = false
		return nil
	}

	if !c.selected {
		c.Transactions++
	}
	c.selected = true
	c.phase = phaseCommand
	return nil
}

func (c *Chip) mask(addr uint32) uint32 {
	return addr & uint32(len(c.mem)-1)
}

func (c *Chip) next() {
	switch c.mode {
	case sram.ModeSequential:
		c.addr = c.mask(c.addr + 1)
	case sram.ModePage:
		c.addr = c.addr&^(pageSize-1) | (c.addr+1)&(pageSize-1)
	default:
		/* Byte mode: one data byte per transaction */
		c.phase = phaseIgnore
	}
}

func (c *Chip) Transfer(out byte) (byte, error) {
	if !c.inTx {
		return 0, ErrorNoTransaction
	}

	c.Transfers++
	if c.open {
		return c.level, nil
	}
	if !c.selected {
		return 0xFF, nil
	}

	switch c.phase {
	case phaseCommand:
		c.cmd = out
		switch out {
		case 0x02, 0x03:
			c.phase = phaseAddress
			c.addr = 0
			c.addrLeft = c.addrBytes
		case 0x01:
			c.phase = phaseModeWrite
		case 0x05:
			c.phase = phaseModeRead
		default:
			c.phase = phaseIgnore
		}

	case phaseAddress:
		c.addr = c.addr<<8 | uint32(out)
		c.addrLeft--
		if c.addrLeft == 0 {
			c.addr = c.mask(c.addr)
			c.phase = phaseData
		}

	case phaseData:
		if c.cmd == 0x03 {
			value := c.mem[c.addr]
			c.next()
			return value, nil
		}
		c.mem[c.addr] = out
		c.next()

	case phaseModeWrite:
		c.mode = out & 0xC0
		c.phase = phaseIgnore

	case phaseModeRead:
		return c.mode, nil
	}

	/* Output is released while the chip is listening */
	return 0xFF, nil
}
