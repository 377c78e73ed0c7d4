package sram

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrorDetectionFailed   = errors.New("no supported SRAM detected")
	ErrorNotDetected       = errors.New("SRAM capacity is not known")
	ErrorOversizedTransfer = errors.New("transfer is larger than the SRAM")
	ErrorUnsupportedValue  = errors.New("value does not have a fixed size")
	ErrorNegativeOffset    = errors.New("negative offset")
)

type Driver struct {
	bus Bus
	cs  ChipSelect

	profile Profile

	LogFunc func(format string, params ...any)
}

func (d *Driver) log(format string, params ...any) {
	if d.LogFunc != nil {
		d.LogFunc(format, params...)
	}
}

// NewUndetected deselects the chip but does not probe it. Memory operations
// return ErrorNotDetected until Detect succeeds.
func NewUndetected(bus Bus, cs ChipSelect) (*Driver, error) {
	d := &Driver{
		bus: bus,
		cs:  cs,
	}

	if err := cs.Set(true); err != nil {
		return nil, err
	}

	return d, nil
}

func New(bus Bus, cs ChipSelect) (*Driver, error) {
	d, err := NewUndetected(bus, cs)
	if err != nil {
		return nil, err
	}

	if err := d.Detect(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Driver) Profile() Profile {
	return d.profile
}

func (d *Driver) Capacity() uint32 {
	return d.profile.Capacity
}

func (d *Driver) AddressBytes() int {
	return d.profile.AddressBytes
}

func (d *Driver) Detected() bool {
	return d.profile.Capacity > 0
}

func command(cmd byte, addr uint32, width int) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], addr)

	out := make([]byte, 1, 1+width)
	out[0] = cmd
	return append(out, buf[4-width:]...)
}

func (d *Driver) shift(header []byte, tx []byte, rx []byte) error {
	for _, m := range header {
		if _, err := d.bus.Transfer(m); err != nil {
			return err
		}
	}

	for _, m := range tx {
		if _, err := d.bus.Transfer(m); err != nil {
			return err
		}
	}

	for i := range rx {
		value, err := d.bus.Transfer(0)
		if err != nil {
			return err
		}
		rx[i] = value
	}

	return nil
}

/* frame runs one transaction: select, header, tx bytes out, rx bytes in,
 * deselect. The chip is always deselected again, even on error. */
func (d *Driver) frame(header []byte, tx []byte, rx []byte) error {
	if err := d.bus.Begin(BusSettings); err != nil {
		return err
	}

	if err := d.cs.Set(false); err != nil {
		d.bus.End()
		return err
	}

	err := d.shift(header, tx, rx)
	csErr := d.cs.Set(true)
	endErr := d.bus.End()

	if err != nil {
		return err
	}
	if csErr != nil {
		return csErr
	}
	return endErr
}

func (d *Driver) readRaw(addr uint32, width int, buf []byte) error {
	return d.frame(command(cmdRead, addr, width), nil, buf)
}

func (d *Driver) writeRaw(addr uint32, width int, buf []byte) error {
	return d.frame(command(cmdWrite, addr, width), buf, nil)
}

func (d *Driver) ReadMode() (byte, error) {
	var mode [1]byte
	err := d.frame([]byte{cmdReadMode}, nil, mode[:])
	return mode[0], err
}

func (d *Driver) writeMode(mode byte) error {
	return d.frame([]byte{cmdWriteMode, mode & modeMask}, nil, nil)
}

// SetMode programs the mode register. Address wraparound is only tracked in
// sequential mode, so any other mode leaves the driver undetected.
func (d *Driver) SetMode(mode byte) error {
	if err := d.writeMode(mode); err != nil {
		return err
	}

	if mode&modeMask != ModeSequential {
		d.profile = Profile{}
	}
	return nil
}

/* probe writes a two byte marker at the top of a chip of the given size. In
 * sequential mode the second byte lands on address 0 if the chip wraps there.
 *
 * A 1Mbit chip probed with two address bytes takes the first data byte as the
 * last address byte. The first marker byte is therefore always zero, matching
 * the dummy byte clocked out while saving, and the restore is split so both
 * chip widths get their previous contents back. */
func (d *Driver) probe(capacity uint32, width int) (bool, error) {
	var first, after [1]byte
	var saved [2]byte
	top := capacity - 1

	if err := d.readRaw(0, width, first[:]); err != nil {
		return false, err
	}
	if err := d.readRaw(top, width, saved[:]); err != nil {
		return false, err
	}

	if err := d.writeRaw(top, width, []byte{0, ^first[0]}); err != nil {
		return false, err
	}

	if err := d.readRaw(0, width, after[:]); err != nil {
		return false, err
	}

	if err := d.writeRaw(top, width, []byte{0, saved[1]}); err != nil {
		return false, err
	}
	if err := d.writeRaw(top, width, saved[:1]); err != nil {
		return false, err
	}

	return after[0] != first[0], nil
}

// Detect puts the chip in sequential mode and finds its capacity by looking
// for the first size at which writes alias back to address 0.
func (d *Driver) Detect() error {
	d.profile = Profile{}

	if err := d.writeMode(ModeSequential); err != nil {
		return err
	}

	mode, err := d.ReadMode()
	if err != nil {
		return err
	}
	if mode&modeMask != ModeSequential {
		return fmt.Errorf("%w: mode register reads %02x", ErrorDetectionFailed, mode)
	}

	for _, m := range profiles {
		wraps, err := d.probe(m.Capacity, m.AddressBytes)
		if err != nil {
			return err
		}

		if wraps {
			d.profile = m
			d.log("Detected %s SRAM: %d bytes, %d address bytes", m.Name, m.Capacity, m.AddressBytes)
			return nil
		}
	}

	return ErrorDetectionFailed
}

func (d *Driver) check(addr uint32, length int) (uint32, error) {
	if d.profile.Capacity == 0 {
		return 0, ErrorNotDetected
	}
	if uint64(length) > uint64(d.profile.Capacity) {
		return 0, fmt.Errorf("%w: %d > %d bytes", ErrorOversizedTransfer, length, d.profile.Capacity)
	}

	return addr % d.profile.Capacity, nil
}

func (d *Driver) advance(addr uint32, length int) uint32 {
	return uint32((uint64(addr) + uint64(length)) % uint64(d.profile.Capacity))
}

// Read fills buf starting at addr, wrapping at the end of the chip, and
// returns the address following the last byte read.
func (d *Driver) Read(addr uint32, buf []byte) (uint32, error) {
	addr, err := d.check(addr, len(buf))
	if err != nil {
		return 0, err
	}

	if err := d.readRaw(addr, d.profile.AddressBytes, buf); err != nil {
		return 0, err
	}

	return d.advance(addr, len(buf)), nil
}

func (d *Driver) Write(addr uint32, buf []byte) (uint32, error) {
	addr, err := d.check(addr, len(buf))
	if err != nil {
		return 0, err
	}

	if err := d.writeRaw(addr, d.profile.AddressBytes, buf); err != nil {
		return 0, err
	}

	return d.advance(addr, len(buf)), nil
}

// Clear sets every byte of the chip to value, one byte per transaction.
func (d *Driver) Clear(value byte) error {
	if d.profile.Capacity == 0 {
		return ErrorNotDetected
	}

	buf := []byte{value}
	for addr := uint32(0); addr < d.profile.Capacity; addr++ {
		if _, err := d.Write(addr, buf); err != nil {
			return err
		}
	}

	return nil
}

func (d *Driver) clip(length int, off int64) (int, error) {
	if d.profile.Capacity == 0 {
		return 0, ErrorNotDetected
	}
	if off < 0 {
		return 0, ErrorNegativeOffset
	}
	if off >= int64(d.profile.Capacity) {
		return 0, io.EOF
	}

	if remaining := int64(d.profile.Capacity) - off; int64(length) > remaining {
		return int(remaining), io.EOF
	}
	return length, nil
}

// ReadAt implements io.ReaderAt over the chip without wraparound.
func (d *Driver) ReadAt(p []byte, off int64) (int, error) {
	n, err := d.clip(len(p), off)
	if n == 0 {
		return 0, err
	}

	if _, rerr := d.Read(uint32(off), p[:n]); rerr != nil {
		return 0, rerr
	}
	return n, err
}

// WriteAt implements io.WriterAt over the chip without wraparound.
func (d *Driver) WriteAt(p []byte, off int64) (int, error) {
	n, err := d.clip(len(p), off)
	if err == io.EOF {
		err = io.ErrShortWrite
	}
	if n == 0 {
		return 0, err
	}

	if _, werr := d.Write(uint32(off), p[:n]); werr != nil {
		return 0, werr
	}
	return n, err
}
