package sram

import (
	"bytes"
	"encoding/binary"
)

/* Values are stored in little endian byte order, the in-memory layout of the
 * microcontrollers these chips are usually attached to. */

func encode[T any](value T) ([]byte, error) {
	size := binary.Size(value)
	if size <= 0 {
		return nil, ErrorUnsupportedValue
	}

	var b bytes.Buffer
	b.Grow(size)
	if err := binary.Write(&b, binary.LittleEndian, value); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Put stores a fixed-size value at addr and returns the address following it.
func Put[T any](d *Driver, addr uint32, value T) (uint32, error) {
	buf, err := encode(value)
	if err != nil {
		return 0, err
	}

	return d.Write(addr, buf)
}

// Get loads a fixed-size value from addr and returns the address following it.
func Get[T any](d *Driver, addr uint32, value *T) (uint32, error) {
	size := binary.Size(value)
	if size <= 0 {
		return 0, ErrorUnsupportedValue
	}

	buf := make([]byte, size)
	next, err := d.Read(addr, buf)
	if err != nil {
		return 0, err
	}

	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, value); err != nil {
		return 0, err
	}
	return next, nil
}

// Fill repeats value from addr up to the end of the chip. Trailing bytes that
// cannot hold a whole value are left untouched.
func Fill[T any](d *Driver, addr uint32, value T) error {
	buf, err := encode(value)
	if err != nil {
		return err
	}

	addr, err = d.check(addr, len(buf))
	if err != nil {
		return err
	}

	capacity := uint64(d.profile.Capacity)
	for uint64(addr)+uint64(len(buf)) <= capacity {
		next, err := d.Write(addr, buf)
		if err != nil {
			return err
		}

		/* Wrapped to the start, memory is full */
		if next <= addr {
			break
		}
		addr = next
	}

	return nil
}
