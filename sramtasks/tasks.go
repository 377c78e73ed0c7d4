package sramtasks

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/BertoldVdb/spisram/image"
	"github.com/BertoldVdb/spisram/sram"
)

const chunkSize = 4096

var ErrorGeometryMismatch = errors.New("image does not match the detected chip")

// MismatchError reports the first byte that did not read back as written.
type MismatchError struct {
	Address  uint32
	Expected byte
	Actual   byte
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("verify failed at 0x%05X: expected 0x%02X, read 0x%02X", e.Address, e.Expected, e.Actual)
}

type Tasks struct {
	dev *sram.Driver

	Progress func(done, total uint32)
	LogFunc  func(format string, params ...any)
}

func New(dev *sram.Driver) *Tasks {
	return &Tasks{
		dev: dev,
	}
}

func (t *Tasks) log(format string, params ...any) {
	if t.LogFunc != nil {
		t.LogFunc(format, params...)
	}
}

func (t *Tasks) progress(done, total uint32) {
	if t.Progress != nil {
		t.Progress(done, total)
	}
}

// ReadAll copies the whole chip in chunks.
func (t *Tasks) ReadAll() ([]byte, error) {
	capacity := t.dev.Capacity()
	if capacity == 0 {
		return nil, sram.ErrorNotDetected
	}

	out := make([]byte, capacity)
	for addr := uint32(0); addr < capacity; addr += chunkSize {
		end := min(addr+chunkSize, capacity)
		if _, err := t.dev.Read(addr, out[addr:end]); err != nil {
			return nil, err
		}
		t.progress(end, capacity)
	}

	return out, nil
}

func (t *Tasks) writeAll(data []byte) error {
	capacity := uint32(len(data))
	for addr := uint32(0); addr < capacity; addr += chunkSize {
		end := min(addr+chunkSize, capacity)
		if _, err := t.dev.Write(addr, data[addr:end]); err != nil {
			return err
		}
		t.progress(end, capacity)
	}

	return nil
}

func (t *Tasks) verify(data []byte) error {
	rb, err := t.ReadAll()
	if err != nil {
		return err
	}

	if bytes.Equal(rb, data) {
		return nil
	}

	for i := range data {
		if rb[i] != data[i] {
			return &MismatchError{Address: uint32(i), Expected: data[i], Actual: rb[i]}
		}
	}
	return nil
}

// Dump returns an image of the full chip contents.
func (t *Tasks) Dump() ([]byte, error) {
	data, err := t.ReadAll()
	if err != nil {
		return nil, err
	}

	t.log("Dumped %d bytes", len(data))
	return image.Build(data, t.dev.AddressBytes()), nil
}

// Restore writes an image back. The image must come from a chip of the same
// size.
func (t *Tasks) Restore(img []byte, verify bool) error {
	data, addrBytes, err := image.Extract(img)
	if err != nil {
		return err
	}

	if uint32(len(data)) != t.dev.Capacity() || addrBytes != t.dev.AddressBytes() {
		return fmt.Errorf("%w: image has %d bytes, chip has %d", ErrorGeometryMismatch, len(data), t.dev.Capacity())
	}

	if err := t.writeAll(data); err != nil {
		return err
	}
	t.log("Restored %d bytes", len(data))

	if verify {
		return t.verify(data)
	}
	return nil
}

// Test fills the chip with pattern and checks every byte. A short pattern
// is repeated, the chip is left holding it.
func (t *Tasks) Test(pattern []byte) error {
	capacity := t.dev.Capacity()
	if capacity == 0 {
		return sram.ErrorNotDetected
	}
	if len(pattern) == 0 {
		return errors.New("empty test pattern")
	}

	data := make([]byte, capacity)
	for i := range data {
		data[i] = pattern[i%len(pattern)]
	}

	if err := t.writeAll(data); err != nil {
		return err
	}
	if err := t.verify(data); err != nil {
		return err
	}

	t.log("Pattern %x verified over %d bytes", pattern, capacity)
	return nil
}

// March runs the address-in-address test: every 32 bit word holds its own
// address, then its complement, which catches shorted address lines.
func (t *Tasks) March() error {
	capacity := t.dev.Capacity()
	if capacity == 0 {
		return sram.ErrorNotDetected
	}

	for _, invert := range []bool{false, true} {
		for addr := uint32(0); addr < capacity; addr += 4 {
			word := addr
			if invert {
				word = ^addr
			}
			if _, err := sram.Put(t.dev, addr, word); err != nil {
				return err
			}
		}

		for addr := uint32(0); addr < capacity; addr += 4 {
			want := addr
			if invert {
				want = ^addr
			}

			var word uint32
			if _, err := sram.Get(t.dev, addr, &word); err != nil {
				return err
			}
			if word != want {
				for i := uint32(0); i < 4; i++ {
					expected, actual := byte(want>>(8*i)), byte(word>>(8*i))
					if expected != actual {
						return &MismatchError{Address: addr + i, Expected: expected, Actual: actual}
					}
				}
			}
		}
		t.progress(capacity, capacity)
	}

	return nil
}
