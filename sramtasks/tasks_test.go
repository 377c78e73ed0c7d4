package sramtasks

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/BertoldVdb/spisram/image"
	"github.com/BertoldVdb/spisram/simchip"
	"github.com/BertoldVdb/spisram/sram"
)

/* stuckBus reads every bit 0 as set once armed */
type stuckBus struct {
	*simchip.Chip
	armed bool
}

func (s *stuckBus) Transfer(out byte) (byte, error) {
	in, err := s.Chip.Transfer(out)
	if s.armed {
		in |= 1
	}
	return in, err
}

func newTasks(t *testing.T, capacity uint32) (*Tasks, *simchip.Chip) {
	chip := simchip.New(capacity)

	content := make([]byte, capacity)
	rand.New(rand.NewSource(1)).Read(content)
	chip.Load(content)

	d, err := sram.New(chip, chip)
	if err != nil {
		t.Fatal(err)
	}
	return New(d), chip
}

func TestDumpRestore(t *testing.T) {
	src, srcChip := newTasks(t, 65536)

	var calls int
	src.Progress = func(done, total uint32) {
		calls++
		if done > total || total != 65536 {
			t.Errorf("Progress %d/%d", done, total)
		}
	}

	img, err := src.Dump()
	if err != nil {
		t.Fatal(err)
	}
	if calls == 0 {
		t.Error("No progress reported")
	}
	if err := image.Validate(img); err != nil {
		t.Fatal("Dump is not a valid image:", err)
	}

	dst, dstChip := newTasks(t, 65536)
	dstChip.Load(make([]byte, 65536))

	if err := dst.Restore(img, true); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(srcChip.Memory(), dstChip.Memory()) {
		t.Error("Restored memory differs")
	}
}

func TestRestoreMismatch(t *testing.T) {
	src, _ := newTasks(t, 8192)
	img, err := src.Dump()
	if err != nil {
		t.Fatal(err)
	}

	dst, _ := newTasks(t, 131072)
	if err := dst.Restore(img, false); !errors.Is(err, ErrorGeometryMismatch) {
		t.Error("Restore onto larger chip:", err)
	}

	img[len(img)-1]++
	if err := src.Restore(img, false); err != image.ErrorInvalidCRC {
		t.Error("Restore of corrupt image:", err)
	}
}

func TestPattern(t *testing.T) {
	tasks, chip := newTasks(t, 16384)

	if err := tasks.Test([]byte{0x55, 0xAA, 0x0F}); err != nil {
		t.Fatal(err)
	}
	if mem := chip.Memory(); mem[3] != 0x55 || mem[16383] != 0x55 {
		t.Error("Pattern not left in memory")
	}

	if err := tasks.Test(nil); err == nil {
		t.Error("Empty pattern accepted")
	}
}

func TestPatternStuckBit(t *testing.T) {
	chip := simchip.New(8192)
	bus := &stuckBus{Chip: chip}

	d, err := sram.New(bus, chip)
	if err != nil {
		t.Fatal(err)
	}

	bus.armed = true
	err = New(d).Test([]byte{0x00})

	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatal("Stuck bit not found:", err)
	}
	if mismatch.Address != 0 || mismatch.Expected != 0 || mismatch.Actual != 1 {
		t.Errorf("Mismatch reported as %+v", mismatch)
	}
}

func TestMarch(t *testing.T) {
	for _, p := range sram.Profiles() {
		tasks, _ := newTasks(t, p.Capacity)
		if err := tasks.March(); err != nil {
			t.Errorf("%s: %v", p.Name, err)
		}
	}
}

func TestUndetected(t *testing.T) {
	chip := simchip.New(8192)
	d, err := sram.NewUndetected(chip, chip)
	if err != nil {
		t.Fatal(err)
	}

	tasks := New(d)
	if _, err := tasks.Dump(); err != sram.ErrorNotDetected {
		t.Error("Dump:", err)
	}
	if err := tasks.March(); err != sram.ErrorNotDetected {
		t.Error("March:", err)
	}
}
