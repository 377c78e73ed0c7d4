package spidev

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/BertoldVdb/spisram/sram"
	"golang.org/x/sys/unix"
)

const (
	SPI_CPHA      = 0x01
	SPI_CPOL      = 0x02
	SPI_LSB_FIRST = 0x08
	SPI_NO_CS     = 0x40

	SPI_IOC_WR_MODE          = 0x40016b01
	SPI_IOC_WR_LSB_FIRST     = 0x40016b02
	SPI_IOC_WR_BITS_PER_WORD = 0x40016b03
	SPI_IOC_WR_MAX_SPEED_HZ  = 0x40046b04

	SPI_IOC_MESSAGE_1 = 0x40206b00
)

type SPIIOCTransfer struct {
	TxBuf       uint64 // userspace pointer to data sent
	RxBuf       uint64 // userspace pointer to data received, or 0
	Len         uint32 // bytes in both buffers
	SpeedHz     uint32 // overrides the device default if non zero
	DelayUsecs  uint16 // delay after the last bit before deselect
	BitsPerWord uint8  // overrides the device default if non zero
	CSChange    uint8  // deselect between transfers
	TxNbits     uint8
	RxNbits     uint8
	WordDelay   uint8
	Pad         uint8
}

var ErrorNotOpen = errors.New("spidev is not open")

type Device struct {
	path string
	fd   int

	configured bool
	settings   sram.Settings

	LogFunc func(format string, params ...any)
}

func (s *Device) log(format string, params ...any) {
	if s.LogFunc != nil {
		s.LogFunc(format, params...)
	}
}

func Open(path string) (*Device, error) {
	s := &Device{
		path: path,
		fd:   -1,
	}

	var err error
	s.fd, err = unix.Open(path, unix.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return s, nil
}

func (s *Device) Close() error {
	if s.fd < 0 {
		return nil
	}

	fd := s.fd
	s.fd = -1

	return unix.Close(fd)
}

func (s *Device) ioctl(req uintptr, arg unsafe.Pointer) error {
	if s.fd < 0 {
		return ErrorNotOpen
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s.fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

/* The kernel chip select is released after every message, which would end
 * the frame after each byte, so it is disabled and the chip select is driven
 * as a separate line. */
func modeBits(settings sram.Settings) uint8 {
	mode := uint8(settings.Mode)&(SPI_CPHA|SPI_CPOL) | SPI_NO_CS
	if !settings.MSBFirst {
		mode |= SPI_LSB_FIRST
	}
	return mode
}

func (s *Device) configure(settings sram.Settings) error {
	mode := modeBits(settings)
	if err := s.ioctl(SPI_IOC_WR_MODE, unsafe.Pointer(&mode)); err != nil {
		return fmt.Errorf("set mode: %w", err)
	}

	bits := uint8(8)
	if err := s.ioctl(SPI_IOC_WR_BITS_PER_WORD, unsafe.Pointer(&bits)); err != nil {
		return fmt.Errorf("set word size: %w", err)
	}

	speed := uint32(settings.ClockHz)
	if err := s.ioctl(SPI_IOC_WR_MAX_SPEED_HZ, unsafe.Pointer(&speed)); err != nil {
		return fmt.Errorf("set speed: %w", err)
	}

	s.log("%s: mode %02x, %d Hz", s.path, mode, speed)
	s.settings = settings
	s.configured = true
	return nil
}

// Begin applies the settings when they differ from the previous transaction.
func (s *Device) Begin(settings sram.Settings) error {
	if !s.configured || s.settings != settings {
		if err := s.configure(settings); err != nil {
			return err
		}
	}

	return nil
}

func (s *Device) End() error {
	return nil
}

func (s *Device) Transfer(out byte) (byte, error) {
	var in byte

	xfer := SPIIOCTransfer{
		TxBuf:       uint64(uintptr(unsafe.Pointer(&out))),
		RxBuf:       uint64(uintptr(unsafe.Pointer(&in))),
		Len:         1,
		SpeedHz:     uint32(s.settings.ClockHz),
		BitsPerWord: 8,
	}
	err := s.ioctl(SPI_IOC_MESSAGE_1, unsafe.Pointer(&xfer))
	return in, err
}
