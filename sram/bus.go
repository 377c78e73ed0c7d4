package sram

// Settings are the transaction parameters handed to Bus.Begin.
type Settings struct {
	ClockHz  int64
	Mode     int
	MSBFirst bool
}

// BusSettings is used for every transaction. The whole family runs in SPI
// mode 0 up to 20MHz.
var BusSettings = Settings{
	ClockHz:  8000000,
	Mode:     0,
	MSBFirst: true,
}

// Bus is a synchronous serial bus that exchanges one byte at a time.
type Bus interface {
	Begin(s Settings) error
	Transfer(out byte) (byte, error)
	End() error
}

// ChipSelect drives the active low select line of one chip.
type ChipSelect interface {
	Set(high bool) error
}
