package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BertoldVdb/spisram/periphbus"
	"github.com/BertoldVdb/spisram/simchip"
	"github.com/BertoldVdb/spisram/spidev"
	"github.com/BertoldVdb/spisram/sram"
	"github.com/BertoldVdb/spisram/sramtasks"
	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/inancgumus/screen"
)

type Context struct {
	closers []io.Closer
}

func (c *Context) Close() {
	for _, m := range c.closers {
		m.Close()
	}
}

var CLI struct {
	Backend string `default:"spidev" enum:"spidev,periph,sim" env:"SPISRAM_BACKEND" help:"Bus implementation (spidev, periph, sim)."`
	Dev     string `default:"/dev/spidev0.0" env:"SPISRAM_DEV" help:"spidev node, or periph SPI port name."`
	CS      string `name:"cs" default:"GPIO8" env:"SPISRAM_CS" help:"GPIO used as chip select."`
	SimSize uint32 `default:"131072" help:"Capacity of the simulated chip."`
	Verbose bool   `short:"v" help:"Log bus and driver activity."`

	Detect  DetectCmd  `cmd:"" help:"Detect the attached chip."`
	Read    ReadCmd    `cmd:"" help:"Hex dump a memory range."`
	Write   WriteCmd   `cmd:"" help:"Write hex bytes."`
	Fill    FillCmd    `cmd:"" help:"Repeat a hex pattern up to the end of memory."`
	Clear   ClearCmd   `cmd:"" help:"Set every byte to one value."`
	Dump    DumpCmd    `cmd:"" help:"Save the whole memory to an image file."`
	Restore RestoreCmd `cmd:"" help:"Write an image file back to memory."`
	Test    TestCmd    `cmd:"" help:"Run a destructive memory test."`
	Watch   WatchCmd   `cmd:"" help:"Repeatedly display a memory range."`
	List    ListCmd    `cmd:"" help:"List spidev nodes."`
}

var (
	good = color.New(color.FgGreen).SprintFunc()
	bad  = color.New(color.FgRed, color.Bold).SprintFunc()
	info = color.New(color.FgCyan).SprintFunc()
)

func logf(format string, params ...any) {
	if CLI.Verbose {
		log.Printf(format, params...)
	}
}

func parseNumber(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	return uint32(v), err
}

func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ReplaceAll(s, " ", ""), "0x")
	return hex.DecodeString(s)
}

func (c *Context) openBus() (sram.Bus, sram.ChipSelect, error) {
	switch CLI.Backend {
	case "sim":
		chip := simchip.New(CLI.SimSize)
		return chip, chip, nil

	case "periph":
		bus, pin, port, err := periphbus.Open(CLI.Dev, CLI.CS)
		if err != nil {
			return nil, nil, err
		}
		c.closers = append(c.closers, port)
		return bus, pin, nil
	}

	dev, err := spidev.Open(CLI.Dev)
	if err != nil {
		return nil, nil, err
	}
	dev.LogFunc = logf
	c.closers = append(c.closers, dev)

	pin, err := periphbus.OpenPin(CLI.CS)
	if err != nil {
		return nil, nil, err
	}
	return dev, pin, nil
}

func (c *Context) open() (*sram.Driver, error) {
	bus, cs, err := c.openBus()
	if err != nil {
		return nil, err
	}

	d, err := sram.NewUndetected(bus, cs)
	if err != nil {
		return nil, err
	}
	d.LogFunc = logf

	if err := d.Detect(); err != nil {
		return nil, err
	}
	return d, nil
}

func (c *Context) tasks() (*sramtasks.Tasks, error) {
	d, err := c.open()
	if err != nil {
		return nil, err
	}

	t := sramtasks.New(d)
	t.LogFunc = logf
	if CLI.Verbose {
		t.Progress = func(done, total uint32) {
			fmt.Fprintf(os.Stderr, "\r%6d / %6d bytes", done, total)
			if done == total {
				fmt.Fprintln(os.Stderr)
			}
		}
	}
	return t, nil
}

type DetectCmd struct{}

func (cmd *DetectCmd) Run(c *Context) error {
	d, err := c.open()
	if err != nil {
		return err
	}

	mode, err := d.ReadMode()
	if err != nil {
		return err
	}

	p := d.Profile()
	fmt.Printf("Chip:          %s\n", good(p.Name))
	fmt.Printf("Capacity:      %d bytes\n", p.Capacity)
	fmt.Printf("Address bytes: %d\n", p.AddressBytes)
	fmt.Printf("Mode register: %s\n", info(fmt.Sprintf("%02x", mode)))
	return nil
}

func readRange(d *sram.Driver, addrStr string, length uint32) (uint32, []byte, error) {
	addr, err := parseNumber(addrStr)
	if err != nil {
		return 0, nil, err
	}

	addr %= d.Capacity()
	buf := make([]byte, length)
	_, err = d.Read(addr, buf)
	return addr, buf, err
}

/* hexdump prints 16 bytes per line, addresses follow the wraparound */
func hexdump(w io.Writer, d *sram.Driver, addr uint32, buf []byte) {
	for len(buf) > 0 {
		n := min(16, len(buf))
		fmt.Fprintf(w, "%s  % x\n", info(fmt.Sprintf("%05x", addr)), buf[:n])
		addr = (addr + uint32(n)) % d.Capacity()
		buf = buf[n:]
	}
}

type ReadCmd struct {
	Address string `arg:"" help:"Start address, wraps at the end of memory."`
	Length  uint32 `arg:"" optional:"" default:"256" help:"Number of bytes."`
}

func (cmd *ReadCmd) Run(c *Context) error {
	d, err := c.open()
	if err != nil {
		return err
	}

	addr, buf, err := readRange(d, cmd.Address, cmd.Length)
	if err != nil {
		return err
	}

	hexdump(os.Stdout, d, addr, buf)
	return nil
}

type WriteCmd struct {
	Address string `arg:"" help:"Start address."`
	Data    string `arg:"" help:"Hex bytes."`
}

func (cmd *WriteCmd) Run(c *Context) error {
	addr, err := parseNumber(cmd.Address)
	if err != nil {
		return err
	}
	data, err := parseHex(cmd.Data)
	if err != nil {
		return err
	}

	d, err := c.open()
	if err != nil {
		return err
	}

	next, err := d.Write(addr, data)
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %d bytes, next address %s\n", len(data), good(fmt.Sprintf("0x%05x", next)))
	return nil
}

type FillCmd struct {
	Address string `arg:"" help:"Start address."`
	Pattern string `arg:"" help:"Hex pattern."`
}

func (cmd *FillCmd) Run(c *Context) error {
	addr, err := parseNumber(cmd.Address)
	if err != nil {
		return err
	}
	pattern, err := parseHex(cmd.Pattern)
	if err != nil {
		return err
	}

	d, err := c.open()
	if err != nil {
		return err
	}

	return sram.Fill(d, addr, pattern)
}

type ClearCmd struct {
	Value string `arg:"" optional:"" default:"0" help:"Byte value."`
}

func (cmd *ClearCmd) Run(c *Context) error {
	value, err := strconv.ParseUint(cmd.Value, 0, 8)
	if err != nil {
		return err
	}

	d, err := c.open()
	if err != nil {
		return err
	}

	return d.Clear(byte(value))
}

type DumpCmd struct {
	File string `arg:"" type:"path" help:"Output image."`
}

func (cmd *DumpCmd) Run(c *Context) error {
	t, err := c.tasks()
	if err != nil {
		return err
	}

	img, err := t.Dump()
	if err != nil {
		return err
	}

	return os.WriteFile(cmd.File, img, 0644)
}

type RestoreCmd struct {
	File     string `arg:"" type:"existingfile" help:"Image to write."`
	NoVerify bool   `help:"Skip reading the memory back."`
}

func (cmd *RestoreCmd) Run(c *Context) error {
	img, err := os.ReadFile(cmd.File)
	if err != nil {
		return err
	}

	t, err := c.tasks()
	if err != nil {
		return err
	}

	if err := t.Restore(img, !cmd.NoVerify); err != nil {
		return err
	}

	fmt.Println(good("Restore complete"))
	return nil
}

type TestCmd struct {
	Pattern string `default:"55aa" help:"Hex pattern for the fill test."`
	March   bool   `help:"Also run the address-in-address test."`
}

func (cmd *TestCmd) Run(c *Context) error {
	pattern, err := parseHex(cmd.Pattern)
	if err != nil {
		return err
	}

	t, err := c.tasks()
	if err != nil {
		return err
	}

	err = t.Test(pattern)
	if err == nil && cmd.March {
		err = t.March()
	}

	var mismatch *sramtasks.MismatchError
	if errors.As(err, &mismatch) {
		fmt.Println(bad("FAIL"), mismatch)
		return err
	}
	if err != nil {
		return err
	}

	fmt.Println(good("PASS"))
	return nil
}

type WatchCmd struct {
	Address  string        `arg:"" help:"Start address."`
	Length   uint32        `arg:"" optional:"" default:"256" help:"Number of bytes."`
	Interval time.Duration `default:"500ms" help:"Refresh interval."`
}

func (cmd *WatchCmd) Run(c *Context) error {
	d, err := c.open()
	if err != nil {
		return err
	}

	for {
		addr, buf, err := readRange(d, cmd.Address, cmd.Length)
		if err != nil {
			return err
		}

		screen.Clear()
		screen.MoveTopLeft()
		fmt.Printf("%s  %s\n\n", d.Profile().Name, time.Now().Format(time.TimeOnly))
		hexdump(os.Stdout, d, addr, buf)

		time.Sleep(cmd.Interval)
	}
}

type ListCmd struct{}

func (cmd *ListCmd) Run(c *Context) error {
	nodes, err := spidev.Find()
	if err != nil {
		return err
	}

	for _, m := range nodes {
		fmt.Printf("%s  bus %d cs %d  %s\n", good(m.Path), m.Bus, m.ChipSelect, m.Driver)
	}
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("spisram"),
		kong.Description("Microchip 23x serial SRAM tool"),
		kong.UsageOnError())

	c := &Context{}
	err := ctx.Run(c)
	c.Close()

	if err != nil {
		log.Fatalln(bad("Error:"), err)
	}
}
