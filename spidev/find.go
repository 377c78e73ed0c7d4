package spidev

import (
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Node is one spidev character device.
type Node struct {
	Path       string
	Bus        int
	ChipSelect int
	Driver     string
}

func parseName(name string) (int, int, bool) {
	if !strings.HasPrefix(name, "spidev") {
		return 0, 0, false
	}

	parts := strings.SplitN(name[6:], ".", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}

	bus, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return 0, 0, false
	}

	cs, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return 0, 0, false
	}

	return int(bus), int(cs), true
}

func findIn(class string, dev string) ([]Node, error) {
	entries, err := os.ReadDir(class)
	if err != nil {
		return nil, err
	}

	var results []Node
	for _, m := range entries {
		name := m.Name()

		bus, cs, ok := parseName(name)
		if !ok {
			continue
		}

		node := Node{
			Path:       path.Join(dev, name),
			Bus:        bus,
			ChipSelect: cs,
		}

		/* The controller driver is informative only */
		if dst, err := os.Readlink(path.Join(class, name, "device", "driver")); err == nil {
			node.Driver = path.Base(dst)
		}

		results = append(results, node)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Bus != results[j].Bus {
			return results[i].Bus < results[j].Bus
		}
		return results[i].ChipSelect < results[j].ChipSelect
	})

	return results, nil
}

// Find lists the spidev nodes registered with the kernel.
func Find() ([]Node, error) {
	return findIn("/sys/class/spidev", "/dev")
}
