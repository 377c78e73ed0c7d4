package sram

// Mode register values, only the two most significant bits are used
const (
	ModeByte       byte = 0x00
	ModePage       byte = 0x80
	ModeSequential byte = 0xC0

	modeMask byte = 0xC0
)

const (
	cmdWriteMode byte = 0x01
	cmdWrite     byte = 0x02
	cmdRead      byte = 0x03
	cmdReadMode  byte = 0x05
)

// Profile describes one member of the chip family.
type Profile struct {
	Name         string
	Capacity     uint32
	AddressBytes int
	Mode         byte
}

var profiles = []Profile{
	{Name: "23x640", Capacity: 8 * 1024, AddressBytes: 2, Mode: ModeSequential},
	{Name: "23x128", Capacity: 16 * 1024, AddressBytes: 2, Mode: ModeSequential},
	{Name: "23x256", Capacity: 32 * 1024, AddressBytes: 2, Mode: ModeSequential},
	{Name: "23x512/23LCV512", Capacity: 64 * 1024, AddressBytes: 2, Mode: ModeSequential},
	{Name: "23xx1024/23LCV1024", Capacity: 128 * 1024, AddressBytes: 3, Mode: ModeSequential},
}

// Profiles returns the supported chips in ascending capacity.
func Profiles() []Profile {
	out := make([]Profile, len(profiles))
	copy(out, profiles)
	return out
}

// ProfileFor returns the chip with exactly the given capacity.
func ProfileFor(capacity uint32) (Profile, bool) {
	for _, m := range profiles {
		if m.Capacity == capacity {
			return m, true
		}
	}
	return Profile{}, false
}
