package image

import (
	"encoding/binary"

	"github.com/sigurn/crc16"
	"github.com/snksoft/crc"
)

var crcTable *crc.Table
var headerTable *crc16.Table

func init() {
	params := *crc.CRC32
	params.FinalXor = 0
	params.ReflectOut = false
	crcTable = crc.NewTable(&params)

	headerTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)
}

func crcCalculateBlock(data []byte) uint32 {
	h := crc.NewHashWithTable(crcTable)
	h.Update(data)
	return h.CRC32()
}

func crcCalculateHeader(data []byte) uint16 {
	return crc16.Checksum(data, headerTable)
}

func crcWriteCheck(slice []byte, value uint32, doWrite bool) bool {
	if len(slice) < 4 {
		panic("slice length invalid")
	}

	orig := binary.BigEndian.Uint32(slice)
	if doWrite {
		binary.BigEndian.PutUint32(slice, value)
	}
	return orig == value
}
