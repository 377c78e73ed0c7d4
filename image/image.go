// Package image stores SRAM dumps in a file format that records the chip
// geometry and protects header and payload with checksums.
package image

import (
	"bytes"
	"encoding/binary"
	"errors"
)

/* Layout, big endian:
 *   0  magic "SRAM"
 *   4  version
 *   5  address bytes
 *   6  capacity (4 bytes)
 *  10  CRC-16 of bytes 0..9
 *  12  payload
 *   n  CRC-32 of the payload
 */
const (
	headerLength  = 12
	trailerLength = 4

	version = 1
)

var magic = []byte("SRAM")

var (
	ErrorInvalidLength = errors.New("image length not valid")
	ErrorInvalidHeader = errors.New("header is not valid")
	ErrorInvalidCRC    = errors.New("CRC is not valid")
)

func makeHeader(hdr []byte, capacity uint32, addrBytes int) {
	copy(hdr, magic)
	hdr[4] = version
	hdr[5] = byte(addrBytes)
	binary.BigEndian.PutUint32(hdr[6:], capacity)
	binary.BigEndian.PutUint16(hdr[10:], crcCalculateHeader(hdr[:10]))
}

func parseHeader(img []byte) (uint32, int, error) {
	if len(img) < headerLength+trailerLength {
		return 0, 0, ErrorInvalidLength
	}

	if !bytes.Equal(img[:4], magic) || img[4] != version {
		return 0, 0, ErrorInvalidHeader
	}
	if binary.BigEndian.Uint16(img[10:]) != crcCalculateHeader(img[:10]) {
		return 0, 0, ErrorInvalidHeader
	}

	capacity := binary.BigEndian.Uint32(img[6:])
	if uint64(len(img)) != uint64(capacity)+headerLength+trailerLength {
		return 0, 0, ErrorInvalidLength
	}

	return capacity, int(img[5]), nil
}

func Validate(img []byte) error {
	capacity, _, err := parseHeader(img)
	if err != nil {
		return err
	}

	payload := img[headerLength : headerLength+capacity]
	if !crcWriteCheck(img[headerLength+capacity:], crcCalculateBlock(payload), false) {
		return ErrorInvalidCRC
	}

	return nil
}

// Build wraps a full memory dump of a chip using addrBytes address bytes.
func Build(payload []byte, addrBytes int) []byte {
	img := make([]byte, headerLength+len(payload)+trailerLength)

	makeHeader(img, uint32(len(payload)), addrBytes)
	copy(img[headerLength:], payload)
	crcWriteCheck(img[headerLength+len(payload):], crcCalculateBlock(payload), true)

	return img
}

// Extract validates an image and returns its payload and address width.
func Extract(img []byte) ([]byte, int, error) {
	if err := Validate(img); err != nil {
		return nil, 0, err
	}

	_, addrBytes, _ := parseHeader(img)
	return img[headerLength : len(img)-trailerLength], addrBytes, nil
}
