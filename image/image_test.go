package image

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestCRC(t *testing.T) {
	/* CRC-32 without final xor and reflected input only */
	if result, correct := crcCalculateBlock([]byte("123456789")), uint32(0x9b63d02c); result != correct {
		t.Errorf("CRC Error: %08x!=%08x", result, correct)
	}

	/* CRC-16/CCITT-FALSE check value */
	if result, correct := crcCalculateHeader([]byte("123456789")), uint16(0x29b1); result != correct {
		t.Errorf("Header CRC Error: %04x!=%04x", result, correct)
	}
}

func getRandomBuf(length int) []byte {
	out := make([]byte, length)
	rand.Read(out)
	return out
}

func testBuildExtract(t *testing.T, capacity int, addrBytes int) {
	payload := getRandomBuf(capacity)

	output := Build(payload, addrBytes)

	payload2, addrBytes2, err := Extract(output)
	if err != nil {
		t.Error("Failed to extract data from image:", err)
		return
	}

	if addrBytes != addrBytes2 {
		t.Error("Wrong address width extracted")
	}

	if !bytes.Equal(payload, payload2) {
		t.Error("Extracted payload is not equal to the input")
	}
}

func TestBuildExtract(t *testing.T) {
	testBuildExtract(t, 8192, 2)
	testBuildExtract(t, 131072, 3)
}

func TestValidate(t *testing.T) {
	buf := Build(getRandomBuf(8192), 2)

	c := make([]byte, len(buf))
	copy(c, buf)

	if err := Validate(buf); err != nil {
		t.Error("Valid image rejected:", err)
	}

	if err := Validate(buf[:1300]); err != ErrorInvalidLength {
		t.Error("Truncated image:", err)
	}
	if err := Validate(buf[:8]); err != ErrorInvalidLength {
		t.Error("Short image:", err)
	}

	buf[6]++
	if err := Validate(buf); err != ErrorInvalidHeader {
		t.Error("Image with invalid header:", err)
	}
	buf[6]--

	buf[0x1000]++
	if err := Validate(buf); err != ErrorInvalidCRC {
		t.Error("Image with invalid crc:", err)
	}
	buf[0x1000]--

	if !bytes.Equal(c, buf) {
		t.Error("Buffer was modified during test")
	}
}
