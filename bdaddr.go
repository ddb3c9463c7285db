package wiihost

import "fmt"

// BDAddr is a 48-bit Bluetooth device address, stored host-native (MSB
// first) regardless of how it travels on the wire.
type BDAddr uint64

const bdAddrMask = 0xFFFFFFFFFFFF

// ParseBDAddrLE decodes a little-endian, 6-byte BD_ADDR as it appears in
// HCI command parameters and event payloads.
func ParseBDAddrLE(b []byte) BDAddr {
	var a uint64
	for i := 0; i < 6; i++ {
		a |= uint64(b[i]) << (8 * uint(i))
	}
	return BDAddr(a & bdAddrMask)
}

// PutLE encodes the address little-endian (LSB first) into b, which must
// be at least 6 bytes long.
func (a BDAddr) PutLE(b []byte) {
	v := uint64(a) & bdAddrMask
	for i := 0; i < 6; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

// Reversed returns the address with its six octets in reverse order, the
// Wii Balance Board's pairing shortcut for deriving a PIN from the host's
// own address.
func (a BDAddr) Reversed() [6]byte {
	var fwd [6]byte
	a.PutLE(fwd[:])
	var rev [6]byte
	for i := range fwd {
		rev[i] = fwd[len(fwd)-1-i]
	}
	return rev
}

// String renders the address in conventional colon-hex MAC notation,
// most-significant octet first.
func (a BDAddr) String() string {
	var b [6]byte
	a.PutLE(b[:])
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[5], b[4], b[3], b[2], b[1], b[0])
}
