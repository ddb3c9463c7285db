package wiihost

import "errors"

// HCI opcodes, packed as OGF<<10 | OCF, for the command set this stack
// emits. Names and values mirror the Bluetooth Core Spec HCI command
// tables restricted to what legacy BR/EDR pairing and link setup needs,
// except that opRejectConnection reuses opAcceptConnection's 0x0409.
const (
	opReset                  uint16 = 0x0C03
	opReadBDAddr             uint16 = 0x1009
	opWriteLocalName         uint16 = 0x0C13
	opWriteClassOfDevice     uint16 = 0x0C24
	opWriteScanEnable        uint16 = 0x0C1A
	opInquiry                uint16 = 0x0401
	opRemoteNameRequest      uint16 = 0x0419
	opCreateConnection       uint16 = 0x0405
	opAuthenticationRequest  uint16 = 0x0411
	opAcceptConnection       uint16 = 0x0409
	opRejectConnection       uint16 = 0x0409
	opLinkKeyNegativeReply   uint16 = 0x040C
	opPINCodeReply           uint16 = 0x040D
	opDisconnect             uint16 = 0x0406
)

// ErrShortFrame is returned when a parser is handed fewer bytes than its
// fixed layout requires.
var ErrShortFrame = errors.New("wiihost: short frame")

// h4Type discriminates the single leading byte of every frame the
// controller transport exchanges.
const (
	h4TypeCommand byte = 0x01
	h4TypeACL     byte = 0x02
	h4TypeEvent   byte = 0x04
)

func putUint16LE(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func uint16LE(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func putUint24LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

func uint24LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

// writeCommand packs an H4 command frame {0x01, opcode-LE, paramLen,
// params...} into lease and returns the number of bytes written. lease
// must be at least 4+len(params) bytes.
func writeCommand(lease []byte, opcode uint16, params []byte) int {
	lease[0] = h4TypeCommand
	putUint16LE(lease[1:3], opcode)
	lease[3] = byte(len(params))
	copy(lease[4:], params)
	return 4 + len(params)
}

// commandFrameLen returns the total frame size for a command with the
// given parameter length.
func commandFrameLen(paramLen int) int { return 4 + paramLen }

// buildReset packs HCI_Reset, which carries no parameters.
func buildReset(lease []byte) int {
	return writeCommand(lease, opReset, nil)
}

// buildReadBDAddr packs HCI_Read_BD_ADDR, which carries no parameters.
func buildReadBDAddr(lease []byte) int {
	return writeCommand(lease, opReadBDAddr, nil)
}

// buildWriteLocalName packs HCI_Write_Local_Name: a 248-byte, NUL-padded
// name field.
func buildWriteLocalName(lease []byte, name string) int {
	var params [248]byte
	copy(params[:], name)
	return writeCommand(lease, opWriteLocalName, params[:])
}

// buildWriteClassOfDevice packs the 24-bit class-of-device value.
func buildWriteClassOfDevice(lease []byte, cod uint32) int {
	var params [3]byte
	putUint24LE(params[:], cod)
	return writeCommand(lease, opWriteClassOfDevice, params[:])
}

// buildWriteScanEnable packs the 1-byte scan-enable mode (3 = inquiry +
// page scan).
func buildWriteScanEnable(lease []byte, mode byte) int {
	return writeCommand(lease, opWriteScanEnable, []byte{mode})
}

// buildInquiry packs HCI_Inquiry: {lap:u24, len:u8, num:u8}.
func buildInquiry(lease []byte, lap uint32, length, numResponses byte) int {
	params := [5]byte{}
	putUint24LE(params[0:3], lap)
	params[3] = length
	params[4] = numResponses
	return writeCommand(lease, opInquiry, params[:])
}

// buildRemoteNameRequest packs {bdaddr:u48, psrm:u8, 0:u8, clkofs:u16}.
func buildRemoteNameRequest(lease []byte, addr BDAddr, psrm byte, clockOffset uint16) int {
	var params [10]byte
	addr.PutLE(params[0:6])
	params[6] = psrm
	params[7] = 0
	putUint16LE(params[8:10], clockOffset)
	return writeCommand(lease, opRemoteNameRequest, params[:])
}

// buildCreateConnection packs {bdaddr:u48, pkt:u16, psrm:u8, 0:u8,
// clkofs:u16, ars:u8}.
func buildCreateConnection(lease []byte, addr BDAddr, packetType uint16, psrm byte, clockOffset uint16, allowRoleSwitch byte) int {
	var params [13]byte
	addr.PutLE(params[0:6])
	putUint16LE(params[6:8], packetType)
	params[8] = psrm
	params[9] = 0
	putUint16LE(params[10:12], clockOffset)
	params[12] = allowRoleSwitch
	return writeCommand(lease, opCreateConnection, params[:])
}

// buildAuthenticationRequested packs {handle:u16} with the top 4 bits
// cleared.
func buildAuthenticationRequested(lease []byte, handle uint16) int {
	var params [2]byte
	putUint16LE(params[:], handle&0x0FFF)
	return writeCommand(lease, opAuthenticationRequest, params[:])
}

// buildAcceptConnection packs {bdaddr:u48, role:u8}.
func buildAcceptConnection(lease []byte, addr BDAddr, role byte) int {
	var params [7]byte
	addr.PutLE(params[0:6])
	params[6] = role
	return writeCommand(lease, opAcceptConnection, params[:])
}

// buildRejectConnection packs {bdaddr:u48, reason:u8}.
func buildRejectConnection(lease []byte, addr BDAddr, reason byte) int {
	var params [7]byte
	addr.PutLE(params[0:6])
	params[6] = reason
	return writeCommand(lease, opRejectConnection, params[:])
}

// buildLinkKeyNegativeReply packs {bdaddr:u48}.
func buildLinkKeyNegativeReply(lease []byte, addr BDAddr) int {
	var params [6]byte
	addr.PutLE(params[:])
	return writeCommand(lease, opLinkKeyNegativeReply, params[:])
}

// buildPINCodeReply packs {bdaddr:u48, len:u8, pin[16] zero-padded}.
func buildPINCodeReply(lease []byte, addr BDAddr, pin []byte) int {
	var params [23]byte
	addr.PutLE(params[0:6])
	params[6] = byte(len(pin))
	copy(params[7:23], pin)
	return writeCommand(lease, opPINCodeReply, params[:])
}

// buildDisconnect packs {handle:u16, reason:u8}.
func buildDisconnect(lease []byte, handle uint16, reason byte) int {
	var params [3]byte
	putUint16LE(params[0:2], handle&0x0FFF)
	params[2] = reason
	return writeCommand(lease, opDisconnect, params[:])
}
