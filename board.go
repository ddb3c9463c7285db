package wiihost

// HID report IDs and the 0xA1/0xA2 input/output prefixes used by the Wii
// extension protocol.
const (
	hidOutputPrefix byte = 0xA2
	hidInputPrefix  byte = 0xA1

	hidReportWriteMemory = 0x16
	hidReportReadMemory  = 0x17
	hidReportLEDs        = 0x11
	hidReportMode        = 0x12

	hidReportStatus = 0x20
	hidReportRead   = 0x21
	hidReportAck    = 0x22
	hidReportData   = 0x34

	extensionAttachedBit = 0x02

	extensionAddressSpace byte = 0xA4

	regDecryptStep1   uint32 = 0x0000F0
	regDecryptStep2   uint32 = 0x0000FB
	regExtensionID    uint32 = 0x0000FA
	regCalibrationLow uint32 = 0x000024
	regCalibrationHi  uint32 = 0x000034
	regReferenceTemp  uint32 = 0x000060
)

var extensionIDMagic = [8]byte{0x00, 0xFA, 0x00, 0x00, 0xA4, 0x20, 0x04, 0x02}

// Board is the per-connected-balance-board driver state: the six-step
// memory-read calibration dialog, the resulting calibration table, and
// the raw-to-calibrated weight transform.
type Board struct {
	Handle uint16

	send func(payload []byte) bool

	queryState           int
	calibration          [12]uint16
	referenceTemperature byte
}

// NewBoard constructs a driver for handle that writes HID commands
// through send (normally Engine.SendData bound to the HID interrupt PSM).
// It immediately kicks off state 0 by waiting for the first status report.
func NewBoard(handle uint16, send func(payload []byte) bool) *Board {
	return &Board{Handle: handle, send: send}
}

func (b *Board) writeMemory(addressSpace byte, offset uint32, data []byte) bool {
	var report [23]byte
	report[0] = hidOutputPrefix
	report[1] = hidReportWriteMemory
	report[2] = addressSpace
	putUint24LE(report[3:6], offset) // packed little-endian, the same way readMemory packs it.
	report[6] = byte(len(data))
	copy(report[7:23], data)
	return b.send(report[:])
}

func (b *Board) readMemory(addressSpace byte, offset uint32, size uint16) bool {
	var report [8]byte
	report[0] = hidOutputPrefix
	report[1] = hidReportReadMemory
	report[2] = addressSpace
	putUint24LE(report[3:6], offset)
	putUint16LE(report[6:8], size)
	return b.send(report[:])
}

// SetLEDs sets the four front LEDs from a bitmask, low nibble of byte 3.
func (b *Board) SetLEDs(bits [4]bool) bool {
	var mask byte
	for i, on := range bits {
		if on {
			mask |= 1 << uint(i)
		}
	}
	report := []byte{hidOutputPrefix, hidReportLEDs, mask}
	return b.send(report)
}

// SetReportingMode arms or disarms continuous reporting at the given mode.
func (b *Board) SetReportingMode(mode byte, continuous bool) bool {
	var cont byte
	if continuous {
		cont = 0x04
	}
	report := []byte{hidOutputPrefix, hidReportMode, cont, mode}
	return b.send(report)
}

// Feed processes one inbound HID input report (0xA1-prefixed) and
// advances the calibration dialog or, once calibration is complete,
// decodes a continuous sensor frame. It returns a populated
// BalanceBoardData and true only when a 0x34 report with a valid
// reference temperature is decoded.
func (b *Board) Feed(report []byte) (BalanceBoardData, bool) {
	if len(report) < 2 || report[0] != hidInputPrefix {
		return BalanceBoardData{}, false
	}
	reportID := report[1]
	payload := report[2:]

	switch reportID {
	case hidReportStatus:
		b.onStatus(payload)
	case hidReportAck:
		b.onAck(payload)
	case hidReportRead:
		b.onReadResponse(payload)
	case hidReportData:
		return b.onData(payload)
	}
	return BalanceBoardData{}, false
}

func (b *Board) onStatus(payload []byte) {
	if b.queryState != 0 || len(payload) < 3 {
		return
	}
	if payload[2]&extensionAttachedBit == 0 {
		return
	}
	b.writeMemory(extensionAddressSpace, regDecryptStep1, []byte{0x55})
	b.queryState = 1
}

func (b *Board) onAck(payload []byte) {
	// payload is {buttons:u16, ackedOpcode:u8, error:u8}.
	if len(payload) < 4 {
		return
	}
	ackedOpcode, errorFlag := payload[2], payload[3]
	if ackedOpcode != hidReportWriteMemory || errorFlag != 0 {
		if b.queryState == 1 || b.queryState == 2 {
			b.queryState = 0
		}
		return
	}
	switch b.queryState {
	case 1:
		b.writeMemory(extensionAddressSpace, regDecryptStep2, []byte{0x00})
		b.queryState = 2
	case 2:
		b.readMemory(extensionAddressSpace, regExtensionID, 6)
		b.queryState = 3
	}
}

// readResponseData extracts the up-to-16 data bytes carried by a
// read-memory response report: {sizeAndError:u8, offset:u16, data[16]}.
func readResponseData(payload []byte) ([]byte, bool) {
	if len(payload) < 19 {
		return nil, false
	}
	return payload[3:19], true
}

func (b *Board) onReadResponse(payload []byte) {
	data, ok := readResponseData(payload)
	if !ok {
		return
	}
	switch b.queryState {
	case 3:
		if string(data[:8]) != string(extensionIDMagic[:]) {
			b.queryState = 0
			return
		}
		b.readMemory(extensionAddressSpace, regCalibrationLow, 16)
		b.queryState = 4
	case 4:
		for i := 0; i < 8; i++ {
			b.calibration[i] = beUint16(data[i*2 : i*2+2])
		}
		b.readMemory(extensionAddressSpace, regCalibrationHi, 8)
		b.queryState = 5
	case 5:
		for i := 0; i < 4; i++ {
			b.calibration[8+i] = beUint16(data[i*2 : i*2+2])
		}
		b.readMemory(extensionAddressSpace, regReferenceTemp, 2)
		b.queryState = 6
	case 6:
		b.referenceTemperature = data[0]
		b.SetReportingMode(hidReportData, false)
		b.queryState = 0
	}
}

// onData decodes a continuous report: four big-endian u16 strain values
// followed by temperature and battery level. BalanceBoardData is only
// produced once calibration (state 6) has stored a reference temperature.
func (b *Board) onData(payload []byte) (BalanceBoardData, bool) {
	if b.referenceTemperature == 0 || len(payload) < 13 {
		return BalanceBoardData{}, false
	}
	tr := beUint16(payload[2:4])
	br := beUint16(payload[4:6])
	tl := beUint16(payload[6:8])
	bl := beUint16(payload[8:10])
	temp := payload[10]
	battery := payload[12]

	return BalanceBoardData{
		Handle:               b.Handle,
		TR:                   interpolate(tr, b.calibration[0], b.calibration[4], b.calibration[8]),
		BR:                   interpolate(br, b.calibration[1], b.calibration[5], b.calibration[9]),
		TL:                   interpolate(tl, b.calibration[2], b.calibration[6], b.calibration[10]),
		BL:                   interpolate(bl, b.calibration[3], b.calibration[7], b.calibration[11]),
		Temperature:          temp,
		ReferenceTemperature: b.referenceTemperature,
		BatteryLevel:         battery,
	}, true
}

func beUint16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

// interpolate converts a raw strain-gauge reading to a calibrated weight
// in grams (kilograms times 1000), piecewise-linear between the 0/17/34 kg calibration
// points.
func interpolate(raw, cal0, cal17, cal34 uint16) uint16 {
	var kg float64
	switch {
	case raw < cal0:
		kg = 0
	case raw < cal17:
		kg = 17 * float64(raw-cal0) / float64(cal17-cal0)
	default:
		kg = 17 + 17*float64(raw-cal17)/float64(cal34-cal17)
	}
	return uint16(kg*1000 + 0.5)
}
