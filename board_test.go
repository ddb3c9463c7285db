package wiihost

import "testing"

func TestInterpolateAtCalibrationPoints(t *testing.T) {
	cal0, cal17, cal34 := uint16(10000), uint16(15000), uint16(20000)

	if got := interpolate(cal0, cal0, cal17, cal34); got != 0 {
		t.Fatalf("interpolate at 0kg = %d, want 0", got)
	}
	if got := interpolate(cal17, cal0, cal17, cal34); got != 17000 {
		t.Fatalf("interpolate at 17kg = %d, want 17000", got)
	}
	if got := interpolate(cal34, cal0, cal17, cal34); got != 34000 {
		t.Fatalf("interpolate at 34kg = %d, want 34000", got)
	}
}

func TestInterpolateBelowZeroClampsToZero(t *testing.T) {
	if got := interpolate(5000, 10000, 15000, 20000); got != 0 {
		t.Fatalf("interpolate below cal0 = %d, want 0", got)
	}
}

func TestInterpolateMonotone(t *testing.T) {
	cal0, cal17, cal34 := uint16(10000), uint16(15000), uint16(20000)
	prev := uint16(0)
	for raw := cal0; raw < cal34; raw += 200 {
		got := interpolate(raw, cal0, cal17, cal34)
		if got < prev {
			t.Fatalf("interpolate not monotone at raw=%d: got %d < prev %d", raw, got, prev)
		}
		prev = got
	}
}

func fakeSink(sent *[][]byte) func([]byte) bool {
	return func(p []byte) bool {
		cp := append([]byte(nil), p...)
		*sent = append(*sent, cp)
		return true
	}
}

func makeCalibrationSequence() [][]byte {
	status := []byte{hidInputPrefix, hidReportStatus, 0x00, 0x00, extensionAttachedBit}
	ack := func() []byte { return []byte{hidInputPrefix, hidReportAck, 0x00, 0x00, hidReportWriteMemory, 0x00} }
	readResp := func(data []byte) []byte {
		r := make([]byte, 21)
		r[0], r[1] = hidInputPrefix, hidReportRead
		copy(r[5:21], data)
		return r
	}
	extID := readResp(extensionIDMagic[:])
	cal0_17 := readResp([]byte{
		0x27, 0x10, 0x27, 0x10, 0x27, 0x10, 0x27, 0x10, // 0kg: 10000 each
		0x3A, 0x98, 0x3A, 0x98, 0x3A, 0x98, 0x3A, 0x98, // 17kg: 15000 each
	})
	cal34 := readResp([]byte{0x4E, 0x20, 0x4E, 0x20, 0x4E, 0x20, 0x4E, 0x20}) // 20000 each
	refTemp := readResp([]byte{20, 0})

	return [][]byte{status, ack(), ack(), extID, cal0_17, cal34, refTemp}
}

func TestBoardCalibrationDialogAndDataReport(t *testing.T) {
	var sent [][]byte
	b := NewBoard(0x0041, fakeSink(&sent))

	for _, report := range makeCalibrationSequence() {
		if _, ok := b.Feed(report); ok {
			t.Fatalf("unexpected BalanceBoardData during calibration")
		}
	}

	if b.referenceTemperature != 20 {
		t.Fatalf("referenceTemperature = %d, want 20", b.referenceTemperature)
	}
	if b.calibration != [12]uint16{10000, 10000, 10000, 10000, 15000, 15000, 15000, 15000, 20000, 20000, 20000, 20000} {
		t.Fatalf("calibration table = %v", b.calibration)
	}

	last := sent[len(sent)-1]
	if last[0] != hidOutputPrefix || last[1] != hidReportMode || last[3] != hidReportData {
		t.Fatalf("expected final command to be SET_REPORTING_MODE(0x34), got %v", last)
	}

	dataReport := make([]byte, 15)
	dataReport[0], dataReport[1] = hidInputPrefix, hidReportData
	putBE16(dataReport[4:6], 15000)
	putBE16(dataReport[6:8], 15000)
	putBE16(dataReport[8:10], 15000)
	putBE16(dataReport[10:12], 15000)
	dataReport[12] = 20
	dataReport[14] = 200

	reading, ok := b.Feed(dataReport)
	if !ok {
		t.Fatal("expected a populated BalanceBoardData")
	}
	want := BalanceBoardData{Handle: 0x0041, TR: 17000, BR: 17000, TL: 17000, BL: 17000, Temperature: 20, ReferenceTemperature: 20, BatteryLevel: 200}
	if reading != want {
		t.Fatalf("reading = %+v, want %+v", reading, want)
	}
}

func TestBoardResetsOnMismatchedExtensionID(t *testing.T) {
	var sent [][]byte
	b := NewBoard(0x0041, fakeSink(&sent))

	seq := makeCalibrationSequence()
	b.Feed(seq[0]) // status
	b.Feed(seq[1]) // ack 1
	b.Feed(seq[2]) // ack 2

	bogus := make([]byte, 21)
	bogus[0], bogus[1] = hidInputPrefix, hidReportRead
	if _, ok := b.Feed(bogus); ok {
		t.Fatal("unexpected data from mismatched extension id")
	}
	if b.queryState != 0 {
		t.Fatalf("queryState = %d after mismatched extension id, want reset to 0", b.queryState)
	}
}

func putBE16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}
