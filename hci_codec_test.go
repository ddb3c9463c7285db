package wiihost

import "testing"

// checkCommandFrame verifies the invariants from the testable-properties
// list: H4 type byte, opcode, and declared parameter length.
func checkCommandFrame(t *testing.T, frame []byte, n int, wantOpcode uint16, wantParamLen int) {
	t.Helper()
	if n != commandFrameLen(wantParamLen) {
		t.Fatalf("frame length = %d, want %d", n, commandFrameLen(wantParamLen))
	}
	if frame[0] != h4TypeCommand {
		t.Fatalf("type byte = %#x, want 0x01", frame[0])
	}
	if got := uint16LE(frame[1:3]); got != wantOpcode {
		t.Fatalf("opcode = %#04x, want %#04x", got, wantOpcode)
	}
	if int(frame[3]) != wantParamLen {
		t.Fatalf("param len byte = %d, want %d", frame[3], wantParamLen)
	}
}

func TestBuildReset(t *testing.T) {
	buf := make([]byte, 16)
	n := buildReset(buf)
	checkCommandFrame(t, buf, n, opReset, 0)
}

func TestBuildWriteLocalName(t *testing.T) {
	buf := make([]byte, 4+248)
	n := buildWriteLocalName(buf, "ESP32-BT-WIIP")
	checkCommandFrame(t, buf, n, opWriteLocalName, 248)
	if string(buf[4:17]) != "ESP32-BT-WIIP" {
		t.Fatalf("name not packed correctly: %q", buf[4:17])
	}
	for _, b := range buf[4+13 : 4+248] {
		if b != 0 {
			t.Fatalf("expected NUL padding, found %#x", b)
		}
	}
}

func TestBuildWriteClassOfDevice(t *testing.T) {
	buf := make([]byte, 16)
	n := buildWriteClassOfDevice(buf, 0x040500)
	checkCommandFrame(t, buf, n, opWriteClassOfDevice, 3)
	if got := uint24LE(buf[4:7]); got != 0x040500 {
		t.Fatalf("CoD = %#06x, want 0x040500", got)
	}
}

func TestBuildInquiry(t *testing.T) {
	buf := make([]byte, 16)
	n := buildInquiry(buf, 0x9E8B33, 0x10, 0x00)
	checkCommandFrame(t, buf, n, opInquiry, 5)
	if got := uint24LE(buf[4:7]); got != 0x9E8B33 {
		t.Fatalf("LAP = %#08x, want 0x9E8B33", got)
	}
	if buf[7] != 0x10 {
		t.Fatalf("length = %#x, want 0x10", buf[7])
	}
}

func TestBuildRemoteNameRequest(t *testing.T) {
	buf := make([]byte, 16)
	addr := ParseBDAddrLE([]byte{0x55, 0x44, 0x33, 0x22, 0x11, 0x00})
	n := buildRemoteNameRequest(buf, addr, 0x01, 0x0000)
	checkCommandFrame(t, buf, n, opRemoteNameRequest, 10)
	if got := ParseBDAddrLE(buf[4:10]); got != addr {
		t.Fatalf("bdaddr round-trip mismatch: got %v want %v", got, addr)
	}
	if buf[10] != 0x01 {
		t.Fatalf("psrm = %#x, want 0x01", buf[10])
	}
}

func TestBuildCreateConnection(t *testing.T) {
	buf := make([]byte, 20)
	addr := ParseBDAddrLE([]byte{0x55, 0x44, 0x33, 0x22, 0x11, 0x00})
	n := buildCreateConnection(buf, addr, 0x0008, 0x00, 0x0000, 0x00)
	checkCommandFrame(t, buf, n, opCreateConnection, 13)
}

func TestBuildPINCodeReply(t *testing.T) {
	buf := make([]byte, 32)
	addr := BDAddr(0x001122334455)
	pin := addr.Reversed()
	n := buildPINCodeReply(buf, addr, pin[:])
	checkCommandFrame(t, buf, n, opPINCodeReply, 23)
	if buf[10] != 6 {
		t.Fatalf("pin length = %d, want 6", buf[10])
	}
	for _, b := range buf[11+6 : 11+16] {
		if b != 0 {
			t.Fatalf("expected zero-padded pin tail, found %#x", b)
		}
	}
}

func TestBuildDisconnectMasksHandleTo12Bits(t *testing.T) {
	buf := make([]byte, 16)
	n := buildDisconnect(buf, 0xFFFF, 0x15)
	checkCommandFrame(t, buf, n, opDisconnect, 3)
	if got := uint16LE(buf[4:6]); got != 0x0FFF {
		t.Fatalf("handle = %#x, want masked 0x0FFF", got)
	}
	if buf[6] != 0x15 {
		t.Fatalf("reason = %#x, want 0x15", buf[6])
	}
}

func TestBDAddrWireRoundTrip(t *testing.T) {
	for _, want := range []BDAddr{0, 1, 0x001122334455, 0xFFFFFFFFFFFF} {
		var b [6]byte
		want.PutLE(b[:])
		if got := ParseBDAddrLE(b[:]); got != want {
			t.Fatalf("round trip: got %#012x want %#012x", uint64(got), uint64(want))
		}
	}
}
