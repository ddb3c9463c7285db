package wiihost

import "testing"

// eventFrame packs a complete H4 event frame: {0x04, code, len, payload...}.
func eventFrame(code byte, payload []byte) []byte {
	f := make([]byte, 3+len(payload))
	f[0] = h4TypeEvent
	f[1] = code
	f[2] = byte(len(payload))
	copy(f[3:], payload)
	return f
}

func commandCompletePayload(opcode uint16, status byte, extra ...byte) []byte {
	p := make([]byte, 4+len(extra))
	p[0] = 1
	putUint16LE(p[1:3], opcode)
	p[3] = status
	copy(p[4:], extra)
	return p
}

func connectionCompletePayload(status byte, handle uint16, addr BDAddr) []byte {
	p := make([]byte, 11)
	p[0] = status
	putUint16LE(p[1:3], handle)
	addr.PutLE(p[3:9])
	return p
}

func remoteNameCompletePayload(addr BDAddr, name string) []byte {
	p := make([]byte, 7+248)
	p[0] = 0
	addr.PutLE(p[1:7])
	copy(p[7:], name)
	return p
}

func inquiryResultPayload(addr BDAddr, cod uint32) []byte {
	p := make([]byte, 1+14)
	p[0] = 1
	addr.PutLE(p[1:7])
	p[7] = 0x00 // PSRM
	putUint24LE(p[10:13], cod)
	return p
}

// signalFrame packs a complete H4 ACL frame carrying one L2CAP signaling
// PDU addressed to the signaling CID.
func signalFrame(handle uint16, code, identifier byte, body []byte) []byte {
	l2capLen := 4 + len(body)
	frame := make([]byte, 1+4+4+l2capLen)
	frame[0] = h4TypeACL
	packACLHeader(frame[1:5], handle, pbFirstNonFlushable, bfPointToPoint, uint16(4+l2capLen))
	putUint16LE(frame[5:7], uint16(l2capLen))
	putUint16LE(frame[7:9], signalingCID)
	l2capSignalHeader(frame[9:13], code, identifier, uint16(len(body)))
	copy(frame[13:], body)
	return frame
}

func connectionResponseBodyBytes(destCID, sourceCID, result, status uint16) []byte {
	b := make([]byte, 8)
	putUint16LE(b[0:2], destCID)
	putUint16LE(b[2:4], sourceCID)
	putUint16LE(b[4:6], result)
	putUint16LE(b[6:8], status)
	return b
}

func configurationRequestBodyBytes(destCID, mtu uint16) []byte {
	b := make([]byte, 8)
	putUint16LE(b[0:2], destCID)
	putUint16LE(b[2:4], 0)
	opt := mtuOption(mtu)
	copy(b[4:8], opt[:])
	return b
}

func configurationResponseBodyBytes(sourceCID, mtu uint16) []byte {
	b := make([]byte, 10)
	putUint16LE(b[0:2], sourceCID)
	putUint16LE(b[2:4], 0)
	putUint16LE(b[4:6], 0)
	opt := mtuOption(mtu)
	copy(b[6:10], opt[:])
	return b
}

func dataFrame(handle, cid uint16, payload []byte) []byte {
	frame := make([]byte, 1+4+4+len(payload))
	frame[0] = h4TypeACL
	packACLHeader(frame[1:5], handle, pbFirstNonFlushable, bfPointToPoint, uint16(4+len(payload)))
	putUint16LE(frame[5:7], uint16(len(payload)))
	putUint16LE(frame[7:9], cid)
	copy(frame[9:], payload)
	return frame
}

// driveInitChain answers every step of the boot sequence in order,
// leaving the station ready.
func driveInitChain(t *testing.T, s *Station, localAddr BDAddr) {
	t.Helper()
	steps := []uint16{opReset, opReadBDAddr, opWriteLocalName, opWriteClassOfDevice, opWriteScanEnable}
	for _, op := range steps {
		s.Process()
		var extra []byte
		if op == opReadBDAddr {
			extra = make([]byte, 6)
			localAddr.PutLE(extra)
		}
		s.Receive(eventFrame(evtCommandComplete, commandCompletePayload(op, 0, extra...)))
		s.Process()
	}
}

func TestStationInitChainReachesReady(t *testing.T) {
	tr := NewMemoryTransport()
	var events []Event
	s, err := NewStation(tr, WithEventHandler(func(e Event) { events = append(events, e) }))
	if err != nil {
		t.Fatalf("NewStation: %v", err)
	}
	driveInitChain(t, s, 0x001122334455)

	if !s.engine.ready {
		t.Fatal("engine not ready after full init chain")
	}
	frames := tr.Frames()
	if len(frames) != 5 {
		t.Fatalf("got %d TX frames during init, want 5", len(frames))
	}
	wantOpcodes := []uint16{opReset, opReadBDAddr, opWriteLocalName, opWriteClassOfDevice, opWriteScanEnable}
	for i, f := range frames {
		if f[0] != h4TypeCommand {
			t.Fatalf("frame %d: type = %#x, want command", i, f[0])
		}
		if got := uint16LE(f[1:3]); got != wantOpcodes[i] {
			t.Fatalf("frame %d: opcode = %#04x, want %#04x", i, got, wantOpcodes[i])
		}
	}
}

func TestStationDiscoveryToConnect(t *testing.T) {
	tr := NewMemoryTransport()
	var events []Event
	s, err := NewStation(tr, WithEventHandler(func(e Event) { events = append(events, e) }))
	if err != nil {
		t.Fatalf("NewStation: %v", err)
	}
	driveInitChain(t, s, 0x001122334455)

	if !s.Scan() {
		t.Fatal("Scan failed")
	}
	s.Process()

	boardAddr := ParseBDAddrLE([]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66})
	s.Receive(eventFrame(evtInquiryResult, inquiryResultPayload(boardAddr, wiimoteClassOfDevice)))
	s.Process()
	s.Process() // drain the REMOTE_NAME_REQUEST this triggers

	s.Receive(eventFrame(evtRemoteNameComplete, remoteNameCompletePayload(boardAddr, balanceBoardName)))
	s.Process()
	s.Process() // drain CREATE_CONNECTION

	frames := tr.Frames()
	last := frames[len(frames)-1]
	if uint16LE(last[1:3]) != opCreateConnection {
		t.Fatalf("expected CREATE_CONNECTION as last command, got opcode %#04x", uint16LE(last[1:3]))
	}

	if len(events) != 1 {
		t.Fatalf("got %d events, want just ScanStarted (inquiry-result and remote-name are HCI-internal, not app Events), got %+v", len(events), events)
	}
	if _, ok := events[0].(ScanStarted); !ok {
		t.Fatalf("events[0] = %#v, want ScanStarted", events[0])
	}
}

func TestStationFullBalanceBoardLifecycle(t *testing.T) {
	tr := NewMemoryTransport()
	var events []Event
	s, err := NewStation(tr, WithEventHandler(func(e Event) { events = append(events, e) }))
	if err != nil {
		t.Fatalf("NewStation: %v", err)
	}
	driveInitChain(t, s, 0x001122334455)

	const handle uint16 = 0x0041
	boardAddr := ParseBDAddrLE([]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66})

	s.engine.pendingOutbound[boardAddr] = struct{}{}
	s.Receive(eventFrame(evtConnectionComplete, connectionCompletePayload(0, handle, boardAddr)))
	s.Process()
	s.Process() // drain AUTH + two L2CAP CONNECTION REQUESTs

	frames := tr.Frames()
	if len(frames) < 3 {
		t.Fatalf("expected at least 3 frames after connection-complete, got %d", len(frames))
	}

	// The two outbound L2CAP channels were assigned localCID 0x0040 (HID
	// control) and 0x0041 (HID interrupt), in that call order.
	controlCID := uint16(0x0040)
	interruptCID := uint16(0x0041)

	establishChannel := func(localCID uint16, peerCID uint16) {
		s.Receive(signalFrame(handle, l2capConnectionResponse, 1, connectionResponseBodyBytes(peerCID, localCID, 0, 0)))
		s.Process()
		s.Process() // drain our CONFIGURATION REQUEST

		s.Receive(signalFrame(handle, l2capConfigurationResponse, 2, configurationResponseBodyBytes(localCID, defaultOutboundMTU)))
		s.Process()

		s.Receive(signalFrame(handle, l2capConfigurationRequest, 3, configurationRequestBodyBytes(localCID, defaultOutboundMTU)))
		s.Process()
		s.Process() // drain our CONFIGURATION RESPONSE
	}

	establishChannel(controlCID, 0x0050)
	establishChannel(interruptCID, 0x0051)

	foundConnected := false
	for _, e := range events {
		if _, ok := e.(BalanceBoardConnected); ok {
			foundConnected = true
		}
	}
	if !foundConnected {
		t.Fatalf("expected BalanceBoardConnected after both channels established, events=%+v", events)
	}
	if _, ok := s.boards[handle]; !ok {
		t.Fatal("expected a Board registered for handle after establishment")
	}

	// Feed the calibration dialog through the established HID interrupt
	// channel and confirm a calibrated reading surfaces as an Event.
	for _, report := range makeCalibrationSequence() {
		s.Receive(dataFrame(handle, interruptCID, report))
		s.Process()
		s.Process()
	}

	dataReport := make([]byte, 15)
	dataReport[0], dataReport[1] = hidInputPrefix, hidReportData
	putBE16(dataReport[4:6], 15000)
	putBE16(dataReport[6:8], 15000)
	putBE16(dataReport[8:10], 15000)
	putBE16(dataReport[10:12], 15000)
	dataReport[12] = 20
	dataReport[14] = 200
	s.Receive(dataFrame(handle, interruptCID, dataReport))
	s.Process()

	var reading *BalanceBoardData
	for _, e := range events {
		if d, ok := e.(BalanceBoardData); ok {
			cp := d
			reading = &cp
		}
	}
	if reading == nil {
		t.Fatal("expected a BalanceBoardData event after the calibration dialog and one 0x34 report")
	}
	if reading.TR != 17000 || reading.BatteryLevel != 200 {
		t.Fatalf("reading = %+v", reading)
	}

	// Tear the board down: the peer disconnects the HID interrupt channel,
	// which should surface BalanceBoardDisconnected and issue an HCI
	// disconnect for the whole link.
	s.Receive(signalFrame(handle, l2capDisconnectRequest, 4, disconnectBodyBytes(interruptCID, 0x0051)))
	s.Process()
	s.Process() // drain our DISCONNECT RESPONSE and the resulting HCI disconnect

	foundDisconnected := false
	for _, e := range events {
		if d, ok := e.(BalanceBoardDisconnected); ok && d.Handle == handle {
			foundDisconnected = true
		}
	}
	if !foundDisconnected {
		t.Fatalf("expected BalanceBoardDisconnected, events=%+v", events)
	}
	if _, ok := s.boards[handle]; ok {
		t.Fatal("expected board to be removed from the station after disconnect")
	}

	frames = tr.Frames()
	last := frames[len(frames)-1]
	if last[0] != h4TypeCommand || uint16LE(last[1:3]) != opDisconnect {
		t.Fatalf("expected a trailing HCI DISCONNECT command, got %#v", last)
	}
}

func disconnectBodyBytes(destCID, sourceCID uint16) []byte {
	b := make([]byte, 4)
	putUint16LE(b[0:2], destCID)
	putUint16LE(b[2:4], sourceCID)
	return b
}
