package wiihost

// L2CAP signaling codes, carried on CID 0x0001.
const (
	l2capConnectionRequest     byte = 0x02
	l2capConnectionResponse    byte = 0x03
	l2capConfigurationRequest  byte = 0x04
	l2capConfigurationResponse byte = 0x05
	l2capDisconnectRequest     byte = 0x06
	l2capDisconnectResponse    byte = 0x07
)

const signalingCID uint16 = 0x0001

// ACL packet-boundary and broadcast flags this stack emits and accepts.
const (
	pbFirstNonFlushable byte = 0b10
	bfPointToPoint      byte = 0b00
)

// packACLHeader packs the 4-byte ACL header: {handle-lo, (handle>>8&0x0F)
// | PB<<4 | BF<<6, total-len-LE}. totalLen is the length of the L2CAP
// frame (header + payload) that follows.
func packACLHeader(b []byte, handle uint16, pb, bf byte, totalLen uint16) {
	h := handle & 0x0FFF
	b[0] = byte(h)
	b[1] = byte(h>>8) | (pb << 4) | (bf << 6)
	putUint16LE(b[2:4], totalLen)
}

// parseACLHeader unpacks the 4-byte ACL header.
func parseACLHeader(b []byte) (handle uint16, pb, bf byte, totalLen uint16, err error) {
	if len(b) < 4 {
		return 0, 0, 0, 0, ErrShortFrame
	}
	handle = (uint16(b[0]) | uint16(b[1]&0x0F)<<8) & 0x0FFF
	pb = (b[1] >> 4) & 0b11
	bf = (b[1] >> 6) & 0b11
	totalLen = uint16LE(b[2:4])
	return handle, pb, bf, totalLen, nil
}

// writeACLFrame packs a full ACL+L2CAP frame: H4 type 0x02, ACL header,
// L2CAP header {len, cid}, payload. lease must be at least
// 4+4+len(payload) bytes. Returns the byte count written.
func writeACLFrame(lease []byte, handle uint16, cid uint16, payload []byte) int {
	lease[0] = h4TypeACL
	l2capLen := 4 + len(payload)
	packACLHeader(lease[1:5], handle, pbFirstNonFlushable, bfPointToPoint, uint16(l2capLen))
	putUint16LE(lease[5:7], uint16(len(payload)))
	putUint16LE(lease[7:9], cid)
	copy(lease[9:], payload)
	return 9 + len(payload)
}

// aclFrameLen returns the total frame size (including the leading H4 type
// byte) for a given L2CAP payload length.
func aclFrameLen(payloadLen int) int { return 1 + 4 + 4 + payloadLen }

// parseACLFrame splits the bytes following the H4 type byte into the ACL
// header fields and the L2CAP {cid, payload}.
func parseACLFrame(b []byte) (handle uint16, pb, bf byte, cid uint16, payload []byte, err error) {
	handle, pb, bf, totalLen, err := parseACLHeader(b)
	if err != nil {
		return 0, 0, 0, 0, nil, err
	}
	rest := b[4:]
	if len(rest) < int(totalLen) || totalLen < 4 {
		return 0, 0, 0, 0, nil, ErrShortFrame
	}
	l2capLen := uint16LE(rest[0:2])
	cid = uint16LE(rest[2:4])
	if len(rest) < int(4+l2capLen) {
		return 0, 0, 0, 0, nil, ErrShortFrame
	}
	payload = rest[4 : 4+l2capLen]
	return handle, pb, bf, cid, payload, nil
}

// mtuOption packs the single MTU configuration option {type=0x01, len=0x02, mtu}.
func mtuOption(mtu uint16) [4]byte {
	var o [4]byte
	o[0] = 0x01
	o[1] = 0x02
	putUint16LE(o[2:4], mtu)
	return o
}

// isMTUOption recognizes a configuration options field that is exactly
// one 4-byte MTU option {type=0x01, len=0x02, mtu}; this stack only ever
// emits and accepts the MTU option.
func isMTUOption(option []byte) (mtu uint16, ok bool) {
	if len(option) != 4 || option[0] != 0x01 || option[1] != 0x02 {
		return 0, false
	}
	return uint16LE(option[2:4]), true
}

// l2capSignalHeader packs the 4-byte signaling PDU header {code, identifier, length-LE}.
func l2capSignalHeader(b []byte, code, identifier byte, length uint16) {
	b[0] = code
	b[1] = identifier
	putUint16LE(b[2:4], length)
}

// connectionRequestPDU builds a CONNECTION REQUEST payload {psm, sourceCid}.
func connectionRequestPDU(b []byte, identifier byte, psm, sourceCID uint16) {
	l2capSignalHeader(b, l2capConnectionRequest, identifier, 4)
	putUint16LE(b[4:6], psm)
	putUint16LE(b[6:8], sourceCID)
}

// connectionResponsePDU builds a CONNECTION RESPONSE payload {destCid,
// sourceCid, result, status}.
func connectionResponsePDU(b []byte, identifier byte, destCID, sourceCID, result, status uint16) {
	l2capSignalHeader(b, l2capConnectionResponse, identifier, 8)
	putUint16LE(b[4:6], destCID)
	putUint16LE(b[6:8], sourceCID)
	putUint16LE(b[8:10], result)
	putUint16LE(b[10:12], status)
}

// configurationRequestPDU builds a CONFIGURATION REQUEST payload {destCid,
// flags=0, MTU option}.
func configurationRequestPDU(b []byte, identifier byte, destCID, mtu uint16) {
	l2capSignalHeader(b, l2capConfigurationRequest, identifier, 8)
	putUint16LE(b[4:6], destCID)
	putUint16LE(b[6:8], 0)
	opt := mtuOption(mtu)
	copy(b[8:12], opt[:])
}

// configurationResponsePDU builds a CONFIGURATION RESPONSE payload
// {sourceCid, flags=0, result=0, MTU option echoed}.
func configurationResponsePDU(b []byte, identifier byte, sourceCID, mtu uint16) {
	l2capSignalHeader(b, l2capConfigurationResponse, identifier, 10)
	putUint16LE(b[4:6], sourceCID)
	putUint16LE(b[6:8], 0)
	putUint16LE(b[8:10], 0)
	opt := mtuOption(mtu)
	copy(b[10:14], opt[:])
}

// disconnectRequestPDU builds a DISCONNECT REQUEST payload {destCid, sourceCid}.
func disconnectRequestPDU(b []byte, identifier byte, destCID, sourceCID uint16) {
	l2capSignalHeader(b, l2capDisconnectRequest, identifier, 4)
	putUint16LE(b[4:6], destCID)
	putUint16LE(b[6:8], sourceCID)
}

// disconnectResponsePDU builds a DISCONNECT RESPONSE payload {destCid, sourceCid}.
func disconnectResponsePDU(b []byte, identifier byte, destCID, sourceCID uint16) {
	l2capSignalHeader(b, l2capDisconnectResponse, identifier, 4)
	putUint16LE(b[4:6], destCID)
	putUint16LE(b[6:8], sourceCID)
}

// connectionRequestBody is the parsed payload of an inbound CONNECTION
// REQUEST: {psm, sourceCid} where sourceCid is the peer's own channel id.
type connectionRequestBody struct {
	PSM       uint16
	SourceCID uint16
}

func parseConnectionRequestBody(b []byte) (connectionRequestBody, error) {
	if len(b) < 4 {
		return connectionRequestBody{}, ErrShortFrame
	}
	return connectionRequestBody{PSM: uint16LE(b[0:2]), SourceCID: uint16LE(b[2:4])}, nil
}

// connectionResponseBody is the parsed payload of a CONNECTION RESPONSE
// answering one of our own requests: DestCID is the peer's newly
// allocated channel (becomes our remoteCid); SourceCID echoes the cid we
// originally sent (our localCid), used to find the pending record.
type connectionResponseBody struct {
	DestCID   uint16
	SourceCID uint16
	Result    uint16
	Status    uint16
}

func parseConnectionResponseBody(b []byte) (connectionResponseBody, error) {
	if len(b) < 8 {
		return connectionResponseBody{}, ErrShortFrame
	}
	return connectionResponseBody{
		DestCID:   uint16LE(b[0:2]),
		SourceCID: uint16LE(b[2:4]),
		Result:    uint16LE(b[4:6]),
		Status:    uint16LE(b[6:8]),
	}, nil
}

// configurationRequestBody is the parsed payload of an inbound
// CONFIGURATION REQUEST: DestCID is our own local cid (the channel the
// peer is configuring), followed by flags and options.
type configurationRequestBody struct {
	DestCID uint16
	Options []byte
}

func parseConfigurationRequestBody(b []byte) (configurationRequestBody, error) {
	if len(b) < 4 {
		return configurationRequestBody{}, ErrShortFrame
	}
	return configurationRequestBody{DestCID: uint16LE(b[0:2]), Options: b[4:]}, nil
}

// configurationResponseBody is the parsed payload of a CONFIGURATION
// RESPONSE answering our own request: SourceCID echoes our local cid.
type configurationResponseBody struct {
	SourceCID uint16
	Result    uint16
	Options   []byte
}

func parseConfigurationResponseBody(b []byte) (configurationResponseBody, error) {
	if len(b) < 6 {
		return configurationResponseBody{}, ErrShortFrame
	}
	return configurationResponseBody{
		SourceCID: uint16LE(b[0:2]),
		Result:    uint16LE(b[4:6]),
		Options:   b[6:],
	}, nil
}

// disconnectBody is the shared {destCid, sourceCid} shape of both
// DISCONNECT REQUEST and DISCONNECT RESPONSE payloads.
type disconnectBody struct {
	DestCID   uint16
	SourceCID uint16
}

func parseDisconnectBody(b []byte) (disconnectBody, error) {
	if len(b) < 4 {
		return disconnectBody{}, ErrShortFrame
	}
	return disconnectBody{DestCID: uint16LE(b[0:2]), SourceCID: uint16LE(b[2:4])}, nil
}
