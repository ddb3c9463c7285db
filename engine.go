package wiihost

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	defaultLocalName      = "ESP32-BT-WIIP"
	defaultClassOfDevice  = 0x040500
	defaultScanLAP        = 0x9E8B33
	defaultScanDuration   = 0x10
	defaultInboundMTU     = 0x00B9
	defaultOutboundMTU    = 0x0040
	wiimoteClassOfDevice  = 0x042500
	balanceBoardName      = "Nintendo RVL-WBC-01"
	pairingScanEnableMode = 0x03

	hciControlPSM   = 0x0011
	hidInterruptPSM = 0x0013

	disconnectReasonRemoteTerminated = 0x15
	rejectReasonUnacceptableCoD      = 0x0F
	l2capRejectResult                = 0x0004

	defaultRingCapacity = 4096
)

// initStep describes one command in the boot sequence and the opcode its
// command-complete must carry to advance.
type initStep struct {
	opcode uint16
	build  func(lease []byte, e *Engine) int
}

// Engine drives the HCI and L2CAP state machines over a Transport. It is
// not safe for concurrent use beyond the single cooperative tick model
// described by Process: exactly one goroutine may call Process, though
// handler callbacks may re-enter the engine's Send* methods (no lock is
// held across a callback invocation).
type Engine struct {
	transport Transport
	txRing    *RingBuffer
	rxRing    *RingBuffer
	store     *ConnectionStore
	log       *logrus.Logger

	localName     string
	classOfDevice uint32
	localAddr     BDAddr

	ready    bool
	initStep int
	steps    []initStep

	identifier uint8
	localCID   uint16

	inquirySeen     map[BDAddr]struct{}
	nameQueries     map[BDAddr]HCIInquiryResult
	pendingOutbound map[BDAddr]struct{}

	onReady             func()
	hciHandler          func(HCIEvent)
	aclHandler          func(ACLEvent)
	connReqPredicate    func(HCIConnectionRequest) bool
	aclConnReqPredicate func(ACLConnectionRequest) bool
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLocalName overrides the name WRITE_LOCAL_NAME advertises.
func WithLocalName(name string) Option {
	return func(e *Engine) { e.localName = name }
}

// WithClassOfDevice overrides the 24-bit class-of-device value.
func WithClassOfDevice(cod uint32) Option {
	return func(e *Engine) { e.classOfDevice = cod }
}

// WithLogger overrides the default logger (logrus.StandardLogger()).
func WithLogger(l *logrus.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithOnReady registers the callback fired once after the init chain
// completes successfully.
func WithOnReady(f func()) Option {
	return func(e *Engine) { e.onReady = f }
}

// WithHCIEventHandler registers the sink for HCIEvent occurrences.
func WithHCIEventHandler(f func(HCIEvent)) Option {
	return func(e *Engine) { e.hciHandler = f }
}

// WithACLEventHandler registers the sink for ACLEvent occurrences.
func WithACLEventHandler(f func(ACLEvent)) Option {
	return func(e *Engine) { e.aclHandler = f }
}

// WithConnectionRequestPredicate registers the accept/reject decision for
// inbound HCI connection requests.
func WithConnectionRequestPredicate(f func(HCIConnectionRequest) bool) Option {
	return func(e *Engine) { e.connReqPredicate = f }
}

// WithACLConnectionRequestPredicate registers the accept/reject decision
// for inbound L2CAP connection requests.
func WithACLConnectionRequestPredicate(f func(ACLConnectionRequest) bool) Option {
	return func(e *Engine) { e.aclConnReqPredicate = f }
}

// NewEngine allocates the TX/RX rings, applies opts, and enqueues the
// first command of the init chain (RESET). Ring-buffer allocation failure
// is the one fatal condition this layer has, so it is reported upward as
// a constructor error.
func NewEngine(transport Transport, opts ...Option) (*Engine, error) {
	e := &Engine{
		transport:       transport,
		txRing:          NewRingBuffer(defaultRingCapacity),
		rxRing:          NewRingBuffer(defaultRingCapacity),
		store:           NewConnectionStore(),
		log:             logrus.StandardLogger(),
		localName:       defaultLocalName,
		classOfDevice:   defaultClassOfDevice,
		identifier:      1,
		localCID:        0x0040,
		inquirySeen:     make(map[BDAddr]struct{}),
		nameQueries:     make(map[BDAddr]HCIInquiryResult),
		pendingOutbound: make(map[BDAddr]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.steps = []initStep{
		{opcode: opReset, build: func(b []byte, e *Engine) int { return buildReset(b) }},
		{opcode: opReadBDAddr, build: func(b []byte, e *Engine) int { return buildReadBDAddr(b) }},
		{opcode: opWriteLocalName, build: func(b []byte, e *Engine) int { return buildWriteLocalName(b, e.localName) }},
		{opcode: opWriteClassOfDevice, build: func(b []byte, e *Engine) int { return buildWriteClassOfDevice(b, e.classOfDevice) }},
		{opcode: opWriteScanEnable, build: func(b []byte, e *Engine) int { return buildWriteScanEnable(b, pairingScanEnableMode) }},
	}
	if ok := e.emitInitStep(0); !ok {
		return nil, fmt.Errorf("wiihost: failed to enqueue initial RESET command")
	}
	return e, nil
}

func (e *Engine) emitInitStep(i int) bool {
	step := e.steps[i]
	var scratch [260]byte
	n := step.build(scratch[:], e)
	lease, err := e.txRing.Allocate(n, 0)
	if err != nil {
		e.log.WithError(err).Warn("tx ring full enqueueing init step")
		return false
	}
	copy(lease.Bytes(), scratch[:n])
	lease.Commit()
	lease.Release()
	return true
}

// nextIdentifier returns the next signaling identifier, wrapping 255→1
// (0 is never used).
func (e *Engine) nextIdentifier() byte {
	id := e.identifier
	e.identifier++
	if e.identifier == 0 {
		e.identifier = 1
	}
	return id
}

// nextLocalCID returns the next host-assigned L2CAP CID. It never
// decreases across the life of the engine.
func (e *Engine) nextLocalCID() uint16 {
	id := e.localCID
	e.localCID++
	return id
}

func (e *Engine) emitCommand(paramLen int, build func([]byte) int) bool {
	size := commandFrameLen(paramLen)
	lease, err := e.txRing.Allocate(size, 0)
	if err != nil {
		e.log.WithError(err).Warn("tx ring full dropping command")
		return false
	}
	build(lease.Bytes())
	lease.Commit()
	lease.Release()
	return true
}

func (e *Engine) emitSignal(handle uint16, payloadLen int, build func([]byte)) bool {
	size := aclFrameLen(payloadLen)
	lease, err := e.txRing.Allocate(size, 0)
	if err != nil {
		e.log.WithError(err).Warn("tx ring full dropping l2cap signal")
		return false
	}
	b := lease.Bytes()
	b[0] = h4TypeACL
	packACLHeader(b[1:5], handle, pbFirstNonFlushable, bfPointToPoint, uint16(4+payloadLen))
	putUint16LE(b[5:7], uint16(payloadLen))
	putUint16LE(b[7:9], signalingCID)
	build(b[9:])
	lease.Commit()
	lease.Release()
	return true
}

// Scan issues an HCI inquiry. Only legal once the init chain has
// completed.
func (e *Engine) Scan() bool {
	if !e.ready {
		e.log.Warn("Scan called before engine ready")
		return false
	}
	e.inquirySeen = make(map[BDAddr]struct{})
	return e.emitCommand(5, func(b []byte) int {
		return buildInquiry(b, defaultScanLAP, defaultScanDuration, 0)
	})
}

// RequestRemoteName remembers entry under its BD_ADDR and issues
// REMOTE_NAME_REQUEST.
func (e *Engine) RequestRemoteName(entry HCIInquiryResult) bool {
	e.nameQueries[entry.BDAddr] = entry
	return e.emitCommand(10, func(b []byte) int {
		return buildRemoteNameRequest(b, entry.BDAddr, entry.PSRM, entry.ClockOffset)
	})
}

// Connect marks addr pending-outbound and issues CREATE_CONNECTION.
func (e *Engine) Connect(addr BDAddr) bool {
	e.pendingOutbound[addr] = struct{}{}
	return e.emitCommand(13, func(b []byte) int {
		return buildCreateConnection(b, addr, 0x0008, 0, 0, 0)
	})
}

// Auth issues AUTHENTICATION_REQUESTED for handle.
func (e *Engine) Auth(handle uint16) bool {
	return e.emitCommand(2, func(b []byte) int {
		return buildAuthenticationRequested(b, handle)
	})
}

// Disconnect issues HCI DISCONNECT for handle with the
// remote-device-terminated reason.
func (e *Engine) Disconnect(handle uint16) bool {
	return e.emitCommand(3, func(b []byte) int {
		return buildDisconnect(b, handle, disconnectReasonRemoteTerminated)
	})
}

// L2CAPConnect initiates an outbound L2CAP channel to psm on handle.
func (e *Engine) L2CAPConnect(handle, psm, mtu uint16) bool {
	localCID := e.nextLocalCID()
	rec := &L2CAPRecord{Handle: handle, LocalCID: localCID, PSM: psm, MTU: mtu}
	e.store.Emplace(rec)
	id := e.nextIdentifier()
	return e.emitSignal(handle, 8, func(b []byte) {
		connectionRequestPDU(b, id, psm, localCID)
	})
}

// SendData wraps payload in an L2CAP frame for (handle, psm), resolving
// the remote CID via the connection store.
func (e *Engine) SendData(handle, psm uint16, payload []byte) bool {
	rec := e.store.FindByPSM(handle, psm)
	if rec == nil {
		e.log.WithFields(logrus.Fields{"handle": handle, "psm": psm}).Warn("SendData for unknown channel")
		return false
	}
	size := aclFrameLen(len(payload))
	lease, err := e.txRing.Allocate(size, 0)
	if err != nil {
		e.log.WithError(err).Warn("tx ring full dropping data frame")
		return false
	}
	writeACLFrame(lease.Bytes(), handle, rec.RemoteCID, payload)
	lease.Commit()
	lease.Release()
	return true
}

// Receive is the inbound entry point the controller transport's reader
// calls with one complete framed packet (event or ACL, H4 type byte
// included). It is the ring buffer's RX producer.
func (e *Engine) Receive(frame []byte) bool {
	lease, err := e.rxRing.Allocate(len(frame), 0)
	if err != nil {
		e.log.WithError(err).Warn("rx ring full dropping inbound frame")
		return false
	}
	copy(lease.Bytes(), frame)
	lease.Commit()
	lease.Release()
	return true
}

// Process performs one cooperative scheduling tick: drain TX while the
// controller has send credit, then dispatch at most one RX frame.
func (e *Engine) Process() {
	for e.transport.HasSendCredit() {
		lease, err := e.txRing.Read(0)
		if err != nil {
			break
		}
		_, werr := e.transport.Write(lease.Bytes())
		lease.Release()
		if werr != nil {
			e.log.WithError(werr).Error("transport write failed")
			break
		}
	}

	lease, err := e.rxRing.Read(0)
	if err != nil {
		return
	}
	frame := append([]byte(nil), lease.Bytes()...)
	lease.Release()
	e.dispatch(frame)
}

func (e *Engine) dispatch(frame []byte) {
	if len(frame) < 1 {
		return
	}
	switch frame[0] {
	case h4TypeEvent:
		e.dispatchEvent(frame[1:])
	case h4TypeACL:
		e.dispatchACL(frame[1:])
	default:
		e.log.WithField("type", frame[0]).Warn("dropping frame of unsupported H4 type")
	}
}

func (e *Engine) dispatchEvent(b []byte) {
	if len(b) < 2 {
		e.log.Warn("short event header")
		return
	}
	code := b[0]
	length := int(b[1])
	if len(b) < 2+length {
		e.log.Warn("short event payload")
		return
	}
	payload := b[2 : 2+length]

	switch code {
	case evtCommandComplete:
		e.handleCommandComplete(payload)
	case evtInquiryResult:
		e.handleInquiryResult(payload)
	case evtInquiryComplete:
		e.handleInquiryComplete()
	case evtConnectionComplete:
		e.handleConnectionComplete(payload)
	case evtConnectionRequest:
		e.handleConnectionRequest(payload)
	case evtDisconnectComplete:
		e.handleDisconnectionComplete(payload)
	case evtRemoteNameComplete:
		e.handleRemoteNameComplete(payload)
	case evtPINCodeRequest:
		e.handlePINCodeRequest(payload)
	case evtLinkKeyRequest:
		e.handleLinkKeyRequest(payload)
	case evtCommandStatus:
		// No command this stack issues needs status-level tracking beyond
		// the init chain, which only ever completes via command-complete.
	default:
		e.log.WithField("event", code).Debug("ignoring unhandled HCI event")
	}
}

func (e *Engine) handleCommandComplete(payload []byte) {
	cc, err := parseCommandComplete(payload)
	if err != nil {
		e.log.WithError(err).Warn("short command-complete event")
		return
	}
	if cc.Opcode == opReadBDAddr && cc.Status == 0 && len(payload) >= 10 {
		e.localAddr = ParseBDAddrLE(payload[4:10])
	}
	if e.ready {
		return
	}
	if e.initStep >= len(e.steps) {
		return
	}
	expected := e.steps[e.initStep]
	if cc.Opcode != expected.opcode || cc.Status != 0 {
		e.log.WithFields(logrus.Fields{"opcode": cc.Opcode, "status": cc.Status}).
			Error("init chain aborted")
		return
	}
	e.initStep++
	if e.initStep == len(e.steps) {
		e.ready = true
		if e.onReady != nil {
			e.onReady()
		}
		return
	}
	e.emitInitStep(e.initStep)
}

func (e *Engine) handleInquiryResult(payload []byte) {
	entries, err := parseInquiryResultEvent(payload)
	if err != nil {
		e.log.WithError(err).Warn("short inquiry-result event")
		return
	}
	for _, ent := range entries {
		if _, seen := e.inquirySeen[ent.BDAddr]; seen {
			continue
		}
		e.inquirySeen[ent.BDAddr] = struct{}{}
		if e.hciHandler != nil {
			e.hciHandler(HCIInquiryResult{BDAddr: ent.BDAddr, PSRM: ent.PSRM, CoD: ent.CoD, ClockOffset: ent.ClockOffset})
		}
	}
}

func (e *Engine) handleInquiryComplete() {
	e.inquirySeen = make(map[BDAddr]struct{})
	if e.hciHandler != nil {
		e.hciHandler(HCIInquiryComplete{})
	}
}

func (e *Engine) handleConnectionComplete(payload []byte) {
	cc, err := parseConnectionComplete(payload)
	if err != nil {
		e.log.WithError(err).Warn("short connection-complete event")
		return
	}
	_, wasPending := e.pendingOutbound[cc.BDAddr]
	delete(e.pendingOutbound, cc.BDAddr)
	accepted := !wasPending
	if e.hciHandler == nil {
		return
	}
	if cc.Status == 0 {
		e.hciHandler(HCIConnectionEstablished{BDAddr: cc.BDAddr, Handle: cc.Handle, Accepted: accepted})
	} else {
		e.hciHandler(HCIConnectionFailed{BDAddr: cc.BDAddr, Handle: cc.Handle, Reason: cc.Status, Accepted: accepted})
	}
}

func (e *Engine) handleConnectionRequest(payload []byte) {
	req, err := parseConnectionRequest(payload)
	if err != nil {
		e.log.WithError(err).Warn("short connection-request event")
		return
	}
	accept := false
	if e.connReqPredicate != nil {
		accept = e.connReqPredicate(HCIConnectionRequest{BDAddr: req.BDAddr, CoD: req.CoD})
	}
	if accept {
		e.emitCommand(7, func(b []byte) int { return buildAcceptConnection(b, req.BDAddr, 0) })
	} else {
		e.emitCommand(7, func(b []byte) int { return buildRejectConnection(b, req.BDAddr, rejectReasonUnacceptableCoD) })
	}
}

func (e *Engine) handleDisconnectionComplete(payload []byte) {
	dc, err := parseDisconnectionComplete(payload)
	if err != nil {
		e.log.WithError(err).Warn("short disconnection-complete event")
		return
	}
	for _, rec := range e.store.RecordsForHandle(dc.Handle) {
		e.store.Remove(rec)
	}
	if dc.Status == 0 && e.hciHandler != nil {
		e.hciHandler(HCIDisconnected{Handle: dc.Handle, Reason: dc.Reason})
	}
}

func (e *Engine) handleRemoteNameComplete(payload []byte) {
	rn, err := parseRemoteNameComplete(payload)
	if err != nil {
		e.log.WithError(err).Warn("short remote-name-complete event")
		return
	}
	entry, ok := e.nameQueries[rn.BDAddr]
	if !ok {
		e.log.WithField("bdaddr", rn.BDAddr).Warn("remote-name-complete for unknown query")
		return
	}
	delete(e.nameQueries, rn.BDAddr)
	if rn.Status != 0 || e.hciHandler == nil {
		return
	}
	e.hciHandler(HCIRemoteName{
		BDAddr: entry.BDAddr, PSRM: entry.PSRM, CoD: entry.CoD, ClockOffset: entry.ClockOffset,
		Name: rn.Name,
	})
}

func (e *Engine) handlePINCodeRequest(payload []byte) {
	addr, err := parseBDAddrOnlyEvent(payload)
	if err != nil {
		e.log.WithError(err).Warn("short pin-code-request event")
		return
	}
	pin := e.localAddr.Reversed()
	e.emitCommand(23, func(b []byte) int { return buildPINCodeReply(b, addr, pin[:]) })
}

func (e *Engine) handleLinkKeyRequest(payload []byte) {
	addr, err := parseBDAddrOnlyEvent(payload)
	if err != nil {
		e.log.WithError(err).Warn("short link-key-request event")
		return
	}
	e.emitCommand(6, func(b []byte) int { return buildLinkKeyNegativeReply(b, addr) })
}

func (e *Engine) dispatchACL(b []byte) {
	handle, pb, bf, cid, payload, err := parseACLFrame(b)
	if err != nil {
		e.log.WithError(err).Warn("short ACL frame")
		return
	}
	if pb != pbFirstNonFlushable || bf != bfPointToPoint {
		e.log.WithFields(logrus.Fields{"pb": pb, "bf": bf}).Warn("dropping ACL frame with unsupported PB/BF flags")
		return
	}
	if cid == signalingCID {
		e.dispatchSignal(handle, payload)
		return
	}
	if e.aclHandler != nil {
		e.aclHandler(ACLData{Handle: handle, ChannelID: cid, Data: payload})
	}
}

func (e *Engine) dispatchSignal(handle uint16, payload []byte) {
	if len(payload) < 4 {
		e.log.Warn("short l2cap signaling header")
		return
	}
	code := payload[0]
	identifier := payload[1]
	length := uint16LE(payload[2:4])
	if len(payload) < int(4+length) {
		e.log.Warn("short l2cap signaling body")
		return
	}
	body := payload[4 : 4+length]

	switch code {
	case l2capConnectionRequest:
		e.handleL2CAPConnectionRequest(handle, identifier, body)
	case l2capConnectionResponse:
		e.handleL2CAPConnectionResponse(handle, body)
	case l2capConfigurationRequest:
		e.handleL2CAPConfigurationRequest(handle, identifier, body)
	case l2capConfigurationResponse:
		e.handleL2CAPConfigurationResponse(handle, body)
	case l2capDisconnectRequest:
		e.handleL2CAPDisconnectRequest(handle, identifier, body)
	case l2capDisconnectResponse:
		e.handleL2CAPDisconnectResponse(handle, body)
	default:
		e.log.WithField("code", code).Debug("ignoring unhandled l2cap signaling code")
	}
}

func (e *Engine) handleL2CAPConnectionRequest(handle uint16, identifier byte, body []byte) {
	req, err := parseConnectionRequestBody(body)
	if err != nil {
		e.log.WithError(err).Warn("short l2cap connection-request body")
		return
	}
	accept := true
	if e.aclConnReqPredicate != nil {
		accept = e.aclConnReqPredicate(ACLConnectionRequest{Handle: handle, SourceCID: req.SourceCID, PSM: req.PSM})
	}
	if !accept {
		e.emitSignal(handle, 12, func(b []byte) {
			connectionResponsePDU(b, identifier, 0, req.SourceCID, l2capRejectResult, 0)
		})
		return
	}
	localCID := e.nextLocalCID()
	rec := &L2CAPRecord{Handle: handle, LocalCID: localCID, PSM: req.PSM, RemoteCID: req.SourceCID, MTU: defaultInboundMTU}
	e.store.Emplace(rec)
	e.emitSignal(handle, 12, func(b []byte) {
		connectionResponsePDU(b, identifier, localCID, req.SourceCID, 0, 0)
	})
	cfgID := e.nextIdentifier()
	e.emitSignal(handle, 12, func(b []byte) {
		configurationRequestPDU(b, cfgID, req.SourceCID, defaultInboundMTU)
	})
}

func (e *Engine) handleL2CAPConnectionResponse(handle uint16, body []byte) {
	resp, err := parseConnectionResponseBody(body)
	if err != nil {
		e.log.WithError(err).Warn("short l2cap connection-response body")
		return
	}
	rec := e.store.FindByLocal(handle, resp.SourceCID)
	if rec == nil {
		e.log.WithFields(logrus.Fields{"handle": handle, "cid": resp.SourceCID}).Warn("connection-response for unknown record")
		return
	}
	if resp.Result != 0 {
		e.store.Remove(rec)
		if e.aclHandler != nil {
			e.aclHandler(ACLConnectionFailed{Handle: handle, SourceCID: rec.LocalCID, PSM: rec.PSM})
		}
		return
	}
	rec.RemoteCID = resp.DestCID
	id := e.nextIdentifier()
	e.emitSignal(handle, 12, func(b []byte) {
		configurationRequestPDU(b, id, rec.RemoteCID, defaultOutboundMTU)
	})
}

func (e *Engine) handleL2CAPConfigurationRequest(handle uint16, identifier byte, body []byte) {
	req, err := parseConfigurationRequestBody(body)
	if err != nil {
		e.log.WithError(err).Warn("short l2cap configuration-request body")
		return
	}
	rec := e.store.FindByLocal(handle, req.DestCID)
	if rec == nil {
		e.log.WithFields(logrus.Fields{"handle": handle, "cid": req.DestCID}).Warn("configuration-request for unknown record")
		return
	}
	mtu, ok := isMTUOption(req.Options)
	if !ok {
		e.log.Warn("ignoring configuration-request without a recognized MTU option")
		return
	}
	rec.MTU = mtu
	rec.RemoteConfigured = true
	e.emitSignal(handle, 14, func(b []byte) {
		configurationResponsePDU(b, identifier, rec.RemoteCID, mtu)
	})
	e.maybeEstablished(handle, rec)
}

func (e *Engine) handleL2CAPConfigurationResponse(handle uint16, body []byte) {
	resp, err := parseConfigurationResponseBody(body)
	if err != nil {
		e.log.WithError(err).Warn("short l2cap configuration-response body")
		return
	}
	rec := e.store.FindByLocal(handle, resp.SourceCID)
	if rec == nil {
		e.log.WithFields(logrus.Fields{"handle": handle, "cid": resp.SourceCID}).Warn("configuration-response for unknown record")
		return
	}
	if resp.Result != 0 {
		return
	}
	rec.LocalConfigured = true
	e.maybeEstablished(handle, rec)
}

func (e *Engine) maybeEstablished(handle uint16, rec *L2CAPRecord) {
	if !rec.MaybeEstablished() || e.aclHandler == nil {
		return
	}
	e.aclHandler(ACLConnectionEstablished{Handle: handle, SourceCID: rec.LocalCID, PSM: rec.PSM})
}

func (e *Engine) handleL2CAPDisconnectRequest(handle uint16, identifier byte, body []byte) {
	db, err := parseDisconnectBody(body)
	if err != nil {
		e.log.WithError(err).Warn("short l2cap disconnect-request body")
		return
	}
	rec := e.store.FindByLocal(handle, db.DestCID)
	if rec == nil {
		e.log.WithFields(logrus.Fields{"handle": handle, "cid": db.DestCID}).Warn("disconnect-request for unknown record")
		return
	}
	psm := rec.PSM
	e.store.Remove(rec)
	e.emitSignal(handle, 8, func(b []byte) {
		disconnectResponsePDU(b, identifier, db.DestCID, db.SourceCID)
	})
	if e.aclHandler != nil {
		e.aclHandler(ACLDisconnected{Handle: handle, PSM: psm})
	}
}

func (e *Engine) handleL2CAPDisconnectResponse(handle uint16, body []byte) {
	db, err := parseDisconnectBody(body)
	if err != nil {
		e.log.WithError(err).Warn("short l2cap disconnect-response body")
		return
	}
	rec := e.store.FindByLocal(handle, db.SourceCID)
	if rec == nil {
		e.log.WithFields(logrus.Fields{"handle": handle, "cid": db.SourceCID}).Warn("disconnect-response for unknown record")
		return
	}
	psm := rec.PSM
	e.store.Remove(rec)
	if e.aclHandler != nil {
		e.aclHandler(ACLDisconnected{Handle: handle, PSM: psm})
	}
}

// L2CAPDisconnect tears down our own (handle, psm) channel by sending a
// DISCONNECT REQUEST.
func (e *Engine) L2CAPDisconnect(handle, psm uint16) bool {
	rec := e.store.FindByPSM(handle, psm)
	if rec == nil {
		return false
	}
	id := e.nextIdentifier()
	return e.emitSignal(handle, 8, func(b []byte) {
		disconnectRequestPDU(b, id, rec.RemoteCID, rec.LocalCID)
	})
}
