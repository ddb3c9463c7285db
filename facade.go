package wiihost

import "github.com/sirupsen/logrus"

// Station is the application-facing facade: it wires the HCI/L2CAP
// engine's connection-request predicates and event callbacks into the
// balance-board pairing and calibration workflow, and republishes
// everything as the small Event sum type above.
type Station struct {
	engine *Engine
	log    *logrus.Logger

	handler func(Event)
	boards  map[uint16]*Board
}

// StationOption configures a Station at construction time.
type StationOption func(*Station)

// WithEventHandler registers the sink for application-level Events.
func WithEventHandler(f func(Event)) StationOption {
	return func(s *Station) { s.handler = f }
}

// WithStationLogger overrides the default logger.
func WithStationLogger(l *logrus.Logger) StationOption {
	return func(s *Station) { s.log = l }
}

// NewStation builds an Engine over transport and binds its handlers to
// the balance-board workflow: accept HCI connection requests only from
// devices advertising the Wiimote class of device, accept L2CAP channel
// requests only on the HID control and interrupt PSMs, and drive the
// Board calibration dialog once the HID interrupt channel establishes.
func NewStation(transport Transport, opts ...StationOption) (*Station, error) {
	s := &Station{
		log:    logrus.StandardLogger(),
		boards: make(map[uint16]*Board),
	}
	for _, opt := range opts {
		opt(s)
	}

	engine, err := NewEngine(transport,
		WithLogger(s.log),
		WithConnectionRequestPredicate(func(req HCIConnectionRequest) bool {
			return req.CoD == wiimoteClassOfDevice
		}),
		WithACLConnectionRequestPredicate(func(req ACLConnectionRequest) bool {
			return req.PSM == hciControlPSM || req.PSM == hidInterruptPSM
		}),
		WithHCIEventHandler(s.onHCIEvent),
		WithACLEventHandler(s.onACLEvent),
	)
	if err != nil {
		return nil, err
	}
	s.engine = engine
	return s, nil
}

// Process drives one scheduling tick of the underlying engine.
func (s *Station) Process() { s.engine.Process() }

// Receive feeds one inbound H4-framed packet to the underlying engine.
func (s *Station) Receive(frame []byte) bool { return s.engine.Receive(frame) }

// Scan starts discovery and emits ScanStarted.
func (s *Station) Scan() bool {
	if !s.engine.Scan() {
		return false
	}
	s.emit(ScanStarted{})
	return true
}

func (s *Station) emit(ev Event) {
	if s.handler != nil {
		s.handler(ev)
	}
}

func (s *Station) onHCIEvent(ev HCIEvent) {
	switch e := ev.(type) {
	case HCIInquiryResult:
		if e.CoD == wiimoteClassOfDevice {
			s.engine.RequestRemoteName(e)
		}
	case HCIInquiryComplete:
		s.emit(ScanStopped{})
	case HCIRemoteName:
		if e.Name == balanceBoardName {
			s.engine.Connect(e.BDAddr)
		}
	case HCIConnectionEstablished:
		if !e.Accepted {
			s.engine.Auth(e.Handle)
			s.engine.L2CAPConnect(e.Handle, hciControlPSM, defaultOutboundMTU)
			s.engine.L2CAPConnect(e.Handle, hidInterruptPSM, defaultOutboundMTU)
		}
	case HCIDisconnected:
		delete(s.boards, e.Handle)
	}
}

func (s *Station) onACLEvent(ev ACLEvent) {
	switch e := ev.(type) {
	case ACLConnectionEstablished:
		if e.PSM == hidInterruptPSM {
			handle := e.Handle
			board := NewBoard(handle, func(payload []byte) bool {
				return s.engine.SendData(handle, hidInterruptPSM, payload)
			})
			s.boards[handle] = board
			board.SetLEDs([4]bool{true, false, false, false})
			s.emit(BalanceBoardConnected{Handle: handle})
		}
	case ACLDisconnected:
		if e.PSM == hidInterruptPSM {
			if _, ok := s.boards[e.Handle]; ok {
				delete(s.boards, e.Handle)
				s.emit(BalanceBoardDisconnected{Handle: e.Handle})
				s.engine.Disconnect(e.Handle)
			}
		}
	case ACLData:
		board, ok := s.boards[e.Handle]
		if !ok {
			return
		}
		if reading, ok := board.Feed(e.Data); ok {
			s.emit(reading)
		}
	}
}
